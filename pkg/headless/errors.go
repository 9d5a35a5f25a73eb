package headless

import "errors"

// ErrLaunch is returned when Chrome cannot be started.
var ErrLaunch = errors.New("headless: launch browser")
