package oob

import "errors"

var (
	ErrInvalidServer = errors.New("oob: invalid server url")
	ErrServer        = errors.New("oob: server error")
	ErrDecrypt       = errors.New("oob: decrypt")
)
