package ui

import (
	"fmt"
	"io"
	"strings"
)

// Version is set by the CLI at startup.
var Version = "dev"

const bannerArt = `
    __          __
   / /   ____  / /___  _______
  / /   / __ \/ __/ / / / ___/
 / /___/ /_/ / /_/ /_/ (__  )
/_____/\____/\__/\__,_/____/
`

// PrintBanner writes the application banner with version info to w.
func PrintBanner(w io.Writer) {
	for _, line := range strings.Split(bannerArt, "\n") {
		if line != "" {
			fmt.Fprintln(w, BannerStyle.Render(line))
		}
	}
	fmt.Fprintf(w, "                 v%s\n\n", VersionStyle.Render(Version))
}
