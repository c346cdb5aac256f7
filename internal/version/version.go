// Package version holds the build-time version string each command
// prints in its kingpin usage banner, the local replacement for the
// teacher's perforce/p4prometheus/version helper (see DESIGN.md for
// why that dependency is not carried forward).
package version

import "fmt"

// Version is overridden at build time via -ldflags
// "-X github.com/ldapvi-go/ldapvi/internal/version.Version=...".
var Version = "dev"

// Print formats app's name and build version for a kingpin
// Version(...) call, mirroring p4prometheus/version.Print's signature
// and call sites in the teacher's cmd/* main functions.
func Print(app string) string {
	return fmt.Sprintf("%s version %s", app, Version)
}
