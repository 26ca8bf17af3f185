package version

import "runtime"

// Build and Commit are injected via -ldflags. Build defaults to "dev".
var (
	Build  = "dev"
	Commit = ""
)

// String renders the build identifier for logs and the --version flag.
func String() string {
	s := Build
	if Commit != "" {
		s += " (" + Commit + ")"
	}
	return s + " " + runtime.Version()
}
