package version //nolint:revive // package name intentionally matches build-info convention

import "fmt"

// Set at build time with -ldflags "-X github.com/wosguides/guides/version.Version=...".
//
//nolint:gochecknoglobals //version information is set at build time
var (
	Repository string
	Version    string
	Commit     string
	Date       string
)

// String describes the build for the CLI.
func String() string {
	v := Version
	if v == "" {
		v = "dev"
	}
	if Commit == "" {
		return v
	}
	return fmt.Sprintf("%s (%s, %s)", v, Commit, Date)
}
