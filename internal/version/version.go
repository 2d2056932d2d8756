// Package version exposes build metadata injected at link time.
package version

// set via -ldflags at build time
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
}

// Get returns the build information for the running binary.
func Get() Info {
	return Info{
		Version:   version,
		GitCommit: gitCommit,
		BuildDate: buildDate,
	}
}
