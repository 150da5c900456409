// Package buildinfo holds metadata injected at link time.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata that was not injected.
const UnknownValue = "unknown"

// Info describes the running binary.
type Info struct {
	Version   string
	BuildDate string
}

// New returns build metadata, substituting UnknownValue for empty fields.
func New(version, buildDate string) Info {
	if version == "" {
		version = UnknownValue
	}
	if buildDate == "" {
		buildDate = UnknownValue
	}
	return Info{Version: version, BuildDate: buildDate}
}

// String formats the metadata for --version output.
func (i Info) String() string {
	return fmt.Sprintf("%s (built %s)", i.Version, i.BuildDate)
}
