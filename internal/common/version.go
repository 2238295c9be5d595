package common

// Version is set at build time via -ldflags.
var Version = "0.9.0-dev"

// GetVersion returns the application version string.
func GetVersion() string {
	return Version
}
