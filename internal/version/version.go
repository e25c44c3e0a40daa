// Package version holds the build version, set through ldflags.
package version

// Version is the build version string.
// Format: vX.Y.Z or vX.Y.Z-dev for development builds.
var Version = "v0.4.0-dev"

// BuildTime is the build timestamp.
var BuildTime = "unknown"

// String returns "<version> (<build time>)".
func String() string {
	return Version + " (" + BuildTime + ")"
}
