// Package version carries the engine build version and decides whether a
// configuration written for another version can run on this build.
package version

// Version is the engine version. Release builds set it with
// -ldflags "-X github.com/rxtech-lab/argo-engine/internal/version.Version=v0.3.0".
// "main" marks a development build.
var Version = "v0.3.0"

func GetVersion() string {
	return Version
}
