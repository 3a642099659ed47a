package server

// Version is the kmud version string.
// Override at build time with: go build -ldflags "-X github.com/crystal-mush/kmud/pkg/server.Version=0.3.0"
var Version = "0.3.0"

// VersionString returns the full version display string.
func VersionString() string {
	return "kmud " + Version
}
