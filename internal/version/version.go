package version

import "fmt"

// Name identifies the binary in logs, user agents and signed messages.
const Name = "walletscore"

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// UserAgent is sent with every outbound HTTP request.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", Name, Version)
}
