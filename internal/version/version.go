package version

// Version is the current version of the execution engine.
// Release builds override it with ldflags:
// -ldflags "-X github.com/jthadison/tmt-sub003/internal/version.Version=v1.2.3"
var Version = "v0.3.0"

// GetVersion returns the current version of the engine.
func GetVersion() string {
	return Version
}
