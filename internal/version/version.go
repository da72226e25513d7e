package version

// Set via -ldflags "-X sessionkeeper-go/internal/version.Version=..."
var (
	Version = "dev"
	Commit  = "none"
)

// String renders the version for CLI output.
func String() string {
	return Version + " (" + Commit + ")"
}
