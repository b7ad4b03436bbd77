// Package version holds build information stamped in with ldflags:
// go build -ldflags "-X archflow/internal/version.Version=0.3.0 -X archflow/internal/version.Commit=$(git rev-parse HEAD)"
package version

var (
	Version   = "0.3.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info returns the version with a short commit suffix when one is known.
func Info() string {
	if Commit != "unknown" && len(Commit) >= 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns the multi-line form printed by `archflow version`.
func Full() string {
	return "archflow " + Version + "\ncommit: " + Commit + "\nbuilt: " + BuildDate
}
