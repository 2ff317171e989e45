package context

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// VersionInfo describes the build of the running binary.
type VersionInfo struct {
	Semantic  string
	Commit    string
	Dirty     bool
	GoVersion string
}

// String returns the version in the form "v1.2.3 (abcdef1, go1.24.2)".
func (v *VersionInfo) String() string {
	commit := v.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if v.Dirty {
		commit += "-dirty"
	}
	if commit == "" {
		return fmt.Sprintf("%s (%s)", v.Semantic, v.GoVersion)
	}
	return fmt.Sprintf("%s (%s, %s)", v.Semantic, commit, v.GoVersion)
}

// GetVersion returns the version of the running binary from its embedded
// build information.
func GetVersion() (*VersionInfo, error) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, errors.New("failed reading build information")
	}

	v := &VersionInfo{Semantic: bi.Main.Version, GoVersion: bi.GoVersion}
	if v.Semantic == "" {
		v.Semantic = "(devel)"
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			v.Commit = s.Value
		case "vcs.modified":
			v.Dirty = s.Value == "true"
		}
	}

	return v, nil
}
