// Package buildconfig reports which build of iotpilot is running.
//
// Release builds stamp the version and commit with ldflags:
//
//	-X github.com/Harshitk-cp/iotpilot/internal/buildconfig.version=v1.4.0
//	-X github.com/Harshitk-cp/iotpilot/internal/buildconfig.commit=3f2c1ab
//
// Anything left unstamped is filled from the VCS metadata the Go toolchain
// embeds in the binary.
package buildconfig

import (
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	version string
	commit  string
)

const (
	devVersion    = "dev"
	unknownCommit = "unknown"
	shortCommit   = 12
)

// Info describes one build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuiltAt   string `json:"built_at,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

func (i Info) String() string {
	s := fmt.Sprintf("iotpilot %s (commit %s", i.Version, i.Commit)
	if i.Dirty {
		s += ", modified"
	}
	if i.GoVersion != "" {
		s += ", " + i.GoVersion
	}
	return s + ")"
}

var current = sync.OnceValue(func() Info {
	bi, _ := debug.ReadBuildInfo()
	return resolve(version, commit, bi)
})

// Current returns the running build. It is computed once.
func Current() Info { return current() }

func Version() string { return Current().Version }

func Commit() string { return Current().Commit }

// resolve prefers stamped values and falls back to bi, which may be nil.
func resolve(stampedVersion, stampedCommit string, bi *debug.BuildInfo) Info {
	info := Info{Version: stampedVersion, Commit: stampedCommit}
	if bi != nil {
		info.GoVersion = bi.GoVersion
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
					if len(info.Commit) > shortCommit {
						info.Commit = info.Commit[:shortCommit]
					}
				}
			case "vcs.time":
				info.BuiltAt = s.Value
			case "vcs.modified":
				info.Dirty = s.Value == "true"
			}
		}
	}
	if info.Version == "" {
		info.Version = devVersion
	}
	if info.Commit == "" {
		info.Commit = unknownCommit
	}
	return info
}
