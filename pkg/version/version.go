// Package version reports the annserve build.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version, Commit and Date are set with ldflags:
//
//	-X github.com/Aman-CERP/annserve/pkg/version.Version=$(VERSION)
//	-X github.com/Aman-CERP/annserve/pkg/version.Commit=$(git rev-parse --short HEAD)
//	-X github.com/Aman-CERP/annserve/pkg/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)
//
// Unset values fall back to the module build info (go install), then to
// "dev" and "unknown".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// BuildInfo is the JSON form of the build.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetInfo merges the ldflags values with the embedded build info.
func GetInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromBuildInfo(&info, bi)
	}
	return info
}

func fillFromBuildInfo(info *BuildInfo, bi *debug.BuildInfo) {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				if len(s.Value) > 12 {
					info.Commit = s.Value[:12]
				} else {
					info.Commit = s.Value
				}
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

// String is the one-line form printed by `annserve version`.
func String() string {
	info := GetInfo()
	commit := info.Commit
	if info.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("annserve %s (commit: %s, built: %s, go: %s)",
		info.Version, commit, info.Date, info.GoVersion)
}

// Short returns the version alone.
func Short() string {
	return GetInfo().Version
}

// Builder identifies this build in archive metadata, e.g. "annserve/1.2.0".
func Builder() string {
	return "annserve/" + Short()
}
