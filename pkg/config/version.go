// Package config carries build and version information for logmon.
package config

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X .../pkg/config.Version=v1.2.0" and friends.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetBuildInfo returns the ldflags values, falling back to the module
// version and VCS stamp recorded by the Go toolchain for plain
// "go install" builds.
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" && len(s.Value) >= 7 {
				info.Commit = s.Value[:7]
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

// VersionString returns the one-line version banner.
func VersionString() string {
	bi := GetBuildInfo()
	return fmt.Sprintf("logmon %s (%s) built %s with %s for %s",
		bi.Version, bi.Commit, bi.BuildTime, bi.GoVersion, bi.Platform)
}

// UserAgent is sent on outbound webhook calls.
func UserAgent() string {
	return "logmon/" + GetBuildInfo().Version
}
