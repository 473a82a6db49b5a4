package config

import (
	"strings"
	"testing"
)

func TestGetBuildInfo_LdflagsWin(t *testing.T) {
	oldV, oldC, oldB := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = oldV, oldC, oldB })

	Version, Commit, BuildTime = "v1.4.0", "abc1234", "2025-12-01T00:00:00Z"
	bi := GetBuildInfo()

	if bi.Version != "v1.4.0" || bi.Commit != "abc1234" || bi.BuildTime != "2025-12-01T00:00:00Z" {
		t.Errorf("GetBuildInfo() = %+v", bi)
	}
	if !strings.Contains(bi.Platform, "/") {
		t.Errorf("Platform = %q", bi.Platform)
	}
	if got := UserAgent(); got != "logmon/v1.4.0" {
		t.Errorf("UserAgent() = %q", got)
	}
	if got := VersionString(); !strings.HasPrefix(got, "logmon v1.4.0 (abc1234)") {
		t.Errorf("VersionString() = %q", got)
	}
}
