package version

import (
	"strings"
	"testing"
)

func setBuildVars(t *testing.T, version, commit, buildTime string) {
	t.Helper()
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	t.Cleanup(func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	})
	Version, Commit, BuildTime = version, commit, buildTime
}

func TestString(t *testing.T) {
	setBuildVars(t, "1.2.3", "abc1234", "2026-01-15T12:00:00Z")

	want := "1.2.3 (abc1234) built 2026-01-15T12:00:00Z"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestUserAgent(t *testing.T) {
	setBuildVars(t, "dev", "unknown", "unknown")

	ua := UserAgent()
	if !strings.HasPrefix(ua, "ems-client/dev") {
		t.Errorf("UserAgent() = %q, want ems-client/dev prefix", ua)
	}
	if !strings.Contains(ua, "(unknown)") {
		t.Errorf("UserAgent() = %q, should contain commit", ua)
	}
}
