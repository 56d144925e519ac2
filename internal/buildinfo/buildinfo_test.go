package buildinfo

import (
	"strings"
	"testing"
)

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, "eckert/"+Version) {
		t.Errorf("UserAgent() = %q, want prefix %q", ua, "eckert/"+Version)
	}
}

func TestCurrent(t *testing.T) {
	info := Current()
	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if info.GoVersion == "" || info.OS == "" || info.Arch == "" {
		t.Errorf("runtime fields missing: %+v", info)
	}
}

func TestString(t *testing.T) {
	if got := String(); !strings.HasPrefix(got, "Eckert ") {
		t.Errorf("String() = %q", got)
	}
}
