package version

import (
	"strings"
	"testing"
)

func TestFullInfo(t *testing.T) {
	old := Commit
	Commit = "abc123"
	defer func() { Commit = old }()

	got := FullInfo()
	for _, want := range []string{"chatrelay", "version=" + Version, "commit=abc123", "go="} {
		if !strings.Contains(got, want) {
			t.Fatalf("FullInfo() = %q, missing %q", got, want)
		}
	}
	if Info() != Version {
		t.Fatalf("Info() = %q", Info())
	}
	if attrs := LogAttrs(); len(attrs) != 6 || attrs[3] != "abc123" {
		t.Fatalf("LogAttrs() = %v", attrs)
	}
}
