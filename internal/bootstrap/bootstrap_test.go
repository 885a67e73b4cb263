package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tokligence/chatrelay/internal/config"
	"github.com/tokligence/chatrelay/internal/stream"
)

func TestInitCreatesConfigFiles(t *testing.T) {
	tmp := t.TempDir()
	opts := InitOptions{
		Root:    tmp,
		Model:   "claude-3-5-haiku",
		Framing: "raw",
	}
	if err := Init(opts); err != nil {
		t.Fatalf("Init: %v", err)
	}

	settingBytes, err := os.ReadFile(filepath.Join(tmp, "config", "setting.ini"))
	if err != nil {
		t.Fatalf("read setting: %v", err)
	}
	if !strings.Contains(string(settingBytes), "environment=dev") {
		t.Fatalf("missing environment: %s", settingBytes)
	}

	envBytes, err := os.ReadFile(filepath.Join(tmp, "config", "dev", "chatrelay.ini"))
	if err != nil {
		t.Fatalf("read env config: %v", err)
	}
	if !strings.Contains(string(envBytes), "model=claude-3-5-haiku") {
		t.Fatalf("missing model: %s", envBytes)
	}
}

func TestInitOutputLoads(t *testing.T) {
	tmp := t.TempDir()
	if err := Init(InitOptions{Root: tmp, Environment: "staging", Provider: "loopback", Framing: "raw"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	cfg, err := config.Load(tmp)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != "staging" || cfg.Provider != "loopback" || cfg.Framing != stream.FramingRaw {
		t.Fatalf("loaded config = %+v", cfg)
	}
	if cfg.SystemPrompt != "You are a helpful assistant." {
		t.Fatalf("system prompt = %q", cfg.SystemPrompt)
	}
}

func TestInitRespectsForce(t *testing.T) {
	tmp := t.TempDir()
	opts := InitOptions{Root: tmp}
	if err := Init(opts); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Init(opts); err == nil {
		t.Fatalf("expected error when files exist")
	}
	opts.Force = true
	if err := Init(opts); err != nil {
		t.Fatalf("Init with force: %v", err)
	}
}

func TestValidate(t *testing.T) {
	bad := []InitOptions{
		{Mode: "loose"},
		{Framing: "websocket"},
		{Environment: "../etc"},
		{SystemPrompt: "line one\nline two"},
	}
	for _, opts := range bad {
		if err := Validate(opts); err == nil {
			t.Fatalf("Validate(%+v) expected error", opts)
		}
	}
	if err := Validate(InitOptions{Mode: "relaxed", Framing: "sse"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
