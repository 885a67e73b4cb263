package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tokligence/chatrelay/internal/chat"
	"github.com/tokligence/chatrelay/internal/stream"
)

// InitOptions configures the generated config files.
type InitOptions struct {
	Root         string
	Environment  string
	HTTPAddress  string
	Model        string
	Provider     string
	Mode         string
	Framing      string
	SystemPrompt string
	Force        bool
}

// Init scaffolds config/setting.ini and config/<env>/chatrelay.ini under Root.
func Init(opts InitOptions) error {
	applyDefaults(&opts)
	if err := Validate(opts); err != nil {
		return err
	}
	if err := ensureDir(filepath.Join(opts.Root, "config", opts.Environment)); err != nil {
		return err
	}

	settingPath := filepath.Join(opts.Root, "config", "setting.ini")
	if err := writeFile(settingPath, settingTemplate(opts), opts.Force); err != nil {
		return err
	}

	envPath := filepath.Join(opts.Root, "config", opts.Environment, "chatrelay.ini")
	if err := writeFile(envPath, envTemplate(opts), opts.Force); err != nil {
		return err
	}

	return nil
}

func applyDefaults(opts *InitOptions) {
	if strings.TrimSpace(opts.Root) == "" {
		opts.Root = "."
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "dev"
	}
	if strings.TrimSpace(opts.HTTPAddress) == "" {
		opts.HTTPAddress = ":8787"
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = "gpt-4o-mini"
	}
	if strings.TrimSpace(opts.Mode) == "" {
		opts.Mode = string(chat.ModeStrict)
	}
	if strings.TrimSpace(opts.Framing) == "" {
		opts.Framing = string(stream.FramingSSE)
	}
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		opts.SystemPrompt = "You are a helpful assistant."
	}
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func writeFile(path, contents string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}

func settingTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# chatrelay settings
environment=%s
http_address=%s
validation_mode=%s
framing=%s
`, opts.Environment, opts.HTTPAddress, opts.Mode, opts.Framing)
}

func envTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# Environment specific overrides for %s
provider=%s
model=%s
system_prompt=%s
log_level=info
# Dash '-' disables file output.
log_file=logs/chatrelay.log
smoothing_enabled=true
smoothing_delay=10ms
`, opts.Environment, opts.Provider, opts.Model, opts.SystemPrompt)
}

// Validate checks option values without touching the filesystem.
func Validate(opts InitOptions) error {
	applyDefaults(&opts)
	if strings.ContainsAny(opts.Environment, `/\`) || opts.Environment == ".." {
		return fmt.Errorf("invalid environment %q", opts.Environment)
	}
	if strings.ContainsAny(opts.SystemPrompt, "\r\n") {
		return errors.New("system prompt must be a single line")
	}
	if _, err := chat.ParseMode(opts.Mode); err != nil {
		return err
	}
	if _, err := stream.ParseFraming(opts.Framing); err != nil {
		return err
	}
	return nil
}
