package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tokligence/chatrelay/internal/chat"
	"github.com/tokligence/chatrelay/internal/stream"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/chatrelay.ini"
	envPrefix        = "CHATRELAY_"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// RouteRule maps a model pattern to a provider name.
type RouteRule struct {
	Pattern string
	Target  string
}

// Config describes runtime options for the daemon.
type Config struct {
	Environment string
	HTTPAddress string

	// Provider is explicit when set; otherwise it is resolved from Model.
	Provider    string
	Model       string
	ModelRoutes []RouteRule

	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIOrg          string
	AnthropicAPIKey    string
	AnthropicBaseURL   string
	AnthropicVersion   string
	AnthropicMaxTokens int
	GeminiAPIKey       string
	GeminiBaseURL      string
	RequestTimeout     time.Duration

	SystemPrompt string
	ProfileFile  string
	Temperature  *float64
	MaxTokens    int

	ValidationMode   chat.Mode
	Framing          stream.Framing
	SmoothingEnabled bool
	SmoothingDelay   time.Duration

	MaxBodyBytes    int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	MetricsEnabled bool
}

// Profile is the optional YAML generation profile.
type Profile struct {
	SystemPrompt string   `yaml:"system_prompt"`
	Temperature  *float64 `yaml:"temperature"`
	MaxTokens    int      `yaml:"max_tokens"`
}

// Load reads config/setting.ini and config/<env>/chatrelay.ini under root,
// then applies CHATRELAY_* environment overrides.
func Load(root string) (Config, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return Config{}, err
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return Config{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}
	get := func(key string, aliases ...string) string {
		values := []string{os.Getenv(envPrefix + strings.ToUpper(key))}
		for _, a := range aliases {
			values = append(values, os.Getenv(a))
		}
		values = append(values, merged[key])
		return strings.TrimSpace(firstNonEmpty(values...))
	}

	cfg := Config{
		Environment:      firstNonEmpty(os.Getenv(envPrefix+"ENVIRONMENT"), s.Environment),
		HTTPAddress:      firstNonEmpty(get("http_address"), ":8787"),
		Provider:         strings.ToLower(get("provider")),
		Model:            firstNonEmpty(get("model"), "gpt-4o-mini"),
		ModelRoutes:      parseRouteList(get("model_routes")),
		OpenAIAPIKey:     get("openai_api_key", "OPENAI_API_KEY"),
		OpenAIBaseURL:    get("openai_base_url"),
		OpenAIOrg:        get("openai_org"),
		AnthropicAPIKey:  get("anthropic_api_key", "ANTHROPIC_API_KEY"),
		AnthropicBaseURL: get("anthropic_base_url"),
		AnthropicVersion: firstNonEmpty(get("anthropic_version"), "2023-06-01"),
		GeminiAPIKey:     get("gemini_api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY"),
		GeminiBaseURL:    get("gemini_base_url"),
		SystemPrompt:     get("system_prompt"),
		ProfileFile:      get("profile_file"),
		SmoothingEnabled: parseOptionalBool(get("smoothing_enabled"), true),
		LogLevel:         firstNonEmpty(get("log_level"), "info"),
		LogFormat:        firstNonEmpty(get("log_format"), "json"),
		LogFile:          get("log_file"),
		MetricsEnabled:   parseOptionalBool(get("metrics_enabled"), true),
	}

	if cfg.ValidationMode, err = chat.ParseMode(get("validation_mode")); err != nil {
		return Config{}, fmt.Errorf("invalid validation_mode: %w", err)
	}
	if cfg.Framing, err = stream.ParseFraming(get("framing")); err != nil {
		return Config{}, fmt.Errorf("invalid framing: %w", err)
	}

	durations := []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"smoothing_delay", &cfg.SmoothingDelay, 10 * time.Millisecond},
		{"request_timeout", &cfg.RequestTimeout, 5 * time.Minute},
		{"read_timeout", &cfg.ReadTimeout, 30 * time.Second},
		{"write_timeout", &cfg.WriteTimeout, 0},
		{"shutdown_timeout", &cfg.ShutdownTimeout, 10 * time.Second},
	}
	for _, d := range durations {
		if *d.dst, err = parseOptionalDuration(d.key, get(d.key), d.def); err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		key string
		dst *int
		def int
	}{
		{"anthropic_max_tokens", &cfg.AnthropicMaxTokens, 4096},
		{"max_tokens", &cfg.MaxTokens, 0},
		{"log_max_size_mb", &cfg.LogMaxSizeMB, 100},
		{"log_max_backups", &cfg.LogMaxBackups, 5},
		{"log_max_age_days", &cfg.LogMaxAgeDays, 14},
	}
	for _, n := range ints {
		if *n.dst, err = parseStrictInt(n.key, get(n.key), n.def); err != nil {
			return Config{}, err
		}
		if *n.dst < 0 {
			return Config{}, fmt.Errorf("invalid %s %d: must not be negative", n.key, *n.dst)
		}
	}

	maxBody, err := parseStrictInt("max_body_bytes", get("max_body_bytes"), 1<<20)
	if err != nil {
		return Config{}, err
	}
	if maxBody <= 0 {
		return Config{}, fmt.Errorf("invalid max_body_bytes %d: must be positive", maxBody)
	}
	cfg.MaxBodyBytes = int64(maxBody)

	if v := get("temperature"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid temperature %q: %w", v, err)
		}
		cfg.Temperature = &t
	}

	if cfg.ProfileFile != "" {
		path := cfg.ProfileFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		p, err := LoadProfile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.applyProfile(p)
	}
	return cfg, nil
}

// applyProfile fills generation settings the INI/env layers left unset.
func (c *Config) applyProfile(p Profile) {
	if c.SystemPrompt == "" {
		c.SystemPrompt = strings.TrimSpace(p.SystemPrompt)
	}
	if c.Temperature == nil && p.Temperature != nil {
		t := *p.Temperature
		c.Temperature = &t
	}
	if c.MaxTokens == 0 && p.MaxTokens > 0 {
		c.MaxTokens = p.MaxTokens
	}
}

// LoadProfile parses a YAML generation profile.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.MaxTokens < 0 {
		return Profile{}, fmt.Errorf("parse profile %s: max_tokens must not be negative", path)
	}
	return p, nil
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv, Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := values["environment"]
	if env == "" {
		env = defaultEnv
	}
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseOptionalBool(v string, fallback bool) bool {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return parseBool(v)
}

func parseStrictInt(key, v string, fallback int) (int, error) {
	if strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func parseOptionalDuration(key, v string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, v)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseRouteList preserves ordering for pattern=>target rules (comma or newline separated).
func parseRouteList(input string) []RouteRule {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	var rules []RouteRule
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		for _, part := range strings.Split(line, ",") {
			entry := strings.TrimSpace(part)
			if entry == "" {
				continue
			}
			var kv []string
			if strings.Contains(entry, "=>") {
				kv = strings.SplitN(entry, "=>", 2)
			} else {
				kv = strings.SplitN(entry, "=", 2)
			}
			if len(kv) != 2 {
				continue
			}
			pattern := strings.TrimSpace(kv[0])
			target := strings.TrimSpace(kv[1])
			if pattern == "" || target == "" {
				continue
			}
			rules = append(rules, RouteRule{Pattern: pattern, Target: target})
		}
	}
	if len(rules) == 0 {
		return nil
	}
	return rules
}
