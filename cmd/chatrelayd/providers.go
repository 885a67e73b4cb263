package main

import (
	"github.com/tokligence/chatrelay/internal/adapter"
	"github.com/tokligence/chatrelay/internal/adapter/anthropic"
	"github.com/tokligence/chatrelay/internal/adapter/gemini"
	"github.com/tokligence/chatrelay/internal/adapter/loopback"
	"github.com/tokligence/chatrelay/internal/adapter/openai"
	"github.com/tokligence/chatrelay/internal/adapter/router"
	"github.com/tokligence/chatrelay/internal/config"
)

// newProviderRouter registers one factory per provider. Factories run per
// request, so a missing API key surfaces as a 500 on /chat rather than a
// startup failure.
func newProviderRouter(cfg config.Config) (*router.Router, error) {
	r := router.New()
	factories := map[string]adapter.Factory{
		"openai": func() (adapter.Provider, error) {
			p, err := openai.New(openai.Config{
				APIKey:         cfg.OpenAIAPIKey,
				BaseURL:        cfg.OpenAIBaseURL,
				Organization:   cfg.OpenAIOrg,
				RequestTimeout: cfg.RequestTimeout,
			})
			return asProvider(p, err)
		},
		"anthropic": func() (adapter.Provider, error) {
			p, err := anthropic.New(anthropic.Config{
				APIKey:         cfg.AnthropicAPIKey,
				BaseURL:        cfg.AnthropicBaseURL,
				Version:        cfg.AnthropicVersion,
				MaxTokens:      cfg.AnthropicMaxTokens,
				RequestTimeout: cfg.RequestTimeout,
			})
			return asProvider(p, err)
		},
		"gemini": func() (adapter.Provider, error) {
			p, err := gemini.New(gemini.Config{
				APIKey:         cfg.GeminiAPIKey,
				BaseURL:        cfg.GeminiBaseURL,
				RequestTimeout: cfg.RequestTimeout,
			})
			return asProvider(p, err)
		},
		"loopback": func() (adapter.Provider, error) {
			return loopback.New(0), nil
		},
	}
	for name, f := range factories {
		if err := r.RegisterProvider(name, f); err != nil {
			return nil, err
		}
	}
	for _, rule := range cfg.ModelRoutes {
		if err := r.RegisterRoute(rule.Pattern, rule.Target); err != nil {
			return nil, err
		}
	}
	for _, rule := range router.DefaultRules {
		if err := r.RegisterRoute(rule.Pattern, rule.Provider); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// asProvider keeps a failed constructor's typed nil out of the interface.
func asProvider[P adapter.Provider](p P, err error) (adapter.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
