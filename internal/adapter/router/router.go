package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tokligence/chatrelay/internal/adapter"
)

// DefaultRules maps well-known model families to provider names. They apply
// only when the deployment does not name a provider explicitly.
var DefaultRules = []Rule{
	{Pattern: "loopback", Provider: "loopback"},
	{Pattern: "gpt-*", Provider: "openai"},
	{Pattern: "chatgpt-*", Provider: "openai"},
	{Pattern: "o1*", Provider: "openai"},
	{Pattern: "o3*", Provider: "openai"},
	{Pattern: "o4*", Provider: "openai"},
	{Pattern: "claude*", Provider: "anthropic"},
	{Pattern: "gemini*", Provider: "gemini"},
}

// Rule is an ordered model pattern => provider mapping.
type Rule struct {
	Pattern  string
	Provider string
}

// Router resolves which provider factory serves a model id.
type Router struct {
	mu        sync.RWMutex
	providers map[string]adapter.Factory
	rules     []Rule
	fallback  string
}

// New creates an empty Router.
func New() *Router {
	return &Router{providers: make(map[string]adapter.Factory)}
}

// RegisterProvider registers a provider factory under a name.
func (r *Router) RegisterProvider(name string, factory adapter.Factory) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return errors.New("router: provider name cannot be empty")
	}
	if factory == nil {
		return errors.New("router: provider factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = factory
	return nil
}

// RegisterRoute appends a model pattern rule. Rules are matched in
// registration order. Model patterns support:
// - Exact match: "gpt-4o"
// - Prefix match: "gpt-*"
// - Suffix match: "*-turbo"
// - Contains match: "*mini*"
func (r *Router) RegisterRoute(modelPattern, provider string) error {
	if strings.TrimSpace(modelPattern) == "" {
		return errors.New("router: model pattern cannot be empty")
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return errors.New("router: provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[provider]; !exists {
		return fmt.Errorf("router: provider %q not registered", provider)
	}
	r.rules = append(r.rules, Rule{Pattern: strings.ToLower(strings.TrimSpace(modelPattern)), Provider: provider})
	return nil
}

// SetFallback names the provider used when no rule matches.
func (r *Router) SetFallback(provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[provider]; !exists {
		return fmt.Errorf("router: provider %q not registered", provider)
	}
	r.fallback = provider
	return nil
}

// Resolve returns the provider name serving model.
func (r *Router) Resolve(model string) (string, error) {
	model = strings.ToLower(strings.TrimSpace(model))
	if model == "" {
		return "", errors.New("router: model name required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rule := range r.rules {
		if matchPattern(model, rule.Pattern) {
			return rule.Provider, nil
		}
	}
	if r.fallback != "" {
		return r.fallback, nil
	}
	return "", fmt.Errorf("router: no provider found for model %q", model)
}

// Factory returns the factory registered under name.
func (r *Router) Factory(name string) (adapter.Factory, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("router: provider %q not registered", name)
	}
	return f, nil
}

// Select picks the factory for a deployment: an explicit provider name wins,
// otherwise the model id is resolved through the rules.
func (r *Router) Select(provider, model string) (adapter.Factory, string, error) {
	name := strings.TrimSpace(provider)
	if name == "" {
		resolved, err := r.Resolve(model)
		if err != nil {
			return nil, "", err
		}
		name = resolved
	}
	f, err := r.Factory(name)
	if err != nil {
		return nil, "", err
	}
	return f, strings.ToLower(name), nil
}

// matchPattern checks if a model matches a pattern.
func matchPattern(model, pattern string) bool {
	model = strings.ToLower(model)
	pattern = strings.ToLower(pattern)

	if model == pattern {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	// Prefix match: "gpt-*"
	if strings.HasSuffix(pattern, "*") && !strings.HasPrefix(pattern, "*") {
		return strings.HasPrefix(model, strings.TrimSuffix(pattern, "*"))
	}

	// Suffix match: "*-turbo"
	if strings.HasPrefix(pattern, "*") && !strings.HasSuffix(pattern, "*") {
		return strings.HasSuffix(model, strings.TrimPrefix(pattern, "*"))
	}

	// Contains match: "*mini*"
	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") {
		return strings.Contains(model, strings.Trim(pattern, "*"))
	}

	return false
}

// ListProviders returns registered provider names, sorted.
func (r *Router) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListRoutes returns the rules in match order.
func (r *Router) ListRoutes() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}
