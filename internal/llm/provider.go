// Package llm wraps the text-generation backends used for extraction.
package llm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/hpungsan/wardrobe/internal/config"
)

// ErrUnknownProvider is returned by New for an unregistered name.
var ErrUnknownProvider = errors.New("unknown llm provider")

// Provider generates text for a prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Factory builds a provider from configuration.
type Factory func(cfg config.LLMConfig) (Provider, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds a provider factory under name, replacing any previous one.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the configured provider wrapped in a rate limiter.
func New(cfg config.LLMConfig) (Provider, error) {
	mu.RLock()
	f, ok := factories[cfg.Provider]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownProvider, cfg.Provider, Providers())
	}

	p, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", cfg.Provider, err)
	}
	return NewLimited(p, cfg.RequestsPerMinute, cfg.Burst), nil
}

func init() {
	Register(openAIName, newOpenAI)
	Register(httpName, newHTTP)
}

// IsRegistered reports whether name has a factory.
func IsRegistered(name string) bool {
	return slices.Contains(Providers(), name)
}
