package extract

import (
	"context"
	"log/slog"
	"sync"
)

// Provider hands out adapters, honoring per-tenant API key overrides. An
// empty key maps to the shared default adapter; override keys get their own
// client, cached so repeated jobs for the same tenant reuse it.
type Provider struct {
	defaultAdapter Adapter
	newAdapter     func(ctx context.Context, apiKey string) (Adapter, error)

	mu       sync.Mutex
	adapters map[string]Adapter
}

// NewProvider creates a provider that builds Gemini adapters for override
// keys and falls back to defaultAdapter otherwise.
func NewProvider(defaultAdapter Adapter, model string, logger *slog.Logger) *Provider {
	p := &Provider{
		defaultAdapter: defaultAdapter,
		adapters:       make(map[string]Adapter),
	}
	p.newAdapter = func(ctx context.Context, apiKey string) (Adapter, error) {
		return NewGeminiAdapter(ctx, apiKey, model, logger)
	}
	return p
}

// AdapterFor returns the adapter for the given API key. An empty key always
// succeeds with the default adapter.
func (p *Provider) AdapterFor(ctx context.Context, apiKey string) (Adapter, error) {
	if apiKey == "" {
		return p.defaultAdapter, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if adapter, ok := p.adapters[apiKey]; ok {
		return adapter, nil
	}

	adapter, err := p.newAdapter(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	p.adapters[apiKey] = adapter

	return adapter, nil
}
