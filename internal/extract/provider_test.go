package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct{ name string }

func (a *stubAdapter) Extract(_ context.Context, _ []byte, _ string) ([]RawEntry, error) {
	return nil, nil
}

func TestProviderAdapterFor(t *testing.T) {
	shared := &stubAdapter{name: "shared"}

	built := 0
	p := &Provider{
		defaultAdapter: shared,
		adapters:       make(map[string]Adapter),
	}
	p.newAdapter = func(_ context.Context, apiKey string) (Adapter, error) {
		built++
		return &stubAdapter{name: apiKey}, nil
	}

	t.Run("empty key returns shared adapter", func(t *testing.T) {
		adapter, err := p.AdapterFor(context.Background(), "")
		require.NoError(t, err)
		assert.Same(t, shared, adapter)
		assert.Zero(t, built)
	})

	t.Run("override key builds and caches one client", func(t *testing.T) {
		first, err := p.AdapterFor(context.Background(), "tenant-key")
		require.NoError(t, err)
		second, err := p.AdapterFor(context.Background(), "tenant-key")
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, built)
	})

	t.Run("construction failure surfaces", func(t *testing.T) {
		p.newAdapter = func(_ context.Context, _ string) (Adapter, error) {
			return nil, errors.New("bad key")
		}
		_, err := p.AdapterFor(context.Background(), "broken-key")
		assert.Error(t, err)
	})
}
