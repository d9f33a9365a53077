package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yinsen/internal/domain"
	"yinsen/internal/infra/config"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(answering("b", "")))
	require.NoError(t, r.Register(answering("a", "")))
	assert.ErrorIs(t, r.Register(answering("a", "")), domain.ErrDuplicate)
	assert.Equal(t, []string{"a", "b"}, r.List())

	_, err := r.Get("zzz")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestBuildAndResolve(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "main",
		Providers: []config.ProviderConfig{
			{Name: "main", Type: "openai", Model: "gpt-4o-mini"},
			{Name: "backup", Type: "anthropic", Model: "claude"},
		},
		CircuitBreaker: config.CircuitBreakerConfig{Enabled: true},
	}
	reg, err := Build(context.Background(), cfg, newTestLogger())
	require.NoError(t, err)

	p, err := reg.Resolve("", cfg, newTestLogger())
	require.NoError(t, err)
	assert.IsType(t, &CircuitBreakerProvider{}, p)
	assert.Equal(t, "main", p.Name())

	cfg.Failover = config.FailoverConfig{Enabled: true, Fallbacks: []string{"main", "backup"}}
	p, err = reg.Resolve("", cfg, newTestLogger())
	require.NoError(t, err)
	assert.Equal(t, "main+failover", p.Name())

	p, err = reg.Resolve("backup", config.LLMConfig{}, newTestLogger())
	require.NoError(t, err)
	assert.Equal(t, "backup", p.Name())
}

func TestNewProviderUnknownType(t *testing.T) {
	_, err := NewProvider(context.Background(), config.ProviderConfig{Name: "x", Type: "gemini"}, newTestLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
