package embed

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Factory Environment Variable Tests
// ============================================================================

func TestNewEmbedder_OllamaTimeoutEnvVar(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     time.Duration
	}{
		{name: "valid duration seconds", envValue: "120s", want: 120 * time.Second},
		{name: "valid duration minutes", envValue: "5m", want: 5 * time.Minute},
		{name: "invalid duration uses default", envValue: "invalid", want: DefaultTimeout},
		{name: "empty uses default", envValue: "", want: DefaultTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := os.Getenv("AMANMCP_OLLAMA_TIMEOUT")
			defer os.Setenv("AMANMCP_OLLAMA_TIMEOUT", orig)

			if tt.envValue != "" {
				os.Setenv("AMANMCP_OLLAMA_TIMEOUT", tt.envValue)
			} else {
				os.Unsetenv("AMANMCP_OLLAMA_TIMEOUT")
			}

			cfg := DefaultOllamaConfig()
			if timeoutStr := os.Getenv("AMANMCP_OLLAMA_TIMEOUT"); timeoutStr != "" {
				if timeout, err := time.ParseDuration(timeoutStr); err == nil {
					cfg.Timeout = timeout
				}
			}

			assert.Equal(t, tt.want, cfg.Timeout)
		})
	}
}

func TestDefaultTimeout_IsSixtySeconds(t *testing.T) {
	assert.Equal(t, 60*time.Second, DefaultTimeout,
		"DefaultTimeout should be 60s to handle large batch embeddings")
}

// ============================================================================
// Thermal Config Tests
// ============================================================================

func TestSetThermalConfig_AppliesConfigFileSettings(t *testing.T) {
	origConfig := globalThermalConfig
	defer func() { globalThermalConfig = origConfig }()

	cfg := ThermalConfig{
		InterBatchDelay:        500 * time.Millisecond,
		TimeoutProgression:     2.0,
		RetryTimeoutMultiplier: 1.5,
	}
	SetThermalConfig(cfg)

	assert.Equal(t, 500*time.Millisecond, globalThermalConfig.InterBatchDelay)
	assert.Equal(t, 2.0, globalThermalConfig.TimeoutProgression)
	assert.Equal(t, 1.5, globalThermalConfig.RetryTimeoutMultiplier)
}

func TestSetThermalConfig_EnvVarsOverrideConfigFile(t *testing.T) {
	origDelay := os.Getenv("AMANMCP_INTER_BATCH_DELAY")
	origProg := os.Getenv("AMANMCP_TIMEOUT_PROGRESSION")
	origRetry := os.Getenv("AMANMCP_RETRY_TIMEOUT_MULTIPLIER")
	defer func() {
		os.Setenv("AMANMCP_INTER_BATCH_DELAY", origDelay)
		os.Setenv("AMANMCP_TIMEOUT_PROGRESSION", origProg)
		os.Setenv("AMANMCP_RETRY_TIMEOUT_MULTIPLIER", origRetry)
	}()

	origConfig := globalThermalConfig
	defer func() { globalThermalConfig = origConfig }()

	SetThermalConfig(ThermalConfig{
		InterBatchDelay:        200 * time.Millisecond,
		TimeoutProgression:     1.5,
		RetryTimeoutMultiplier: 1.2,
	})

	os.Setenv("AMANMCP_INTER_BATCH_DELAY", "1s")
	os.Setenv("AMANMCP_TIMEOUT_PROGRESSION", "2.5")
	os.Setenv("AMANMCP_RETRY_TIMEOUT_MULTIPLIER", "1.8")

	cfg := DefaultOllamaConfig()
	if globalThermalConfig.InterBatchDelay > 0 {
		cfg.InterBatchDelay = globalThermalConfig.InterBatchDelay
	}
	if globalThermalConfig.TimeoutProgression >= 1.0 {
		cfg.TimeoutProgression = globalThermalConfig.TimeoutProgression
	}
	if globalThermalConfig.RetryTimeoutMultiplier >= 1.0 {
		cfg.RetryTimeoutMultiplier = globalThermalConfig.RetryTimeoutMultiplier
	}

	if delayStr := os.Getenv("AMANMCP_INTER_BATCH_DELAY"); delayStr != "" {
		if delay, err := time.ParseDuration(delayStr); err == nil {
			cfg.InterBatchDelay = delay
		}
	}
	if progStr := os.Getenv("AMANMCP_TIMEOUT_PROGRESSION"); progStr != "" {
		if prog, err := parseFloat64(progStr); err == nil {
			cfg.TimeoutProgression = prog
		}
	}
	if retryStr := os.Getenv("AMANMCP_RETRY_TIMEOUT_MULTIPLIER"); retryStr != "" {
		if mult, err := parseFloat64(retryStr); err == nil {
			cfg.RetryTimeoutMultiplier = mult
		}
	}

	assert.Equal(t, 1*time.Second, cfg.InterBatchDelay, "env var should override config file")
	assert.Equal(t, 2.5, cfg.TimeoutProgression, "env var should override config file")
	assert.Equal(t, 1.8, cfg.RetryTimeoutMultiplier, "env var should override config file")
}

func TestDefaultTimeouts_IncreasedForThermalThrottling(t *testing.T) {
	assert.Equal(t, 120*time.Second, DefaultWarmTimeout,
		"DefaultWarmTimeout should be 120s for thermal throttling")
	assert.Equal(t, 180*time.Second, DefaultColdTimeout,
		"DefaultColdTimeout should be 180s for slower hardware")
}

// ============================================================================
// No silent fallback
// ============================================================================

func TestNewEmbedder_OllamaUnavailable_ReturnsError(t *testing.T) {
	origHost := os.Getenv("AMANMCP_OLLAMA_HOST")
	defer os.Setenv("AMANMCP_OLLAMA_HOST", origHost)
	os.Setenv("AMANMCP_OLLAMA_HOST", "http://localhost:59999")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	embedder, err := NewEmbedder(ctx, ProviderOllama, "")
	require.Error(t, err, "should error when ollama is unavailable, not fall back")
	assert.Nil(t, embedder)
	assert.Contains(t, err.Error(), "ollama unavailable")
}

func TestNewEmbedder_RemoteProviderMissingAPIKey_ReturnsConfigError(t *testing.T) {
	for _, key := range []string{"OPENAI_API_KEY", "COHERE_API_KEY", "VOYAGE_API_KEY"} {
		orig := os.Getenv(key)
		os.Unsetenv(key)
		defer os.Setenv(key, orig)
	}

	tests := []struct {
		provider ProviderType
	}{
		{ProviderOpenAI},
		{ProviderCohere},
		{ProviderVoyage},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			_, err := NewEmbedder(context.Background(), tt.provider, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "API key")
		})
	}
}

func TestNewEmbedder_RemoteProviderWithAPIKey_Succeeds(t *testing.T) {
	origKey := os.Getenv("OPENAI_API_KEY")
	defer os.Setenv("OPENAI_API_KEY", origKey)
	os.Setenv("OPENAI_API_KEY", "sk-test")

	origCache := os.Getenv("EMBEDDING_CACHE")
	defer os.Setenv("EMBEDDING_CACHE", origCache)
	os.Setenv("EMBEDDING_CACHE", "false")

	embedder, err := NewEmbedder(context.Background(), ProviderOpenAI, "")
	require.NoError(t, err)
	require.NotNil(t, embedder)
	assert.Equal(t, "text-embedding-3-small", embedder.ModelName())
}

func TestNewEmbedder_EnvProviderOverride(t *testing.T) {
	origProvider := os.Getenv("EMBEDDING_PROVIDER")
	origKey := os.Getenv("COHERE_API_KEY")
	defer func() {
		os.Setenv("EMBEDDING_PROVIDER", origProvider)
		os.Setenv("COHERE_API_KEY", origKey)
	}()
	os.Setenv("EMBEDDING_PROVIDER", "cohere")
	os.Setenv("COHERE_API_KEY", "key")

	embedder, err := NewEmbedder(context.Background(), ProviderOllama, "")
	require.NoError(t, err)
	assert.Equal(t, "embed-english-v3.0", embedder.ModelName())
}

// ============================================================================
// ParseProvider / ValidProviders
// ============================================================================

func TestParseProvider(t *testing.T) {
	assert.Equal(t, ProviderOpenAI, ParseProvider("openai"))
	assert.Equal(t, ProviderCohere, ParseProvider("Cohere"))
	assert.Equal(t, ProviderVoyage, ParseProvider("VOYAGE"))
	assert.Equal(t, ProviderOllama, ParseProvider("ollama"))
	assert.Equal(t, ProviderOllama, ParseProvider("unknown"))
}

func TestIsValidProvider(t *testing.T) {
	assert.True(t, IsValidProvider("openai"))
	assert.True(t, IsValidProvider("ollama"))
	assert.False(t, IsValidProvider("mlx"))
	assert.False(t, IsValidProvider("static"))
}

// ============================================================================
// isOllamaModelName Tests
// ============================================================================

func TestIsOllamaModelName_WithTag(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "ollama model with tag", model: "nomic-embed-text:latest", want: true},
		{name: "qwen3 with size tag", model: "qwen3-embedding:8b", want: true},
		{name: "model with version tag", model: "bge-small:v1.5", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOllamaModelName(tt.model))
		})
	}
}

func TestIsOllamaModelName_GGUFExtension(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "gguf file", model: "model.gguf", want: false},
		{name: "gguf with path", model: "/path/to/nomic-embed-text.gguf", want: false},
		{name: "uppercase GGUF", model: "model.GGUF", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOllamaModelName(tt.model))
		})
	}
}

func TestIsOllamaModelName_VersionPattern(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "model with version number", model: "nomic-embed-text-v1.5", want: false},
		{name: "bge with version", model: "bge-small-en-v1.5", want: false},
		{name: "v1 suffix", model: "model-v1", want: false},
		{name: "v2 suffix", model: "model-v2", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOllamaModelName(tt.model))
		})
	}
}

func TestIsOllamaModelName_PlainNames(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "plain name no tag", model: "nomic-embed-text", want: false},
		{name: "single word", model: "embedding", want: false},
		{name: "empty string", model: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOllamaModelName(tt.model))
		})
	}
}
