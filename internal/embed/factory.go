package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	qerrors "github.com/mhalder/qdrant-mcp-server-sub001/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOllama uses a local Ollama server (default, no API key required)
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses an OpenAI-compatible /embeddings endpoint
	ProviderOpenAI ProviderType = "openai"

	// ProviderCohere uses a Cohere-compatible /embeddings endpoint
	ProviderCohere ProviderType = "cohere"

	// ProviderVoyage uses a Voyage-compatible /embeddings endpoint
	ProviderVoyage ProviderType = "voyage"
)

// NewEmbedder creates an embedder for the given provider. The
// EMBEDDING_PROVIDER environment variable overrides provider when set.
// Remote backends (openai/cohere/voyage) fail fast with a ConfigError
// when their API key is missing — there is no silent fallback to
// another provider or to a hash-based stand-in.
func NewEmbedder(ctx context.Context, provider ProviderType, model string) (Embedder, error) {
	if envProvider := os.Getenv("EMBEDDING_PROVIDER"); envProvider != "" {
		provider = ParseProvider(envProvider)
	}
	if envModel := os.Getenv("EMBEDDING_MODEL"); envModel != "" {
		model = envModel
	}

	var embedder Embedder
	var err error

	switch provider {
	case ProviderOpenAI:
		embedder, err = newOpenAIFromEnv(model)
	case ProviderCohere:
		embedder, err = newCohereFromEnv(model)
	case ProviderVoyage:
		embedder, err = newVoyageFromEnv(model)
	case ProviderOllama:
		embedder, err = newOllamaEmbedder(ctx, model)
	default:
		embedder, err = newOllamaEmbedder(ctx, model)
	}
	if err != nil {
		return nil, err
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedderWithDefaults(embedder)
	}
	return embedder, nil
}

// isCacheDisabled checks if embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("EMBEDDING_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// remoteConfigFromEnv builds the shared OpenAI-style config fields from
// environment variables common to every remote backend.
func remoteConfigFromEnv(apiKey, model string) OpenAIStyleConfig {
	cfg := OpenAIStyleConfig{APIKey: apiKey, Model: model}
	if baseURL := os.Getenv("EMBEDDING_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if dimsStr := os.Getenv("EMBEDDING_DIMENSIONS"); dimsStr != "" {
		if dims, err := strconv.Atoi(dimsStr); err == nil && dims > 0 {
			cfg.Dimensions = dims
		}
	}
	return cfg
}

func newOpenAIFromEnv(model string) (Embedder, error) {
	return NewOpenAIEmbedder(remoteConfigFromEnv(os.Getenv("OPENAI_API_KEY"), model))
}

func newCohereFromEnv(model string) (Embedder, error) {
	return NewCohereEmbedder(remoteConfigFromEnv(os.Getenv("COHERE_API_KEY"), model))
}

func newVoyageFromEnv(model string) (Embedder, error) {
	return NewVoyageEmbedder(remoteConfigFromEnv(os.Getenv("VOYAGE_API_KEY"), model))
}

// SchedulerConfigFromEnv builds a Scheduler configuration for provider
// from EMBEDDING_MAX_REQUESTS_PER_MINUTE, EMBEDDING_RETRY_ATTEMPTS, and
// EMBEDDING_RETRY_DELAY, falling back to DefaultSchedulerConfig.
func SchedulerConfigFromEnv(provider string) *Scheduler {
	cfg := DefaultSchedulerConfig()
	if rpmStr := os.Getenv("EMBEDDING_MAX_REQUESTS_PER_MINUTE"); rpmStr != "" {
		if rpm, err := strconv.Atoi(rpmStr); err == nil && rpm > 0 {
			cfg.MinCallSpacing = time.Minute / time.Duration(rpm)
		}
	}
	if attemptsStr := os.Getenv("EMBEDDING_RETRY_ATTEMPTS"); attemptsStr != "" {
		if attempts, err := strconv.Atoi(attemptsStr); err == nil && attempts > 0 {
			cfg.MaxRetries = attempts
		}
	}
	if delayStr := os.Getenv("EMBEDDING_RETRY_DELAY"); delayStr != "" {
		if delay, err := time.ParseDuration(delayStr); err == nil && delay > 0 {
			cfg.BaseRetryDelay = delay
		}
	}
	return NewScheduler(provider, cfg)
}

// newOllamaEmbedder creates the local Ollama embedder, honoring the
// same host/model/timeout/thermal overrides the teacher wired before.
func newOllamaEmbedder(ctx context.Context, model string) (Embedder, error) {
	cfg := DefaultOllamaConfig()
	if model != "" && isOllamaModelName(model) {
		cfg.Model = model
	}

	if host := os.Getenv("AMANMCP_OLLAMA_HOST"); host != "" {
		cfg.Host = host
	}
	if modelOverride := os.Getenv("AMANMCP_OLLAMA_MODEL"); modelOverride != "" {
		cfg.Model = modelOverride
	}
	if timeoutStr := os.Getenv("AMANMCP_OLLAMA_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	if globalThermalConfig.InterBatchDelay > 0 {
		delay := globalThermalConfig.InterBatchDelay
		if delay > MaxInterBatchDelay {
			delay = MaxInterBatchDelay
		}
		cfg.InterBatchDelay = delay
	}
	if globalThermalConfig.TimeoutProgression >= 1.0 {
		progression := globalThermalConfig.TimeoutProgression
		if progression > MaxTimeoutProgression {
			progression = MaxTimeoutProgression
		}
		cfg.TimeoutProgression = progression
	}
	if globalThermalConfig.RetryTimeoutMultiplier >= 1.0 {
		mult := globalThermalConfig.RetryTimeoutMultiplier
		if mult > MaxRetryTimeoutMultiplier {
			mult = MaxRetryTimeoutMultiplier
		}
		cfg.RetryTimeoutMultiplier = mult
	}

	if delayStr := os.Getenv("AMANMCP_INTER_BATCH_DELAY"); delayStr != "" {
		if delay, err := time.ParseDuration(delayStr); err == nil && delay >= 0 {
			if delay > MaxInterBatchDelay {
				delay = MaxInterBatchDelay
			}
			cfg.InterBatchDelay = delay
		}
	}
	if progressionStr := os.Getenv("AMANMCP_TIMEOUT_PROGRESSION"); progressionStr != "" {
		if progression, err := parseFloat64(progressionStr); err == nil && progression >= 1.0 {
			if progression > MaxTimeoutProgression {
				progression = MaxTimeoutProgression
			}
			cfg.TimeoutProgression = progression
		}
	}
	if retryMultStr := os.Getenv("AMANMCP_RETRY_TIMEOUT_MULTIPLIER"); retryMultStr != "" {
		if mult, err := parseFloat64(retryMultStr); err == nil && mult >= 1.0 {
			if mult > MaxRetryTimeoutMultiplier {
				mult = MaxRetryTimeoutMultiplier
			}
			cfg.RetryTimeoutMultiplier = mult
		}
	}

	embedder, err := NewOllamaEmbedder(ctx, cfg)
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeNetworkUnavailable,
			fmt.Sprintf("ollama unavailable: %v (start it with `ollama serve`, or set EMBEDDING_PROVIDER=openai|cohere|voyage with the matching API key)", err), err)
	}
	return embedder, nil
}

// ThermalConfig holds thermal management settings loaded from config.yaml.
type ThermalConfig struct {
	InterBatchDelay        time.Duration // Pause between batches for GPU cooling
	TimeoutProgression     float64       // Timeout multiplier for later batches (1.0-3.0)
	RetryTimeoutMultiplier float64       // Timeout multiplier per retry (1.0-2.0)
}

// globalThermalConfig holds config file settings set via SetThermalConfig.
// Env vars take precedence over these values.
var globalThermalConfig ThermalConfig

// SetThermalConfig sets thermal management config from the user's config.yaml.
// This should be called before NewEmbedder() to ensure config file settings are used.
// Environment variables still take precedence over config file settings.
func SetThermalConfig(cfg ThermalConfig) {
	globalThermalConfig = cfg
	if cfg.InterBatchDelay > 0 || cfg.TimeoutProgression != 0 || cfg.RetryTimeoutMultiplier != 0 {
		slog.Debug("thermal_config_set",
			slog.Duration("inter_batch_delay", cfg.InterBatchDelay),
			slog.Float64("timeout_progression", cfg.TimeoutProgression),
			slog.Float64("retry_timeout_multiplier", cfg.RetryTimeoutMultiplier))
	}
}

// ParseProvider converts a string to ProviderType, defaulting to Ollama
// for unrecognized values.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "openai":
		return ProviderOpenAI
	case "cohere":
		return ProviderCohere
	case "voyage", "voyageai":
		return ProviderVoyage
	case "ollama", "llama":
		return ProviderOllama
	default:
		return ProviderOllama
	}
}

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// isOllamaModelName checks if a model name looks like an Ollama model.
// Ollama models have a ":" tag (e.g., "qwen3-embedding:8b").
func isOllamaModelName(model string) bool {
	if strings.Contains(model, ":") {
		return true
	}
	if strings.Contains(model, "-v") && (strings.Contains(model, ".") || strings.HasSuffix(model, "-v1") || strings.HasSuffix(model, "-v2")) {
		return false
	}
	if strings.HasSuffix(strings.ToLower(model), ".gguf") {
		return false
	}
	return false
}

// ValidProviders returns all valid provider names
func ValidProviders() []string {
	return []string{
		string(ProviderOllama),
		string(ProviderOpenAI),
		string(ProviderCohere),
		string(ProviderVoyage),
	}
}

// IsValidProvider checks if a provider name is valid
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// EmbedderInfo contains information about an embedder
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	case *OpenAIEmbedder:
		info.Provider = ParseProvider(inferRemoteProviderName(inner.(*OpenAIEmbedder)))
	default:
		info.Provider = ProviderOllama
	}

	return info
}

// inferRemoteProviderName guesses which remote backend an OpenAIEmbedder
// was constructed for, from its base URL, since all three share the
// same underlying type.
func inferRemoteProviderName(e *OpenAIEmbedder) string {
	switch {
	case strings.Contains(e.cfg.BaseURL, "cohere"):
		return "cohere"
	case strings.Contains(e.cfg.BaseURL, "voyageai"):
		return "voyage"
	default:
		return "openai"
	}
}

// MustNewEmbedder creates an embedder and panics on failure
// Use only in tests or initialization code where failure is fatal
func MustNewEmbedder(ctx context.Context, provider ProviderType, model string) Embedder {
	embedder, err := NewEmbedder(ctx, provider, model)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}

// parseFloat64 parses a string to float64, used for thermal config parsing
func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
