package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/reservo/brain/internal/config"
)

// NewProvider creates the reasoning provider based on configuration.
// It backs the slow pipeline stages: conflict detection, quality evaluation,
// goal decomposition, and response proposal.
func NewProvider(cfg *config.Config) (Provider, error) {
	return newNamedProvider(cfg, cfg.Oracle.DefaultProvider)
}

// NewFastProvider creates the fast provider used for intent prediction, which
// runs on every turn. When no fast provider is configured the reasoning
// provider is reused.
func NewFastProvider(cfg *config.Config) (Provider, error) {
	name := cfg.Oracle.FastProvider
	if name == "" {
		name = cfg.Oracle.DefaultProvider
	}
	return newNamedProvider(cfg, name)
}

func newNamedProvider(cfg *config.Config, providerName string) (Provider, error) {
	if providerName == "" {
		providerName = "ollama"
	}

	providerCfg, exists := cfg.Oracle.Providers[providerName]
	if !exists {
		return nil, fmt.Errorf("provider '%s' not found in configuration", providerName)
	}

	// Get API key from config, falling back to environment variables
	apiKey := providerCfg.APIKey
	if apiKey == "" {
		apiKey = getAPIKeyFromEnv(providerName)
	}

	llmCfg := &ProviderConfig{
		Name:     providerName,
		Endpoint: providerCfg.Endpoint,
		APIKey:   apiKey,
		Model:    providerCfg.Model,
	}

	return NewProviderByNameWithConfig(providerName, llmCfg, providerCfg.Timeouts)
}

// getAPIKeyFromEnv retrieves the API key from standard environment variables.
func getAPIKeyFromEnv(providerName string) string {
	envVars := map[string]string{
		"openai": "OPENAI_API_KEY",
	}
	if envVar, ok := envVars[providerName]; ok {
		return os.Getenv(envVar)
	}
	return ""
}

// NewProviderByNameWithConfig creates a provider with optional timeout configuration.
func NewProviderByNameWithConfig(name string, cfg *ProviderConfig, timeouts *config.TimeoutConfig) (Provider, error) {
	switch name {
	case "ollama":
		opts := buildOllamaOptions(timeouts)
		ollamaProvider := NewOllamaProvider(cfg, opts...)

		// Always trigger warmup for Ollama to avoid cold start delays.
		// This runs in background and doesn't block startup; the first
		// turn would otherwise wait 30-90+ seconds for model loading.
		if ollamaProvider.Available() {
			ollamaProvider.WarmupAsync(context.Background())
		}

		return ollamaProvider, nil
	case "openai":
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

// buildOllamaOptions converts config.TimeoutConfig to OllamaOptions.
func buildOllamaOptions(timeouts *config.TimeoutConfig) []OllamaOption {
	if timeouts == nil {
		return nil
	}

	var opts []OllamaOption

	if timeouts.ConnectionTimeoutSec > 0 {
		opts = append(opts, WithConnectionTimeout(time.Duration(timeouts.ConnectionTimeoutSec)*time.Second))
	}
	if timeouts.FirstTokenTimeoutSec > 0 {
		opts = append(opts, WithFirstTokenTimeout(time.Duration(timeouts.FirstTokenTimeoutSec)*time.Second))
	}
	if timeouts.StreamIdleTimeoutSec > 0 {
		opts = append(opts, WithStreamIdleTimeout(time.Duration(timeouts.StreamIdleTimeoutSec)*time.Second))
	}

	return opts
}

// NewProviderByName creates a specific provider by name (without custom timeout config).
func NewProviderByName(name string, cfg *ProviderConfig) (Provider, error) {
	return NewProviderByNameWithConfig(name, cfg, nil)
}

// AvailableProviders returns a list of configured and available providers.
func AvailableProviders(cfg *config.Config) []string {
	var available []string

	for name, providerCfg := range cfg.Oracle.Providers {
		llmCfg := &ProviderConfig{
			Name:     name,
			Endpoint: providerCfg.Endpoint,
			APIKey:   providerCfg.APIKey,
			Model:    providerCfg.Model,
		}

		provider, err := NewProviderByName(name, llmCfg)
		if err != nil {
			continue
		}

		if provider.Available() {
			available = append(available, name)
		}
	}

	return available
}
