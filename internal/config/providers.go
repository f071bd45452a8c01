package config

import (
	"fmt"
	"os"
	"time"

	"emberscan/internal/ethereum"

	"gopkg.in/yaml.v3"
)

// ProviderConfig represents a single RPC provider configuration
type ProviderConfig struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Weight  int           `yaml:"weight"`
	Timeout time.Duration `yaml:"timeout"`
}

// ProvidersConfig holds the complete provider configuration
type ProvidersConfig struct {
	Providers      []ProviderConfig   `yaml:"providers"`
	CircuitBreaker CircuitBreakerYAML `yaml:"circuit_breaker"`
}

// CircuitBreakerYAML holds circuit breaker configuration from YAML
type CircuitBreakerYAML struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// LoadProvidersFromYAML loads provider configuration from a YAML file
// Falls back to single provider from env if file doesn't exist
func LoadProvidersFromYAML(filePath string, fallbackURL string) ([]*ethereum.Provider, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if fallbackURL == "" {
			return nil, fmt.Errorf("no provider config file found and no fallback URL provided")
		}

		provider, err := ethereum.NewProvider("default", fallbackURL, 10, 30*time.Second, ethereum.DefaultBreakerConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create fallback provider: %w", err)
		}
		return []*ethereum.Provider{provider}, nil
	}

	var config ProvidersConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse provider config: %w", err)
	}

	if len(config.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured in YAML file")
	}

	cbConfig := ethereum.BreakerConfig{
		FailureThreshold: config.CircuitBreaker.FailureThreshold,
		SuccessThreshold: config.CircuitBreaker.SuccessThreshold,
		Cooldown:         config.CircuitBreaker.Cooldown,
	}
	if cbConfig.FailureThreshold == 0 {
		cbConfig = ethereum.DefaultBreakerConfig()
	}

	providers := make([]*ethereum.Provider, 0, len(config.Providers))
	for _, pConfig := range config.Providers {
		if pConfig.URL == "" {
			continue // Skip invalid entries
		}

		if pConfig.Weight == 0 {
			pConfig.Weight = 1
		}
		if pConfig.Timeout == 0 {
			pConfig.Timeout = 30 * time.Second
		}

		provider, err := ethereum.NewProvider(pConfig.Name, pConfig.URL, pConfig.Weight, pConfig.Timeout, cbConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider %s: %w", pConfig.Name, err)
		}
		providers = append(providers, provider)
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no valid providers created from config")
	}

	return providers, nil
}
