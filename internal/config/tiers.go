package config

import (
	"fmt"
	"os"
	"time"

	"emberscan/internal/querycache"

	"gopkg.in/yaml.v3"
)

// TiersYAML maps cache domains to TTL overrides, e.g.
//
//	tiers:
//	  balance: 10s
//	  gasPrice: 30s
type TiersYAML struct {
	Tiers map[string]string `yaml:"tiers"`
}

// LoadTiersFromYAML returns the default staleness tiers, with per-domain
// overrides applied from the given YAML file when it exists. An empty path
// means defaults only.
func LoadTiersFromYAML(filePath string) (*querycache.TierTable, error) {
	tiers := querycache.DefaultTiers()
	if filePath == "" {
		return tiers, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tiers config: %w", err)
	}

	var raw TiersYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tiers config: %w", err)
	}

	for domain, ttlStr := range raw.Tiers {
		ttl, err := time.ParseDuration(ttlStr)
		if err != nil {
			return nil, fmt.Errorf("invalid TTL for domain %s: %w", domain, err)
		}
		tiers.Override(domain, ttl)
	}

	return tiers, nil
}
