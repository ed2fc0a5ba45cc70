package upstream

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig is the optional file-based configuration for the upstream
// Game API. Environment values take precedence when both are set; the file
// exists so deployments can version upstream settings alongside the code.
type ProviderConfig struct {
	// BaseURL is the Game API base URL.
	BaseURL string `yaml:"base_url"`
	// Timeout is the per-attempt upstream timeout.
	Timeout time.Duration `yaml:"timeout"`
	// TokenEndpoint overrides the credential-exchange path.
	TokenEndpoint string `yaml:"token_endpoint"`
}

// LoadProviderConfig loads upstream provider configuration from a YAML file.
func LoadProviderConfig(filePath string) (*ProviderConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider config: %w", err)
	}

	var config ProviderConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse provider config: %w", err)
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("provider config has empty base_url")
	}
	return &config, nil
}
