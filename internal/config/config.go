// Package config provides configuration management for the proxy server.
// It handles loading and parsing YAML configuration files, and provides structured
// access to application settings including server port, debug settings, proxy
// configuration, reasoning rendering, and API keys.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port"`

	// Debug enables or disables debug-level logging and other debug features.
	Debug bool `yaml:"debug"`

	// LoggingToFile routes application logs into rotated files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file"`

	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url"`

	// APIKeys is a list of keys for authenticating clients to this proxy server.
	APIKeys []string `yaml:"api-keys"`

	// RequestLog enables or disables detailed request logging functionality.
	RequestLog bool `yaml:"request-log"`

	// Reasoning controls how upstream reasoning text is rendered for clients.
	Reasoning Reasoning `yaml:"reasoning"`

	// NIM is the upstream NVIDIA NIM endpoint configuration.
	NIM NIM `yaml:"nim"`

	// AllowLocalhostUnauthenticated allows unauthenticated requests from localhost.
	AllowLocalhostUnauthenticated bool `yaml:"allow-localhost-unauthenticated"`
}

// Reasoning configures the rendering of reasoning deltas in responses.
type Reasoning struct {
	// Display controls whether reasoning text is spliced into the content
	// stream wrapped in think markers. When false, reasoning is dropped.
	Display *bool `yaml:"display"`
}

// DisplayEnabled reports whether reasoning text should be shown. Unset
// defaults to true.
func (r *Reasoning) DisplayEnabled() bool {
	return r.Display == nil || *r.Display
}

// NIM represents the configuration for the NVIDIA NIM upstream,
// including the endpoint, API keys and extra model alias rows.
type NIM struct {
	// BaseURL is the base URL for the NIM OpenAI-compatible API endpoint.
	// If empty, the default integrate.api.nvidia.com endpoint is used.
	BaseURL string `yaml:"base-url"`

	// APIKeys are the authentication keys for accessing the NIM API.
	APIKeys []string `yaml:"api-keys"`

	// Models defines extra model rows merged over the built-in table.
	Models []NIMModel `yaml:"models"`
}

// NIMModel represents a model row for the NIM upstream, mapping the alias
// clients use to the identifier NIM expects.
type NIMModel struct {
	// Name is the actual model identifier used by NIM (e.g., "deepseek-ai/deepseek-r1").
	Name string `yaml:"name"`

	// Alias is the model name clients use to reference this model.
	Alias string `yaml:"alias"`
}

// LoadConfig reads a YAML configuration file from the given path,
// unmarshals it into a Config struct, applies environment variable overrides,
// and returns it.
//
// Parameters:
//   - configFile: The path to the YAML configuration file
//
// Returns:
//   - *Config: The loaded configuration
//   - error: An error if the configuration could not be loaded
func LoadConfig(configFile string) (*Config, error) {
	// Read the entire configuration file into memory.
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal the YAML data into the Config struct.
	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if key := os.Getenv("NIM_API_KEY"); key != "" {
		config.NIM.APIKeys = append(config.NIM.APIKeys, key)
	}

	// Return the populated configuration struct.
	return &config, nil
}
