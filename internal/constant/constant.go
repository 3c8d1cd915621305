// Package constant defines identifiers shared across the proxy. These
// constants name the supported API formats and the upstream provider,
// ensuring consistent naming across the application.
package constant

const (
	// Version is the release version reported by the root endpoint.
	Version = "1.0.0"

	// OpenAI represents the OpenAI chat-completions API format identifier.
	OpenAI = "openai"

	// NIM represents the NVIDIA NIM provider identifier.
	NIM = "nim"

	// DefaultNIMBaseURL is the NVIDIA NIM OpenAI-compatible endpoint.
	DefaultNIMBaseURL = "https://integrate.api.nvidia.com/v1"
)
