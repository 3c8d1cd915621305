// Package interfaces defines the core interfaces and shared structures for the proxy server.
// These interfaces provide a common contract for different components of the application,
// such as upstream API clients and API handlers.
package interfaces

import (
	"context"
)

// Client defines the interface that upstream API clients must implement.
// This interface provides methods for sending messages, streaming responses,
// and reporting model availability.
type Client interface {
	// Type returns the API format the client speaks (e.g., "openai").
	Type() string

	// Provider returns the name of the upstream provider (e.g., "nim").
	Provider() string

	// CanProvideModel checks if the client can provide the specified model.
	CanProvideModel(modelName string) bool

	// IsModelQuotaExceeded checks if the specified model has exceeded its quota.
	// This helps with retry decisions and automatic failover.
	IsModelQuotaExceeded(model string) bool

	// SendRawMessage sends a raw JSON message to the upstream service and
	// returns the complete response body.
	SendRawMessage(ctx context.Context, modelName string, rawJSON []byte) ([]byte, *ErrorMessage)

	// SendRawMessageStream sends a raw JSON message and returns streaming responses.
	// Similar to SendRawMessage but for streaming responses.
	SendRawMessageStream(ctx context.Context, modelName string, rawJSON []byte) (<-chan []byte, <-chan *ErrorMessage)

	// IsAvailable returns true if the client is available for use.
	IsAvailable() bool

	// SetUnavailable sets the client to unavailable.
	SetUnavailable()
}

// APIHandler identifies the inbound API format a handler serves. Clients use
// it to pick the right translator pair for a request.
type APIHandler interface {
	// HandlerType returns the handler type identifier (e.g., "openai").
	HandlerType() string
}

// ErrorMessage carries an upstream failure together with the HTTP status
// that should be relayed to the caller.
type ErrorMessage struct {
	StatusCode int
	Error      error
}
