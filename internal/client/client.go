// Package client implements the upstream API clients for the proxy.
// It provides a shared base with HTTP plumbing, request logging hooks,
// model registration and quota tracking.
package client

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ricejack10/openai-nim-proxy2/internal/config"
	"github.com/ricejack10/openai-nim-proxy2/internal/registry"
)

// ClientBase provides a common base structure for upstream API clients.
// It implements shared functionality such as HTTP client management,
// configuration access, model registration and quota tracking.
type ClientBase struct {
	// httpClient is the HTTP client used for making API requests.
	httpClient *http.Client

	// cfg holds the application configuration.
	cfg *config.Config

	// modelQuotaExceeded tracks when models have exceeded their quota.
	// The map key is the model name, and the value is the time when the quota was exceeded.
	modelQuotaExceeded map[string]*time.Time

	// clientID is the unique identifier for this client instance.
	clientID string

	// modelRegistry is the global model registry for tracking model availability.
	modelRegistry *registry.ModelRegistry

	// available tracks whether the client may be used for requests.
	available bool
}

// AddAPIResponseData adds API response data to the Gin context for logging purposes.
// This method appends the provided data to any existing response data in the context,
// or creates a new entry if none exists. It only performs this operation if request
// logging is enabled in the configuration.
func (c *ClientBase) AddAPIResponseData(ctx context.Context, line []byte) {
	if c.cfg.RequestLog {
		data := bytes.TrimSpace(bytes.Clone(line))
		if ginContext, ok := ctx.Value("gin").(*gin.Context); len(data) > 0 && ok {
			if apiResponseData, isExist := ginContext.Get("API_RESPONSE"); isExist {
				if byteAPIResponseData, isOk := apiResponseData.([]byte); isOk {
					byteAPIResponseData = append(byteAPIResponseData, data...)
					byteAPIResponseData = append(byteAPIResponseData, []byte("\n\n")...)
					ginContext.Set("API_RESPONSE", byteAPIResponseData)
				}
			} else {
				ginContext.Set("API_RESPONSE", data)
			}
		}
	}
}

// InitializeModelRegistry initializes the model registry for this client.
// This should be called by all client implementations during construction.
func (c *ClientBase) InitializeModelRegistry(clientID string) {
	c.clientID = clientID
	c.modelRegistry = registry.GetGlobalRegistry()
	c.available = true
}

// RegisterModels registers the models that this client can provide.
func (c *ClientBase) RegisterModels(models []*registry.ModelInfo) {
	if c.modelRegistry != nil && c.clientID != "" {
		c.modelRegistry.RegisterClient(c.clientID, models)
	}
}

// UnregisterClient removes this client from the model registry.
func (c *ClientBase) UnregisterClient() {
	if c.modelRegistry != nil && c.clientID != "" {
		c.modelRegistry.UnregisterClient(c.clientID)
	}
}

// SetModelQuotaExceeded marks a model as quota exceeded in the registry.
func (c *ClientBase) SetModelQuotaExceeded(modelID string) {
	if c.modelRegistry != nil && c.clientID != "" {
		c.modelRegistry.SetModelQuotaExceeded(c.clientID, modelID)
	}
}

// ClearModelQuotaExceeded clears quota exceeded status for a model.
func (c *ClientBase) ClearModelQuotaExceeded(modelID string) {
	if c.modelRegistry != nil && c.clientID != "" {
		c.modelRegistry.ClearModelQuotaExceeded(c.clientID, modelID)
	}
}

// GetClientID returns the unique identifier for this client.
func (c *ClientBase) GetClientID() string {
	return c.clientID
}

// IsAvailable returns true if the client is available for use.
func (c *ClientBase) IsAvailable() bool {
	return c.available
}

// SetUnavailable sets the client to unavailable.
func (c *ClientBase) SetUnavailable() {
	c.available = false
}
