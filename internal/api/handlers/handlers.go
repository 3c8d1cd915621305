// Package handlers provides core API handler functionality for the proxy server.
// It includes common types, client selection, and error handling shared across
// the API endpoint handlers.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/context"

	"github.com/ricejack10/openai-nim-proxy2/internal/config"
	"github.com/ricejack10/openai-nim-proxy2/internal/interfaces"
)

// ErrorResponse represents a standard error response format for the API.
// It contains a single ErrorDetail field.
type ErrorResponse struct {
	// Error contains detailed information about the error that occurred.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail provides specific information about an error that occurred.
// It includes a human-readable message, an error type, and an optional error code.
type ErrorDetail struct {
	// Message is a human-readable message providing more details about the error.
	Message string `json:"message"`

	// Type is the category of error that occurred (e.g., "invalid_request_error").
	Type string `json:"type"`

	// Code is a short code identifying the error, if applicable.
	Code string `json:"code,omitempty"`
}

// BaseAPIHandler contains the shared state for API endpoint handlers.
// It holds the pool of upstream clients and manages selection and
// configuration access.
type BaseAPIHandler struct {
	// Clients is the pool of available upstream clients.
	Clients []interfaces.Client

	// Cfg holds the current application configuration.
	Cfg *config.Config

	// Mutex ensures thread-safe access to shared resources.
	Mutex *sync.Mutex

	// lastUsedClientIndex tracks the last used client index for
	// round-robin selection.
	lastUsedClientIndex int
}

// NewBaseAPIHandler creates a new base API handler instance.
func NewBaseAPIHandler(clients []interfaces.Client, cfg *config.Config) *BaseAPIHandler {
	return &BaseAPIHandler{
		Clients: clients,
		Cfg:     cfg,
		Mutex:   &sync.Mutex{},
	}
}

// UpdateClients updates the handler's client list and configuration.
// This method is called when the configuration changes.
func (h *BaseAPIHandler) UpdateClients(clients []interfaces.Client, cfg *config.Config) {
	h.Mutex.Lock()
	defer h.Mutex.Unlock()
	h.Clients = clients
	h.Cfg = cfg
}

// GetClient returns an available client for the model using round-robin
// selection, skipping clients whose quota for the model is exhausted.
func (h *BaseAPIHandler) GetClient(modelName string) (interfaces.Client, *interfaces.ErrorMessage) {
	if modelName == "" {
		return nil, &interfaces.ErrorMessage{StatusCode: http.StatusBadRequest, Error: fmt.Errorf("model is required")}
	}

	h.Mutex.Lock()
	defer h.Mutex.Unlock()

	if len(h.Clients) == 0 {
		return nil, &interfaces.ErrorMessage{StatusCode: http.StatusInternalServerError, Error: fmt.Errorf("no clients available")}
	}

	start := h.lastUsedClientIndex % len(h.Clients)
	exhausted := false
	for i := 0; i < len(h.Clients); i++ {
		cli := h.Clients[(start+1+i)%len(h.Clients)]
		if !cli.IsAvailable() || !cli.CanProvideModel(modelName) {
			continue
		}
		if cli.IsModelQuotaExceeded(modelName) {
			exhausted = true
			continue
		}
		h.lastUsedClientIndex = (start + 1 + i) % len(h.Clients)
		return cli, nil
	}

	if exhausted {
		return nil, &interfaces.ErrorMessage{StatusCode: http.StatusTooManyRequests, Error: fmt.Errorf("model %q is quota exceeded", modelName)}
	}
	return nil, &interfaces.ErrorMessage{StatusCode: http.StatusInternalServerError, Error: fmt.Errorf("no client can provide model %q", modelName)}
}

// WriteErrorResponse relays an upstream failure as a JSON error body with the
// upstream's status code. An upstream body that already carries the error
// envelope is forwarded as-is; anything else is wrapped.
func (h *BaseAPIHandler) WriteErrorResponse(c *gin.Context, msg *interfaces.ErrorMessage) {
	status := msg.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := []byte(msg.Error.Error())
	if json.Valid(body) {
		c.Data(status, "application/json", body)
		return
	}

	errType := "server_error"
	if status >= 400 && status < 500 {
		errType = "invalid_request_error"
	}
	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Message: msg.Error.Error(),
			Type:    errType,
		},
	})
}

// GetContextWithCancel builds the request-scoped context handed to clients.
// The gin context and the originating handler ride along as values so the
// client can pick translators and record request logs.
func (h *BaseAPIHandler) GetContextWithCancel(handler interfaces.APIHandler, c *gin.Context, ctx context.Context) (context.Context, APIHandlerCancelFunc) {
	newCtx, cancel := context.WithCancel(ctx)
	newCtx = context.WithValue(newCtx, "gin", c)
	newCtx = context.WithValue(newCtx, "handler", handler)
	return newCtx, func(params ...interface{}) {
		if h.Cfg.RequestLog && len(params) == 1 {
			switch v := params[0].(type) {
			case []byte:
				c.Set("API_RESPONSE", v)
			case error:
				c.Set("API_RESPONSE", []byte(v.Error()))
			case string:
				c.Set("API_RESPONSE", []byte(v))
			}
		}

		cancel()
	}
}

type APIHandlerCancelFunc func(params ...interface{})
