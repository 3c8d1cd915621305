// Package openai provides HTTP handlers for the OpenAI-compatible API
// endpoints, including model listing and chat completions. It supports both
// streaming and non-streaming responses; streamed chunks arrive from the
// client pool already rewritten and framed, so the handler's job is relaying
// bytes, flushing, and terminating the stream.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/ricejack10/openai-nim-proxy2/internal/api/handlers"
	"github.com/ricejack10/openai-nim-proxy2/internal/constant"
	"github.com/ricejack10/openai-nim-proxy2/internal/registry"
)

// OpenAIAPIHandler contains the handlers for OpenAI API endpoints.
type OpenAIAPIHandler struct {
	*handlers.BaseAPIHandler
}

// NewOpenAIAPIHandler creates a new OpenAI API handlers instance.
func NewOpenAIAPIHandler(apiHandlers *handlers.BaseAPIHandler) *OpenAIAPIHandler {
	return &OpenAIAPIHandler{
		BaseAPIHandler: apiHandlers,
	}
}

// HandlerType returns the identifier for this handler implementation.
func (h *OpenAIAPIHandler) HandlerType() string {
	return constant.OpenAI
}

// Models returns the OpenAI-compatible model metadata supported by this handler.
func (h *OpenAIAPIHandler) Models() []*registry.ModelInfo {
	return registry.GetGlobalRegistry().GetAvailableModels()
}

// OpenAIModels handles the /v1/models endpoint.
// It returns the list of available models in OpenAI-compatible format.
func (h *OpenAIAPIHandler) OpenAIModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   h.Models(),
	})
}

// ChatCompletions handles the /v1/chat/completions endpoint.
// It determines whether the request is for a streaming or non-streaming
// response and calls the appropriate handler.
func (h *OpenAIAPIHandler) ChatCompletions(c *gin.Context) {
	rawJSON, err := c.GetRawData()
	// If data retrieval fails, return a 400 Bad Request error.
	if err != nil {
		c.JSON(http.StatusBadRequest, handlers.ErrorResponse{
			Error: handlers.ErrorDetail{
				Message: fmt.Sprintf("Invalid request: %v", err),
				Type:    "invalid_request_error",
			},
		})
		return
	}

	// Check if the client requested a streaming response.
	streamResult := gjson.GetBytes(rawJSON, "stream")
	if streamResult.Type == gjson.True {
		h.handleStreamingResponse(c, rawJSON)
	} else {
		h.handleNonStreamingResponse(c, rawJSON)
	}
}

// handleNonStreamingResponse handles non-streaming chat completion requests.
// It selects a client from the pool, sends the request, and relays the
// rewritten response.
func (h *OpenAIAPIHandler) handleNonStreamingResponse(c *gin.Context, rawJSON []byte) {
	c.Header("Content-Type", "application/json")

	modelName := gjson.GetBytes(rawJSON, "model").String()
	cliCtx, cliCancel := h.GetContextWithCancel(h, c, context.Background())

	cliClient, errorResponse := h.GetClient(modelName)
	if errorResponse != nil {
		h.WriteErrorResponse(c, errorResponse)
		cliCancel()
		return
	}

	resp, errMsg := cliClient.SendRawMessage(cliCtx, modelName, rawJSON)
	if errMsg != nil {
		h.WriteErrorResponse(c, errMsg)
		cliCancel(errMsg.Error)
		return
	}

	_, _ = c.Writer.Write(resp)
	cliCancel(resp)
}

// handleStreamingResponse handles streaming chat completion requests.
// It establishes a streaming connection with the upstream and forwards the
// rewritten chunks to the client in real time using Server-Sent Events.
// Once any byte has been written, a failure can only end the stream; it is
// never converted into a JSON error body.
func (h *OpenAIAPIHandler) handleStreamingResponse(c *gin.Context, rawJSON []byte) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	// Get the http.Flusher interface to manually flush the response.
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, handlers.ErrorResponse{
			Error: handlers.ErrorDetail{
				Message: "Streaming not supported",
				Type:    "server_error",
			},
		})
		return
	}

	modelName := gjson.GetBytes(rawJSON, "model").String()
	cliCtx, cliCancel := h.GetContextWithCancel(h, c, context.Background())

	cliClient, errorResponse := h.GetClient(modelName)
	if errorResponse != nil {
		h.WriteErrorResponse(c, errorResponse)
		cliCancel()
		return
	}

	respChan, errChan := cliClient.SendRawMessageStream(cliCtx, modelName, rawJSON)

	started := false
	for {
		select {
		// Handle client disconnection.
		case <-c.Request.Context().Done():
			log.Debugf("client disconnected: %v", c.Request.Context().Err())
			cliCancel()
			return
		// Relay incoming wire-ready chunks.
		case chunk, okStream := <-respChan:
			if !okStream {
				// Stream is closed, send the final [DONE] message.
				_, _ = fmt.Fprintf(c.Writer, "data: [DONE]\n\n")
				flusher.Flush()
				cliCancel()
				return
			}

			_, _ = c.Writer.Write(chunk)
			flusher.Flush()
			started = true
		// Handle errors from the upstream.
		case errMsg, okError := <-errChan:
			if !okError {
				errChan = nil
				continue
			}
			if started {
				// The response stream has begun; it can only end.
				log.Errorf("upstream error after stream start: %v", errMsg.Error)
				cliCancel(errMsg.Error)
				return
			}
			h.WriteErrorResponse(c, errMsg)
			flusher.Flush()
			cliCancel(errMsg.Error)
			return
		// Keep-alive tick while the upstream is quiet.
		case <-time.After(500 * time.Millisecond):
		}
	}
}
