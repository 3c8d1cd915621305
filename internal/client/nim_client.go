package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"

	"github.com/ricejack10/openai-nim-proxy2/internal/config"
	"github.com/ricejack10/openai-nim-proxy2/internal/constant"
	"github.com/ricejack10/openai-nim-proxy2/internal/interfaces"
	"github.com/ricejack10/openai-nim-proxy2/internal/registry"
	"github.com/ricejack10/openai-nim-proxy2/internal/sse"
	"github.com/ricejack10/openai-nim-proxy2/internal/translator/translator"
	"github.com/ricejack10/openai-nim-proxy2/internal/usage"
	"github.com/ricejack10/openai-nim-proxy2/internal/util"
)

// NIMClient implements the Client interface for the NVIDIA NIM API.
// NIM speaks an OpenAI-compatible dialect with reasoning extensions; the
// registered translators rewrite requests for it and splice its reasoning
// deltas back into the content stream.
type NIMClient struct {
	ClientBase
	nimConfig *config.NIM

	// mu guards the rotation index and the quota map, both touched from
	// concurrent request goroutines.
	mu                 sync.Mutex
	currentAPIKeyIndex int
}

// NewNIMClient creates a new NIM client instance and registers its models.
//
// A client with no API keys is still constructed: the server stays up and
// every request fails fast with a fixed error instead of reaching upstream.
func NewNIMClient(cfg *config.Config) *NIMClient {
	httpClient := util.SetProxy(cfg, &http.Client{})

	clientID := fmt.Sprintf("nim-%d", time.Now().UnixNano())

	c := &NIMClient{
		ClientBase: ClientBase{
			httpClient:         httpClient,
			cfg:                cfg,
			modelQuotaExceeded: make(map[string]*time.Time),
		},
		nimConfig: &cfg.NIM,
	}

	c.InitializeModelRegistry(clientID)

	// Built-in catalog first, config rows merged over it.
	models := registry.GetNIMModels()
	for i := range cfg.NIM.Models {
		row := cfg.NIM.Models[i]
		if row.Alias == "" || row.Name == "" {
			continue
		}
		models = append(models, &registry.ModelInfo{
			ID:           row.Alias,
			Object:       "model",
			Created:      time.Now().Unix(),
			OwnedBy:      constant.NIM,
			Type:         constant.NIM,
			DisplayName:  row.Name,
			UpstreamName: row.Name,
		})
	}
	c.RegisterModels(models)

	if len(cfg.NIM.APIKeys) == 0 {
		log.Warn("no NIM API key configured, requests will fail until one is set")
	}

	return c
}

// Type returns the API format this client's translators are registered under.
func (c *NIMClient) Type() string {
	return constant.NIM
}

// Provider returns the provider name for this client.
func (c *NIMClient) Provider() string {
	return constant.NIM
}

// CanProvideModel checks if this client can provide the specified model.
// Unknown models are accepted too: they pass through verbatim and the
// upstream decides whether it can serve them.
func (c *NIMClient) CanProvideModel(modelName string) bool {
	return modelName != ""
}

// GetUserAgent returns the User-Agent string for NIM API requests.
func (c *NIMClient) GetUserAgent() string {
	return "openai-nim-proxy"
}

// GetCurrentAPIKey returns the current API key to use, with rotation support.
func (c *NIMClient) GetCurrentAPIKey() string {
	if len(c.nimConfig.APIKeys) == 0 {
		return ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.nimConfig.APIKeys[c.currentAPIKeyIndex%len(c.nimConfig.APIKeys)]
	// Rotate to next key for load balancing
	c.currentAPIKeyIndex = (c.currentAPIKeyIndex + 1) % len(c.nimConfig.APIKeys)
	return key
}

func (c *NIMClient) baseURL() string {
	if c.nimConfig.BaseURL != "" {
		return strings.TrimSuffix(c.nimConfig.BaseURL, "/")
	}
	return constant.DefaultNIMBaseURL
}

// APIRequest makes an HTTP request to the NIM API and returns the response
// body for the caller to consume.
func (c *NIMClient) APIRequest(ctx context.Context, endpoint string, rawJSON []byte, stream bool) (io.ReadCloser, *interfaces.ErrorMessage) {
	apiKey := c.GetCurrentAPIKey()
	if apiKey == "" {
		return nil, &interfaces.ErrorMessage{
			StatusCode: http.StatusInternalServerError,
			Error:      fmt.Errorf("NIM API key not configured"),
		}
	}

	url := c.baseURL() + endpoint
	req, errReq := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(rawJSON))
	if errReq != nil {
		return nil, &interfaces.ErrorMessage{
			StatusCode: http.StatusInternalServerError,
			Error:      fmt.Errorf("failed to create request: %w", errReq),
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))
	req.Header.Set("User-Agent", c.GetUserAgent())

	if stream {
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
	}

	log.Debugf("NIM API request: %s %s", url, util.HideAPIKey(apiKey))

	if c.cfg.RequestLog {
		if ginContext, ok := ctx.Value("gin").(*gin.Context); ok {
			ginContext.Set("API_REQUEST", rawJSON)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &interfaces.ErrorMessage{StatusCode: http.StatusInternalServerError, Error: fmt.Errorf("failed to execute request: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() {
			if errClose := resp.Body.Close(); errClose != nil {
				log.Warnf("failed to close response body: %v", errClose)
			}
		}()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &interfaces.ErrorMessage{StatusCode: resp.StatusCode, Error: fmt.Errorf("%s", string(bodyBytes))}
	}

	return resp.Body, nil
}

// IsModelQuotaExceeded checks if the specified model has exceeded its quota.
// The mark expires five minutes after the upstream rate-limited the model.
func (c *NIMClient) IsModelQuotaExceeded(model string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if quota, exists := c.modelQuotaExceeded[model]; exists && quota != nil {
		if time.Since(*quota) < 5*time.Minute {
			return true
		}
		delete(c.modelQuotaExceeded, model)
	}
	return false
}

// markModelQuotaExceeded records an upstream rate limit on the model, both
// locally and in the registry.
func (c *NIMClient) markModelQuotaExceeded(model string) {
	now := time.Now()
	c.mu.Lock()
	c.modelQuotaExceeded[model] = &now
	c.mu.Unlock()
	c.SetModelQuotaExceeded(model)
}

// clearModelQuotaMark drops any quota mark for the model after a
// successful request.
func (c *NIMClient) clearModelQuotaMark(model string) {
	c.mu.Lock()
	delete(c.modelQuotaExceeded, model)
	c.mu.Unlock()
	c.ClearModelQuotaExceeded(model)
}

// SendRawMessage sends a non-streaming message to the NIM API and returns
// the rewritten response body.
func (c *NIMClient) SendRawMessage(ctx context.Context, modelName string, rawJSON []byte) ([]byte, *interfaces.ErrorMessage) {
	originalRequestRawJSON := bytes.Clone(rawJSON)

	handler := ctx.Value("handler").(interfaces.APIHandler)
	handlerType := handler.HandlerType()
	rawJSON = translator.Request(handlerType, c.Type(), modelName, rawJSON, false)

	respBody, errMsg := c.APIRequest(ctx, "/chat/completions", rawJSON, false)
	if errMsg != nil {
		if errMsg.StatusCode == http.StatusTooManyRequests {
			c.markModelQuotaExceeded(modelName)
		}
		return nil, errMsg
	}
	c.clearModelQuotaMark(modelName)

	bodyBytes, errReadAll := io.ReadAll(respBody)
	_ = respBody.Close()
	if errReadAll != nil {
		return nil, &interfaces.ErrorMessage{StatusCode: http.StatusInternalServerError, Error: errReadAll}
	}

	c.AddAPIResponseData(ctx, bodyBytes)

	if detail, ok := usage.ParseChatCompletionUsage(bodyBytes); ok {
		usage.NewReporter(ctx, c.Provider(), modelName).Publish(ctx, detail)
	}

	var param any
	bodyBytes = []byte(translator.ResponseNonStream(handlerType, c.Type(), ctx, modelName, originalRequestRawJSON, rawJSON, bodyBytes, &param))

	return bodyBytes, nil
}

// SendRawMessageStream sends a streaming message to the NIM API. The returned
// data channel carries wire-ready SSE chunks, already rewritten and framed;
// the error channel carries at most one pre-stream failure.
func (c *NIMClient) SendRawMessageStream(ctx context.Context, modelName string, rawJSON []byte) (<-chan []byte, <-chan *interfaces.ErrorMessage) {
	originalRequestRawJSON := bytes.Clone(rawJSON)

	handler := ctx.Value("handler").(interfaces.APIHandler)
	handlerType := handler.HandlerType()
	rawJSON = translator.Request(handlerType, c.Type(), modelName, rawJSON, true)

	errChan := make(chan *interfaces.ErrorMessage)
	dataChan := make(chan []byte)

	go func() {
		defer close(errChan)
		defer close(dataChan)

		rawJSON, _ = sjson.SetBytes(rawJSON, "stream", true)

		stream, errMsg := c.APIRequest(ctx, "/chat/completions", rawJSON, true)
		if errMsg != nil {
			if errMsg.StatusCode == http.StatusTooManyRequests {
				c.markModelQuotaExceeded(modelName)
			}
			select {
			case errChan <- errMsg:
			case <-ctx.Done():
			}
			return
		}
		c.clearModelQuotaMark(modelName)
		defer func() {
			_ = stream.Close()
		}()

		send := func(chunk []byte) bool {
			select {
			case dataChan <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		framer := &sse.Framer{}
		var param any
		reporter := usage.NewReporter(ctx, c.Provider(), modelName)
		var usageDetail usage.Detail
		var usageSeen bool
		buf := make([]byte, 4096)

	readLoop:
		for {
			n, errRead := stream.Read(buf)
			if n > 0 {
				for _, line := range framer.Push(buf[:n]) {
					payload, kind := sse.Classify(line)
					switch kind {
					case sse.KindBlank:
						continue
					case sse.KindDone:
						// Flush the rewriter before the terminator is relayed.
						for _, tail := range translator.ResponseClose(handlerType, c.Type(), &param) {
							if !send(sse.Encode([]byte(tail))) {
								return
							}
						}
						break readLoop
					case sse.KindOpaque:
						if !send(sse.EncodeOpaque(line)) {
							return
						}
					case sse.KindData:
						c.AddAPIResponseData(ctx, payload)
						if detail, ok := usage.ParseChatCompletionUsage(payload); ok {
							usageDetail, usageSeen = detail, true
						}
						outs := translator.Response(handlerType, c.Type(), ctx, modelName, originalRequestRawJSON, rawJSON, payload, &param)
						if len(outs) == 1 && outs[0] == string(payload) {
							// Untouched records keep their original line so
							// the data prefix survives byte for byte.
							if !send(sse.EncodeVerbatim(line)) {
								return
							}
							continue
						}
						for _, out := range outs {
							if !send(sse.Encode([]byte(out))) {
								return
							}
						}
					}
				}
			}
			if errRead != nil {
				framer.Close()
				if errRead != io.EOF {
					log.Debugf("stream read ended: %v", errRead)
				}
				// Upstream ended without a terminator record; flush anyway
				// so an open reasoning span is still closed.
				for _, tail := range translator.ResponseClose(handlerType, c.Type(), &param) {
					if !send(sse.Encode([]byte(tail))) {
						return
					}
				}
				break
			}
		}

		framer.Close()

		if usageSeen {
			reporter.Publish(ctx, usageDetail)
		}
	}()

	return dataChan, errChan
}
