package middleware

import (
	"bytes"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/ricejack10/openai-nim-proxy2/internal/logging"
)

// RequestLoggingMiddleware creates a Gin middleware that logs HTTP requests and responses.
// It captures detailed information about the request and response, including headers and
// body, and uses the provided RequestLogger to record this data. If logging is disabled
// in the logger, the middleware has minimal overhead.
func RequestLoggingMiddleware(logger logging.RequestLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Early return if logging is disabled (zero overhead)
		if !logger.IsEnabled() {
			c.Next()
			return
		}

		// Capture request information
		requestInfo, err := captureRequestInfo(c)
		if err != nil {
			c.Next()
			return
		}

		// Create response writer wrapper
		wrapper := NewResponseWriterWrapper(c.Writer, logger, requestInfo)
		c.Writer = wrapper

		// Process the request
		c.Next()

		// Finalize logging after request processing. Failures must not
		// interrupt the response.
		_ = wrapper.Finalize(c)
	}
}

// captureRequestInfo extracts relevant information from the incoming HTTP request.
// It captures the URL, method, headers, and body. The request body is read and then
// restored so that it can be processed by subsequent handlers.
func captureRequestInfo(c *gin.Context) (*RequestInfo, error) {
	// Capture URL
	url := c.Request.URL.String()
	if c.Request.URL.Path != "" {
		url = c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			url += "?" + c.Request.URL.RawQuery
		}
	}

	// Capture method
	method := c.Request.Method

	// Capture headers
	headers := make(map[string][]string)
	for key, values := range c.Request.Header {
		headers[key] = values
	}

	// Capture request body
	var body []byte
	if c.Request.Body != nil {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, err
		}

		// Restore the body for the actual request processing
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		body = bodyBytes
	}

	return &RequestInfo{
		URL:     url,
		Method:  method,
		Headers: headers,
		Body:    body,
	}, nil
}
