package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Reporter publishes at most one usage record for a single request.
type Reporter struct {
	provider    string
	model       string
	apiKey      string
	requestedAt time.Time
	once        sync.Once
}

// NewReporter captures the request identity used for the eventual record.
func NewReporter(ctx context.Context, provider, model string) *Reporter {
	return &Reporter{
		provider:    provider,
		model:       model,
		apiKey:      apiKeyFromContext(ctx),
		requestedAt: time.Now(),
	}
}

// Publish emits the record once. Empty details are discarded.
func (r *Reporter) Publish(ctx context.Context, detail Detail) {
	if r == nil {
		return
	}
	if detail.TotalTokens == 0 {
		total := detail.InputTokens + detail.OutputTokens + detail.ReasoningTokens
		if total > 0 {
			detail.TotalTokens = total
		}
	}
	if detail.InputTokens == 0 && detail.OutputTokens == 0 && detail.ReasoningTokens == 0 && detail.CachedTokens == 0 && detail.TotalTokens == 0 {
		return
	}
	r.once.Do(func() {
		PublishRecord(ctx, Record{
			Provider:    r.provider,
			Model:       r.model,
			APIKey:      r.apiKey,
			RequestedAt: r.requestedAt,
			Detail:      detail,
		})
	})
}

func apiKeyFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ginCtx, ok := ctx.Value("gin").(*gin.Context)
	if !ok || ginCtx == nil {
		return ""
	}
	if v, exists := ginCtx.Get("apiKey"); exists {
		switch value := v.(type) {
		case string:
			return value
		case fmt.Stringer:
			return value.String()
		default:
			return fmt.Sprintf("%v", value)
		}
	}
	return ""
}
