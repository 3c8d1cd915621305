package usage

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

func init() {
	RegisterPlugin(NewLoggerPlugin())
}

// LoggerPlugin outputs every usage record to the application log.
type LoggerPlugin struct{}

// NewLoggerPlugin constructs a new logger plugin instance.
func NewLoggerPlugin() *LoggerPlugin { return &LoggerPlugin{} }

// HandleUsage implements Plugin. Records are marshaled to JSON and logged at
// debug level.
func (p *LoggerPlugin) HandleUsage(ctx context.Context, record Record) {
	data, _ := json.Marshal(record)
	log.Debug(string(data))
}
