package tools

import (
	"context"
	"time"

	"github.com/jllopis/agora/pkg/llm"
)

// TimeLayout formats the local time returned by TimeTool.
const TimeLayout = "2006-01-02 15:04:05"

// TimeToolName is the name of the current-time tool.
const TimeToolName = "current_time"

type timeArgs struct{}

// TimeTool returns the current local time.
type TimeTool struct {
	Now func() time.Time
}

// NewTimeTool creates a TimeTool reading the system clock.
func NewTimeTool() *TimeTool {
	return &TimeTool{Now: time.Now}
}

func (t *TimeTool) Name() string { return TimeToolName }

func (t *TimeTool) Definition() llm.Tool {
	return Function(TimeToolName, "Returns the current local date and time as YYYY-MM-DD HH:MM:SS.", Schema[timeArgs]())
}

func (t *TimeTool) Call(context.Context, map[string]any) (string, error) {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	return now().Format(TimeLayout), nil
}
