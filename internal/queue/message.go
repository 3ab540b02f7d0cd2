package queue

import (
	"fmt"
	"strings"
	"time"
)

// WorkflowMessage is the broker payload asking a worker to execute one
// pending workflow.
type WorkflowMessage struct {
	WorkflowID    string    `json:"workflowId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	ScheduledAt   time.Time `json:"scheduledAt"`
}

func (m WorkflowMessage) Validate() error {
	if strings.TrimSpace(m.WorkflowID) == "" {
		return fmt.Errorf("workflowId is required")
	}
	return nil
}
