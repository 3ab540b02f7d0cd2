package domain

import (
	"fmt"
	"strings"
	"time"
)

// WorkflowStatus is the lifecycle state of a workflow record.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowExecuting WorkflowStatus = "executing"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
)

func (s WorkflowStatus) String() string { return string(s) }

func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowPending, WorkflowExecuting, WorkflowCompleted, WorkflowFailed:
		return true
	}
	return false
}

func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed
}

func ParseWorkflowStatusFromString(s string) (WorkflowStatus, error) {
	st := WorkflowStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid workflow status %q", ErrInvalidRequest, s)
	}
	return st, nil
}

// DefaultWorkflowKind labels workflows created without an explicit kind.
const DefaultWorkflowKind = "notification"

// Workflow is the durable record of a planned or executed send. Payload is the
// JSON snapshot of the Request; Result is the JSON of the final Result.
type Workflow struct {
	ID          string
	Kind        string
	Status      WorkflowStatus
	GatheringID *string
	CandidateID *string
	InitiatedBy string
	Payload     []byte
	Result      []byte
	Error       *string
	ScheduledAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkflowUpdate lists the fields an executor may change. Nil fields are left untouched.
type WorkflowUpdate struct {
	Status      *WorkflowStatus
	Result      []byte
	Error       *string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// EntityRef selects workflows associated with a gathering or candidate.
type EntityRef struct {
	GatheringID string
	CandidateID string
}

func (r EntityRef) IsZero() bool {
	return strings.TrimSpace(r.GatheringID) == "" && strings.TrimSpace(r.CandidateID) == ""
}

// DeliveryReceipt keeps a channel-native receipt id for later status reconciliation.
type DeliveryReceipt struct {
	ID         string
	WorkflowID *string
	Channel    Channel
	UserID     string
	Endpoint   string
	ReceiptID  string
	CreatedAt  time.Time
}
