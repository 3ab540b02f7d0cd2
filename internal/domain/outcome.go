package domain

import (
	"fmt"
	"strings"
)

// Reason is a machine-readable failure code for one recipient endpoint.
type Reason string

const (
	ReasonInvalidTokenFormat Reason = "InvalidTokenFormat"
	ReasonNoPushToken        Reason = "NoPushToken"
	ReasonNoEmailAddress     Reason = "NoEmailAddress"
	ReasonChannelSendError   Reason = "ChannelSendError"
	ReasonTimeout            Reason = "Timeout"
	ReasonUnknownError       Reason = "UnknownError"
	ReasonUnknownUser        Reason = "UnknownUser"
)

func (r Reason) String() string { return string(r) }

// RecipientFailure records why one endpoint of one user was not delivered.
type RecipientFailure struct {
	UserID   string `json:"userId,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Reason   Reason `json:"reason"`
	Message  string `json:"message,omitempty"`
}

// Delivery records one accepted endpoint and the channel receipt, if any.
type Delivery struct {
	UserID    string `json:"userId"`
	Endpoint  string `json:"endpoint"`
	ReceiptID string `json:"receiptId,omitempty"`
}

// ChannelOutcome summarises one channel's part of a send. Counts are per
// endpoint: a push token or an email address.
type ChannelOutcome struct {
	Channel        Channel            `json:"channel"`
	Attempted      bool               `json:"attempted"`
	AttemptedCount int                `json:"attemptedCount"`
	Succeeded      int                `json:"succeeded"`
	Failed         int                `json:"failed"`
	Deliveries     []Delivery         `json:"deliveries,omitempty"`
	Failures       []RecipientFailure `json:"failures,omitempty"`
	ReceiptIDs     []string           `json:"receiptIds,omitempty"`
}

// NewChannelOutcome returns an outcome for a channel that has not been attempted.
func NewChannelOutcome(channel Channel) ChannelOutcome {
	return ChannelOutcome{Channel: channel}
}

func (o *ChannelOutcome) RecordSuccess(d Delivery) {
	o.Succeeded++
	o.Deliveries = append(o.Deliveries, d)
	if d.ReceiptID != "" {
		o.ReceiptIDs = append(o.ReceiptIDs, d.ReceiptID)
	}
}

func (o *ChannelOutcome) RecordFailure(f RecipientFailure) {
	o.Failed++
	if f.Reason == "" {
		f.Reason = ReasonUnknownError
	}
	o.Failures = append(o.Failures, f)
}

// SucceededUsers returns the distinct user ids with at least one accepted endpoint.
func (o ChannelOutcome) SucceededUsers() map[string]struct{} {
	users := make(map[string]struct{}, len(o.Deliveries))
	for _, d := range o.Deliveries {
		users[d.UserID] = struct{}{}
	}
	return users
}

// Result is the aggregate answer to one Request.
type Result struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message"`
	Push       ChannelOutcome     `json:"push"`
	Email      ChannelOutcome     `json:"email"`
	Unresolved []RecipientFailure `json:"unresolved,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// NewEmptyResult returns a result with both channels unattempted.
func NewEmptyResult(message string) Result {
	return Result{
		Message: message,
		Push:    NewChannelOutcome(ChannelPush),
		Email:   NewChannelOutcome(ChannelEmail),
	}
}

// Summarize fills Success and Message from the channel outcomes.
func (r *Result) Summarize() {
	r.Success = r.Push.Succeeded > 0 || r.Email.Succeeded > 0

	parts := make([]string, 0, 3)
	for _, o := range []ChannelOutcome{r.Push, r.Email} {
		if !o.Attempted {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %d of %d delivered", strings.ToLower(o.Channel.String()), o.Succeeded, o.Succeeded+o.Failed))
	}
	if len(r.Unresolved) > 0 {
		parts = append(parts, fmt.Sprintf("%d unknown recipients", len(r.Unresolved)))
	}
	if len(parts) == 0 {
		r.Message = "no channel attempted"
		return
	}
	r.Message = strings.Join(parts, "; ")
}
