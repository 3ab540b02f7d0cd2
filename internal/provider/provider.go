package provider

import (
	"context"
	"regexp"
	"strings"
)

// PushMessage is one device-addressed message in a push gateway batch.
type PushMessage struct {
	To       string            `json:"to"`
	Title    string            `json:"title,omitempty"`
	Body     string            `json:"body,omitempty"`
	Subtitle string            `json:"subtitle,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Badge    *int              `json:"badge,omitempty"`
}

const (
	TicketStatusOK    = "ok"
	TicketStatusError = "error"
)

// PushTicket is the gateway acknowledgement for the message at the same
// position in the submitted batch.
type PushTicket struct {
	Status  string
	ID      string
	Message string
	Reason  string
}

func (t PushTicket) OK() bool {
	return t.Status == TicketStatusOK
}

// PushGateway delivers batches of push messages. Implementations return
// exactly one ticket per submitted message, in submission order.
type PushGateway interface {
	Send(ctx context.Context, messages []PushMessage) ([]PushTicket, error)
	MaxBatchSize() int
}

type EmailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type EmailRecipient struct {
	Email  string
	Name   string
	Params map[string]string
}

// EmailSendRequest is a single templated send to a list of recipients.
type EmailSendRequest struct {
	TemplateID int64
	Sender     EmailAddress
	ReplyTo    string
	Recipients []EmailRecipient
	Params     map[string]any
	Headers    map[string]string
}

type EmailRecipientResult struct {
	Email     string
	Accepted  bool
	MessageID string
	Reason    string
}

// EmailSendResponse is the gateway answer to an accepted send. Results is
// only populated by integrations that report per-recipient outcomes.
type EmailSendResponse struct {
	MessageIDs []string
	Results    []EmailRecipientResult
}

// EmailGateway delivers templated email. A returned error means the whole
// send was rejected.
type EmailGateway interface {
	SendTemplate(ctx context.Context, req EmailSendRequest) (*EmailSendResponse, error)
	MaxRecipients() int
}

var pushTokenPattern = regexp.MustCompile(`^(ExponentPushToken|ExpoPushToken)\[[A-Za-z0-9_\-]+\]$`)

// IsValidPushToken reports whether token has the device token shape accepted
// by the push gateway.
func IsValidPushToken(token string) bool {
	return pushTokenPattern.MatchString(strings.TrimSpace(token))
}
