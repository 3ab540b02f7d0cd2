package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// MaxButtons is the number of label/URL pairs a message may carry.
const MaxButtons = 3

// RecipientKind names a recipient specification variant.
type RecipientKind string

const (
	RecipientKindExplicit RecipientKind = "explicit"
	RecipientKindRSVP     RecipientKind = "rsvp"
	RecipientKindGroup    RecipientKind = "group"
)

// RecipientSpec describes who should receive a message. The only
// implementations are ExplicitRecipients, RSVPRecipients and GroupRecipients.
type RecipientSpec interface {
	Kind() RecipientKind
	Validate() error
	isRecipientSpec()
}

// ExplicitRecipients targets a fixed list of user ids.
type ExplicitRecipients struct {
	UserIDs []string
}

func (ExplicitRecipients) Kind() RecipientKind { return RecipientKindExplicit }
func (ExplicitRecipients) isRecipientSpec()    {}

func (s ExplicitRecipients) Validate() error {
	if len(s.UserIDs) == 0 {
		return fmt.Errorf("%w: userIds must not be empty", ErrInvalidRequest)
	}
	for _, id := range s.UserIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: userIds must not contain blank ids", ErrInvalidRequest)
		}
	}
	return nil
}

// RSVPRecipients targets users whose response to a gathering matches Status.
type RSVPRecipients struct {
	GatheringID string
	Status      RSVPStatus
}

func (RSVPRecipients) Kind() RecipientKind { return RecipientKindRSVP }
func (RSVPRecipients) isRecipientSpec()    {}

func (s RSVPRecipients) Validate() error {
	if strings.TrimSpace(s.GatheringID) == "" {
		return fmt.Errorf("%w: rsvp.gatheringId is required", ErrInvalidRequest)
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("%w: invalid rsvp status %q", ErrInvalidRequest, s.Status)
	}
	return nil
}

// GroupRecipients targets every member of a community group.
type GroupRecipients struct {
	GroupID string
}

func (GroupRecipients) Kind() RecipientKind { return RecipientKindGroup }
func (GroupRecipients) isRecipientSpec()    {}

func (s GroupRecipients) Validate() error {
	if strings.TrimSpace(s.GroupID) == "" {
		return fmt.Errorf("%w: groupId is required", ErrInvalidRequest)
	}
	return nil
}

// ContentKind names a content specification variant.
type ContentKind string

const (
	ContentKindLiteral  ContentKind = "literal"
	ContentKindTemplate ContentKind = "template"
)

// ContentSpec describes what a message says. The only implementations are
// LiteralContent and TemplateContent.
type ContentSpec interface {
	Kind() ContentKind
	Validate() error
	isContentSpec()
}

// LiteralContent carries ready-to-send text.
type LiteralContent struct {
	Title    string
	Body     string
	Subtitle string
}

func (LiteralContent) Kind() ContentKind { return ContentKindLiteral }
func (LiteralContent) isContentSpec()    {}

func (c LiteralContent) Validate() error {
	if strings.TrimSpace(c.Title) == "" && strings.TrimSpace(c.Body) == "" {
		return fmt.Errorf("%w: content requires a title or a body", ErrInvalidRequest)
	}
	return nil
}

// TemplateContent references a stored template plus caller variables.
// GatheringID and CandidateID select entities whose fields are fetched as
// dynamic variables at render time.
type TemplateContent struct {
	Key         string
	Variables   map[string]string
	GatheringID string
	CandidateID string
}

func (TemplateContent) Kind() ContentKind { return ContentKindTemplate }
func (TemplateContent) isContentSpec()    {}

func (c TemplateContent) Validate() error {
	if strings.TrimSpace(c.Key) == "" {
		return fmt.Errorf("%w: template.key is required", ErrInvalidRequest)
	}
	return nil
}

// Button is a label/URL pair rendered by both channels.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// EmailDecoration holds email-only presentation and sender metadata.
type EmailDecoration struct {
	TemplateID     int64  `json:"templateId,omitempty"`
	SenderName     string `json:"senderName,omitempty"`
	SenderEmail    string `json:"senderEmail,omitempty"`
	ReplyTo        string `json:"replyTo,omitempty"`
	UnsubscribeURL string `json:"unsubscribeUrl,omitempty"`
	ImageURL       string `json:"imageUrl,omitempty"`
}

// Decoration carries channel-specific extras that are not part of the text.
type Decoration struct {
	DeepLink     string            `json:"deepLink,omitempty"`
	Buttons      []Button          `json:"buttons,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	PushPriority PushPriority      `json:"pushPriority,omitempty"`
	Sound        string            `json:"sound,omitempty"`
	Badge        *int              `json:"badge,omitempty"`
	Email        EmailDecoration   `json:"email,omitempty"`
}

func (d Decoration) Validate() error {
	if len(d.Buttons) > MaxButtons {
		return fmt.Errorf("%w: at most %d buttons are allowed (got %d)", ErrInvalidRequest, MaxButtons, len(d.Buttons))
	}
	for i, b := range d.Buttons {
		if strings.TrimSpace(b.Label) == "" || strings.TrimSpace(b.URL) == "" {
			return fmt.Errorf("%w: button %d requires label and url", ErrInvalidRequest, i+1)
		}
	}
	if d.PushPriority != "" && !d.PushPriority.IsValid() {
		return fmt.Errorf("%w: invalid push priority %q", ErrInvalidRequest, d.PushPriority)
	}
	if raw := strings.TrimSpace(d.Email.UnsubscribeURL); raw != "" {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("%w: invalid unsubscribe url", ErrInvalidRequest)
		}
	}
	return nil
}

// Request is one immutable send intent.
type Request struct {
	Mode        Mode
	Recipients  RecipientSpec
	Content     ContentSpec
	ScheduledAt *time.Time
	Decoration  Decoration
	InitiatedBy string
}

// Validate checks the structural invariants of a request. It performs no lookups.
func (r Request) Validate() error {
	if !r.Mode.IsValid() {
		return fmt.Errorf("%w: invalid mode %q", ErrInvalidRequest, r.Mode)
	}
	if r.Recipients == nil {
		return fmt.Errorf("%w: recipients are required", ErrInvalidRequest)
	}
	if err := r.Recipients.Validate(); err != nil {
		return err
	}
	if r.Content == nil {
		return fmt.Errorf("%w: exactly one of content or template is required", ErrInvalidRequest)
	}
	if err := r.Content.Validate(); err != nil {
		return err
	}
	return r.Decoration.Validate()
}

// IsScheduledAfter reports whether the request should be deferred past now.
func (r Request) IsScheduledAfter(now time.Time) bool {
	return r.ScheduledAt != nil && r.ScheduledAt.After(now)
}
