package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type requestJSON struct {
	Mode        string          `json:"mode"`
	Recipients  *recipientsJSON `json:"recipients,omitempty"`
	Content     *literalJSON    `json:"content,omitempty"`
	Template    *templateJSON   `json:"template,omitempty"`
	ScheduledAt *time.Time      `json:"scheduledAt,omitempty"`
	Decoration  Decoration      `json:"decoration"`
	InitiatedBy string          `json:"initiatedBy,omitempty"`
}

type recipientsJSON struct {
	UserIDs []string  `json:"userIds,omitempty"`
	RSVP    *rsvpJSON `json:"rsvp,omitempty"`
	GroupID string    `json:"groupId,omitempty"`
}

type rsvpJSON struct {
	GatheringID string `json:"gatheringId"`
	Status      string `json:"status"`
}

type literalJSON struct {
	Title    string `json:"title,omitempty"`
	Body     string `json:"body,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
}

type templateJSON struct {
	Key         string            `json:"key"`
	Variables   map[string]string `json:"variables,omitempty"`
	GatheringID string            `json:"gatheringId,omitempty"`
	CandidateID string            `json:"candidateId,omitempty"`
}

// MarshalJSON encodes the request in its wire shape. The same shape is used
// for workflow payload snapshots.
func (r Request) MarshalJSON() ([]byte, error) {
	wire := requestJSON{
		Mode:        r.Mode.String(),
		ScheduledAt: r.ScheduledAt,
		Decoration:  r.Decoration,
		InitiatedBy: r.InitiatedBy,
	}

	switch spec := r.Recipients.(type) {
	case nil:
	case ExplicitRecipients:
		wire.Recipients = &recipientsJSON{UserIDs: spec.UserIDs}
	case RSVPRecipients:
		wire.Recipients = &recipientsJSON{RSVP: &rsvpJSON{GatheringID: spec.GatheringID, Status: string(spec.Status)}}
	case GroupRecipients:
		wire.Recipients = &recipientsJSON{GroupID: spec.GroupID}
	default:
		return nil, fmt.Errorf("unsupported recipient spec %T", spec)
	}

	switch spec := r.Content.(type) {
	case nil:
	case LiteralContent:
		wire.Content = &literalJSON{Title: spec.Title, Body: spec.Body, Subtitle: spec.Subtitle}
	case TemplateContent:
		wire.Template = &templateJSON{
			Key:         spec.Key,
			Variables:   spec.Variables,
			GatheringID: spec.GatheringID,
			CandidateID: spec.CandidateID,
		}
	default:
		return nil, fmt.Errorf("unsupported content spec %T", spec)
	}

	return json.Marshal(wire)
}

// UnmarshalJSON decodes the wire shape and rejects payloads that set more than
// one recipient or content variant. An unknown mode is kept as-is so Validate
// reports it.
func (r *Request) UnmarshalJSON(data []byte) error {
	var wire requestJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: malformed body: %v", ErrInvalidRequest, err)
	}

	decoded := Request{
		Mode:        Mode(strings.ToUpper(strings.TrimSpace(wire.Mode))),
		ScheduledAt: wire.ScheduledAt,
		Decoration:  wire.Decoration,
		InitiatedBy: strings.TrimSpace(wire.InitiatedBy),
	}
	if m, err := ParseModeFromString(wire.Mode); err == nil {
		decoded.Mode = m
	}

	recipients, err := wire.Recipients.toSpec()
	if err != nil {
		return err
	}
	decoded.Recipients = recipients

	switch {
	case wire.Content != nil && wire.Template != nil:
		return fmt.Errorf("%w: content and template are mutually exclusive", ErrInvalidRequest)
	case wire.Content != nil:
		decoded.Content = LiteralContent{
			Title:    strings.TrimSpace(wire.Content.Title),
			Body:     strings.TrimSpace(wire.Content.Body),
			Subtitle: strings.TrimSpace(wire.Content.Subtitle),
		}
	case wire.Template != nil:
		decoded.Content = TemplateContent{
			Key:         strings.TrimSpace(wire.Template.Key),
			Variables:   wire.Template.Variables,
			GatheringID: strings.TrimSpace(wire.Template.GatheringID),
			CandidateID: strings.TrimSpace(wire.Template.CandidateID),
		}
	}

	*r = decoded
	return nil
}

func (w *recipientsJSON) toSpec() (RecipientSpec, error) {
	if w == nil {
		return nil, nil
	}

	set := 0
	if len(w.UserIDs) > 0 {
		set++
	}
	if w.RSVP != nil {
		set++
	}
	if strings.TrimSpace(w.GroupID) != "" {
		set++
	}
	if set > 1 {
		return nil, fmt.Errorf("%w: exactly one recipient variant must be set", ErrInvalidRequest)
	}

	switch {
	case len(w.UserIDs) > 0:
		ids := make([]string, 0, len(w.UserIDs))
		for _, id := range w.UserIDs {
			ids = append(ids, strings.TrimSpace(id))
		}
		return ExplicitRecipients{UserIDs: ids}, nil
	case w.RSVP != nil:
		return RSVPRecipients{
			GatheringID: strings.TrimSpace(w.RSVP.GatheringID),
			Status:      RSVPStatus(strings.ToLower(strings.TrimSpace(w.RSVP.Status))),
		}, nil
	case strings.TrimSpace(w.GroupID) != "":
		return GroupRecipients{GroupID: strings.TrimSpace(w.GroupID)}, nil
	}
	return nil, nil
}
