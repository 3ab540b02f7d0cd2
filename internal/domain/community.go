package domain

import (
	"fmt"
	"strings"
	"time"
)

// RSVPStatus is a member's recorded response to a gathering.
type RSVPStatus string

const (
	RSVPGoing    RSVPStatus = "going"
	RSVPMaybe    RSVPStatus = "maybe"
	RSVPNotGoing RSVPStatus = "not_going"
	RSVPInvited  RSVPStatus = "invited"
)

func (s RSVPStatus) IsValid() bool {
	switch s {
	case RSVPGoing, RSVPMaybe, RSVPNotGoing, RSVPInvited:
		return true
	}
	return false
}

func ParseRSVPStatusFromString(s string) (RSVPStatus, error) {
	st := RSVPStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid rsvp status %q", ErrInvalidRequest, s)
	}
	return st, nil
}

// Contact is a resolved recipient: a user and the endpoints it can be reached on.
type Contact struct {
	UserID     string
	Name       string
	PushTokens []string
	Email      string
}

func (c Contact) HasPush() bool  { return len(c.PushTokens) > 0 }
func (c Contact) HasEmail() bool { return strings.TrimSpace(c.Email) != "" }

// Merge returns the union of both contacts' endpoints. Tokens keep first-seen order.
func (c Contact) Merge(other Contact) Contact {
	merged := c
	if merged.Name == "" {
		merged.Name = other.Name
	}
	if !merged.HasEmail() {
		merged.Email = other.Email
	}

	seen := make(map[string]struct{}, len(c.PushTokens)+len(other.PushTokens))
	tokens := make([]string, 0, len(c.PushTokens)+len(other.PushTokens))
	for _, list := range [][]string{c.PushTokens, other.PushTokens} {
		for _, token := range list {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			tokens = append(tokens, token)
		}
	}
	merged.PushTokens = tokens
	return merged
}

// Gathering is an event organised by a community group.
type Gathering struct {
	ID       string
	GroupID  string
	Title    string
	Location string
	StartsAt time.Time
}

// Candidate is a person standing in a community election or selection.
type Candidate struct {
	ID       string
	GroupID  string
	Name     string
	Position string
}
