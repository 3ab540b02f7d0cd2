package domain

import (
	"fmt"
	"strings"
)

// Mode selects how channels are combined for one send.
type Mode string

const (
	// ModePushPreferred sends push first and falls back to email when no push succeeded.
	ModePushPreferred Mode = "PUSH_PREFERRED"
	// ModeBoth always attempts push and email independently.
	ModeBoth Mode = "BOTH"
)

func (m Mode) String() string { return string(m) }

func (m Mode) IsValid() bool {
	switch m {
	case ModePushPreferred, ModeBoth:
		return true
	}
	return false
}

func ParseModeFromString(s string) (Mode, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if normalized == "PUSHPREFERRED" {
		normalized = string(ModePushPreferred)
	}
	m := Mode(normalized)
	if !m.IsValid() {
		return "", fmt.Errorf("%w: invalid mode %q", ErrInvalidRequest, s)
	}
	return m, nil
}

// Channel represents a delivery medium.
type Channel string

const (
	ChannelPush  Channel = "PUSH"
	ChannelEmail Channel = "EMAIL"
)

func (c Channel) String() string { return string(c) }

// Key is the lowercase form used in metric labels and cache keys.
func (c Channel) Key() string { return strings.ToLower(string(c)) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelPush, ChannelEmail:
		return true
	}
	return false
}

// PushPriority is the delivery priority forwarded to the push gateway.
type PushPriority string

const (
	PushPriorityDefault PushPriority = "default"
	PushPriorityNormal  PushPriority = "normal"
	PushPriorityHigh    PushPriority = "high"
)

func (p PushPriority) IsValid() bool {
	switch p {
	case PushPriorityDefault, PushPriorityNormal, PushPriorityHigh:
		return true
	}
	return false
}

func ParsePushPriorityFromString(s string) (PushPriority, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "" {
		return PushPriorityDefault, nil
	}
	p := PushPriority(normalized)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid push priority %q", ErrInvalidRequest, s)
	}
	return p, nil
}
