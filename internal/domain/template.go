package domain

import "time"

// Template is stored notification copy with {{placeholder}} markers.
// EmailSubject and EmailBody override Title and Body for the email channel.
type Template struct {
	ID           string
	Key          string
	Title        string
	Body         string
	Subtitle     string
	EmailSubject string
	EmailBody    string
	Defaults     map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RenderedContent is final text for one channel.
type RenderedContent struct {
	Subject       string `json:"subject"`
	PrimaryBody   string `json:"primaryBody"`
	SecondaryBody string `json:"secondaryBody,omitempty"`
}

// Rendered holds the text for each channel produced from one content spec.
type Rendered struct {
	Push  RenderedContent `json:"push"`
	Email RenderedContent `json:"email"`
}
