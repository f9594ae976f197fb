package models

import "encoding/json"

// Default values used when an announcement arrives with missing or
// unparseable fields. A malformed payload still produces a notification.
const (
	DefaultTitle = "Ahava Announcement"
	DefaultBody  = "You have a new announcement"
	DefaultURL   = "/"
)

// PushPayload is the structured announcement data carried by a push message.
// All fields are optional on the wire.
type PushPayload struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	URL   string `json:"url,omitempty"`
}

// ParsePushPayload decodes raw push bytes into a payload, substituting
// defaults for anything missing. It never fails: non-JSON or empty input
// yields the full default payload, which is the expected degradation path
// for a garbled announcement.
func ParsePushPayload(raw []byte) PushPayload {
	var p PushPayload
	if len(raw) > 0 {
		// A decode error leaves p zero-valued, which the fallback below
		// turns into the default announcement.
		_ = json.Unmarshal(raw, &p)
	}
	if p.Title == "" {
		p.Title = DefaultTitle
	}
	if p.Body == "" {
		p.Body = DefaultBody
	}
	if p.URL == "" {
		p.URL = DefaultURL
	}
	return p
}
