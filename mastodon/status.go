// Package mastodon holds the subset of the Mastodon streaming API data model
// that the link monitor consumes.
package mastodon

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Event names emitted by the public streaming timeline.
const (
	EventUpdate = "update"
	EventDelete = "delete"
)

// ErrUnknownEvent is returned by DecodeEvent for event names the monitor does
// not handle (status.update, notification, filters_changed, ...).
var ErrUnknownEvent = errors.New("unknown stream event")

// Account is the author of a status.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`

	// Acct is "user" for local accounts and "user@domain" for remote ones.
	Acct string `json:"acct"`
	URL  string `json:"url"`
}

// Domain returns the part of Acct after the '@', or an empty string for
// local accounts.
func (a Account) Domain() string {
	if i := strings.IndexByte(a.Acct, '@'); i >= 0 {
		return a.Acct[i+1:]
	}

	return ""
}

// Tag is a hashtag declared on a status.
type Tag struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Mention is an account mentioned by a status.
type Mention struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
	URL      string `json:"url"`
}

// MediaAttachment is a file attached to a status. Any of the URLs may be
// empty.
type MediaAttachment struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	URL        string `json:"url"`
	PreviewURL string `json:"preview_url"`
	RemoteURL  string `json:"remote_url"`
	TextURL    string `json:"text_url"`
}

// URLs returns the attachment's URL fields in a fixed order: primary,
// preview, remote, text.
func (m MediaAttachment) URLs() [4]string {
	return [4]string{m.URL, m.PreviewURL, m.RemoteURL, m.TextURL}
}

// Status is a single post delivered by the stream.
type Status struct {
	ID       string  `json:"id"`
	URI      string  `json:"uri"`
	URL      string  `json:"url"`
	Account  Account `json:"account"`
	Content  string  `json:"content"`
	Language string  `json:"language"`

	Tags             []Tag             `json:"tags"`
	Mentions         []Mention         `json:"mentions"`
	MediaAttachments []MediaAttachment `json:"media_attachments"`
}

// Event is one decoded message from the streaming API. Status is set for
// update events and DeletedID for delete events.
type Event struct {
	Kind      string
	Status    *Status
	DeletedID string
}

// DecodeEvent turns a raw stream event into an Event. The payload of an
// update is a status JSON document; the payload of a delete is the bare
// status id, which some servers send JSON-quoted.
func DecodeEvent(name string, payload []byte) (Event, error) {
	switch name {
	case EventUpdate:
		var status Status
		if err := json.Unmarshal(payload, &status); err != nil {
			return Event{}, fmt.Errorf("decode update payload: %w", err)
		}

		return Event{Kind: EventUpdate, Status: &status}, nil

	case EventDelete:
		id := strings.TrimSpace(string(payload))
		if strings.HasPrefix(id, `"`) {
			if err := json.Unmarshal([]byte(id), &id); err != nil {
				return Event{}, fmt.Errorf("decode delete payload: %w", err)
			}
		}

		if id == "" {
			return Event{}, fmt.Errorf("decode delete payload: empty status id")
		}

		return Event{Kind: EventDelete, DeletedID: id}, nil

	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}
