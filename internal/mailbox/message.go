// Package mailbox holds the normalized message model shared by both mail
// providers, the provider-namespaced id codec, and the classified error
// taxonomy the adapters translate provider failures into.
package mailbox

import (
	"errors"
	"fmt"
	"strings"
)

// Provider tags the backend a message or cursor originated from.
type Provider string

const (
	// ProviderHosted is the JSON mail API (Gmail).
	ProviderHosted Provider = "hosted"
	// ProviderRaw is generic IMAP access carrying raw MIME.
	ProviderRaw Provider = "raw"
)

// Message is the unified shape returned to callers regardless of which
// backend produced it. Body is sanitized HTML, safe to inject into a
// browser render target.
type Message struct {
	ID       string       `json:"id"`
	ThreadID string       `json:"threadId,omitempty"`
	From     string       `json:"from"`
	To       string       `json:"to"`
	Subject  string       `json:"subject"`
	Date     string       `json:"date"`
	Body     string       `json:"body"`
	Snippet  string       `json:"snippet"`
	Unread   bool         `json:"unread"`
	Files    []Attachment `json:"attachments,omitempty"`
}

// Attachment is metadata only; content is never fetched on the read path.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

var ErrInvalidID = errors.New("invalid message id")

// FormatID namespaces a provider-local id. Ids leave the unification
// controller only in this form.
func FormatID(provider Provider, localID string) string {
	return string(provider) + ":" + localID
}

// ParseID splits a namespaced id back into provider tag and local id.
func ParseID(id string) (Provider, string, error) {
	tag, local, ok := strings.Cut(id, ":")
	if !ok || local == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	switch Provider(tag) {
	case ProviderHosted, ProviderRaw:
		return Provider(tag), local, nil
	}
	return "", "", fmt.Errorf("%w: unknown provider %q", ErrInvalidID, tag)
}
