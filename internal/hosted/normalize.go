package hosted

import (
	"encoding/base64"
	"strings"

	"google.golang.org/api/gmail/v1"

	"github.com/qumail/webmail/internal/mailbox"
	"github.com/qumail/webmail/internal/sanitize"
)

// normalizeMessage converts a full-format Gmail message into the unified
// model. The id stays provider-local; namespacing happens in the
// unification controller. The Date header is preserved verbatim rather
// than re-parsed, so upstream format inconsistencies are not
// misrepresented.
func normalizeMessage(msg *gmail.Message) mailbox.Message {
	normalized := mailbox.Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
	}
	for _, label := range msg.LabelIds {
		if label == "UNREAD" {
			normalized.Unread = true
			break
		}
	}
	if msg.Payload == nil {
		return normalized
	}
	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "From":
			normalized.From = header.Value
		case "To":
			normalized.To = header.Value
		case "Subject":
			normalized.Subject = header.Value
		case "Date":
			normalized.Date = header.Value
		}
	}

	body, isHTML := extractBody(msg.Payload)
	if isHTML {
		normalized.Body = sanitize.HTML(body)
	} else if body != "" {
		normalized.Body = sanitize.Text(body)
	}
	normalized.Snippet = sanitize.Snippet(normalized.Body)
	return normalized
}

// extractBody walks the recursive parts tree depth-first, preferring the
// first text/html leaf and falling back to the first text/plain leaf. A
// message with neither yields an empty body, which is not an error.
func extractBody(payload *gmail.MessagePart) (string, bool) {
	if html := findPart(payload, "text/html"); html != "" {
		return html, true
	}
	if plain := findPart(payload, "text/plain"); plain != "" {
		return plain, false
	}
	return "", false
}

func findPart(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		if decoded := decodeBody(part.Body.Data); decoded != "" {
			return decoded
		}
	}
	for _, child := range part.Parts {
		if found := findPart(child, mimeType); found != "" {
			return found
		}
	}
	return ""
}

func decodeBody(data string) string {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	return ""
}
