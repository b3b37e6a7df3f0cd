package mailbox

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a continuation token scoped to exactly one provider. A hosted
// cursor carries the provider's opaque page token; a raw cursor is an
// offset into a newest-first fetch, which is approximate rather than a
// stable continuation.
type Cursor struct {
	Provider Provider `json:"p"`
	Token    string   `json:"t,omitempty"`
	Offset   int      `json:"o,omitempty"`
}

// Encode renders the cursor opaque to callers.
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a caller-supplied token. An empty token means the
// first page and yields a zero cursor with no provider.
func DecodeCursor(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	switch c.Provider {
	case ProviderHosted:
		if c.Token == "" {
			return Cursor{}, fmt.Errorf("%w: hosted cursor without token", ErrInvalidCursor)
		}
	case ProviderRaw:
		if c.Offset < 0 {
			return Cursor{}, fmt.Errorf("%w: negative offset", ErrInvalidCursor)
		}
	default:
		return Cursor{}, fmt.Errorf("%w: unknown provider %q", ErrInvalidCursor, c.Provider)
	}
	return c, nil
}
