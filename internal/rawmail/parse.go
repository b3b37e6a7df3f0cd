package rawmail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/qumail/webmail/internal/mailbox"
	"github.com/qumail/webmail/internal/sanitize"
)

// buildMessage converts one fetched message into the unified model. The
// returned id is the UID rendered as a string; namespacing happens in the
// unification controller.
func buildMessage(buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection) (mailbox.Message, error) {
	normalized := mailbox.Message{
		ID:     LocalID(uint32(buf.UID)),
		Unread: true,
	}
	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			normalized.Unread = false
			break
		}
	}

	if env := buf.Envelope; env != nil {
		normalized.Subject = env.Subject
		if !env.Date.IsZero() {
			normalized.Date = env.Date.Format(time.RFC1123Z)
		}
		if len(env.From) > 0 {
			normalized.From = formatAddress(env.From[0])
		}
		recipients := make([]string, 0, len(env.To))
		for _, to := range env.To {
			recipients = append(recipients, formatAddress(to))
		}
		normalized.To = strings.Join(recipients, ", ")
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return normalized, errors.New("no body section in fetch response")
	}
	textBody, htmlBody, attachments, err := parseBody(raw)
	if err != nil {
		return mailbox.Message{}, err
	}
	switch {
	case htmlBody != "":
		normalized.Body = sanitize.HTML(htmlBody)
	case textBody != "":
		normalized.Body = sanitize.Text(textBody)
	}
	normalized.Snippet = sanitize.Snippet(normalized.Body)
	normalized.Files = attachments
	return normalized, nil
}

func formatAddress(addr imap.Address) string {
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, addr.Addr())
	}
	return addr.Addr()
}

// parseBody walks the MIME structure collecting the first text/plain and
// text/html bodies plus attachment metadata. A message that yields no body
// at all and no readable structure is malformed; partial content wins over
// an error so one bad part does not discard the rest.
func parseBody(raw []byte) (textBody, htmlBody string, attachments []mailbox.Attachment, err error) {
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && reader == nil {
		return "", "", nil, fmt.Errorf("read message: %w", err)
	}
	defer reader.Close()

	var partErr error
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			partErr = err
			break
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, _, _ := header.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(mediaType, "text/plain") || mediaType == "":
				if textBody == "" {
					textBody = string(body)
				}
			case strings.HasPrefix(mediaType, "text/html"):
				if htmlBody == "" {
					htmlBody = string(body)
				}
			}
		case *mail.AttachmentHeader:
			filename, _ := header.Filename()
			mediaType, _, _ := header.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			attachments = append(attachments, mailbox.Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Size:        int64(len(body)),
			})
		}
	}

	if textBody == "" && htmlBody == "" && partErr != nil {
		return "", "", nil, fmt.Errorf("parse message parts: %w", partErr)
	}
	return textBody, htmlBody, attachments, nil
}
