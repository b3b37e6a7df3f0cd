// Package outbound delivers composed mail through whichever backend the
// credential resolver supplied: the hosted API when an OAuth token is
// usable, SMTP submission with the stored app password otherwise.
package outbound

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/qumail/webmail/internal/credentials"
	"github.com/qumail/webmail/internal/mailbox"
)

type Sender struct {
	smtpHost string
	smtpPort int
	logger   *slog.Logger
}

func NewSender(smtpHost string, smtpPort int, logger *slog.Logger) *Sender {
	return &Sender{smtpHost: smtpHost, smtpPort: smtpPort, logger: logger}
}

// Send builds an RFC 822 message and submits it. Hosted is preferred; on
// hosted failure with raw credentials present, SMTP is tried as a
// fallback. Returns the message id of the delivered mail.
func (s *Sender) Send(ctx context.Context, bundle credentials.Bundle, from, to, subject, htmlBody string) (string, error) {
	messageID := uuid.NewString() + "@webmail"
	raw, err := buildMessage(messageID, from, to, subject, htmlBody)
	if err != nil {
		return "", fmt.Errorf("build message: %w", err)
	}

	if bundle.Hosted != nil {
		id, err := s.sendHosted(ctx, bundle.Hosted.Token, raw)
		if err == nil {
			return id, nil
		}
		s.logger.Warn("hosted send failed", "error", err)
		if bundle.Raw == nil {
			return "", mailbox.Unavailable(mailbox.ProviderHosted, err)
		}
	}

	if bundle.Raw != nil {
		if err := s.sendSMTP(bundle.Raw, from, to, raw); err != nil {
			return "", mailbox.Unavailable(mailbox.ProviderRaw, err)
		}
		return "<" + messageID + ">", nil
	}

	return "", mailbox.ErrNoCredentials
}

func (s *Sender) sendHosted(ctx context.Context, token *oauth2.Token, raw []byte) (string, error) {
	srv, err := gmail.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return "", fmt.Errorf("create gmail service: %w", err)
	}
	sent, err := srv.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.RawURLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return sent.Id, nil
}

func (s *Sender) sendSMTP(creds *credentials.RawCreds, from, to string, raw []byte) error {
	addr := fmt.Sprintf("%s:%d", s.smtpHost, s.smtpPort)
	auth := sasl.NewPlainClient("", creds.Username, creds.Password)
	if err := smtp.SendMail(addr, auth, from, []string{to}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("smtp submit: %w", err)
	}
	return nil
}

func buildMessage(messageID, from, to, subject, htmlBody string) ([]byte, error) {
	var buf bytes.Buffer
	var header mail.Header
	header.SetDate(time.Now())
	header.SetMessageID(messageID)
	header.SetSubject(subject)
	header.SetAddressList("From", []*mail.Address{{Address: from}})
	header.SetAddressList("To", []*mail.Address{{Address: to}})
	header.Set("Content-Type", "text/html; charset=utf-8")

	writer, err := mail.CreateSingleInlineWriter(&buf, header)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(writer, htmlBody); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
