// Package inbox reconciles the two mail backends into one list/detail
// surface: try the hosted API first, fall back to raw IMAP on failure or
// empty result, namespace every id with its provider, and keep page
// cursors scoped to the provider that produced them.
package inbox

import (
	"context"
	"errors"
	"log/slog"

	"github.com/qumail/webmail/internal/credentials"
	"github.com/qumail/webmail/internal/mailbox"
	"github.com/qumail/webmail/internal/store"
)

// HostedMailbox is the hosted-API adapter as the controller sees it.
type HostedMailbox interface {
	List(ctx context.Context, query, pageToken string, limit int64) ([]mailbox.Message, string, error)
	Get(ctx context.Context, localID string) (mailbox.Message, error)
}

// RawMailbox is the IMAP adapter as the controller sees it.
type RawMailbox interface {
	List(ctx context.Context, limit int64, offset int) ([]mailbox.Message, error)
	GetByUID(ctx context.Context, uid uint32) (mailbox.Message, error)
}

// Openers build a fresh adapter per request from resolved credentials;
// nothing is pooled or shared across requests.
type (
	HostedOpener func(ctx context.Context, creds *credentials.HostedCreds) (HostedMailbox, error)
	RawOpener    func(creds *credentials.RawCreds) RawMailbox
	UIDParser    func(localID string) (uint32, error)
)

// CredentialResolver is implemented by credentials.Resolver.
type CredentialResolver interface {
	Resolve(ctx context.Context, user store.User) (credentials.Bundle, error)
}

// Condition annotates a result that is empty for a reason the UI must be
// able to distinguish from a genuinely empty inbox.
type Condition struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	CodeNoMailbox         = "no_mailbox"
	CodeHostedUnavailable = "hosted_unavailable"
	CodeRawUnavailable    = "raw_unavailable"
)

// ListResult is one inbox page. Approximate marks raw-sourced pages whose
// continuation is offset-based rather than a stable cursor.
type ListResult struct {
	Messages      []mailbox.Message
	NextPageToken string
	Approximate   bool
	Condition     *Condition
}

type Service struct {
	resolver     CredentialResolver
	openHosted   HostedOpener
	openRaw      RawOpener
	parseUID     UIDParser
	defaultQuery string
	logger       *slog.Logger
}

func NewService(resolver CredentialResolver, openHosted HostedOpener, openRaw RawOpener, parseUID UIDParser, defaultQuery string, logger *slog.Logger) *Service {
	return &Service{
		resolver:     resolver,
		openHosted:   openHosted,
		openRaw:      openRaw,
		parseUID:     parseUID,
		defaultQuery: defaultQuery,
		logger:       logger,
	}
}

// List runs one fetch through the state machine: resolve credentials, try
// hosted, fall back to raw on failure or empty result. The hosted path
// strictly precedes raw and the two never run concurrently.
func (s *Service) List(ctx context.Context, user store.User, query, pageToken string, limit int64) (ListResult, error) {
	cursor, err := mailbox.DecodeCursor(pageToken)
	if err != nil {
		return ListResult{}, err
	}
	if query == "" {
		query = s.defaultQuery
	}

	bundle, err := s.resolver.Resolve(ctx, user)
	if err != nil {
		if errors.Is(err, mailbox.ErrNoCredentials) {
			return ListResult{Condition: &Condition{
				Code:    CodeNoMailbox,
				Message: "no mail account configured for this user",
			}}, nil
		}
		return ListResult{}, err
	}

	// A continuation request routes to the provider that produced the
	// cursor and never crosses over.
	switch cursor.Provider {
	case mailbox.ProviderHosted:
		return s.listHosted(ctx, bundle.Hosted, query, cursor.Token, limit, false)
	case mailbox.ProviderRaw:
		return s.listRaw(ctx, bundle.Raw, limit, cursor.Offset)
	}

	if bundle.Hosted != nil {
		result, err := s.listHosted(ctx, bundle.Hosted, query, "", limit, bundle.Raw != nil)
		if err != nil {
			return ListResult{}, err
		}
		if result.Condition == nil && len(result.Messages) == 0 && bundle.Raw != nil {
			// Hosted succeeded but empty: still try raw, since an empty
			// hosted result may reflect query mismatch rather than a truly
			// empty mailbox. If raw fails here the hosted empty success
			// stands.
			fallback, err := s.listRaw(ctx, bundle.Raw, limit, 0)
			if err == nil && fallback.Condition == nil && len(fallback.Messages) > 0 {
				return fallback, nil
			}
			if err != nil || fallback.Condition != nil {
				s.logger.Info("raw fallback after empty hosted result failed", "user", user.Email)
			}
		}
		if result.Condition != nil && bundle.Raw != nil {
			return s.listRaw(ctx, bundle.Raw, limit, 0)
		}
		return result, nil
	}

	return s.listRaw(ctx, bundle.Raw, limit, 0)
}

func (s *Service) listHosted(ctx context.Context, creds *credentials.HostedCreds, query, pageToken string, limit int64, haveRawFallback bool) (ListResult, error) {
	if creds == nil {
		return ListResult{Condition: &Condition{
			Code:    CodeHostedUnavailable,
			Message: "hosted mail credentials are missing or expired",
		}}, nil
	}
	hostedBox, err := s.openHosted(ctx, creds)
	if err == nil {
		var messages []mailbox.Message
		var nextToken string
		messages, nextToken, err = hostedBox.List(ctx, query, pageToken, limit)
		if err == nil {
			for i := range messages {
				messages[i].ID = mailbox.FormatID(mailbox.ProviderHosted, messages[i].ID)
			}
			result := ListResult{Messages: messages}
			if nextToken != "" {
				result.NextPageToken = mailbox.Cursor{Provider: mailbox.ProviderHosted, Token: nextToken}.Encode()
			}
			return result, nil
		}
	}

	s.logger.Warn("hosted mail backend failed", "error", err, "fallback", haveRawFallback)
	return ListResult{Condition: &Condition{
		Code:    CodeHostedUnavailable,
		Message: "hosted mail backend unavailable; check your account credentials",
	}}, nil
}

func (s *Service) listRaw(ctx context.Context, creds *credentials.RawCreds, limit int64, offset int) (ListResult, error) {
	if creds == nil {
		return ListResult{Condition: &Condition{
			Code:    CodeRawUnavailable,
			Message: "no mail server credentials configured",
		}}, nil
	}
	messages, err := s.openRaw(creds).List(ctx, limit, offset)
	if err != nil {
		s.logger.Warn("raw mail backend failed", "error", err)
		return ListResult{Condition: &Condition{
			Code:    CodeRawUnavailable,
			Message: "mail server unreachable; check your mail credentials",
		}}, nil
	}
	for i := range messages {
		messages[i].ID = mailbox.FormatID(mailbox.ProviderRaw, messages[i].ID)
	}
	return ListResult{Messages: messages, Approximate: true}, nil
}

// Get dispatches a namespaced id to the adapter matching its prefix. The
// returned message carries the id it was asked for.
func (s *Service) Get(ctx context.Context, user store.User, id string) (mailbox.Message, error) {
	provider, localID, err := mailbox.ParseID(id)
	if err != nil {
		return mailbox.Message{}, err
	}

	bundle, err := s.resolver.Resolve(ctx, user)
	if err != nil {
		return mailbox.Message{}, err
	}

	var msg mailbox.Message
	switch provider {
	case mailbox.ProviderHosted:
		if bundle.Hosted == nil {
			return mailbox.Message{}, mailbox.Unavailable(mailbox.ProviderHosted, errors.New("hosted credentials missing or expired"))
		}
		hostedBox, err := s.openHosted(ctx, bundle.Hosted)
		if err != nil {
			return mailbox.Message{}, err
		}
		msg, err = hostedBox.Get(ctx, localID)
		if err != nil {
			return mailbox.Message{}, err
		}
	case mailbox.ProviderRaw:
		if bundle.Raw == nil {
			return mailbox.Message{}, mailbox.Unavailable(mailbox.ProviderRaw, errors.New("mail server credentials missing"))
		}
		uid, err := s.parseUID(localID)
		if err != nil {
			return mailbox.Message{}, err
		}
		msg, err = s.openRaw(bundle.Raw).GetByUID(ctx, uid)
		if err != nil {
			return mailbox.Message{}, err
		}
	}

	msg.ID = mailbox.FormatID(provider, msg.ID)
	if msg.ID != id {
		// The adapter answered for a different message than was asked for;
		// treat it as not found rather than leak a mismatched id.
		s.logger.Error("adapter id mismatch", "requested", id, "got", msg.ID)
		return mailbox.Message{}, mailbox.ErrMessageNotFound
	}
	return msg, nil
}
