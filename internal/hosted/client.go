// Package hosted adapts the Gmail REST API to the normalized message
// model. A client is built per request from the resolved OAuth token and
// never shared; every failure crossing the package boundary is classified.
package hosted

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/qumail/webmail/internal/mailbox"
)

const (
	account = "me"
	// fanOutLimit bounds the concurrent per-id detail fetches during List.
	fanOutLimit = 5
)

type Client struct {
	srv    *gmail.Service
	logger *slog.Logger
}

func NewClient(ctx context.Context, token *oauth2.Token, logger *slog.Logger) (*Client, error) {
	srv, err := gmail.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return nil, mailbox.Unavailable(mailbox.ProviderHosted, fmt.Errorf("create gmail service: %w", err))
	}
	return &Client{srv: srv, logger: logger}, nil
}

// List fetches up to limit message ids matching query, then fans out one
// detail request per id. Results come back in the id order of the list
// response, not arrival order.
func (c *Client) List(ctx context.Context, query, pageToken string, limit int64) ([]mailbox.Message, string, error) {
	call := c.srv.Users.Messages.List(account).Q(query).MaxResults(limit).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, "", mailbox.Unavailable(mailbox.ProviderHosted, fmt.Errorf("list messages: %w", err))
	}
	if len(resp.Messages) == 0 {
		return nil, resp.NextPageToken, nil
	}

	results := make([]mailbox.Message, len(resp.Messages))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(fanOutLimit)
	for i, ref := range resp.Messages {
		group.Go(func() error {
			full, err := c.srv.Users.Messages.Get(account, ref.Id).Format("full").Context(gctx).Do()
			if err != nil {
				return fmt.Errorf("get message %s: %w", ref.Id, err)
			}
			results[i] = normalizeMessage(full)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, "", mailbox.Unavailable(mailbox.ProviderHosted, err)
	}
	return results, resp.NextPageToken, nil
}

// Get fetches one message by its provider-local id and then removes the
// UNREAD label as a separate best-effort call; a mark-read failure is
// logged and never fails the fetch.
func (c *Client) Get(ctx context.Context, localID string) (mailbox.Message, error) {
	full, err := c.srv.Users.Messages.Get(account, localID).Format("full").Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 404 {
			return mailbox.Message{}, mailbox.ErrMessageNotFound
		}
		return mailbox.Message{}, mailbox.Unavailable(mailbox.ProviderHosted, fmt.Errorf("get message: %w", err))
	}
	msg := normalizeMessage(full)

	_, err = c.srv.Users.Messages.Modify(account, localID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		c.logger.Warn("mark read failed", "id", localID, "error", err)
	}
	return msg, nil
}
