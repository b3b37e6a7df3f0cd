// Package rawmail adapts generic IMAP mailboxes to the normalized message
// model. Every call opens its own session and closes it on every exit
// path; no connection is ever held across requests.
package rawmail

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/qumail/webmail/internal/mailbox"
)

type Client struct {
	host     string
	port     int
	username string
	password string
	tls      bool
	logger   *slog.Logger
}

func NewClient(host string, port int, username, password string, useTLS bool, logger *slog.Logger) *Client {
	return &Client{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      useTLS,
		logger:   logger,
	}
}

func (c *Client) connect(_ context.Context) (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)

	var client *imapclient.Client
	var err error
	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, mailbox.Unavailable(mailbox.ProviderRaw, fmt.Errorf("connect %s: %w", addr, err))
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, mailbox.Unavailable(mailbox.ProviderRaw, fmt.Errorf("login %s: %w", c.username, err))
	}
	return client, nil
}

// List returns up to limit messages newest-first, skipping offset messages
// from the top. A mailbox with fewer messages than limit returns all of
// them; a message whose MIME structure cannot be parsed is skipped and
// logged without aborting the batch.
func (c *Client) List(ctx context.Context, limit int64, offset int) ([]mailbox.Message, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, mailbox.Unavailable(mailbox.ProviderRaw, fmt.Errorf("select inbox: %w", err))
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, mailbox.Unavailable(mailbox.ProviderRaw, fmt.Errorf("search inbox: %w", err))
	}

	uids := newestFirst(searchData.AllUIDs())
	if offset >= len(uids) {
		return nil, nil
	}
	uids = uids[offset:]
	if limit > 0 && int64(len(uids)) > limit {
		uids = uids[:limit]
	}
	if len(uids) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	parsed := make(map[imap.UID]mailbox.Message, len(uids))
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			c.logger.Warn("collect message failed", "error", err)
			continue
		}
		normalized, err := buildMessage(buf, bodySection)
		if err != nil {
			c.logger.Warn("skipping malformed message", "uid", uint32(buf.UID), "error", err)
			continue
		}
		parsed[buf.UID] = normalized
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, mailbox.Unavailable(mailbox.ProviderRaw, fmt.Errorf("fetch inbox: %w", err))
	}

	// The server streams results in mailbox order; reassemble newest-first.
	messages := make([]mailbox.Message, 0, len(parsed))
	for _, uid := range uids {
		if msg, ok := parsed[uid]; ok {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

// GetByUID fetches one message addressed by UID, which is stable across
// sessions unlike sequence numbers, then marks it seen best-effort.
func (c *Client) GetByUID(ctx context.Context, uid uint32) (mailbox.Message, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return mailbox.Message{}, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return mailbox.Message{}, mailbox.Unavailable(mailbox.ProviderRaw, fmt.Errorf("select inbox: %w", err))
	}

	uidSet := imap.UIDSetNum(imap.UID(uid))
	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(uidSet, &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return mailbox.Message{}, mailbox.ErrMessageNotFound
	}
	buf, err := msg.Collect()
	if err != nil {
		return mailbox.Message{}, mailbox.Unavailable(mailbox.ProviderRaw, fmt.Errorf("collect message: %w", err))
	}
	if err := fetchCmd.Close(); err != nil {
		return mailbox.Message{}, mailbox.Unavailable(mailbox.ProviderRaw, fmt.Errorf("fetch message: %w", err))
	}

	normalized, err := buildMessage(buf, bodySection)
	if err != nil {
		return mailbox.Message{}, fmt.Errorf("parse message %d: %w", uid, err)
	}

	storeCmd := client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		c.logger.Warn("mark seen failed", "uid", uid, "error", err)
	}
	return normalized, nil
}

func newestFirst(uids []imap.UID) []imap.UID {
	reversed := make([]imap.UID, len(uids))
	for i, uid := range uids {
		reversed[len(uids)-1-i] = uid
	}
	return reversed
}

// LocalID renders a UID the way namespaced ids embed it.
func LocalID(uid uint32) string {
	return strconv.FormatUint(uint64(uid), 10)
}

// ParseLocalID recovers a UID from the local part of a namespaced id.
func ParseLocalID(localID string) (uint32, error) {
	uid, err := strconv.ParseUint(localID, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad uid %q", mailbox.ErrInvalidID, localID)
	}
	return uint32(uid), nil
}
