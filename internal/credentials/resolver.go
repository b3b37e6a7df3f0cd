// Package credentials decides which mail backends a user's stored record
// can reach and hands the adapters ready-to-use credentials.
package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/qumail/webmail/internal/mailbox"
	"github.com/qumail/webmail/internal/store"
)

// Scopes the hosted backend needs: read, modify (mark-read) and send.
var gmailScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/gmail.send",
}

type HostedCreds struct {
	Token *oauth2.Token
}

type RawCreds struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
}

// Bundle holds the usable backends for one fetch. Either field may be nil;
// the unification controller tries hosted first by policy.
type Bundle struct {
	Hosted *HostedCreds
	Raw    *RawCreds
}

type Resolver struct {
	store  *store.Store
	oauth  *oauth2.Config
	logger *slog.Logger
	now    func() time.Time
}

func NewResolver(st *store.Store, clientID, clientSecret string, logger *slog.Logger) *Resolver {
	return &Resolver{
		store: st,
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       gmailScopes,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Resolve inspects the user record and returns the credential sets a fetch
// may use. An expired hosted token with a refresh token is refreshed here
// and the updated token persisted back before returning; this is the only
// write on the read path. When neither backend is usable the result is
// mailbox.ErrNoCredentials.
func (r *Resolver) Resolve(ctx context.Context, user store.User) (Bundle, error) {
	var bundle Bundle

	if user.HasOAuth() {
		token := &oauth2.Token{
			AccessToken:  user.AccessToken,
			RefreshToken: user.RefreshToken,
			Expiry:       user.TokenExpiry,
		}
		switch {
		case token.Valid():
			bundle.Hosted = &HostedCreds{Token: token}
		case token.RefreshToken != "":
			refreshed, err := r.refresh(ctx, user, token)
			if err != nil {
				r.logger.Warn("oauth token refresh failed", "user", user.Email, "error", err)
			} else {
				bundle.Hosted = &HostedCreds{Token: refreshed}
			}
		default:
			r.logger.Info("oauth token expired and not refreshable", "user", user.Email)
		}
	}

	if user.HasIMAP() {
		bundle.Raw = &RawCreds{
			Host:     user.IMAPHost,
			Port:     user.IMAPPort,
			Username: user.IMAPUsername,
			Password: user.IMAPPassword,
			TLS:      user.IMAPTLS,
		}
	}

	if bundle.Hosted == nil && bundle.Raw == nil {
		return Bundle{}, mailbox.ErrNoCredentials
	}
	return bundle, nil
}

func (r *Resolver) refresh(ctx context.Context, user store.User, token *oauth2.Token) (*oauth2.Token, error) {
	refreshed, err := r.oauth.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if err := r.store.UpdateOAuthToken(ctx, user.ID, refreshed.AccessToken, refreshed.RefreshToken, refreshed.Expiry, r.now()); err != nil {
		// The refreshed token is still good for this request even if the
		// persist failed; the next request pays the refresh again.
		r.logger.Warn("persist refreshed token failed", "user", user.Email, "error", err)
	}
	return refreshed, nil
}
