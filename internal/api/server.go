package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"golang.org/x/oauth2"

	"github.com/qumail/webmail/internal/auth"
	"github.com/qumail/webmail/internal/config"
	"github.com/qumail/webmail/internal/credentials"
	"github.com/qumail/webmail/internal/inbox"
	"github.com/qumail/webmail/internal/mailbox"
	"github.com/qumail/webmail/internal/pagination"
	"github.com/qumail/webmail/internal/store"
)

// InboxService is the unification controller surface the handlers use.
type InboxService interface {
	List(ctx context.Context, user store.User, query, pageToken string, limit int64) (inbox.ListResult, error)
	Get(ctx context.Context, user store.User, id string) (mailbox.Message, error)
}

// MailSender is the outbound delivery surface.
type MailSender interface {
	Send(ctx context.Context, bundle credentials.Bundle, from, to, subject, body string) (string, error)
}

type Server struct {
	cfg      config.Config
	store    *store.Store
	auth     *auth.Manager
	inbox    InboxService
	sender   MailSender
	resolver inbox.CredentialResolver
	logger   *slog.Logger
	mux      *http.ServeMux
}

func NewServer(cfg config.Config, st *store.Store, authManager *auth.Manager, inboxService InboxService, sender MailSender, resolver inbox.CredentialResolver, logger *slog.Logger) *Server {
	server := &Server{
		cfg:      cfg,
		store:    st,
		auth:     authManager,
		inbox:    inboxService,
		sender:   sender,
		resolver: resolver,
		logger:   logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/google", server.handleGoogleAuth)
	mux.HandleFunc("/auth/app-login", server.handleAppLogin)
	mux.HandleFunc("/email/inbox", server.withUser(server.handleInbox))
	mux.HandleFunc("/email/message/", server.withUser(server.handleMessage))
	mux.HandleFunc("/email/send", server.withUser(server.handleSend))
	mux.HandleFunc("/health", server.handleHealth)
	server.mux = mux
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := s.cfg.AllowedOrigin
	w.Header().Set("Access-Control-Allow-Origin", origin)
	if origin != "*" {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// withUser enforces the bearer boundary: a missing or invalid token is
// rejected here and the mail core is never invoked.
func (s *Server) withUser(next func(http.ResponseWriter, *http.Request, store.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		claims, err := s.auth.Parse(token)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "unauthorized", "token verification failed")
			return
		}
		user, err := s.store.GetUser(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				s.respondError(w, http.StatusUnauthorized, "unauthorized", "user not found")
				return
			}
			s.respondError(w, http.StatusInternalServerError, "internal", "unable to load user")
			return
		}
		next(w, r, user)
	}
}

type userPayload struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

func toUserPayload(user store.User) userPayload {
	return userPayload{ID: user.ID, Email: user.Email, Name: user.Name, Picture: user.Picture}
}

// handleGoogleAuth accepts an implicit-flow access token, resolves the
// account behind it and issues a bearer token for this API.
func (s *Server) handleGoogleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	accessToken := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if accessToken == "" {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "missing access token")
		return
	}

	info, err := s.fetchUserinfo(r.Context(), accessToken)
	if err != nil {
		s.logger.Warn("google userinfo lookup failed", "error", err)
		s.respondError(w, http.StatusUnauthorized, "unauthorized", "access token rejected by provider")
		return
	}
	email, err := auth.NormalizeEmail(info.Email)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthorized", "provider returned no usable email")
		return
	}

	now := time.Now()
	// Implicit-flow tokens carry no refresh token and live about an hour.
	user, err := s.store.UpsertOAuthUser(r.Context(), email, info.Name, info.Picture, accessToken, "", now.Add(time.Hour), now)
	if err != nil {
		s.logger.Error("upsert oauth user", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal", "unable to save user")
		return
	}

	token, err := s.auth.Issue(user.ID, user.Email, now)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "internal", "unable to create session")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  toUserPayload(user),
	})
}

func (s *Server) fetchUserinfo(ctx context.Context, accessToken string) (*googleoauth.Userinfo, error) {
	srv, err := googleoauth.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})))
	if err != nil {
		return nil, err
	}
	return srv.Userinfo.Get().Context(ctx).Do()
}

func (s *Server) handleAppLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var payload struct {
		Email       string `json:"email"`
		AppPassword string `json:"appPassword"`
		IMAPHost    string `json:"imapHost"`
		IMAPPort    int    `json:"imapPort"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON")
		return
	}
	email, err := auth.NormalizeEmail(payload.Email)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(payload.AppPassword) == "" {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "app password is required")
		return
	}
	host := strings.TrimSpace(payload.IMAPHost)
	if host == "" {
		host = s.cfg.IMAPHost
	}
	port := payload.IMAPPort
	if port <= 0 {
		port = s.cfg.IMAPPort
	}

	now := time.Now()
	name := email[:strings.Index(email, "@")]
	user, err := s.store.UpsertIMAPUser(r.Context(), email, name, host, port, email, payload.AppPassword, true, now)
	if err != nil {
		s.logger.Error("upsert imap user", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal", "unable to save user")
		return
	}

	token, err := s.auth.Issue(user.ID, user.Email, now)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "internal", "unable to create session")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  toUserPayload(user),
	})
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request, user store.User) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	params := pagination.FromQuery(r.URL.Query())
	result, err := s.inbox.List(r.Context(), user, params.Query, params.PageToken, params.Limit)
	if err != nil {
		if errors.Is(err, mailbox.ErrInvalidCursor) {
			s.respondError(w, http.StatusBadRequest, "invalid_cursor", "invalid page token")
			return
		}
		s.logger.Error("list inbox", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal", "unable to list inbox")
		return
	}

	response := map[string]any{
		"emails":                emailsOrEmpty(result.Messages),
		"nextPageToken":         result.NextPageToken,
		"approximatePagination": result.Approximate,
	}
	if result.Condition != nil {
		response["error"] = result.Condition
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request, user store.User) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/email/message/")
	if id == "" || strings.Contains(id, "/") {
		s.respondError(w, http.StatusNotFound, "not_found", "not found")
		return
	}

	msg, err := s.inbox.Get(r.Context(), user, id)
	if err != nil {
		s.respondMailError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, msg)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, user store.User) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var payload struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON")
		return
	}
	to, err := auth.NormalizeEmail(payload.To)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "recipient must be a valid address")
		return
	}
	if strings.TrimSpace(payload.Subject) == "" && strings.TrimSpace(payload.Body) == "" {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "subject or body required")
		return
	}

	bundle, err := s.resolver.Resolve(r.Context(), user)
	if err != nil {
		s.respondMailError(w, err)
		return
	}
	messageID, err := s.sender.Send(r.Context(), bundle, user.Email, to, payload.Subject, payload.Body)
	if err != nil {
		s.respondMailError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"messageId": messageID,
		"message":   "email sent",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// respondMailError maps the classified taxonomy onto structured HTTP
// responses; a raw transport error never reaches the wire.
func (s *Server) respondMailError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mailbox.ErrInvalidID):
		s.respondError(w, http.StatusBadRequest, "invalid_id", "invalid message id")
	case errors.Is(err, mailbox.ErrMessageNotFound):
		s.respondError(w, http.StatusNotFound, "not_found", "message not found")
	case errors.Is(err, mailbox.ErrNoCredentials):
		s.respondError(w, http.StatusBadRequest, inbox.CodeNoMailbox, "no mail account configured for this user")
	case mailbox.IsUnavailable(err, mailbox.ProviderHosted):
		s.respondError(w, http.StatusServiceUnavailable, inbox.CodeHostedUnavailable, "hosted mail backend unavailable; check your account credentials")
	case mailbox.IsUnavailable(err, mailbox.ProviderRaw):
		s.respondError(w, http.StatusServiceUnavailable, inbox.CodeRawUnavailable, "mail server unreachable; check your mail credentials")
	default:
		s.logger.Error("mail operation failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal", "mail operation failed")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func emailsOrEmpty(messages []mailbox.Message) []mailbox.Message {
	if messages == nil {
		return []mailbox.Message{}
	}
	return messages
}
