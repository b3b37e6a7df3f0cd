package store

import "time"

// User is the per-account credential record. A user may carry a Google
// OAuth token, IMAP account credentials, or both; the credential resolver
// decides which backends a fetch can use.
type User struct {
	ID        string
	Email     string
	Name      string
	Picture   string
	CreatedAt time.Time
	UpdatedAt time.Time

	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time

	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string
	IMAPTLS      bool
}

// HasOAuth reports whether a Google token is stored at all; validity and
// refreshability are the resolver's concern.
func (u User) HasOAuth() bool {
	return u.AccessToken != "" || u.RefreshToken != ""
}

// HasIMAP reports whether a complete IMAP credential set is stored.
func (u User) HasIMAP() bool {
	return u.IMAPHost != "" && u.IMAPUsername != "" && u.IMAPPassword != ""
}
