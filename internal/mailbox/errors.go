package mailbox

import (
	"errors"
	"fmt"
)

// ErrNoCredentials means neither backend is configured for the user. It is
// terminal for a fetch: no network call is attempted and nothing retries.
var ErrNoCredentials = errors.New("no mailbox configured")

// ErrMessageNotFound reports a provider-local id that the owning provider
// does not know.
var ErrMessageNotFound = errors.New("message not found")

// UnavailableError classifies an auth or transport failure at one
// provider. Adapters convert every provider-level failure into this type
// before it crosses into the unification controller; the controller never
// sees a raw transport error.
type UnavailableError struct {
	Provider Provider
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s mail backend unavailable: %v", e.Provider, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps err as an UnavailableError for the given provider.
func Unavailable(provider Provider, err error) error {
	return &UnavailableError{Provider: provider, Err: err}
}

// IsUnavailable reports whether err is a classified outage of the given
// provider.
func IsUnavailable(err error, provider Provider) bool {
	var ue *UnavailableError
	return errors.As(err, &ue) && ue.Provider == provider
}
