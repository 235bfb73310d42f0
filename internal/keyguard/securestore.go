package keyguard

import "context"

// SecureStore is a device-authentication gated store holding at most one
// raw vault key. Implementations map a dismissed prompt to
// common.ErrAuthenticationCancelled, a rejected one to
// common.ErrAuthenticationFailed and a missing entry to
// common.ErrNoKeyAvailable.
type SecureStore interface {
	IsAvailable() bool
	Store(ctx context.Context, key []byte, prompt string) error
	Retrieve(ctx context.Context, prompt string) ([]byte, error)
	Remove(ctx context.Context) error
}
