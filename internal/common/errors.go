// Package common defines the sentinel errors and small helpers shared by the
// vault engine packages. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Key access errors.
	ErrNoKeyAvailable          = errors.New("no key available")
	ErrAuthenticationCancelled = errors.New("authentication cancelled")
	ErrAuthenticationFailed    = errors.New("authentication failed")

	// Blob and database errors.
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrCorruptVault     = errors.New("corrupt vault")

	// Query surface errors, propagated as-is to the caller.
	ErrQuery  = errors.New("query error")
	ErrUpdate = errors.New("update error")

	// Persistence errors.
	ErrStorage = errors.New("storage error")

	// Raised when the database handle is gone (locked or never unlocked).
	ErrNotInitialized = errors.New("database not initialized")
)
