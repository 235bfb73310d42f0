package securestore

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/lanedirt/AliasVault-sub004/internal/common"
	"golang.org/x/term"
)

// TermAuthenticator reads the secret from a terminal without echo. An empty
// answer or a cancelled context counts as a dismissed prompt.
//
// The read is synchronous: a cancellation that arrives while the user is
// typing takes effect once the line is submitted, and the answer is then
// discarded. No reader is left behind to consume later input.
type TermAuthenticator struct {
	fd         int
	out        io.Writer
	readSecret func(fd int) ([]byte, error)
}

func NewTermAuthenticator() *TermAuthenticator {
	return &TermAuthenticator{fd: int(os.Stdin.Fd()), out: os.Stderr, readSecret: term.ReadPassword}
}

func (a *TermAuthenticator) Available() bool {
	return term.IsTerminal(a.fd)
}

func (a *TermAuthenticator) Secret(ctx context.Context, prompt string) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, common.ErrAuthenticationCancelled
	}

	fmt.Fprintf(a.out, "%s: ", prompt)
	b, err := a.readSecret(a.fd)
	fmt.Fprintln(a.out)

	if ctx.Err() != nil {
		common.WipeByteArray(b)
		return nil, common.ErrAuthenticationCancelled
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrAuthenticationCancelled, err)
	}
	if len(b) == 0 {
		return nil, common.ErrAuthenticationCancelled
	}
	return b, nil
}
