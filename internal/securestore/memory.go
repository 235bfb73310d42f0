// Package securestore provides keyguard.SecureStore implementations: a
// process-local store with scriptable prompt outcomes, and a file store whose
// entry is wrapped under a secret obtained from an Authenticator.
package securestore

import (
	"context"
	"sync"

	"github.com/lanedirt/AliasVault-sub004/internal/common"
)

// Memory keeps the key in process memory. PromptErr, when set, is returned
// by the next Store or Retrieve call to simulate a cancelled or failed prompt.
type Memory struct {
	mu        sync.Mutex
	key       []byte
	available bool

	PromptErr     error
	StoreCalls    int
	RetrieveCalls int
}

func NewMemory(available bool) *Memory {
	return &Memory{available: available}
}

func (m *Memory) IsAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *Memory) SetAvailable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = v
}

func (m *Memory) prompt(ctx context.Context) error {
	if ctx.Err() != nil {
		return common.ErrAuthenticationCancelled
	}
	if err := m.PromptErr; err != nil {
		m.PromptErr = nil
		return err
	}
	return nil
}

func (m *Memory) Store(ctx context.Context, key []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StoreCalls++
	if err := m.prompt(ctx); err != nil {
		return err
	}
	common.WipeByteArray(m.key)
	m.key = common.CloneBytes(key)
	return nil
}

func (m *Memory) Retrieve(ctx context.Context, _ string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RetrieveCalls++
	if m.key == nil {
		return nil, common.ErrNoKeyAvailable
	}
	if err := m.prompt(ctx); err != nil {
		return nil, err
	}
	return common.CloneBytes(m.key), nil
}

func (m *Memory) Remove(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	common.WipeByteArray(m.key)
	m.key = nil
	return nil
}

// Has reports whether a key is stored, without prompting.
func (m *Memory) Has() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key != nil
}
