// Package access defines how the custody engines ask who may administer them
// and whether operations are globally halted.
package access

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xraph/custody/types"
)

// Authorizer answers administrative access and pause questions.
// Implementations must be safe for concurrent use.
type Authorizer interface {
	// IsAuthorizedAdmin reports whether caller may perform administrative
	// operations.
	IsAuthorizedAdmin(ctx context.Context, caller types.Address) bool

	// IsPaused reports whether state-mutating operations are halted.
	IsPaused(ctx context.Context) bool
}

// Compile-time interface check.
var _ Authorizer = (*Static)(nil)

// Static is an in-process Authorizer backed by a fixed admin set and a pause
// flag.
type Static struct {
	mu     sync.RWMutex
	admins map[types.Address]bool
	paused atomic.Bool
}

// NewStatic creates a Static authorizer granting admin to the given addresses.
func NewStatic(admins ...types.Address) *Static {
	s := &Static{admins: make(map[types.Address]bool, len(admins))}
	for _, a := range admins {
		s.admins[a.Normalize()] = true
	}
	return s
}

// IsAuthorizedAdmin implements Authorizer.
func (s *Static) IsAuthorizedAdmin(_ context.Context, caller types.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admins[caller.Normalize()]
}

// IsPaused implements Authorizer.
func (s *Static) IsPaused(_ context.Context) bool {
	return s.paused.Load()
}

// Grant adds an admin.
func (s *Static) Grant(a types.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[a.Normalize()] = true
}

// Revoke removes an admin.
func (s *Static) Revoke(a types.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.admins, a.Normalize())
}

// Pause halts all state-mutating operations.
func (s *Static) Pause() { s.paused.Store(true) }

// Unpause resumes operations.
func (s *Static) Unpause() { s.paused.Store(false) }
