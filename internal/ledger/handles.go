package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	dErrors "assent/pkg/domain-errors"
	"assent/pkg/secrets"
)

const defaultHandleTTL = 5 * time.Minute

// DownloadHandle is the client-facing reference to a pending export.
// The plaintext token is returned exactly once at issue time; only its
// bcrypt hash is retained.
type DownloadHandle struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type storedHandle struct {
	userID    string
	tokenHash string
	expiresAt time.Time
}

// HandleRegistry issues and redeems single-use export download handles.
type HandleRegistry struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	handles map[string]storedHandle
}

// HandleOption configures a HandleRegistry.
type HandleOption func(*HandleRegistry)

// WithHandleTTL sets how long an issued handle stays redeemable.
func WithHandleTTL(ttl time.Duration) HandleOption {
	return func(r *HandleRegistry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithHandleClock overrides the time source for tests.
func WithHandleClock(now func() time.Time) HandleOption {
	return func(r *HandleRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewHandleRegistry creates an empty registry.
func NewHandleRegistry(opts ...HandleOption) *HandleRegistry {
	r := &HandleRegistry{
		ttl:     defaultHandleTTL,
		now:     time.Now,
		handles: make(map[string]storedHandle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Issue mints a fresh handle for the user's pending export.
func (r *HandleRegistry) Issue(_ context.Context, userID string) (DownloadHandle, error) {
	if userID == "" {
		return DownloadHandle{}, dErrors.New(dErrors.CodeUnauthorized, "missing user context")
	}
	token, err := secrets.Generate()
	if err != nil {
		return DownloadHandle{}, err
	}
	hash, err := secrets.Hash(token)
	if err != nil {
		return DownloadHandle{}, err
	}

	now := r.now()
	handle := DownloadHandle{
		ID:        uuid.New().String(),
		Token:     token,
		ExpiresAt: now.Add(r.ttl),
	}

	r.mu.Lock()
	r.handles[handle.ID] = storedHandle{
		userID:    userID,
		tokenHash: hash,
		expiresAt: handle.ExpiresAt,
	}
	r.prune(now)
	r.mu.Unlock()

	return handle, nil
}

// Redeem consumes a handle and returns the owning user ID. A handle
// redeems at most once; expiry and token mismatch both burn nothing.
func (r *HandleRegistry) Redeem(_ context.Context, id, token string) (string, error) {
	now := r.now()

	r.mu.Lock()
	stored, ok := r.handles[id]
	if ok && now.After(stored.expiresAt) {
		delete(r.handles, id)
		ok = false
	}
	r.mu.Unlock()

	if !ok {
		return "", dErrors.New(dErrors.CodeHandleExpired, "download handle expired or unknown")
	}
	if err := secrets.Verify(token, stored.tokenHash); err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid download token")
	}

	// Burn only after the token checked out.
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()

	return stored.userID, nil
}

// Len reports outstanding handles, for metrics and tests.
func (r *HandleRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// prune drops expired handles. Caller holds the lock.
func (r *HandleRegistry) prune(now time.Time) {
	for id, h := range r.handles {
		if now.After(h.expiresAt) {
			delete(r.handles, id)
		}
	}
}
