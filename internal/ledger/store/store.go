package store

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Repository

import (
	"context"

	"assent/internal/ledger/models"
	dErrors "assent/pkg/domain-errors"
)

// ErrNotFound keeps storage-specific 404s consistent across implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "ledger state not found")

// Repository persists per-user ledger state.
//
// Error Contract:
// - Load returns ErrNotFound when the user has no stored state
// - Load returns ErrNotFound for corrupt stored payloads after clearing them;
//   corrupt data is treated as "no prior state", never surfaced to callers
// - Save and Clear return nil on success or wrapped errors on failure
//
// The ledger treats every failure here as non-fatal: in-memory state stays
// authoritative and a warning is logged.
type Repository interface {
	Load(ctx context.Context, userID string) (*models.State, error)
	Save(ctx context.Context, userID string, state *models.State) error
	Clear(ctx context.Context, userID string) error
}
