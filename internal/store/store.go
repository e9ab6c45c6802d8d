// Package store defines the persistence interface for game sessions.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and single-process play).
package store

import (
	"context"
	"errors"

	"github.com/maejeom/market-game/internal/model"
	"github.com/maejeom/market-game/internal/simulator"
)

// ErrNotFound is returned when a session has no saved state or series.
var ErrNotFound = errors.New("store: not found")

// Store persists the (series, ledger) pair of each session. Calls are
// synchronous and either succeed fully or return an error.
type Store interface {
	// --- Ledger state ---

	// LoadState returns the saved ledger of a session, or ErrNotFound.
	LoadState(ctx context.Context, sessionID string) (*model.LedgerState, error)

	// SaveState replaces the saved ledger of a session.
	SaveState(ctx context.Context, sessionID string, state model.LedgerState) error

	// --- Simulated market ---

	// LoadSeries returns the saved market history of a session, or ErrNotFound.
	LoadSeries(ctx context.Context, sessionID string) (*simulator.Series, error)

	// SaveSeries replaces the saved market history of a session.
	SaveSeries(ctx context.Context, sessionID string, series *simulator.Series) error

	// --- Sessions ---

	// DeleteSession removes everything saved for a session.
	DeleteSession(ctx context.Context, sessionID string) error

	// ListSessions returns the ids of sessions with saved state.
	ListSessions(ctx context.Context) ([]string, error)
}
