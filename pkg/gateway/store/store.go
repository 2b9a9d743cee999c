// Package store persists conversation turns. Persistence is best effort:
// failures are logged by the caller and never block or roll back the live
// session.
package store

import (
	"context"

	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

// Store is the persistence port for the live engine.
type Store interface {
	// ResolveIdentity finds or creates the identity for a browser session.
	// The returned id keys all turns persisted on this connection.
	ResolveIdentity(ctx context.Context, browserSessionID, timezone string) (string, error)

	// SaveTurn records one completed exchange for an identity.
	SaveTurn(ctx context.Context, identityID string, turn types.ConversationTurn) error

	// Close releases the underlying pool.
	Close()
}

// Noop is the degraded store used when no database is configured. Identity
// resolution succeeds with an empty id and saves are silently dropped.
type Noop struct{}

// ResolveIdentity returns an empty identity.
func (Noop) ResolveIdentity(context.Context, string, string) (string, error) { return "", nil }

// SaveTurn drops the turn.
func (Noop) SaveTurn(context.Context, string, types.ConversationTurn) error { return nil }

// Close is a no-op.
func (Noop) Close() {}
