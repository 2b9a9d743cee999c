package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PG is the Postgres-backed store.
type PG struct {
	pool *pgxpool.Pool
}

// NewPG connects to Postgres and applies pending migrations.
func NewPG(ctx context.Context, databaseURL string) (*PG, error) {
	if err := migrate(databaseURL); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PG{pool: pool}, nil
}

// migrate runs goose over database/sql; the pgx stdlib driver is registered
// for this purpose only, live queries go through the pool.
func migrate(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// ResolveIdentity upserts the identity row for a browser session. The
// timezone is refreshed on every resolve so the stored value tracks the
// client's most recent report.
func (s *PG) ResolveIdentity(ctx context.Context, browserSessionID, timezone string) (string, error) {
	if browserSessionID == "" {
		return "", nil
	}
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO identities (browser_session_id, timezone)
		VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (browser_session_id)
		DO UPDATE SET timezone = COALESCE(NULLIF(EXCLUDED.timezone, ''), identities.timezone),
		              last_seen_at = now()
		RETURNING id`,
		browserSessionID, timezone).Scan(&id)
	if err != nil {
		return "", core.NewPersistenceError(fmt.Errorf("resolve identity: %w", err))
	}
	return id, nil
}

// SaveTurn records one completed exchange.
func (s *PG) SaveTurn(ctx context.Context, identityID string, turn types.ConversationTurn) error {
	var identity any
	if identityID != "" {
		identity = identityID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_turns (identity_id, mode, user_text, agent_text, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		identity, string(turn.Mode), turn.User, turn.Agent, turn.Timestamp)
	if err != nil {
		return core.NewPersistenceError(fmt.Errorf("save turn: %w", err))
	}
	return nil
}

// Close releases the pool.
func (s *PG) Close() {
	s.pool.Close()
}
