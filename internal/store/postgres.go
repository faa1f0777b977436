package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEntryNotFound is returned when no entry exists for an id.
var ErrEntryNotFound = errors.New("entry not found")

// Entry is a fantasy team ("entry") with its season-level totals.
type Entry struct {
	ID            int    `json:"id"`
	EntryName     string `json:"entryName"`
	PlayerName    string `json:"playerName"`
	Region        string `json:"region,omitempty"`
	StartedEvent  int    `json:"startedEvent"`
	OverallPoints int    `json:"overallPoints"`
	OverallRank   int    `json:"overallRank"`
}

// EntryReader reads entry records.
type EntryReader interface {
	GetEntry(ctx context.Context, id int) (*Entry, error)
}

// PostgresStore reads entry history from PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	return s.pool.Ping(ctx)
}

const getEntrySQL = `
SELECT id, entry_name, player_name, COALESCE(region, ''), started_event,
       overall_points, overall_rank
FROM entry_info
WHERE id = $1`

func (s *PostgresStore) GetEntry(ctx context.Context, id int) (*Entry, error) {
	var e Entry
	err := s.pool.QueryRow(ctx, getEntrySQL, id).Scan(
		&e.ID, &e.EntryName, &e.PlayerName, &e.Region, &e.StartedEvent,
		&e.OverallPoints, &e.OverallRank,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrEntryNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %d: %w", id, err)
	}
	return &e, nil
}
