package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/prizewheel/internal/domain"
	"github.com/victornm/prizewheel/internal/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Config struct {
	DB *pgxpool.Pool
}

// Service keeps an append-only log of resolved spins.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
	}
}

// RecordSpin appends a spin to the log.
func (s *Service) RecordSpin(ctx context.Context, sp domain.Spin) error {
	const stmt = `
INSERT INTO spins (spin_id, session_id, roulette_number, winning_index, winning_label, rotation, forced, no_duplicate, spin_time, settle_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err := s.db.Exec(ctx, stmt,
		sp.SpinID, sp.SessionID, sp.RouletteNumber, sp.WinningIndex, sp.WinningLabel,
		sp.Rotation, sp.Forced, sp.NoDuplicate, sp.SpinTime, sp.SettleTime,
	)
	if err != nil {
		return fmt.Errorf("insert spin: %w", err)
	}

	return nil
}

type ListSpinsRequest struct {
	RouletteNumber int
	Limit          int
}

// ListSpins returns the latest spins of a roulette, newest first.
func (s *Service) ListSpins(ctx context.Context, req ListSpinsRequest) ([]domain.Spin, error) {
	limit := req.Limit
	switch {
	case limit < 0:
		return nil, errors.InvalidArgument("limit must not be negative, got %d", limit)
	case limit == 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	const stmt = `
SELECT spin_id, session_id, roulette_number, winning_index, winning_label, rotation, forced, no_duplicate, spin_time, settle_time
FROM spins
WHERE roulette_number = $1
ORDER BY spin_time DESC
LIMIT $2;`

	rows, err := s.db.Query(ctx, stmt, req.RouletteNumber, limit)
	if err != nil {
		return nil, fmt.Errorf("list spins: %w", err)
	}

	spins, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Spin, error) {
		var sp domain.Spin
		err := r.Scan(&sp.SpinID, &sp.SessionID, &sp.RouletteNumber, &sp.WinningIndex, &sp.WinningLabel,
			&sp.Rotation, &sp.Forced, &sp.NoDuplicate, &sp.SpinTime, &sp.SettleTime)
		return sp, err
	})
	if err != nil {
		return nil, fmt.Errorf("list spins: %w", err)
	}

	return spins, nil
}
