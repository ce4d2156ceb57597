package roulette

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/patrickmn/go-cache"

	"github.com/victornm/prizewheel/internal/domain"
	"github.com/victornm/prizewheel/internal/errors"
	"github.com/victornm/prizewheel/internal/event"
)

const (
	defaultCacheTTL = 30 * time.Second
	cleanupInterval = time.Minute
)

type Config struct {
	DB       *pgxpool.Pool
	EventBus *event.Bus
	// CacheTTL bounds how long a definition is served from memory. Changes made through this
	// instance invalidate its cache immediately; other instances see them once their entry expires.
	CacheTTL time.Duration
}

type Service struct {
	db    *pgxpool.Pool
	eb    *event.Bus
	cache *cache.Cache
}

func NewService(c Config) *Service {
	ttl := c.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	s := &Service{
		db:    c.DB,
		eb:    c.EventBus,
		cache: cache.New(ttl, cleanupInterval),
	}

	return s
}

const selectColumns = `number, name, segments, winner_identities, COALESCE(forced_outcome, ''), create_time, update_time`

// CreateRouletteRequest represents a request to create a new roulette.
type CreateRouletteRequest struct {
	Number           int
	Name             string
	Segments         []string
	WinnerIdentities []string
	ForcedOutcome    string
	// SegmentCount, when non-zero, must match len(Segments).
	SegmentCount int
}

// CreateRoulette stores a new roulette. The number must not be taken.
func (s *Service) CreateRoulette(ctx context.Context, req CreateRouletteRequest) (*domain.Roulette, error) {
	r := &domain.Roulette{
		Number:           req.Number,
		Name:             req.Name,
		Segments:         req.Segments,
		WinnerIdentities: req.WinnerIdentities,
		ForcedOutcome:    req.ForcedOutcome,
	}
	normalize(r)

	if err := validate(r, req.SegmentCount); err != nil {
		return nil, err
	}

	const stmt = `
INSERT INTO roulettes (number, name, segment_count, segments, winner_identities, forced_outcome)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
RETURNING create_time, update_time;`

	err := s.db.QueryRow(ctx, stmt, r.Number, r.Name, r.SegmentCount(), r.Segments, r.WinnerIdentities, r.ForcedOutcome).
		Scan(&r.CreateTime, &r.UpdateTime)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("roulette number %d already exists", r.Number),
			errors.WithCause(err))
	}

	if err != nil {
		return nil, fmt.Errorf("insert roulette: %w", err)
	}

	s.eb.Publish(ctx, domain.EventRouletteChanged{Number: r.Number, Change: domain.RouletteCreated})

	return r, nil
}

type GetRouletteRequest struct {
	Number int
}

// GetRoulette returns a roulette definition, from cache when possible.
func (s *Service) GetRoulette(ctx context.Context, req GetRouletteRequest) (*domain.Roulette, error) {
	if v, ok := s.cache.Get(cacheKey(req.Number)); ok {
		r := v.(domain.Roulette)
		return &r, nil
	}

	r, err := s.queryRoulette(ctx, s.db, req.Number, false)
	if err != nil {
		return nil, err
	}

	s.cache.SetDefault(cacheKey(req.Number), *r)

	return r, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Service) queryRoulette(ctx context.Context, q querier, number int, forUpdate bool) (*domain.Roulette, error) {
	stmt := `SELECT ` + selectColumns + ` FROM roulettes WHERE number = $1`
	if forUpdate {
		stmt += ` FOR UPDATE`
	}

	var r domain.Roulette
	err := q.QueryRow(ctx, stmt, number).Scan(
		&r.Number, &r.Name, &r.Segments, &r.WinnerIdentities, &r.ForcedOutcome, &r.CreateTime, &r.UpdateTime,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("roulette not found: number=%d", number))
	}
	if err != nil {
		return nil, fmt.Errorf("get roulette: %w", err)
	}

	return &r, nil
}

type ListRoulettesRequest struct {
	// Full returns complete definitions. Otherwise only number and name are filled.
	Full bool
}

// ListRoulettes returns all roulettes ordered by number.
func (s *Service) ListRoulettes(ctx context.Context, req ListRoulettesRequest) ([]domain.Roulette, error) {
	var stmt = `SELECT number, name FROM roulettes ORDER BY number;`
	if req.Full {
		stmt = `SELECT ` + selectColumns + ` FROM roulettes ORDER BY number;`
	}

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list roulettes: %w", err)
	}

	roulettes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Roulette, error) {
		var r domain.Roulette
		if !req.Full {
			err := row.Scan(&r.Number, &r.Name)
			return r, err
		}

		err := row.Scan(&r.Number, &r.Name, &r.Segments, &r.WinnerIdentities, &r.ForcedOutcome, &r.CreateTime, &r.UpdateTime)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("list roulettes: %w", err)
	}

	return roulettes, nil
}

// UpdateRouletteRequest carries a partial update. Nil fields are left untouched.
type UpdateRouletteRequest struct {
	Number           int
	Name             *string
	Segments         []string
	WinnerIdentities []string
	// ForcedOutcome set to an empty string clears the forced outcome.
	ForcedOutcome *string
	SegmentCount  int
}

// UpdateRoulette applies a partial update and returns the stored result.
func (s *Service) UpdateRoulette(ctx context.Context, req UpdateRouletteRequest) (r *domain.Roulette, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	r, err = s.queryRoulette(ctx, tx, req.Number, true)
	if err != nil {
		return nil, err
	}

	applyUpdate(r, req)
	normalize(r)

	if err = validate(r, req.SegmentCount); err != nil {
		return nil, err
	}

	const stmt = `
UPDATE roulettes
SET name = $2, segment_count = $3, segments = $4, winner_identities = $5, forced_outcome = NULLIF($6, ''), update_time = now()
WHERE number = $1
RETURNING update_time;`

	if err = tx.QueryRow(ctx, stmt, r.Number, r.Name, r.SegmentCount(), r.Segments, r.WinnerIdentities, r.ForcedOutcome).
		Scan(&r.UpdateTime); err != nil {
		return nil, fmt.Errorf("update roulette: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.cache.Delete(cacheKey(r.Number))
	s.eb.Publish(ctx, domain.EventRouletteChanged{Number: r.Number, Change: domain.RouletteUpdated})

	return r, nil
}

type DeleteRouletteRequest struct {
	Number int
}

func (s *Service) DeleteRoulette(ctx context.Context, req DeleteRouletteRequest) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM roulettes WHERE number = $1;`, req.Number)
	if err != nil {
		return fmt.Errorf("delete roulette: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("roulette not found: number=%d", req.Number))
	}

	s.cache.Delete(cacheKey(req.Number))
	s.eb.Publish(ctx, domain.EventRouletteChanged{Number: req.Number, Change: domain.RouletteDeleted})

	return nil
}

// Seed inserts the default roulette when the store has no roulette #1 yet.
func (s *Service) Seed(ctx context.Context) error {
	d := DefaultRoulette()

	const stmt = `
INSERT INTO roulettes (number, name, segment_count, segments, winner_identities)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (number) DO NOTHING;`

	tag, err := s.db.Exec(ctx, stmt, d.Number, d.Name, d.SegmentCount(), d.Segments, d.WinnerIdentities)
	if err != nil {
		return fmt.Errorf("seed roulette: %w", err)
	}

	if tag.RowsAffected() > 0 {
		slog.InfoContext(ctx, "roulette: seeded default roulette", "number", d.Number, "name", d.Name)
	}

	return nil
}

// DefaultRoulette is the roulette a fresh installation starts with.
func DefaultRoulette() domain.Roulette {
	return domain.Roulette{
		Number:           1,
		Name:             "Fruits",
		Segments:         []string{"Apple", "Mandarin", "Peach", "Watermelon"},
		WinnerIdentities: []string{},
	}
}

func cacheKey(number int) string {
	return strconv.Itoa(number)
}
