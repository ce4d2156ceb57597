package ledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/prizewheel/internal/domain"
	"github.com/victornm/prizewheel/internal/errors"
)

const defaultTTL = 24 * time.Hour

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
	// TTL is how long an idle ledger is kept. Every write refreshes it.
	TTL time.Duration
	Now func() time.Time
}

// Service stores session ledgers in Redis. A ledger belongs to one (session, roulette) pair.
type Service struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    c.TTL,
		now:    c.Now,
	}

	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type Key struct {
	SessionID      string
	RouletteNumber int
}

func (k Key) validate() error {
	if strings.TrimSpace(k.SessionID) == "" {
		return errors.InvalidArgument("session id is required")
	}
	if k.RouletteNumber <= 0 {
		return errors.InvalidArgument("roulette number must be positive, got %d", k.RouletteNumber)
	}
	return nil
}

// GetLedger returns the ledger, empty when nothing was won yet.
func (s *Service) GetLedger(ctx context.Context, k Key) (*domain.Ledger, error) {
	if err := k.validate(); err != nil {
		return nil, err
	}

	var (
		won         *redis.StringSliceCmd
		assignments *redis.MapStringStringCmd
		rotation    *redis.StringCmd
	)

	_, err := s.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		won = p.ZRange(ctx, s.wonKey(k), 0, -1)
		assignments = p.HGetAll(ctx, s.assignmentsKey(k))
		rotation = p.Get(ctx, s.rotationKey(k))
		return nil
	})
	if err != nil && !stderrors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get ledger: %w", err)
	}

	l := &domain.Ledger{
		SessionID:      k.SessionID,
		RouletteNumber: k.RouletteNumber,
		WonSegments:    won.Val(),
		WonAssignments: assignments.Val(),
	}

	if v, err := rotation.Result(); err == nil {
		if l.Rotation, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("parse rotation %q: %w", v, err)
		}
	}

	return l, nil
}

type CommitWinRequest struct {
	Key
	Label string
	// Identities are the roulette's winner identities. Blank ones are skipped.
	Identities []string
}

// CommitWin marks a segment as won and assigns it the next unused identity.
// It returns the assigned identity, empty when none is left or the segment was already won.
func (s *Service) CommitWin(ctx context.Context, req CommitWinRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	if req.Label == "" {
		return "", errors.InvalidArgument("won segment is required")
	}

	added, err := s.redis.ZAddNX(ctx, s.wonKey(req.Key), redis.Z{
		Score:  float64(s.now().UnixMilli()),
		Member: req.Label,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("add won segment: %w", err)
	}

	var assigned string
	if added > 0 {
		if assigned, err = s.assignIdentity(ctx, req); err != nil {
			return "", err
		}
	}

	if err := s.touch(ctx, req.Key); err != nil {
		return "", err
	}

	return assigned, nil
}

func (s *Service) assignIdentity(ctx context.Context, req CommitWinRequest) (string, error) {
	valid := make([]string, 0, len(req.Identities))
	for _, id := range req.Identities {
		if strings.TrimSpace(id) != "" {
			valid = append(valid, id)
		}
	}

	used, err := s.redis.HLen(ctx, s.assignmentsKey(req.Key)).Result()
	if err != nil {
		return "", fmt.Errorf("count assignments: %w", err)
	}

	if int(used) >= len(valid) {
		return "", nil
	}

	identity := valid[used]
	if err := s.redis.HSetNX(ctx, s.assignmentsKey(req.Key), req.Label, identity).Err(); err != nil {
		return "", fmt.Errorf("assign identity: %w", err)
	}

	return identity, nil
}

// SaveRotation stores the total rotation the wheel shows after a spin.
func (s *Service) SaveRotation(ctx context.Context, k Key, rotation float64) error {
	if err := k.validate(); err != nil {
		return err
	}

	v := strconv.FormatFloat(rotation, 'f', -1, 64)
	if err := s.redis.Set(ctx, s.rotationKey(k), v, s.ttl).Err(); err != nil {
		return fmt.Errorf("save rotation: %w", err)
	}

	return nil
}

// Reset forgets won segments and assignments. The wheel keeps its rotation.
func (s *Service) Reset(ctx context.Context, k Key) error {
	if err := k.validate(); err != nil {
		return err
	}

	if err := s.redis.Del(ctx, s.wonKey(k), s.assignmentsKey(k)).Err(); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}

	return nil
}

// AcquireSpin takes the in-flight guard of a wheel. It returns false when a spin is already in flight.
// The guard expires after ttl so a lost reveal cannot lock the wheel forever.
func (s *Service) AcquireSpin(ctx context.Context, k Key, spinID string, ttl time.Duration) (bool, error) {
	if err := k.validate(); err != nil {
		return false, err
	}

	ok, err := s.redis.SetNX(ctx, s.spinningKey(k), spinID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire spin: %w", err)
	}

	return ok, nil
}

// ReleaseSpin drops the in-flight guard if it is still held by spinID.
func (s *Service) ReleaseSpin(ctx context.Context, k Key, spinID string) error {
	holder, err := s.redis.Get(ctx, s.spinningKey(k)).Result()
	if stderrors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release spin: %w", err)
	}

	if holder != spinID {
		return nil
	}

	if err := s.redis.Del(ctx, s.spinningKey(k)).Err(); err != nil {
		return fmt.Errorf("release spin: %w", err)
	}

	return nil
}

// Spinning reports whether a spin is in flight.
func (s *Service) Spinning(ctx context.Context, k Key) (bool, error) {
	n, err := s.redis.Exists(ctx, s.spinningKey(k)).Result()
	if err != nil {
		return false, fmt.Errorf("check spin: %w", err)
	}

	return n > 0, nil
}

func (s *Service) touch(ctx context.Context, k Key) error {
	_, err := s.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Expire(ctx, s.wonKey(k), s.ttl)
		p.Expire(ctx, s.assignmentsKey(k), s.ttl)
		p.Expire(ctx, s.rotationKey(k), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("refresh ledger ttl: %w", err)
	}

	return nil
}

func (s *Service) key(k Key, suffix string) string {
	return fmt.Sprintf("%s:ledger:%s:%d:%s", s.prefix, k.SessionID, k.RouletteNumber, suffix)
}

func (s *Service) wonKey(k Key) string         { return s.key(k, "won") }
func (s *Service) assignmentsKey(k Key) string { return s.key(k, "assignments") }
func (s *Service) rotationKey(k Key) string    { return s.key(k, "rotation") }
func (s *Service) spinningKey(k Key) string    { return s.key(k, "spinning") }
