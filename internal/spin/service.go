package spin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/victornm/prizewheel/internal/domain"
	"github.com/victornm/prizewheel/internal/errors"
	"github.com/victornm/prizewheel/internal/event"
	"github.com/victornm/prizewheel/internal/ledger"
	"github.com/victornm/prizewheel/internal/roulette"
	"github.com/victornm/prizewheel/internal/telemetry"
	"github.com/victornm/prizewheel/internal/wheel"
)

const (
	// DefaultSettleDuration is how long the wheel animation runs before the winner is revealed.
	DefaultSettleDuration = 7 * time.Second

	// guardGrace keeps the in-flight guard alive a bit past the reveal in case the reveal is late.
	guardGrace = 5 * time.Second

	// resetGuardTTL bounds how long a reset can hold the guard.
	resetGuardTTL = 5 * time.Second

	ReasonSpinInProgress = "SPIN_IN_PROGRESS"
)

type Roulettes interface {
	GetRoulette(ctx context.Context, req roulette.GetRouletteRequest) (*domain.Roulette, error)
}

type History interface {
	RecordSpin(ctx context.Context, sp domain.Spin) error
}

type Config struct {
	EventBus  *event.Bus
	Roulettes Roulettes
	History   History
	Ledger    *ledger.Service

	SettleDuration time.Duration
	// ClampJitter keeps forced landings strictly inside the forced segment.
	ClampJitter bool
	// Rand defaults to a process wide source. It must be safe for concurrent use.
	Rand wheel.Rand
	// AfterFunc schedules the reveal. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func())
	Now       func() time.Time
}

type Service struct {
	eb        *event.Bus
	roulettes Roulettes
	history   History
	ledger    *ledger.Service

	settle      time.Duration
	clampJitter bool
	rand        wheel.Rand
	afterFunc   func(d time.Duration, f func())
	now         func() time.Time

	reveals sync.WaitGroup
}

func NewService(c Config) *Service {
	s := &Service{
		eb:          c.EventBus,
		roulettes:   c.Roulettes,
		history:     c.History,
		ledger:      c.Ledger,
		settle:      c.SettleDuration,
		clampJitter: c.ClampJitter,
		rand:        c.Rand,
		afterFunc:   c.AfterFunc,
		now:         c.Now,
	}

	if s.settle <= 0 {
		s.settle = DefaultSettleDuration
	}
	if s.afterFunc == nil {
		s.afterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// StartSession opens a new wheel session. Ledgers are scoped to it.
func (s *Service) StartSession(_ context.Context) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}

	return id.String(), nil
}

type SpinRequest struct {
	SessionID      string
	RouletteNumber int
	// NoDuplicate excludes segments already won in this session and records the win.
	NoDuplicate bool
}

type SpinResponse struct {
	Spin domain.Spin
	// Rotation is the total rotation the wheel should animate to.
	Rotation float64
	// SettleDuration is how long the caller should animate before revealing the winner.
	SettleDuration time.Duration
}

// Spin resolves a spin and schedules its reveal. Only one spin per session and roulette can be in flight.
func (s *Service) Spin(ctx context.Context, req SpinRequest) (resp *SpinResponse, err error) {
	defer func() {
		if err != nil {
			telemetry.ObserveSpinFailure(err)
		}
	}()

	k := ledger.Key{SessionID: req.SessionID, RouletteNumber: req.RouletteNumber}

	r, err := s.roulettes.GetRoulette(ctx, roulette.GetRouletteRequest{Number: req.RouletteNumber})
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate spin ID: %w", err)
	}
	spinID := id.String()

	ok, err := s.ledger.AcquireSpin(ctx, k, spinID, s.settle+guardGrace)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(ReasonSpinInProgress),
			errors.WithMessagef("the wheel is still spinning"))
	}
	defer func() {
		if err != nil {
			err = joinRelease(err, s.ledger.ReleaseSpin(ctx, k, spinID))
		}
	}()

	l, err := s.ledger.GetLedger(ctx, k)
	if err != nil {
		return nil, err
	}

	var excluded []string
	if req.NoDuplicate {
		excluded = l.WonSegments
	}

	o, err := wheel.Resolve(wheel.ResolveRequest{
		Segments:         r.Segments,
		Excluded:         excluded,
		ForcedOutcome:    r.ForcedOutcome,
		PreviousRotation: l.Rotation,
		Rand:             s.rand,
		ClampJitter:      s.clampJitter,
	})
	if err != nil {
		return nil, err
	}

	if err = s.ledger.SaveRotation(ctx, k, o.Rotation); err != nil {
		return nil, err
	}

	now := s.now()
	sp := domain.Spin{
		SpinID:         spinID,
		SessionID:      req.SessionID,
		RouletteNumber: r.Number,
		WinningIndex:   o.WinningIndex,
		WinningLabel:   o.WinningLabel,
		Rotation:       decimal.NewFromFloat(o.Rotation),
		Forced:         o.Forced,
		NoDuplicate:    req.NoDuplicate,
		SpinTime:       now,
		SettleTime:     now.Add(s.settle),
	}

	// The wheel is already turning for the player, a missing history row must not stop it.
	if err := s.history.RecordSpin(ctx, sp); err != nil {
		slog.ErrorContext(ctx, "spin: record history failed", "spin_id", sp.SpinID, "error", err)
	}

	telemetry.ObserveSpin(o.Forced, req.NoDuplicate)
	s.eb.Publish(ctx, domain.EventSpinStarted{Spin: sp})
	s.scheduleReveal(ctx, r, sp)

	return &SpinResponse{
		Spin:           sp,
		Rotation:       o.Rotation,
		SettleDuration: s.settle,
	}, nil
}

func (s *Service) scheduleReveal(ctx context.Context, r *domain.Roulette, sp domain.Spin) {
	ctx = context.WithoutCancel(ctx)
	identities := r.WinnerIdentities

	s.reveals.Add(1)
	s.afterFunc(s.settle, func() {
		defer s.reveals.Done()
		s.reveal(ctx, sp, identities)
	})
}

// reveal commits the win after the animation settled. It always fires once a spin started.
func (s *Service) reveal(ctx context.Context, sp domain.Spin, identities []string) {
	k := ledger.Key{SessionID: sp.SessionID, RouletteNumber: sp.RouletteNumber}

	var assigned string
	if sp.NoDuplicate {
		var err error
		assigned, err = s.ledger.CommitWin(ctx, ledger.CommitWinRequest{
			Key:        k,
			Label:      sp.WinningLabel,
			Identities: identities,
		})
		if err != nil {
			slog.ErrorContext(ctx, "spin: commit win failed", "spin_id", sp.SpinID, "error", err)
		}
	}

	if err := s.ledger.ReleaseSpin(ctx, k, sp.SpinID); err != nil {
		slog.ErrorContext(ctx, "spin: release guard failed", "spin_id", sp.SpinID, "error", err)
	}

	telemetry.ObserveSpinSettled()
	slog.InfoContext(ctx, "spin: settled",
		"spin_id", sp.SpinID,
		"roulette", sp.RouletteNumber,
		"winner", sp.WinningLabel,
		"identity", assigned,
	)

	s.eb.Publish(ctx, domain.EventSpinSettled{Spin: sp, AssignedIdentity: assigned})
}

type LedgerRequest struct {
	SessionID      string
	RouletteNumber int
}

type LedgerResponse struct {
	Ledger domain.Ledger
	// Remaining are the segments that can still be won in no-duplicate mode.
	Remaining []string
	AllWon    bool
	Spinning  bool
}

// GetLedger returns the session ledger together with what is left to win.
func (s *Service) GetLedger(ctx context.Context, req LedgerRequest) (*LedgerResponse, error) {
	r, err := s.roulettes.GetRoulette(ctx, roulette.GetRouletteRequest{Number: req.RouletteNumber})
	if err != nil {
		return nil, err
	}

	k := ledger.Key{SessionID: req.SessionID, RouletteNumber: req.RouletteNumber}
	l, err := s.ledger.GetLedger(ctx, k)
	if err != nil {
		return nil, err
	}

	spinning, err := s.ledger.Spinning(ctx, k)
	if err != nil {
		return nil, err
	}

	current := make(map[string]bool, len(r.Segments))
	for _, seg := range r.Segments {
		current[seg] = true
	}

	// Segments removed by a later edit are no longer part of the ledger.
	won := make(map[string]bool, len(l.WonSegments))
	wonSegments := make([]string, 0, len(l.WonSegments))
	for _, w := range l.WonSegments {
		if current[w] {
			won[w] = true
			wonSegments = append(wonSegments, w)
		}
	}
	l.WonSegments = wonSegments

	for seg := range l.WonAssignments {
		if !current[seg] {
			delete(l.WonAssignments, seg)
		}
	}

	remaining := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		if !won[seg] {
			remaining = append(remaining, seg)
		}
	}

	return &LedgerResponse{
		Ledger:    *l,
		Remaining: remaining,
		AllWon:    len(remaining) == 0,
		Spinning:  spinning,
	}, nil
}

// ResetLedger clears the won segments of a session. It holds the in-flight guard while clearing,
// so it is rejected while a spin is in flight and no spin can start until it is done.
func (s *Service) ResetLedger(ctx context.Context, req LedgerRequest) (err error) {
	k := ledger.Key{SessionID: req.SessionID, RouletteNumber: req.RouletteNumber}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate reset ID: %w", err)
	}
	holder := "reset:" + id.String()

	ok, err := s.ledger.AcquireSpin(ctx, k, holder, resetGuardTTL)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(ReasonSpinInProgress),
			errors.WithMessagef("the ledger cannot be reset while the wheel is spinning"))
	}
	defer func() {
		if releaseErr := s.ledger.ReleaseSpin(ctx, k, holder); releaseErr != nil {
			err = joinRelease(err, releaseErr)
		}
	}()

	if err := s.ledger.Reset(ctx, k); err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventLedgerReset{SessionID: req.SessionID, RouletteNumber: req.RouletteNumber})

	return nil
}

// Wait blocks until every scheduled reveal has fired.
func (s *Service) Wait() {
	s.reveals.Wait()
}

func joinRelease(err, releaseErr error) error {
	if releaseErr == nil {
		return err
	}
	if err == nil {
		return fmt.Errorf("release guard: %w", releaseErr)
	}
	return fmt.Errorf("%w (release guard: %v)", err, releaseErr)
}
