package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Roulette is a named wheel definition. Segments are laid out clockwise from the pointer.
type Roulette struct {
	Number           int
	Name             string
	Segments         []string
	WinnerIdentities []string
	// ForcedOutcome is the label every spin must land on. Empty means unconstrained.
	ForcedOutcome string
	CreateTime    time.Time
	UpdateTime    time.Time
}

func (r Roulette) SegmentCount() int {
	return len(r.Segments)
}

// Ledger is the per-session state of one wheel.
type Ledger struct {
	SessionID      string
	RouletteNumber int
	// WonSegments is ordered by win time.
	WonSegments []string
	// WonAssignments maps a won segment to the identity assigned to it.
	WonAssignments map[string]string
	// Rotation is the total rotation the wheel shows.
	Rotation float64
}

// Spin is one resolved spin.
type Spin struct {
	SpinID         string
	SessionID      string
	RouletteNumber int
	WinningIndex   int
	WinningLabel   string
	Rotation       decimal.Decimal
	Forced         bool
	NoDuplicate    bool
	SpinTime       time.Time
	SettleTime     time.Time
}
