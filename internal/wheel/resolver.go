package wheel

import (
	"math"
	"math/rand/v2"
	"strings"

	"github.com/victornm/prizewheel/internal/errors"
)

const (
	minRandomTurns = 5
	randomTurnSpan = 10
	forcedTurns    = 10

	// clampMargin keeps a clamped jitter window strictly inside the segment arc.
	clampMargin = 0.5
)

const (
	ReasonNoEligibleSegment = "NO_ELIGIBLE_SEGMENT"
	ReasonTargetAlreadyWon  = "TARGET_ALREADY_WON"
)

var (
	ErrNoEligibleSegment = errors.New(errors.CodeFailedPrecondition,
		errors.WithReason(ReasonNoEligibleSegment),
		errors.WithMessagef("all segments have already been won"),
	)

	ErrTargetAlreadyWon = errors.New(errors.CodeFailedPrecondition,
		errors.WithReason(ReasonTargetAlreadyWon),
		errors.WithMessagef("the forced segment has already been won"),
	)
)

// Rand is a source of uniform values in [0, 1). *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// ResolveRequest describes one spin.
type ResolveRequest struct {
	// Segments are the wheel labels in clockwise order.
	Segments []string
	// Excluded labels cannot be drawn. Only set in no-duplicate mode.
	Excluded []string
	// ForcedOutcome, when non-empty and present in Segments, is where the wheel must stop.
	ForcedOutcome string
	// PreviousRotation is the total rotation the wheel currently shows.
	PreviousRotation float64
	Rand             Rand
	// ClampJitter narrows the forced jitter window to stay strictly inside the forced segment.
	ClampJitter bool
}

// Outcome is the result of a spin.
type Outcome struct {
	WinningIndex int
	WinningLabel string
	// Rotation is the total rotation to animate to, in degrees.
	Rotation float64
	// LandingAngle is the unrotated wheel angle that ends under the pointer.
	LandingAngle float64
	// Forced is true when the forced outcome was honored.
	Forced bool
}

// Resolve selects a winning segment and computes the rotation that brings it under the pointer.
func Resolve(req ResolveRequest) (*Outcome, error) {
	if err := validate(req.Segments); err != nil {
		return nil, err
	}
	if req.Rand == nil {
		req.Rand = globalRand{}
	}

	excluded := make(map[string]bool, len(req.Excluded))
	for _, s := range req.Excluded {
		excluded[s] = true
	}

	eligible := make([]int, 0, len(req.Segments))
	for i, s := range req.Segments {
		if !excluded[s] {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return nil, ErrNoEligibleSegment
	}

	if req.ForcedOutcome != "" {
		if excluded[req.ForcedOutcome] {
			return nil, ErrTargetAlreadyWon
		}
		if i := indexOf(req.Segments, req.ForcedOutcome); i >= 0 {
			return resolveForced(req, i), nil
		}
	}

	return resolveRandom(req, eligible), nil
}

func resolveRandom(req ResolveRequest, eligible []int) *Outcome {
	count := len(req.Segments)

	pick := int(req.Rand.Float64() * float64(len(eligible)))
	if pick >= len(eligible) {
		pick = len(eligible) - 1
	}
	target := eligible[pick]

	landing := CenterAngle(count, target)
	rotation := RotationFor(landing)

	// Continue forward from where the wheel stopped; the offset lines the target up from there.
	turns := math.Floor(minRandomTurns + randomTurnSpan*req.Rand.Float64())
	offset := Normalize(rotation - Normalize(req.PreviousRotation) + 360)
	total := req.PreviousRotation + turns*360 + offset

	index := SegmentAt(count, PinAngle(total))
	if index < 0 {
		index = target
	}

	return &Outcome{
		WinningIndex: index,
		WinningLabel: req.Segments[index],
		Rotation:     total,
		LandingAngle: PinAngle(total),
	}
}

func resolveForced(req ResolveRequest, target int) *Outcome {
	count := len(req.Segments)

	half := JitterHalfWidth(count)
	if req.ClampJitter {
		half = math.Min(half, Arc(count)/2-clampMargin)
	}

	center := CenterAngle(count, target)
	landing := Normalize(center - half + req.Rand.Float64()*2*half)

	// A forced spin always starts its motion from the reference orientation.
	total := forcedTurns*360 + RotationFor(landing)

	return &Outcome{
		WinningIndex: target,
		WinningLabel: req.Segments[target],
		Rotation:     total,
		LandingAngle: landing,
		Forced:       true,
	}
}

func validate(segments []string) error {
	if len(segments) < MinSegments || len(segments) > MaxSegments {
		return errors.InvalidArgument("a wheel needs between %d and %d segments, got %d", MinSegments, MaxSegments, len(segments))
	}

	for i, s := range segments {
		if strings.TrimSpace(s) == "" {
			return errors.InvalidArgument("segment %d is empty", i+1)
		}
	}

	return nil
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

func indexOf(segments []string, label string) int {
	for i, s := range segments {
		if s == label {
			return i
		}
	}
	return -1
}
