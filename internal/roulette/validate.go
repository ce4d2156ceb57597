package roulette

import (
	"strings"

	"github.com/victornm/prizewheel/internal/domain"
	"github.com/victornm/prizewheel/internal/errors"
	"github.com/victornm/prizewheel/internal/wheel"
)

func normalize(r *domain.Roulette) {
	r.Name = strings.TrimSpace(r.Name)
	r.ForcedOutcome = strings.TrimSpace(r.ForcedOutcome)

	if r.Segments == nil {
		r.Segments = []string{}
	}
	if r.WinnerIdentities == nil {
		r.WinnerIdentities = []string{}
	}
}

// validate checks a definition the way the editor does. segmentCount is the count the client
// claims, zero when it did not send one.
func validate(r *domain.Roulette, segmentCount int) error {
	if r.Number <= 0 {
		return errors.InvalidArgument("roulette number must be positive, got %d", r.Number)
	}

	if r.Name == "" {
		return errors.InvalidArgument("roulette name is required")
	}

	n := len(r.Segments)
	if n < wheel.MinSegments {
		return errors.InvalidArgument("a roulette needs at least %d segment", wheel.MinSegments)
	}
	if n > wheel.MaxSegments {
		return errors.InvalidArgument("a roulette can have at most %d segments, got %d", wheel.MaxSegments, n)
	}

	if segmentCount != 0 && segmentCount != n {
		return errors.InvalidArgument("segment count %d does not match the %d segments given", segmentCount, n)
	}

	for i, s := range r.Segments {
		if strings.TrimSpace(s) == "" {
			return errors.InvalidArgument("segment %d is empty", i+1)
		}
	}

	return nil
}

func applyUpdate(r *domain.Roulette, req UpdateRouletteRequest) {
	if req.Name != nil {
		r.Name = *req.Name
	}
	if req.Segments != nil {
		r.Segments = req.Segments
	}
	if req.WinnerIdentities != nil {
		r.WinnerIdentities = req.WinnerIdentities
	}
	if req.ForcedOutcome != nil {
		r.ForcedOutcome = *req.ForcedOutcome
	}
}
