package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/prizewheel/internal/domain"
	"github.com/victornm/prizewheel/internal/history"
	"github.com/victornm/prizewheel/internal/roulette"
)

type (
	// Roulette keeps the field names the browser client already uses.
	Roulette struct {
		Number           int      `json:"roulette_number"`
		Name             string   `json:"roulette_name"`
		SegmentCount     int      `json:"roulette_data_count,omitempty"`
		Segments         []string `json:"roulette_inner_data,omitempty"`
		WinnerIdentities []string `json:"roulette_user_data,omitempty"`
		ForcedOutcome    *string  `json:"GuaranteedWin,omitempty"`
	}

	CreateRouletteRequest struct {
		Number           int      `json:"roulette_number" binding:"required,gt=0"`
		Name             string   `json:"roulette_name" binding:"required"`
		SegmentCount     int      `json:"roulette_data_count" binding:"omitempty,min=1,max=15"`
		Segments         []string `json:"roulette_inner_data" binding:"required,min=1,max=15,dive,required"`
		WinnerIdentities []string `json:"roulette_user_data"`
		ForcedOutcome    string   `json:"GuaranteedWin"`
	}

	UpdateRouletteRequest struct {
		Name             *string  `json:"roulette_name"`
		SegmentCount     int      `json:"roulette_data_count" binding:"omitempty,min=1,max=15"`
		Segments         []string `json:"roulette_inner_data" binding:"omitempty,min=1,max=15,dive,required"`
		WinnerIdentities []string `json:"roulette_user_data"`
		// ForcedOutcome set to "" clears it, absent leaves it.
		ForcedOutcome *string `json:"GuaranteedWin"`
	}

	Spin struct {
		SpinID       string    `json:"spin_id"`
		SessionID    string    `json:"session_id"`
		WinningIndex int       `json:"winning_index"`
		WinningLabel string    `json:"winning_label"`
		Rotation     string    `json:"rotation"`
		Forced       bool      `json:"forced"`
		NoDuplicate  bool      `json:"no_duplicate"`
		SpinTime     time.Time `json:"spin_time"`
		SettleTime   time.Time `json:"settle_time"`
	}
)

func (a *API) ListRoulettes(c *gin.Context) {
	full := queryBool(c, "full")

	rs, err := a.rs.ListRoulettes(c.Request.Context(), roulette.ListRoulettesRequest{Full: full})
	if err != nil {
		fail(c, err)
		return
	}

	data := make([]Roulette, 0, len(rs))
	for _, r := range rs {
		if full {
			data = append(data, toRoulette(r))
			continue
		}
		data = append(data, Roulette{Number: r.Number, Name: r.Name})
	}

	ok(c, http.StatusOK, data)
}

func (a *API) GetRoulette(c *gin.Context) {
	number, err := pathInt(c, "number")
	if err != nil {
		fail(c, err)
		return
	}

	r, err := a.rs.GetRoulette(c.Request.Context(), roulette.GetRouletteRequest{Number: number})
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, http.StatusOK, toRoulette(*r))
}

func (a *API) CreateRoulette(c *gin.Context) {
	var req CreateRouletteRequest
	if err := bind(c, &req); err != nil {
		fail(c, err)
		return
	}

	r, err := a.rs.CreateRoulette(c.Request.Context(), roulette.CreateRouletteRequest{
		Number:           req.Number,
		Name:             req.Name,
		Segments:         req.Segments,
		WinnerIdentities: req.WinnerIdentities,
		ForcedOutcome:    req.ForcedOutcome,
		SegmentCount:     req.SegmentCount,
	})
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, http.StatusCreated, toRoulette(*r))
}

func (a *API) UpdateRoulette(c *gin.Context) {
	number, err := pathInt(c, "number")
	if err != nil {
		fail(c, err)
		return
	}

	var req UpdateRouletteRequest
	if err := bind(c, &req); err != nil {
		fail(c, err)
		return
	}

	r, err := a.rs.UpdateRoulette(c.Request.Context(), roulette.UpdateRouletteRequest{
		Number:           number,
		Name:             req.Name,
		Segments:         req.Segments,
		WinnerIdentities: req.WinnerIdentities,
		ForcedOutcome:    req.ForcedOutcome,
		SegmentCount:     req.SegmentCount,
	})
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, http.StatusOK, toRoulette(*r))
}

func (a *API) DeleteRoulette(c *gin.Context) {
	number, err := pathInt(c, "number")
	if err != nil {
		fail(c, err)
		return
	}

	if err := a.rs.DeleteRoulette(c.Request.Context(), roulette.DeleteRouletteRequest{Number: number}); err != nil {
		fail(c, err)
		return
	}

	ok(c, http.StatusOK, nil)
}

func (a *API) ListSpins(c *gin.Context) {
	number, err := pathInt(c, "number")
	if err != nil {
		fail(c, err)
		return
	}

	limit, err := queryInt(c, "limit")
	if err != nil {
		fail(c, err)
		return
	}

	spins, err := a.hs.ListSpins(c.Request.Context(), history.ListSpinsRequest{RouletteNumber: number, Limit: limit})
	if err != nil {
		fail(c, err)
		return
	}

	data := make([]Spin, 0, len(spins))
	for _, sp := range spins {
		data = append(data, toSpin(sp))
	}

	ok(c, http.StatusOK, data)
}

func toRoulette(r domain.Roulette) Roulette {
	out := Roulette{
		Number:           r.Number,
		Name:             r.Name,
		SegmentCount:     r.SegmentCount(),
		Segments:         r.Segments,
		WinnerIdentities: r.WinnerIdentities,
	}

	if r.ForcedOutcome != "" {
		forced := r.ForcedOutcome
		out.ForcedOutcome = &forced
	}

	return out
}

func toSpin(sp domain.Spin) Spin {
	return Spin{
		SpinID:       sp.SpinID,
		SessionID:    sp.SessionID,
		WinningIndex: sp.WinningIndex,
		WinningLabel: sp.WinningLabel,
		Rotation:     sp.Rotation.String(),
		Forced:       sp.Forced,
		NoDuplicate:  sp.NoDuplicate,
		SpinTime:     sp.SpinTime,
		SettleTime:   sp.SettleTime,
	}
}
