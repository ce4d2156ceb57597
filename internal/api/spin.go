package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/prizewheel/internal/spin"
)

type (
	SpinResponse struct {
		Spin
		// RotationDegrees is the total rotation to animate the wheel to.
		RotationDegrees float64 `json:"rotation_degrees"`
		SettleMillis    int64   `json:"settle_ms"`
	}

	Ledger struct {
		SessionID      string            `json:"session_id"`
		RouletteNumber int               `json:"roulette_number"`
		WonSegments    []string          `json:"won_segments"`
		WonAssignments map[string]string `json:"won_assignments"`
		Remaining      []string          `json:"remaining"`
		AllWon         bool              `json:"all_won"`
		Spinning       bool              `json:"spinning"`
		Rotation       float64           `json:"rotation"`
	}
)

func (a *API) StartSession(c *gin.Context) {
	id, err := a.ss.StartSession(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, http.StatusCreated, gin.H{"session_id": id})
}

func (a *API) Spin(c *gin.Context) {
	number, err := pathInt(c, "number")
	if err != nil {
		fail(c, err)
		return
	}

	resp, err := a.ss.Spin(c.Request.Context(), spin.SpinRequest{
		SessionID:      c.Param("session"),
		RouletteNumber: number,
		NoDuplicate:    queryBool(c, "noDuplicate"),
	})
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, http.StatusOK, SpinResponse{
		Spin:            toSpin(resp.Spin),
		RotationDegrees: resp.Rotation,
		SettleMillis:    resp.SettleDuration.Milliseconds(),
	})
}

func (a *API) GetLedger(c *gin.Context) {
	number, err := pathInt(c, "number")
	if err != nil {
		fail(c, err)
		return
	}

	resp, err := a.ss.GetLedger(c.Request.Context(), spin.LedgerRequest{
		SessionID:      c.Param("session"),
		RouletteNumber: number,
	})
	if err != nil {
		fail(c, err)
		return
	}

	l := resp.Ledger
	ok(c, http.StatusOK, Ledger{
		SessionID:      l.SessionID,
		RouletteNumber: l.RouletteNumber,
		WonSegments:    l.WonSegments,
		WonAssignments: l.WonAssignments,
		Remaining:      resp.Remaining,
		AllWon:         resp.AllWon,
		Spinning:       resp.Spinning,
		Rotation:       l.Rotation,
	})
}

func (a *API) ResetLedger(c *gin.Context) {
	number, err := pathInt(c, "number")
	if err != nil {
		fail(c, err)
		return
	}

	if err := a.ss.ResetLedger(c.Request.Context(), spin.LedgerRequest{
		SessionID:      c.Param("session"),
		RouletteNumber: number,
	}); err != nil {
		fail(c, err)
		return
	}

	ok(c, http.StatusOK, nil)
}
