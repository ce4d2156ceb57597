package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/prizewheel/internal/domain"
	"github.com/victornm/prizewheel/internal/event"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	SpinSettled struct {
		Spin
		AssignedIdentity string `json:"assigned_identity,omitempty"`
	}

	RouletteChanged struct {
		Number int    `json:"roulette_number"`
		Change string `json:"change"`
	}

	LedgerReset struct {
		SessionID      string `json:"session_id"`
		RouletteNumber int    `json:"roulette_number"`
	}
)

// PublishRouletteEvent forwards domain events to the Redis channels watchers listen on.
// Spin and ledger events go to both the wheel channel and the session channel.
func (a *API) PublishRouletteEvent(ctx context.Context, e event.Event) error {
	var (
		number  int
		session string
		data    any
	)

	switch e := e.(type) {
	case domain.EventSpinStarted:
		number, session, data = e.Spin.RouletteNumber, e.Spin.SessionID, toSpin(e.Spin)
	case domain.EventSpinSettled:
		number, session = e.Spin.RouletteNumber, e.Spin.SessionID
		data = SpinSettled{Spin: toSpin(e.Spin), AssignedIdentity: e.AssignedIdentity}
	case domain.EventRouletteChanged:
		number, data = e.Number, RouletteChanged{Number: e.Number, Change: string(e.Change)}
	case domain.EventLedgerReset:
		number, session = e.RouletteNumber, e.SessionID
		data = LedgerReset{SessionID: e.SessionID, RouletteNumber: e.RouletteNumber}
	default:
		return fmt.Errorf("pubsub: unexpected event %s", e.Name())
	}

	channels := []string{a.rouletteChannel(number)}
	if session != "" {
		channels = append(channels, a.sessionChannel(session, number))
	}

	var eg errgroup.Group
	for _, ch := range channels {
		eg.Go(func() error {
			return a.publishNotification(ctx, ch, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}

func (a *API) rouletteChannel(number int) string {
	return fmt.Sprintf("%s:roulette:%d", a.prefix, number)
}

func (a *API) sessionChannel(session string, number int) string {
	return fmt.Sprintf("%s:session:%s:roulette:%d", a.prefix, session, number)
}
