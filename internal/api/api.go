package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/prizewheel/internal/auth"
	"github.com/victornm/prizewheel/internal/domain"
	"github.com/victornm/prizewheel/internal/event"
	"github.com/victornm/prizewheel/internal/history"
	"github.com/victornm/prizewheel/internal/roulette"
	"github.com/victornm/prizewheel/internal/spin"
)

type Config struct {
	HTTP         gin.IRouter
	EventBus     *event.Bus
	Roulette     Roulettes
	History      History
	Spin         *spin.Service
	Auth         *auth.Service
	Redis        Redis
	PubsubPrefix string
}

// Roulettes is the segment store.
type Roulettes interface {
	CreateRoulette(ctx context.Context, req roulette.CreateRouletteRequest) (*domain.Roulette, error)
	GetRoulette(ctx context.Context, req roulette.GetRouletteRequest) (*domain.Roulette, error)
	ListRoulettes(ctx context.Context, req roulette.ListRoulettesRequest) ([]domain.Roulette, error)
	UpdateRoulette(ctx context.Context, req roulette.UpdateRouletteRequest) (*domain.Roulette, error)
	DeleteRoulette(ctx context.Context, req roulette.DeleteRouletteRequest) error
}

type History interface {
	ListSpins(ctx context.Context, req history.ListSpinsRequest) ([]domain.Spin, error)
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type API struct {
	rs   Roulettes
	hs   History
	ss   *spin.Service
	auth *auth.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		rs:     c.Roulette,
		hs:     c.History,
		ss:     c.Spin,
		auth:   c.Auth,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	// HTTP APIs
	r := c.HTTP
	r.POST("/api/login", a.Login)

	r.GET("/api/roulettes", a.ListRoulettes)
	r.GET("/api/roulettes/:number", a.GetRoulette)

	admin := r.Group("/api", a.RequireAdmin)
	admin.POST("/roulettes", a.CreateRoulette)
	admin.PUT("/roulettes/:number", a.UpdateRoulette)
	admin.DELETE("/roulettes/:number", a.DeleteRoulette)
	admin.GET("/roulettes/:number/spins", a.ListSpins)

	r.POST("/api/sessions", a.StartSession)
	r.POST("/api/sessions/:session/roulettes/:number/spin", a.Spin)
	r.GET("/api/sessions/:session/roulettes/:number/ledger", a.GetLedger)
	r.DELETE("/api/sessions/:session/roulettes/:number/ledger", a.ResetLedger)

	r.GET("/ws/roulettes/:number", a.WatchRoulette)

	// Register event handlers
	for _, name := range []string{
		domain.EventNameSpinStarted,
		domain.EventNameSpinSettled,
		domain.EventNameRouletteChanged,
		domain.EventNameLedgerReset,
	} {
		c.EventBus.Subscribe(name, a.PublishRouletteEvent)
	}

	return a
}
