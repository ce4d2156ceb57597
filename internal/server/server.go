package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/prizewheel/internal/api"
	"github.com/victornm/prizewheel/internal/auth"
	"github.com/victornm/prizewheel/internal/event"
	"github.com/victornm/prizewheel/internal/history"
	"github.com/victornm/prizewheel/internal/ledger"
	"github.com/victornm/prizewheel/internal/roulette"
	"github.com/victornm/prizewheel/internal/spin"
	"github.com/victornm/prizewheel/internal/telemetry"
	"github.com/victornm/prizewheel/migrations"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	Wheel struct {
		SettleDuration time.Duration
		LedgerTTL      time.Duration
		CacheTTL       time.Duration
		// ClampJitter keeps forced landings inside the target segment on crowded wheels.
		ClampJitter bool
		// Seed inserts the default roulette on startup.
		Seed bool
	}

	Auth struct {
		Username string
		Password string
		Secret   string
		TokenTTL time.Duration
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	service struct {
		roulette *roulette.Service
		history  *history.Service
		ledger   *ledger.Service
		spin     *spin.Service
		auth     *auth.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := s.c.Postgres
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", p.User, p.Pass, p.Addr, p.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	if err := migrations.Apply(ctx, db); err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() error {
	s.service.roulette = roulette.NewService(roulette.Config{
		DB:       s.infra.postgres,
		EventBus: s.eb,
		CacheTTL: s.c.Wheel.CacheTTL,
	})

	if s.c.Wheel.Seed {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.service.roulette.Seed(ctx); err != nil {
			return err
		}
	}

	s.service.history = history.NewService(history.Config{
		DB: s.infra.postgres,
	})

	s.service.ledger = ledger.NewService(ledger.Config{
		Redis:  s.infra.redis,
		Prefix: s.c.Redis.Prefix,
		TTL:    s.c.Wheel.LedgerTTL,
	})

	s.service.spin = spin.NewService(spin.Config{
		EventBus:       s.eb,
		Roulettes:      s.service.roulette,
		History:        s.service.history,
		Ledger:         s.service.ledger,
		SettleDuration: s.c.Wheel.SettleDuration,
		ClampJitter:    s.c.Wheel.ClampJitter,
	})

	var err error
	s.service.auth, err = auth.NewService(auth.Config{
		Username: s.c.Auth.Username,
		Password: s.c.Auth.Password,
		Secret:   s.c.Auth.Secret,
		TokenTTL: s.c.Auth.TokenTTL,
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		HTTP:         e,
		EventBus:     s.eb,
		Roulette:     s.service.roulette,
		History:      s.service.history,
		Spin:         s.service.spin,
		Auth:         s.service.auth,
		Redis:        s.infra.redis,
		PubsubPrefix: s.c.Redis.Prefix + ":pubsub",
	})

	s.grpc = grpc.NewServer(telemetry.GRPCServerOptions()...)
	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	// Pending reveals still commit wins and publish, so they run before the bus stops.
	s.service.spin.Wait()
	s.eb.Stop()

	s.infra.postgres.Close()
	if err := s.infra.redis.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close redis failed", "error", err)
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
