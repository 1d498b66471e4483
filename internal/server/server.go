package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/pubquiz/internal/api"
	"github.com/victornm/pubquiz/internal/archive"
	"github.com/victornm/pubquiz/internal/auth"
	"github.com/victornm/pubquiz/internal/event"
	"github.com/victornm/pubquiz/internal/leaderboard"
	"github.com/victornm/pubquiz/internal/score"
	"github.com/victornm/pubquiz/internal/session"
	"github.com/victornm/pubquiz/internal/store"
	"github.com/victornm/pubquiz/internal/store/memory"
	"github.com/victornm/pubquiz/internal/store/postgres"
	"github.com/victornm/pubquiz/internal/team"
	"github.com/victornm/pubquiz/internal/telemetry"
	"github.com/victornm/pubquiz/internal/venue"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Store struct {
		// Driver is postgres or memory. The memory store keeps nothing across restarts.
		Driver string
	}

	Redis struct {
		Leaderboard struct {
			Addrs           []string
			Pass            string
			Prefix          string
			CacheTTL        time.Duration
			PublishInterval time.Duration
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Addr     string
		User     string
		Pass     string
		Name     string
		MaxConns int32
		Migrate  bool
	}

	Admin struct {
		Password     string
		PasswordHash string
		Secret       string
		TokenTTL     time.Duration
		SecureCookie bool
	}

	EventBus struct {
		PoolSize int
		Timeout  time.Duration
	}
}

// DefaultConfig returns the settings used for keys missing from the config file.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Store.Driver = StoreDriverPostgres
	c.Redis.Leaderboard.Prefix = "pubquiz"
	c.Redis.Leaderboard.CacheTTL = 30 * time.Second
	c.Redis.Leaderboard.PublishInterval = 200 * time.Millisecond
	c.Redis.Pubsub.Prefix = "pubquiz"
	c.Postgres.MaxConns = 10
	c.Postgres.Migrate = true
	c.Admin.TokenTTL = 7 * 24 * time.Hour
	c.EventBus.PoolSize = 1000
	c.EventBus.Timeout = 30 * time.Second
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres *pgxpool.Pool
		store    store.Store
	}

	service struct {
		session     *session.Service
		team        *team.Service
		score       *score.Service
		venue       *venue.Service
		leaderboard *leaderboard.Service
		archive     *archive.Service
		auth        *auth.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus(
		event.WithPoolSize(c.EventBus.PoolSize),
		event.WithTimeout(c.EventBus.Timeout),
	)

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

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initStore() error {
	switch s.c.Store.Driver {
	case StoreDriverMemory:
		slog.Warn("server: using the in-memory store, data is lost on restart")
		s.infra.store = memory.New()
		return nil
	case StoreDriverPostgres:
	default:
		return fmt.Errorf("unknown driver %q", s.c.Store.Driver)
	}

	ctx := context.Background()

	db, err := postgres.Connect(ctx, s.postgresDSN())
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if s.c.Postgres.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return fmt.Errorf("postgres: %w", err)
		}
	}

	s.infra.postgres = db
	s.infra.store = postgres.New(db)
	return nil
}

func (s *Server) postgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.c.Postgres.User, s.c.Postgres.Pass),
		Host:   s.c.Postgres.Addr,
		Path:   s.c.Postgres.Name,
	}

	if s.c.Postgres.MaxConns > 0 {
		u.RawQuery = fmt.Sprintf("pool_max_conns=%d", s.c.Postgres.MaxConns)
	}

	return u.String()
}

func (s *Server) initService() error {
	st := s.infra.store

	s.service.session = session.NewService(session.Config{
		Store: st,
	})

	s.service.team = team.NewService(team.Config{
		Store:    st,
		EventBus: s.eb,
	})

	s.service.score = score.NewService(score.Config{
		EventBus: s.eb,
		Store:    st,
	})

	s.service.venue = venue.NewService(venue.Config{
		Store:    st,
		EventBus: s.eb,
	})

	s.service.archive = archive.NewService(archive.Config{
		Store:    st,
		EventBus: s.eb,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus:        s.eb,
		Store:           st,
		Redis:           s.infra.redis.leaderboard,
		Prefix:          s.c.Redis.Leaderboard.Prefix,
		CacheTTL:        s.c.Redis.Leaderboard.CacheTTL,
		PublishInterval: s.c.Redis.Leaderboard.PublishInterval,
	})

	var err error
	s.service.auth, err = auth.NewService(auth.Config{
		Password:     s.c.Admin.Password,
		PasswordHash: s.c.Admin.PasswordHash,
		Secret:       s.c.Admin.Secret,
		TTL:          s.c.Admin.TokenTTL,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ss, err := s.service.session.Bootstrap(ctx)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "server: active session", "session_id", ss.SessionID, "quiz_date", ss.QuizDate.Format(time.DateOnly))

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", s.healthz)
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), api.RequestLogger())

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Session:      s.service.session,
		Team:         s.service.team,
		Score:        s.service.score,
		Venue:        s.service.venue,
		Leaderboard:  s.service.leaderboard,
		Archive:      s.service.archive,
		Auth:         s.service.auth,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
		SecureCookie: s.c.Admin.SecureCookie,
	})

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]error{
		"store":             s.infra.store.Ping(ctx),
		"redis_leaderboard": s.infra.redis.leaderboard.Ping(ctx).Err(),
		"redis_pubsub":      s.infra.redis.pubsub.Ping(ctx).Err(),
	}

	status, body := http.StatusOK, gin.H{}
	for name, err := range checks {
		if err != nil {
			status = http.StatusServiceUnavailable
			body[name] = err.Error()
			continue
		}
		body[name] = "ok"
	}

	c.JSON(status, body)
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

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
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	for name, r := range map[string]redis.UniversalClient{
		"leaderboard": s.infra.redis.leaderboard,
		"pubsub":      s.infra.redis.pubsub,
	} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "client", name, "error", err)
		}
	}

	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
