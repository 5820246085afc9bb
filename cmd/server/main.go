package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	accountshandler "pollbank/internal/accounts/handler"
	accountsmetrics "pollbank/internal/accounts/metrics"
	accountsservice "pollbank/internal/accounts/service"
	authhandler "pollbank/internal/auth/handler"
	"pollbank/internal/auth/lockout"
	authmetrics "pollbank/internal/auth/metrics"
	authservice "pollbank/internal/auth/service"
	"pollbank/internal/backend"
	"pollbank/internal/backend/memory"
	"pollbank/internal/backend/postgres"
	directoryhandler "pollbank/internal/directory/handler"
	"pollbank/internal/directory/lookup"
	directorymetrics "pollbank/internal/directory/metrics"
	"pollbank/internal/directory/resolver"
	jwttoken "pollbank/internal/jwt_token"
	"pollbank/internal/platform/config"
	"pollbank/internal/platform/database"
	"pollbank/internal/platform/httpserver"
	"pollbank/internal/platform/logger"
	platformmetrics "pollbank/internal/platform/metrics"
	redisclient "pollbank/internal/platform/redis"
	"pollbank/internal/snapshot"
	httptransport "pollbank/internal/transport/http"
	usershandler "pollbank/internal/users/handler"
	usersservice "pollbank/internal/users/service"
	audit "pollbank/pkg/platform/audit"
	"pollbank/pkg/platform/audit/publisher"
	auditkafka "pollbank/pkg/platform/audit/store/kafka"
	auditlogging "pollbank/pkg/platform/audit/store/logging"
	auditmemory "pollbank/pkg/platform/audit/store/memory"
	auditpostgres "pollbank/pkg/platform/audit/store/postgres"
	"pollbank/pkg/platform/circuit"
)

const auditBufferSize = 1024

// cleaner is an in-memory store that evicts expired entries in the background.
type cleaner interface {
	StartCleanup(ctx context.Context, interval time.Duration) error
}

// infra holds the process-wide resources that need closing on shutdown.
type infra struct {
	backend backend.Backend
	seeder  backend.Seeder
	db      *sql.DB
	redis   *redisclient.Client
	kafka   *auditkafka.Store
	health  []httptransport.HealthCheck
}

func (i *infra) close(log *slog.Logger) {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("failed to close redis client", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("failed to close database", "error", err)
		}
	}
}

// main wires the dependencies and runs the server until SIGINT or SIGTERM.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	inf, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer inf.close(log)

	snap := snapshot.New(inf.backend, snapshot.WithLogger(log))
	if err := ensureAdmin(ctx, snap, inf.seeder, cfg.Auth.BootstrapAdmin, cfg.Auth.BootstrapPassword, log); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	auditor := buildAuditPublisher(ctx, cfg, inf, log)
	defer func() {
		if err := auditor.Close(); err != nil {
			log.Warn("failed to flush audit events", "error", err)
		}
	}()

	var cleaners []cleaner
	dirMetrics := directorymetrics.New()
	source, memCache := buildLookup(cfg, inf, dirMetrics, log)
	if memCache != nil {
		cleaners = append(cleaners, memCache)
	}
	res := resolver.New(source, resolver.WithLogger(log), resolver.WithMetrics(dirMetrics))

	accounts := accountsservice.New(inf.backend, snap, res,
		accountsservice.WithLogger(log),
		accountsservice.WithMetrics(accountsmetrics.New()),
		accountsservice.WithAuditEmitter(auditor),
	)

	users := usersservice.New(snap, inf.backend,
		usersservice.WithLogger(log),
		usersservice.WithAuditEmitter(auditor),
	)

	var lockStore lockout.Store
	if inf.redis != nil {
		lockStore = lockout.NewRedisStore(inf.redis.Client)
	} else {
		memLocks := lockout.NewMemoryStore()
		cleaners = append(cleaners, memLocks)
		lockStore = memLocks
	}
	locks, err := lockout.New(lockStore,
		lockout.WithLimits(cfg.Auth.LockoutAttempts, cfg.Auth.LockoutWindow, cfg.Auth.LockoutDuration),
		lockout.WithIdentifierLimit(cfg.Auth.LockoutIdentifierAttempts),
		lockout.WithLogger(log),
		lockout.WithAuditEmitter(auditor),
	)
	if err != nil {
		return err
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	auth := authservice.New(snap, inf.backend, jwtService, cfg.Auth.TokenTTL, cfg.Auth.DefaultPIN,
		authservice.WithLogger(log),
		authservice.WithMetrics(authmetrics.New()),
		authservice.WithAuditEmitter(auditor),
		authservice.WithLockout(locks),
	)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:    log,
		Observer:  platformmetrics.New(),
		Validator: jwttoken.NewJWTServiceAdapter(jwtService),
		Auth:      authhandler.New(auth, log),
		Modules: []httptransport.ModuleRoutes{
			accountshandler.New(accounts, log),
			directoryhandler.New(snap, res, log),
			usershandler.New(users, log),
		},
		Refresher: accounts,
		Health:    inf.health,

		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
	})
	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range cleaners {
		if cfg.Server.CleanupInterval <= 0 {
			break
		}
		g.Go(func() error {
			if err := c.StartCleanup(gctx, cfg.Server.CleanupInterval); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		log.Info("starting pollbank", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	inf := &infra{}

	if cfg.Database.DSN == "" {
		mem := memory.New()
		inf.backend, inf.seeder = mem, mem
		log.Warn("DATABASE_URL not set, using in-memory backend")
	} else {
		db, err := database.Open(ctx, database.Options{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		inf.db = db
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				inf.close(log)
				return nil, err
			}
		}
		pg := postgres.New(db)
		inf.backend, inf.seeder = pg, pg
		inf.health = append(inf.health, httptransport.HealthCheck{Name: "database", Check: db.PingContext})
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		// The lookup cache degrades to memory; Redis is not required.
		log.Warn("redis unavailable, using in-memory lookup cache", "error", err)
	} else if rc != nil {
		inf.redis = rc
		inf.health = append(inf.health, httptransport.HealthCheck{Name: "redis", Check: rc.Health})
	}

	if len(cfg.Kafka.Brokers) > 0 {
		ks, err := auditkafka.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			inf.close(log)
			return nil, fmt.Errorf("connect audit stream: %w", err)
		}
		inf.kafka = ks
		inf.health = append(inf.health, httptransport.HealthCheck{Name: "kafka", Check: ks.Ping})
	}
	return inf, nil
}

// buildAuditPublisher picks the audit sink: Kafka when brokers are
// configured, else the database, else memory. Every event is also logged.
func buildAuditPublisher(ctx context.Context, cfg config.Config, inf *infra, log *slog.Logger) *publisher.Publisher {
	var sink audit.Store
	switch {
	case inf.kafka != nil:
		sink = inf.kafka
	case inf.db != nil:
		sink = auditpostgres.New(inf.db)
	default:
		sink = auditmemory.NewInMemoryStore()
	}
	log.InfoContext(ctx, "audit sink configured", "sink", fmt.Sprintf("%T", sink), "brokers", len(cfg.Kafka.Brokers))
	return publisher.NewPublisher(auditlogging.New(log, sink),
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics()),
	)
}

// buildLookup composes the external routing-code lookup:
// cache -> circuit breaker -> HTTP client with retries. The in-memory cache
// is returned when Redis is not configured so its cleanup can be scheduled.
func buildLookup(cfg config.Config, inf *infra, m *directorymetrics.Metrics, log *slog.Logger) (lookup.Source, *lookup.MemoryCache) {
	client := lookup.NewHTTPClient(cfg.Lookup.BaseURL, cfg.Lookup.Timeout,
		lookup.WithHTTPLogger(log),
		lookup.WithHTTPMetrics(m),
	)
	breaker := circuit.New("routing-lookup",
		circuit.WithFailureThreshold(cfg.Lookup.FailureThreshold),
		circuit.WithSuccessThreshold(cfg.Lookup.SuccessThreshold),
		circuit.WithCooldown(cfg.Lookup.Cooldown),
	)

	var cache lookup.Cache
	var memCache *lookup.MemoryCache
	if inf.redis != nil {
		cache = lookup.NewRedisCache(inf.redis.Client)
	} else {
		memCache = lookup.NewMemoryCache(cfg.Lookup.CacheMaxEntries)
		cache = memCache
	}
	return lookup.NewCached(lookup.NewBreaking(client, breaker, log, m), cache,
		cfg.Lookup.CacheTTL, cfg.Lookup.NegativeCacheTTL,
		lookup.WithCacheLogger(log),
		lookup.WithCacheMetrics(m),
	), memCache
}
