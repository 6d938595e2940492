// Command governanced is the composition root for the agent governance
// runtime: it loads configuration, wires every capability driver and
// domain service, registers the background sweeps, and serves the
// operation table over HTTP until it receives a termination signal.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/r3e-network/agent-governance/infrastructure/middleware"
	"github.com/r3e-network/agent-governance/internal/audit"
	"github.com/r3e-network/agent-governance/internal/collab"
	"github.com/r3e-network/agent-governance/internal/dialectic"
	"github.com/r3e-network/agent-governance/internal/dynamics"
	"github.com/r3e-network/agent-governance/internal/identity"
	"github.com/r3e-network/agent-governance/internal/lock"
	"github.com/r3e-network/agent-governance/internal/notes"
	"github.com/r3e-network/agent-governance/internal/operations"
	"github.com/r3e-network/agent-governance/internal/platform"
	"github.com/r3e-network/agent-governance/internal/ratelimit"
	"github.com/r3e-network/agent-governance/internal/sessioncache"
	"github.com/r3e-network/agent-governance/internal/store"
	"github.com/r3e-network/agent-governance/internal/store/postgres"
	"github.com/r3e-network/agent-governance/internal/store/sqlite"
	"github.com/r3e-network/agent-governance/internal/stuck"
	"github.com/r3e-network/agent-governance/internal/svc"
	"github.com/r3e-network/agent-governance/internal/telemetry"
	"github.com/r3e-network/agent-governance/internal/transport/httpapi"
	"github.com/r3e-network/agent-governance/pkg/config"
	"github.com/r3e-network/agent-governance/pkg/logger"
	"github.com/r3e-network/agent-governance/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overrides CONFIG_FILE)")
	flag.Parse()
	if *configPath != "" {
		os.Setenv("CONFIG_FILE", *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log_ := logger.New(logger.LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output})
	log_.Infof("starting governanced %s", version.FullVersion())

	rootCtx := context.Background()

	st, db, err := openStore(rootCtx, cfg)
	if err != nil {
		log_.Fatalf("open store: %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	runner := svc.New(log_)

	sessions, rdb := buildSessionCache(cfg)
	lockDriver := buildLock(cfg, rdb)
	summarizer, embedder := buildCollaborators(cfg)

	runner.RegisterDriver(lockDriver)
	if d, ok := summarizer.(platform.Driver); ok {
		runner.RegisterDriver(d)
	}
	if d, ok := embedder.(platform.Driver); ok {
		runner.RegisterDriver(d)
	}

	engine := dynamics.New(cfg.Dynamics)
	lockTTL := time.Duration(cfg.Lock.TimeoutSeconds) * time.Second

	dynamicsSvc := dynamics.NewService(engine, lockDriver, st.AgentStates, st.Identities, st.Dialectic, st.Audit, lockTTL)
	dialecticSvc := dialectic.New(st.Dialectic, st.Identities, st.AgentStates, st.Audit, lockDriver, dynamicsSvc, summarizer, lockTTL)
	resolver := identity.New(st.Identities, st.Sessions, sessions, time.Duration(cfg.Session.TTLSeconds)*time.Second, []byte(cfg.Session.JWTSecret))
	noteSvc := notes.New(st.Notes)
	auditSvc := audit.New(st.Audit)

	metrics := telemetry.Init("agent-governance", version.Version)

	detector := stuck.New(st.Identities, st.AgentStates, st.PatternEvents, dynamicsSvc, dialecticSvc, noteSvc, nil, cfg.StuckDetector, log_)
	runner.RegisterLoop("stuck-detector", svc.LoopFunc(detector.Run))

	dialecticTimeout := svc.NewCronLoop("@every 1m", func(ctx context.Context) {
		dialecticSvc.SweepTimeouts(ctx)
	}, log_)
	runner.RegisterLoop("dialectic-timeout-sweep", svc.LoopFunc(dialecticTimeout.Run))

	rateLimits := ratelimit.DefaultLimits()
	if cfg.RateLimit.NotesPerHour > 0 {
		l := rateLimits[ratelimit.ClassUpdate]
		l.Burst = cfg.RateLimit.NotesPerHour
		rateLimits[ratelimit.ClassUpdate] = l
	}
	rateLimiter := ratelimit.NewRegistry(rateLimits, 10*time.Minute)

	table := operations.NewTable(&operations.Deps{
		Identity:  resolver,
		Dynamics:  dynamicsSvc,
		Dialectic: dialecticSvc,
		Stuck:     detector,
		Notes:     noteSvc,
		Audit:     auditSvc,
		Store:     st,
		RateLimit: rateLimiter,
		Lock:      lockDriver,
		Metrics:   metrics,
		Log:       log_,
		Version:   version.Version,
		StartedAt: time.Now(),
	})

	server := httpapi.New(table, resolver, log_, httpapi.Config{
		RequestTimeout: 30 * time.Second,
		CORS:           &middleware.CORSConfig{},
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	if err := runner.Start(rootCtx); err != nil {
		log_.Fatalf("start background drivers: %v", err)
	}

	httpSrv := &http.Server{Addr: addr, Handler: server.Handler()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log_.Fatalf("http server failed: %v", err)
		}
	}()
	log_.Infof("governanced listening on %s", addr)

	shutdown := middleware.NewGracefulShutdown(httpSrv, 15*time.Second)
	shutdown.OnShutdown(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		runner.Stop(stopCtx)
	})
	shutdown.ListenForSignals()
	shutdown.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, *sql.DB, error) {
	lifetime := time.Duration(cfg.Database.ConnMaxLifetime) * time.Second
	switch cfg.Database.Backend {
	case "sqlite":
		return sqlite.Open(ctx, cfg.Database.URL)
	default:
		return postgres.Open(ctx, cfg.Database.URL, cfg.Database.MinConns, cfg.Database.MaxConns, lifetime, cfg.Database.MigrateOnStart)
	}
}

// buildSessionCache returns the identity session cache and, when a Redis
// cache is configured, the shared client so the named lock driver below
// can reuse the same connection instead of dialing twice.
func buildSessionCache(cfg *config.Config) (sessioncache.Cache, *goredis.Client) {
	if !cfg.Cache.Enabled || cfg.Cache.URL == "" {
		return sessioncache.NewLocal(time.Duration(cfg.Session.TTLSeconds) * time.Second), nil
	}
	opts, err := goredis.ParseURL(cfg.Cache.URL)
	if err != nil {
		log.Fatalf("parse cache url: %v", err)
	}
	client := goredis.NewClient(opts)
	return sessioncache.NewRedis(client, "governance:session:"), client
}

func buildLock(cfg *config.Config, rdb *goredis.Client) platform.NamedLockDriver {
	acquireTimeout := time.Duration(cfg.Lock.AcquireTimeoutMS) * time.Millisecond
	if rdb == nil {
		return lock.NewLocal(acquireTimeout)
	}
	return lock.NewRedis(rdb, "governance:lock:", acquireTimeout)
}

func buildCollaborators(cfg *config.Config) (platform.SummarizerDriver, platform.EmbedderDriver) {
	var summarizer platform.SummarizerDriver = platform.NullSummarizer{}
	var embedder platform.EmbedderDriver = platform.NullEmbedder{}

	if cfg.Collaborator.SummarizerEndpoint != "" {
		s, err := collab.NewHTTPSummarizer(cfg.Collaborator.SummarizerEndpoint, 10*time.Second)
		if err != nil {
			log.Fatalf("configure summarizer: %v", err)
		}
		summarizer = s
	}
	if cfg.Collaborator.EmbeddingsEndpoint != "" {
		e, err := collab.NewHTTPEmbedder(cfg.Collaborator.EmbeddingsEndpoint, 10*time.Second)
		if err != nil {
			log.Fatalf("configure embedder: %v", err)
		}
		embedder = e
	}
	return summarizer, embedder
}
