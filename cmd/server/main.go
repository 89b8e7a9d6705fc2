package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/solvergate/internal/chain"
	"github.com/GoPolymarket/solvergate/internal/config"
	"github.com/GoPolymarket/solvergate/internal/handler"
	"github.com/GoPolymarket/solvergate/internal/middleware"
	"github.com/GoPolymarket/solvergate/internal/pkg/logger"
	"github.com/GoPolymarket/solvergate/internal/policy"
	"github.com/GoPolymarket/solvergate/internal/repository"
	"github.com/GoPolymarket/solvergate/internal/service"
	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/GoPolymarket/solvergate/internal/signer"
	"github.com/GoPolymarket/solvergate/internal/stream"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// idle rate-limit buckets are dropped after this long
const limiterIdleRetention = 10 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.yaml or ./configs/config.yaml)")
	flag.Parse()

	// 1. Load Configuration
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// 2. Initialize Logger
	logger.InitWithFile(cfg.Log.Level, cfg.Log.File)
	defer logger.Sync()
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Persistence
	var db *sqlx.DB
	if cfg.Database.DSN != "" {
		db, err = repository.NewDB(ctx, cfg)
		if err != nil {
			if cfg.Storage.Driver == "postgres" {
				log.Fatalf("Failed to connect to PostgreSQL: %v", err)
			}
			logger.Error("failed to connect to DB, continuing without it", "error", err.Error())
		} else {
			logger.Info("connected to PostgreSQL")
			defer db.Close()
		}
	}

	var rdb *repository.RedisClient
	if cfg.Redis.Addr != "" {
		rdb, err = repository.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Error("failed to connect to Redis, continuing without it", "error", err.Error())
		} else {
			logger.Info("connected to Redis")
			defer rdb.Close()
		}
	}

	store, err := openStore(ctx, cfg, db)
	if err != nil {
		log.Fatalf("Failed to open settlement store: %v", err)
	}
	defer store.Close()

	usage := openUsage(ctx, cfg, db, rdb)
	auditRepo := openAuditRepo(ctx, cfg, db, rdb)
	idemStore := openIdempotency(ctx, cfg, db, rdb)

	// 4. Chain
	domain := signer.NewDomain(cfg.Chain.DomainName, cfg.Chain.DomainVersion, cfg.Chain.ChainID,
		common.HexToAddress(cfg.Chain.VerifyingContract))
	payout, err := openPayout(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize payout: %v", err)
	}

	// 5. Policy & Events
	hooks := service.NewHookFactory(cfg, usage)
	initialHook, err := hooks.Default()
	if err != nil {
		log.Fatalf("Failed to build policy hook: %v", err)
	}
	hub := stream.NewHub()
	go hub.Run(ctx)

	publishers := settlement.Publishers{hooks, service.LogPublisher{}, service.MetricsPublisher{}, hub}
	if rdb != nil && cfg.Redis.EventStream != "" {
		publishers = append(publishers, repository.NewRedisEventStream(rdb, cfg.Redis.EventStream, cfg.Redis.EventStreamMaxLen))
	}

	// 6. Settlement Engine
	engine, err := settlement.New(ctx, settlement.Config{
		Owner:    common.HexToAddress(cfg.Settlement.Owner),
		Treasury: common.HexToAddress(cfg.Settlement.Treasury),
		Split: settlement.Split{
			Numerator:   cfg.Settlement.SplitNumerator,
			Denominator: cfg.Settlement.SplitDenominator,
		},
		HookTimeout: time.Duration(cfg.Settlement.HookTimeoutMs) * time.Millisecond,
	}, signer.NewVerifier(domain), store, payout,
		settlement.WithHook(initialHook),
		settlement.WithPublisher(publishers))
	if err != nil {
		log.Fatalf("Failed to initialize settlement engine: %v", err)
	}

	// 7. Services
	auditSvc, err := service.NewAuditService("./logs", auditRepo)
	if err != nil {
		log.Fatalf("Failed to initialize audit service: %v", err)
	}
	settleSvc := service.NewSettlementService(engine, domain, hooks, cfg.Settlement.AmountDecimals)

	limiters := middleware.NewLimiters(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go service.RunCleanup(ctx, time.Duration(cfg.Database.CleanupIntervalMinutes)*time.Minute, cleanupJobs(cfg, auditRepo, usage, idemStore, limiters))

	// 8. Setup Router
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	r := handler.NewRouter(handler.RouterDeps{
		Settlement:  settleSvc,
		Audit:       auditSvc,
		Idempotency: idemStore,
		Limiters:    limiters,
		Events:      hub.Handler(),
		AdminKey:    cfg.Auth.AdminKey,
		MaxSkew:     time.Duration(cfg.Auth.MaxClockSkewSeconds) * time.Second,
		ReadOnly:    cfg.Server.ReadOnly,
		MetricsPath: metricsPath,
	})

	// 9. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler.WithCORS(r, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("SolverGate started",
			"port", cfg.Server.Port,
			"owner", engine.Owner().Hex(),
			"treasury", engine.Treasury().Hex(),
			"hook", engine.HookName(),
			"storage", cfg.Storage.Driver,
			"payout", cfg.Chain.PayoutMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err.Error())
	}
	auditSvc.Close()

	logger.Info("server exiting")
}

func openStore(ctx context.Context, cfg *config.Config, db *sqlx.DB) (settlement.Store, error) {
	switch cfg.Storage.Driver {
	case "pebble":
		s, err := repository.NewPebbleStore(cfg.Storage.PebblePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		if db == nil {
			return nil, errors.New("postgres storage requires database.dsn")
		}
		s, err := repository.NewPostgresStore(ctx, db)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		logger.Warn("using in-memory settlement store; state is lost on restart")
		return settlement.NewMemoryStore(), nil
	}
}

// openUsage honours policy.usage_store, falling back to memory when the backend is unavailable.
func openUsage(ctx context.Context, cfg *config.Config, db *sqlx.DB, rdb *repository.RedisClient) policy.UsageRepo {
	switch cfg.Policy.UsageStore {
	case "redis":
		if rdb != nil {
			return repository.NewRedisUsageRepo(rdb)
		}
	case "postgres":
		if db != nil {
			repo, err := repository.NewPostgresUsageRepo(ctx, db)
			if err == nil {
				return repo
			}
			logger.Error("failed to init postgres usage repo", "error", err.Error())
		}
	case "", "memory":
		return policy.NewMemoryUsage()
	}
	logger.Warn("usage store unavailable, falling back to memory", "usage_store", cfg.Policy.UsageStore)
	return policy.NewMemoryUsage()
}

// Audit Persistence (Postgres > Redis > Local File)
func openAuditRepo(ctx context.Context, cfg *config.Config, db *sqlx.DB, rdb *repository.RedisClient) service.AuditRepo {
	if db != nil {
		repo, err := repository.NewPostgresAuditRepo(ctx, db)
		if err == nil {
			return repo
		}
		logger.Error("failed to init postgres audit repo", "error", err.Error())
	}
	if rdb != nil {
		return repository.NewRedisAuditRepo(rdb, cfg.Redis.AuditListKey, cfg.Redis.AuditListMax)
	}
	return nil
}

// Idempotency (Redis > Postgres > Memory)
func openIdempotency(ctx context.Context, cfg *config.Config, db *sqlx.DB, rdb *repository.RedisClient) middleware.IdempotencyStore {
	if rdb != nil {
		return repository.NewRedisIdempotencyStore(rdb, time.Duration(cfg.Redis.IdempotencyTTLSeconds)*time.Second)
	}
	ttl := time.Duration(cfg.Database.IdempotencyRetentionHours) * time.Hour
	if db != nil {
		store, err := repository.NewPostgresIdempotencyStore(ctx, db, ttl)
		if err == nil {
			return store
		}
		logger.Error("failed to init postgres idempotency store", "error", err.Error())
	}
	return middleware.NewInMemIdempotencyStore(ttl)
}

func openPayout(ctx context.Context, cfg *config.Config) (settlement.Payout, error) {
	if cfg.Chain.PayoutMode != "onchain" {
		logger.Warn("payouts are journaled only; no value leaves the process")
		return settlement.NewJournal(), nil
	}
	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, err
	}
	p, err := chain.NewPayout(client, cfg.Chain.PayoutPrivateKey, cfg.Chain.ChainID,
		time.Duration(cfg.Chain.ReceiptTimeoutSeconds)*time.Second)
	if err != nil {
		client.Close()
		return nil, err
	}
	logger.Info("on-chain payouts enabled", "from", p.From().Hex(), "chain_id", cfg.Chain.ChainID)
	return p, nil
}

func cleanupJobs(cfg *config.Config, audit service.AuditRepo, usage policy.UsageRepo, idem middleware.IdempotencyStore, limiters *middleware.Limiters) []service.CleanupJob {
	var jobs []service.CleanupJob
	add := func(name string, target any, retention time.Duration) {
		if c, ok := target.(service.Cleaner); ok {
			jobs = append(jobs, service.CleanupJob{Name: name, Target: c, Retention: retention})
		}
	}
	day := 24 * time.Hour
	add("audit_logs", audit, time.Duration(cfg.Database.AuditRetentionDays)*day)
	add("signer_daily_usage", usage, time.Duration(cfg.Database.UsageRetentionDays)*day)
	add("idempotency_keys", idem, time.Duration(cfg.Database.IdempotencyRetentionHours)*time.Hour)
	add("rate_limiters", limiters, limiterIdleRetention)
	return jobs
}
