package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bookinghub/interpreter-assignment/internal/assign"
	"github.com/bookinghub/interpreter-assignment/internal/assignlog"
	"github.com/bookinghub/interpreter-assignment/internal/booking"
	"github.com/bookinghub/interpreter-assignment/internal/candidates"
	cfgpkg "github.com/bookinghub/interpreter-assignment/internal/config"
	"github.com/bookinghub/interpreter-assignment/internal/conflict"
	"github.com/bookinghub/interpreter-assignment/internal/db"
	"github.com/bookinghub/interpreter-assignment/internal/directory"
	"github.com/bookinghub/interpreter-assignment/internal/drpolicy"
	"github.com/bookinghub/interpreter-assignment/internal/environment"
	"github.com/bookinghub/interpreter-assignment/internal/fairness"
	"github.com/bookinghub/interpreter-assignment/internal/health"
	_ "github.com/bookinghub/interpreter-assignment/internal/metrics" // Register collectors
	"github.com/bookinghub/interpreter-assignment/internal/policy"
	"github.com/bookinghub/interpreter-assignment/internal/pool"
	"github.com/bookinghub/interpreter-assignment/internal/scheduler"
	"github.com/bookinghub/interpreter-assignment/internal/selector"
	"github.com/bookinghub/interpreter-assignment/internal/service"
)

// lockManager adapts the database client's named locks to the coordinator.
type lockManager struct {
	client *db.Client
}

func (m lockManager) Acquire(ctx context.Context, name string, timeout time.Duration) (assign.Lock, error) {
	l, err := m.client.AcquireNamedLock(ctx, name, timeout)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := cfgpkg.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Health endpoints come up first so orchestration can probe while the
	// rest of the engine starts.
	hm := health.NewManager(logger)
	adminMux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(adminMux)
	go func() {
		addr := ":" + strconv.Itoa(cfg.Observability.HealthPort)
		srv := &http.Server{
			Addr:         addr,
			Handler:      adminMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		logger.Info("Admin HTTP server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin HTTP server failed", zap.Error(err))
		}
	}()
	go func() {
		addr := ":" + strconv.Itoa(cfg.Observability.MetricsPort)
		logger.Info("Metrics server listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	dbClient, err := db.NewClient(&db.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxConnections:  cfg.Database.MaxConnections,
		IdleConnections: cfg.Database.IdleConnections,
		MaxLifetime:     cfg.Database.MaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbClient.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis unavailable, running without cache", zap.Error(err))
			redisClient = nil
		}
		pingCancel()
	}

	sqlDB := dbClient.DB()
	bookings := booking.NewStore(sqlDB, logger)
	policies := policy.NewStore(sqlDB, redisClient, logger)
	envResolver := environment.NewResolver(sqlDB, logger)
	conflicts := conflict.NewChecker(sqlDB)
	dir := directory.NewStore(sqlDB)
	fairnessTracker := fairness.NewTracker(sqlDB, logger)
	logWriter := assignlog.NewWriter(sqlDB, logger)
	defer logWriter.Close()
	history := assignlog.NewHistory(sqlDB)
	drPolicy := drpolicy.NewPolicy(history, logger)

	filter := candidates.NewFilter(dir, conflicts, fairnessTracker, drPolicy, logger)
	sel := selector.New(policies, filter, history, logger)

	coordinator := assign.NewCoordinator(
		assign.Config{},
		lockManager{client: dbClient},
		dbClient,
		bookings,
		sel,
		policies,
		envResolver,
		conflicts,
		logWriter,
		assign.NopNotifier{},
		logger,
	)

	bookingPool := pool.New(sqlDB, logger)
	sched, err := scheduler.New(scheduler.Config{
		TickInterval:   time.Duration(cfg.Scheduler.TickSeconds) * time.Second,
		Horizon:        time.Duration(cfg.Scheduler.HorizonDays) * 24 * time.Hour,
		Workers:        cfg.Scheduler.Workers,
		MaxAttempts:    cfg.Scheduler.MaxAttempts,
		DispatchPerSec: cfg.Scheduler.DispatchPerSec,
		RecoveryCron:   cfg.Scheduler.RecoveryCron,
	}, bookingPool, coordinator, redisClient, logger)
	if err != nil {
		logger.Fatal("Failed to initialize scheduler", zap.Error(err))
	}

	hm.RegisterChecker(health.NewDatabaseChecker(dbClient))
	hm.RegisterChecker(health.NewRedisChecker(redisClient))
	hm.RegisterChecker(health.NewSchedulerChecker(sched,
		3*time.Duration(cfg.Scheduler.TickSeconds)*time.Second))
	go hm.Start(ctx)

	svc := service.New(dbClient, bookings, bookingPool, policies, envResolver,
		conflicts, dir, coordinator, sched, logWriter, cfg.Features, logger)

	// Manual pass trigger on the admin mux.
	adminMux.HandleFunc("/admin/scheduler/pass", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		result, err := svc.RunSchedulerPass(r.Context(), scheduler.PassKindManual)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		logger.Info("Manual scheduler pass triggered",
			zap.Int("dispatched", result.Dispatched),
			zap.Int("assigned", result.Assigned),
		)
		w.WriteHeader(http.StatusOK)
	})

	// Hot-reload the config file; policy reads re-merge on next access.
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/engine.yaml"
	}
	if watcher, err := cfgpkg.NewWatcher(cfgPath, logger); err == nil {
		watcher.OnChange(func(*cfgpkg.Config) {
			policies.Invalidate(context.Background())
		})
		watcher.Start()
		defer watcher.Stop()
	} else {
		logger.Warn("Config watcher unavailable", zap.Error(err))
	}

	sched.Start(ctx)

	logger.Info("Interpreter assignment engine started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	sched.Stop()
	cancel()
}
