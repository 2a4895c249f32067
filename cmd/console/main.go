package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"fpconsole/internal/apiclient"
	"fpconsole/internal/audit"
	"fpconsole/internal/auth"
	"fpconsole/internal/config"
	"fpconsole/internal/console"
	"fpconsole/internal/enrollment"
	"fpconsole/internal/httpmiddleware"
	"fpconsole/internal/logger"
	"fpconsole/internal/queue"
	"fpconsole/internal/removal"
	"fpconsole/internal/sensor"
	"fpconsole/internal/session"
	"fpconsole/internal/simulation"
	"fpconsole/internal/store"
	"fpconsole/internal/views"
)

func main() {
	logger.Init()
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		logger.LogError("console failed", err)
		os.Exit(1)
	}
}

func run(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	issuer := auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)

	baseURL := cfg.APIBaseURL
	var completion enrollment.CompletionSignal
	if cfg.Simulation {
		sim := simulation.New(simulation.Options{Issuer: issuer, CompleteAfter: cfg.SimCompleteAfter, Seed: true})
		defer sim.Close()
		url, shutdown, err := sim.Listen("127.0.0.1:" + cfg.SimPort)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
		baseURL = url
		logger.LogInfo("simulation mode: using in-process backend", "url", baseURL)
	}

	var provider session.Provider
	if cfg.IdentityURL != "" {
		provider = session.NewRemoteProvider(cfg.IdentityURL, cfg.SecureTokenURL, cfg.IdentityAPIKey)
	} else {
		local := session.NewLocalProvider(issuer, httpmiddleware.NewTokenBucket(cfg.SignInAttemptsPerMin, cfg.SignInAttemptsPerMin))
		if err := local.AddAccount(cfg.AdminEmail, cfg.AdminPassword, false); err != nil {
			return err
		}
		provider = local
	}
	sess := session.New(provider)
	operator := func() string {
		if u, ok := sess.CurrentUser(); ok {
			return u.Email
		}
		return ""
	}

	client := apiclient.New(baseURL, sess, cfg.APITimeout)

	var (
		q     queue.Queue
		redis *store.Redis
	)
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		redis = store.NewRedis(cfg.RedisAddr)
		defer redis.Close()
		q = queue.NewRedisQueue(redis.Client, queue.DefaultKey)
	}

	dsn := cfg.AuditDSN
	if dsn == "" && cfg.AuditDriver == store.DriverSQLite {
		dsn = "fpconsole-audit.db"
	}
	db, err := store.NewDB(cfg.AuditDriver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	repo := audit.NewRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := audit.NewService(repo).Run(ctx, q); err != nil && !errors.Is(err, context.Canceled) {
				logger.LogError("audit consumer stopped", err)
			}
		}()
	}

	monitor := sensor.NewMonitor(client)
	refresher := views.NewRefresher(client, func(ctx context.Context) { monitor.Refresh(ctx) })

	poll := enrollment.PollingSignal{Students: client, Interval: cfg.EnrollPollInterval}
	completion = poll
	if cfg.Simulation {
		completion = enrollment.Chain{enrollment.DefaultScript(cfg.SimStepDelay), poll}
	}
	enroll := enrollment.NewWorkflow(client, completion, enrollment.Options{
		Timeout:     cfg.EnrollTimeout,
		Invalidator: refresher,
		Events:      q,
		Operator:    operator,
	})
	enroll.OnTransition(func(a enrollment.Attempt) {
		logger.LogDebug("enrollment transition", "attempt", a.ID, "state", a.State)
	})
	remove := removal.NewWorkflow(client, removal.Options{Invalidator: refresher, Events: q, Operator: operator})

	go monitor.Run(ctx, cfg.SensorStatusInterval)

	srv := console.New(console.Deps{
		Session:      sess,
		Tokens:       auth.NewIssuer(cfg.JWTIssuer+"-console", cfg.JWTSigningKey, cfg.SessionTTL, cfg.SessionTTL),
		SecureCookie: cfg.Production(),
		API:          client,
		Enrollment:   enroll,
		Removal:      remove,
		Monitor:      monitor,
		Views:        refresher,
		Audit:        repo,
		Limiter:      httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Origins:      cfg.CORSOrigins,
		Health: func(ctx context.Context) map[string]bool {
			checks := map[string]bool{"audit_db": db.Client.PingContext(ctx) == nil}
			if redis != nil {
				checks["redis"] = redis.Healthy(ctx)
			}
			return checks
		},
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.LogInfo("starting console", "port", cfg.HTTPPort, "backend", baseURL)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.LogInfo("shutting down console")

	enroll.Discard()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.LogError("console forced shutdown", err)
	}
	logger.LogInfo("console exited")
	return nil
}
