package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/swpuclaylee/APIFlask/internal/audit"
	audithandler "github.com/swpuclaylee/APIFlask/internal/audit/handler"
	auditrepo "github.com/swpuclaylee/APIFlask/internal/audit/repository"
	"github.com/swpuclaylee/APIFlask/internal/config"
	"github.com/swpuclaylee/APIFlask/internal/db"
	"github.com/swpuclaylee/APIFlask/internal/denylist"
	healthhandler "github.com/swpuclaylee/APIFlask/internal/health/handler"
	identityhandler "github.com/swpuclaylee/APIFlask/internal/identity/handler"
	identityservice "github.com/swpuclaylee/APIFlask/internal/identity/service"
	"github.com/swpuclaylee/APIFlask/internal/logging"
	"github.com/swpuclaylee/APIFlask/internal/metrics"
	"github.com/swpuclaylee/APIFlask/internal/platform/httputil"
	rbachandler "github.com/swpuclaylee/APIFlask/internal/rbac/handler"
	rbacrepo "github.com/swpuclaylee/APIFlask/internal/rbac/repository"
	"github.com/swpuclaylee/APIFlask/internal/rbac/resolver"
	rbacsvc "github.com/swpuclaylee/APIFlask/internal/rbac/service"
	"github.com/swpuclaylee/APIFlask/internal/security"
	"github.com/swpuclaylee/APIFlask/internal/seed"
	"github.com/swpuclaylee/APIFlask/internal/server"
	"github.com/swpuclaylee/APIFlask/internal/server/middleware"
	otelsetup "github.com/swpuclaylee/APIFlask/internal/telemetry/otel"
	"github.com/swpuclaylee/APIFlask/internal/token"
	userhandler "github.com/swpuclaylee/APIFlask/internal/user/handler"
	userrepo "github.com/swpuclaylee/APIFlask/internal/user/repository"
	usersvc "github.com/swpuclaylee/APIFlask/internal/user/service"
)

const shutdownTimeout = 15 * time.Second

// stores are the persistence backends chosen at startup.
type stores struct {
	users    userrepo.Repository
	graph    rbacrepo.Repository
	audit    auditrepo.Repository
	db       *sql.DB
	inMemory bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()
	clk := clock.WallClock

	providers, err := otelsetup.NewProviders(ctx, cfg.OTelEndpoint, cfg.OTelServiceName, cfg.OTelInsecure)
	if err != nil {
		logger.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(sctx); err != nil {
			logger.WithError(err).Warn("otel shutdown")
		}
	}()

	st := openStores(ctx, cfg, logger)
	if st.db != nil {
		defer st.db.Close()
	}

	revocations, closeRevocations := openDenylist(ctx, cfg, clk, logger)
	defer closeRevocations()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)
	checker := denylist.NewChecker(revocations, denylist.CheckerConfig{
		Timeout:  cfg.DenylistTimeoutDuration(),
		FailMode: cfg.DenylistFailMode,
		Logger:   logger,
		Metrics:  m,
	})

	keys, err := security.LoadSigningKeys(cfg.JWTAlgorithm, cfg.JWTSecret, cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		logger.Fatalf("signing keys: %v", err)
	}
	storeTimeout := cfg.StoreTimeoutDuration()
	tokens := token.NewService(token.Config{
		Provider:               security.NewTokenProvider(keys, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL(), clk),
		Users:                  st.users,
		Revocations:            checker,
		Metrics:                m,
		StoreTimeout:           storeTimeout,
		RevokeOnPasswordChange: cfg.RevokeOnPasswordChange,
	})

	hasher := security.NewHasher(cfg.BcryptCost)
	users := usersvc.NewUserService(st.users, hasher, clk, storeTimeout)
	roles := rbacsvc.NewRoleService(st.graph, st.users, clk, storeTimeout)
	perms := rbacsvc.NewPermissionService(st.graph, clk, storeTimeout)
	res := resolver.NewResolver(st.graph, storeTimeout)

	seedCfg := seed.Config{Catalog: perms, Roles: roles, Users: st.users, Creator: users, Logger: logger}
	if st.inMemory {
		seedCfg.AdminPassword = cfg.SeedAdminPassword
	}
	if _, err := seed.Run(ctx, seedCfg); err != nil {
		logger.Fatalf("seed: %v", err)
	}

	auditLogger := audit.NewLogger(st.audit, middleware.ClientIP, clk, logger).
		WithEmitter(otelsetup.NewAuditEmitter(providers.LoggerProvider))
	auth := identityservice.NewAuthService(identityservice.Config{
		Users:                  st.users,
		Creator:                users,
		Roles:                  roles,
		Permissions:            res,
		Hasher:                 hasher,
		Tokens:                 tokens,
		Audit:                  auditLogger,
		Metrics:                m,
		Logger:                 logger,
		Clock:                  clk,
		StoreTimeout:           storeTimeout,
		RevokeOnPasswordChange: cfg.RevokeOnPasswordChange,
	})

	errs := httputil.ErrorWriter{Logger: logger, Debug: !cfg.IsProduction(), Fields: server.ErrorFields}
	var limiter *middleware.RateLimiter
	if cfg.LoginRatePerSecond > 0 {
		limiter = middleware.NewRateLimiter(cfg.LoginRatePerSecond, cfg.LoginRateBurst, clk, m)
	}
	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies())
	if err != nil {
		logger.Fatalf("trusted proxies: %v", err)
	}
	var pinger healthhandler.Pinger
	if st.db != nil {
		pinger = st.db
	}

	handler := server.NewRouter(server.Deps{
		Auth:           middleware.NewAuth(tokens, res, errs, m),
		Errors:         errs,
		Logger:         logger,
		Metrics:        m,
		MetricsHandler: metrics.Handler(registry),
		AuditLogger:    auditLogger,
		LoginLimiter:   limiter,
		Identity:       identityhandler.NewHandlers(auth, errs),
		Users:          userhandler.NewHandlers(users, errs),
		RBAC:           rbachandler.NewHandlers(roles, perms, res, st.users, errs),
		Audit:          audithandler.NewHandlers(st.audit, errs),
		Health:         healthhandler.NewServer(pinger, checker),
		CORSOrigins:    cfg.CORSOrigins(),
		CORSPermissive: !cfg.IsProduction(),
		TrustedProxies: proxies,
		SlowRequest:    cfg.SlowRequestDuration(),
		Clock:          clk,
		Tracing:        cfg.OTelEndpoint != "",
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "env": cfg.Env}).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down HTTP server...")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.WithError(err).Error("graceful shutdown")
	}
	logger.Info("HTTP server stopped")
}

// openStores connects to Postgres, or falls back to in-memory stores outside production when
// DATABASE_URL is unset.
func openStores(ctx context.Context, cfg *config.Config, logger *logrus.Logger) stores {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			logger.Fatal("DATABASE_URL is required when APP_ENV=production")
		}
		logger.Warn("DATABASE_URL is not set; using in-memory stores, data is lost on restart")
		users := userrepo.NewMemoryRepository()
		return stores{
			users:    users,
			graph:    rbacrepo.NewMemoryRepository(users),
			audit:    auditrepo.NewMemoryRepository(),
			inMemory: true,
		}
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db: %v", err)
	}
	return stores{
		users: userrepo.NewPostgresRepository(conn),
		graph: rbacrepo.NewPostgresRepository(conn),
		audit: auditrepo.NewPostgresRepository(conn),
		db:    conn,
	}
}

// openDenylist connects to Redis, or uses the in-process store when REDIS_URL is empty.
func openDenylist(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *logrus.Logger) (denylist.Store, func()) {
	if cfg.RedisURL == "" {
		if cfg.IsProduction() {
			logger.Warn("REDIS_URL is not set; revocations are per-process and lost on restart")
		}
		return denylist.NewMemoryStore(clk), func() {}
	}
	store, err := denylist.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("redis close")
		}
	}
}
