// Command mediavault-server starts the media vault access broker: the public
// REST API and the internal gRPC checks used by media storage.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	rediscache "github.com/and161185/media-vault/internal/cache/redis"
	"github.com/and161185/media-vault/internal/config"
	"github.com/and161185/media-vault/internal/identity"
	"github.com/and161185/media-vault/internal/limiter"
	"github.com/and161185/media-vault/internal/migrate"
	"github.com/and161185/media-vault/internal/model"
	"github.com/and161185/media-vault/internal/repository"
	"github.com/and161185/media-vault/internal/repository/postgres"
	grpcserver "github.com/and161185/media-vault/internal/server/grpc"
	httpserver "github.com/and161185/media-vault/internal/server/http"
	"github.com/and161185/media-vault/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.Stringer("config", cfg),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func ttlPolicies(cfg *config.Config) map[model.Scope]service.TTLPolicy {
	return map[model.Scope]service.TTLPolicy{
		model.ScopeMediaRead:    {Default: cfg.MediaReadTTL, Max: config.MaxMediaReadTTL},
		model.ScopeVaultSession: {Default: cfg.VaultSessionTTL, Max: config.MaxVaultSessionTTL},
		model.ScopeShareRedeem:  {Default: cfg.ShareRedeemTTL, Max: config.MaxShareRedeemTTL},
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
		return err
	}

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	// Repositories
	var tokens repository.TokenRepository = postgres.NewTokenRepo(db)
	vaults := postgres.NewVaultRepo(db)
	shares := postgres.NewShareRepo(db)
	resources := postgres.NewResourceRepo(db)

	if cfg.RedisAddr != "" {
		rc := rediscache.New(rediscache.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, logger)
		defer func() { _ = rc.Close() }()
		if err := rc.Ping(ctx); err != nil {
			// the cache falls back to PostgreSQL on every error
			logger.Warn("redis unreachable at startup", zap.Error(err))
		}
		tokens = rediscache.NewCachedTokens(tokens, rc, cfg.TokenCacheTTL, logger)
	}

	lim := limiter.NewPG(db.Pool, cfg.LimiterWindow, cfg.LimiterMaxFails, cfg.LimiterBlockFor)

	// Services
	broker := service.NewTokenBroker(tokens, ttlPolicies(cfg))
	vault := service.NewVaultGuard(db, vaults, service.NewArgonCredentials(vaults), broker, resources, lim, logger)
	links := service.NewShareLinkController(db, shares, resources, broker, lim, logger)
	sweeper := service.NewSweeper(broker, links, cfg.SweepInterval, cfg.ShareRetention, logger)

	// REST
	if !cfg.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	rest := httpserver.New(links, vault, identity.NewVerifier([]byte(cfg.JWTKey)), db.Ping, logger)
	handler, err := rest.Handler(cfg.CORSOrigins, cfg.TrustedProxies)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	// gRPC server with interceptors
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return err
		}
		opts = append(opts, grpc.Creds(creds))
	}
	gs := grpc.NewServer(opts...)
	grpcserver.Register(gs, grpcserver.New(broker, vault))

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(grpcserver.AccessBrokerServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.Dev {
		reflection.Register(gs)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", cfg.TLSCert != ""))
		errCh <- gs.Serve(lis)
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(sweepCtx)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	// graceful shutdown
	hs.Shutdown()
	cancelSweep()

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shCtx.Done():
		gs.Stop()
	}
	<-sweepDone
	return serveErr
}
