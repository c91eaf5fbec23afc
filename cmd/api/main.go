package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"tessera.id/internal/audit"
	"tessera.id/internal/auth"
	"tessera.id/internal/config"
	"tessera.id/internal/directory"
	"tessera.id/internal/httpapi"
	"tessera.id/internal/migrate"
	"tessera.id/internal/obs"
	"tessera.id/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		slog.Error("tessera-api stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := obs.NewLogger(os.Stdout, cfg.SlogLevel())
	slog.SetDefault(logger)

	store, err := pg.Open(cfg.DatabaseURL, pg.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.MigrateOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		applied, err := migrate.NewManager(store.DB(), migrate.Embedded()).Up(ctx)
		cancel()
		if err != nil {
			return err
		}
		logger.Info("migrations applied", "count", len(applied), "names", applied)
	}

	metrics := obs.NewMetrics()
	metrics.SetBuildInfo(version, commit)

	hasher, err := auth.NewPasswordHasher(cfg.PasswordAlgorithm)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(cfg.TokenConfig(),
		auth.WithLeeway(cfg.TokenClockSkew),
		auth.WithObserver(metrics),
	)
	if err != nil {
		return err
	}
	tenants, err := directory.NewTenantService(store, hasher)
	if err != nil {
		return err
	}
	identities, err := directory.NewIdentityService(store, hasher,
		directory.WithAdminRegistration(cfg.AllowAdminRegistration))
	if err != nil {
		return err
	}

	ready := httpapi.ReadyProbe{DB: store}
	api, err := httpapi.New(httpapi.Deps{
		Tenants:      tenants,
		Identities:   identities,
		Tokens:       tokens,
		Ready:        ready,
		Metrics:      metrics,
		Audit:        audit.New(logger),
		Logger:       logger,
		Version:      version,
		CORSOrigins:  cfg.CORSAllowedOrigins,
		MaxBodyBytes: cfg.MaxBodyBytes,
		RateLimit:    cfg.RateLimitEnabled,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return serve(ctx, logger, srv, cfg.GRPCAddr, ready)
}

// serve runs srv and, when grpcAddr is set, the gRPC health service until ctx
// is done or a server fails. A server failure is returned once both servers
// have stopped.
func serve(ctx context.Context, logger *slog.Logger, srv *http.Server, grpcAddr string, ready httpapi.ReadyProbe) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcSrv *grpc.Server
	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return errors.Join(err, shutdownHTTP(srv))
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewHealthServer(ready, 10*time.Second)
		health.Register(grpcSrv)
		go health.Run(ctx)
		go func() {
			logger.Info("grpc listening", "addr", grpcAddr)
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		logger.Error("server failed", "error", serveErr)
	}

	cancel()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := errors.Join(serveErr, shutdownHTTP(srv)); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

func shutdownHTTP(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
