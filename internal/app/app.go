package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/licensebot/licensebot/internal/config"
	"github.com/licensebot/licensebot/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Runner is a long-lived component that stops when its context ends.
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler is a background job started once and stopped on shutdown.
type Scheduler interface {
	Start(spec string) error
	Stop()
}

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Bot           Runner
	Reconciler    Scheduler
	Observability *observability.Runtime

	ShutdownTimeout time.Duration

	closers []func() error
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, bot Runner, reconciler Scheduler, runtime *observability.Runtime) *App {
	return &App{
		Config:          cfg,
		Logger:          logger,
		Server:          server,
		Bot:             bot,
		Reconciler:      reconciler,
		Observability:   runtime,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
}

// OnClose registers a release function run after everything else stopped,
// in reverse registration order.
func (a *App) OnClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Run serves HTTP, runs the bot and the reconciler until ctx is cancelled or
// one of them fails, then shuts everything down within ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.Server.Addr, err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", ln.Addr().String())
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.Bot != nil {
		g.Go(func() error { return a.Bot.Run(gctx) })
	}

	if a.Reconciler != nil && a.Config.Discord.ReconcileSchedule != "" {
		if err := a.Reconciler.Start(a.Config.Discord.ReconcileSchedule); err != nil {
			a.Logger.Error("role reconciler disabled", "error", err)
			a.Reconciler = nil
		}
	} else {
		a.Reconciler = nil
	}

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	runErr := g.Wait()
	return errors.Join(runErr, a.shutdown())
}

func (a *App) shutdown() error {
	var errs []error
	if a.Reconciler != nil {
		a.Reconciler.Stop()
	}
	if a.Observability != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		if err := a.Observability.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) shutdownTimeout() time.Duration {
	if a.ShutdownTimeout <= 0 {
		return 15 * time.Second
	}
	return a.ShutdownTimeout
}
