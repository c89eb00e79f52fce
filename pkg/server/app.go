package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RiskPulse/internal/domain/repository"
	domsvc "RiskPulse/internal/domain/service"
	"RiskPulse/internal/usecase"
	pkgch "RiskPulse/pkg/clickhouse"
	"RiskPulse/pkg/config"
	xhttp "RiskPulse/pkg/http"
	pkgkafka "RiskPulse/pkg/kafka"
	applogger "RiskPulse/pkg/logger"
)

// Closer is anything with resources to release on shutdown.
type Closer interface {
	Close() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	gen        domsvc.ReportGenerator
	scheduler  *usecase.RefreshScheduler
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	httpServer *xhttp.Server
	store      repository.EntityStore
	publisher  repository.ReportPublisher
	chClient   *pkgch.Client
	closers    []Closer
}

// New creates a new App instance with all dependencies. consumer, kh,
// publisher and chClient may be nil when the matching backend is disabled.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	gen domsvc.ReportGenerator,
	scheduler *usecase.RefreshScheduler,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	httpServer *xhttp.Server,
	store repository.EntityStore,
	publisher repository.ReportPublisher,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:        cfg,
		l:          l,
		gen:        gen,
		scheduler:  scheduler,
		consumer:   consumer,
		kh:         kh,
		httpServer: httpServer,
		store:      store,
		publisher:  publisher,
		chClient:   chClient,
	}
}

// OnShutdown registers extra resources closed after everything else stopped.
func (a *App) OnShutdown(c Closer) { a.closers = append(a.closers, c) }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	if a.cfg.Reports.RefreshOnBoot {
		go a.bootRefresh(ctx)
	}

	if a.scheduler != nil {
		a.scheduler.Start()
		a.l.Info("refresh scheduler started", applogger.String("spec", a.cfg.Reports.RefreshCron))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) bootRefresh(ctx context.Context) {
	summary, err := a.gen.Refresh(ctx, "boot")
	switch {
	case errors.Is(err, usecase.ErrRefreshInProgress):
		a.l.Info("boot refresh skipped, another replica is refreshing")
	case err != nil:
		a.l.Error("boot refresh failed", applogger.Error(err))
	default:
		a.l.Info("boot refresh done",
			applogger.String("run_id", summary.RunID),
			applogger.Int("failed", summary.Failed()))
	}
}

// shutdown stops intake first, then waits for running work, then closes
// clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.l.Warn("scheduler stop error", applogger.Error(err))
		}
	}

	// flushes pending quality findings while the producer is still open
	a.l.RemoveCollector()

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.l.Warn("publisher close error", applogger.Error(err))
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.l.Warn("close error", applogger.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.l.Warn("store close error", applogger.Error(err))
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}
