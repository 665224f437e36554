package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"margin-alerts/internal/alerting"
	"margin-alerts/internal/config"
	"margin-alerts/internal/engine"
	"margin-alerts/internal/fetcher"
	"margin-alerts/internal/scheduler"
	"margin-alerts/internal/server"
	"margin-alerts/internal/service"
	"margin-alerts/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newSource() (fetcher.Source, error) {
	if a.Config.Source.Demo.Enabled {
		demo, err := fetcher.NewDemo(a.Config.Source.Demo.Pattern)
		if err != nil {
			return nil, err
		}
		a.Logger.Info().Str("pattern", a.Config.Source.Demo.Pattern).Msg("using demo percentage source")
		return demo, nil
	}
	if a.Config.Source.HTTP.URL == "" {
		return nil, errors.New("no percentage source configured; set source.http.url or enable source.demo")
	}
	return fetcher.NewHTTP(fetcher.HTTPOptions{
		URL:       a.Config.Source.HTTP.URL,
		Token:     a.Config.Source.HTTP.Token,
		Timeout:   a.Config.Source.HTTP.Timeout,
		UserAgent: a.Config.Source.HTTP.UserAgent,
	}, a.Logger), nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	a.Logger.Warn().Msg("telegram disabled; notifications go to the log")
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) newEngine() *engine.Engine {
	return engine.New(engine.Thresholds{
		Low:           decimal.NewFromFloat(a.Config.Thresholds.Low),
		High:          decimal.NewFromFloat(a.Config.Thresholds.High),
		HighInclusive: a.Config.Thresholds.HighInclusive,
	}, a.Config.Schedule.RecurringInterval, a.Config.Location())
}

func (a *App) openStore(ctx context.Context) (storage.StateStore, error) {
	store, err := storage.Open(ctx, a.Config)
	if err != nil {
		return nil, fmt.Errorf("open %s state store: %w", a.Config.Storage.Driver, err)
	}
	return store, nil
}

// Run executes the long-running watcher: daily checks, the recurring job
// when engaged, and the HTTP surface.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	source, err := a.newSource()
	if err != nil {
		return err
	}

	var svc *service.Service
	recurring := scheduler.NewRecurring(scheduler.Options{
		Interval:     a.Config.Schedule.RecurringInterval,
		AlignToStart: a.Config.Schedule.AlignRecurring,
	}, func(ctx context.Context, _ time.Time) error {
		_, err := svc.RecurringCheck(ctx)
		return err
	}, a.Logger)
	defer recurring.Close()

	svc = service.New(a.Config, a.newEngine(), source, store, a.newNotifier(), recurring, a.Logger)

	if _, err := svc.Reset(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("failed to reset state at startup")
	}

	sched, err := a.newScheduler(svc)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if a.Config.Server.Enabled {
		srv := server.NewServer(a.Config.Server, a.Config.App.Environment, svc, a.Logger)
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	a.Logger.Info().
		Str("morning_at", a.Config.Schedule.MorningAt).
		Str("afternoon_at", a.Config.Schedule.AfternoonAt).
		Dur("recurring_interval", a.Config.Schedule.RecurringInterval).
		Str("timezone", a.Config.Location().String()).
		Msg("starting margin watcher")

	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("watcher terminated with error")
		return err
	}

	a.Logger.Info().Msg("margin watcher stopped")
	return nil
}

func (a *App) newScheduler(svc *service.Service) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.Config.Location(), a.Logger)

	daily := []struct {
		name  string
		clock string
		check service.Check
	}{
		{"morning", a.Config.Schedule.MorningAt, service.CheckMorning},
		{"afternoon", a.Config.Schedule.AfternoonAt, service.CheckAfternoon},
	}
	for _, d := range daily {
		hour, minute, err := config.ParseClock(d.clock)
		if err != nil {
			return nil, err
		}
		check := d.check
		if err := sched.AddDaily(scheduler.DailyJob{
			Name:   d.name,
			Hour:   hour,
			Minute: minute,
			Run: func(ctx context.Context, _ time.Time) error {
				_, err := svc.Run(ctx, check)
				return err
			},
		}); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
