package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-spike-alerts/internal/alerting"
	"crypto-spike-alerts/internal/coinbase"
	"crypto-spike-alerts/internal/config"
	"crypto-spike-alerts/internal/detector"
	"crypto-spike-alerts/internal/metrics"
	"crypto-spike-alerts/internal/opportunity"
	"crypto-spike-alerts/internal/report"
	"crypto-spike-alerts/internal/scheduler"
	"crypto-spike-alerts/internal/service"
	"crypto-spike-alerts/internal/storage"
	"crypto-spike-alerts/internal/tasks"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newPriceSource() coinbase.PriceSource {
	return coinbase.NewClient(coinbase.Options{
		BaseURL:    a.Config.Coinbase.BaseURL,
		Timeout:    a.Config.Coinbase.RequestTimeout,
		UserAgent:  a.Config.Coinbase.UserAgent,
		MaxCandles: a.Config.Coinbase.MaxCandles,
	}, a.Logger)
}

func (a *App) newMetricsStore(source coinbase.PriceSource) *metrics.Store {
	return metrics.NewStore(metrics.StoreOptions{
		StatePath:            a.Config.State.Path,
		WindowDays:           a.Config.Detector.WindowDays,
		QuoteCurrencies:      a.Config.Detector.QuoteCurrencies,
		BootstrapConcurrency: a.Config.Detector.BootstrapConc,
	}, source, a.Logger)
}

func (a *App) newDetector(store *metrics.Store, source coinbase.PriceSource) *detector.Detector {
	return detector.New(store, source, detector.Options{
		MinVolume:       decimal.NewFromFloat(a.Config.Detector.MinVolume),
		AverageStaleAge: a.Config.Detector.AverageStaleAge,
	}, a.Logger)
}

func (a *App) newAnalyzer() *opportunity.Analyzer {
	return opportunity.NewAnalyzer(opportunity.Options{
		NotionalEUR:      decimal.NewFromFloat(a.Config.Opportunity.NotionalEUR),
		FlatFeeEUR:       decimal.NewFromFloat(a.Config.Opportunity.FlatFeeEUR),
		FeeBps:           decimal.NewFromFloat(a.Config.Opportunity.FeeBps),
		MinProfitPercent: decimal.NewFromFloat(a.Config.Opportunity.MinProfitPct),
	})
}

func (a *App) newTaskSource() tasks.Source {
	if a.Config.Tasks.Endpoint == "" {
		return nil
	}

	client := tasks.NewClient(tasks.ClientOptions{
		Endpoint: a.Config.Tasks.Endpoint,
		Username: a.Config.Tasks.Username,
		Password: a.Config.Tasks.Password,
		Timeout:  a.Config.Tasks.RequestTimeout,
	}, a.Logger)

	if a.Config.Tasks.FallbackPath == "" {
		return client
	}
	return tasks.NewFallbackSource(client, a.Config.Tasks.FallbackPath, a.Logger)
}

func (a *App) newMailer() alerting.Mailer {
	if !a.Config.Mail.Enabled {
		return nil
	}
	return alerting.NewSMTPMailer(alerting.SMTPOptions{
		Host:     a.Config.Mail.Host,
		Port:     a.Config.Mail.Port,
		Username: a.Config.Mail.Username,
		Password: a.Config.Mail.Password,
		From:     a.Config.Mail.From,
		Timeout:  a.Config.Mail.Timeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openAudit(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running detection service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	audit, closeAudit, err := a.openAudit(ctx)
	if err != nil {
		return err
	}
	if audit == nil {
		a.Logger.Warn().Msg("database.dsn not configured; event audit disabled")
	}
	if closeAudit != nil {
		defer closeAudit()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
	}, a.Logger)

	source := a.newPriceSource()
	store := a.newMetricsStore(source)
	det := a.newDetector(store, source)

	taskSrc := a.newTaskSource()
	if taskSrc == nil {
		a.Logger.Warn().Msg("tasks.endpoint not configured; report delivery disabled")
	}
	mailer := a.newMailer()
	if mailer == nil {
		a.Logger.Warn().Msg("mail disabled; reports will not be sent")
	}

	var eventStore storage.EventStore
	var locker storage.AdvisoryLocker
	if audit != nil {
		eventStore = audit
		locker = audit
	}

	svc := service.New(
		sched,
		store,
		det,
		a.newAnalyzer(),
		report.NewComposer(a.Config.Opportunity.MaxPerReport),
		report.NewDropperTracker(nil, a.Logger),
		taskSrc,
		mailer,
		a.newNotifier(),
		eventStore,
		locker,
		service.Options{
			TaskPageSize:    a.Config.Tasks.PageSize,
			AdvisoryLockKey: a.Config.Scheduler.AdvisoryLockKey,
			AuditRetention:  a.Config.Database.EventRetention,
		},
		a.Logger,
	)

	a.Logger.Info().Msg("starting spike detection service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("spike detection service stopped")
	return nil
}

// ExportOptions hold parameters for exporting the metrics table.
type ExportOptions struct {
	CSVPath    string
	PNGPath    string
	TopSymbols int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BootstrapOptions configure the bootstrap job.
type BootstrapOptions struct {
	Force bool
}
