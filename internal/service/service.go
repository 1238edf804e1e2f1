package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"crypto-spike-alerts/internal/alerting"
	"crypto-spike-alerts/internal/detector"
	"crypto-spike-alerts/internal/metrics"
	"crypto-spike-alerts/internal/opportunity"
	"crypto-spike-alerts/internal/report"
	"crypto-spike-alerts/internal/scheduler"
	"crypto-spike-alerts/internal/storage"
	"crypto-spike-alerts/internal/tasks"
)

// Options carry the service's loop tuning.
type Options struct {
	TaskPageSize    int
	AdvisoryLockKey int64
	// AuditRetention prunes audited events older than this each cycle;
	// zero disables pruning.
	AuditRetention time.Duration
}

// Service orchestrates detection, reporting, and delivery.
type Service struct {
	scheduler *scheduler.Scheduler
	store     *metrics.Store
	detector  *detector.Detector
	analyzer  *opportunity.Analyzer
	composer  *report.Composer
	dropper   *report.DropperTracker
	taskSrc   tasks.Source
	mailer    alerting.Mailer
	notifier  alerting.Notifier
	audit     storage.EventStore
	locker    storage.AdvisoryLocker
	logger    zerolog.Logger
	opts      Options
}

// New constructs the detection service. Mailer, notifier, audit store,
// and locker may be nil; the loop degrades gracefully without them.
func New(
	sched *scheduler.Scheduler,
	store *metrics.Store,
	det *detector.Detector,
	analyzer *opportunity.Analyzer,
	composer *report.Composer,
	dropper *report.DropperTracker,
	taskSrc tasks.Source,
	mailer alerting.Mailer,
	notifier alerting.Notifier,
	audit storage.EventStore,
	locker storage.AdvisoryLocker,
	opts Options,
	logger zerolog.Logger,
) *Service {
	if opts.TaskPageSize <= 0 {
		opts.TaskPageSize = 50
	}

	return &Service{
		scheduler: sched,
		store:     store,
		detector:  det,
		analyzer:  analyzer,
		composer:  composer,
		dropper:   dropper,
		taskSrc:   taskSrc,
		mailer:    mailer,
		notifier:  notifier,
		audit:     audit,
		locker:    locker,
		logger:    logger.With().Str("component", "service").Logger(),
		opts:      opts,
	}
}

// Run initialises the metrics table and begins the detection loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if err := s.store.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize metrics store: %w", err)
	}
	return s.scheduler.Run(ctx, s.ProcessCycle)
}

// ProcessCycle executes one detection pass, guarded by the advisory
// lock when a database is configured.
func (s *Service) ProcessCycle(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeCycle(ctx, bucket)
}

func (s *Service) executeCycle(ctx context.Context, bucket time.Time) error {
	events, snapshot, err := s.detector.Recalculate(ctx)
	if err != nil {
		return fmt.Errorf("recalculate metrics: %w", err)
	}

	s.dropper.Observe(events, snapshot)
	droppers := s.dropper.Records()

	eventsTotal := 0
	for _, symbolEvents := range events {
		eventsTotal += len(symbolEvents.Events)
	}

	s.logger.Info().Time("bucket", bucket).
		Int("symbols", len(snapshot)).
		Int("symbols_with_events", len(events)).
		Int("events", eventsTotal).
		Msg("detection pass complete")

	s.recordAudit(ctx, bucket, events, snapshot)
	s.pruneAudit(ctx, bucket)

	sent, failed := 0, 0
	if len(events) > 0 {
		opportunities := s.analyzer.Analyze(snapshot)
		sent, failed = s.deliverReports(ctx, events, snapshot, droppers, opportunities)
	}

	s.notifyCycle(ctx, bucket, events, snapshot, eventsTotal, sent, failed)
	return nil
}

// deliverReports pages through due subscriptions and mails each
// subscriber whose symbols produced events. Per-task failures are
// logged and skipped so one bad address cannot stall the cycle.
func (s *Service) deliverReports(
	ctx context.Context,
	events map[string]metrics.SymbolEvents,
	snapshot map[string]metrics.SymbolMetrics,
	droppers map[string]report.DropperRecord,
	opportunities []opportunity.Opportunity,
) (sent, failed int) {
	if s.taskSrc == nil || s.mailer == nil {
		return 0, 0
	}

	for page := 0; ; page++ {
		due, err := s.taskSrc.TasksForRun(ctx, page, s.opts.TaskPageSize)
		if err != nil {
			s.logger.Error().Err(err).Int("page", page).Msg("failed to fetch due tasks")
			failed++
			return sent, failed
		}
		if len(due) == 0 {
			return sent, failed
		}

		for _, task := range due {
			body, ok := s.composer.Compose(task, events, snapshot, droppers, opportunities)
			if !ok {
				s.logger.Debug().Str("task", task.ID).Msg("no events for subscriber, skipping report")
				continue
			}

			if err := s.mailer.Send(ctx, task.Email, report.Subject, body); err != nil {
				s.logger.Error().Err(err).Str("task", task.ID).Str("email", task.Email).Msg("failed to send report")
				failed++
				continue
			}
			sent++

			if err := s.taskSrc.SetLastRun(ctx, task.ID); err != nil {
				s.logger.Warn().Err(err).Str("task", task.ID).Msg("failed to mark task as run")
			}
		}

		if len(due) < s.opts.TaskPageSize {
			return sent, failed
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, bucket time.Time, events map[string]metrics.SymbolEvents, snapshot map[string]metrics.SymbolMetrics) {
	if s.audit == nil || len(events) == 0 {
		return
	}

	records := make([]storage.EventRecord, 0, len(events))
	for symbol, symbolEvents := range events {
		price := snapshot[symbol].CurrentPrice
		for _, event := range symbolEvents.Events {
			records = append(records, storage.EventRecord{
				CycleTS:      bucket,
				Symbol:       symbol,
				Kind:         string(event.Kind),
				Message:      event.Message,
				Price:        price,
				Contribution: event.Contribution,
			})
		}
	}

	if err := s.audit.InsertCycleEvents(ctx, records); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to persist event audit")
	}
}

// pruneAudit drops audited events past the retention window.
func (s *Service) pruneAudit(ctx context.Context, bucket time.Time) {
	if s.audit == nil || s.opts.AuditRetention <= 0 {
		return
	}

	cutoff := bucket.Add(-s.opts.AuditRetention)
	if err := s.audit.DeleteEventsBefore(ctx, cutoff); err != nil {
		s.logger.Warn().Err(err).Time("cutoff", cutoff).Msg("failed to prune event audit")
	}
}

func (s *Service) notifyCycle(ctx context.Context, bucket time.Time, events map[string]metrics.SymbolEvents, snapshot map[string]metrics.SymbolMetrics, eventsTotal, sent, failed int) {
	if s.notifier == nil || eventsTotal == 0 {
		return
	}

	summary := alerting.CycleSummary{
		RanAt:          bucket,
		SymbolsTracked: len(snapshot),
		SymbolsFired:   len(events),
		EventsTotal:    eventsTotal,
		ReportsSent:    sent,
		ReportErrors:   failed,
	}
	for symbol, symbolEvents := range events {
		if summary.TopSymbol == "" || symbolEvents.Score.GreaterThan(summary.TopScore) {
			summary.TopSymbol = symbol
			summary.TopScore = symbolEvents.Score
		}
	}

	if err := s.notifier.Notify(ctx, summary); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send cycle summary")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.locker == nil || s.opts.AdvisoryLockKey == 0 {
		return nil, true, nil
	}

	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	return unlock, acquired, nil
}
