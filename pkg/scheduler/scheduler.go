// Package scheduler runs automations with cron schedules.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ateliercrm/canal/pkg/eventbus"
	"github.com/ateliercrm/canal/pkg/executor"
	"github.com/ateliercrm/canal/pkg/persistence"
	"github.com/ateliercrm/canal/pkg/settings"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
)

const defaultSyncInterval = time.Minute

type job struct {
	entryID  cron.EntryID
	schedule string
}

// Scheduler keeps a cron entry per active automation with a schedule and
// re-reads the store periodically to pick up changes.
type Scheduler struct {
	store        persistence.Persistence
	eventBus     eventbus.EventPublisher
	tracer       trace.Tracer
	logger       *slog.Logger
	syncInterval time.Duration

	cron   *cron.Cron
	mutex  sync.Mutex
	jobs   map[string]job
	ctx    context.Context
	cancel context.CancelFunc
}

func New(
	store persistence.Persistence,
	eventBus eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		store:        store,
		eventBus:     eventBus,
		tracer:       tracer,
		logger:       logger.With("module", "scheduler"),
		syncInterval: defaultSyncInterval,
		jobs:         make(map[string]job),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	err := s.Sync(s.ctx)
	if err != nil {
		return err
	}

	s.cron.Start()

	go s.syncLoop()

	s.logger.Info("Scheduler started", "jobs", len(s.jobs))

	return nil
}

// Stop cancels the sync loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) syncLoop() {
	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			err := s.Sync(s.ctx)
			if err != nil {
				s.logger.Error("Failed to sync scheduled automations", "error", err)
			}
		}
	}
}

// Sync reconciles cron entries against the store: new schedules are added,
// changed ones replaced, gone ones removed.
func (s *Scheduler) Sync(ctx context.Context) error {
	automations, err := s.store.AutomationRepository().ScheduledAutomations(ctx)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	seen := make(map[string]bool, len(automations))

	for _, automation := range automations {
		seen[automation.ID] = true

		existing, ok := s.jobs[automation.ID]
		if ok && existing.schedule == automation.Schedule {
			continue
		}

		if ok {
			s.cron.Remove(existing.entryID)
		}

		automation := automation

		entryID, err := s.cron.AddFunc(automation.Schedule, func() {
			s.run(automation.ID)
		})
		if err != nil {
			s.logger.Error("Invalid schedule, skipping automation",
				"automation_id", automation.ID,
				"schedule", automation.Schedule,
				"error", err,
			)

			delete(s.jobs, automation.ID)

			continue
		}

		s.jobs[automation.ID] = job{entryID: entryID, schedule: automation.Schedule}

		s.logger.Info("Scheduled automation",
			"automation_id", automation.ID,
			"schedule", automation.Schedule,
		)
	}

	for id, entry := range s.jobs {
		if seen[id] {
			continue
		}

		s.cron.Remove(entry.entryID)
		delete(s.jobs, id)

		s.logger.Info("Unscheduled automation", "automation_id", id)
	}

	return nil
}

// Jobs returns the IDs of currently scheduled automations.
func (s *Scheduler) Jobs() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}

	return ids
}

// run reloads the automation at fire time so edits between syncs still
// apply.
func (s *Scheduler) run(automationID string) {
	ctx := s.ctx

	automation, err := s.store.AutomationRepository().AutomationByID(ctx, automationID)
	if err != nil {
		s.logger.Error("Failed to load scheduled automation",
			"automation_id", automationID,
			"error", err,
		)

		return
	}

	if !automation.IsActive || automation.Schedule == "" {
		return
	}

	resolver := settings.NewResolver(s.store.SettingRepository(), automation.Owner, s.logger)

	err = resolver.Refresh(ctx)
	if err != nil {
		s.logger.Error("Failed to load settings for scheduled run",
			"automation_id", automationID,
			"error", err,
		)

		return
	}

	exec := executor.New(s.store, resolver, s.eventBus, s.tracer, s.logger)

	executionID, err := exec.Execute(ctx, automation)
	if err != nil {
		s.logger.Error("Scheduled execution failed",
			"automation_id", automationID,
			"execution_id", executionID,
			"error", err,
		)

		return
	}

	s.logger.Info("Scheduled execution finished",
		"automation_id", automationID,
		"execution_id", executionID,
	)
}

// Validate reports whether a cron expression is acceptable.
func Validate(schedule string) error {
	_, err := cron.ParseStandard(schedule)

	return err
}
