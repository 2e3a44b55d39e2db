// Package scheduler runs active configurations on their cron schedules.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deal-sourcing/internal/config"
	"github.com/sells-group/deal-sourcing/internal/model"
)

// cronParser accepts standard 5-field expressions (minute, hour, dom, month, dow)
// plus descriptors like @daily.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether expr is a usable cron expression.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return eris.Wrapf(err, "scheduler: invalid cron expression %q", expr)
	}
	return nil
}

// Store is the persistence the scheduler needs.
type Store interface {
	ListConfigurations(ctx context.Context, activeOnly bool) ([]model.AgentConfiguration, error)
}

// Dispatcher runs a configuration.
type Dispatcher interface {
	RunConfiguration(ctx context.Context, configID string, trigger model.TriggerType) (*model.Workflow, error)
}

// Scheduler registers one cron entry per active, validly scheduled
// configuration.
type Scheduler struct {
	cron       *cron.Cron
	store      Store
	dispatcher Dispatcher

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
}

// New creates a Scheduler in the configured timezone (UTC when unset).
func New(st Store, d Dispatcher, cfg config.SchedulerConfig) (*Scheduler, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, eris.Wrapf(err, "scheduler: load timezone %q", cfg.Timezone)
		}
		loc = l
	}

	logger := cronLogger{zap.L().Named("cron").Sugar()}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithParser(cronParser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &Scheduler{
		cron:       c,
		store:      st,
		dispatcher: d,
		ctx:        context.Background(),
		entries:    make(map[string]cron.EntryID),
	}, nil
}

// Start registers the active configurations and starts the cron loop. ctx
// is passed to scheduled runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if _, err := s.Reload(ctx); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Reload replaces all entries with the current set of active
// configurations and returns how many were registered. Invalid schedules
// are logged and skipped.
func (s *Scheduler) Reload(ctx context.Context) (int, error) {
	configs, err := s.store.ListConfigurations(ctx, true)
	if err != nil {
		return 0, eris.Wrap(err, "scheduler: list configurations")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.entries {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}

	for _, cfg := range configs {
		if cfg.Schedule == "" {
			continue
		}
		log := zap.L().With(zap.String("configuration_id", cfg.ID), zap.String("schedule", cfg.Schedule))
		sched, err := cronParser.Parse(cfg.Schedule)
		if err != nil {
			log.Warn("skipping configuration with invalid schedule", zap.Error(err))
			continue
		}
		s.entries[cfg.ID] = s.cron.Schedule(sched, s.job(cfg.ID, cfg.Name))
		log.Info("configuration scheduled", zap.String("name", cfg.Name))
	}
	return len(s.entries), nil
}

func (s *Scheduler) job(configID, name string) cron.Job {
	return cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		log := zap.L().With(zap.String("configuration_id", configID), zap.String("name", name))
		log.Info("scheduled run starting")
		wf, err := s.dispatcher.RunConfiguration(ctx, configID, model.TriggerScheduled)
		if err != nil {
			log.Error("scheduled run failed", zap.Error(err))
			return
		}
		log.Info("scheduled run finished", zap.String("workflow_id", wf.ID), zap.String("status", string(wf.Status)))
	})
}

// Next returns the next run time per scheduled configuration id.
func (s *Scheduler) Next() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(s.entries))
	for id, entry := range s.entries {
		out[id] = s.cron.Entry(entry).Next
	}
	return out
}

// Stop halts the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
