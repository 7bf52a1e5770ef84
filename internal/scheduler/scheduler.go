package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/insurai/compliance-engine/internal/config"
)

// ErrTaskNotFound is returned by RunNow for an unregistered task name
var ErrTaskNotFound = errors.New("task not found")

// TaskHandler is the work run on a schedule
type TaskHandler interface {
	Execute(ctx context.Context) error
	Name() string
}

// TaskRecorder receives execution metrics
type TaskRecorder interface {
	RecordTask(task string, duration time.Duration, err error)
}

// ScheduledTask is a registered task and its run history
type ScheduledTask struct {
	Name       string    `json:"name"`
	Schedule   string    `json:"schedule"`
	LastRun    time.Time `json:"last_run"`
	NextRun    time.Time `json:"next_run"`
	RunCount   int64     `json:"run_count"`
	ErrorCount int64     `json:"error_count"`
	LastError  string    `json:"last_error,omitempty"`

	handler TaskHandler
	entryID cron.EntryID
}

// Scheduler runs registered tasks on cron schedules with second precision
type Scheduler struct {
	logger   *zap.Logger
	cron     *cron.Cron
	recorder TaskRecorder
	tasks    map[string]*ScheduledTask
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
}

// NewScheduler creates a scheduler in the configured timezone
func NewScheduler(cfg config.SchedulerConfig, logger *zap.Logger, recorder TaskRecorder) (*Scheduler, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", tz, err)
	}

	return &Scheduler{
		logger:   logger.Named("scheduler"),
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(location)),
		recorder: recorder,
		tasks:    make(map[string]*ScheduledTask),
	}, nil
}

// AddTask registers a handler under a cron schedule
func (s *Scheduler) AddTask(schedule string, handler TaskHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := handler.Name()
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %s already registered", name)
	}

	task := &ScheduledTask{Name: name, Schedule: schedule, handler: handler}
	entryID, err := s.cron.AddFunc(schedule, func() { s.execute(task) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for task %s: %w", schedule, name, err)
	}
	task.entryID = entryID
	s.tasks[name] = task

	s.logger.Info("Task scheduled", zap.String("task", name), zap.String("schedule", schedule))
	return nil
}

// Start begins firing scheduled tasks. Task contexts derive from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.running = true

	s.logger.Info("Scheduler started", zap.Int("tasks", len(s.tasks)))
	return nil
}

// Stop halts the cron loop and waits for running tasks to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunNow executes a registered task immediately
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	task, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return s.run(ctx, task)
}

// Tasks returns a snapshot of registered tasks sorted by name
func (s *Scheduler) Tasks() []ScheduledTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ScheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		snapshot := *t
		if entry := s.cron.Entry(t.entryID); entry.Valid() {
			snapshot.NextRun = entry.Next
		}
		out = append(out, snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) execute(task *ScheduledTask) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}
	_ = s.run(ctx, task)
}

func (s *Scheduler) run(ctx context.Context, task *ScheduledTask) (err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}

		duration := time.Since(start)
		s.mu.Lock()
		task.LastRun = start
		task.RunCount++
		if err != nil {
			task.ErrorCount++
			task.LastError = err.Error()
		} else {
			task.LastError = ""
		}
		s.mu.Unlock()

		if s.recorder != nil {
			s.recorder.RecordTask(task.Name, duration, err)
		}

		if err != nil {
			s.logger.Error("Task failed",
				zap.String("task", task.Name),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			return
		}
		s.logger.Info("Task completed",
			zap.String("task", task.Name),
			zap.Duration("duration", duration),
		)
	}()

	return task.handler.Execute(ctx)
}
