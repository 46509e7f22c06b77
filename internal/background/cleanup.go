package background

import (
	"context"
	"log/slog"
	"time"
)

// Task removes expired rows or entries older than its cutoff and reports
// how many were removed
type Task struct {
	Name string
	Run  func(ctx context.Context, now time.Time) (int64, error)
}

// CleanupManager periodically purges expired windows, old login events,
// expired reputation blocks and old logs
type CleanupManager struct {
	tasks    []Task
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(tasks []Task, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		tasks:    tasks,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce runs every task. A failing task does not stop the others.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	now := cm.now()
	for _, task := range cm.tasks {
		taskCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		removed, err := task.Run(taskCtx, now)
		cancel()

		if err != nil {
			cm.logger.Error("cleanup task failed", slog.String("task", task.Name), slog.Any("error", err))
			continue
		}
		if removed > 0 {
			cm.logger.Info("cleanup task completed", slog.String("task", task.Name), slog.Int64("removed", removed))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}

// OlderThan adapts a delete-before-cutoff function into a task with a fixed retention
func OlderThan(name string, retention time.Duration, purge func(ctx context.Context, cutoff time.Time) (int64, error)) Task {
	return Task{
		Name: name,
		Run: func(ctx context.Context, now time.Time) (int64, error) {
			return purge(ctx, now.Add(-retention))
		},
	}
}
