package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/quill/internal/auth"
)

// SessionCleaner removes expired sessions and blacklist entries
type SessionCleaner interface {
	CleanupExpired(ctx context.Context) (auth.CleanupResult, error)
}

// Pruner deletes rows recorded before cutoff
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PrunerFunc adapts a function to Pruner
type PrunerFunc func(ctx context.Context, cutoff time.Time) (int64, error)

func (f PrunerFunc) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return f(ctx, cutoff)
}

// Retention prunes a history table past a fixed age
type Retention struct {
	Name   string
	MaxAge time.Duration
	Pruner Pruner
}

// CleanupManager periodically purges expired credentials and old history rows
type CleanupManager struct {
	sessions   SessionCleaner
	retentions []Retention
	logger     *slog.Logger
	interval   time.Duration
	timeout    time.Duration
	now        func() time.Time
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sessions SessionCleaner,
	logger *slog.Logger,
	interval time.Duration,
	retentions ...Retention,
) *CleanupManager {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupManager{
		sessions:   sessions,
		retentions: retentions,
		logger:     logger,
		interval:   interval,
		timeout:    30 * time.Second,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the periodic cleanup task. It blocks until Stop is called or
// ctx is cancelled.
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

// RunOnce performs a single cleanup pass. Failures are logged and do not
// stop the remaining steps.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()

	result, err := cm.sessions.CleanupExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup expired sessions", slog.Any("error", err))
	} else if result.Sessions > 0 || result.Blacklisted > 0 {
		cm.logger.Info("expired session cleanup completed",
			slog.Int64("sessions_deleted", result.Sessions),
			slog.Int64("blacklist_deleted", result.Blacklisted))
	}

	now := cm.now()
	for _, r := range cm.retentions {
		if r.Pruner == nil || r.MaxAge <= 0 {
			continue
		}
		n, err := r.Pruner.DeleteOlderThan(cleanupCtx, now.Add(-r.MaxAge))
		if err != nil {
			cm.logger.Error("failed to prune history", slog.String("table", r.Name), slog.Any("error", err))
			continue
		}
		if n > 0 {
			cm.logger.Info("history pruned", slog.String("table", r.Name), slog.Int64("rows_deleted", n))
		}
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
