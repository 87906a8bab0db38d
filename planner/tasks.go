package planner

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// periodicTask runs a function periodically with an optional initial delay.
// A zero interval runs the function once.
type periodicTask struct {
	name         string
	initialDelay time.Duration
	interval     time.Duration
	runFunc      func()
}

// run executes the task until ctx is cancelled or stopChan is closed.
func (pt *periodicTask) run(ctx context.Context, stopChan <-chan struct{}, logger *zap.Logger) {
	logger = logger.With(zap.String("task", pt.name))

	if pt.initialDelay > 0 {
		logger.Debug("Waiting for initial delay", zap.Duration("delay", pt.initialDelay))
		timer := time.NewTimer(pt.initialDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			logger.Debug("Stopped during initial delay due to context cancellation")
			return
		case <-stopChan:
			logger.Debug("Stopped during initial delay due to stop signal")
			return
		}
	}
	pt.runFunc()

	if pt.interval <= 0 {
		return
	}

	ticker := time.NewTicker(pt.interval)
	defer ticker.Stop()

	logger.Info("Task started", zap.Duration("interval", pt.interval))

	for {
		select {
		case <-ticker.C:
			pt.runFunc()
		case <-ctx.Done():
			logger.Debug("Stopped due to context cancellation")
			return
		case <-stopChan:
			logger.Debug("Stopped due to stop signal")
			return
		}
	}
}
