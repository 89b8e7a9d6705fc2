package service

import (
	"context"
	"time"

	"github.com/GoPolymarket/solvergate/internal/pkg/logger"
)

type Cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupJob prunes rows older than Retention from one table.
type CleanupJob struct {
	Name      string
	Target    Cleaner
	Retention time.Duration
}

// RunCleanup runs every job once per interval until ctx is done.
func RunCleanup(ctx context.Context, interval time.Duration, jobs []CleanupJob) {
	if interval <= 0 || len(jobs) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCleanupOnce(ctx, jobs)
		}
	}
}

func runCleanupOnce(ctx context.Context, jobs []CleanupJob) {
	for _, job := range jobs {
		if job.Target == nil || job.Retention <= 0 {
			continue
		}
		n, err := job.Target.Cleanup(ctx, job.Retention)
		if err != nil {
			logger.LogError(ctx, err, "cleanup failed", "job", job.Name)
			continue
		}
		if n > 0 {
			logger.Info("cleanup removed rows", "job", job.Name, "rows", n)
		}
	}
}
