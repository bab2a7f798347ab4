package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	domainRepos "blinkgate.backend/internal/domain/repositories"
	"blinkgate.backend/pkg/logger"
)

// RunExpiryJob sweeps pending runs past their expires_at and marks them
// failed, so a payer who never completes the X-Payment handshake doesn't
// leave a run pending forever.
type RunExpiryJob struct {
	repo     domainRepos.RunRepository
	interval time.Duration
	batch    int
	stop     chan struct{}
}

func NewRunExpiryJob(repo domainRepos.RunRepository) *RunExpiryJob {
	return &RunExpiryJob{
		repo:     repo,
		interval: 30 * time.Second,
		batch:    100,
		stop:     make(chan struct{}),
	}
}

func (j *RunExpiryJob) Start(ctx context.Context) {
	logger.Info(ctx, "starting run expiry job")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "run expiry job stopped: context cancelled")
			return
		case <-j.stop:
			logger.Info(ctx, "run expiry job stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *RunExpiryJob) Stop() {
	close(j.stop)
}

func (j *RunExpiryJob) sweep(ctx context.Context) {
	expired, err := j.repo.GetExpiredPending(ctx, j.batch)
	if err != nil {
		logger.Error(ctx, "run expiry sweep: failed to list expired runs", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		return
	}

	expiredCount := 0
	for _, run := range expired {
		id := run.ID.String()
		if err := j.repo.ExpireRun(ctx, id); err != nil {
			logger.Error(ctx, "run expiry sweep: failed to expire run",
				zap.String("run_id", id), zap.Error(err))
			continue
		}
		expiredCount++
	}

	logger.Info(ctx, "run expiry sweep complete",
		zap.Int("candidates", len(expired)), zap.Int("expired", expiredCount))
}
