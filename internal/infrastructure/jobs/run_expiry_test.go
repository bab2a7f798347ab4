package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"blinkgate.backend/internal/domain/entities"
)

type runExpiryRepoStub struct {
	expired   []*entities.Run
	getErr    error
	expireErr error
	expireIDs []string
}

func (s *runExpiryRepoStub) CreateRun(context.Context, string, string, map[string]interface{}) (*entities.Run, error) {
	return nil, nil
}
func (s *runExpiryRepoStub) GetByReference(context.Context, string) (*entities.Run, error) {
	return nil, nil
}
func (s *runExpiryRepoStub) GetBySignature(context.Context, string) (*entities.Run, error) {
	return nil, nil
}
func (s *runExpiryRepoStub) UpdateRunPaymentAtomic(context.Context, string, string, string) (*entities.Run, error) {
	return nil, nil
}
func (s *runExpiryRepoStub) MarkExecuted(context.Context, string, int64, map[string]interface{}) (*entities.Run, error) {
	return nil, nil
}
func (s *runExpiryRepoStub) MarkFailed(context.Context, string) error { return nil }

func (s *runExpiryRepoStub) GetExpiredPending(_ context.Context, _ int) ([]*entities.Run, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.expired, nil
}

func (s *runExpiryRepoStub) ExpireRun(_ context.Context, id string) error {
	s.expireIDs = append(s.expireIDs, id)
	return s.expireErr
}

func newTestJob(repo *runExpiryRepoStub) *RunExpiryJob {
	return &RunExpiryJob{repo: repo, interval: time.Millisecond, batch: 100, stop: make(chan struct{})}
}

func TestRunExpiryJob_Sweep_NoItems(t *testing.T) {
	repo := &runExpiryRepoStub{}
	job := newTestJob(repo)

	job.sweep(context.Background())
	require.Empty(t, repo.expireIDs)
}

func TestRunExpiryJob_Sweep_ExpiresEach(t *testing.T) {
	id1, id2 := mustRun(t), mustRun(t)
	repo := &runExpiryRepoStub{expired: []*entities.Run{id1, id2}}
	job := newTestJob(repo)

	job.sweep(context.Background())
	require.Len(t, repo.expireIDs, 2)
}

func TestRunExpiryJob_Sweep_GetError(t *testing.T) {
	repo := &runExpiryRepoStub{getErr: errors.New("db down")}
	job := newTestJob(repo)

	job.sweep(context.Background())
	require.Empty(t, repo.expireIDs)
}

func TestRunExpiryJob_Sweep_ExpireErrorContinues(t *testing.T) {
	id1, id2 := mustRun(t), mustRun(t)
	repo := &runExpiryRepoStub{expired: []*entities.Run{id1, id2}, expireErr: errors.New("update failed")}
	job := newTestJob(repo)

	job.sweep(context.Background())
	require.Len(t, repo.expireIDs, 2)
}

func TestRunExpiryJob_StartStop_StopsByContext(t *testing.T) {
	job := newTestJob(&runExpiryRepoStub{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("job did not stop on context cancel")
	}
}

func TestRunExpiryJob_StartStop_StopsByStopChannel(t *testing.T) {
	job := newTestJob(&runExpiryRepoStub{})

	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()
	job.Stop()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("job did not stop on Stop()")
	}
}

func mustRun(t *testing.T) *entities.Run {
	t.Helper()
	return &entities.Run{}
}
