package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"blinkgate.backend/internal/domain/entities"
	domainerrors "blinkgate.backend/internal/domain/errors"
	pkgredis "blinkgate.backend/pkg/redis"
)

func newMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	pkgredis.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return mr
}

func TestMutexService_AcquireAndRelease(t *testing.T) {
	newMiniredis(t)
	m := NewMutexService()
	ran := false

	err := m.WithLock(context.Background(), "payment:ref-1", 15*time.Second, 5, 10*time.Millisecond, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestMutexService_ContentionReturnsBusy(t *testing.T) {
	newMiniredis(t)
	m := NewMutexService()

	blocker := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.WithLock(context.Background(), "payment:ref-2", 5*time.Second, 0, 0, func(ctx context.Context) error {
			<-blocker
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	err := m.WithLock(context.Background(), "payment:ref-2", 5*time.Second, 1, 10*time.Millisecond, func(ctx context.Context) error {
		return nil
	})
	require.ErrorIs(t, err, domainerrors.ErrContention)

	close(blocker)
	require.NoError(t, <-done)
}

func TestIdempotencyCache_SetAndGet(t *testing.T) {
	newMiniredis(t)
	c := NewIdempotencyCache()

	type body struct{ Sum int }
	require.NoError(t, c.SetIdempotent(context.Background(), "ref-1", body{Sum: 3}, time.Hour))

	var out body
	found, err := c.GetIdempotent(context.Background(), "ref-1", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 3, out.Sum)

	var miss body
	found, err = c.GetIdempotent(context.Background(), "missing", &miss)
	require.NoError(t, err)
	require.False(t, found)
}

func TestOfferCache_GetOrFetch(t *testing.T) {
	newMiniredis(t)
	c := NewOfferCache()
	calls := 0

	fetch := func() (interface{}, error) {
		calls++
		return map[string]string{"slug": "sum"}, nil
	}

	var first map[string]string
	require.NoError(t, c.GetOrFetch(context.Background(), "sum", &first, fetch))

	var second map[string]string
	require.NoError(t, c.GetOrFetch(context.Background(), "sum", &second, fetch))

	require.Equal(t, 1, calls, "second lookup should be a cache hit")
	require.Equal(t, "sum", second["slug"])

	require.NoError(t, c.Invalidate(context.Background(), "sum"))
	var third map[string]string
	require.NoError(t, c.GetOrFetch(context.Background(), "sum", &third, fetch))
	require.Equal(t, 2, calls, "lookup after invalidate should re-fetch")
}

func TestChallengeStore_PutGetMarkUsed(t *testing.T) {
	newMiniredis(t)
	s := NewChallengeStore()

	ch := &entities.Challenge{Wallet: "w1", OfferID: "o1", OfferSlug: "sum", Nonce: "n1", Timestamp: time.Now()}
	require.NoError(t, s.Put(context.Background(), ch))

	got, err := s.Get(context.Background(), "n1")
	require.NoError(t, err)
	require.Equal(t, "w1", got.Wallet)

	require.NoError(t, s.MarkUsed(context.Background(), "n1"))
	err = s.MarkUsed(context.Background(), "n1")
	require.ErrorIs(t, err, domainerrors.ErrChallengeReplayed)
}

func TestChallengeStore_GetMissing(t *testing.T) {
	newMiniredis(t)
	s := NewChallengeStore()

	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, domainerrors.ErrChallengeInvalid)
}

func TestRateLimitCounter_AllowsThenBlocks(t *testing.T) {
	newMiniredis(t)
	c := NewRateLimitCounter()

	for i := 0; i < 10; i++ {
		res := c.Check(context.Background(), "charge", "w1", 10, time.Hour)
		require.True(t, res.Allowed)
	}

	res := c.Check(context.Background(), "charge", "w1", 10, time.Hour)
	require.False(t, res.Allowed)
	require.Equal(t, 0, res.Remaining)
}
