package redlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestLockAndUnlock(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	locker := NewLocker(client, "account:acc_123", "holder-1")
	require.NoError(t, locker.Lock(ctx, time.Minute))

	// a second holder cannot take the same key
	other := NewLocker(client, "account:acc_123", "holder-2")
	assert.Error(t, other.Lock(ctx, time.Minute))

	require.NoError(t, locker.Unlock(ctx))
	assert.NoError(t, other.Lock(ctx, time.Minute))
}

func TestUnlockOnlyByHolder(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	locker := NewLocker(client, "sched:sch_1", "holder-1")
	require.NoError(t, locker.Lock(ctx, time.Minute))

	imposter := NewLocker(client, "sched:sch_1", "holder-2")
	assert.Error(t, imposter.Unlock(ctx))
	assert.NoError(t, locker.Unlock(ctx))
}

func TestExtendLock(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	locker := NewLocker(client, "account:acc_9", "holder-1")
	require.NoError(t, locker.Lock(ctx, time.Second))
	assert.NoError(t, locker.ExtendLock(ctx, time.Minute))

	imposter := NewLocker(client, "account:acc_9", "holder-2")
	assert.Error(t, imposter.ExtendLock(ctx, time.Minute))
}

func TestWaitLockAcquiresAfterRelease(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	first := NewLocker(client, "account:acc_w", "holder-1")
	require.NoError(t, first.Lock(ctx, time.Minute))

	done := make(chan error, 1)
	second := NewLocker(client, "account:acc_w", "holder-2")
	go func() {
		done <- second.WaitLock(ctx, time.Minute, 2*time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, first.Unlock(ctx))
	assert.NoError(t, <-done)
}

func TestLockHeldElsewhere(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "account:acc_1", "holder-1")

	mock.ExpectSetNX("account:acc_1", "holder-1", 5*time.Second).SetVal(false)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.EqualError(t, err, "lock for key account:acc_1 is already held")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlockAfterExpiry(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "account:acc_1", "holder-1")

	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	mock.ExpectEval(script, []string{"account:acc_1"}, "holder-1").SetVal(int64(0))

	err := locker.Unlock(context.Background())
	assert.EqualError(t, err, "unlock failed, either lock expired or you're not the lock holder for key account:acc_1")
	assert.NoError(t, mock.ExpectationsWereMet())
}
