package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/repository"
	"github.com/josh-kwaku/grey-ledger/internal/testutil"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return NewStore(repository.NewIdempotencyRepository(db), db, Options{TTL: time.Hour, Lease: 30 * time.Second})
}

func TestReserve_FirstSightingThenReplay(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	user := uuid.New()

	res, err := s.Reserve(ctx, "key-1", &user, "hash-a")
	require.NoError(t, err)
	assert.True(t, res.IsNew)
	assert.NotEqual(t, uuid.Nil, res.ID)

	require.NoError(t, s.Complete(ctx, "key-1", res.ID, Response{StatusCode: 201, Body: []byte(`{"id":"t-1"}`)}))

	replay, err := s.Reserve(ctx, "key-1", &user, "hash-a")
	require.NoError(t, err)
	assert.False(t, replay.IsNew)
	require.NotNil(t, replay.Cached)
	assert.Equal(t, 201, replay.Cached.StatusCode)
	assert.Equal(t, `{"id":"t-1"}`, string(replay.Cached.Body))
}

func TestReserve_Conflicts(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	owner := uuid.New()
	other := uuid.New()

	_, err := s.Reserve(ctx, "key-2", &owner, "hash-a")
	require.NoError(t, err)

	_, err = s.Reserve(ctx, "key-2", &owner, "hash-a")
	require.ErrorIs(t, err, domain.ErrRequestInFlight)

	_, err = s.Reserve(ctx, "key-2", &owner, "hash-b")
	require.ErrorIs(t, err, domain.ErrDuplicateRequest)

	_, err = s.Reserve(ctx, "key-2", &other, "hash-a")
	require.ErrorIs(t, err, domain.ErrDuplicateRequest)

	_, err = s.Reserve(ctx, "key-2", nil, "hash-a")
	require.ErrorIs(t, err, domain.ErrDuplicateRequest)
}

func TestReserve_Expiry(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	user := uuid.New()

	first, err := s.Reserve(ctx, "key-3", &user, "hash-a")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "key-3", first.ID, Response{StatusCode: 201, Body: []byte(`{}`)}))

	base := time.Now().UTC()
	s.now = func() time.Time { return base.Add(2 * time.Hour) }

	_, err = s.Reserve(ctx, "key-3", &user, "hash-b")
	require.ErrorIs(t, err, domain.ErrDuplicateRequest, "an expired key must not silently accept a different payload")

	res, err := s.Reserve(ctx, "key-3", &user, "hash-a")
	require.NoError(t, err)
	assert.True(t, res.IsNew)
}

func TestReserve_AbandonedLeaseIsTakenOver(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, "key-4", nil, "hash-a")
	require.NoError(t, err)

	base := time.Now().UTC()
	s.now = func() time.Time { return base.Add(time.Minute) }

	res, err := s.Reserve(ctx, "key-4", nil, "hash-a")
	require.NoError(t, err)
	assert.True(t, res.IsNew)
}

func TestReserve_DeadlineEndsBeforeLease(t *testing.T) {
	s := setupStore(t)
	base := time.Now().UTC()
	s.now = func() time.Time { return base }

	res, err := s.Reserve(context.Background(), "key-8", nil, "hash-a")
	require.NoError(t, err)
	assert.True(t, res.Deadline.After(base))
	assert.True(t, res.Deadline.Before(base.Add(30*time.Second)), "holder must be cut off before the key can be taken over")
}

func TestTakeover_StaleHolderCannotCompleteOrRelease(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	user := uuid.New()

	stale, err := s.Reserve(ctx, "key-9", &user, "hash-a")
	require.NoError(t, err)

	base := time.Now().UTC()
	s.now = func() time.Time { return base.Add(time.Minute) }

	current, err := s.Reserve(ctx, "key-9", &user, "hash-a")
	require.NoError(t, err)
	require.True(t, current.IsNew)
	require.NotEqual(t, stale.ID, current.ID)

	// The outlived holder finishes late: neither its result nor its
	// release may touch the new reservation.
	err = s.Complete(ctx, "key-9", stale.ID, Response{StatusCode: 201, Body: []byte(`{"from":"stale"}`)})
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.NoError(t, s.Release(ctx, "key-9", stale.ID))

	_, err = s.Reserve(ctx, "key-9", &user, "hash-a")
	require.ErrorIs(t, err, domain.ErrRequestInFlight)

	require.NoError(t, s.Complete(ctx, "key-9", current.ID, Response{StatusCode: 201, Body: []byte(`{"from":"current"}`)}))
	replay, err := s.Reserve(ctx, "key-9", &user, "hash-a")
	require.NoError(t, err)
	require.NotNil(t, replay.Cached)
	assert.Equal(t, `{"from":"current"}`, string(replay.Cached.Body))
}

func TestRelease_AllowsRetry(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	held, err := s.Reserve(ctx, "key-5", nil, "hash-a")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "key-5", held.ID))

	res, err := s.Reserve(ctx, "key-5", nil, "hash-a")
	require.NoError(t, err)
	assert.True(t, res.IsNew)
}

func TestReserve_ConcurrentSameKey(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	user := uuid.New()

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	fresh := make(chan bool, callers)

	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Reserve(ctx, "key-6", &user, "hash-a")
			results <- err
			if err == nil {
				fresh <- res.IsNew
			}
		}()
	}
	wg.Wait()
	close(results)
	close(fresh)

	var newCount, inFlight int
	for isNew := range fresh {
		if isNew {
			newCount++
		}
	}
	for err := range results {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrRequestInFlight)
			inFlight++
		}
	}

	assert.Equal(t, 1, newCount, "exactly one caller may execute")
	assert.Equal(t, callers-1, inFlight)
}

func TestPurge(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, "key-7", nil, "hash-a")
	require.NoError(t, err)

	base := time.Now().UTC()
	s.now = func() time.Time { return base.Add(3 * time.Hour) }

	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestReserve_EmptyKey(t *testing.T) {
	s := NewStore(nil, nil, Options{})
	_, err := s.Reserve(context.Background(), "", nil, "hash")
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}
