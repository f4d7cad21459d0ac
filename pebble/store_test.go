package pebblestore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velmie/lordn"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openStore(t *testing.T, opts ...Option) (*Store, *manualClock) {
	t.Helper()
	clock := &manualClock{now: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)}
	store, err := Open(t.TempDir(), append([]Option{WithClock(clock), WithNoSync()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func enqueue(t *testing.T, store *Store, tag string, payloads ...string) {
	t.Helper()
	for _, payload := range payloads {
		_, err := store.Enqueue(context.Background(), lordn.QueueClaims, lordn.Entry{Tag: tag, Payload: []byte(payload)})
		require.NoError(t, err)
	}
}

func lease(limit int) lordn.LeaseOptions {
	return lordn.LeaseOptions{Queue: lordn.QueueClaims, Tag: "example", Limit: limit, Period: time.Hour}
}

func TestStoreLeaseAndDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)
	enqueue(t, store, "example", "c", "a", "b")
	enqueue(t, store, "example2", "z")

	first, err := store.Lease(ctx, lease(2))
	require.NoError(t, err)
	require.Equal(t, 2, first.Len())
	require.Equal(t, []byte("c"), first.Records[0].Payload)
	require.Equal(t, "example", first.Records[0].Tag)

	second, err := store.Lease(ctx, lease(10))
	require.NoError(t, err)
	require.Equal(t, 1, second.Len())

	empty, err := store.Lease(ctx, lease(10))
	require.NoError(t, err)
	require.Zero(t, empty.Len())

	require.NoError(t, store.Delete(ctx, append(first.Handles(), second.Handles()...)))
	count, err := store.PendingCount(ctx, lordn.QueueClaims, "example")
	require.NoError(t, err)
	require.Zero(t, count)

	count, err = store.PendingCount(ctx, lordn.QueueClaims, "example2")
	require.NoError(t, err)
	require.Equal(t, 1, count, "tag prefix must not match a longer tag")
}

func TestStoreLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	store, clock := openStore(t)
	enqueue(t, store, "example", "a")

	first, err := store.Lease(ctx, lease(10))
	require.NoError(t, err)
	require.Equal(t, 1, first.Len())

	clock.Advance(59 * time.Minute)
	hidden, err := store.Lease(ctx, lease(10))
	require.NoError(t, err)
	require.Zero(t, hidden.Len())

	clock.Advance(time.Minute)
	second, err := store.Lease(ctx, lease(10))
	require.NoError(t, err)
	require.Equal(t, 1, second.Len())
	require.Equal(t, first.Records[0].Handle.ID, second.Records[0].Handle.ID)

	require.NoError(t, store.Delete(ctx, first.Handles()))
	count, err := store.PendingCount(ctx, lordn.QueueClaims, "example")
	require.NoError(t, err)
	require.Equal(t, 1, count, "stale lease must not delete")

	require.NoError(t, store.Delete(ctx, second.Handles()))
	require.NoError(t, store.Delete(ctx, second.Handles()))
	count, err = store.PendingCount(ctx, lordn.QueueClaims, "example")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	id, err := store.Enqueue(ctx, lordn.QueueSunrise, lordn.Entry{Tag: "example", Payload: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(dir)
	require.NoError(t, err)
	defer store.Close()
	batch, err := store.Lease(ctx, lordn.LeaseOptions{Queue: lordn.QueueSunrise, Tag: "example", Limit: 10, Period: time.Hour})
	require.NoError(t, err)
	require.Equal(t, 1, batch.Len())
	require.Equal(t, id, batch.Records[0].Handle.ID)
}

func TestStoreValidation(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)

	_, err := store.Enqueue(ctx, lordn.QueueClaims, lordn.Entry{Tag: "bad\x00tag", Payload: []byte("x")})
	require.ErrorIs(t, err, ErrInvalidKeyPart)
	_, err = store.Enqueue(ctx, lordn.QueueClaims, lordn.Entry{Tag: "example"})
	require.ErrorIs(t, err, lordn.ErrPayloadRequired)
	_, err = store.Lease(ctx, lordn.LeaseOptions{Queue: lordn.QueueClaims, Tag: "example", Limit: 1})
	require.ErrorIs(t, err, lordn.ErrInvalidLeasePeriod)

	id := lordn.ID{0x01}
	_, err = store.Enqueue(ctx, lordn.QueueClaims, lordn.Entry{ID: id, Tag: "example", Payload: []byte("x")})
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, lordn.QueueClaims, lordn.Entry{ID: id, Tag: "example", Payload: []byte("y")})
	require.Error(t, err)

	_, err = Open("")
	require.ErrorIs(t, err, ErrDirRequired)
}

func TestStoreScheduleClaimPurge(t *testing.T) {
	ctx := context.Background()
	store, clock := openStore(t)

	require.NoError(t, store.Schedule(ctx, lordn.VerifyTask("https://marksdb.test/2", "run-2", "example", 2*time.Minute)))
	require.NoError(t, store.Schedule(ctx, lordn.VerifyTask("https://marksdb.test/1", "run-1", "example", time.Minute)))
	require.NoError(t, store.Schedule(ctx, lordn.Task{Queue: "other", Action: "/x"}))

	due, err := store.ClaimDue(ctx, lordn.VerifyQueue, 10)
	require.NoError(t, err)
	require.Empty(t, due)

	clock.Advance(time.Minute)
	due, err = store.ClaimDue(ctx, lordn.VerifyQueue, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "run-1", due[0].Task.Params[lordn.ParamNordnLogID])
	require.Equal(t, time.Minute, due[0].Task.Delay)
	require.Equal(t, lordn.VerifyAction, due[0].Task.Action)

	clock.Advance(time.Hour)
	due, err = store.ClaimDue(ctx, lordn.VerifyQueue, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "run-2", due[0].Task.Params[lordn.ParamNordnLogID])

	removed, err := store.Purge(ctx, clock.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, removed, "only the task dispatched an hour ago is old enough")

	_, err = store.ClaimDue(ctx, lordn.VerifyQueue, 0)
	require.ErrorIs(t, err, ErrClaimLimitInvalid)
}

func TestStoreConcurrentLeasesAreDisjoint(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)
	for i := 0; i < 100; i++ {
		enqueue(t, store, "example", fmt.Sprintf("roid-%03d", i))
	}

	var (
		mu   sync.Mutex
		seen = make(map[lordn.ID]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := store.Lease(ctx, lease(9))
				if err != nil || batch.Len() == 0 {
					return
				}
				mu.Lock()
				for _, record := range batch.Records {
					seen[record.Handle.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, 100)
	for _, n := range seen {
		require.Equal(t, 1, n)
	}
}

func TestUpperBound(t *testing.T) {
	require.Equal(t, []byte{'r', 0x01}, upperBound([]byte{'r', 0x00}))
	require.Equal(t, []byte{'b'}, upperBound([]byte{'a', 0xff}))
	require.Nil(t, upperBound([]byte{0xff, 0xff}))
}

func TestPipelineWithPebbleStore(t *testing.T) {
	ctx := context.Background()
	store, clock := openStore(t)
	enqueue(t, store, "example", "b", "a", "a")

	var uploaded []byte
	uploader := uploaderFunc(func(_ context.Context, _, _ string, report []byte) (string, error) {
		uploaded = report
		return "https://marksdb.test/LORDN/example/sunrise/9", nil
	})
	enqueueSunrise := func(payload string) {
		_, err := store.Enqueue(ctx, lordn.QueueSunrise, lordn.Entry{Tag: "example", Payload: []byte(payload)})
		require.NoError(t, err)
	}
	enqueueSunrise("s1")

	pipeline := lordn.NewPipeline(store, uploader, store, lordn.WithClock(clock))
	result, err := pipeline.Run(ctx, "example", lordn.PhaseSunrise)
	require.NoError(t, err)
	require.Equal(t, lordn.StateDone, result.State)
	require.Equal(t, 1, result.Distinct)
	require.Contains(t, string(uploaded), "\ns1\n")

	claims, err := store.PendingCount(ctx, lordn.QueueClaims, "example")
	require.NoError(t, err)
	require.Equal(t, 3, claims, "claims queue is untouched by a sunrise run")

	clock.Advance(lordn.DefaultVerifyDelay)
	due, err := store.ClaimDue(ctx, lordn.VerifyQueue, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, result.Locator, due[0].Task.Params[lordn.ParamNordnURL])
	require.Equal(t, result.CorrelationID, due[0].Task.Params[lordn.ParamNordnLogID])
}

type uploaderFunc func(ctx context.Context, tag, path string, report []byte) (string, error)

func (fn uploaderFunc) Upload(ctx context.Context, tag, path string, report []byte) (string, error) {
	return fn(ctx, tag, path, report)
}
