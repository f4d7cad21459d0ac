//go:build integration

package mysql_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/velmie/lordn"
	"github.com/velmie/lordn/mysql"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func leaseOpts(limit int) lordn.LeaseOptions {
	return lordn.LeaseOptions{Queue: lordn.QueueClaims, Tag: "example", Limit: limit, Period: time.Hour}
}

func TestStoreEnqueueLeaseDeleteIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := mysql.NewStore(db)
	require.NoError(t, err)
	insertEntries(t, ctx, db, store, "example", "c", "a", "b")
	insertEntries(t, ctx, db, store, "other", "z")

	batch1, err := store.Lease(ctx, leaseOpts(2))
	require.NoError(t, err)
	require.Equal(t, 2, batch1.Len())
	require.Equal(t, []byte("c"), batch1.Records[0].Payload)

	batch2, err := store.Lease(ctx, leaseOpts(10))
	require.NoError(t, err)
	require.Equal(t, 1, batch2.Len())

	empty, err := store.Lease(ctx, leaseOpts(10))
	require.NoError(t, err)
	require.Zero(t, empty.Len())

	require.NoError(t, store.Delete(ctx, append(batch1.Handles(), batch2.Handles()...)))
	count, err := store.PendingCount(ctx, lordn.QueueClaims, "example")
	require.NoError(t, err)
	require.Zero(t, count)

	count, err = store.PendingCount(ctx, lordn.QueueClaims, "other")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestStoreLeaseExpiryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	clock := &manualClock{now: time.Now().UTC().Truncate(time.Microsecond)}
	store, err := mysql.NewStore(db, mysql.WithClock(clock))
	require.NoError(t, err)
	insertEntries(t, ctx, db, store, "example", "a")

	first, err := store.Lease(ctx, leaseOpts(10))
	require.NoError(t, err)
	require.Equal(t, 1, first.Len())

	hidden, err := store.Lease(ctx, leaseOpts(10))
	require.NoError(t, err)
	require.Zero(t, hidden.Len())

	clock.now = clock.now.Add(time.Hour + time.Second)
	second, err := store.Lease(ctx, leaseOpts(10))
	require.NoError(t, err)
	require.Equal(t, 1, second.Len())
	require.Equal(t, first.Records[0].Handle.ID, second.Records[0].Handle.ID)
	require.NotEqual(t, first.Records[0].Handle.Lease, second.Records[0].Handle.Lease)

	// The stale lease no longer owns the row.
	require.NoError(t, store.Delete(ctx, first.Handles()))
	count, err := store.PendingCount(ctx, lordn.QueueClaims, "example")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, 2, leaseCount(t, ctx, db, first.Records[0].Handle.ID))

	require.NoError(t, store.Delete(ctx, second.Handles()))
	require.NoError(t, store.Delete(ctx, second.Handles()))
	count, err = store.PendingCount(ctx, lordn.QueueClaims, "example")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestStoreSkipLockedIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := mysql.NewStore(db)
	require.NoError(t, err)
	insertEntries(t, ctx, db, store, "example", "a", "b")

	// Hold a row lock the way a concurrent lease transaction would.
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	require.NoError(t, err)
	var locked lordn.ID
	require.NoError(t, tx.QueryRowContext(ctx, "SELECT id FROM lordn_queue ORDER BY id LIMIT 1 FOR UPDATE").Scan(&locked))

	batch, err := store.Lease(ctx, leaseOpts(10))
	require.NoError(t, err)
	require.Equal(t, 1, batch.Len())
	require.NotEqual(t, locked, batch.Records[0].Handle.ID)
	require.NoError(t, tx.Rollback())
}

func TestPipelineIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := mysql.NewStore(db)
	require.NoError(t, err)
	tasks, err := mysql.NewTaskStore(db)
	require.NoError(t, err)
	insertEntries(t, ctx, db, store, "example", "b", "a", "a")

	var uploaded string
	uploader := uploaderFunc(func(_ context.Context, _, _ string, report []byte) (string, error) {
		uploaded = string(report)

		return "https://marksdb.test/LORDN/example/claims/1", nil
	})
	pipeline := lordn.NewPipeline(store, uploader, tasks, lordn.WithVerifyDelay(time.Millisecond))

	result, err := pipeline.Run(ctx, "example", lordn.PhaseClaims)
	require.NoError(t, err)
	require.Equal(t, lordn.StateDone, result.State)
	require.Equal(t, 2, result.Distinct)
	require.Contains(t, uploaded, "\na\nb\n")

	count, err := store.PendingCount(ctx, lordn.QueueClaims, "example")
	require.NoError(t, err)
	require.Zero(t, count)

	var claimed []lordn.ScheduledTask
	require.Eventually(t, func() bool {
		claimed, err = tasks.ClaimDue(ctx, lordn.VerifyQueue, 10)

		return err != nil || len(claimed) > 0
	}, 5*time.Second, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, result.CorrelationID, claimed[0].Task.Params[lordn.ParamNordnLogID])
	require.Equal(t, result.Locator, claimed[0].Task.Params[lordn.ParamNordnURL])
	require.Equal(t, lordn.VerifyAction, claimed[0].Task.Action)

	again, err := tasks.ClaimDue(ctx, lordn.VerifyQueue, 10)
	require.NoError(t, err)
	require.Empty(t, again)
}

type uploaderFunc func(ctx context.Context, tag, path string, report []byte) (string, error)

func (fn uploaderFunc) Upload(ctx context.Context, tag, path string, report []byte) (string, error) {
	return fn(ctx, tag, path, report)
}

func startMySQLContainer(t *testing.T, ctx context.Context) (testcontainers.Container, *sql.DB) {
	t.Helper()
	port := nat.Port("3306/tcp")
	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.0.36",
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret",
			"MYSQL_DATABASE":      "lordn",
		},
		WaitingFor: wait.ForSQL(port, "mysql", func(host string, port nat.Port) string {
			return fmt.Sprintf("root:secret@tcp(%s:%s)/lordn?parseTime=true", host, port.Port())
		}).WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start mysql container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, port)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve port: %v", err)
	}

	dsn := fmt.Sprintf("root:secret@tcp(%s:%s)/lordn?parseTime=true", host, mappedPort.Port())
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("open db: %v", err)
	}
	return container, db
}

func setupSchema(t *testing.T, ctx context.Context, db *sql.DB) {
	t.Helper()
	queue, err := mysql.Schema("lordn_queue")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, queue)
	require.NoError(t, err)
	tasks, err := mysql.TaskSchema("lordn_tasks")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, tasks)
	require.NoError(t, err)
}

func insertEntries(t *testing.T, ctx context.Context, db *sql.DB, store *mysql.Store, tag string, payloads ...string) {
	t.Helper()
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	for _, payload := range payloads {
		_, err := store.EnqueueTx(ctx, tx, lordn.QueueClaims, lordn.Entry{Tag: tag, Payload: []byte(payload)})
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
}

func leaseCount(t *testing.T, ctx context.Context, db *sql.DB, id lordn.ID) int {
	t.Helper()
	var count int
	err := db.QueryRowContext(ctx, "SELECT lease_count FROM lordn_queue WHERE id = ?", id).Scan(&count)
	require.NoError(t, err)
	return count
}
