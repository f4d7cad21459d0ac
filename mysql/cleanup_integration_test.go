//go:build integration

package mysql_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velmie/lordn"
	"github.com/velmie/lordn/mysql"
)

func TestTaskCleanupIntegration(t *testing.T) {
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

	now := time.Now().UTC().Truncate(time.Microsecond)
	clock := &manualClock{now: now.Add(-3 * time.Hour)}
	tasks, err := mysql.NewTaskStore(db, mysql.WithClock(clock))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, tasks.Schedule(ctx, lordn.VerifyTask("https://marksdb.test/1", "run", "example", 0)))
	}
	claimed, err := tasks.ClaimDue(ctx, lordn.VerifyQueue, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	clock.now = now
	maintainer, err := mysql.NewCleanupMaintainer(db, mysql.CleanupMaintainerConfig{
		Retention: time.Hour,
		Clock:     clock,
	})
	require.NoError(t, err)

	res, err := maintainer.Ensure(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, res.Tasks)
	require.Equal(t, 1, countTasks(t, ctx, db))
}

func TestTaskCleanupLockHeldIntegration(t *testing.T) {
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

	maintainer, err := mysql.NewCleanupMaintainer(db, mysql.CleanupMaintainerConfig{Retention: time.Hour})
	require.NoError(t, err)

	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	var got sql.NullInt64
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", "lordn:cleanup:lordn_tasks").Scan(&got))
	require.EqualValues(t, 1, got.Int64)

	res, err := maintainer.Ensure(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Tasks)
}

func countTasks(t *testing.T, ctx context.Context, db *sql.DB) int {
	t.Helper()
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lordn_tasks").Scan(&count)
	require.NoError(t, err)
	return count
}
