package mysql

import "fmt"

type queries struct {
	insert       string
	selectLease  string
	countPending string
}

func newQueries(table string) queries {
	cols := "id, queue, tag, payload, created_at"

	return queries{
		insert: fmt.Sprintf("INSERT INTO %s (id, queue, tag, payload, created_at) VALUES (?, ?, ?, ?, ?)", table),
		selectLease: fmt.Sprintf(
			"SELECT %s FROM %s WHERE queue = ? AND tag = ? AND (lease_until IS NULL OR lease_until <= ?) "+
				"ORDER BY id ASC LIMIT ? FOR UPDATE SKIP LOCKED",
			cols,
			table,
		),
		countPending: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE queue = ? AND tag = ?", table),
	}
}

type taskQueries struct {
	insert    string
	selectDue string
}

func newTaskQueries(table string) taskQueries {
	return taskQueries{
		insert: fmt.Sprintf(
			"INSERT INTO %s (id, queue, action, service, params, run_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			table,
		),
		selectDue: fmt.Sprintf(
			"SELECT id, queue, action, service, params, run_at, created_at FROM %s "+
				"WHERE queue = ? AND dispatched_at IS NULL AND run_at <= ? "+
				"ORDER BY run_at ASC, id ASC LIMIT ? FOR UPDATE SKIP LOCKED",
			table,
		),
	}
}

func buildLeaseUpdate(table string, count int) string {
	return fmt.Sprintf(
		"UPDATE %s SET lease_id = ?, lease_until = ?, lease_count = lease_count + 1 WHERE id IN (%s)",
		table,
		makePlaceholders(count),
	)
}

func buildDelete(table string, count int) string {
	return fmt.Sprintf("DELETE FROM %s WHERE lease_id = ? AND id IN (%s)", table, makePlaceholders(count))
}

func buildDispatchUpdate(table string, count int) string {
	return fmt.Sprintf("UPDATE %s SET dispatched_at = ? WHERE id IN (%s)", table, makePlaceholders(count))
}

const placeholderGrowth = 2

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}

	buf := make([]byte, 0, count*placeholderGrowth)
	for i := 0; i < count; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '?')
	}

	return string(buf)
}
