// Package mysql provides a MySQL 8.0+ LORDN queue and verify task table.
//
// Leasing uses:
//   - READ COMMITTED isolation (to avoid gap locks)
//   - SELECT ... FOR UPDATE SKIP LOCKED, so concurrent runs never lease the same row
//   - ORDER BY id ASC (UUID v7 time ordering)
//   - an UPDATE of lease_id and lease_until in the same transaction
//
// A row stays hidden until lease_until and is deleted only by the holder of its
// current lease_id. See Schema and TaskSchema for the tables, and
// CleanupMaintainer for removing dispatched tasks.
package mysql
