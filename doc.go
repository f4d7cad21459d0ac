// Package lordn uploads LORDN (List of Registered Domain Names) reports to the
// TMCH MarksDB authority.
//
// Typical flow for one TLD and phase:
//  1. Producers enqueue one CSV line per domain event using a storage-specific Queue.
//  2. A Pipeline leases every pending line for the TLD, assembles a single sorted,
//     deduplicated report and uploads it with a Client.
//  3. After an accepted upload the leased lines are deleted and a delayed
//     verification task carrying the MarksDB Location is handed to a Scheduler.
//
// Upload and deletion are not atomic. A failed deletion only causes the same lines
// to appear again in a later report, which MarksDB accepts; a line is never dropped.
//
// For the MySQL implementation (SKIP LOCKED leasing), see the mysql package. The
// pebble package provides an embedded single-node store and memory an in-process one.
package lordn
