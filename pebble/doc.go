// Package pebblestore provides a LORDN lease queue and verify task store on an
// embedded Pebble database, for single-node deployments without MySQL.
//
// Key layout:
//
//	r\x00<queue>\x00<tag>\x00<id>   queued record, ordered by UUID v7 id
//	i\x00<id>                        record key index used by Delete
//	t\x00<queue>\x00<run_at><id>     pending task, ordered by due time
//	d\x00<dispatched_at><id>         dispatched task awaiting Purge
//
// Timestamps in keys are big-endian Unix nanoseconds. A store-wide mutex
// serializes read-modify-write sequences, so a Store must be the only writer
// of its directory.
package pebblestore
