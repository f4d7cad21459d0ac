// Package memory provides process-local implementations of the LORDN queue
// and verify task scheduler. They are safe for concurrent use and lose their
// contents on exit, which makes them suited to tests and dry runs.
package memory
