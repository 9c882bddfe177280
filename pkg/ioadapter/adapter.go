// Package ioadapter provides the synchronous byte interface the XMODEM
// engine is built on: Get reads exactly n bytes or reports none, Put
// writes exactly the given bytes or reports none. Both treat timeout
// and I/O error uniformly as a failed, retryable outcome — the engine
// never sees a distinction between "timed out" and "socket reset".
package ioadapter

import "time"

// Adapter is the abstraction pkg/xmodem uses exclusively for stream
// access. Implementations must never panic and must never return a
// short read/write as success.
type Adapter interface {
	// Get returns exactly n bytes, or (nil, false) on timeout, short
	// read, or any I/O error.
	Get(n int, timeout time.Duration) ([]byte, bool)
	// Put writes data and returns (len(data), true) on success, or
	// (0, false) on timeout or any I/O error.
	Put(data []byte, timeout time.Duration) (int, bool)
}
