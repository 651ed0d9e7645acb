package saw

import "time"

// SystemClock is a convenience pstreams.Clock backed by the host's
// monotonic clock, in milliseconds since process start. It is not
// wired in by default — callers pass it to New explicitly — since
// spec.md §1 treats timekeeping as an external dependency the core
// framework never owns.
func SystemClock() uint32 {
	return uint32(time.Since(processStart).Milliseconds())
}

var processStart = time.Now()
