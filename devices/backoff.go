package devices

import (
	"errors"
	"net"
	"time"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"
)

// readDeadlineNonBlocking translates the error from a caller's
// immediate-deadline read: a timeout (Go's non-blocking-read idiom) or
// a closed connection becomes iox.ErrWouldBlock, the same sentinel the teacher's BoundedPool uses
// to mean "nothing available right now, caller decides whether to
// wait". Device Poll methods check for this error rather than
// re-deriving the net.Error-timeout test themselves.
func readDeadlineNonBlocking(err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return iox.ErrWouldBlock
	}
	if errors.Is(err, net.ErrClosed) {
		return iox.ErrWouldBlock
	}
	return err
}

// writeWithBackoff attempts a deadline-bounded write; if the peer's
// receive window is momentarily full (surfaced as a write timeout) it
// retries a few times with spin.Wait.Once before escalating to
// iox.Backoff's adaptive wait, and finally falls back to one
// unbounded blocking write. This mirrors the teacher's BoundedPool.Put:
// tight retries for contention that is expected to clear almost
// immediately, adaptive backoff for contention that won't.
func writeWithBackoff(conn net.Conn, payload []byte) (int, error) {
	var sw spin.Wait
	var aw iox.Backoff
	written := 0
	for attempt := 0; attempt < 8; attempt++ {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Millisecond))
		n, err := conn.Write(payload[written:])
		written += n
		if err == nil {
			return written, nil
		}
		var ne net.Error
		if !errors.As(err, &ne) || !ne.Timeout() {
			return written, err
		}
		if attempt < 2 {
			sw.Once()
			continue
		}
		aw.Wait()
	}
	_ = conn.SetWriteDeadline(time.Time{})
	n, err := conn.Write(payload[written:])
	return written + n, err
}

// writeToWithBackoff is writeWithBackoff's net.PacketConn counterpart,
// used by the UDP device's write side.
func writeToWithBackoff(conn net.PacketConn, payload []byte, addr net.Addr) (int, error) {
	var sw spin.Wait
	var aw iox.Backoff
	for attempt := 0; attempt < 8; attempt++ {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Millisecond))
		n, err := conn.WriteTo(payload, addr)
		if err == nil {
			return n, nil
		}
		var ne net.Error
		if !errors.As(err, &ne) || !ne.Timeout() {
			return n, err
		}
		if attempt < 2 {
			sw.Once()
			continue
		}
		aw.Wait()
	}
	_ = conn.SetWriteDeadline(time.Time{})
	return conn.WriteTo(payload, addr)
}
