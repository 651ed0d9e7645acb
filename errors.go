package pstreams

// Error is the sticky last-error code a Stream carries. It mirrors the
// original P_ERRORCODE enum; Getmsg, Putmsg and EsMsgPut fail whenever
// the stream's last error is non-zero until the caller clears it.
type Error int

const (
	// NoError indicates no outstanding error.
	NoError Error = iota
	// OutOfMemory is set when any pool is empty when asked.
	OutOfMemory
	// ReadBufferTooSmall is set when a Getmsg caller's buffer cannot
	// hold the dequeued message; the message is restored to the head
	// of the read queue.
	ReadBufferTooSmall
	// Busy is set when a non-HIPRI Putmsg finds the app write queue
	// full.
	Busy
	// SocketError is set by device modules when a host socket
	// operation fails.
	SocketError
	// ProtocolError is available to protocol and device modules, via
	// RecordError, for a malformed frame. modules/saw does not set it:
	// it drops frames shorter than its header.
	ProtocolError
	// GeneralError covers invariant violations and anything else not
	// covered above.
	GeneralError
)

// RecordError sets the stream's sticky last-error code. It exists so
// device modules in other packages (devices.UDP, devices.TCP) can
// surface a host socket failure the same way the core package does
// internally, without reaching into Stream's unexported fields.
func (s *Stream) RecordError(e Error) {
	s.lastError = e
}

func (e Error) Error() string {
	switch e {
	case NoError:
		return "pstreams: no error"
	case OutOfMemory:
		return "pstreams: out of memory"
	case ReadBufferTooSmall:
		return "pstreams: read buffer too small"
	case Busy:
		return "pstreams: busy"
	case SocketError:
		return "pstreams: socket error"
	case ProtocolError:
		return "pstreams: protocol error"
	case GeneralError:
		return "pstreams: general error"
	default:
		return "pstreams: unknown error"
	}
}
