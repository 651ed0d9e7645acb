package devices

import (
	"errors"
	"net"
	"time"

	"code.hybscloud.com/iox"
	"github.com/thomag/pstreams"
)

// tcpState mirrors TCPDEVSTATE: a TCP device module progresses through a
// small state machine gating which control codes are accepted.
type tcpState int

const (
	tcpInit tcpState = iota
	tcpBound
	tcpConnected
)

// tcpArea is the per-device state shared between a TCP module's write
// and read queues, mirroring the original TCPDEVAREA shared via q_ptr.
type tcpArea struct {
	conn     net.Conn
	listener net.Listener
	state    tcpState
	laddr    string
	raddr    string
}

// TCP is a pushable/bottom-of-stack module wrapping a TCP connection.
// Like UDP, its read side cannot spontaneously wake the cooperative
// scheduler, so the host must call Poll periodically to move inbound
// bytes into the stream.
type TCP struct {
	area    *tcpArea
	readBuf []byte
}

// NewTCP builds a TCP device module. Unlike UDP, the underlying socket
// is not opened at qopen time: the original tcpdev_open immediately
// calls socket(), but a Go net.Conn has no meaningful existence before
// either Dial or a listener Accept, so this port defers creation to the
// first BIND/CONNECT control message and simply records tcpInit at
// open.
func NewTCP() (*TCP, *pstreams.ModuleTab) {
	t := &TCP{area: &tcpArea{}, readBuf: make([]byte, 1792)}

	wrInfo := &pstreams.ModuleInfo{IDNum: 1, IDName: "TCPDEV WR", MaxPSZ: 100, HiWat: 1024, LoWat: 256}
	rdInfo := &pstreams.ModuleInfo{IDNum: 1, IDName: "TCPDEV_RD", MaxPSZ: 100, HiWat: 1024, LoWat: 256}

	open := func(q *pstreams.Queue) error {
		if q.Peer != nil && q.Peer.Private != nil {
			q.Private = q.Peer.Private
			return nil
		}
		t.area.state = tcpInit
		q.Private = t.area
		return nil
	}

	wput := func(q *pstreams.Queue, msg *pstreams.MsgB) error {
		switch msg.Type {
		case pstreams.MData:
			return t.wputData(q, msg)
		default:
			return t.wputCtl(q, msg)
		}
	}

	wsrv := func(q *pstreams.Queue) error {
		msg := pstreams.Getq(q)
		if msg == nil {
			return nil
		}
		return t.wputData(q, msg)
	}

	closeFn := func(q *pstreams.Queue) error {
		if t.area.conn != nil {
			_ = t.area.conn.Close()
			t.area.conn = nil
		}
		if t.area.listener != nil {
			_ = t.area.listener.Close()
			t.area.listener = nil
		}
		t.area.state = tcpInit
		if q.Peer != nil {
			q.Peer.Private = nil
		}
		q.Private = nil
		return nil
	}

	return t, &pstreams.ModuleTab{
		WrInit: &pstreams.QueueInit{Info: wrInfo, Open: open, Put: wput, Srv: wsrv},
		RdInit: &pstreams.QueueInit{Info: rdInfo, Open: open, Close: closeFn},
	}
}

// wputData sends msg's payload over the connected socket. A multi-block
// message is collapsed with Msgpullup first, since a single send() call
// needs a contiguous buffer. Unlike UDP, a partial write is not a
// dropped message: the original tcpdev_wput_data consumes exactly the
// bytes sent and requeues the remainder at the head of the write queue
// for the next service pass, which this port reproduces via Putbq.
func (t *TCP) wputData(q *pstreams.Queue, msg *pstreams.MsgB) error {
	s := q.Stream()
	if msg.Cont != nil {
		pulled, err := pstreams.Msgpullup(s, msg, -1)
		if err != nil {
			pstreams.Putq(q, msg)
			return nil
		}
		pstreams.Freemsg(s, msg)
		msg = pulled
	}

	if t.area.conn == nil || t.area.state != tcpConnected {
		pstreams.Freemsg(s, msg)
		return nil
	}

	payload := msg.Payload()
	n, err := writeWithBackoff(t.area.conn, payload)
	if err != nil {
		// Per the original's documented policy, a send failure drops
		// the message rather than retrying it.
		q.Stream().RecordError(pstreams.SocketError)
		q.Stream().Log(q, pstreams.LTError, "tcp write: %v", err)
		pstreams.Freemsg(s, msg)
		return pstreams.SocketError
	}

	pstreams.Msgconsume(msg, n)
	if pstreams.Msgsize(msg) > 0 {
		pstreams.Putbq(q, msg)
		return nil
	}
	pstreams.Freemsg(s, msg)
	return nil
}

// wputCtl parses a one-byte function code followed by a UTF-8 payload
// per the device control code table. BIND is accepted only from
// tcpInit; CONNECT is accepted only once a remote address is known
// (it does not check the current state).
func (t *TCP) wputCtl(q *pstreams.Queue, msg *pstreams.MsgB) error {
	s := q.Stream()
	buf := make([]byte, pstreams.Msgsize(msg))
	n := pstreams.Msgread(buf, msg)
	pstreams.Freemsg(s, msg)
	if n < 1 {
		return nil
	}

	code := pstreams.CtlCode(buf[0])
	payload := string(buf[1:n])

	switch code {
	case pstreams.CtlTCPLAddr:
		t.area.laddr = payload
	case pstreams.CtlTCPRAddr:
		t.area.raddr = payload
	case pstreams.CtlTCPBind:
		if t.area.state != tcpInit {
			return nil
		}
		ln, err := net.Listen("tcp", t.area.laddr)
		if err != nil {
			q.Stream().RecordError(pstreams.SocketError)
			q.Stream().Log(q, pstreams.LTError, "tcp bind: Listen(%q) failed: %v", t.area.laddr, err)
			return pstreams.SocketError
		}
		t.area.listener = ln
		t.area.state = tcpBound
	case pstreams.CtlTCPConnect:
		if t.area.raddr == "" {
			return nil
		}
		conn, err := net.Dial("tcp", t.area.raddr)
		if err != nil {
			q.Stream().RecordError(pstreams.SocketError)
			q.Stream().Log(q, pstreams.LTError, "tcp connect: Dial(%q) failed: %v", t.area.raddr, err)
			return pstreams.SocketError
		}
		t.area.conn = conn
		t.area.state = tcpConnected
	case pstreams.CtlTCPDisconnect:
		if t.area.conn != nil {
			_ = t.area.conn.Close()
			t.area.conn = nil
		}
		t.area.state = tcpBound
	case pstreams.CtlTCPClose:
		if t.area.conn != nil {
			_ = t.area.conn.Close()
			t.area.conn = nil
		}
		if t.area.listener != nil {
			_ = t.area.listener.Close()
			t.area.listener = nil
		}
		t.area.state = tcpInit
	}
	return nil
}

// Accept blocks until a peer connects to the bound listener and adopts
// the resulting connection as this device's data socket, moving state
// from tcpBound to tcpConnected. It is the host's responsibility to
// call this after a BIND control message, the Go analogue of the
// original's blocking accept() once listening begins.
func (t *TCP) Accept() error {
	if t.area.listener == nil {
		return pstreams.GeneralError
	}
	conn, err := t.area.listener.Accept()
	if err != nil {
		return pstreams.SocketError
	}
	t.area.conn = conn
	t.area.state = tcpConnected
	return nil
}

// Poll performs one non-blocking read attempt on the connected socket
// and, if bytes arrived, pushes them upstream via Putnext on rq. It
// returns nil when there was nothing to read, mirroring tcpdev_rsrvp's
// select()-gated read-service loop.
func (t *TCP) Poll(rq *pstreams.Queue) error {
	if t.area.conn == nil || t.area.state != tcpConnected {
		return nil
	}
	s := rq.Stream()

	_ = t.area.conn.SetReadDeadline(time.Now())
	n, err := t.area.conn.Read(t.readBuf)
	if err := readDeadlineNonBlocking(err); err != nil {
		if errors.Is(err, iox.ErrWouldBlock) {
			return nil
		}
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		rq.Stream().RecordError(pstreams.SocketError)
		rq.Stream().Log(rq, pstreams.LTError, "tcp poll: read failed: %v", err)
		return pstreams.SocketError
	}
	if n == 0 {
		return nil
	}

	msg, err := pstreams.Allocb(s, n, 0)
	if err != nil {
		return nil
	}
	pstreams.Msgwrite(msg, t.readBuf[:n])

	if !pstreams.Canput(rq.Next) {
		pstreams.Putq(rq, msg)
		return nil
	}
	return pstreams.Putnext(rq.Next, msg)
}
