package devices

import (
	"errors"
	"net"
	"time"

	"code.hybscloud.com/iox"
	"github.com/thomag/pstreams"
)

// udpArea is the per-device state shared between a UDP module's write
// and read queues, mirroring the original UDPDEVAREA shared via q_ptr.
type udpArea struct {
	conn  net.PacketConn
	raddr net.Addr
}

// UDP is a pushable/bottom-of-stack module wrapping a UDP socket. Unlike
// the write side (driven by the scheduler's put/srv procedures), the
// read side cannot spontaneously wake the cooperative scheduler, so the
// host must call Poll periodically — the Go analogue of the original's
// select()-with-zero-timeout read-service procedure.
type UDP struct {
	area    *udpArea
	readBuf []byte
}

// NewUDP builds a UDP device module. The returned *UDP's Poll method
// must be called by the host alongside Stream.CallSrvp to move inbound
// datagrams into the stream. The socket is opened eagerly at qopen on
// an ephemeral local port; a LADDR control message reopens it on the
// given local address, and nothing is sent until a RADDR control
// message sets the remote address.
func NewUDP() (*UDP, *pstreams.ModuleTab) {
	u := &UDP{area: &udpArea{}, readBuf: make([]byte, 1792)}

	wrInfo := &pstreams.ModuleInfo{IDNum: 1, IDName: "UDPDEV_WR", MaxPSZ: 1792, HiWat: 1024, LoWat: 256}
	rdInfo := &pstreams.ModuleInfo{IDNum: 1, IDName: "UDPDEV_RD", MaxPSZ: 1792, HiWat: 1024, LoWat: 256}

	open := func(q *pstreams.Queue) error {
		if q.Peer != nil && q.Peer.Private != nil {
			q.Private = q.Peer.Private
			return nil
		}
		conn, err := net.ListenPacket("udp", ":0")
		if err != nil {
			q.Stream().RecordError(pstreams.SocketError)
			q.Stream().Log(q, pstreams.LTError, "udp open: ListenPacket failed: %v", err)
			return pstreams.SocketError
		}
		u.area.conn = conn
		q.Private = u.area
		return nil
	}

	wput := func(q *pstreams.Queue, msg *pstreams.MsgB) error {
		switch msg.Type {
		case pstreams.MData:
			return u.wputData(q, msg)
		default:
			return u.wputCtl(q, msg)
		}
	}

	closeFn := func(q *pstreams.Queue) error {
		if u.area.conn != nil {
			_ = u.area.conn.Close()
			u.area.conn = nil
		}
		if q.Peer != nil {
			q.Peer.Private = nil
		}
		q.Private = nil
		return nil
	}

	return u, &pstreams.ModuleTab{
		WrInit: &pstreams.QueueInit{Info: wrInfo, Open: open, Put: wput},
		RdInit: &pstreams.QueueInit{Info: rdInfo, Open: open, Close: closeFn},
	}
}

// wputData sends msg's payload as a single datagram to the configured
// remote address. A multi-block message is collapsed with Msgpullup
// first, as UDP has no notion of a partial/retryable write the way a
// stream socket does. Per the original's documented policy, a send
// failure drops the message rather than retrying it.
func (u *UDP) wputData(q *pstreams.Queue, msg *pstreams.MsgB) error {
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

	payload := msg.Payload()
	if u.area.conn == nil || u.area.raddr == nil {
		pstreams.Freemsg(s, msg)
		return nil
	}

	n, err := writeToWithBackoff(u.area.conn, payload, u.area.raddr)
	if err != nil {
		q.Stream().RecordError(pstreams.SocketError)
		q.Stream().Log(q, pstreams.LTError, "udp write: %v", err)
		pstreams.Freemsg(s, msg)
		return pstreams.SocketError
	}

	pstreams.Msgconsume(msg, n)
	pstreams.Freemsg(s, msg)
	return nil
}

// wputCtl parses a one-byte function code followed by a UTF-8
// "host:port" payload for RADDR/LADDR, per the device control code
// table; SHAREFADDR is logged and otherwise a no-op, matching its
// placeholder status in this port.
func (u *UDP) wputCtl(q *pstreams.Queue, msg *pstreams.MsgB) error {
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
	case pstreams.CtlUDPRAddr:
		addr, err := net.ResolveUDPAddr("udp", payload)
		if err != nil {
			return nil
		}
		u.area.raddr = addr
	case pstreams.CtlUDPLAddr:
		if u.area.conn != nil {
			_ = u.area.conn.Close()
		}
		conn, err := net.ListenPacket("udp", payload)
		if err != nil {
			q.Stream().RecordError(pstreams.SocketError)
			q.Stream().Log(q, pstreams.LTError, "udp LADDR: ListenPacket(%q) failed: %v", payload, err)
			return pstreams.SocketError
		}
		u.area.conn = conn
	case pstreams.CtlUDPShareFAddr:
		// placeholder: address/fd sharing across streams is not
		// supported in this port.
		q.Stream().Log(q, pstreams.LTWarning, "udp SHAREFADDR: not supported, ignored")
	}
	return nil
}

// Poll performs one non-blocking read attempt on the underlying socket
// and, if a datagram arrived, pushes it upstream via Putnext on rq
// (rq's read queue). It returns nil when there was nothing to read.
// Callers drive this alongside Stream.CallSrvp since nothing else wakes
// the stream for inbound UDP traffic.
func (u *UDP) Poll(rq *pstreams.Queue) error {
	if u.area.conn == nil {
		return nil
	}
	s := rq.Stream()

	_ = u.area.conn.SetReadDeadline(time.Now())
	n, _, err := u.area.conn.ReadFrom(u.readBuf)
	if err := readDeadlineNonBlocking(err); err != nil {
		if errors.Is(err, iox.ErrWouldBlock) {
			return nil
		}
		rq.Stream().RecordError(pstreams.SocketError)
		rq.Stream().Log(rq, pstreams.LTError, "udp poll: read failed: %v", err)
		return pstreams.SocketError
	}
	if n == 0 {
		return nil
	}

	msg, err := pstreams.Allocb(s, n, 0)
	if err != nil {
		return nil
	}
	pstreams.Msgwrite(msg, u.readBuf[:n])

	if !pstreams.Canput(rq.Next) {
		pstreams.Putq(rq, msg)
		return nil
	}
	return pstreams.Putnext(rq.Next, msg)
}
