// Package saw is a worked example of the module-authoring contract: a
// stop-and-wait protocol module that prefixes every data message with a
// 2-byte {seqNo, ackNo} header, waits for the peer's ack before sending
// the next one, and retransmits a bounded number of times on timeout.
// It deliberately does not piggyback acks onto data frames beyond the
// header it already sends, and it never multiplexes more than one
// outstanding message at a time.
package saw

import "github.com/thomag/pstreams"

// idNum is the module identity shared by both queue directions,
// matching the original module's mi_idnum.
const idNum = 10

// Config holds the per-module timer and retry parameters a SAW area is
// built with. Time values are in whatever unit the injected Clock
// counts; the module itself treats them as opaque ticks.
type Config struct {
	// MaxRetxCount is the number of retransmits allowed for a single
	// unacked message before the module gives up on it.
	MaxRetxCount int
	// AckWaitTimeout is how long the write side waits for an ack
	// before considering a retransmit.
	AckWaitTimeout uint32
	// SendAckTimeout delays an otherwise-immediate ack by this many
	// clock ticks. Zero means send the ack on the very next write-side
	// service pass rather than holding it for piggybacking.
	SendAckTimeout uint32
}

// DefaultConfig mirrors the original sample module's constants.
func DefaultConfig() Config {
	return Config{MaxRetxCount: 1, AckWaitTimeout: 2000, SendAckTimeout: 0}
}

// area is the per-module state shared by a SAW module's write and read
// queues (saw_open assigns q_ptr from the peer when one side opens
// after the other, exactly as pstreams' other shared-state modules do).
type area struct {
	seqNo, ackNo uint8

	ackWaitTimer uint32
	currentRetx  int
	pending      *pstreams.MsgB // the unacked message in flight, for retransmit

	sendAckTimer uint32
	ackDue       bool

	cfg   Config
	clock pstreams.Clock
}

// New builds the SAW module's ModuleTab. clock supplies the monotonic
// tick count the write-side service procedure compares its timers
// against; cfg sets the retry/timeout budget.
func New(clock pstreams.Clock, cfg Config) *pstreams.ModuleTab {
	wrInfo := &pstreams.ModuleInfo{IDNum: idNum, IDName: "SAW WR", MaxPSZ: 128, HiWat: 64, LoWat: 32}
	rdInfo := &pstreams.ModuleInfo{IDNum: idNum, IDName: "SAW RD", MaxPSZ: 128, HiWat: 1024, LoWat: 256}

	open := func(q *pstreams.Queue) error {
		if q.Peer != nil && q.Peer.Private != nil {
			q.Private = q.Peer.Private
			return nil
		}
		q.Private = &area{cfg: cfg, clock: clock}
		return nil
	}

	closeFn := func(q *pstreams.Queue) error {
		if a, ok := q.Private.(*area); ok && a != nil && a.pending != nil {
			pstreams.Freemsg(q.Stream(), a.pending)
			a.pending = nil
		}
		for {
			msg := pstreams.Getq(q)
			if msg == nil {
				break
			}
			pstreams.Freemsg(q.Stream(), msg)
		}
		if q.Peer != nil {
			q.Peer.Private = nil
		}
		q.Private = nil
		return nil
	}

	return &pstreams.ModuleTab{
		WrInit: &pstreams.QueueInit{Info: wrInfo, Put: wput, Srv: wsrv, Open: open, Close: closeFn},
		RdInit: &pstreams.QueueInit{Info: rdInfo, Put: rput, Srv: rsrv, Open: open, Close: closeFn},
	}
}

// alwaysMine is SAW's control-message discriminator: it claims every
// PROTO/CTL/IOCTL/DELIM block, so Ctlexpress hands each one back to
// wput, which forwards it downstream together with its data.
func alwaysMine(*pstreams.MsgB) bool { return true }

// wput separates any control blocks from the data payload via
// Ctlexpress. A claimed control chain (even a zero-length one, which is
// what Putmsg submits when both ctl and data are empty) is relinked to its data and forwarded immediately,
// bypassing the stop-and-wait state machine entirely — SAW has no
// control codes of its own, so anything arriving as a control block is
// by definition meant for a module further down the stack. Pure data
// messages are queued for the write-side service procedure to pace.
func wput(q *pstreams.Queue, msg *pstreams.MsgB) error {
	data, ctl := pstreams.Ctlexpress(q, msg, alwaysMine)
	if ctl != nil {
		return pstreams.Putnext(q.Next, pstreams.Linkb(ctl, data))
	}
	if data != nil {
		pstreams.Putq(q, data)
	}
	return nil
}

// getHeader allocates a 2-byte message carrying a's current
// {seqNo, ackNo}, typed as DATA since the header is part of the data
// stream, not a framework control message.
func getHeader(q *pstreams.Queue, a *area) (*pstreams.MsgB, error) {
	hdr, err := pstreams.Allocb(q.Stream(), 2, 0)
	if err != nil {
		return nil, err
	}
	hdr.Type = pstreams.MData
	pstreams.Msgwrite(hdr, []byte{a.seqNo, a.ackNo})
	return hdr, nil
}

// wsrv is the write-side service procedure: spec.md §4.9's four-step
// transmit/retransmit/ack-piggyback algorithm.
func wsrv(q *pstreams.Queue) error {
	a := q.Private.(*area)
	now := a.clock()

	var msg *pstreams.MsgB
	transmitNow := false

	if a.ackWaitTimer == 0 {
		if m := pstreams.Getq(q); m != nil {
			msg, transmitNow = m, true
		}
	} else if now > a.ackWaitTimer {
		if a.currentRetx < a.cfg.MaxRetxCount {
			msg, transmitNow = a.pending, true
			a.currentRetx++
		} else {
			// Retry budget exhausted: give up on this message and
			// let the stream idle until the peer resyncs (a fresh
			// seqNo==0/ackNo==0 frame) or the application sends more.
			if a.pending != nil {
				pstreams.Freemsg(q.Stream(), a.pending)
				a.pending = nil
			}
			a.ackWaitTimer = 0
			a.currentRetx = 0
		}
	}

	if transmitNow && msg != nil {
		if !pstreams.Canput(q.Next) {
			pstreams.Putbq(q, msg)
			return nil
		}
		hdr, err := getHeader(q, a)
		if err != nil {
			pstreams.Putbq(q, msg)
			return err
		}
		// Send a duplicate so msg stays intact in a.pending for a
		// retransmit after the device below frees what it was handed.
		out, err := pstreams.Dupmsg(q.Stream(), msg)
		if err != nil {
			pstreams.Freemsg(q.Stream(), hdr)
			pstreams.Putbq(q, msg)
			return err
		}
		hdr.Cont = out
		if err := pstreams.Putnext(q.Next, hdr); err != nil {
			return err
		}
		a.pending = msg
		a.sendAckTimer = 0
		a.ackDue = false
		a.ackWaitTimer = now + a.cfg.AckWaitTimeout
	}

	if a.ackDue && (a.cfg.SendAckTimeout == 0 || now > a.sendAckTimer) {
		if pstreams.Canput(q.Next) {
			hdr, err := getHeader(q, a)
			if err != nil {
				return err
			}
			if err := pstreams.Putnext(q.Next, hdr); err != nil {
				return err
			}
			a.sendAckTimer = 0
			a.ackDue = false
		}
	}
	return nil
}

// rput is the read-side put procedure: spec.md §4.9's five-step
// receive/resync/advance algorithm.
func rput(q *pstreams.Queue, msg *pstreams.MsgB) error {
	a := q.Private.(*area)
	s := q.Stream()

	if pstreams.Msgsize(msg) < 2 {
		pstreams.Freemsg(s, msg)
		return nil
	}
	var hdr [2]byte
	pstreams.Msgread(hdr[:], msg)
	pstreams.Msgconsume(msg, 2)
	remoteSeq, remoteAck := hdr[0], hdr[1]

	if remoteSeq == 0 || remoteAck == 0 {
		a.ackNo = remoteSeq
	}

	if a.ackWaitTimer > 0 && remoteAck == uint8(int(a.seqNo)%255+1) {
		a.seqNo = remoteAck
		a.ackWaitTimer = 0
		a.currentRetx = 0
		if a.pending != nil {
			pstreams.Freemsg(s, a.pending)
			a.pending = nil
		}
	}

	if remoteSeq == a.ackNo {
		a.ackNo = uint8(int(a.ackNo)%255 + 1)
		a.sendAckTimer = a.clock() + a.cfg.SendAckTimeout
		a.ackDue = true
		if pstreams.Msgsize(msg) > 0 {
			pstreams.Putq(q, msg)
		} else {
			pstreams.Freemsg(s, msg)
		}
		return nil
	}

	pstreams.Freemsg(s, msg)
	return nil
}

// rsrv drains the read queue upstream under flow control, restoring
// whatever it could not forward to the head of its own queue.
func rsrv(q *pstreams.Queue) error {
	for {
		msg := pstreams.Getq(q)
		if msg == nil {
			return nil
		}
		if !pstreams.Canput(q.Next) {
			pstreams.Putbq(q, msg)
			return nil
		}
		if err := pstreams.Putnext(q.Next, msg); err != nil {
			return err
		}
	}
}
