package pstreams

// QFlag is the bit-flag state of a Queue, mirroring the original P_QFLAG
// enum.
type QFlag uint16

const (
	QReset QFlag = 0
	QEnab  QFlag = 1 << 0
	QWantR QFlag = 1 << 1
	QWantW QFlag = 1 << 2
	QFull  QFlag = 1 << 3
	QReadR QFlag = 1 << 4
	QNoEnb QFlag = 1 << 6
)

// Queue is one direction of one module: a message FIFO, flow-control
// watermarks, and the peer/next linkage that lets the scheduler and the
// module-authoring contract navigate the stream.
type Queue struct {
	Init *QueueInit
	Info *ModuleInfo

	head, tail *MsgB // intrusive FIFO via MsgB.qnext
	ByteCount  int
	msgCount   int

	Flags QFlag
	HiWat uint16
	LoWat uint16

	Next     *Queue // next queue downstream (read chain: next upstream)
	Peer     *Queue // same-module counterpart
	Enabled  bool
	LTFilter LTCode

	Private any // module-private state (q_ptr)

	stream *Stream
}

// IsReadSide reports whether q is the read-side queue of its module.
func (q *Queue) IsReadSide() bool { return q.Flags&QReadR != 0 }

// RD returns the read-side queue of q's module.
func (q *Queue) RD() *Queue {
	if q.IsReadSide() {
		return q
	}
	return q.Peer
}

// WR returns the write-side queue of q's module.
func (q *Queue) WR() *Queue {
	return q.RD().Peer
}

// Stream returns the Stream q belongs to, giving module authors access
// to the allocation primitives (Allocb, Freemsg, ...) that require it.
func (q *Queue) Stream() *Stream { return q.stream }

// Len returns the queue's message count (not bytes), i.e. Qsize().
func (q *Queue) Len() int { return q.msgCount }

// byteCountInvariant recomputes, for tests, the invariant
// byteCount(Q) = Σ Msgsize(m) for m in Q.fifo.
func (q *Queue) byteCountInvariant() int {
	total := 0
	for m := q.head; m != nil; m = m.qnext {
		total += Msgsize(m)
	}
	return total
}

// putq appends msg to q's FIFO, updates the byte counter, and applies
// flow-control flag transitions: FULL is set once ByteCount reaches
// HiWat, and the queue is marked enabled if a reader had set WANTR
// (unless NOENB suppresses auto-enable).
func Putq(q *Queue, msg *MsgB) {
	msg.qnext = nil
	if q.tail == nil {
		q.head, q.tail = msg, msg
	} else {
		q.tail.qnext = msg
		q.tail = msg
	}
	q.msgCount++
	q.ByteCount += Msgsize(msg)

	if q.ByteCount >= int(q.HiWat) && q.HiWat > 0 {
		q.Flags |= QFull
	}
	if q.Flags&QWantR != 0 && q.Flags&QNoEnb == 0 {
		q.Flags &^= QWantR
		q.Enabled = true
	}
}

// putbq head-inserts msg, restoring a message a module dequeued but
// could not forward. Flag logic mirrors putq.
func Putbq(q *Queue, msg *MsgB) {
	msg.qnext = q.head
	if q.head == nil {
		q.tail = msg
	}
	q.head = msg
	q.msgCount++
	q.ByteCount += Msgsize(msg)

	if q.ByteCount >= int(q.HiWat) && q.HiWat > 0 {
		q.Flags |= QFull
	}
	if q.Flags&QWantR != 0 && q.Flags&QNoEnb == 0 {
		q.Flags &^= QWantR
		q.Enabled = true
	}
}

// getq removes and returns the oldest message on q, or nil if empty.
// Dropping below HiWat clears FULL; reaching empty sets WANTR so the
// upstream neighbor knows to re-enable this queue once it has more to
// give.
func Getq(q *Queue) *MsgB {
	msg := q.head
	if msg == nil {
		return nil
	}
	q.head = msg.qnext
	if q.head == nil {
		q.tail = nil
	}
	msg.qnext = nil
	q.msgCount--
	q.ByteCount -= Msgsize(msg)

	if q.ByteCount < int(q.HiWat) {
		q.Flags &^= QFull
	}
	if q.msgCount == 0 {
		q.Flags |= QWantR
	}
	return msg
}

// canput reports whether q can currently accept another message. A nil
// queue can never accept. Dropping below LoWat clears FULL as a side
// effect, matching the original's eager watermark recovery.
func Canput(q *Queue) bool {
	if q == nil {
		return false
	}
	if q.ByteCount < int(q.LoWat) {
		q.Flags &^= QFull
	}
	return q.Flags&QFull == 0
}

// putnext invokes q's put procedure directly; the message is delivered
// before putnext returns (no intermediate buffering).
func Putnext(q *Queue, msg *MsgB) error {
	if q == nil || q.Init == nil || q.Init.Put == nil {
		return GeneralError
	}
	return q.Init.Put(q, msg)
}

// putctl allocates a zero-length message of the given control type and
// enqueues it on q via putq.
func Putctl(q *Queue, mtype MType) error {
	msg, err := allocb(q.stream, 0, 0)
	if err != nil {
		return err
	}
	msg.Type = mtype
	Putq(q, msg)
	return nil
}

// qsize returns q's message count, matching pstreams_qsize.
func Qsize(q *Queue) int { return q.Len() }
