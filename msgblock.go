package pstreams

// MsgB is a message block: a [rptr:wptr) window into a (possibly
// shared) DataBlock, plus a continuation link to the next block in the
// same message. qnext is a second, independent link used only while the
// block sits on a Queue's FIFO; it is never read once the block is
// dequeued, so a block can be simultaneously "in a message chain" (via
// Cont) and "on a queue" (via qnext) without the two links colliding.
type MsgB struct {
	Type MType
	Band Band

	datab      *DataBlock
	rptr, wptr int

	Cont  *MsgB
	qnext *MsgB

	selfIndex int
}

// newMsgB draws one MsgB slot from the stream's bounded message-block
// pool. The returned block's fields are all zeroed before it is
// returned.
func (s *Stream) newMsgB() (*MsgB, error) {
	slot, idx, ok := s.msgPool.Alloc()
	if !ok {
		return nil, OutOfMemory
	}
	*slot = MsgB{}
	slot.selfIndex = idx
	return slot, nil
}

// Payload returns m's own [rptr:wptr) window. It does not include any
// continuation blocks.
func (m *MsgB) Payload() []byte {
	return m.datab.Base[m.rptr:m.wptr]
}

// Msg1size returns the byte count of m's own block only.
func Msg1size(m *MsgB) int {
	if m == nil {
		return 0
	}
	return m.wptr - m.rptr
}

// Msgsize sums Msg1size across m's entire continuation chain.
func Msgsize(m *MsgB) int {
	total := 0
	for ; m != nil; m = m.Cont {
		total += Msg1size(m)
	}
	return total
}

// Unwrit1bytes returns the free write capacity remaining in m's own
// block: len(Base) - wptr. Per the resolved ambiguity over the two
// competing original definitions, this is always non-negative.
func Unwrit1bytes(m *MsgB) int {
	if m == nil {
		return 0
	}
	return len(m.datab.Base) - m.wptr
}

// Unwritbytes sums Unwrit1bytes across m's continuation chain.
func Unwritbytes(m *MsgB) int {
	total := 0
	for ; m != nil; m = m.Cont {
		total += Unwrit1bytes(m)
	}
	return total
}

// Linkb appends tail to the end of msg's continuation chain and returns
// msg.
func Linkb(msg, tail *MsgB) *MsgB {
	if msg == nil {
		return tail
	}
	t := msg
	for t.Cont != nil {
		t = t.Cont
	}
	t.Cont = tail
	return msg
}

// Unlinkb detaches msg from the front of its chain, returning what
// follows it; msg.Cont is cleared so the detached block is a standalone
// single-block message.
func Unlinkb(msg *MsgB) *MsgB {
	rest := msg.Cont
	msg.Cont = nil
	return rest
}

// Freeb drops one reference from msg's DataBlock and returns msg's own
// slot to the message-block pool. It does not touch msg.Cont; callers
// walking a chain must capture Cont before calling Freeb.
func Freeb(s *Stream, msg *MsgB) {
	s.releaseDataBlock(msg.datab)
	idx := msg.selfIndex
	*msg = MsgB{}
	s.msgPool.Release(idx)
}

// Freemsg releases every block in msg's continuation chain via Freeb.
func Freemsg(s *Stream, msg *MsgB) {
	for msg != nil {
		next := msg.Cont
		Freeb(s, msg)
		msg = next
	}
}

// Dupmsg duplicates an entire chain with Dupb, preserving structure.
// On failure partway through, the blocks already duplicated are freed
// and the error is returned.
func Dupmsg(s *Stream, msg *MsgB) (*MsgB, error) {
	var head, tail *MsgB
	for m := msg; m != nil; m = m.Cont {
		d, err := Dupb(s, m)
		if err != nil {
			if head != nil {
				Freemsg(s, head)
			}
			return nil, err
		}
		if head == nil {
			head, tail = d, d
		} else {
			tail.Cont = d
			tail = d
		}
	}
	return head, nil
}

// Dupnmsg duplicates exactly the first n bytes of msg's chain, trimming
// the last duplicated block's write pointer so the duplicate's Msgsize
// equals n exactly. n must not exceed Msgsize(msg).
func Dupnmsg(s *Stream, msg *MsgB, n int) (*MsgB, error) {
	var head, tail *MsgB
	remaining := n
	for m := msg; m != nil && remaining > 0; m = m.Cont {
		take := Msg1size(m)
		if take > remaining {
			take = remaining
		}
		d, err := Dupb(s, m)
		if err != nil {
			if head != nil {
				Freemsg(s, head)
			}
			return nil, err
		}
		d.wptr = d.rptr + take
		remaining -= take
		if head == nil {
			head, tail = d, d
		} else {
			tail.Cont = d
			tail = d
		}
	}
	return head, nil
}

// Copymsg duplicates an entire chain with Copyb, preserving structure
// and per-block type/band but never sharing storage with msg.
func Copymsg(s *Stream, msg *MsgB) (*MsgB, error) {
	var head, tail *MsgB
	for m := msg; m != nil; m = m.Cont {
		d, err := Copyb(s, m)
		if err != nil {
			if head != nil {
				Freemsg(s, head)
			}
			return nil, err
		}
		if head == nil {
			head, tail = d, d
		} else {
			tail.Cont = d
			tail = d
		}
	}
	return head, nil
}

// Msgpullup collapses the first n bytes of msg's chain (or the entire
// message when n == -1) into one freshly allocated contiguous block,
// and appends a fresh copy of whatever remains as a single continuation
// block. The original chain is left untouched; the caller owns both the
// input and the output and must free whichever it no longer needs.
// Fails with OutOfMemory if no size class fits the head portion or the
// remainder.
func Msgpullup(s *Stream, msg *MsgB, n int) (*MsgB, error) {
	total := Msgsize(msg)
	if n < 0 || n > total {
		n = total
	}

	head, err := allocb(s, n, msg.Band)
	if err != nil {
		return nil, err
	}
	head.Type = msg.Type

	copied := 0
	m := msg
	for m != nil && copied < n {
		avail := Msg1size(m)
		take := avail
		if copied+take > n {
			take = n - copied
		}
		copy(head.datab.Base[head.wptr:], m.datab.Base[m.rptr:m.rptr+take])
		head.wptr += take
		copied += take
		if take == avail {
			m = m.Cont
		} else {
			break
		}
	}

	if copied == total {
		return head, nil
	}

	// Build the remainder: a fresh copy of whatever bytes follow the
	// pulled-up prefix, collapsed into one block as well.
	restSize := total - n
	rest, err := allocb(s, restSize, msg.Band)
	if err != nil {
		Freemsg(s, head)
		return nil, err
	}

	// Re-walk to locate the split point and copy the remainder.
	offset := 0
	for cur := msg; cur != nil; cur = cur.Cont {
		sz := Msg1size(cur)
		if offset+sz <= n {
			offset += sz
			continue
		}
		start := cur.rptr
		if offset < n {
			start += n - offset
		}
		copy(rest.datab.Base[rest.wptr:], cur.datab.Base[start:cur.wptr])
		rest.wptr += cur.wptr - start
		offset += sz
	}
	rest.Type = msg.Type
	head.Cont = rest
	return head, nil
}

// Msgread copies min(len(buf), Msgsize(msg)) bytes from msg's chain
// into buf without advancing any read pointer, returning the number of
// bytes copied.
func Msgread(buf []byte, msg *MsgB) int {
	n := 0
	for m := msg; m != nil && n < len(buf); m = m.Cont {
		n += copy(buf[n:], m.Payload())
	}
	return n
}

// Msgwrite copies buf into the head block of msg, which must be the
// only block holding data; any continuation blocks must be empty on
// entry. It returns the number of bytes that could not be written
// because the head block's capacity was exhausted.
func Msgwrite(msg *MsgB, buf []byte) int {
	room := Unwrit1bytes(msg)
	n := len(buf)
	if n > room {
		n = room
	}
	copy(msg.datab.Base[msg.wptr:], buf[:n])
	msg.wptr += n
	return len(buf) - n
}

// Msgconsume advances read pointers across msg's chain by up to n
// bytes, returning how many bytes could not be consumed because the
// chain held fewer than n bytes total.
func Msgconsume(msg *MsgB, n int) int {
	for m := msg; m != nil && n > 0; m = m.Cont {
		avail := Msg1size(m)
		take := avail
		if take > n {
			take = n
		}
		m.rptr += take
		n -= take
	}
	return n
}

// Msgerase retreats write pointers from the tail of msg's chain by up
// to n bytes, returning how many bytes could not be erased because the
// chain held fewer than n bytes total.
func Msgerase(msg *MsgB, n int) int {
	blocks := make([]*MsgB, 0, 4)
	for m := msg; m != nil; m = m.Cont {
		blocks = append(blocks, m)
	}
	for i := len(blocks) - 1; i >= 0 && n > 0; i-- {
		m := blocks[i]
		avail := Msg1size(m)
		take := avail
		if take > n {
			take = n
		}
		m.wptr -= take
		n -= take
	}
	return n
}

// SiftKind names which of the two output chains a discriminator routed
// a block to, or that the block was fatal.
type SiftKind int

const (
	SiftA SiftKind = iota
	SiftB
	SiftFatal
)

// Sift unchains msg's continuation list and routes each block to chain
// A or chain B per discriminator(block), or reports fatal if the
// discriminator returns SiftFatal. msg itself is consumed; the caller
// receives the two rebuilt chains.
func Sift(msg *MsgB, discriminator func(*MsgB) SiftKind) (a, b *MsgB, err error) {
	var aHead, aTail, bHead, bTail *MsgB
	for msg != nil {
		next := msg.Cont
		msg.Cont = nil
		switch discriminator(msg) {
		case SiftA:
			if aHead == nil {
				aHead, aTail = msg, msg
			} else {
				aTail.Cont = msg
				aTail = msg
			}
		case SiftB:
			if bHead == nil {
				bHead, bTail = msg, msg
			} else {
				bTail.Cont = msg
				bTail = msg
			}
		default:
			return aHead, bHead, GeneralError
		}
		msg = next
	}
	return aHead, bHead, nil
}

// isControlType reports whether t is one of the non-DATA message types
// that Ctlexpress treats as a candidate control block.
func isControlType(t MType) bool {
	switch t {
	case MProto, MCtl, MIoctl, MDelim:
		return true
	default:
		return false
	}
}

// Ctlexpress is the specialized two-way sift used by modules' put
// procedures: DATA blocks go to the data chain;
// PROTO/CTL/IOCTL/DELIM blocks are offered to isMine, and only the ones
// it claims go to the ctl chain. Blocks isMine declines belong to some
// other protocol layer sharing the queue and are put directly
// downstream via Putnext rather than being returned.
func Ctlexpress(q *Queue, msg *MsgB, isMine func(*MsgB) bool) (data, ctl *MsgB) {
	var dataTail, ctlTail *MsgB
	for msg != nil {
		next := msg.Cont
		msg.Cont = nil
		switch {
		case !isControlType(msg.Type):
			if data == nil {
				data, dataTail = msg, msg
			} else {
				dataTail.Cont = msg
				dataTail = msg
			}
		case isMine(msg):
			if ctl == nil {
				ctl, ctlTail = msg, msg
			} else {
				ctlTail.Cont = msg
				ctlTail = msg
			}
		default:
			_ = Putnext(q.Next, msg)
		}
		msg = next
	}
	return data, ctl
}

// GarbageCollect walks (*msgp)'s continuation chain and frees any block
// whose own payload is empty, leaving *msgp pointing at the first
// surviving (non-empty) block, or nil if none survive.
func GarbageCollect(s *Stream, msgp **MsgB) {
	var head, tail *MsgB
	m := *msgp
	for m != nil {
		next := m.Cont
		m.Cont = nil
		if Msg1size(m) == 0 {
			Freeb(s, m)
		} else if head == nil {
			head, tail = m, m
		} else {
			tail.Cont = m
			tail = m
		}
		m = next
	}
	*msgp = head
}
