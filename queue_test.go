package pstreams

import "testing"

func newTestQueue(hiwat, lowat uint16) *Queue {
	return &Queue{HiWat: hiwat, LoWat: lowat}
}

func putDataMsg(s *Stream, q *Queue, n int) *MsgB {
	msg, err := Allocb(s, n, 0)
	if err != nil {
		panic(err)
	}
	Msgwrite(msg, make([]byte, n))
	Putq(q, msg)
	return msg
}

func TestPutqGetq_FIFOOrder(t *testing.T) {
	s := newTestStream(t)
	q := newTestQueue(1024, 256)

	a := putDataMsg(s, q, 4)
	b := putDataMsg(s, q, 4)

	if got := Getq(q); got != a {
		t.Fatalf("Getq() returned %v, want the first-queued message", got)
	}
	if got := Getq(q); got != b {
		t.Fatalf("Getq() returned %v, want the second-queued message", got)
	}
	if got := Getq(q); got != nil {
		t.Fatalf("Getq() on empty queue = %v, want nil", got)
	}
}

func TestCanput_SetsFullAtHiwat(t *testing.T) {
	s := newTestStream(t)
	q := newTestQueue(8, 2)

	if !Canput(q) {
		t.Fatalf("Canput() on empty queue should be true")
	}
	putDataMsg(s, q, 8)
	if Canput(q) {
		t.Fatalf("Canput() should be false once ByteCount reaches HiWat")
	}
	if q.Flags&QFull == 0 {
		t.Fatalf("QFull should be set once ByteCount reaches HiWat")
	}
}

func TestCanput_ClearsFullBelowLowat(t *testing.T) {
	s := newTestStream(t)
	q := newTestQueue(8, 4)

	putDataMsg(s, q, 8)
	if Canput(q) {
		t.Fatalf("queue should be full at HiWat")
	}
	Getq(q)
	if !Canput(q) {
		t.Fatalf("Canput() should recover once ByteCount drops below LoWat")
	}
	if q.Flags&QFull != 0 {
		t.Fatalf("QFull should be cleared once below LoWat")
	}
}

func TestCanput_NilQueueNeverAccepts(t *testing.T) {
	if Canput(nil) {
		t.Fatalf("Canput(nil) should always be false")
	}
}

func TestGetq_SetsWantRWhenDrained(t *testing.T) {
	s := newTestStream(t)
	q := newTestQueue(1024, 256)
	putDataMsg(s, q, 4)

	Getq(q)
	if q.Flags&QWantR == 0 {
		t.Fatalf("QWantR should be set once the queue empties")
	}
}

func TestPutbq_RestoresToHead(t *testing.T) {
	s := newTestStream(t)
	q := newTestQueue(1024, 256)

	a := putDataMsg(s, q, 4)
	got := Getq(q)
	if got != a {
		t.Fatalf("Getq() = %v, want %v", got, a)
	}
	Putbq(q, got)
	if q.Len() != 1 {
		t.Fatalf("Putbq() did not restore the message, Len() = %d", q.Len())
	}
	if Getq(q) != a {
		t.Fatalf("Putbq() did not restore the message to the head")
	}
}

func TestByteCountInvariant(t *testing.T) {
	s := newTestStream(t)
	q := newTestQueue(1024, 256)
	putDataMsg(s, q, 4)
	putDataMsg(s, q, 6)

	if got := q.byteCountInvariant(); got != q.ByteCount {
		t.Fatalf("byteCountInvariant() = %d, want ByteCount %d", got, q.ByteCount)
	}
}

func TestQsize(t *testing.T) {
	s := newTestStream(t)
	q := newTestQueue(1024, 256)
	putDataMsg(s, q, 4)
	putDataMsg(s, q, 4)

	if got := Qsize(q); got != 2 {
		t.Fatalf("Qsize() = %d, want 2", got)
	}
}
