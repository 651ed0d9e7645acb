package saw

import (
	"testing"

	"github.com/thomag/pstreams"
)

// wireDevice is a test-only bottom-of-stack module that hands every
// outbound frame's raw bytes to an outbox slice instead of a real
// socket, and replays an inbound frame via Deliver the way devices.UDP
// and devices.TCP's Poll methods replay a datagram. It captures its own
// queues at Open, so a test can drive delivery without any accessor
// into pstreams' internals.
type wireDevice struct {
	wrQ, rdQ *pstreams.Queue
	outbox   *[][]byte
}

func newWireDevice(outbox *[][]byte) (*wireDevice, *pstreams.ModuleTab) {
	d := &wireDevice{outbox: outbox}
	wrInfo := &pstreams.ModuleInfo{IDName: "WIRE_WR", HiWat: 4096, LoWat: 1024}
	rdInfo := &pstreams.ModuleInfo{IDName: "WIRE_RD", HiWat: 4096, LoWat: 1024}

	open := func(q *pstreams.Queue) error {
		if q.IsReadSide() {
			d.rdQ = q
		} else {
			d.wrQ = q
		}
		return nil
	}
	wput := func(q *pstreams.Queue, msg *pstreams.MsgB) error {
		buf := make([]byte, pstreams.Msgsize(msg))
		pstreams.Msgread(buf, msg)
		pstreams.Freemsg(q.Stream(), msg)
		*d.outbox = append(*d.outbox, buf)
		return nil
	}
	return d, &pstreams.ModuleTab{
		WrInit: &pstreams.QueueInit{Info: wrInfo, Open: open, Put: wput},
		RdInit: &pstreams.QueueInit{Info: rdInfo, Open: open},
	}
}

// Deliver simulates a frame arriving over the wire: it is handed
// upstream to whatever sits above this device's read queue (the SAW
// module's read side, in every test below).
func (d *wireDevice) Deliver(frame []byte) error {
	msg, err := pstreams.Allocb(d.rdQ.Stream(), len(frame), 0)
	if err != nil {
		return err
	}
	pstreams.Msgwrite(msg, frame)
	if !pstreams.Canput(d.rdQ.Next) {
		pstreams.Putq(d.rdQ, msg)
		return nil
	}
	return pstreams.Putnext(d.rdQ.Next, msg)
}

func openWithWire(t *testing.T, clock pstreams.Clock, cfg Config) (*pstreams.Stream, *wireDevice, *[][]byte) {
	t.Helper()
	outbox := &[][]byte{}
	wire, wireTab := newWireDevice(outbox)

	pcfg := pstreams.DefaultConfig()
	mem := make([]byte, pcfg.RegionVolatileBytes)
	pmem := make([]byte, pcfg.RegionPersistentBytes)
	s, err := pstreams.Open(pcfg, mem, pmem, wireTab)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Push(New(clock, cfg)); err != nil {
		t.Fatalf("Push(saw) failed: %v", err)
	}
	return s, wire, outbox
}

// A round trip between two independent streams linked by a pair of
// wireDevices: data submitted on one side arrives, header-stripped, on
// the other's Getmsg, and the peer's ack clears the sender's retransmit
// state.
func TestSAW_RoundTrip(t *testing.T) {
	var nowA, nowB uint32
	clockA := func() uint32 { return nowA }
	clockB := func() uint32 { return nowB }

	sA, wireA, outboxA := openWithWire(t, clockA, DefaultConfig())
	sB, wireB, outboxB := openWithWire(t, clockB, DefaultConfig())

	if err := sA.Putmsg(nil, []byte("hello"), 0); err != nil {
		t.Fatalf("Putmsg() failed: %v", err)
	}

	pump := func() {
		_ = sA.CallSrvp()
		_ = sB.CallSrvp()
		for _, frame := range *outboxA {
			_ = wireB.Deliver(frame)
		}
		*outboxA = nil
		for _, frame := range *outboxB {
			_ = wireA.Deliver(frame)
		}
		*outboxB = nil
	}

	var gotHello bool
	data := &pstreams.Buf{MaxLen: 64, Buf: make([]byte, 64)}
	for i := 0; i < 6 && !gotHello; i++ {
		pump()
		if _, ok, err := sB.Getmsg(nil, data); err != nil {
			t.Fatalf("Getmsg() failed: %v", err)
		} else if ok {
			gotHello = true
		}
	}
	if !gotHello {
		t.Fatalf("\"hello\" never arrived at the peer's Getmsg after several rounds")
	}
	if got := string(data.Buf[:data.Len]); got != "hello" {
		t.Fatalf("Getmsg() data = %q, want %q", got, "hello")
	}
}

// With no ack ever delivered back, the write side retransmits exactly
// MaxRetxCount times and then gives up rather than retrying forever.
func TestSAW_RetransmitsThenGivesUp(t *testing.T) {
	var now uint32
	clock := func() uint32 { return now }
	cfg := DefaultConfig() // MaxRetxCount: 1, AckWaitTimeout: 2000

	s, _, outbox := openWithWire(t, clock, cfg)

	if err := s.Putmsg(nil, []byte("data"), 0); err != nil {
		t.Fatalf("Putmsg() failed: %v", err)
	}

	_ = s.CallSrvp() // initial transmission
	if got := len(*outbox); got != 1 {
		t.Fatalf("after initial send, outbox has %d frames, want 1", got)
	}

	now = cfg.AckWaitTimeout + 1
	_ = s.CallSrvp() // one retransmit, budget allows it
	if got := len(*outbox); got != 2 {
		t.Fatalf("after first retransmit, outbox has %d frames, want 2", got)
	}

	now += cfg.AckWaitTimeout + 1
	_ = s.CallSrvp() // budget exhausted: gives up, no further frame
	if got := len(*outbox); got != 2 {
		t.Fatalf("after exhausting retx budget, outbox has %d frames, want still 2", got)
	}

	now += cfg.AckWaitTimeout + 1
	_ = s.CallSrvp() // idle: nothing left to retransmit or send
	if got := len(*outbox); got != 2 {
		t.Fatalf("after going idle, outbox has %d frames, want still 2", got)
	}
}

// A resync frame (seqNo==0 && ackNo==0) on the read side always
// resets the local ackNo to the remote's seqNo, even mid-stream.
func TestSAW_ResyncOnZeroHeader(t *testing.T) {
	var now uint32
	clock := func() uint32 { return now }
	s, wire, _ := openWithWire(t, clock, DefaultConfig())

	if err := wire.Deliver([]byte{0, 0, 'x'}); err != nil {
		t.Fatalf("Deliver() failed: %v", err)
	}
	if err := s.CallSrvp(); err != nil {
		t.Fatalf("CallSrvp() failed: %v", err)
	}

	data := &pstreams.Buf{MaxLen: 16, Buf: make([]byte, 16)}
	_, ok, err := s.Getmsg(nil, data)
	if err != nil {
		t.Fatalf("Getmsg() failed: %v", err)
	}
	if !ok {
		t.Fatalf("Getmsg() found nothing after a resync frame carrying a payload")
	}
	if got := string(data.Buf[:data.Len]); got != "x" {
		t.Fatalf("Getmsg() data = %q, want %q", got, "x")
	}
}
