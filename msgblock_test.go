package pstreams

import "testing"

func newTestStream(t *testing.T) *Stream {
	t.Helper()
	cfg := DefaultConfig()
	mem := make([]byte, cfg.RegionVolatileBytes)
	pmem := make([]byte, cfg.RegionPersistentBytes)
	s, err := Open(cfg, mem, pmem, nullModuleTab())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// nullModuleTab is a minimal device module good enough to anchor a test
// Stream: it accepts and drops everything written to it.
func nullModuleTab() *ModuleTab {
	drop := func(q *Queue, msg *MsgB) error {
		Freemsg(q.Stream(), msg)
		return nil
	}
	return &ModuleTab{
		WrInit: &QueueInit{Info: &ModuleInfo{IDName: "TESTDEV_WR", HiWat: 4096, LoWat: 1024}, Put: drop},
		RdInit: &QueueInit{Info: &ModuleInfo{IDName: "TESTDEV_RD", HiWat: 4096, LoWat: 1024}, Put: drop},
	}
}

func TestAllocb_PayloadWindowStartsEmpty(t *testing.T) {
	s := newTestStream(t)
	msg, err := Allocb(s, 16, 0)
	if err != nil {
		t.Fatalf("Allocb() failed: %v", err)
	}
	if got := Msgsize(msg); got != 0 {
		t.Fatalf("Msgsize() of fresh Allocb = %d, want 0", got)
	}
	if got := Unwrit1bytes(msg); got != 16 {
		t.Fatalf("Unwrit1bytes() = %d, want 16", got)
	}
}

func TestMsgwriteMsgread_RoundTrip(t *testing.T) {
	s := newTestStream(t)
	msg, err := Allocb(s, 8, 0)
	if err != nil {
		t.Fatalf("Allocb() failed: %v", err)
	}
	want := []byte("hello!!")
	if n := Msgwrite(msg, want); n != 0 {
		t.Fatalf("Msgwrite() left %d unwritten bytes", n)
	}
	got := make([]byte, len(want))
	if n := Msgread(got, msg); n != len(want) {
		t.Fatalf("Msgread() = %d, want %d", n, len(want))
	}
	if string(got) != string(want) {
		t.Fatalf("Msgread() = %q, want %q", got, want)
	}
}

func TestDupmsg_SharesStorageAndIsIndependentlyFreed(t *testing.T) {
	s := newTestStream(t)
	orig, _ := Allocb(s, 8, 0)
	Msgwrite(orig, []byte("payload!"))

	dup, err := Dupmsg(s, orig)
	if err != nil {
		t.Fatalf("Dupmsg() failed: %v", err)
	}
	if dup.Payload()[0] != orig.Payload()[0] {
		t.Fatalf("dup does not share orig's initial bytes")
	}

	// Mutating through one view is visible through the other: they
	// share the same backing DataBlock.
	orig.datab.Base[orig.rptr] = 'X'
	if dup.Payload()[0] != 'X' {
		t.Fatalf("Dupmsg() did not share storage with its source")
	}

	// Freeing one reference must not invalidate the other.
	Freemsg(s, dup)
	if got := string(orig.Payload()); got[0] != 'X' {
		t.Fatalf("orig payload corrupted after freeing its dup")
	}
	Freemsg(s, orig)
}

func TestCopymsg_IsIndependentOfSource(t *testing.T) {
	s := newTestStream(t)
	orig, _ := Allocb(s, 8, 0)
	Msgwrite(orig, []byte("original"))

	cp, err := Copymsg(s, orig)
	if err != nil {
		t.Fatalf("Copymsg() failed: %v", err)
	}
	orig.datab.Base[orig.rptr] = 'X'
	if cp.Payload()[0] == 'X' {
		t.Fatalf("Copymsg() shared storage with its source")
	}
	Freemsg(s, orig)
	Freemsg(s, cp)
}

func TestLinkbUnlinkb(t *testing.T) {
	s := newTestStream(t)
	a, _ := Allocb(s, 4, 0)
	b, _ := Allocb(s, 4, 0)
	Msgwrite(a, []byte("aaaa"))
	Msgwrite(b, []byte("bbbb"))

	chain := Linkb(a, b)
	if chain.Cont != b {
		t.Fatalf("Linkb() did not append tail")
	}
	if got := Msgsize(chain); got != 8 {
		t.Fatalf("Msgsize(chain) = %d, want 8", got)
	}

	rest := Unlinkb(chain)
	if rest != b {
		t.Fatalf("Unlinkb() returned %v, want the second block", rest)
	}
	if chain.Cont != nil {
		t.Fatalf("Unlinkb() left msg.Cont set")
	}
	Freemsg(s, chain)
	Freemsg(s, rest)
}

func TestMsgpullup_CollapsesChainIntoOneBlock(t *testing.T) {
	s := newTestStream(t)
	a, _ := Allocb(s, 4, 0)
	b, _ := Allocb(s, 4, 0)
	c, _ := Allocb(s, 4, 0)
	Msgwrite(a, []byte("AAAA"))
	Msgwrite(b, []byte("BBBB"))
	Msgwrite(c, []byte("CCCC"))
	chain := Linkb(Linkb(a, b), c)

	pulled, err := Msgpullup(s, chain, -1)
	if err != nil {
		t.Fatalf("Msgpullup() failed: %v", err)
	}
	if pulled.Cont != nil {
		t.Fatalf("Msgpullup(-1) left more than one block")
	}
	if got := string(pulled.Payload()); got != "AAAABBBBCCCC" {
		t.Fatalf("Msgpullup() payload = %q, want %q", got, "AAAABBBBCCCC")
	}
	// original chain is untouched
	if got := Msgsize(chain); got != 12 {
		t.Fatalf("Msgpullup() mutated its input chain's size")
	}
	Freemsg(s, chain)
	Freemsg(s, pulled)
}

func TestMsgpullup_PartialLeavesRemainder(t *testing.T) {
	s := newTestStream(t)
	a, _ := Allocb(s, 4, 0)
	b, _ := Allocb(s, 4, 0)
	Msgwrite(a, []byte("AAAA"))
	Msgwrite(b, []byte("BBBB"))
	chain := Linkb(a, b)

	pulled, err := Msgpullup(s, chain, 6)
	if err != nil {
		t.Fatalf("Msgpullup() failed: %v", err)
	}
	if Msg1size(pulled) != 6 {
		t.Fatalf("Msg1size(head) = %d, want 6", Msg1size(pulled))
	}
	if pulled.Cont == nil {
		t.Fatalf("Msgpullup(6) dropped the remainder")
	}
	if got := Msgsize(pulled); got != 8 {
		t.Fatalf("Msgsize(pulled) = %d, want 8", got)
	}
	Freemsg(s, chain)
	Freemsg(s, pulled)
}

func TestMsgconsumeMsgerase(t *testing.T) {
	s := newTestStream(t)
	msg, _ := Allocb(s, 8, 0)
	Msgwrite(msg, []byte("abcdefgh"))

	if left := Msgconsume(msg, 3); left != 0 {
		t.Fatalf("Msgconsume() left = %d, want 0", left)
	}
	if got := string(msg.Payload()); got != "defgh" {
		t.Fatalf("Msgconsume() payload = %q, want %q", got, "defgh")
	}

	if left := Msgerase(msg, 2); left != 0 {
		t.Fatalf("Msgerase() left = %d, want 0", left)
	}
	if got := string(msg.Payload()); got != "def" {
		t.Fatalf("Msgerase() payload = %q, want %q", got, "def")
	}
	Freemsg(s, msg)
}

func TestGarbageCollect_DropsEmptyBlocks(t *testing.T) {
	s := newTestStream(t)
	empty, _ := Allocb(s, 4, 0)
	full, _ := Allocb(s, 4, 0)
	Msgwrite(full, []byte("data"))
	chain := Linkb(empty, full)

	GarbageCollect(s, &chain)
	if chain != full {
		t.Fatalf("GarbageCollect() did not drop the leading empty block")
	}
	if chain.Cont != nil {
		t.Fatalf("GarbageCollect() left an extra block")
	}
	Freemsg(s, chain)
}

func TestCtlexpress_SeparatesClaimedControlFromData(t *testing.T) {
	s := newTestStream(t)
	ctl, _ := Allocb(s, 0, 0)
	ctl.Type = MProto
	data, _ := Allocb(s, 4, 0)
	data.Type = MData
	Msgwrite(data, []byte("data"))
	chain := Linkb(ctl, data)

	q := &Queue{stream: s}
	gotData, gotCtl := Ctlexpress(q, chain, func(*MsgB) bool { return true })
	if gotCtl != ctl {
		t.Fatalf("Ctlexpress() ctl = %v, want the control block", gotCtl)
	}
	if gotData != data {
		t.Fatalf("Ctlexpress() data = %v, want the data block", gotData)
	}
	Freemsg(s, ctl)
	Freemsg(s, data)
}
