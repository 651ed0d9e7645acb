package pstreams

import (
	"fmt"

	"github.com/thomag/pstreams/internal/pool"
)

// Stream owns every pool a stack of modules draws from, the two fixed
// anchor queues at the application boundary, the device module spliced
// in at Open, and the sticky last-error/log state shared by the whole
// stack. All storage is carved once at Open; nothing after that point
// reaches back into the host allocator except Go's own bookkeeping for
// pointers already handed out (slices, maps) inside the fixed pools
// themselves.
type Stream struct {
	cfg Config

	volatile   *Region
	persistent *Region

	queuePool     *pool.ListPool[Queue]
	msgPool       *pool.ListPool[MsgB]
	dataBlockPool *pool.ListPool[DataBlock]
	classes       []sizeClass

	appWr, appRd *Queue
	devWr, devRd *Queue

	lastError Error
	logSink   *logSink
}

// regionFootprint mirrors the byte accounting Open performs against the
// two caller-supplied regions: it exists so an undersized RegionBytes
// config surfaces as OutOfMemory at Open time rather than partway
// through, even though the pools themselves are backed by ordinary Go
// slices (see internal/pool's doc comment; a raw []byte cannot safely
// be reinterpreted as []T across arbitrary T without unsafe pointer
// arithmetic, so pstreams uses the region purely as a budget ledger
// rather than literal backing storage for slot arrays).
func regionFootprint(itemSize, count int) int {
	n := itemSize * count
	// Round up to word size, matching Region.Assign's own alignment.
	if rem := n % wordAlign; rem != 0 {
		n += wordAlign - rem
	}
	return n
}

const (
	approxQueueSize = 96
	approxMsgSize   = 48
	approxDataSize  = 32
)

// Open carves a new Stream out of mem (volatile, reused while the
// stream runs) and pmem (persistent, for module state meant to survive
// across a push/pop but not across Close), builds every pool per cfg,
// and splices device into the bottom of the stack as both the dev-wr
// and dev-rd anchor queues. If the volatile region or the queue pool
// is too small it returns OutOfMemory; if an anchor queue's open hook
// fails it runs the close hooks of all four anchor queues and returns
// that hook's error. Either way no Stream is returned (the caller
// discards mem/pmem).
func Open(cfg Config, mem, pmem []byte, device *ModuleTab) (*Stream, error) {
	s := &Stream{
		cfg:        cfg,
		volatile:   NewRegion(mem),
		persistent: NewRegion(pmem),
		logSink:    newLogSink(),
	}

	footprint := 0
	footprint += regionFootprint(approxQueueSize, cfg.MaxQueues)
	footprint += regionFootprint(approxMsgSize, cfg.MaxMsgBlocks)
	footprint += regionFootprint(approxDataSize, cfg.MaxDataBlocks)
	if s.volatile.Assign(footprint) == nil {
		return nil, OutOfMemory
	}

	s.queuePool = pool.NewListPool[Queue](cfg.MaxQueues)
	s.msgPool = pool.NewListPool[MsgB](cfg.MaxMsgBlocks)
	s.dataBlockPool = pool.NewListPool[DataBlock](cfg.MaxDataBlocks)

	tiers := []struct {
		size int
		n    int
	}{
		{cfg.FastBufSize, cfg.MaxDataBlocks},
		{16, cfg.Pool16Size},
		{64, cfg.Pool64Size},
		{256, cfg.Pool256Size},
		{512, cfg.Pool512Size},
		{1792, cfg.Pool1792Size},
	}
	s.classes = make([]sizeClass, 0, len(tiers))
	for _, t := range tiers {
		if t.size <= 0 || t.n <= 0 {
			s.classes = append(s.classes, sizeClass{})
			continue
		}
		p := pool.NewListPool[[]byte](t.n)
		for i := 0; i < t.n; i++ {
			*p.Value(i) = make([]byte, t.size)
		}
		s.classes = append(s.classes, sizeClass{size: t.size, pool: p})
	}

	appTab := builtinAppModule()

	rdSlot, _, ok := s.queuePool.Alloc()
	if !ok {
		return nil, OutOfMemory
	}
	wrSlot, _, ok := s.queuePool.Alloc()
	if !ok {
		return nil, OutOfMemory
	}
	*rdSlot = Queue{Init: appTab.RdInit, Info: appTab.RdInit.Info, Flags: QReadR, stream: s}
	*wrSlot = Queue{Init: appTab.WrInit, Info: appTab.WrInit.Info, stream: s}
	rdSlot.Peer, wrSlot.Peer = wrSlot, rdSlot
	s.appRd, s.appWr = rdSlot, wrSlot

	devRdSlot, _, ok := s.queuePool.Alloc()
	if !ok {
		return nil, OutOfMemory
	}
	devWrSlot, _, ok := s.queuePool.Alloc()
	if !ok {
		return nil, OutOfMemory
	}
	*devRdSlot = Queue{Init: device.RdInit, Info: device.RdInit.Info, Flags: QReadR, stream: s}
	*devWrSlot = Queue{Init: device.WrInit, Info: device.WrInit.Info, stream: s}
	devRdSlot.Peer, devWrSlot.Peer = devWrSlot, devRdSlot
	s.devRd, s.devWr = devRdSlot, devWrSlot

	s.appWr.Next = s.devWr
	s.devRd.Next = s.appRd
	s.appWr.HiWat, s.appWr.LoWat = appTab.WrInit.Info.HiWat, appTab.WrInit.Info.LoWat
	s.appRd.HiWat, s.appRd.LoWat = appTab.RdInit.Info.HiWat, appTab.RdInit.Info.LoWat
	s.devWr.HiWat, s.devWr.LoWat = device.WrInit.Info.HiWat, device.WrInit.Info.LoWat
	s.devRd.HiWat, s.devRd.LoWat = device.RdInit.Info.HiWat, device.RdInit.Info.LoWat
	s.devWr.LTFilter, s.devRd.LTFilter = cfg.UDPDevTraceLevel, cfg.UDPDevTraceLevel

	for _, q := range []*Queue{s.appRd, s.appWr, s.devRd, s.devWr} {
		if q.Init.Open != nil {
			if err := q.Init.Open(q); err != nil {
				s.log(q, LTError, "open failed: %v", err)
				_ = closeQueue(s.appRd)
				_ = closeQueue(s.appWr)
				_ = closeQueue(s.devRd)
				_ = closeQueue(s.devWr)
				return nil, err
			}
		}
	}
	s.log(s.appWr, LTInfo, "stream opened")
	return s, nil
}

func closeQueue(q *Queue) error {
	if q == nil || q.Init == nil || q.Init.Close == nil {
		return nil
	}
	return q.Init.Close(q)
}

// Push instantiates mod's pair of queues from the queue pool, splices
// the write queue directly below app-wr and the read queue directly
// above app-rd (so the most recently pushed module sits nearest the
// application on both sides), and runs each side's open hook.
func (s *Stream) Push(mod *ModuleTab) error {
	wrSlot, _, ok := s.queuePool.Alloc()
	if !ok {
		return OutOfMemory
	}
	rdSlot, _, ok := s.queuePool.Alloc()
	if !ok {
		s.queuePool.Release(indexOfQueue(s, wrSlot))
		return OutOfMemory
	}

	*wrSlot = Queue{Init: mod.WrInit, Info: mod.WrInit.Info, HiWat: mod.WrInit.Info.HiWat, LoWat: mod.WrInit.Info.LoWat, stream: s}
	*rdSlot = Queue{Init: mod.RdInit, Info: mod.RdInit.Info, Flags: QReadR, HiWat: mod.RdInit.Info.HiWat, LoWat: mod.RdInit.Info.LoWat, stream: s}
	wrSlot.Peer, rdSlot.Peer = rdSlot, wrSlot

	wrSlot.Next = s.appWr.Next
	s.appWr.Next = wrSlot

	// Find the read queue whose Next is app-rd, and splice the new one
	// in just above it.
	cur := s.devRd
	for cur.Next != s.appRd {
		cur = cur.Next
	}
	rdSlot.Next = s.appRd
	cur.Next = rdSlot

	for _, q := range []*Queue{wrSlot, rdSlot} {
		if q.Init.Open != nil {
			if err := q.Init.Open(q); err != nil {
				s.log(q, LTError, "push open failed: %v", err)
				s.unsplice(wrSlot, rdSlot)
				return err
			}
		}
	}
	s.log(wrSlot, LTDebug, "module pushed")
	return nil
}

// Pop removes the module directly below app-wr (and its read-side
// mirror directly above app-rd), running each side's close hook and
// returning the popped module's idnum, or 0 if only the app and device
// modules remain.
func (s *Stream) Pop() (uint16, error) {
	wrSlot := s.appWr.Next
	if wrSlot == s.devWr {
		return 0, nil
	}

	cur := s.devRd
	for cur.Next != s.appRd {
		cur = cur.Next
	}
	rdSlot := cur

	if wrSlot.Peer.Info.IDNum != rdSlot.Info.IDNum {
		return 0, fmt.Errorf("pstreams: pop found mismatched module pair: %w", GeneralError)
	}

	idnum := wrSlot.Info.IDNum
	if wrSlot.Init.Close != nil {
		if err := wrSlot.Init.Close(wrSlot); err != nil {
			s.log(wrSlot, LTError, "pop close failed: %v", err)
			return 0, err
		}
	}
	if rdSlot.Init.Close != nil {
		if err := rdSlot.Init.Close(rdSlot); err != nil {
			s.log(rdSlot, LTError, "pop close failed: %v", err)
			return 0, err
		}
	}
	s.log(wrSlot, LTDebug, "module popped")
	s.unsplice(wrSlot, rdSlot)
	return idnum, nil
}

func (s *Stream) unsplice(wrSlot, rdSlot *Queue) {
	s.appWr.Next = wrSlot.Next
	prev := s.devRd
	for prev.Next != rdSlot {
		prev = prev.Next
	}
	prev.Next = rdSlot.Next

	s.queuePool.Release(indexOfQueue(s, wrSlot))
	s.queuePool.Release(indexOfQueue(s, rdSlot))
}

// indexOfQueue recovers a queue's pool slot index by pointer
// arithmetic over the pool's backing array; the pool itself only
// exposes Value(index) going the other direction, so pstreams'
// splice/unsplice bookkeeping on Queue keeps no separate index field
// and instead resolves it once at release time.
func indexOfQueue(s *Stream, q *Queue) int {
	for i := 0; i < s.queuePool.Cap(); i++ {
		if s.queuePool.Value(i) == q {
			return i
		}
	}
	panic("pstreams: queue not owned by this stream's pool")
}

// Close pops every pushed module, closes the anchor queues, and
// flushes the log sink. Reusing mem/pmem for a new stream afterward is
// the caller's responsibility.
func (s *Stream) Close() error {
	for {
		idnum, err := s.Pop()
		if err != nil {
			return err
		}
		if idnum == 0 {
			break
		}
	}
	s.log(s.appWr, LTInfo, "stream closing")
	for _, q := range []*Queue{s.appRd, s.appWr, s.devRd, s.devWr} {
		if err := closeQueue(q); err != nil {
			return err
		}
	}
	return s.logSink.close()
}

// builtinAppModule is the fixed application-boundary pseudo-module:
// app-wr forwards downstream (buffering on back-pressure) and app-rd
// simply accumulates for Getmsg.
func builtinAppModule() *ModuleTab {
	appWrInfo := &ModuleInfo{IDName: "pstreamshead", HiWat: 4096, LoWat: 1024}
	appRdInfo := &ModuleInfo{IDName: "pstreamshead", HiWat: 4096, LoWat: 1024}
	return &ModuleTab{
		WrInit: &QueueInit{Info: appWrInfo, Put: defaultPut},
		RdInit: &QueueInit{Info: appRdInfo, Put: func(q *Queue, msg *MsgB) error {
			Putq(q, msg)
			return nil
		}},
	}
}

// defaultPut is app-wr's put procedure: forward
// immediately if the next queue can accept, otherwise buffer for the
// service procedure to drain later.
func defaultPut(q *Queue, msg *MsgB) error {
	if Canput(q.Next) {
		return Putnext(q.Next, msg)
	}
	Putq(q, msg)
	return nil
}

// defaultSrv is the scheduler's fallback service procedure: drain q's
// FIFO downstream for as long as the next queue can accept.
func defaultSrv(q *Queue) error {
	for Canput(q.Next) {
		msg := Getq(q)
		if msg == nil {
			return nil
		}
		if err := Putnext(q.Next, msg); err != nil {
			return err
		}
	}
	return nil
}
