package pstreams

import "github.com/thomag/pstreams/internal/pool"

// maxDataBlockRefs is the ref-count ceiling dupb enforces; the original
// packs the count into a single byte.
const maxDataBlockRefs = 255

// sizeClass is one tier of the fixed-size buffer allocator. Buffers are
// drawn from the smallest class whose capacity covers the request; a
// class with size == 0 is disabled and skipped entirely, exactly as the
// original's per-tier build-time guards did. The smallest enabled tier
// (FASTBUF, default 4 bytes) plays the role of the inline buffer folded
// into every DataBlock in the original C layout; pstreams gives it its
// own pool slot instead of inlining it into the DataBlock struct, which
// costs one extra pool lookup per tiny allocation but keeps DataBlock a
// fixed, small struct regardless of FASTBUF's configured size.
type sizeClass struct {
	size int
	pool *pool.ListPool[[]byte]
}

// DataBlock is the shared payload carrier, analogous to P_DATAB. Base is
// the full backing storage (len(Base) == the owning size class's
// capacity, or the caller-supplied length for external storage);
// individual MsgBs reference a [rptr:wptr) window into it. refCount is
// the number of MsgBs sharing Base; it is released back to its pool, or
// via freeRtn for external storage, only once refCount reaches zero.
// Every DataBlock header itself is drawn from Stream.dataBlockPool,
// bounded by cfg.MaxDataBlocks independently of whichever size-class
// pool supplies Base — spec.md §6 lists maxDataBlocks ("capacity of the
// data-block pool") as a distinct knob from fastBufSize and the other
// size-class pool sizes, and scenario 1's test config exercises it as
// such (M=352 message blocks, D=320 data blocks, separate again from
// fastBuf=4).
type DataBlock struct {
	Base []byte

	class   int // index into Stream.classes, or -1 for external storage
	slot    int // pool slot index, valid when class >= 0
	freeRtn *FreeRoutine

	refCount int

	selfIndex int // slot index in Stream.dataBlockPool
}

// classFor returns the index of the smallest enabled size class able to
// hold n bytes, or -1 if none fits (n exceeds the largest enabled tier,
// or every tier is disabled).
func (s *Stream) classFor(n int) int {
	for i := range s.classes {
		c := &s.classes[i]
		if c.pool != nil && c.size >= n {
			return i
		}
	}
	return -1
}

// allocDataBlock draws a DataBlock header from Stream.dataBlockPool and
// storage able to hold n bytes from the smallest fitting size class.
// Returns OutOfMemory if no class fits, the fitting payload pool is
// exhausted, or the data-block pool itself is exhausted — three
// independent failure modes per spec.md §6's separate maxDataBlocks,
// pool{16,64,256,512,1792}Size, and fastBufSize knobs.
func (s *Stream) allocDataBlock(n int) (*DataBlock, error) {
	ci := s.classFor(n)
	if ci < 0 {
		return nil, OutOfMemory
	}
	c := &s.classes[ci]
	slot, idx, ok := c.pool.Alloc()
	if !ok {
		return nil, OutOfMemory
	}
	if len(*slot) != c.size {
		*slot = make([]byte, c.size)
	}
	db, dbIdx, ok := s.dataBlockPool.Alloc()
	if !ok {
		c.pool.Release(idx)
		return nil, OutOfMemory
	}
	*db = DataBlock{Base: *slot, class: ci, slot: idx, refCount: 1, selfIndex: dbIdx}
	return db, nil
}

// releaseDataBlock drops one reference; at zero it returns pool-backed
// storage to its class pool (or invokes freeRtn for external storage)
// and then returns the DataBlock header itself to Stream.dataBlockPool.
func (s *Stream) releaseDataBlock(db *DataBlock) {
	db.refCount--
	if db.refCount > 0 {
		return
	}
	if db.class >= 0 {
		s.classes[db.class].pool.Release(db.slot)
	} else if db.freeRtn != nil && db.freeRtn.Free != nil {
		db.freeRtn.Free(db.freeRtn.Arg)
	}
	idx := db.selfIndex
	*db = DataBlock{}
	s.dataBlockPool.Release(idx)
}

// Allocb is the primitive buffer allocator (pstreams_allocb): a fresh
// DataBlock of at least size bytes, wrapped in a new MsgB with an empty
// [0:0) payload window and type MData.
func Allocb(s *Stream, size int, band Band) (*MsgB, error) {
	return allocb(s, size, band)
}

func allocb(s *Stream, size int, band Band) (*MsgB, error) {
	db, err := s.allocDataBlock(size)
	if err != nil {
		return nil, err
	}
	msg, err := s.newMsgB()
	if err != nil {
		s.releaseDataBlock(db)
		return nil, err
	}
	msg.datab = db
	msg.Band = band
	msg.Type = MData
	return msg, nil
}

// Esballoc wraps caller-owned storage in a DataBlock that bypasses the
// size-class pools entirely; freeRtn.Free runs once the last reference
// is dropped (pstreams_esballoc). The DataBlock header itself still
// comes from the bounded dataBlockPool (only the payload storage is
// externally owned), and the MsgB comes from the bounded message-block
// pool; the window starts full ([0:len(buf)) so the adopted bytes are
// immediately readable.
func Esballoc(s *Stream, buf []byte, rtn FreeRoutine) (*MsgB, error) {
	msg, err := s.newMsgB()
	if err != nil {
		return nil, err
	}
	db, dbIdx, ok := s.dataBlockPool.Alloc()
	if !ok {
		s.msgPool.Release(msg.selfIndex)
		return nil, OutOfMemory
	}
	*db = DataBlock{Base: buf, class: -1, slot: -1, freeRtn: &rtn, refCount: 1, selfIndex: dbIdx}
	msg.datab = db
	msg.wptr = len(buf)
	msg.Type = MData
	return msg, nil
}

// Dupb returns a new MsgB sharing src's DataBlock (refCount bumped) and
// copying src's current [rptr:wptr) window, giving the caller an
// independent cursor over the same storage without copying payload
// bytes. Fails with OutOfMemory if src's DataBlock is already shared by
// the maximum number of referrers.
func Dupb(s *Stream, src *MsgB) (*MsgB, error) {
	if src.datab.refCount >= maxDataBlockRefs {
		return nil, OutOfMemory
	}
	msg, err := s.newMsgB()
	if err != nil {
		return nil, err
	}
	src.datab.refCount++
	msg.datab = src.datab
	msg.rptr, msg.wptr = src.rptr, src.wptr
	msg.Type, msg.Band = src.Type, src.Band
	return msg, nil
}

// Copyb allocates a fresh DataBlock sized to hold src's payload and
// copies the bytes, yielding a fully independent MsgB with the same
// type and band.
func Copyb(s *Stream, src *MsgB) (*MsgB, error) {
	n := src.wptr - src.rptr
	dst, err := allocb(s, n, src.Band)
	if err != nil {
		return nil, err
	}
	copy(dst.datab.Base, src.datab.Base[src.rptr:src.wptr])
	dst.wptr = n
	dst.Type = src.Type
	return dst, nil
}
