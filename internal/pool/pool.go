// Package pool implements the fixed-capacity, single-threaded free-list
// allocator that underlies every pstreams pool (queues, message blocks,
// data blocks, and size-class payloads).
//
// Unlike a concurrent bounded pool, ListPool never invokes the host
// allocator after NewListPool and never blocks: Alloc returns a nil
// pointer and false the instant the pool is empty, and Release always succeeds. The
// free list is kept as a parallel index array rather than a pointer
// stashed inside the freed slot, so a released item's memory is never
// aliased between framework bookkeeping and caller payload.
package pool

// ListPool is a fixed-capacity pool of count items of type T, carved once
// from caller-supplied backing storage and never grown afterward.
type ListPool[T any] struct {
	items []T
	next  []int32 // next[i] is the free-list successor of slot i, or -1
	free  int32   // head of the free list, or -1 if empty
	count int
	used  int
	lowat int // tightest freecount ever observed
}

// NewListPool creates a ListPool over count zero-valued items. The items
// slice is allocated once; no further host allocation occurs.
func NewListPool[T any](count int) *ListPool[T] {
	if count < 0 {
		panic("pool: negative count")
	}
	p := &ListPool[T]{
		items: make([]T, count),
		next:  make([]int32, count),
		free:  -1,
		count: count,
		lowat: count,
	}
	for i := count - 1; i >= 0; i-- {
		p.next[i] = p.free
		p.free = int32(i)
	}
	return p
}

// Cap returns the pool's fixed capacity.
func (p *ListPool[T]) Cap() int { return p.count }

// FreeCount returns the number of slots currently available.
func (p *ListPool[T]) FreeCount() int { return p.count - p.used }

// Lowat returns the tightest FreeCount this pool has ever reached.
func (p *ListPool[T]) Lowat() int { return p.lowat }

// Alloc removes a slot from the head of the free list and returns a
// pointer to it along with its index. ok is false iff the pool is empty,
// in which case the returned pointer is nil.
func (p *ListPool[T]) Alloc() (item *T, index int, ok bool) {
	if p.free < 0 {
		return nil, 0, false
	}
	idx := p.free
	p.free = p.next[idx]
	p.next[idx] = -1
	p.used++
	if fc := p.FreeCount(); fc < p.lowat {
		p.lowat = fc
	}
	return &p.items[idx], int(idx), true
}

// Release returns the slot at index to the head of the free list.
// The caller must not use the pointer previously returned by Alloc for
// this index after calling Release.
func (p *ListPool[T]) Release(index int) {
	if index < 0 || index >= p.count {
		panic("pool: index out of range")
	}
	p.next[index] = p.free
	p.free = int32(index)
	p.used--
}

// Value returns a pointer to the item at index, valid whether or not the
// slot is currently allocated. Callers are expected to track allocation
// state themselves (the pool does not distinguish a live slot from a
// freed one beyond the free-list linkage).
func (p *ListPool[T]) Value(index int) *T {
	return &p.items[index]
}

// Check walks the free list and reports whether its length matches
// FreeCount and every link lies within bounds. It is a debug-mode
// consistency check, not part of the hot path.
func (p *ListPool[T]) Check() bool {
	n := 0
	for i := p.free; i >= 0; {
		if int(i) >= p.count {
			return false
		}
		n++
		if n > p.count {
			return false // cycle
		}
		i = p.next[i]
	}
	return n == p.FreeCount()
}
