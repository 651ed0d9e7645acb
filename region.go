package pstreams

import "unsafe"

// wordAlign is the alignment boundary region assignment rounds up to,
// matching the original implementation's WALIGN macro over pointer-sized
// words.
const wordAlign = int(unsafe.Sizeof(uintptr(0)))

// Region is a caller-supplied span of memory that Stream carves pools and
// per-queue private state from during Open. It never grows and never
// calls back into the host allocator once constructed: Assign either
// returns a sub-slice of the backing array or fails.
//
// A Stream owns two regions: a volatile one (reused freely by the caller
// after Close) and a persistent one (module private state that a module
// author expects to survive across Push/Pop of unrelated modules).
type Region struct {
	mem    []byte
	cursor int
}

// NewRegion wraps mem as a bump-allocated region. The caller retains
// ownership of mem; Region only ever reads its length and advances a
// cursor into it.
func NewRegion(mem []byte) *Region {
	return &Region{mem: mem}
}

// Len returns the total size of the region.
func (r *Region) Len() int { return len(r.mem) }

// Remaining returns the number of bytes not yet assigned.
func (r *Region) Remaining() int { return len(r.mem) - r.cursor }

// Assign returns a word-aligned sub-slice of n bytes from the region,
// advancing the cursor past it. It returns nil if the remainder is
// insufficient. n <= 1 is not aligned (a single byte or empty request
// never needs padding).
func (r *Region) Assign(n int) []byte {
	if n < 0 {
		return nil
	}
	start := r.cursor
	if n > 1 {
		if rem := start % wordAlign; rem != 0 {
			start += wordAlign - rem
		}
	}
	end := start + n
	if end > len(r.mem) {
		return nil
	}
	r.cursor = end
	return r.mem[start:end]
}
