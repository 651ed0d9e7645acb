package pool

import "testing"

func TestListPool_BasicAllocRelease(t *testing.T) {
	const capacity = 16
	p := NewListPool[int](capacity)

	indices := make([]int, capacity)
	for i := range capacity {
		item, idx, ok := p.Alloc()
		if !ok {
			t.Fatalf("Alloc() failed at iteration %d", i)
		}
		*item = i * 10
		indices[i] = idx
	}

	if _, _, ok := p.Alloc(); ok {
		t.Fatalf("Alloc() on exhausted pool should fail")
	}

	for _, idx := range indices {
		p.Release(idx)
	}
	if p.FreeCount() != capacity {
		t.Fatalf("FreeCount() = %d, want %d", p.FreeCount(), capacity)
	}

	for i := range capacity {
		if _, _, ok := p.Alloc(); !ok {
			t.Fatalf("second Alloc() failed at iteration %d", i)
		}
	}
}

func TestListPool_Lowat(t *testing.T) {
	p := NewListPool[int](8)
	var idx [5]int
	for i := range 5 {
		_, idx[i], _ = p.Alloc()
	}
	if p.Lowat() != 3 {
		t.Fatalf("Lowat() = %d, want 3", p.Lowat())
	}
	for _, i := range idx {
		p.Release(i)
	}
	if p.Lowat() != 3 {
		t.Fatalf("Lowat() should remain at tightest value, got %d", p.Lowat())
	}
}

func TestListPool_Check(t *testing.T) {
	p := NewListPool[int](4)
	if !p.Check() {
		t.Fatalf("Check() should pass on a fresh pool")
	}
	_, idx, _ := p.Alloc()
	if !p.Check() {
		t.Fatalf("Check() should pass after one Alloc()")
	}
	p.Release(idx)
	if !p.Check() {
		t.Fatalf("Check() should pass after Release()")
	}
}

func TestListPool_ValuePersistsAcrossAllocRelease(t *testing.T) {
	p := NewListPool[string](2)
	item, idx, _ := p.Alloc()
	*item = "hello"
	if got := *p.Value(idx); got != "hello" {
		t.Fatalf("Value(%d) = %q, want %q", idx, got, "hello")
	}
}
