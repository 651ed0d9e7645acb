package pstreams

import "testing"

// Spec scenario 3: with only 64- and 256-byte size classes enabled,
// allocb rounds up to the smallest class that fits, and requests
// exceeding every enabled class fail with OutOfMemory.
func TestAllocb_SizeClassSelection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FastBufSize = 0
	cfg.Pool16Size = 0
	cfg.Pool64Size = 8
	cfg.Pool256Size = 8
	cfg.Pool512Size = 0
	cfg.Pool1792Size = 0

	mem := make([]byte, cfg.RegionVolatileBytes)
	pmem := make([]byte, cfg.RegionPersistentBytes)
	s, err := Open(cfg, mem, pmem, nullModuleTab())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	msg, err := Allocb(s, 40, 0)
	if err != nil {
		t.Fatalf("Allocb(40) failed: %v", err)
	}
	if got := len(msg.datab.Base); got != 64 {
		t.Fatalf("Allocb(40) size class = %d, want 64", got)
	}

	msg2, err := Allocb(s, 100, 0)
	if err != nil {
		t.Fatalf("Allocb(100) failed: %v", err)
	}
	if got := len(msg2.datab.Base); got != 256 {
		t.Fatalf("Allocb(100) size class = %d, want 256", got)
	}

	if _, err := Allocb(s, 300, 0); err != OutOfMemory {
		t.Fatalf("Allocb(300) err = %v, want OutOfMemory", err)
	}
}

// The data-block header pool (cfg.MaxDataBlocks) is a bound independent
// of any size-class payload pool: even with ample 16-byte payload
// storage available, allocation fails once the data-block pool itself
// is exhausted.
func TestAllocb_DataBlockPoolBoundsAllocationCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDataBlocks = 2
	cfg.FastBufSize = 0
	cfg.Pool16Size = 8
	cfg.Pool64Size = 0
	cfg.Pool256Size = 0
	cfg.Pool512Size = 0
	cfg.Pool1792Size = 0

	mem := make([]byte, cfg.RegionVolatileBytes)
	pmem := make([]byte, cfg.RegionPersistentBytes)
	s, err := Open(cfg, mem, pmem, nullModuleTab())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if _, err := Allocb(s, 8, 0); err != nil {
		t.Fatalf("first Allocb() failed: %v", err)
	}
	if _, err := Allocb(s, 8, 0); err != nil {
		t.Fatalf("second Allocb() failed: %v", err)
	}
	if _, err := Allocb(s, 8, 0); err != OutOfMemory {
		t.Fatalf("third Allocb() err = %v, want OutOfMemory (data-block pool exhausted, payload pool still has room)", err)
	}
}
