package ring

import (
	"sync"
	"testing"
)

func TestPushPopOrder(t *testing.T) {
	r := New[int](16)
	for i := 0; i < 16; i++ {
		if !r.Push(i) {
			t.Fatalf("push %d: unexpected full", i)
		}
	}
	if !r.IsFull() {
		t.Fatal("expected full ring")
	}
	if r.Push(99) {
		t.Fatal("push on full ring should fail")
	}
	for i := 0; i < 16; i++ {
		v, ok := r.Pop()
		if !ok {
			t.Fatalf("pop %d: unexpected empty", i)
		}
		if v != i {
			t.Fatalf("pop order: got %d want %d", v, i)
		}
	}
	if !r.IsEmpty() {
		t.Fatal("expected empty ring")
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("pop on empty ring should fail")
	}
}

// TestWrapCorrectness checks the boundary behavior at capacity 4:
// push 4, push returns false, pop 1, push returns true, repeated across
// 10 cycles, preserving FIFO order across the index wrap.
func TestWrapCorrectness(t *testing.T) {
	r := New[uint64](4)

	for round := uint64(0); round < 10; round++ {
		for i := uint64(0); i < 4; i++ {
			if !r.Push(round*4 + i) {
				t.Fatalf("round %d: push %d failed", round, i)
			}
		}
		if r.Push(999) {
			t.Fatalf("round %d: push on full ring should fail", round)
		}
		v, ok := r.Pop()
		if !ok || v != round*4 {
			t.Fatalf("round %d: pop 1 = (%d, %v), want %d", round, v, ok, round*4)
		}
		if !r.Push(round*4 + 4) {
			t.Fatalf("round %d: push after pop 1 failed", round)
		}
		for i := uint64(1); i < 5; i++ {
			v, ok := r.Pop()
			if !ok || v != round*4+i {
				t.Fatalf("round %d: pop %d = (%d, %v), want %d", round, i, v, ok, round*4+i)
			}
		}
	}
}

func TestNewPanicsOnNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-power-of-two capacity")
		}
	}()
	New[int](3)
}

func TestLenAndCapacity(t *testing.T) {
	r := New[int](8)
	if r.Capacity() != 8 {
		t.Fatalf("capacity = %d, want 8", r.Capacity())
	}
	r.Push(1)
	r.Push(2)
	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}
	r.Pop()
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}
}

// TestConcurrentProducerConsumer exercises the SPSC contract under an
// actual producer/consumer goroutine pair.
func TestConcurrentProducerConsumer(t *testing.T) {
	const n = 100_000
	r := New[int](1024)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for !r.Push(i) {
				// spin until the consumer drains a slot
			}
		}
	}()

	for i := 0; i < n; i++ {
		var v int
		var ok bool
		for {
			v, ok = r.Pop()
			if ok {
				break
			}
		}
		if v != i {
			t.Fatalf("pop %d: got %d", i, v)
		}
	}
	wg.Wait()
}
