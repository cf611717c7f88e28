package queue

import (
	"sync"
	"testing"
)

func TestQueue_PushAndDrain(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3)

	if q.Len() != 3 {
		t.Errorf("expected len 3, got %d", q.Len())
	}

	items := q.Drain()
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0] != 1 || items[1] != 2 || items[2] != 3 {
		t.Errorf("unexpected order: %v", items)
	}
	if !q.Empty() {
		t.Error("expected empty after drain")
	}
}

func TestQueue_DrainEmpty(t *testing.T) {
	q := New[string]()

	items := q.Drain()
	if len(items) != 0 {
		t.Errorf("expected no items, got %v", items)
	}
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			q.Push(n)
		}(i)
	}
	wg.Wait()

	if q.Len() != 50 {
		t.Errorf("expected 50 items, got %d", q.Len())
	}
}
