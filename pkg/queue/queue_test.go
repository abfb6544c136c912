package queue

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFIFOOrder(t *testing.T) {
	q := New[int](3)

	// Wrap around the ring more than once
	for round := 0; round < 3; round++ {
		for i := 0; i < 3; i++ {
			if err := q.Put(round*10 + i); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
		}
		if q.Len() != 3 {
			t.Errorf("Expected length 3, got %d", q.Len())
		}
		for i := 0; i < 3; i++ {
			got, err := q.Get()
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != round*10+i {
				t.Errorf("Expected %d, got %d", round*10+i, got)
			}
		}
	}

	if q.Len() != 0 {
		t.Errorf("Expected empty queue, got length %d", q.Len())
	}
	if q.Cap() != 3 {
		t.Errorf("Expected capacity 3, got %d", q.Cap())
	}
}

func TestPutBlocksWhenFull(t *testing.T) {
	q := New[string](1)
	if err := q.Put("first"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = q.Put("second")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Put returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	if got, _ := q.Get(); got != "first" {
		t.Errorf("Expected 'first', got %s", got)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Put did not unblock after Get freed a slot")
	}

	if got, _ := q.Get(); got != "second" {
		t.Errorf("Expected 'second', got %s", got)
	}
}

func TestGetBlocksWhenEmpty(t *testing.T) {
	q := New[int](2)

	result := make(chan int)
	go func() {
		v, _ := q.Get()
		result <- v
	}()

	select {
	case <-result:
		t.Fatal("Get returned while the queue was empty")
	case <-time.After(50 * time.Millisecond):
	}

	_ = q.Put(42)

	select {
	case v := <-result:
		if v != 42 {
			t.Errorf("Expected 42, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock after Put")
	}
}

func TestCloseWakesWaiters(t *testing.T) {
	q := New[int](1)

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Get()
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
	}

	if err := q.Put(1); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Put after Close, got %v", err)
	}
}

func TestCloseKeepsQueuedItems(t *testing.T) {
	q := New[int](2)
	_ = q.Put(1)
	_ = q.Put(2)
	q.Close()

	for _, want := range []int{1, 2} {
		got, err := q.Get()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("Expected %d, got %d", want, got)
		}
	}
	if _, err := q.Get(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed once drained, got %v", err)
	}
}

func TestDrain(t *testing.T) {
	q := New[int](4)
	for i := 0; i < 3; i++ {
		_ = q.Put(i)
	}

	items := q.Drain()
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}
	for i, v := range items {
		if v != i {
			t.Errorf("Expected %d at position %d, got %d", i, i, v)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue after drain, got %d", q.Len())
	}
}

func TestConcurrentProducersConsumers(t *testing.T) {
	const (
		producers   = 4
		consumers   = 3
		perProducer = 250
	)
	q := New[int](8)

	var producerWG sync.WaitGroup
	for p := 0; p < producers; p++ {
		producerWG.Add(1)
		go func(p int) {
			defer producerWG.Done()
			for i := 0; i < perProducer; i++ {
				if err := q.Put(p*perProducer + i); err != nil {
					t.Errorf("Unexpected error: %v", err)
					return
				}
			}
		}(p)
	}

	var mu sync.Mutex
	seen := make(map[int]int)
	var consumerWG sync.WaitGroup
	for c := 0; c < consumers; c++ {
		consumerWG.Add(1)
		go func() {
			defer consumerWG.Done()
			for {
				v, err := q.Get()
				if err != nil {
					return
				}
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}

	producerWG.Wait()
	q.Close()
	consumerWG.Wait()

	total := producers * perProducer
	if len(seen) != total {
		t.Errorf("Expected %d distinct items, got %d", total, len(seen))
	}
	for v, count := range seen {
		if count != 1 {
			t.Errorf("Item %d seen %d times", v, count)
		}
	}
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for zero capacity")
		}
	}()
	New[int](0)
}
