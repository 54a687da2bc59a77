package buffer

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_PushPop(t *testing.T) {
	q := New[int](10)

	for i := 0; i < 5; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}
	if q.Len() != 5 {
		t.Errorf("Len() = %d, want 5", q.Len())
	}

	for i := 0; i < 5; i++ {
		got, ok := q.TryPop()
		if !ok || got != i {
			t.Errorf("TryPop() = %d, %v; want %d, true", got, ok, i)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("TryPop on empty queue returned true")
	}
}

func TestQueue_Grows(t *testing.T) {
	q := New[int](4)

	for i := 0; i < 100; i++ {
		q.Push(i)
	}

	stats := q.Stats()
	if stats.Depth != 100 {
		t.Errorf("Depth = %d, want 100", stats.Depth)
	}
	if stats.Grown < 3 {
		t.Errorf("Grown = %d, want at least 3", stats.Grown)
	}

	for i := 0; i < 100; i++ {
		if got, _ := q.TryPop(); got != i {
			t.Fatalf("item %d = %d, order lost across growth", i, got)
		}
	}
}

func TestQueue_GrowAfterWrap(t *testing.T) {
	q := New[int](5)

	q.Push(1)
	q.Push(2)
	q.Push(3)
	q.TryPop()
	q.TryPop()
	for i := 4; i <= 8; i++ {
		q.Push(i)
	}

	for _, want := range []int{3, 4, 5, 6, 7, 8} {
		got, ok := q.TryPop()
		if !ok || got != want {
			t.Fatalf("TryPop() = %d, %v; want %d", got, ok, want)
		}
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := New[string](2)
	got := make(chan string, 1)

	go func() {
		v, ok := q.Pop()
		if ok {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push("ess0")

	select {
	case v := <-got:
		if v != "ess0" {
			t.Errorf("Pop() = %q, want ess0", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on Push")
	}
}

func TestQueue_Close(t *testing.T) {
	q := New[int](10)
	q.Push(1)
	q.Close()

	if q.Push(2) {
		t.Error("Push after Close returned true")
	}
	if v, ok := q.Pop(); !ok || v != 1 {
		t.Errorf("Pop() = %d, %v; want queued item after Close", v, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop on closed, drained queue returned true")
	}
	if batch := q.WaitBatch(10); batch != nil {
		t.Errorf("WaitBatch on closed, drained queue = %v, want nil", batch)
	}
}

func TestQueue_CloseWakesWaiters(t *testing.T) {
	q := New[int](10)
	done := make(chan struct{})

	go func() {
		q.WaitBatch(5)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not wake WaitBatch")
	}
}

func TestQueue_PopBatch(t *testing.T) {
	q := New[int](10)
	for i := 0; i < 10; i++ {
		q.Push(i)
	}

	tests := []struct {
		name string
		max  int
		want int
	}{
		{"limited", 4, 4},
		{"rest", 0, 6},
		{"empty", 3, 0},
	}
	next := 0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := q.PopBatch(tt.max)
			if len(batch) != tt.want {
				t.Fatalf("len = %d, want %d", len(batch), tt.want)
			}
			for _, v := range batch {
				if v != next {
					t.Errorf("got %d, want %d", v, next)
				}
				next++
			}
		})
	}
}

func TestQueue_Concurrent(t *testing.T) {
	q := New[int](8)
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(i)
		}
		q.Close()
	}()

	var got []int
	for {
		batch := q.WaitBatch(64)
		if batch == nil {
			break
		}
		got = append(got, batch...)
	}
	wg.Wait()

	if len(got) != n {
		t.Fatalf("received %d items, want %d", len(got), n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("item %d = %d, single producer order lost", i, v)
		}
	}

	stats := q.Stats()
	if stats.Pushed != n || stats.Popped != n {
		t.Errorf("Stats = %+v, want %d pushed and popped", stats, n)
	}
}

func TestNew_MinCapacity(t *testing.T) {
	for _, c := range []int{0, -3} {
		if got := New[int](c).Stats().Capacity; got != 1 {
			t.Errorf("New(%d) capacity = %d, want 1", c, got)
		}
	}
}
