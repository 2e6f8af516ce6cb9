package cell_test

import (
	"sync"
	"testing"

	"opkit/cell"
)

func TestGetSet(t *testing.T) {
	c := cell.New(0)
	if got := c.Get(); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
	c.Set(5)
	if got := c.Get(); got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
}

func TestUpdate(t *testing.T) {
	c := cell.New(1)
	c.Update(func(v int) int { return v + 1 })
	if got := c.Get(); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}

func TestConcurrentUpdate(t *testing.T) {
	c := cell.New(0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Update(func(v int) int { return v + 1 })
		}()
	}
	wg.Wait()
	if got := c.Get(); got != 100 {
		t.Fatalf("got %d, want 100", got)
	}
}

func TestWithLocked(t *testing.T) {
	c := cell.New([]int{1, 2, 3})
	c.WithLocked(func(v *[]int) {
		*v = append(*v, 4)
	})
	got := c.Get()
	if len(got) != 4 || got[3] != 4 {
		t.Fatalf("got %v", got)
	}
}
