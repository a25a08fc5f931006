package exception

import (
	"testing"
	"time"
)

func TestSafeGoRecoversPanic(t *testing.T) {
	done := make(chan struct{})
	SafeGo("panicky", func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestSafeGoRunsFunction(t *testing.T) {
	result := make(chan int, 1)
	SafeGo("worker", func() { result <- 7 })

	select {
	case v := <-result:
		if v != 7 {
			t.Fatalf("expected 7, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}
