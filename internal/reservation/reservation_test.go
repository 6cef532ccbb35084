package reservation

import (
	"context"
	"testing"
	"time"
)

func TestWaitReturnsAfterRelease(t *testing.T) {
	h, r := New()

	done := make(chan error, 1)
	go func() {
		done <- r.Wait(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("reader returned before release")
	case <-time.After(20 * time.Millisecond):
	}

	h.Release()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reader never observed release")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	h, r := New()
	h.Release()
	h.Release()
	if !r.Done() {
		t.Fatal("expected Done() after release")
	}
}

func TestWaitRespectsContext(t *testing.T) {
	_, r := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.Wait(ctx); err != context.Canceled {
		t.Fatalf("Wait() = %v, want context.Canceled", err)
	}
}

func TestMultipleReadersAllWake(t *testing.T) {
	h, r1 := New()
	r2 := h.Reader()

	results := make(chan error, 2)
	for _, r := range []Reader{r1, r2} {
		go func(r Reader) { results <- r.Wait(context.Background()) }(r)
	}

	h.Release()

	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			if err != nil {
				t.Fatalf("Wait() = %v, want nil", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("a reader never woke")
		}
	}
}
