package limiter

import (
	"context"
	"testing"
	"time"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p := New(1)

	t1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); err == nil {
		t.Fatal("second Acquire should block until the first is released")
	}

	t1.Release()

	t2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	t2.Release()
}

func TestUnboundedPoolNeverBlocks(t *testing.T) {
	p := New(0)
	for i := 0; i < 10; i++ {
		ticket, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		defer ticket.Release()
	}
}
