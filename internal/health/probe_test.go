package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestProbeRunnerReadyWhenAllHealthy(t *testing.T) {
	p := NewProbeRunner(time.Second, 0,
		CheckFunc{Name: "db", Fn: func(context.Context) error { return nil }},
		CheckFunc{Name: "sessions", Fn: func(context.Context) error { return nil }},
	)
	ready, results := p.Ready(context.Background())
	if !ready {
		t.Fatalf("expected ready, got %+v", results)
	}
	if len(results) != 2 || results[0].Name != "db" || results[1].Name != "sessions" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestProbeRunnerUnreadyReportsFailingCheck(t *testing.T) {
	p := NewProbeRunner(time.Second, 0,
		CheckFunc{Name: "db", Fn: func(context.Context) error { return nil }},
		CheckFunc{Name: "sessions", Fn: func(context.Context) error { return errors.New("redis down") }},
	)
	ready, results := p.Ready(context.Background())
	if ready {
		t.Fatal("expected unready")
	}
	if results[1].Healthy || results[1].Error != "redis down" {
		t.Fatalf("unexpected sessions result %+v", results[1])
	}
}

func TestProbeRunnerTimeoutBoundsSlowCheck(t *testing.T) {
	p := NewProbeRunner(20*time.Millisecond, 0,
		CheckFunc{Name: "slow", Fn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)
	start := time.Now()
	ready, _ := p.Ready(context.Background())
	if ready {
		t.Fatal("expected slow check to fail")
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout was not applied")
	}
}

func TestProbeRunnerCachesResults(t *testing.T) {
	var calls atomic.Int32
	p := NewProbeRunner(time.Second, time.Minute,
		CheckFunc{Name: "db", Fn: func(context.Context) error {
			calls.Add(1)
			return nil
		}},
	)
	p.Ready(context.Background())
	p.Ready(context.Background())
	if calls.Load() != 1 {
		t.Fatalf("expected cached second probe, got %d calls", calls.Load())
	}
}
