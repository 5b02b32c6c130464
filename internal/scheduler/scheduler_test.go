package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	if _, err := New(Options{}, zerolog.Nop()); err == nil {
		t.Fatal("间隔为 0 时应报错")
	}
}

func TestNextTickAligned(t *testing.T) {
	s, err := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 5, 1, 10, 20, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("对齐后的下一次执行时间不正确: %s", got)
	}
	exact := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if got := s.nextTick(exact); !got.Equal(exact.Add(time.Hour)) {
		t.Fatalf("整点时应推迟一个间隔: %s", got)
	}
	if got := s.bucketStart(now); !got.Equal(exact) {
		t.Fatalf("bucketStart 不正确: %s", got)
	}
}

func TestNextTickFree(t *testing.T) {
	s, err := New(Options{Interval: 15 * time.Minute}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 5, 1, 10, 20, 7, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("未对齐时应为 now+interval: %s", got)
	}
	if got := s.bucketStart(now); !got.Equal(now) {
		t.Fatalf("未对齐时 bucketStart 应原样返回: %s", got)
	}
}

func TestRunAppliesTickTimeoutAndStops(t *testing.T) {
	s, err := New(Options{Interval: 10 * time.Millisecond, TickTimeout: 5 * time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(tickCtx context.Context, _ time.Time) error {
			if _, ok := tickCtx.Deadline(); !ok {
				t.Error("tick 应带超时")
			}
			if ticks.Add(1) == 2 {
				cancel()
			}
			<-tickCtx.Done()
			return tickCtx.Err()
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run 应以 context.Canceled 结束: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run 未在取消后退出")
	}
	if ticks.Load() < 2 {
		t.Fatalf("应至少执行两次 tick, 实际 %d", ticks.Load())
	}
}

func TestRunStartupDelayCanceled(t *testing.T) {
	s, err := New(Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, func(context.Context, time.Time) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("启动延迟期间取消应返回 context.Canceled: %v", err)
	}
}
