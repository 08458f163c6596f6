package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: time.Millisecond}, zerolog.Nop())

	var ticks atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context) error {
			ticks.Add(1)
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("取消后应返回 context.Canceled: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("取消后应退出循环")
	}
	if ticks.Load() == 0 {
		t.Fatal("应至少执行过一次 tick")
	}
}

func TestRunSurvivesTickErrors(t *testing.T) {
	s := New(Options{Interval: time.Millisecond}, zerolog.Nop())

	var ticks atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = s.Run(ctx, func(ctx context.Context) error {
			ticks.Add(1)
			return errors.New("boom")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	if ticks.Load() < 2 {
		t.Fatalf("tick 失败不应终止循环, 实际 %d 次", ticks.Load())
	}
}

func TestTicksNeverOverlap(t *testing.T) {
	s := New(Options{Interval: time.Millisecond}, zerolog.Nop())

	var running atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = s.Run(ctx, func(ctx context.Context) error {
			if running.Add(1) != 1 {
				t.Error("tick 不应并发执行")
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		})
	}()

	time.Sleep(50 * time.Millisecond)
}

func TestStartupDelayHonoursCancel(t *testing.T) {
	s := New(Options{Interval: time.Millisecond, StartupDelay: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx, func(ctx context.Context) error {
		t.Error("取消后不应执行 tick")
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("应返回 context.Canceled: %v", err)
	}
}

func TestCancelDoesNotAbortInFlightTick(t *testing.T) {
	s := New(Options{Interval: time.Millisecond}, zerolog.Nop())

	entered := make(chan struct{})
	release := make(chan struct{})
	tickCtxDone := make(chan bool, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(tickCtx context.Context) error {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
			tickCtxDone <- tickCtx.Err() != nil
			return nil
		})
	}()

	<-entered
	cancel()
	close(release)

	select {
	case aborted := <-tickCtxDone:
		if aborted {
			t.Fatal("取消循环不应切断进行中的 tick")
		}
	case <-time.After(time.Second):
		t.Fatal("tick 应运行完毕")
	}

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("取消后应返回 context.Canceled: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("取消后应退出循环")
	}
}

func TestNewPanicsOnBadInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("非正的间隔应 panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
