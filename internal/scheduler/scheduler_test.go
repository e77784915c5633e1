package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testScheduler() *Scheduler {
	return New(Options{
		Interval:        5 * time.Minute,
		WindowOpenHour:  9,
		WindowCloseHour: 16,
		Location:        time.UTC,
	}, zerolog.Nop())
}

func TestInWindow(t *testing.T) {
	s := testScheduler()

	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		// 2026-08-27 is a Thursday, 2026-08-29 a Saturday
		{"工作日开盘前", time.Date(2026, 8, 27, 8, 59, 0, 0, time.UTC), false},
		{"工作日开盘时刻", time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC), true},
		{"工作日盘中", time.Date(2026, 8, 27, 12, 30, 0, 0, time.UTC), true},
		{"工作日收盘前一分钟", time.Date(2026, 8, 27, 15, 59, 0, 0, time.UTC), true},
		{"工作日收盘时刻", time.Date(2026, 8, 27, 16, 0, 0, 0, time.UTC), false},
		{"周六盘中", time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC), false},
		{"周日盘中", time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC), false},
	}

	for _, tc := range cases {
		if got := s.InWindow(tc.t); got != tc.want {
			t.Errorf("%s: InWindow(%s) = %v, 期望 %v", tc.name, tc.t, got, tc.want)
		}
	}
}

func TestNextTickAlignment(t *testing.T) {
	s := testScheduler()

	now := time.Date(2026, 8, 27, 10, 2, 13, 0, time.UTC)
	next := s.nextTick(now)
	if want := time.Date(2026, 8, 27, 10, 5, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("期望对齐到 %s, 实际 %s", want, next)
	}

	// exactly on a boundary advances to the next bucket
	onBoundary := time.Date(2026, 8, 27, 10, 5, 0, 0, time.UTC)
	next = s.nextTick(onBoundary)
	if want := time.Date(2026, 8, 27, 10, 10, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("边界时刻应推进到下一桶, 实际 %s", next)
	}
}

func TestFireDropsOverlappingCycle(t *testing.T) {
	s := testScheduler()

	calls := 0
	tick := func(ctx context.Context, bucket time.Time, trigger string) error {
		calls++
		return nil
	}

	s.running.Store(true)
	s.fire(context.Background(), tick, time.Now(), TriggerInterval)
	if calls != 0 {
		t.Fatal("周期进行中时新触发应被丢弃")
	}

	s.running.Store(false)
	s.fire(context.Background(), tick, time.Now(), TriggerInterval)
	if calls != 1 {
		t.Fatalf("空闲时触发应执行, 实际 %d 次", calls)
	}
	if s.running.Load() {
		t.Fatal("周期结束后 running 应复位")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := New(Options{
		Interval:        50 * time.Millisecond,
		WindowOpenHour:  0,
		WindowCloseHour: 23,
		Location:        time.UTC,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err := s.Run(ctx, func(ctx context.Context, bucket time.Time, trigger string) error {
		return nil
	})
	if err == nil {
		t.Fatal("上下文取消后 Run 应返回错误")
	}
}
