package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() *BackoffConfig {
	return &BackoffConfig{
		Strategy:     BackoffConstant,
		BaseInterval: time.Millisecond,
		MaxInterval:  time.Millisecond,
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), 5, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	err := Do(context.Background(), fastConfig(), 3, func(context.Context) error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Errorf("err = %v, want last error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ContextCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &BackoffConfig{
		Strategy:     BackoffConstant,
		BaseInterval: time.Minute,
		MaxInterval:  time.Minute,
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, 5, func(context.Context) error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBackoffIntervals(t *testing.T) {
	cfg := &BackoffConfig{
		Strategy:     BackoffExponential,
		BaseInterval: 100 * time.Millisecond,
		MaxInterval:  time.Second,
	}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second}, // capped at MaxInterval
		{8, time.Second},
	}
	for _, tc := range cases {
		if got := cfg.Interval(tc.attempt); got != tc.want {
			t.Errorf("Interval(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}

	linear := &BackoffConfig{Strategy: BackoffLinear, BaseInterval: 10 * time.Millisecond}
	if got := linear.Interval(3); got != 30*time.Millisecond {
		t.Errorf("linear Interval(3) = %v, want 30ms", got)
	}
}

func TestJitterStaysInRange(t *testing.T) {
	cfg := &BackoffConfig{
		Strategy:     BackoffConstant,
		BaseInterval: 100 * time.Millisecond,
		Jitter:       0.1,
	}
	for i := 0; i < 100; i++ {
		got := cfg.Interval(1)
		if got < 90*time.Millisecond || got > 110*time.Millisecond {
			t.Fatalf("jittered interval %v outside [90ms, 110ms]", got)
		}
	}
}
