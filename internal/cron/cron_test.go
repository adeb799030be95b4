package cron

import (
	"context"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		expr string
		ok   bool
	}{
		{"0 * * * *", true},
		{"*/5 * * * *", true},
		{"@hourly", true},
		{"every hour", false},
		{"61 * * * *", false},
	}
	for _, tt := range tests {
		err := Validate(tt.expr)
		if (err == nil) != tt.ok {
			t.Errorf("Validate(%q) = %v, want ok=%v", tt.expr, err, tt.ok)
		}
	}
}

func TestNext(t *testing.T) {
	ref := time.Date(2026, 3, 1, 10, 15, 30, 0, time.UTC)
	got, err := Next("0 * * * *", ref)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next(hourly, %v) = %v, want %v", ref, got, want)
	}
}

func TestEveryRejectsBadSchedule(t *testing.T) {
	err := Every(context.Background(), Job{Name: "bad", Schedule: "nope", Run: func(context.Context) {}})
	if err == nil {
		t.Error("Every should reject an invalid schedule")
	}
}

func TestEveryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Every(ctx, Job{Name: "sweep", Schedule: "0 0 1 1 *", Run: func(context.Context) {}})
	}()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Every = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Every did not return after cancel")
	}
}

func TestRunSafeRecovers(t *testing.T) {
	runSafe(context.Background(), Job{Name: "boom", Run: func(context.Context) { panic("x") }})
}
