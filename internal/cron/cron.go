// Package cron runs maintenance jobs on cron expressions.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Job is a named periodic task.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context)
}

// Validate reports whether expr parses as a cron expression.
func Validate(expr string) error {
	if !gronx.New().IsValid(expr) {
		return fmt.Errorf("invalid cron expression %q", expr)
	}
	return nil
}

// Next returns the first tick of expr strictly after ref.
func Next(expr string, ref time.Time) (time.Time, error) {
	next, err := gronx.NextTickAfter(expr, ref, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("next tick for %q: %w", expr, err)
	}
	return next, nil
}

// Every runs job on each tick of its schedule until ctx is done. Panics in
// the job are recovered and logged.
func Every(ctx context.Context, job Job) error {
	if err := Validate(job.Schedule); err != nil {
		return err
	}
	slog.Info("cron job scheduled", "job", job.Name, "schedule", job.Schedule)

	for {
		next, err := Next(job.Schedule, time.Now())
		if err != nil {
			return err
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		runSafe(ctx, job)
	}
}

func runSafe(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("cron job panicked", "job", job.Name, "panic", r)
		}
	}()
	start := time.Now()
	job.Run(ctx)
	slog.Debug("cron job finished", "job", job.Name, "duration", time.Since(start))
}
