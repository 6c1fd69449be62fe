// Package schedule delays a run until the next activation of a cron
// expression.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse accepts standard 5-field cron ("0 18 * * 5") and descriptors
// ("@daily", "@every 1h"). An empty expression returns (nil, nil): start now.
func Parse(expr string) (cron.Schedule, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return nil, nil
	}
	sched, err := parser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid cron %q: %w", expr, err)
	}
	return sched, nil
}

// NextAfter returns the first activation strictly after now.
func NextAfter(sched cron.Schedule, now time.Time) time.Time {
	if sched == nil {
		return now
	}
	return sched.Next(now)
}

// WaitNext blocks until the next activation of sched or until ctx is done.
// The delay is measured from now, not the wall clock. A nil schedule returns
// immediately; a done ctx always wins over a due activation.
func WaitNext(ctx context.Context, sched cron.Schedule, now time.Time) (time.Time, error) {
	if sched == nil {
		return now, ctx.Err()
	}
	at := sched.Next(now)
	if err := ctx.Err(); err != nil {
		return at, err
	}
	t := time.NewTimer(at.Sub(now))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return at, ctx.Err()
	case <-t.C:
		return at, nil
	}
}
