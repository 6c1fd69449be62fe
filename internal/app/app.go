package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"dmrelay/internal/metrics"
	"dmrelay/internal/runtime/supervisor"
	"dmrelay/internal/schedule"
	"dmrelay/internal/session"
	"dmrelay/internal/storage"
	logx "dmrelay/pkg/logx"
)

// App runs one Session per target concurrently and waits for all of them.
type App struct {
	Session *session.Session
	Metrics *metrics.Metrics
	Store   storage.Store
	Log     logx.Logger

	// Schedule delays the start until its next activation. Nil starts now.
	Schedule cron.Schedule
	// Now defaults to time.Now.
	Now func() time.Time

	targets []session.Target
	logs    *logx.Service
	msrv    *metrics.Server
}

// RunAll launches every target and blocks until each session is done.
// Session failures are reported, never returned; zero targets return at once.
// If ctx ends while waiting for the schedule no session is started.
func (a *App) RunAll(ctx context.Context, targets []session.Target) []session.Report {
	log := a.logger()
	now := a.Now
	if now == nil {
		now = time.Now
	}
	if len(targets) == 0 {
		log.Info("no targets configured; nothing to do")
		return nil
	}

	if a.Schedule != nil {
		t0 := now()
		next := schedule.NextAfter(a.Schedule, t0)
		log.Info("waiting for scheduled start", logx.Time("at", next), logx.Duration("in", next.Sub(t0)))
		if _, err := schedule.WaitNext(ctx, a.Schedule, t0); err != nil {
			log.Warn("scheduled start cancelled", logx.Err(err))
			return nil
		}
	}

	start := now()
	runID := fmt.Sprintf("run:%d", start.UnixNano())
	log = log.With(logx.String("run", runID))
	log.Info("run started", logx.Int("targets", len(targets)))

	// Sessions share nothing; one failing never cancels the others.
	sup := supervisor.New(ctx,
		supervisor.WithLogger(log.With(logx.String("comp", "orchestrator"))),
		supervisor.WithCancelOnError(false),
	)

	reports := make([]session.Report, len(targets))
	for i, t := range targets {
		i, t := i, t // per-iteration copies (pre-Go 1.22 loop semantics)
		// Overwritten by Run; stays if the goroutine dies before returning.
		reports[i] = session.Report{Target: t, Reached: session.StateConnecting, Err: session.ErrPanic}
		sup.Go("session."+strconv.Itoa(i), func(ctx context.Context) error {
			log.Info("processing target",
				logx.Int("index", i+1),
				logx.Int("of", len(targets)),
				logx.String("guild", t.GuildID),
			)
			reports[i] = a.Session.Run(ctx, t)
			return nil
		})
	}

	// Sessions end on their own or when ctx is cancelled; Wait must not give up early.
	if err := sup.Wait(context.WithoutCancel(ctx)); err != nil {
		for _, e := range sup.Errors() {
			log.Error("session goroutine failed", logx.Err(e))
		}
	}

	for _, st := range sup.Snapshot() {
		log.Debug("session goroutine stats",
			logx.String("name", st.Name),
			logx.Duration("runtime", st.LastRuntime),
			logx.Int("panics", int(st.Panics)),
			logx.String("last_err", st.LastErr),
		)
	}

	a.record(ctx, runID, now(), reports)
	a.summarize(log, reports, sup.Counters().Started, now().Sub(start))
	return reports
}

func (a *App) record(ctx context.Context, runID string, at time.Time, reports []session.Report) {
	for _, r := range reports {
		result := r.Result()
		a.Metrics.SessionEnded(result)
		if r.Stats != nil {
			// Recipients never reached because of an interrupt.
			if left := r.Stats.Total - r.Stats.Processed(); left > 0 {
				a.Metrics.AddPending(-left)
			}
		}
		if a.Store == nil {
			continue
		}
		// Persist even during shutdown; the summary is the only record kept.
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		err := a.Store.AppendSummary(sctx, summaryOf(runID, at, r))
		cancel()
		if err != nil && !errors.Is(err, storage.ErrDisabled) {
			a.logger().Warn("summary not stored", logx.String("guild", r.Target.GuildID), logx.Err(err))
		}
	}
}

func (a *App) summarize(log logx.Logger, reports []session.Report, started uint64, took time.Duration) {
	completed := 0
	for _, r := range reports {
		if r.Result() == "completed" {
			completed++
		}
	}
	fields := []logx.Field{
		logx.Int("sessions", len(reports)),
		logx.Int("started", int(started)),
		logx.Int("completed", completed),
		logx.Int("failed", len(reports)-completed),
		logx.Duration("took", took),
	}
	if completed == len(reports) {
		log.Info("run finished", fields...)
	} else {
		log.Warn("run finished with failed sessions", fields...)
	}
}

func summaryOf(runID string, at time.Time, r session.Report) storage.Summary {
	s := storage.Summary{
		At:        at.UTC(),
		RunID:     runID,
		Target:    r.Target.Label(),
		GuildID:   r.Target.GuildID,
		Community: r.Community.Name,
		Result:    r.Result(),
		TookMS:    r.Took.Milliseconds(),
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	if r.Stats != nil {
		s.Total = r.Stats.Total
		s.Success = r.Stats.Success
		s.Failed = r.Stats.Failed
		s.RateLimited = r.Stats.RateLimited
		s.DMClosed = r.Stats.DMClosed
	}
	return s
}

func (a *App) logger() logx.Logger {
	if a.Log.IsZero() {
		return logx.Nop()
	}
	return a.Log
}
