package delivery

import (
	"context"
	"strconv"
	"time"

	logx "dmrelay/pkg/logx"
)

// Recipient is one eligible member of a community.
type Recipient struct {
	ID  string
	Tag string
}

// Sender delivers a direct message to one user.
type Sender interface {
	SendDirect(ctx context.Context, userID, text string) error
}

// Recorder observes the queue size, every classified attempt and every
// finished recipient.
type Recorder interface {
	RecipientsQueued(n int)
	RecordOutcome(o Outcome)
	RecipientDone()
}

// Processor walks a recipient list strictly in order. It is safe to share
// across sessions: all per-run state lives in Process.
type Processor struct {
	Pacer Pacer
	// RateLimitRetries is how many extra attempts a rate-limited recipient gets
	// after waiting. 0 moves on to the next recipient.
	RateLimitRetries int

	Log      logx.Logger
	Recorder Recorder

	// Sleep waits d or until ctx is done. Defaults to a timer wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Process sends message to every recipient and returns the final Stats.
// A non-nil error means ctx ended the run early; the Stats are partial.
func (p *Processor) Process(ctx context.Context, community string, send Sender, recipients []Recipient, message string) (Stats, error) {
	log := p.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("community", community))
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	start := time.Now()
	stats := Stats{Total: len(recipients)}
	if p.Recorder != nil {
		p.Recorder.RecipientsQueued(stats.Total)
	}
	var runErr error

	for i, r := range recipients {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		pos := strconv.Itoa(i+1) + "/" + strconv.Itoa(stats.Total)
		before := stats.Processed()
		err := p.deliver(ctx, log, sleep, &stats, send, r, pos, message)
		if p.Recorder != nil && stats.Processed() > before {
			p.Recorder.RecipientDone()
		}
		if err != nil {
			runErr = err
			break
		}
	}

	fields := []logx.Field{
		logx.Int("total", stats.Total),
		logx.Int("success", stats.Success),
		logx.Int("failed", stats.Failed),
		logx.Int("dm_closed", stats.DMClosed),
		logx.Int("rate_limited", stats.RateLimited),
		logx.Duration("took", time.Since(start)),
	}
	if runErr != nil {
		log.Warn("delivery interrupted", append(fields, logx.Bool("interrupted", true), logx.Err(runErr))...)
	} else {
		log.Info("delivery finished", fields...)
	}
	return stats, runErr
}

// deliver runs the attempt loop for one recipient. It only returns an error
// when ctx is done.
func (p *Processor) deliver(ctx context.Context, log logx.Logger, sleep func(context.Context, time.Duration) error, stats *Stats, send Sender, r Recipient, pos, message string) error {
	for attempt := 0; ; attempt++ {
		err := send.SendDirect(ctx, r.ID, message)
		if err != nil && ctx.Err() != nil {
			// Shutdown, not a delivery failure.
			return ctx.Err()
		}
		o := Classify(err)
		stats.Record(o)
		if p.Recorder != nil {
			p.Recorder.RecordOutcome(o)
		}
		logAttempt(log, pos, r, o, attempt, err)

		if o == Success {
			return sleep(ctx, p.Pacer.AfterSuccess())
		}
		if err := sleep(ctx, p.Pacer.AfterFailure(o)); err != nil {
			if !o.Terminal() {
				stats.RecordExhausted()
			}
			return err
		}
		if o.Terminal() {
			return nil
		}
		if attempt >= p.RateLimitRetries {
			stats.RecordExhausted()
			log.Warn("rate limit retries exhausted; skipping recipient",
				logx.String("pos", pos),
				logx.String("recipient", r.Tag),
				logx.String("recipient_id", r.ID),
				logx.Int("attempts", attempt+1),
			)
			return nil
		}
	}
}

func logAttempt(log logx.Logger, pos string, r Recipient, o Outcome, attempt int, err error) {
	fields := []logx.Field{
		logx.String("pos", pos),
		logx.String("recipient", r.Tag),
		logx.String("recipient_id", r.ID),
		logx.String("outcome", o.String()),
	}
	if attempt > 0 {
		fields = append(fields, logx.Int("attempt", attempt+1))
	}
	switch o {
	case Success:
		log.Info("message sent", fields...)
	case DMsDisabled:
		log.Warn("recipient has direct messages closed", fields...)
	case RecipientUnavailable:
		log.Warn("recipient not found or no longer in the community", fields...)
	case RateLimited:
		log.Warn("rate limited; waiting before continuing", fields...)
	default:
		log.Error("message send failed", append(fields, logx.Err(err))...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
