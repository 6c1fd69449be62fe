package delivery

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	kit "dmrelay/internal/transport"
	logx "dmrelay/pkg/logx"
)

// scriptSender returns the scripted errors for a user in order, then nil.
type scriptSender struct {
	mu     sync.Mutex
	script map[string][]error
	calls  []string
}

func (s *scriptSender) SendDirect(ctx context.Context, userID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, userID)
	errs := s.script[userID]
	if len(errs) == 0 {
		return nil
	}
	err := errs[0]
	s.script[userID] = errs[1:]
	return err
}

type sleepLog struct {
	waits []time.Duration
}

func (l *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	l.waits = append(l.waits, d)
	return ctx.Err()
}

type countRecorder struct {
	n      map[Outcome]int
	queued int
	done   int
}

func (r *countRecorder) RecipientsQueued(n int) { r.queued += n }

func (r *countRecorder) RecipientDone() { r.done++ }

func (r *countRecorder) RecordOutcome(o Outcome) {
	if r.n == nil {
		r.n = map[Outcome]int{}
	}
	r.n[o]++
}

func recipients(ids ...string) []Recipient {
	out := make([]Recipient, 0, len(ids))
	for _, id := range ids {
		out = append(out, Recipient{ID: id, Tag: "user-" + id})
	}
	return out
}

func newTestProcessor(sl *sleepLog) *Processor {
	p := DefaultPacer()
	p.Int64N = func(n int64) int64 { return 0 }
	return &Processor{Pacer: p, Sleep: sl.sleep}
}

func TestProcessAllSucceed(t *testing.T) {
	sl := &sleepLog{}
	proc := newTestProcessor(sl)
	snd := &scriptSender{script: map[string][]error{}}

	stats, err := proc.Process(context.Background(), "guild", snd, recipients("a", "b", "c"), "hi")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := Stats{Total: 3, Success: 3}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if !reflect.DeepEqual(snd.calls, []string{"a", "b", "c"}) {
		t.Fatalf("send order = %v", snd.calls)
	}
	if len(sl.waits) != 3 {
		t.Fatalf("expected one wait per recipient, got %v", sl.waits)
	}
}

func TestProcessDMsClosedThenSuccess(t *testing.T) {
	sl := &sleepLog{}
	proc := newTestProcessor(sl)
	snd := &scriptSender{script: map[string][]error{
		"a": {codedErr{code: 50007, status: 403}},
	}}
	rec := &countRecorder{}
	proc.Recorder = rec

	stats, err := proc.Process(context.Background(), "guild", snd, recipients("a", "b"), "hi")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := Stats{Total: 2, Success: 1, Failed: 1, DMClosed: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if rec.n[DMsDisabled] != 1 || rec.n[Success] != 1 || rec.done != 2 || rec.queued != 2 {
		t.Fatalf("recorder = %v", rec.n)
	}
	if sl.waits[0] != DefaultBaseDelay {
		t.Fatalf("failure wait = %v, want %v", sl.waits[0], DefaultBaseDelay)
	}
}

func TestProcessRateLimitedNoRetry(t *testing.T) {
	sl := &sleepLog{}
	proc := newTestProcessor(sl)
	snd := &scriptSender{script: map[string][]error{
		"a": {kit.ErrRateLimited},
	}}

	stats, err := proc.Process(context.Background(), "guild", snd, recipients("a", "b"), "hi")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := Stats{Total: 2, Success: 1, Failed: 1, RateLimited: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if stats.Success+stats.Failed != stats.Total {
		t.Fatalf("invariant broken: %+v", stats)
	}
	if !reflect.DeepEqual(snd.calls, []string{"a", "b"}) {
		t.Fatalf("rate-limited recipient must not be re-attempted: %v", snd.calls)
	}
	if sl.waits[0] != DefaultRateLimitWait {
		t.Fatalf("rate limit wait = %v", sl.waits[0])
	}
}

func TestProcessRateLimitedRetrySameRecipient(t *testing.T) {
	sl := &sleepLog{}
	proc := newTestProcessor(sl)
	proc.RateLimitRetries = 1
	snd := &scriptSender{script: map[string][]error{
		"a": {codedErr{code: 40003, status: 403}},
	}}

	stats, err := proc.Process(context.Background(), "guild", snd, recipients("a", "b"), "hi")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := Stats{Total: 2, Success: 2, RateLimited: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if !reflect.DeepEqual(snd.calls, []string{"a", "a", "b"}) {
		t.Fatalf("send order = %v", snd.calls)
	}
}

func TestProcessContinuesAfterOtherFailures(t *testing.T) {
	sl := &sleepLog{}
	proc := newTestProcessor(sl)
	snd := &scriptSender{script: map[string][]error{
		"a": {errors.New("boom")},
		"b": {codedErr{code: 10007, status: 404}},
	}}

	stats, err := proc.Process(context.Background(), "guild", snd, recipients("a", "b", "c"), "hi")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := Stats{Total: 3, Success: 1, Failed: 2}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}

func TestProcessStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	proc := &Processor{
		Pacer: DefaultPacer(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	snd := &scriptSender{script: map[string][]error{}}

	stats, err := proc.Process(ctx, "guild", snd, recipients("a", "b", "c"), "hi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if stats.Success != 1 || len(snd.calls) != 1 {
		t.Fatalf("expected exactly one send before cancel: stats=%+v calls=%v", stats, snd.calls)
	}
}

func TestProcessLogsEveryAttempt(t *testing.T) {
	var buf bytes.Buffer
	sl := &sleepLog{}
	proc := newTestProcessor(sl)
	proc.Log = logx.NewWriter(&buf, "debug")
	snd := &scriptSender{script: map[string][]error{"b": {codedErr{code: 50007}}}}

	if _, err := proc.Process(context.Background(), "My Guild", snd, recipients("a", "b"), "hi"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"pos":"1/2"`, `"pos":"2/2"`, `"outcome":"dms_disabled"`, `"community":"My Guild"`, `"recipient":"user-a"`, "delivery finished"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %s:\n%s", want, out)
		}
	}
}
