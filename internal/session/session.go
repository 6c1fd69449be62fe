package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"dmrelay/internal/delivery"
	kit "dmrelay/internal/transport"
	logx "dmrelay/pkg/logx"
)

var (
	ErrCommunityNotFound = errors.New("community not found")
	ErrMemberFetch       = errors.New("member fetch failed")
	ErrPanic             = errors.New("unexpected session error")
)

// State is a step of the session lifecycle.
type State string

const (
	StateConnecting  State = "connecting"
	StateConnected   State = "connected"
	StateResolving   State = "resolving"
	StateFetching    State = "fetching"
	StateDelivering  State = "delivering"
	StateTearingDown State = "tearing_down"
	StateDone        State = "done"
)

// Target is one configured community run.
type Target struct {
	Name    string // log label only
	Token   string
	GuildID string
	Message string
}

// Label returns Name, or the guild ID when no name is configured.
func (t Target) Label() string {
	if s := strings.TrimSpace(t.Name); s != "" {
		return s
	}
	return t.GuildID
}

// Report describes how a session ended.
type Report struct {
	Target    Target
	Community kit.Community
	// Reached is the last state entered before teardown.
	Reached State
	// Stats is nil unless delivery started.
	Stats *delivery.Stats
	Err   error
	Took  time.Duration
}

// Result is a short label for metrics and storage.
func (r Report) Result() string {
	switch {
	case errors.Is(r.Err, ErrPanic):
		return "panicked"
	case errors.Is(r.Err, context.Canceled), errors.Is(r.Err, context.DeadlineExceeded):
		return "interrupted"
	case r.Reached == StateConnecting:
		return "connect_failed"
	case errors.Is(r.Err, ErrCommunityNotFound):
		return "community_not_found"
	case errors.Is(r.Err, ErrMemberFetch):
		return "fetch_failed"
	case r.Err != nil:
		return "failed"
	default:
		return "completed"
	}
}

// Session drives one connection through connect, resolve, fetch, deliver and
// teardown. It holds no per-run state and may be reused across targets.
type Session struct {
	Connector kit.Connector
	Processor *delivery.Processor
	Log       logx.Logger
	// DryRun enumerates recipients without sending.
	DryRun bool
}

// Run executes the whole lifecycle for target. It never panics and never
// returns an error: failures are logged and reported.
func (s *Session) Run(ctx context.Context, target Target) (rep Report) {
	log := s.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("target", target.Label()), logx.String("guild", target.GuildID))

	start := time.Now()
	rep = Report{Target: target, Reached: StateConnecting}
	defer func() {
		if r := recover(); r != nil {
			rep.Err = fmt.Errorf("%w: %v", ErrPanic, r)
			log.Error("session panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())), logx.String("state", string(rep.Reached)))
		}
		rep.Took = time.Since(start)
		log.Debug("session state", logx.String("state", string(StateDone)), logx.Duration("took", rep.Took))
	}()

	log.Info("connecting")
	conn, err := s.Connector.Connect(ctx, target.Token)
	if err != nil {
		rep.Err = err
		log.Error("connection failed", logx.Err(err))
		return rep
	}
	defer func() {
		log.Debug("session state", logx.String("state", string(StateTearingDown)))
		if err := conn.Close(); err != nil {
			log.Warn("connection close failed", logx.Err(err))
		}
		log.Info("disconnected")
	}()

	rep.Reached = StateConnected
	self := conn.Self()
	log.Info("connected", logx.String("as", self.Tag))
	log.Warn("sending bulk direct messages may violate the platform's terms of service")

	rep.Err = s.run(ctx, log, conn, target, self, &rep)
	return rep
}

func (s *Session) run(ctx context.Context, log logx.Logger, conn kit.Conn, target Target, self kit.User, rep *Report) error {
	rep.Reached = StateResolving
	log.Debug("session state", logx.String("state", string(StateResolving)))
	community, err := resolve(ctx, conn, target.GuildID)
	if err != nil {
		log.Error("community not found; check that the bot is a member and the id is correct", logx.Err(err))
		return err
	}
	rep.Community = community
	label := community.Name
	if label == "" {
		label = community.ID
	}
	log = log.With(logx.String("community", label))

	rep.Reached = StateFetching
	log.Info("fetching members")
	members, err := conn.Members(ctx, community.ID)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrMemberFetch, err)
		log.Error("member fetch failed", logx.Err(err))
		return err
	}
	recipients := Eligible(members, self.ID)
	log.Info("members fetched", logx.Int("members", len(members)), logx.Int("recipients", len(recipients)))

	if s.DryRun {
		log.Info("dry run; no messages sent", logx.Int("recipients", len(recipients)))
		return nil
	}

	rep.Reached = StateDelivering
	log.Debug("session state", logx.String("state", string(StateDelivering)))
	stats, err := s.Processor.Process(ctx, label, conn, recipients, target.Message)
	rep.Stats = &stats
	return err
}

func resolve(ctx context.Context, conn kit.Conn, guildID string) (kit.Community, error) {
	list, err := conn.Communities(ctx)
	if err != nil {
		return kit.Community{}, fmt.Errorf("list communities: %w", err)
	}
	for _, c := range list {
		if c.ID == guildID {
			return c, nil
		}
	}
	return kit.Community{}, fmt.Errorf("%w: %s", ErrCommunityNotFound, guildID)
}

// Eligible filters members down to humans other than self, keeping order.
func Eligible(members []kit.Member, selfID string) []delivery.Recipient {
	out := make([]delivery.Recipient, 0, len(members))
	for _, m := range members {
		if m.User.Bot || m.User.ID == "" || m.User.ID == selfID {
			continue
		}
		out = append(out, delivery.Recipient{ID: m.User.ID, Tag: m.User.Tag})
	}
	return out
}
