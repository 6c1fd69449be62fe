package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"dmrelay/internal/delivery"
	kit "dmrelay/internal/transport"
	"dmrelay/internal/transport/transporttest"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newSession(p *transporttest.Platform) *Session {
	return &Session{
		Connector: p,
		Processor: &delivery.Processor{Pacer: delivery.DefaultPacer(), Sleep: noSleep},
	}
}

func basePlatform() *transporttest.Platform {
	p := transporttest.New()
	p.AddAccount("good", transporttest.Account{
		Self:   kit.User{ID: "self", Tag: "relay#0001", Bot: true},
		Guilds: []string{"g1"},
	})
	p.AddGuild(transporttest.Guild{
		Community: kit.Community{ID: "g1", Name: "Guild One"},
		Members: []kit.Member{
			transporttest.Human("a", "alice"),
			transporttest.Bot("b0", "somebot"),
			transporttest.Human("self", "relay"),
			transporttest.Human("b", "bob"),
			transporttest.Human("c", "carol"),
		},
	})
	return p
}

func TestRunAllSucceed(t *testing.T) {
	p := basePlatform()
	rep := newSession(p).Run(context.Background(), Target{Token: "good", GuildID: "g1", Message: "hello"})

	if rep.Err != nil {
		t.Fatalf("unexpected err: %v", rep.Err)
	}
	if rep.Stats == nil {
		t.Fatal("expected stats")
	}
	want := delivery.Stats{Total: 3, Success: 3}
	if *rep.Stats != want {
		t.Fatalf("stats = %+v, want %+v", *rep.Stats, want)
	}
	sends := p.Sends()
	order := []string{"a", "b", "c"}
	if len(sends) != len(order) {
		t.Fatalf("sends = %+v", sends)
	}
	for i, s := range sends {
		if s.UserID != order[i] || s.Text != "hello" {
			t.Fatalf("send %d = %+v, want user %s", i, s, order[i])
		}
	}
	if opened, closed := p.Connections(); opened != 1 || closed != 1 {
		t.Fatalf("connections opened=%d closed=%d", opened, closed)
	}
	if rep.Result() != "completed" || rep.Reached != StateDelivering {
		t.Fatalf("result=%s reached=%s", rep.Result(), rep.Reached)
	}
	if rep.Community.Name != "Guild One" {
		t.Fatalf("community = %+v", rep.Community)
	}
}

func TestRunDMsClosed(t *testing.T) {
	p := transporttest.New()
	p.AddAccount("good", transporttest.Account{Self: kit.User{ID: "self"}, Guilds: []string{"g1"}})
	p.AddGuild(transporttest.Guild{
		Community: kit.Community{ID: "g1", Name: "G"},
		Members:   []kit.Member{transporttest.Human("a", "alice"), transporttest.Human("b", "bob")},
	})
	p.FailSends("a", kit.ErrDMsDisabled)

	rep := newSession(p).Run(context.Background(), Target{Token: "good", GuildID: "g1", Message: "m"})
	want := delivery.Stats{Total: 2, Success: 1, Failed: 1, DMClosed: 1}
	if rep.Stats == nil || *rep.Stats != want {
		t.Fatalf("stats = %+v, want %+v", rep.Stats, want)
	}
}

func TestRunCommunityNotFound(t *testing.T) {
	p := basePlatform()
	rep := newSession(p).Run(context.Background(), Target{Token: "good", GuildID: "missing", Message: "m"})

	if !errors.Is(rep.Err, ErrCommunityNotFound) {
		t.Fatalf("err = %v, want ErrCommunityNotFound", rep.Err)
	}
	if rep.Stats != nil {
		t.Fatalf("stats must not be created: %+v", rep.Stats)
	}
	if len(p.Sends()) != 0 {
		t.Fatalf("no sends expected, got %+v", p.Sends())
	}
	if _, closed := p.Connections(); closed != 1 {
		t.Fatalf("connection must be torn down, closed=%d", closed)
	}
	if rep.Result() != "community_not_found" {
		t.Fatalf("result = %s", rep.Result())
	}
}

func TestRunAuthFailure(t *testing.T) {
	p := basePlatform()
	rep := newSession(p).Run(context.Background(), Target{Token: "bad", GuildID: "g1", Message: "m"})

	if !errors.Is(rep.Err, kit.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", rep.Err)
	}
	if opened, closed := p.Connections(); opened != 0 || closed != 0 {
		t.Fatalf("no connection expected, opened=%d closed=%d", opened, closed)
	}
	if rep.Result() != "connect_failed" {
		t.Fatalf("result = %s", rep.Result())
	}
}

func TestRunMemberFetchFailure(t *testing.T) {
	p := transporttest.New()
	p.AddAccount("good", transporttest.Account{Self: kit.User{ID: "self"}, Guilds: []string{"g1"}})
	p.AddGuild(transporttest.Guild{Community: kit.Community{ID: "g1"}, MembersErr: errors.New("missing intent")})

	rep := newSession(p).Run(context.Background(), Target{Token: "good", GuildID: "g1", Message: "m"})
	if !errors.Is(rep.Err, ErrMemberFetch) {
		t.Fatalf("err = %v, want ErrMemberFetch", rep.Err)
	}
	if _, closed := p.Connections(); closed != 1 {
		t.Fatalf("connection must be torn down, closed=%d", closed)
	}
}

func TestRunRecoversPanicAndTearsDown(t *testing.T) {
	p := transporttest.New()
	p.AddAccount("good", transporttest.Account{Self: kit.User{ID: "self"}, Guilds: []string{"g1"}})
	p.AddGuild(transporttest.Guild{Community: kit.Community{ID: "g1"}, MembersPanic: "kaboom"})

	rep := newSession(p).Run(context.Background(), Target{Token: "good", GuildID: "g1", Message: "m"})
	if !errors.Is(rep.Err, ErrPanic) {
		t.Fatalf("err = %v, want ErrPanic", rep.Err)
	}
	if _, closed := p.Connections(); closed != 1 {
		t.Fatalf("connection must be torn down after panic, closed=%d", closed)
	}
	if rep.Result() != "panicked" {
		t.Fatalf("result = %s", rep.Result())
	}
}

func TestRunDryRun(t *testing.T) {
	p := basePlatform()
	s := newSession(p)
	s.DryRun = true
	rep := s.Run(context.Background(), Target{Token: "good", GuildID: "g1", Message: "m"})
	if rep.Err != nil || rep.Stats != nil {
		t.Fatalf("dry run: err=%v stats=%+v", rep.Err, rep.Stats)
	}
	if len(p.Sends()) != 0 {
		t.Fatalf("dry run must not send: %+v", p.Sends())
	}
}

func TestEligible(t *testing.T) {
	t.Parallel()
	got := Eligible([]kit.Member{
		transporttest.Human("1", "one"),
		transporttest.Bot("2", "two"),
		transporttest.Human("me", "self"),
		transporttest.Human("", "blank"),
		transporttest.Human("3", "three"),
	}, "me")
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("Eligible = %+v", got)
	}
}

func TestTargetLabel(t *testing.T) {
	t.Parallel()
	if got := (Target{GuildID: "123"}).Label(); got != "123" {
		t.Fatalf("Label() = %q", got)
	}
	if got := (Target{GuildID: "123", Name: " news "}).Label(); got != "news" {
		t.Fatalf("Label() = %q", got)
	}
}
