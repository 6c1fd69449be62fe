// Package transporttest provides an in-memory platform for tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"

	kit "dmrelay/internal/transport"
)

// Guild is one community known to the fake platform.
type Guild struct {
	Community kit.Community
	Members   []kit.Member
	// MembersErr is returned by Conn.Members when set.
	MembersErr error
	// MembersPanic makes Conn.Members panic with this value when non-nil.
	MembersPanic any
}

// Account is what a token authenticates as.
type Account struct {
	Self kit.User
	// Guilds are the community IDs visible to this account.
	Guilds []string
}

// Platform is a fake kit.Connector. Zero value is unusable; use New.
type Platform struct {
	mu       sync.Mutex
	accounts map[string]Account
	guilds   map[string]*Guild
	// sendErr maps userID to the errors returned for successive sends.
	sendErr map[string][]error

	sends  []Send
	opened int
	closed int
}

// Send records one SendDirect call.
type Send struct {
	Token  string
	UserID string
	Text   string
}

func New() *Platform {
	return &Platform{
		accounts: map[string]Account{},
		guilds:   map[string]*Guild{},
		sendErr:  map[string][]error{},
	}
}

func (p *Platform) AddAccount(token string, a Account) {
	p.mu.Lock()
	p.accounts[token] = a
	p.mu.Unlock()
}

func (p *Platform) AddGuild(g Guild) {
	p.mu.Lock()
	cp := g
	p.guilds[g.Community.ID] = &cp
	p.mu.Unlock()
}

// FailSends scripts errors for successive sends to userID.
func (p *Platform) FailSends(userID string, errs ...error) {
	p.mu.Lock()
	p.sendErr[userID] = append(p.sendErr[userID], errs...)
	p.mu.Unlock()
}

// Sends returns a copy of every send attempt in call order.
func (p *Platform) Sends() []Send {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Send(nil), p.sends...)
}

// Connections returns how many connections were opened and closed.
func (p *Platform) Connections() (opened, closed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened, p.closed
}

func (p *Platform) Connect(ctx context.Context, token string) (kit.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[token]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", kit.ErrAuth)
	}
	p.opened++
	return &conn{p: p, token: token, account: a}, nil
}

type conn struct {
	p       *Platform
	token   string
	account Account
	closed  bool
}

func (c *conn) Self() kit.User { return c.account.Self }

func (c *conn) Communities(ctx context.Context) ([]kit.Community, error) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	out := make([]kit.Community, 0, len(c.account.Guilds))
	for _, id := range c.account.Guilds {
		if g := c.p.guilds[id]; g != nil {
			out = append(out, g.Community)
		}
	}
	return out, nil
}

func (c *conn) Members(ctx context.Context, communityID string) ([]kit.Member, error) {
	c.p.mu.Lock()
	g := c.p.guilds[communityID]
	c.p.mu.Unlock()
	if g == nil {
		return nil, fmt.Errorf("unknown guild %s", communityID)
	}
	if g.MembersPanic != nil {
		panic(g.MembersPanic)
	}
	if g.MembersErr != nil {
		return nil, g.MembersErr
	}
	return append([]kit.Member(nil), g.Members...), nil
}

func (c *conn) SendDirect(ctx context.Context, userID, text string) error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	c.p.sends = append(c.p.sends, Send{Token: c.token, UserID: userID, Text: text})
	errs := c.p.sendErr[userID]
	if len(errs) == 0 {
		return nil
	}
	c.p.sendErr[userID] = errs[1:]
	return errs[0]
}

func (c *conn) Close() error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.p.closed++
	}
	return nil
}

// Human builds a non-bot member.
func Human(id, tag string) kit.Member { return kit.Member{User: kit.User{ID: id, Tag: tag}} }

// Bot builds a bot member.
func Bot(id, tag string) kit.Member { return kit.Member{User: kit.User{ID: id, Tag: tag, Bot: true}} }
