package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	kit "dmrelay/internal/transport"
	logx "dmrelay/pkg/logx"
)

// Gateway close code sent when the token is invalid.
const closeAuthenticationFailed = 4004

// membersPageSize is the maximum page size accepted by the list-members endpoint.
const membersPageSize = 1000

type Config struct {
	// ConnectTimeout bounds the wait for the gateway READY event.
	ConnectTimeout time.Duration
	// SendsPerSec is a floor limiter on the send path (burst 1). <=0 disables it.
	SendsPerSec float64
}

// Connector opens discordgo sessions. It implements kit.Connector.
type Connector struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Connector {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Connector{cfg: cfg, log: log}
}

// Connect authenticates, opens the gateway and waits for READY.
func (c *Connector) Connect(ctx context.Context, token string) (kit.Conn, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", kit.ErrAuth)
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}

	s, err := discordgo.New(token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsDirectMessages
	// Surface 429s to the caller; pacing is decided upstream.
	s.ShouldRetryOnRateLimit = false

	// Reject bad credentials over REST before dialing the gateway.
	if _, err := s.User("@me", discordgo.WithContext(ctx)); err != nil {
		return nil, mapConnectError(err)
	}

	ready := make(chan *discordgo.Ready, 1)
	remove := s.AddHandlerOnce(func(_ *discordgo.Session, r *discordgo.Ready) {
		select {
		case ready <- r:
		default:
		}
	})

	if err := s.Open(); err != nil {
		remove()
		return nil, mapConnectError(err)
	}

	t := time.NewTimer(c.cfg.ConnectTimeout)
	defer t.Stop()

	var r *discordgo.Ready
	select {
	case r = <-ready:
	case <-t.C:
		_ = s.Close()
		return nil, fmt.Errorf("gateway ready not received within %s", c.cfg.ConnectTimeout)
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	}

	conn := &Conn{
		s:        s,
		log:      c.log,
		dmByUser: map[string]string{},
	}
	if r.User != nil {
		conn.self = kit.User{ID: r.User.ID, Tag: r.User.String(), Bot: r.User.Bot}
	}
	for _, g := range r.Guilds {
		if g != nil {
			conn.guildIDs = append(conn.guildIDs, g.ID)
		}
	}
	if c.cfg.SendsPerSec > 0 {
		conn.limiter = rate.NewLimiter(rate.Limit(c.cfg.SendsPerSec), 1)
	}
	c.log.Debug("gateway ready", logx.String("user", conn.self.Tag), logx.Int("guilds", len(conn.guildIDs)))
	return conn, nil
}

// Conn is one open discordgo session. It implements kit.Conn.
type Conn struct {
	s       *discordgo.Session
	log     logx.Logger
	limiter *rate.Limiter

	self     kit.User
	guildIDs []string

	mu       sync.Mutex
	dmByUser map[string]string
	closed   bool
}

func (c *Conn) Self() kit.User { return c.self }

func (c *Conn) Communities(ctx context.Context) ([]kit.Community, error) {
	out := make([]kit.Community, 0, len(c.guildIDs))
	for _, id := range c.guildIDs {
		name := ""
		if c.s.State != nil {
			if g, err := c.s.State.Guild(id); err == nil && g != nil {
				name = g.Name
			}
		}
		// READY only carries unavailable stubs; GUILD_CREATE may not have landed yet.
		if name == "" {
			if g, err := c.s.Guild(id, discordgo.WithContext(ctx)); err == nil && g != nil {
				name = g.Name
			}
		}
		out = append(out, kit.Community{ID: id, Name: name})
	}
	return out, nil
}

func (c *Conn) Members(ctx context.Context, communityID string) ([]kit.Member, error) {
	var (
		out   []kit.Member
		after string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := c.s.GuildMembers(communityID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, wrapError("list members", err)
		}
		for _, m := range page {
			if m == nil || m.User == nil {
				continue
			}
			out = append(out, kit.Member{User: kit.User{ID: m.User.ID, Tag: m.User.String(), Bot: m.User.Bot}})
			after = m.User.ID
		}
		c.log.Debug("members page fetched", logx.String("guild", communityID), logx.Int("page", len(page)), logx.Int("total", len(out)))
		if len(page) < membersPageSize {
			return out, nil
		}
	}
}

func (c *Conn) SendDirect(ctx context.Context, userID, text string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	channelID, err := c.dmChannel(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := c.s.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return wrapError("send dm", err)
	}
	return nil
}

func (c *Conn) dmChannel(ctx context.Context, userID string) (string, error) {
	c.mu.Lock()
	id, ok := c.dmByUser[userID]
	c.mu.Unlock()
	if ok {
		return id, nil
	}
	ch, err := c.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", wrapError("open dm channel", err)
	}
	c.mu.Lock()
	c.dmByUser[userID] = ch.ID
	c.mu.Unlock()
	return ch.ID, nil
}

// Close is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.s.Close()
}

// platformError carries the Discord JSON error code and HTTP status of a failed
// REST call.
type platformError struct {
	op     string
	code   int
	status int
	msg    string
	err    error
}

func (e *platformError) Error() string {
	msg := e.msg
	if msg == "" && e.err != nil {
		msg = e.err.Error()
	}
	return fmt.Sprintf("discord %s: %s (code=%d http=%d)", e.op, msg, e.code, e.status)
}

func (e *platformError) Unwrap() error     { return e.err }
func (e *platformError) PlatformCode() int { return e.code }
func (e *platformError) HTTPStatus() int   { return e.status }

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		retry := time.Duration(0)
		if rl.RateLimit != nil && rl.TooManyRequests != nil {
			retry = rl.RetryAfter
		}
		return fmt.Errorf("discord %s: %w (retry_after=%s)", op, kit.ErrRateLimited, retry)
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		pe := &platformError{op: op, err: err}
		if rest.Response != nil {
			pe.status = rest.Response.StatusCode
		}
		if rest.Message != nil {
			pe.code = rest.Message.Code
			pe.msg = rest.Message.Message
		}
		return pe
	}
	return fmt.Errorf("discord %s: %w", op, err)
}

func mapConnectError(err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", kit.ErrAuth, err)
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code == closeAuthenticationFailed {
		return fmt.Errorf("%w: %v", kit.ErrAuth, err)
	}
	return fmt.Errorf("connect: %w", err)
}
