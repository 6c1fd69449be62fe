package transport

import (
	"context"
	"errors"
)

var (
	// ErrAuth is returned by Connector.Connect when the credential is rejected.
	ErrAuth = errors.New("authentication failed")

	// Delivery failure signals. Adapters either return these directly or
	// return an error implementing CodedError.
	ErrDMsDisabled          = errors.New("recipient does not accept direct messages")
	ErrRecipientUnavailable = errors.New("recipient unavailable")
	ErrRateLimited          = errors.New("rate limited")
)

// CodedError is implemented by adapter errors that carry a platform error code
// (Discord JSON error codes such as 50007).
type CodedError interface {
	error
	PlatformCode() int
}

// StatusError is implemented by adapter errors that carry an HTTP status.
type StatusError interface {
	error
	HTTPStatus() int
}

type User struct {
	ID  string
	Tag string
	Bot bool
}

type Community struct {
	ID   string
	Name string
}

type Member struct {
	User User
}

// Connector opens one authenticated platform connection.
//
// Connect returns only after the connection reached its ready state, or with
// an error. The returned Conn is owned by the caller and must be closed.
type Connector interface {
	Connect(ctx context.Context, token string) (Conn, error)
}

type Conn interface {
	// Self returns the acting client's own account.
	Self() User
	// Communities lists the communities visible to this connection.
	Communities(ctx context.Context) ([]Community, error)
	// Members returns the full member list of a community, in enumeration order.
	Members(ctx context.Context, communityID string) ([]Member, error)
	SendDirect(ctx context.Context, userID, text string) error
	Close() error
}
