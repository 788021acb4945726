// Package errcore defines the failure kinds surfaced by the client.
// Every error leaving the transport, codec or a middleware is an *Error
// carrying one of these kinds plus the underlying cause.
package errcore

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	InvalidURI Kind = iota + 1
	ConnectError
	TLSError
	WriteError
	ReadError
	ProtocolError
	DecodeError
	Timeout
	TooManyRedirects
	AuthenticationError
	PoolClosed
)

func (k Kind) String() string {
	switch k {
	case InvalidURI:
		return "invalid uri"
	case ConnectError:
		return "connect error"
	case TLSError:
		return "tls error"
	case WriteError:
		return "write error"
	case ReadError:
		return "read error"
	case ProtocolError:
		return "protocol error"
	case DecodeError:
		return "decode error"
	case Timeout:
		return "timeout"
	case TooManyRedirects:
		return "too many redirects"
	case AuthenticationError:
		return "authentication error"
	case PoolClosed:
		return "pool closed"
	default:
		return fmt.Sprintf("unknown error kind %d", int(k))
	}
}

// Error pairs a Kind with its underlying cause.
type Error struct {
	kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.kind.String() + ": " + e.cause.Error()
	}
	return e.kind.String()
}

func (e *Error) Kind() Kind    { return e.kind }
func (e *Error) Unwrap() error { return e.cause }

// New builds an *Error with a fresh cause message.
func New(k Kind, msg string) *Error {
	return &Error{kind: k, cause: errors.New(msg)}
}

func Newf(k Kind, format string, args ...interface{}) *Error {
	return &Error{kind: k, cause: errors.Errorf(format, args...)}
}

// Wrap attaches a kind and context to err. Returns nil if err is nil.
// If err already carries a kind, the original kind is preserved and only
// context is added, so classification done close to the wire survives
// wrapping at outer layers.
func Wrap(k Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	if he := (*Error)(nil); errors.As(err, &he) {
		return errors.Wrap(err, msg)
	}
	return &Error{kind: k, cause: errors.Wrap(err, msg)}
}

// KindOf extracts the kind from err, or 0 when err carries none.
func KindOf(err error) Kind {
	var he *Error
	if errors.As(err, &he) {
		return he.kind
	}
	return 0
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// Transient reports whether err is worth retrying on a fresh connection.
func Transient(err error) bool {
	switch KindOf(err) {
	case ConnectError, ReadError, WriteError, Timeout:
		return true
	}
	return false
}
