package areq

import (
	"github.com/areq-dev/areq/internal/errcore"
)

// ErrorKind classifies every error the client returns; use KindOf or
// IsKind to branch on it.
type ErrorKind = errcore.Kind

const (
	ErrInvalidURI       = errcore.InvalidURI
	ErrConnect          = errcore.ConnectError
	ErrTLS              = errcore.TLSError
	ErrWrite            = errcore.WriteError
	ErrRead             = errcore.ReadError
	ErrProtocol         = errcore.ProtocolError
	ErrDecode           = errcore.DecodeError
	ErrTimeout          = errcore.Timeout
	ErrTooManyRedirects = errcore.TooManyRedirects
	ErrAuthentication   = errcore.AuthenticationError
	ErrClientClosed     = errcore.PoolClosed
)

// KindOf reports the classification of err, or an unknown kind for
// foreign errors.
var KindOf = errcore.KindOf

// IsKind reports whether err carries kind k anywhere in its chain.
var IsKind = errcore.IsKind
