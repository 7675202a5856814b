// Package dlcerr defines the typed error kinds shared by every component of
// the DLC engine, so that callers (HTTP handlers, CLI mains, tests) can
// branch on failure category without string-matching error messages.
package dlcerr

import "fmt"

// Kind classifies an Error into one of the categories the engine's callers
// need to distinguish, per the error handling design.
type Kind uint8

const (
	// KindInvalidParameters indicates the caller supplied parameters that
	// can never succeed, e.g. an unknown contract id.
	KindInvalidParameters Kind = iota
	// KindInvalidState indicates an operation was attempted against a
	// contract or event record in the wrong lifecycle state.
	KindInvalidState
	// KindIO indicates a transport-layer failure talking to a peer.
	KindIO
	// KindBlockchain indicates a failure in the chain-layer interface.
	KindBlockchain
	// KindOracle indicates a failure talking to an attestor.
	KindOracle
	// KindStorage indicates a failure in the remote KV store.
	KindStorage
	// KindSerialization indicates a wire-format encode/decode failure.
	KindSerialization
	// KindCrypto indicates a signature or key-derivation failure.
	KindCrypto
	// KindWallet indicates a failure in the wallet interface.
	KindWallet
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParameters:
		return "invalid-parameters"
	case KindInvalidState:
		return "invalid-state"
	case KindIO:
		return "io"
	case KindBlockchain:
		return "blockchain"
	case KindOracle:
		return "oracle"
	case KindStorage:
		return "storage"
	case KindSerialization:
		return "serialization"
	case KindCrypto:
		return "crypto"
	case KindWallet:
		return "wallet"
	default:
		return "unknown"
	}
}

// Error is the structured error type shared by this module's packages. It
// carries a Kind so callers can decide on a response code (attestor.Server
// maps kinds to HTTP status codes) without parsing the message text.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind wrapping an underlying error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ae, ok := err.(*Error); ok {
		e = ae
	} else {
		return false
	}
	return e.Kind == kind
}
