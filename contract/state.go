// Package contract defines the tagged-union contract model of spec.md §3:
// one Go struct per lifecycle variant, generalized from the teacher's
// contractcourt.ContractResolver pattern (a small interface implemented by
// a closed, rather than open, set of concrete types).
package contract

// State identifies which variant of the contract DAG a record currently
// occupies. See the package doc comment on Contract for the transition
// diagram.
type State uint8

const (
	StateOffered State = iota
	StateAccepted
	StateSigned
	StateConfirmed
	StatePreClosed
	StateClosed
	StateRefunded
	StateFailedAccept
	StateFailedSign
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateOffered:
		return "offered"
	case StateAccepted:
		return "accepted"
	case StateSigned:
		return "signed"
	case StateConfirmed:
		return "confirmed"
	case StatePreClosed:
		return "pre_closed"
	case StateClosed:
		return "closed"
	case StateRefunded:
		return "refunded"
	case StateFailedAccept:
		return "failed_accept"
	case StateFailedSign:
		return "failed_sign"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is one of the DAG's terminal states, past
// which no further transition occurs.
func (s State) Terminal() bool {
	switch s {
	case StateClosed, StateRefunded, StateRejected, StateFailedAccept, StateFailedSign:
		return true
	default:
		return false
	}
}
