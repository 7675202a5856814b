package contract

import (
	"github.com/dlc-link/dlc-engine/dlcwire"
)

// FailedAcceptContract captures an Offered contract whose accept message
// failed verification: OnAccept transitions here instead of Signed,
// re-surfacing the verification error to its caller per spec.md §7.
type FailedAcceptContract struct {
	Offered      OfferedContract
	AcceptMsg    *dlcwire.AcceptDlc
	ErrorMessage string
}

func (f *FailedAcceptContract) State() State           { return StateFailedAccept }
func (f *FailedAcceptContract) TempContractID() TempID { return f.Offered.TempID }

// FailedSignContract captures an Accepted contract whose sign message
// failed verification.
type FailedSignContract struct {
	Accepted     AcceptedContract
	SignMsg      *dlcwire.SignDlc
	ErrorMessage string
}

func (f *FailedSignContract) State() State           { return StateFailedSign }
func (f *FailedSignContract) TempContractID() TempID { return f.Accepted.Offered.TempID }
