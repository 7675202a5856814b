package contract

// RefundedContract is the terminal state reached when the refund
// locktime passed with no closing CET ever meeting its attestation
// threshold.
type RefundedContract struct {
	Confirmed ConfirmedContract
}

func (r *RefundedContract) State() State { return StateRefunded }
func (r *RefundedContract) TempContractID() TempID {
	return r.Confirmed.Signed.Accepted.Offered.TempID
}
