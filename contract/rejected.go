package contract

// RejectedContract is a terminal state reached when the party that received
// an offer declines it before ever accepting it.
type RejectedContract struct {
	Offered OfferedContract
	Reason  string
}

func (r *RejectedContract) State() State           { return StateRejected }
func (r *RejectedContract) TempContractID() TempID { return r.Offered.TempID }
