package contract

// ClosedContract is the terminal success state: the CET has reached
// NB_CONFIRMATIONS and the contract's realised PnL is known.
type ClosedContract struct {
	PreClosed PreClosedContract

	// Pnl is the offering party's realised profit/loss in satoshis,
	// signed: negative means a net loss relative to OfferCollateral.
	Pnl int64
}

func (c *ClosedContract) State() State { return StateClosed }
func (c *ClosedContract) TempContractID() TempID {
	return c.PreClosed.Confirmed.Signed.Accepted.Offered.TempID
}
