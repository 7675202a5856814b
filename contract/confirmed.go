package contract

// ConfirmedContract is reached once the funding transaction has
// NB_CONFIRMATIONS confirmations. It carries nothing beyond SignedContract
// — confirmation depth is observed from the chain on demand, not cached —
// but is its own DAG variant per spec.md §3's tagged union.
type ConfirmedContract struct {
	Signed SignedContract
}

func (c *ConfirmedContract) State() State           { return StateConfirmed }
func (c *ConfirmedContract) TempContractID() TempID { return c.Signed.Accepted.Offered.TempID }
