package dlcmanager

import "github.com/dlc-link/dlc-engine/chainiface"

// feeRate applies the fee-rate policy: regtest always funds at 1 sat/vB,
// any other network uses the caller's requested rate or, when zero, the
// manager's configured default. The network tag is read from the chain
// backend on every call rather than cached at construction.
func (m *Manager) feeRate(requested uint64) uint64 {
	if m.chain.Network() == chainiface.NetworkRegtest {
		return 1
	}
	if requested > 0 {
		return requested
	}
	return m.defaultFeeRate
}
