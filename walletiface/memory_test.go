package walletiface

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/dlc-link/dlc-engine/dlcerr"
)

func seededWallet(t *testing.T, values ...int64) *Memory {
	t.Helper()
	w := NewMemory(&chaincfg.RegressionNetParams)
	for i, v := range values {
		key, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		w.AddUTXO(Utxo{
			OutPoint: wire.OutPoint{Index: uint32(i)},
			Output:   wire.TxOut{Value: v},
		}, key)
	}
	return w
}

func TestUtxosForAmountLocksSelection(t *testing.T) {
	w := seededWallet(t, 50_000, 50_000)
	ctx := context.Background()

	selected, err := w.UtxosForAmount(ctx, 80_000, 1, true)
	require.NoError(t, err)
	require.Len(t, selected, 2)

	// Both outputs are reserved for the open offer; a second selection
	// has nothing left to draw from.
	_, err = w.UtxosForAmount(ctx, 1_000, 1, false)
	require.Error(t, err)
	require.True(t, dlcerr.Is(err, dlcerr.KindWallet))
}

func TestUtxosForAmountWithoutLock(t *testing.T) {
	w := seededWallet(t, 100_000)
	ctx := context.Background()

	_, err := w.UtxosForAmount(ctx, 60_000, 1, false)
	require.NoError(t, err)

	// Unlocked selection leaves the set available.
	_, err = w.UtxosForAmount(ctx, 60_000, 1, false)
	require.NoError(t, err)
}

func TestUtxosForAmountInsufficient(t *testing.T) {
	w := seededWallet(t, 10_000)

	_, err := w.UtxosForAmount(context.Background(), 20_000, 1, false)
	require.Error(t, err)
	require.True(t, dlcerr.Is(err, dlcerr.KindWallet))
}
