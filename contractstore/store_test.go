package contractstore

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/dlc-link/dlc-engine/contract"
	"github.com/dlc-link/dlc-engine/dlcerr"
)

func tempID(b byte) contract.TempID {
	var id chainhash.Hash
	id[0] = b
	return id
}

func TestCreateRefusesDuplicate(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	offered := &contract.OfferedContract{TempID: tempID(1)}
	require.NoError(t, s.Create(ctx, offered))

	err := s.Create(ctx, &contract.OfferedContract{TempID: tempID(1)})
	require.Error(t, err)
	require.True(t, dlcerr.Is(err, dlcerr.KindInvalidParameters))
}

func TestUpdatePromotesOfferedToAccepted(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	offered := &contract.OfferedContract{TempID: tempID(2)}
	require.NoError(t, s.Create(ctx, offered))

	accepted := &contract.AcceptedContract{
		Offered:         *offered,
		ContractIDValue: tempID(9),
	}
	require.NoError(t, s.Update(ctx, accepted))

	// The temporary record is gone, the promoted one is reachable by its
	// funding-txid id.
	_, ok, err := s.Get(ctx, tempID(2))
	require.NoError(t, err)
	require.False(t, ok)

	got, ok, err := s.Get(ctx, tempID(9))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, contract.StateAccepted, got.State())
}

func TestGetByState(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &contract.OfferedContract{TempID: tempID(3)}))
	require.NoError(t, s.Create(ctx, &contract.OfferedContract{TempID: tempID(4)}))
	require.NoError(t, s.Update(ctx, &contract.AcceptedContract{
		Offered:         contract.OfferedContract{TempID: tempID(5)},
		ContractIDValue: tempID(6),
	}))

	offered, err := s.GetByState(ctx, contract.StateOffered)
	require.NoError(t, err)
	require.Len(t, offered, 2)

	accepted, err := s.GetByState(ctx, contract.StateAccepted)
	require.NoError(t, err)
	require.Len(t, accepted, 1)

	closed, err := s.GetByState(ctx, contract.StateClosed)
	require.NoError(t, err)
	require.Empty(t, closed)
}

func TestDeleteTolerant(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &contract.OfferedContract{TempID: tempID(7)}))
	require.NoError(t, s.Delete(ctx, tempID(7)))
	// Deleting an absent record is tolerated.
	require.NoError(t, s.Delete(ctx, tempID(7)))

	_, ok, err := s.Get(ctx, tempID(7))
	require.NoError(t, err)
	require.False(t, ok)
}
