package contract_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/dlc-link/dlc-engine/attestor"
	"github.com/dlc-link/dlc-engine/contract"
	"github.com/dlc-link/dlc-engine/dlcwire"
)

// testOffered builds an Offered contract with a real announcement so the
// embedded oracle types survive their binary round trip.
func testOffered(t *testing.T) *contract.OfferedContract {
	t.Helper()

	oraclePriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	oracle := attestor.New(oraclePriv, attestor.NewMemoryStore(), nil)
	ann, err := oracle.CreateEvent("serialize-u1", 1893456000, "regtest")
	require.NoError(t, err)

	fundingPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	var tempID chainhash.Hash
	tempID[0] = 0xaa

	return &contract.OfferedContract{
		TempID:    tempID,
		IsOfferer: true,
		ContractInfos: []dlcwire.ContractInfo{{
			TotalCollateral: 200000,
			Threshold:       1,
			Announcements:   []dlcwire.OracleAnnouncement{*ann},
			PayoutCurve: []dlcwire.PayoutPoint{
				{Outcome: 0, Payout: 200000},
				{Outcome: 1, Payout: 0},
			},
		}},
		OfferCollateral:        100000,
		AcceptCollateral:       100000,
		FeeRatePerVb:           1,
		RefundLocktime:         1700000000,
		ProtocolFeeBasisPoints: 100,
		ProtocolFeeDenominator: 100,
		FundingPubkey:          fundingPriv.PubKey(),
		FundingPrivkey:         fundingPriv,
		PayoutSPK:              []byte{0x00, 0x14, 0x01},
		ChangeSPK:              []byte{0x00, 0x14, 0x02},
		FundingInputs: []dlcwire.FundingInput{{
			InputSerialID: 0,
			PrevOut:       wire.OutPoint{Index: 1},
			Sequence:      wire.MaxTxInSequenceNum,
		}},
	}
}

func TestMarshalOfferedRoundTrip(t *testing.T) {
	offered := testOffered(t)

	raw, err := contract.Marshal(offered)
	require.NoError(t, err)
	back, err := contract.Unmarshal(raw)
	require.NoError(t, err)

	got, ok := back.(*contract.OfferedContract)
	require.True(t, ok)
	require.Equal(t, offered.TempID, got.TempID)
	require.True(t, got.IsOfferer)
	require.Equal(t, offered.OfferCollateral, got.OfferCollateral)
	require.Equal(t, offered.ProtocolFeeDenominator, got.ProtocolFeeDenominator)
	require.True(t, got.FundingPubkey.IsEqual(offered.FundingPubkey))
	require.NotNil(t, got.FundingPrivkey)
	require.Equal(t, offered.FundingPrivkey.Serialize(), got.FundingPrivkey.Serialize())
	require.Len(t, got.ContractInfos, 1)
	require.Equal(t, "serialize-u1", got.ContractInfos[0].EventID())
	require.Equal(t, offered.ContractInfos[0].PayoutCurve, got.ContractInfos[0].PayoutCurve)
	require.Len(t, got.FundingInputs, 1)
}

func TestMarshalSignedRoundTrip(t *testing.T) {
	offered := testOffered(t)

	acceptPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	fundingTx := wire.NewMsgTx(2)
	fundingTx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 1}})
	fundingTx.AddTxOut(&wire.TxOut{Value: 200000, PkScript: []byte{0x00, 0x20, 0x03}})

	refundTx := wire.NewMsgTx(2)
	refundTx.LockTime = offered.RefundLocktime
	refundTx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: fundingTx.TxHash()}})

	signed := &contract.SignedContract{
		Accepted: contract.AcceptedContract{
			Offered:             *offered,
			ContractIDValue:     fundingTx.TxHash(),
			AcceptPubkey:        acceptPriv.PubKey(),
			FundingRedeemScript: []byte{0x52, 0x21, 0x01},
			FundingTx:           fundingTx,
			RefundTx:            refundTx,
			AcceptMessage: &dlcwire.AcceptDlc{
				TempContractID:   offered.TempID,
				AcceptCollateral: offered.AcceptCollateral,
			},
		},
		SignMessage: &dlcwire.SignDlc{ContractID: fundingTx.TxHash()},
	}

	raw, err := contract.Marshal(signed)
	require.NoError(t, err)
	back, err := contract.Unmarshal(raw)
	require.NoError(t, err)

	got, ok := back.(*contract.SignedContract)
	require.True(t, ok)
	require.Equal(t, contract.StateSigned, got.State())
	require.Equal(t, signed.Accepted.ContractIDValue, got.Accepted.ContractIDValue)
	require.Equal(t, fundingTx.TxHash(), got.Accepted.FundingTx.TxHash())
	require.Equal(t, refundTx.TxHash(), got.Accepted.RefundTx.TxHash())
	require.True(t, got.Accepted.AcceptPubkey.IsEqual(acceptPriv.PubKey()))
	require.NotNil(t, got.SignMessage)

	id, ok := contract.ContractID(got)
	require.True(t, ok)
	require.Equal(t, signed.Accepted.ContractIDValue, id)
}

func TestMarshalTerminalStates(t *testing.T) {
	offered := testOffered(t)

	rejected := &contract.RejectedContract{Offered: *offered, Reason: "declined"}
	raw, err := contract.Marshal(rejected)
	require.NoError(t, err)
	back, err := contract.Unmarshal(raw)
	require.NoError(t, err)
	require.Equal(t, contract.StateRejected, back.State())
	require.Equal(t, "declined", back.(*contract.RejectedContract).Reason)
	require.True(t, back.State().Terminal())

	failed := &contract.FailedAcceptContract{Offered: *offered, ErrorMessage: "bad sig"}
	raw, err = contract.Marshal(failed)
	require.NoError(t, err)
	back, err = contract.Unmarshal(raw)
	require.NoError(t, err)
	require.Equal(t, contract.StateFailedAccept, back.State())
	require.Equal(t, "bad sig", back.(*contract.FailedAcceptContract).ErrorMessage)
}
