package dlcwire_test

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/dlc-link/dlc-engine/attestor"
	"github.com/dlc-link/dlc-engine/dlcwire"
)

func testAnnouncement(t *testing.T, eventID string) *dlcwire.OracleAnnouncement {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	oracle := attestor.New(priv, attestor.NewMemoryStore(), nil)
	ann, err := oracle.CreateEvent(eventID, 1893456000, "regtest")
	require.NoError(t, err)
	return ann
}

func TestOfferDlcRoundTrip(t *testing.T) {
	ann := testAnnouncement(t, "wire-u1")

	var tempID, chainHash chainhash.Hash
	tempID[0], chainHash[0] = 0x11, 0x22

	offer := &dlcwire.OfferDlc{
		ChainHash:      chainHash,
		TempContractID: tempID,
		ContractInfos: []dlcwire.ContractInfo{{
			TotalCollateral: 200000,
			Threshold:       1,
			Announcements:   []dlcwire.OracleAnnouncement{*ann},
			PayoutCurve:     []dlcwire.PayoutPoint{{Outcome: 0, Payout: 200000}},
		}},
		FundingPubkeyBytes: [33]byte{0x02, 0x01},
		PayoutSPK:          []byte{0x00, 0x14, 0xaa},
		OfferCollateral:    100000,
		FundingInputs: []dlcwire.FundingInput{{
			InputSerialID: 7,
			PrevOut:       wire.OutPoint{Index: 3},
			Sequence:      wire.MaxTxInSequenceNum,
			MaxWitnessLen: 108,
		}},
		ChangeSPK:             []byte{0x00, 0x14, 0xbb},
		FeeRatePerVb:          400,
		ContractMaturityBound: 1893456000,
		ContractTimeout:       1900000000,
	}

	raw := offer.Serialize()
	var back dlcwire.OfferDlc
	require.NoError(t, back.Decode(bytes.NewReader(raw)))
	// Bit-exact: re-serializing the decoded message reproduces the bytes.
	require.Equal(t, raw, back.Serialize())

	require.Equal(t, offer.TempContractID, back.TempContractID)
	require.Equal(t, offer.OfferCollateral, back.OfferCollateral)
	require.Equal(t, "wire-u1", back.ContractInfos[0].EventID())
	require.Equal(t, offer.FundingInputs[0].PrevOut, back.FundingInputs[0].PrevOut)
	require.Equal(t, offer.ContractTimeout, back.ContractTimeout)
}

func TestAcceptDlcRoundTrip(t *testing.T) {
	var tempID chainhash.Hash
	tempID[5] = 0x33

	accept := &dlcwire.AcceptDlc{
		TempContractID:     tempID,
		AcceptCollateral:   100000,
		FundingPubkeyBytes: [33]byte{0x03, 0x04},
		PayoutSPK:          []byte{0x00, 0x14, 0xcc},
		FundingInputs: []dlcwire.FundingInput{{
			InputSerialID: 1,
			PrevOut:       wire.OutPoint{Index: 0},
			Sequence:      wire.MaxTxInSequenceNum,
		}},
		ChangeSPK: []byte{0x00, 0x14, 0xdd},
		CetAdaptorSignatures: dlcwire.CetAdaptorSignatures{
			Sigs: []dlcwire.CetAdaptorSignature{
				{EncryptedSig: bytes.Repeat([]byte{0x01}, 65)},
				{EncryptedSig: bytes.Repeat([]byte{0x02}, 65)},
			},
		},
		RefundSignature: [64]byte{0x09},
	}

	raw := accept.Serialize()
	var back dlcwire.AcceptDlc
	require.NoError(t, back.Decode(bytes.NewReader(raw)))
	require.Equal(t, raw, back.Serialize())
	require.Len(t, back.CetAdaptorSignatures.Sigs, 2)
	require.Equal(t, accept.RefundSignature, back.RefundSignature)
}

func TestSignDlcRoundTrip(t *testing.T) {
	var contractID chainhash.Hash
	contractID[9] = 0x44

	sign := &dlcwire.SignDlc{
		ContractID: contractID,
		CetAdaptorSignatures: dlcwire.CetAdaptorSignatures{
			Sigs: []dlcwire.CetAdaptorSignature{{EncryptedSig: bytes.Repeat([]byte{0x05}, 65)}},
		},
		RefundSignature:   [64]byte{0x06},
		FundingSignatures: [][]byte{bytes.Repeat([]byte{0x07}, 105)},
	}

	raw := sign.Serialize()
	var back dlcwire.SignDlc
	require.NoError(t, back.Decode(bytes.NewReader(raw)))
	require.Equal(t, raw, back.Serialize())
	require.Equal(t, sign.FundingSignatures, back.FundingSignatures)
}

func TestAnnouncementTruncatedInput(t *testing.T) {
	ann := testAnnouncement(t, "wire-trunc")
	raw := ann.Serialize()

	_, err := dlcwire.ParseOracleAnnouncement(raw[:len(raw)-3])
	require.Error(t, err)
}
