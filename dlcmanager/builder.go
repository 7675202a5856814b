package dlcmanager

import (
	"context"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/dlc-link/dlc-engine/contract"
	"github.com/dlc-link/dlc-engine/dlcerr"
	"github.com/dlc-link/dlc-engine/dlcwire"
	"github.com/dlc-link/dlc-engine/txbuilder"
	"github.com/dlc-link/dlc-engine/walletiface"
)

// This file is the manager's use of the contract-builder library: every
// transaction and signature here is derived deterministically from the
// offered terms plus the accept message's fields, so that both
// counterparties assemble bit-identical funding, CET and refund
// transactions without ever exchanging them.

// resolveInputs fetches each funding input's previous output from the
// chain, returning the spendable UTXOs and their total value.
func (m *Manager) resolveInputs(ctx context.Context, inputs []dlcwire.FundingInput) ([]walletiface.Utxo, btcutil.Amount, error) {
	utxos := make([]walletiface.Utxo, len(inputs))
	var sum btcutil.Amount
	for i, in := range inputs {
		tx, err := m.chain.GetTx(ctx, in.PrevOut.Hash)
		if err != nil {
			return nil, 0, dlcerr.Wrap(dlcerr.KindBlockchain, err,
				"resolving funding input %s", in.PrevOut)
		}
		if int(in.PrevOut.Index) >= len(tx.TxOut) {
			return nil, 0, dlcerr.New(dlcerr.KindInvalidParameters,
				"funding input %s names a nonexistent output", in.PrevOut)
		}
		out := tx.TxOut[in.PrevOut.Index]
		utxos[i] = walletiface.Utxo{OutPoint: in.PrevOut, Output: *out}
		sum += btcutil.Amount(out.Value)
	}
	return utxos, sum, nil
}

// utxosToWire converts locally-selected UTXOs into the wire form a
// counterparty can resolve and verify.
func utxosToWire(utxos []walletiface.Utxo, firstSerialID uint64) []dlcwire.FundingInput {
	inputs := make([]dlcwire.FundingInput, len(utxos))
	for i, u := range utxos {
		inputs[i] = dlcwire.FundingInput{
			InputSerialID: firstSerialID + uint64(i),
			PrevOut:       u.OutPoint,
			Sequence:      wire.MaxTxInSequenceNum,
			MaxWitnessLen: uint16(txbuilder.P2WKHWitnessSize),
		}
	}
	return inputs
}

// assembleFunding builds the 2-of-2 funding transaction from the offered
// terms and the accepting party's contribution. Each party's change is its
// input sum minus its collateral and its own input fees; a change below
// the dust threshold is dropped by the builder.
func (m *Manager) assembleFunding(ctx context.Context, offered *contract.OfferedContract,
	acceptPub *btcec.PublicKey, acceptChangeSPK []byte,
	acceptInputs []dlcwire.FundingInput) ([]byte, *wire.MsgTx, error) {

	redeemScript, fundingOut, err := txbuilder.FundingScript(
		offered.FundingPubkey, acceptPub, btcutil.Amount(offered.TotalCollateral()))
	if err != nil {
		return nil, nil, dlcerr.Wrap(dlcerr.KindCrypto, err, "building funding script")
	}

	offerUtxos, offerSum, err := m.resolveInputs(ctx, offered.FundingInputs)
	if err != nil {
		return nil, nil, err
	}
	acceptUtxos, acceptSum, err := m.resolveInputs(ctx, acceptInputs)
	if err != nil {
		return nil, nil, err
	}

	feeRate := offered.FeeRatePerVb
	offerChange := offerSum - btcutil.Amount(offered.OfferCollateral) -
		txbuilder.EstimateFee(len(offerUtxos), false, 1, feeRate)
	if offerChange < 0 {
		return nil, nil, dlcerr.New(dlcerr.KindInvalidParameters,
			"offer inputs do not cover collateral plus fees")
	}
	acceptChange := acceptSum - btcutil.Amount(offered.AcceptCollateral) -
		txbuilder.EstimateFee(len(acceptUtxos), false, 1, feeRate)
	if acceptChange < 0 {
		return nil, nil, dlcerr.New(dlcerr.KindInvalidParameters,
			"accept inputs do not cover collateral plus fees")
	}

	fundingTx, err := txbuilder.NewFundingTx(
		txbuilder.FundingTxInputs{Utxos: offerUtxos, ChangeSPK: offered.ChangeSPK, Change: offerChange},
		txbuilder.FundingTxInputs{Utxos: acceptUtxos, ChangeSPK: acceptChangeSPK, Change: acceptChange},
		fundingOut, feeRate,
	)
	if err != nil {
		return nil, nil, dlcerr.Wrap(dlcerr.KindInvalidParameters, err, "assembling funding tx")
	}
	return redeemScript, fundingTx, nil
}

// fundingOutPoint locates the funding output, always the transaction's
// first output by construction.
func fundingOutPoint(fundingTx *wire.MsgTx) wire.OutPoint {
	return wire.OutPoint{Hash: fundingTx.TxHash(), Index: 0}
}

// cetPayouts splits one payout-curve point between the two parties after
// subtracting each party's half of the CET fee, clamping at zero so a
// total-loss outcome doesn't underflow into the winner's output.
func cetPayouts(total, offerPayout, feeRate uint64) (int64, int64) {
	halfFee := txbuilder.CETFee(feeRate) / 2
	offer := int64(offerPayout) - halfFee
	accept := int64(total) - int64(offerPayout) - halfFee
	if offer < 0 {
		offer = 0
	}
	if accept < 0 {
		accept = 0
	}
	return offer, accept
}

// buildCETs derives every CET of the contract: one per payout-curve point
// per contract-info, each spending the funding output.
func buildCETs(offered *contract.OfferedContract, fundingOP wire.OutPoint, acceptPayoutSPK []byte) [][]*wire.MsgTx {
	cets := make([][]*wire.MsgTx, len(offered.ContractInfos))
	for i, info := range offered.ContractInfos {
		cets[i] = make([]*wire.MsgTx, len(info.PayoutCurve))
		for j, point := range info.PayoutCurve {
			offerOut, acceptOut := cetPayouts(info.TotalCollateral, point.Payout, offered.FeeRatePerVb)
			cets[i][j] = txbuilder.BuildCET(fundingOP, offered.PayoutSPK, acceptPayoutSPK, offerOut, acceptOut)
		}
	}
	return cets
}

// buildRefund derives the refund transaction: both collaterals returned,
// each party bearing half the refund fee, locked until RefundLocktime.
func buildRefund(offered *contract.OfferedContract, fundingOP wire.OutPoint, acceptPayoutSPK []byte) *wire.MsgTx {
	halfFee := txbuilder.CETFee(offered.FeeRatePerVb) / 2
	offerOut := int64(offered.OfferCollateral) - halfFee
	acceptOut := int64(offered.AcceptCollateral) - halfFee
	if offerOut < 0 {
		offerOut = 0
	}
	if acceptOut < 0 {
		acceptOut = 0
	}
	return txbuilder.BuildRefundTx(fundingOP, offered.PayoutSPK, acceptPayoutSPK,
		offerOut, acceptOut, offered.RefundLocktime)
}

// digitsForOutcome returns outcome's big-endian binary expansion as
// "0"/"1" ASCII strings, width digits wide, the message set an attestor
// signs for that outcome.
func digitsForOutcome(outcome uint64, width int) []string {
	digits := make([]string, width)
	for i := 0; i < width; i++ {
		shift := uint(width - 1 - i)
		if (outcome>>shift)&1 == 1 {
			digits[i] = "1"
		} else {
			digits[i] = "0"
		}
	}
	return digits
}

// outcomeFromDigits inverts digitsForOutcome for an attestation's revealed
// digit strings.
func outcomeFromDigits(digits []string) (uint64, error) {
	var outcome uint64
	for _, d := range digits {
		bit, err := strconv.ParseUint(d, 2, 1)
		if err != nil {
			return 0, dlcerr.New(dlcerr.KindSerialization,
				"attested digit %q is not binary", d)
		}
		outcome = outcome<<1 | bit
	}
	return outcome, nil
}

// comboPoint computes the encryption point for one oracle combination and
// one payout point: the combined outcome point of the combination's
// announcements over the outcome's digit expansion.
func comboPoint(info *dlcwire.ContractInfo, combo []int, outcome uint64) (*btcec.PublicKey, error) {
	nbDigits := int(info.Announcements[0].OracleEvent.EventDescriptor.NbDigits)
	digits := digitsForOutcome(outcome, nbDigits)

	anns := make([]*dlcwire.OracleAnnouncement, len(combo))
	for i, idx := range combo {
		anns[i] = &info.Announcements[idx]
	}
	return txbuilder.CombinedOutcomePoint(anns, digits)
}

// signCets produces this party's adaptor signatures over every CET: one
// run per oracle combination per contract-info, each run one signature per
// payout point, flattened across infos in order. The counterparty indexes
// this layout identically via verifyCets.
func signCets(priv *btcec.PrivateKey, infos []dlcwire.ContractInfo,
	cets [][]*wire.MsgTx, redeemScript []byte, total uint64) (dlcwire.CetAdaptorSignatures, error) {

	var out dlcwire.CetAdaptorSignatures
	for i := range infos {
		info := &infos[i]
		combos := txbuilder.Combinations(len(info.Announcements), int(info.Threshold))
		for _, combo := range combos {
			for j, point := range info.PayoutCurve {
				pt, err := comboPoint(info, combo, point.Outcome)
				if err != nil {
					return out, dlcerr.Wrap(dlcerr.KindCrypto, err,
						"computing outcome point for info %d outcome %d", i, point.Outcome)
				}
				hash, err := txbuilder.SigHash(cets[i][j], 0, redeemScript, int64(total))
				if err != nil {
					return out, dlcerr.Wrap(dlcerr.KindCrypto, err,
						"hashing CET for info %d outcome %d", i, point.Outcome)
				}
				sig, err := txbuilder.Sign(priv, hash, pt)
				if err != nil {
					return out, dlcerr.Wrap(dlcerr.KindCrypto, err,
						"adaptor-signing CET for info %d outcome %d", i, point.Outcome)
				}
				out.Sigs = append(out.Sigs, dlcwire.CetAdaptorSignature{
					EncryptedSig: sig.Serialize(),
				})
			}
		}
	}
	return out, nil
}

// verifyCets checks the counterparty's flat adaptor-signature set against
// pub and splits it into per-info AdaptorInfo bundles for persistence.
func verifyCets(pub *btcec.PublicKey, infos []dlcwire.ContractInfo,
	cets [][]*wire.MsgTx, redeemScript []byte, total uint64,
	sigs dlcwire.CetAdaptorSignatures) ([]contract.AdaptorInfo, error) {

	var expected int
	for i := range infos {
		combos := len(txbuilder.Combinations(len(infos[i].Announcements), int(infos[i].Threshold)))
		expected += combos * len(infos[i].PayoutCurve)
	}
	if len(sigs.Sigs) != expected {
		return nil, dlcerr.New(dlcerr.KindInvalidParameters,
			"expected %d CET adaptor signatures, got %d", expected, len(sigs.Sigs))
	}

	out := make([]contract.AdaptorInfo, len(infos))
	next := 0
	for i := range infos {
		info := &infos[i]
		combos := txbuilder.Combinations(len(info.Announcements), int(info.Threshold))
		for _, combo := range combos {
			for j, point := range info.PayoutCurve {
				raw := sigs.Sigs[next]
				next++

				sig, err := txbuilder.ParseAdaptorSignature(raw.EncryptedSig)
				if err != nil {
					return nil, dlcerr.Wrap(dlcerr.KindSerialization, err,
						"parsing CET adaptor signature for info %d outcome %d", i, point.Outcome)
				}
				pt, err := comboPoint(info, combo, point.Outcome)
				if err != nil {
					return nil, dlcerr.Wrap(dlcerr.KindCrypto, err,
						"computing outcome point for info %d outcome %d", i, point.Outcome)
				}
				hash, err := txbuilder.SigHash(cets[i][j], 0, redeemScript, int64(total))
				if err != nil {
					return nil, dlcerr.Wrap(dlcerr.KindCrypto, err,
						"hashing CET for info %d outcome %d", i, point.Outcome)
				}
				if err := txbuilder.Verify(sig, pub, hash, pt); err != nil {
					return nil, dlcerr.Wrap(dlcerr.KindCrypto, err,
						"CET adaptor signature for info %d outcome %d", i, point.Outcome)
				}
				out[i].Sigs = append(out[i].Sigs, *sig)
			}
		}
	}
	return out, nil
}

// signRefund produces this party's plain Schnorr signature over the
// refund transaction's sighash.
func signRefund(priv *btcec.PrivateKey, refundTx *wire.MsgTx, redeemScript []byte, total uint64) ([64]byte, error) {
	var out [64]byte
	hash, err := txbuilder.SigHash(refundTx, 0, redeemScript, int64(total))
	if err != nil {
		return out, dlcerr.Wrap(dlcerr.KindCrypto, err, "hashing refund tx")
	}
	sig, err := schnorr.Sign(priv, hash[:])
	if err != nil {
		return out, dlcerr.Wrap(dlcerr.KindCrypto, err, "signing refund tx")
	}
	copy(out[:], sig.Serialize())
	return out, nil
}

// verifyRefundSig checks the counterparty's refund signature.
func verifyRefundSig(pub *btcec.PublicKey, refundTx *wire.MsgTx, redeemScript []byte, total uint64, raw [64]byte) error {
	hash, err := txbuilder.SigHash(refundTx, 0, redeemScript, int64(total))
	if err != nil {
		return dlcerr.Wrap(dlcerr.KindCrypto, err, "hashing refund tx")
	}
	sig, err := schnorr.ParseSignature(raw[:])
	if err != nil {
		return dlcerr.Wrap(dlcerr.KindSerialization, err, "parsing refund signature")
	}
	if !sig.Verify(hash[:], pub) {
		return dlcerr.New(dlcerr.KindCrypto, "refund signature does not verify")
	}
	return nil
}

// flattenWitness packs a P2WPKH witness (signature then pubkey) into the
// single byte string a SignDlc's FundingSignatures entry carries: the DER
// signature followed by the 33-byte compressed pubkey, split again from
// the tail by splitWitness.
func flattenWitness(w wire.TxWitness) []byte {
	var out []byte
	for _, item := range w {
		out = append(out, item...)
	}
	return out
}

func splitWitness(b []byte) (wire.TxWitness, error) {
	if len(b) <= 33 {
		return nil, dlcerr.New(dlcerr.KindSerialization,
			"funding witness of %d bytes is too short", len(b))
	}
	return wire.TxWitness{b[:len(b)-33], b[len(b)-33:]}, nil
}

// ownFundingPriv returns this party's CET/refund signing key.
func ownFundingPriv(a *contract.AcceptedContract) (*btcec.PrivateKey, error) {
	var priv *btcec.PrivateKey
	if a.Offered.IsOfferer {
		priv = a.Offered.FundingPrivkey
	} else {
		priv = a.AcceptPrivkey
	}
	if priv == nil {
		return nil, dlcerr.New(dlcerr.KindInvalidState,
			"contract record carries no funding secret key")
	}
	return priv, nil
}

// counterpartyFundingPub returns the key the counterparty's CET/refund
// signatures verify against.
func counterpartyFundingPub(a *contract.AcceptedContract) *btcec.PublicKey {
	if a.Offered.IsOfferer {
		return a.AcceptPubkey
	}
	return a.Offered.FundingPubkey
}
