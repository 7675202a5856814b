package dlcmanager_test

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/dlc-link/dlc-engine/attestor"
	"github.com/dlc-link/dlc-engine/chainiface"
	"github.com/dlc-link/dlc-engine/contract"
	"github.com/dlc-link/dlc-engine/contractstore"
	"github.com/dlc-link/dlc-engine/dlcerr"
	"github.com/dlc-link/dlc-engine/dlcmanager"
	"github.com/dlc-link/dlc-engine/dlcwire"
	"github.com/dlc-link/dlc-engine/oracleclient"
	"github.com/dlc-link/dlc-engine/walletiface"
)

var testStart = time.Unix(1700000000, 0)

// party is one side of a contract: its own manager, store and wallet, plus
// an identity key naming it to the counterparty.
type party struct {
	mgr    *dlcmanager.Manager
	store  *contractstore.Memory
	wallet *walletiface.Memory
	id     *btcec.PrivateKey
}

// harness wires two counterparties against one shared chain, one shared
// test clock, and a configurable attestor quorum.
type harness struct {
	chain     *chainiface.Memory
	clk       *clock.TestClock
	offer     *party
	accept    *party
	attestors []*attestor.Attestor
	oracles   []*oracleclient.Memory
}

func newParty(t *testing.T, chain *chainiface.Memory, clk *clock.TestClock, oracles []oracleclient.Oracle) *party {
	t.Helper()

	id, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	store := contractstore.NewMemory()
	wallet := walletiface.NewMemory(&chaincfg.RegressionNetParams)
	fundWallet(t, chain, wallet, 1_000_000)

	mgr, err := dlcmanager.New(dlcmanager.Config{
		Wallet:  wallet,
		Chain:   chain,
		Store:   store,
		Oracles: oracles,
		Clock:   clk,
	})
	require.NoError(t, err)
	return &party{mgr: mgr, store: store, wallet: wallet, id: id}
}

func newHarness(t *testing.T, numOracles int) *harness {
	t.Helper()

	h := &harness{
		chain: chainiface.NewMemory(chainiface.NetworkRegtest),
		clk:   clock.NewTestClock(testStart),
	}

	oracleIfaces := make([]oracleclient.Oracle, numOracles)
	for i := 0; i < numOracles; i++ {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		att := attestor.New(priv, attestor.NewMemoryStore(), h.clk)
		mem := oracleclient.NewMemory(priv.PubKey())
		h.attestors = append(h.attestors, att)
		h.oracles = append(h.oracles, mem)
		oracleIfaces[i] = mem
	}

	h.offer = newParty(t, h.chain, h.clk, oracleIfaces)
	h.accept = newParty(t, h.chain, h.clk, oracleIfaces)
	return h
}

// fundWallet seeds wallet with one spendable output whose source
// transaction the shared chain can resolve.
func fundWallet(t *testing.T, chain *chainiface.Memory, w *walletiface.Memory, value int64) {
	t.Helper()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pkHash := btcutil.Hash160(key.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(pkHash, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	spk, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	src := wire.NewMsgTx(2)
	src.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 0xffffffff}})
	src.AddTxOut(&wire.TxOut{Value: value, PkScript: spk})
	require.NoError(t, chain.Broadcast(context.Background(), src))

	w.AddUTXO(walletiface.Utxo{
		OutPoint: wire.OutPoint{Hash: src.TxHash(), Index: 0},
		Output:   *src.TxOut[0],
	}, key)
}

func (h *harness) announce(t *testing.T, oracleIdx int, eventID string) {
	t.Helper()
	maturation := uint32(testStart.Add(24 * time.Hour).Unix())
	ann, err := h.attestors[oracleIdx].CreateEvent(eventID, maturation, "regtest")
	require.NoError(t, err)
	h.oracles[oracleIdx].PutAnnouncement(eventID, ann)
}

func (h *harness) attest(t *testing.T, oracleIdx int, eventID string, outcome uint64) {
	t.Helper()
	att, err := h.attestors[oracleIdx].Attest(eventID, outcome)
	require.NoError(t, err)
	h.oracles[oracleIdx].PutAttestation(eventID, att)
}

func (h *harness) oracleKeys(idxs ...int) []*btcec.PublicKey {
	keys := make([]*btcec.PublicKey, len(idxs))
	for i, idx := range idxs {
		keys[i] = h.attestors[idx].PublicKey()
	}
	return keys
}

// establish runs the full offer/accept/sign exchange and returns the
// contract id; the funding transaction is broadcast but unconfirmed.
func (h *harness) establish(t *testing.T, eventID string, oracleIdxs []int,
	threshold uint16, curve []dlcwire.PayoutPoint) contract.ID {
	t.Helper()
	ctx := context.Background()

	input := dlcmanager.ContractInput{
		OfferCollateral:  100_000,
		AcceptCollateral: 100_000,
		Infos: []dlcmanager.ContractInputInfo{{
			Oracles: dlcmanager.OracleRequest{
				PublicKeys: h.oracleKeys(oracleIdxs...),
				Threshold:  threshold,
				EventID:    eventID,
			},
			PayoutCurve: curve,
		}},
	}
	offerMsg, err := h.offer.mgr.SendOffer(ctx, input, h.accept.id.PubKey(), dlcmanager.OneDayInSeconds, 100, "")
	require.NoError(t, err)

	require.NoError(t, h.accept.mgr.OnOffer(ctx, offerMsg, h.offer.id.PubKey()))

	id, counterParty, acceptMsg, err := h.accept.mgr.AcceptContractOffer(ctx, offerMsg.TempContractID)
	require.NoError(t, err)
	require.True(t, counterParty.IsEqual(h.offer.id.PubKey()))

	signMsg, err := h.offer.mgr.OnAccept(ctx, acceptMsg, h.accept.id.PubKey())
	require.NoError(t, err)
	require.Equal(t, id, signMsg.ContractID)

	require.NoError(t, h.accept.mgr.OnSign(ctx, signMsg, h.offer.id.PubKey()))
	require.True(t, h.chain.WasBroadcast(id))
	return id
}

// stateContract fetches the single record in state from store.
func stateContract(t *testing.T, store *contractstore.Memory, state contract.State) contract.Contract {
	t.Helper()
	records, err := store.GetByState(context.Background(), state)
	require.NoError(t, err)
	require.Len(t, records, 1)
	return records[0]
}

var defaultCurve = []dlcwire.PayoutPoint{
	{Outcome: 0, Payout: 200_000},
	{Outcome: 10_000, Payout: 50_000},
}

// Spec scenario 1: announce, offer, accept, sign, fund, confirm, attest
// outcome 0, pre-close, close, with boundary checks along the way.
func TestHappyPathOutcomeZero(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	h.announce(t, 0, "u1")
	id := h.establish(t, "u1", []int{0}, 1, defaultCurve)

	// Regtest fee policy and basis-point denominator on the persisted
	// offer side.
	offSigned := stateContract(t, h.offer.store, contract.StateSigned).(*contract.SignedContract)
	require.Equal(t, uint64(1), offSigned.Accepted.Offered.FeeRatePerVb)
	require.Equal(t, uint64(100), offSigned.Accepted.Offered.ProtocolFeeDenominator)

	// One short of the confirmation threshold: nothing moves.
	h.chain.SetConfirmations(id, dlcmanager.DefaultNbConfirmations-1)
	results, err := h.accept.mgr.PeriodicCheck(ctx)
	require.NoError(t, err)
	require.Empty(t, results)

	// Exactly at the threshold: Signed -> Confirmed.
	h.chain.SetConfirmations(id, dlcmanager.DefaultNbConfirmations)
	results, err = h.accept.mgr.PeriodicCheck(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, id, results[0].ContractID)
	require.Equal(t, "u1", results[0].EventID)
	stateContract(t, h.accept.store, contract.StateConfirmed)

	// No attestation yet: the contract stays Confirmed.
	results, err = h.accept.mgr.PeriodicCheck(ctx)
	require.NoError(t, err)
	require.Empty(t, results)

	h.attest(t, 0, "u1", 0)

	// Attestation collected: CET derived, persisted, broadcast.
	results, err = h.accept.mgr.PeriodicCheck(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	preClosed := stateContract(t, h.accept.store, contract.StatePreClosed).(*contract.PreClosedContract)
	cetID := preClosed.SignedCET.TxHash()
	require.True(t, h.chain.WasBroadcast(cetID))
	require.Len(t, preClosed.Attestations, 1)
	require.Equal(t, []string{"0", "0", "0", "0", "0", "0", "0", "0", "0", "0", "0", "0", "0", "0"},
		preClosed.Attestations[0].Outcomes)

	// Below the closing threshold: PreClosed holds.
	h.chain.SetConfirmations(cetID, 3)
	results, err = h.accept.mgr.PeriodicCheck(ctx)
	require.NoError(t, err)
	require.Empty(t, results)

	// CET deep enough: Closed, accepter realised a full loss at outcome 0.
	h.chain.SetConfirmations(cetID, dlcmanager.DefaultNbConfirmations)
	results, err = h.accept.mgr.PeriodicCheck(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	closed := stateContract(t, h.accept.store, contract.StateClosed).(*contract.ClosedContract)
	require.Equal(t, int64(-100_000), closed.Pnl)

	// The offerer, ticking late, walks Signed -> Confirmed and then goes
	// straight to Closed: the CET it derives is the same transaction,
	// already deeply confirmed, so no rebroadcast happens.
	results, err = h.offer.mgr.PeriodicCheck(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	offClosed := stateContract(t, h.offer.store, contract.StateClosed).(*contract.ClosedContract)
	require.Equal(t, cetID, offClosed.PreClosed.SignedCET.TxHash())
	require.Equal(t, int64(100_000), offClosed.Pnl)
}

// Spec scenario 2: no oracle ever attests; once the wall clock passes the
// refund locktime the refund transaction is signed and broadcast.
func TestRefundPath(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	h.announce(t, 0, "u2")
	id := h.establish(t, "u2", []int{0}, 1, defaultCurve)

	h.chain.SetConfirmations(id, dlcmanager.DefaultNbConfirmations)
	_, err := h.accept.mgr.PeriodicCheck(ctx)
	require.NoError(t, err)
	stateContract(t, h.accept.store, contract.StateConfirmed)

	// Before the locktime nothing happens.
	results, err := h.accept.mgr.PeriodicCheck(ctx)
	require.NoError(t, err)
	require.Empty(t, results)

	h.clk.SetTime(testStart.Add(25 * time.Hour))

	results, err = h.accept.mgr.PeriodicCheck(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	refunded := stateContract(t, h.accept.store, contract.StateRefunded).(*contract.RefundedContract)
	refundTx := refunded.Confirmed.Signed.Accepted.RefundTx
	require.True(t, h.chain.WasBroadcast(refundTx.TxHash()))
	require.Equal(t, uint32(testStart.Unix())+dlcmanager.OneDayInSeconds, refundTx.LockTime)
}

// Spec scenario 3: three attestors with threshold 2; one errors, the other
// two agree, and closure still succeeds.
func TestThresholdTolerance(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h.announce(t, i, "u3")
	}
	id := h.establish(t, "u3", []int{0, 1, 2}, 2, defaultCurve)

	h.chain.SetConfirmations(id, dlcmanager.DefaultNbConfirmations)
	_, err := h.accept.mgr.PeriodicCheck(ctx)
	require.NoError(t, err)

	h.attest(t, 1, "u3", 10_000)
	h.attest(t, 2, "u3", 10_000)
	h.oracles[0].FailEvent("u3")

	results, err := h.accept.mgr.PeriodicCheck(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)

	preClosed := stateContract(t, h.accept.store, contract.StatePreClosed).(*contract.PreClosedContract)
	require.True(t, h.chain.WasBroadcast(preClosed.SignedCET.TxHash()))
	require.Len(t, preClosed.Attestations, 2)

	// Close it out: accepter keeps 150k of the 200k pot at outcome 10000.
	h.chain.SetConfirmations(preClosed.SignedCET.TxHash(), dlcmanager.DefaultNbConfirmations)
	_, err = h.accept.mgr.PeriodicCheck(ctx)
	require.NoError(t, err)
	closed := stateContract(t, h.accept.store, contract.StateClosed).(*contract.ClosedContract)
	require.Equal(t, int64(50_000), closed.Pnl)
}

// Two of three attesting is not enough when they disagree on the outcome.
func TestDisagreeingAttestationsDoNotClose(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h.announce(t, i, "u4")
	}
	id := h.establish(t, "u4", []int{0, 1, 2}, 2, defaultCurve)

	h.chain.SetConfirmations(id, dlcmanager.DefaultNbConfirmations)
	_, err := h.accept.mgr.PeriodicCheck(ctx)
	require.NoError(t, err)

	h.attest(t, 1, "u4", 0)
	h.attest(t, 2, "u4", 10_000)
	h.oracles[0].FailEvent("u4")

	results, err := h.accept.mgr.PeriodicCheck(ctx)
	require.NoError(t, err)
	require.Empty(t, results)
	stateContract(t, h.accept.store, contract.StateConfirmed)
}

func TestAcceptUnknownContract(t *testing.T) {
	h := newHarness(t, 1)

	var unknown chainhash.Hash
	unknown[0] = 0x99
	_, _, _, err := h.accept.mgr.AcceptContractOffer(context.Background(), unknown)
	require.Error(t, err)
	require.True(t, dlcerr.Is(err, dlcerr.KindInvalidParameters))
}

func TestDuplicateOfferRejected(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	h.announce(t, 0, "u5")
	input := dlcmanager.ContractInput{
		OfferCollateral:  100_000,
		AcceptCollateral: 100_000,
		Infos: []dlcmanager.ContractInputInfo{{
			Oracles:     dlcmanager.OracleRequest{PublicKeys: h.oracleKeys(0), Threshold: 1, EventID: "u5"},
			PayoutCurve: defaultCurve,
		}},
	}
	offerMsg, err := h.offer.mgr.SendOffer(ctx, input, h.accept.id.PubKey(), dlcmanager.OneDayInSeconds, 0, "")
	require.NoError(t, err)

	// Zero basis points yield a zero denominator.
	offered := stateContract(t, h.offer.store, contract.StateOffered).(*contract.OfferedContract)
	require.Equal(t, uint64(0), offered.ProtocolFeeDenominator)

	require.NoError(t, h.accept.mgr.OnOffer(ctx, offerMsg, h.offer.id.PubKey()))
	err = h.accept.mgr.OnOffer(ctx, offerMsg, h.offer.id.PubKey())
	require.Error(t, err)
	require.True(t, dlcerr.Is(err, dlcerr.KindInvalidParameters))
}

func TestSendOfferWithoutOracles(t *testing.T) {
	chain := chainiface.NewMemory(chainiface.NetworkRegtest)
	clk := clock.NewTestClock(testStart)
	p := newParty(t, chain, clk, nil)

	_, err := p.mgr.SendOffer(context.Background(), dlcmanager.ContractInput{},
		p.id.PubKey(), dlcmanager.OneDayInSeconds, 0, "")
	require.Error(t, err)
	require.True(t, dlcerr.Is(err, dlcerr.KindInvalidState))
}

// A tampered accept message moves the offerer's record to FailedAccept and
// re-surfaces the verification error.
func TestTamperedAcceptFails(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	h.announce(t, 0, "u6")
	input := dlcmanager.ContractInput{
		OfferCollateral:  100_000,
		AcceptCollateral: 100_000,
		Infos: []dlcmanager.ContractInputInfo{{
			Oracles:     dlcmanager.OracleRequest{PublicKeys: h.oracleKeys(0), Threshold: 1, EventID: "u6"},
			PayoutCurve: defaultCurve,
		}},
	}
	offerMsg, err := h.offer.mgr.SendOffer(ctx, input, h.accept.id.PubKey(), dlcmanager.OneDayInSeconds, 0, "")
	require.NoError(t, err)
	require.NoError(t, h.accept.mgr.OnOffer(ctx, offerMsg, h.offer.id.PubKey()))

	_, _, acceptMsg, err := h.accept.mgr.AcceptContractOffer(ctx, offerMsg.TempContractID)
	require.NoError(t, err)

	// Flip a bit in the first adaptor signature's scalar half.
	acceptMsg.CetAdaptorSignatures.Sigs[0].EncryptedSig[40] ^= 0x01

	_, err = h.offer.mgr.OnAccept(ctx, acceptMsg, h.accept.id.PubKey())
	require.Error(t, err)
	stateContract(t, h.offer.store, contract.StateFailedAccept)
}

func TestRejectOffer(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	h.announce(t, 0, "u7")
	input := dlcmanager.ContractInput{
		OfferCollateral:  100_000,
		AcceptCollateral: 100_000,
		Infos: []dlcmanager.ContractInputInfo{{
			Oracles:     dlcmanager.OracleRequest{PublicKeys: h.oracleKeys(0), Threshold: 1, EventID: "u7"},
			PayoutCurve: defaultCurve,
		}},
	}
	offerMsg, err := h.offer.mgr.SendOffer(ctx, input, h.accept.id.PubKey(), dlcmanager.OneDayInSeconds, 0, "")
	require.NoError(t, err)
	require.NoError(t, h.accept.mgr.OnOffer(ctx, offerMsg, h.offer.id.PubKey()))

	require.NoError(t, h.accept.mgr.RejectOffer(ctx, offerMsg.TempContractID, "not interested"))
	rejected := stateContract(t, h.accept.store, contract.StateRejected).(*contract.RejectedContract)
	require.Equal(t, "not interested", rejected.Reason)
	require.True(t, rejected.State().Terminal())
}
