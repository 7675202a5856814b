// Package dlcmanager owns the contract state machine of the DLC engine:
// it drives a contract from offer through accept, sign, on-chain
// confirmation and attestation-driven closure (or refund), composing the
// contract store, chain backend, wallet and oracle clients it is
// constructed with. All public methods take a context and may suspend on
// any store, chain or oracle I/O; pure crypto and serialization never do.
package dlcmanager

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/dlc-link/dlc-engine/chainiface"
	"github.com/dlc-link/dlc-engine/clockutil"
	"github.com/dlc-link/dlc-engine/contract"
	"github.com/dlc-link/dlc-engine/contractstore"
	"github.com/dlc-link/dlc-engine/dlcerr"
	"github.com/dlc-link/dlc-engine/dlcwire"
	"github.com/dlc-link/dlc-engine/oracleclient"
	"github.com/dlc-link/dlc-engine/walletiface"
)

const (
	// DefaultNbConfirmations is the funding/CET confirmation depth at
	// which a contract advances to Confirmed/Closed.
	DefaultNbConfirmations = 6

	// FiftyYears bounds how far in the future a refund locktime may sit.
	FiftyYears = 86400 * 365 * 50

	// OneDayInSeconds is the granularity refund locktimes are usually
	// quoted in by callers.
	OneDayInSeconds = 86400

	// DefaultFeeRatePerVb is the fee rate applied off-regtest when the
	// caller doesn't specify one.
	DefaultFeeRatePerVb = 400

	// PeerTimeoutSeconds is the peer timeout for the offer-to-sign flow.
	// Nothing in this module reads it: UTXOs locked for an offer stay
	// locked, and the manager never releases them.
	PeerTimeoutSeconds = 3600
)

// Config carries the manager's collaborators and tunables.
type Config struct {
	Wallet  walletiface.Wallet
	Chain   chainiface.ChainBackend
	Store   contractstore.Store
	Oracles []oracleclient.Oracle

	// Clock is the refund check's time source; nil means the real clock.
	Clock clockutil.Clock

	// FeeRatePerVb overrides DefaultFeeRatePerVb when non-zero. Regtest
	// always uses 1 regardless.
	FeeRatePerVb uint64

	// NbConfirmations overrides DefaultNbConfirmations when non-zero.
	NbConfirmations uint32
}

// Manager is the engine's contract-side composition root.
type Manager struct {
	wallet  walletiface.Wallet
	chain   chainiface.ChainBackend
	store   contractstore.Store
	oracles []oracleclient.Oracle
	clock   clockutil.Clock

	defaultFeeRate  uint64
	nbConfirmations uint32

	// oracleCache maps an oracle's x-only public key to its client,
	// filled lazily on first lookup.
	oracleMu    sync.Mutex
	oracleCache map[string]oracleclient.Oracle
}

// New creates a Manager from cfg, applying defaults for the optional
// fields.
func New(cfg Config) (*Manager, error) {
	if cfg.Wallet == nil || cfg.Chain == nil || cfg.Store == nil {
		return nil, dlcerr.New(dlcerr.KindInvalidParameters,
			"manager requires a wallet, chain backend and store")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockutil.New()
	}
	if cfg.FeeRatePerVb == 0 {
		cfg.FeeRatePerVb = DefaultFeeRatePerVb
	}
	if cfg.NbConfirmations == 0 {
		cfg.NbConfirmations = DefaultNbConfirmations
	}
	return &Manager{
		wallet:          cfg.Wallet,
		chain:           cfg.Chain,
		store:           cfg.Store,
		oracles:         cfg.Oracles,
		clock:           cfg.Clock,
		defaultFeeRate:  cfg.FeeRatePerVb,
		nbConfirmations: cfg.NbConfirmations,
		oracleCache:     make(map[string]oracleclient.Oracle),
	}, nil
}

// oracleByPubKey finds the configured oracle client whose identity is pub,
// comparing x-only keys since that is what announcements carry.
func (m *Manager) oracleByPubKey(ctx context.Context, pub *btcec.PublicKey) (oracleclient.Oracle, error) {
	want := hex.EncodeToString(schnorr.SerializePubKey(pub))

	m.oracleMu.Lock()
	cached, ok := m.oracleCache[want]
	m.oracleMu.Unlock()
	if ok {
		return cached, nil
	}

	for _, o := range m.oracles {
		got, err := o.PublicKey(ctx)
		if err != nil {
			log.Debugf("skipping oracle during lookup: %v", err)
			continue
		}
		key := hex.EncodeToString(schnorr.SerializePubKey(got))
		m.oracleMu.Lock()
		m.oracleCache[key] = o
		m.oracleMu.Unlock()
		if key == want {
			return o, nil
		}
	}
	return nil, dlcerr.New(dlcerr.KindInvalidParameters,
		"no configured oracle with public key %s", want)
}

// OracleRequest names one contract-info's oracle quorum: which oracles to
// bind, the attestation threshold, and the event they must announce.
type OracleRequest struct {
	PublicKeys []*btcec.PublicKey
	Threshold  uint16
	EventID    string
}

// ContractInputInfo pairs one oracle quorum with the payout curve that
// applies to its event's outcome.
type ContractInputInfo struct {
	Oracles     OracleRequest
	PayoutCurve []dlcwire.PayoutPoint
}

// ContractInput is the caller's side of SendOffer: collateral split, fee
// rate, and the contract infos to offer.
type ContractInput struct {
	OfferCollateral  uint64
	AcceptCollateral uint64

	// FeeRatePerVb overrides the manager's fee-rate policy when
	// non-zero; regtest still forces 1.
	FeeRatePerVb uint64

	Infos []ContractInputInfo
}

// protocolFeeDenominator converts a basis-point fee into the divisor a
// payout is split by: round((100/bp)*100), with zero basis points mapping
// to a zero denominator (no fee).
func protocolFeeDenominator(basisPoints uint32) uint64 {
	if basisPoints == 0 {
		return 0
	}
	return uint64(math.Round(100.0 / float64(basisPoints) * 100.0))
}

// SendOffer builds, persists and returns a new contract offer. Each
// contract-info's announcements are fetched from the requested oracles for
// that info's own event id.
func (m *Manager) SendOffer(ctx context.Context, input ContractInput,
	counterParty *btcec.PublicKey, refundDelay uint32,
	protocolFeeBasisPoints uint32, feeAddress string) (*dlcwire.OfferDlc, error) {

	if len(m.oracles) == 0 {
		return nil, dlcerr.New(dlcerr.KindInvalidState, "no oracles configured")
	}
	if len(input.Infos) == 0 {
		return nil, dlcerr.New(dlcerr.KindInvalidParameters, "offer needs at least one contract info")
	}
	if uint64(refundDelay) > FiftyYears {
		return nil, dlcerr.New(dlcerr.KindInvalidParameters,
			"refund delay %d exceeds the fifty-year bound", refundDelay)
	}

	total := input.OfferCollateral + input.AcceptCollateral
	infos := make([]dlcwire.ContractInfo, len(input.Infos))
	for i, in := range input.Infos {
		if in.Oracles.Threshold == 0 || int(in.Oracles.Threshold) > len(in.Oracles.PublicKeys) {
			return nil, dlcerr.New(dlcerr.KindInvalidParameters,
				"info %d threshold %d is outside its %d-oracle quorum",
				i, in.Oracles.Threshold, len(in.Oracles.PublicKeys))
		}

		anns := make([]dlcwire.OracleAnnouncement, len(in.Oracles.PublicKeys))
		for j, pk := range in.Oracles.PublicKeys {
			oracle, err := m.oracleByPubKey(ctx, pk)
			if err != nil {
				return nil, err
			}
			ann, err := oracle.GetAnnouncement(ctx, in.Oracles.EventID)
			if err != nil {
				return nil, dlcerr.Wrap(dlcerr.KindInvalidParameters, err,
					"fetching announcement for event %q", in.Oracles.EventID)
			}
			if ann.OracleEvent.EventID != in.Oracles.EventID {
				return nil, dlcerr.New(dlcerr.KindOracle,
					"oracle returned announcement for %q, wanted %q",
					ann.OracleEvent.EventID, in.Oracles.EventID)
			}
			if !ann.Verify() {
				return nil, dlcerr.New(dlcerr.KindOracle,
					"announcement signature for event %q does not verify", in.Oracles.EventID)
			}
			anns[j] = *ann
		}
		infos[i] = dlcwire.ContractInfo{
			TotalCollateral: total,
			Threshold:       in.Oracles.Threshold,
			Announcements:   anns,
			PayoutCurve:     in.PayoutCurve,
		}
	}

	feeRate := m.feeRate(input.FeeRatePerVb)

	fundingPriv, err := m.wallet.NewSecretKey(ctx)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindWallet, err, "deriving funding key")
	}
	payoutSPK, err := m.newSPK(ctx)
	if err != nil {
		return nil, err
	}
	changeSPK, err := m.newSPK(ctx)
	if err != nil {
		return nil, err
	}

	utxos, err := m.wallet.UtxosForAmount(ctx, btcutil.Amount(input.OfferCollateral), feeRate, true)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindWallet, err, "selecting offer funding inputs")
	}
	fundingInputs := utxosToWire(utxos, 0)

	var tempID contract.TempID
	if _, err := rand.Read(tempID[:]); err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindCrypto, err, "drawing temporary contract id")
	}

	refundLocktime := uint32(m.clock.Now().Unix()) + refundDelay

	var pkBytes [33]byte
	copy(pkBytes[:], fundingPriv.PubKey().SerializeCompressed())

	offerMsg := &dlcwire.OfferDlc{
		ChainHash:             *m.chain.Network().Params().GenesisHash,
		TempContractID:        tempID,
		ContractInfos:         infos,
		FundingPubkeyBytes:    pkBytes,
		PayoutSPK:             payoutSPK,
		OfferCollateral:       input.OfferCollateral,
		FundingInputs:         fundingInputs,
		ChangeSPK:             changeSPK,
		FeeRatePerVb:          feeRate,
		ContractMaturityBound: infos[0].Announcements[0].OracleEvent.EventMaturityEpoch,
		ContractTimeout:       refundLocktime,
	}

	offered := &contract.OfferedContract{
		TempID:                 tempID,
		IsOfferer:              true,
		CounterParty:           counterParty,
		ContractInfos:          infos,
		OfferCollateral:        input.OfferCollateral,
		AcceptCollateral:       input.AcceptCollateral,
		FeeRatePerVb:           feeRate,
		RefundLocktime:         refundLocktime,
		ProtocolFeeBasisPoints: protocolFeeBasisPoints,
		ProtocolFeeDenominator: protocolFeeDenominator(protocolFeeBasisPoints),
		ProtocolFeeAddress:     feeAddress,
		FundingPubkey:          fundingPriv.PubKey(),
		FundingPrivkey:         fundingPriv,
		PayoutSPK:              payoutSPK,
		ChangeSPK:              changeSPK,
		FundingInputs:          fundingInputs,
		OfferMessage:           offerMsg,
	}

	if err := m.store.Create(ctx, offered); err != nil {
		return nil, err
	}

	log.Infof("offered contract %s for event %q", tempID, input.Infos[0].Oracles.EventID)
	return offerMsg, nil
}

// OnOffer handles a counterparty's incoming offer: bounds-check the refund
// locktime, refuse a duplicate id, persist as Offered.
func (m *Manager) OnOffer(ctx context.Context, offer *dlcwire.OfferDlc, counterParty *btcec.PublicKey) error {
	now := uint32(m.clock.Now().Unix())
	if offer.ContractTimeout < now || uint64(offer.ContractTimeout-now) > FiftyYears {
		return dlcerr.New(dlcerr.KindInvalidParameters,
			"offer refund locktime %d is outside [now, now+fifty-years]", offer.ContractTimeout)
	}
	if len(offer.ContractInfos) == 0 {
		return dlcerr.New(dlcerr.KindInvalidParameters, "offer carries no contract infos")
	}

	if _, exists, err := m.store.Get(ctx, offer.TempContractID); err != nil {
		return err
	} else if exists {
		return dlcerr.New(dlcerr.KindInvalidParameters,
			"contract %s already exists", offer.TempContractID)
	}

	fundingPub, err := btcec.ParsePubKey(offer.FundingPubkeyBytes[:])
	if err != nil {
		return dlcerr.Wrap(dlcerr.KindSerialization, err, "parsing offer funding pubkey")
	}

	total := offer.ContractInfos[0].TotalCollateral
	offered := &contract.OfferedContract{
		TempID:           offer.TempContractID,
		IsOfferer:        false,
		CounterParty:     counterParty,
		ContractInfos:    offer.ContractInfos,
		OfferCollateral:  offer.OfferCollateral,
		AcceptCollateral: total - offer.OfferCollateral,
		FeeRatePerVb:     offer.FeeRatePerVb,
		RefundLocktime:   offer.ContractTimeout,
		FundingPubkey:    fundingPub,
		PayoutSPK:        offer.PayoutSPK,
		ChangeSPK:        offer.ChangeSPK,
		FundingInputs:    offer.FundingInputs,
		OfferMessage:     offer,
	}
	if err := m.store.Create(ctx, offered); err != nil {
		return err
	}

	log.Infof("received offer %s from %x", offer.TempContractID,
		counterParty.SerializeCompressed())
	return nil
}

// RejectOffer declines a received offer, moving it to the terminal
// Rejected state.
func (m *Manager) RejectOffer(ctx context.Context, tempID contract.TempID, reason string) error {
	offered, err := m.loadOffered(ctx, tempID)
	if err != nil {
		return err
	}
	rejected := &contract.RejectedContract{Offered: *offered, Reason: reason}
	if err := m.store.Update(ctx, rejected); err != nil {
		return err
	}
	log.Infof("rejected offer %s: %s", tempID, reason)
	return nil
}

// AcceptContractOffer accepts a previously received offer: funds the
// accepting side, derives the funding/CET/refund transactions, adaptor-
// signs every CET, and persists the contract as Accepted under its new
// funding-txid id.
func (m *Manager) AcceptContractOffer(ctx context.Context, tempID contract.TempID) (contract.ID, *btcec.PublicKey, *dlcwire.AcceptDlc, error) {
	offered, err := m.loadOffered(ctx, tempID)
	if err != nil {
		return contract.ID{}, nil, nil, err
	}
	if offered.IsOfferer {
		return contract.ID{}, nil, nil, dlcerr.New(dlcerr.KindInvalidState,
			"cannot accept own offer %s", tempID)
	}

	acceptPriv, err := m.wallet.NewSecretKey(ctx)
	if err != nil {
		return contract.ID{}, nil, nil, dlcerr.Wrap(dlcerr.KindWallet, err, "deriving accept funding key")
	}
	payoutSPK, err := m.newSPK(ctx)
	if err != nil {
		return contract.ID{}, nil, nil, err
	}
	changeSPK, err := m.newSPK(ctx)
	if err != nil {
		return contract.ID{}, nil, nil, err
	}

	utxos, err := m.wallet.UtxosForAmount(ctx, btcutil.Amount(offered.AcceptCollateral), offered.FeeRatePerVb, true)
	if err != nil {
		return contract.ID{}, nil, nil, dlcerr.Wrap(dlcerr.KindWallet, err, "selecting accept funding inputs")
	}
	acceptInputs := utxosToWire(utxos, uint64(len(offered.FundingInputs)))

	redeemScript, fundingTx, err := m.assembleFunding(ctx, offered, acceptPriv.PubKey(), changeSPK, acceptInputs)
	if err != nil {
		return contract.ID{}, nil, nil, err
	}
	fundingOP := fundingOutPoint(fundingTx)
	cets := buildCETs(offered, fundingOP, payoutSPK)
	refundTx := buildRefund(offered, fundingOP, payoutSPK)

	total := offered.TotalCollateral()
	cetSigs, err := signCets(acceptPriv, offered.ContractInfos, cets, redeemScript, total)
	if err != nil {
		return contract.ID{}, nil, nil, err
	}
	refundSig, err := signRefund(acceptPriv, refundTx, redeemScript, total)
	if err != nil {
		return contract.ID{}, nil, nil, err
	}

	var pkBytes [33]byte
	copy(pkBytes[:], acceptPriv.PubKey().SerializeCompressed())

	acceptMsg := &dlcwire.AcceptDlc{
		TempContractID:       tempID,
		AcceptCollateral:     offered.AcceptCollateral,
		FundingPubkeyBytes:   pkBytes,
		PayoutSPK:            payoutSPK,
		FundingInputs:        acceptInputs,
		ChangeSPK:            changeSPK,
		CetAdaptorSignatures: cetSigs,
		RefundSignature:      refundSig,
	}

	if err := m.watchFundingScript(ctx, redeemScript); err != nil {
		return contract.ID{}, nil, nil, err
	}

	accepted := &contract.AcceptedContract{
		Offered:             *offered,
		ContractIDValue:     fundingTx.TxHash(),
		AcceptPubkey:        acceptPriv.PubKey(),
		AcceptPrivkey:       acceptPriv,
		FundingRedeemScript: redeemScript,
		FundingTx:           fundingTx,
		RefundTx:            refundTx,
		AcceptMessage:       acceptMsg,
	}
	if err := m.store.Update(ctx, accepted); err != nil {
		return contract.ID{}, nil, nil, err
	}

	log.Infof("accepted contract %s as %s", tempID, accepted.ContractIDValue)
	return accepted.ContractIDValue, offered.CounterParty, acceptMsg, nil
}

// OnAccept handles the counterparty's accept message on the offering
// side: rebuild the transactions, verify every adaptor signature and the
// refund signature, countersign, and persist as Signed. A verification
// failure is captured into FailedAccept and re-surfaced.
func (m *Manager) OnAccept(ctx context.Context, accept *dlcwire.AcceptDlc, counterParty *btcec.PublicKey) (*dlcwire.SignDlc, error) {
	offered, err := m.loadOffered(ctx, accept.TempContractID)
	if err != nil {
		return nil, err
	}
	if !offered.IsOfferer {
		return nil, dlcerr.New(dlcerr.KindInvalidState,
			"received accept for a contract %s we did not offer", accept.TempContractID)
	}

	acceptPub, err := btcec.ParsePubKey(accept.FundingPubkeyBytes[:])
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindSerialization, err, "parsing accept funding pubkey")
	}

	redeemScript, fundingTx, err := m.assembleFunding(ctx, offered, acceptPub, accept.ChangeSPK, accept.FundingInputs)
	if err != nil {
		return nil, err
	}
	fundingOP := fundingOutPoint(fundingTx)
	cets := buildCETs(offered, fundingOP, accept.PayoutSPK)
	refundTx := buildRefund(offered, fundingOP, accept.PayoutSPK)
	total := offered.TotalCollateral()

	adaptorInfos, err := verifyCets(acceptPub, offered.ContractInfos, cets, redeemScript, total, accept.CetAdaptorSignatures)
	if err == nil {
		err = verifyRefundSig(acceptPub, refundTx, redeemScript, total, accept.RefundSignature)
	}
	if err != nil {
		failed := &contract.FailedAcceptContract{
			Offered:      *offered,
			AcceptMsg:    accept,
			ErrorMessage: err.Error(),
		}
		if storeErr := m.store.Update(ctx, failed); storeErr != nil {
			log.Errorf("persisting failed accept for %s: %v", accept.TempContractID, storeErr)
		}
		return nil, err
	}

	ownSigs, err := signCets(offered.FundingPrivkey, offered.ContractInfos, cets, redeemScript, total)
	if err != nil {
		return nil, err
	}
	ownRefundSig, err := signRefund(offered.FundingPrivkey, refundTx, redeemScript, total)
	if err != nil {
		return nil, err
	}

	// Sign our own funding inputs; the accepter completes and broadcasts.
	offerUtxos, _, err := m.resolveInputs(ctx, offered.FundingInputs)
	if err != nil {
		return nil, err
	}
	fundingSigs := make([][]byte, len(offerUtxos))
	for i := range offerUtxos {
		script, err := m.wallet.SignInput(ctx, fundingTx, i, &offerUtxos[i].Output, nil)
		if err != nil {
			return nil, dlcerr.Wrap(dlcerr.KindWallet, err, "signing funding input %d", i)
		}
		fundingSigs[i] = flattenWitness(script.Witness)
	}

	signMsg := &dlcwire.SignDlc{
		ContractID:           fundingTx.TxHash(),
		CetAdaptorSignatures: ownSigs,
		RefundSignature:      ownRefundSig,
		FundingSignatures:    fundingSigs,
	}

	if err := m.watchFundingScript(ctx, redeemScript); err != nil {
		return nil, err
	}

	signed := &contract.SignedContract{
		Accepted: contract.AcceptedContract{
			Offered:             *offered,
			ContractIDValue:     fundingTx.TxHash(),
			AcceptPubkey:        acceptPub,
			FundingRedeemScript: redeemScript,
			FundingTx:           fundingTx,
			RefundTx:            refundTx,
			AdaptorInfos:        adaptorInfos,
			AcceptMessage:       accept,
		},
		SignMessage: signMsg,
	}
	if err := m.store.Update(ctx, signed); err != nil {
		return nil, err
	}

	log.Infof("countersigned contract %s", signMsg.ContractID)
	return signMsg, nil
}

// OnSign handles the offering party's sign message on the accepting side:
// verify the offerer's adaptor and refund signatures, complete the
// funding transaction's witnesses, persist as Signed, then broadcast the
// funding transaction. A verification failure is captured into FailedSign
// and re-surfaced.
func (m *Manager) OnSign(ctx context.Context, sign *dlcwire.SignDlc, peer *btcec.PublicKey) error {
	c, ok, err := m.store.Get(ctx, sign.ContractID)
	if err != nil {
		return err
	}
	if !ok {
		return dlcerr.New(dlcerr.KindInvalidParameters,
			"no contract %s", sign.ContractID)
	}
	accepted, ok := c.(*contract.AcceptedContract)
	if !ok {
		return dlcerr.New(dlcerr.KindInvalidState,
			"contract %s is %s, expected accepted", sign.ContractID, c.State())
	}

	offered := &accepted.Offered
	fundingOP := fundingOutPoint(accepted.FundingTx)
	cets := buildCETs(offered, fundingOP, accepted.AcceptMessage.PayoutSPK)
	total := offered.TotalCollateral()

	adaptorInfos, err := verifyCets(offered.FundingPubkey, offered.ContractInfos, cets,
		accepted.FundingRedeemScript, total, sign.CetAdaptorSignatures)
	if err == nil {
		err = verifyRefundSig(offered.FundingPubkey, accepted.RefundTx,
			accepted.FundingRedeemScript, total, sign.RefundSignature)
	}
	if err != nil {
		failed := &contract.FailedSignContract{
			Accepted:     *accepted,
			SignMsg:      sign,
			ErrorMessage: err.Error(),
		}
		if storeErr := m.store.Update(ctx, failed); storeErr != nil {
			log.Errorf("persisting failed sign for %s: %v", sign.ContractID, storeErr)
		}
		return err
	}

	// The offerer's inputs come first in the funding transaction; their
	// witnesses arrive in the sign message, ours come from the wallet.
	fundingTx := accepted.FundingTx
	numOffer := len(offered.FundingInputs)
	if len(sign.FundingSignatures) != numOffer {
		return dlcerr.New(dlcerr.KindInvalidParameters,
			"expected %d funding witnesses, got %d", numOffer, len(sign.FundingSignatures))
	}
	for i, raw := range sign.FundingSignatures {
		witness, err := splitWitness(raw)
		if err != nil {
			return err
		}
		fundingTx.TxIn[i].Witness = witness
	}

	acceptUtxos, _, err := m.resolveInputs(ctx, accepted.AcceptMessage.FundingInputs)
	if err != nil {
		return err
	}
	for i := range acceptUtxos {
		idx := numOffer + i
		script, err := m.wallet.SignInput(ctx, fundingTx, idx, &acceptUtxos[i].Output, nil)
		if err != nil {
			return dlcerr.Wrap(dlcerr.KindWallet, err, "signing funding input %d", idx)
		}
		fundingTx.TxIn[idx].Witness = script.Witness
	}

	signedAccepted := *accepted
	signedAccepted.AdaptorInfos = adaptorInfos
	signed := &contract.SignedContract{
		Accepted:    signedAccepted,
		SignMessage: sign,
	}

	// Persist before broadcast: a rebroadcast after a crash is a
	// harmless network-level no-op, an unpersisted broadcast is not.
	if err := m.store.Update(ctx, signed); err != nil {
		return err
	}
	if err := m.chain.Broadcast(ctx, fundingTx); err != nil {
		return err
	}

	log.Infof("funded contract %s", sign.ContractID)
	return nil
}

// loadOffered fetches the Offered record under tempID.
func (m *Manager) loadOffered(ctx context.Context, tempID contract.TempID) (*contract.OfferedContract, error) {
	c, ok, err := m.store.Get(ctx, tempID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dlcerr.New(dlcerr.KindInvalidParameters, "no contract %s", tempID)
	}
	offered, ok := c.(*contract.OfferedContract)
	if !ok {
		return nil, dlcerr.New(dlcerr.KindInvalidState,
			"contract %s is %s, expected offered", tempID, c.State())
	}
	return offered, nil
}

// newSPK vends a fresh wallet address as a script pubkey.
func (m *Manager) newSPK(ctx context.Context) ([]byte, error) {
	addr, err := m.wallet.NewAddress(ctx)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindWallet, err, "deriving address")
	}
	spk, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindWallet, err, "building script for %s", addr)
	}
	return spk, nil
}

// watchFundingScript imports the funding output's P2WSH address so the
// wallet observes the funding transaction confirming.
func (m *Manager) watchFundingScript(ctx context.Context, redeemScript []byte) error {
	scriptHash := sha256.Sum256(redeemScript)
	addr, err := btcutil.NewAddressWitnessScriptHash(scriptHash[:], m.chain.Network().Params())
	if err != nil {
		return dlcerr.Wrap(dlcerr.KindWallet, err, "deriving funding address")
	}
	if err := m.wallet.ImportAddress(ctx, addr); err != nil {
		return dlcerr.Wrap(dlcerr.KindWallet, err, "importing funding address")
	}
	return nil
}
