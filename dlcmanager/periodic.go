package dlcmanager

import (
	"bytes"
	"context"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/sync/errgroup"

	"github.com/dlc-link/dlc-engine/contract"
	"github.com/dlc-link/dlc-engine/dlcerr"
	"github.com/dlc-link/dlc-engine/dlcwire"
	"github.com/dlc-link/dlc-engine/txbuilder"
)

// CheckResult names one contract whose state advanced during a periodic
// tick, and the oracle event it is bound to.
type CheckResult struct {
	ContractID contract.ID
	EventID    string
}

// PeriodicCheck scans the three reconciliation buckets in order — Signed
// awaiting funding depth, Confirmed awaiting attestations or refund,
// PreClosed awaiting CET depth — and returns the contracts that advanced.
// Per-contract failures are logged and skipped; the next tick observes the
// same pending state and retries.
func (m *Manager) PeriodicCheck(ctx context.Context) ([]CheckResult, error) {
	var results []CheckResult

	signed, err := m.store.GetByState(ctx, contract.StateSigned)
	if err != nil {
		return nil, err
	}
	for _, c := range signed {
		sc, ok := c.(*contract.SignedContract)
		if !ok {
			continue
		}
		res, err := m.checkSigned(ctx, sc)
		if err != nil {
			log.Errorf("checking signed contract %s: %v", sc.Accepted.ContractIDValue, err)
			continue
		}
		if res != nil {
			results = append(results, *res)
		}
	}

	confirmed, err := m.store.GetByState(ctx, contract.StateConfirmed)
	if err != nil {
		return nil, err
	}
	for _, c := range confirmed {
		cc, ok := c.(*contract.ConfirmedContract)
		if !ok {
			continue
		}
		res, err := m.checkConfirmed(ctx, cc)
		if err != nil {
			log.Errorf("checking confirmed contract %s: %v",
				cc.Signed.Accepted.ContractIDValue, err)
			continue
		}
		if res != nil {
			results = append(results, *res)
		}
	}

	preClosed, err := m.store.GetByState(ctx, contract.StatePreClosed)
	if err != nil {
		return nil, err
	}
	for _, c := range preClosed {
		pc, ok := c.(*contract.PreClosedContract)
		if !ok {
			continue
		}
		res, err := m.checkPreClosed(ctx, pc)
		if err != nil {
			log.Errorf("checking pre-closed contract %s: %v",
				pc.Confirmed.Signed.Accepted.ContractIDValue, err)
			continue
		}
		if res != nil {
			results = append(results, *res)
		}
	}

	return results, nil
}

// checkSigned promotes a funded contract once the funding transaction
// reaches the confirmation threshold.
func (m *Manager) checkSigned(ctx context.Context, sc *contract.SignedContract) (*CheckResult, error) {
	confs, err := m.chain.Confirmations(ctx, sc.Accepted.FundingTx.TxHash())
	if err != nil {
		return nil, err
	}
	if confs < m.nbConfirmations {
		return nil, nil
	}

	confirmedContract := &contract.ConfirmedContract{Signed: *sc}
	if err := m.store.Update(ctx, confirmedContract); err != nil {
		return nil, err
	}
	log.Infof("contract %s confirmed at depth %d", sc.Accepted.ContractIDValue, confs)
	return &CheckResult{
		ContractID: sc.Accepted.ContractIDValue,
		EventID:    firstEventID(sc.Accepted.Offered.ContractInfos),
	}, nil
}

// checkConfirmed attempts attestation-driven closure, falling back to the
// refund check when no contract-info meets its threshold.
func (m *Manager) checkConfirmed(ctx context.Context, cc *contract.ConfirmedContract) (*CheckResult, error) {
	res, closed, err := m.tryClose(ctx, cc)
	if err != nil {
		return nil, err
	}
	if closed {
		return res, nil
	}
	return m.checkRefund(ctx, cc)
}

// checkPreClosed finalizes a broadcast CET once it reaches the
// confirmation threshold, and rebroadcasts one the network hasn't seen.
func (m *Manager) checkPreClosed(ctx context.Context, pc *contract.PreClosedContract) (*CheckResult, error) {
	id := pc.Confirmed.Signed.Accepted.ContractIDValue
	confs, err := m.chain.Confirmations(ctx, pc.SignedCET.TxHash())
	if err != nil {
		return nil, err
	}
	if confs == 0 {
		// A persisted-but-unseen CET means the original broadcast was
		// lost; replaying an already-accepted one is a harmless no-op.
		if err := m.chain.Broadcast(ctx, pc.SignedCET); err != nil {
			log.Warnf("rebroadcasting CET for %s: %v", id, err)
		}
		return nil, nil
	}
	if confs < m.nbConfirmations {
		return nil, nil
	}

	closed := &contract.ClosedContract{PreClosed: *pc, Pnl: m.realizedPnl(pc)}
	if err := m.store.Update(ctx, closed); err != nil {
		return nil, err
	}
	log.Infof("contract %s closed, pnl %d", id, closed.Pnl)
	return &CheckResult{
		ContractID: id,
		EventID:    firstEventID(pc.Confirmed.Signed.Accepted.Offered.ContractInfos),
	}, nil
}

// gatherAttestations is the best-of-N fan-out: request every announced
// oracle's attestation concurrently, collect the successes, and discard
// individual failures. Returned entries are nil where an oracle failed.
func (m *Manager) gatherAttestations(ctx context.Context, info *dlcwire.ContractInfo) []*dlcwire.OracleAttestation {
	eventID := info.EventID()
	atts := make([]*dlcwire.OracleAttestation, len(info.Announcements))

	g, gctx := errgroup.WithContext(ctx)
	for i := range info.Announcements {
		i := i
		oraclePub := info.Announcements[i].OraclePublicKey
		g.Go(func() error {
			oracle, err := m.oracleByPubKey(gctx, oraclePub)
			if err != nil {
				log.Debugf("no client for announced oracle: %v", err)
				return nil
			}
			att, err := oracle.GetAttestation(gctx, eventID)
			if err != nil {
				log.Debugf("attestation for %q from oracle %d: %v", eventID, i, err)
				return nil
			}
			if !att.Verify() {
				log.Warnf("attestation for %q from oracle %d fails verification", eventID, i)
				return nil
			}
			if !verifyAttestationNonces(&info.Announcements[i], att) {
				log.Warnf("attestation for %q from oracle %d does not use the committed nonces", eventID, i)
				return nil
			}
			atts[i] = att
			return nil
		})
	}
	_ = g.Wait()
	return atts
}

// verifyAttestationNonces checks every signature's nonce against the
// announcement's pre-committed oracle_nonces; an attestation signed with
// fresh nonces cannot decrypt the contract's adaptor signatures.
func verifyAttestationNonces(ann *dlcwire.OracleAnnouncement, att *dlcwire.OracleAttestation) bool {
	nonces := ann.OracleEvent.OracleNonces
	if len(att.Signatures) != len(nonces) {
		return false
	}
	for i, sig := range att.Signatures {
		raw := sig.Serialize()
		if !bytes.Equal(raw[:32], schnorr.SerializePubKey(nonces[i])) {
			return false
		}
	}
	return true
}

// tryClose gathers attestations for each contract-info in turn and, when
// a threshold-sized set agrees on an outcome, derives, persists and
// broadcasts the signed CET.
func (m *Manager) tryClose(ctx context.Context, cc *contract.ConfirmedContract) (*CheckResult, bool, error) {
	accepted := &cc.Signed.Accepted
	offered := &accepted.Offered

	for infoIdx := range offered.ContractInfos {
		info := &offered.ContractInfos[infoIdx]
		if infoIdx >= len(accepted.AdaptorInfos) {
			return nil, false, dlcerr.New(dlcerr.KindInvalidState,
				"contract %s has no adaptor signatures for info %d",
				accepted.ContractIDValue, infoIdx)
		}

		atts := m.gatherAttestations(ctx, info)

		// The threshold check counts only attestations that agree on
		// the outcome; a disagreeing oracle is as useless to closure as
		// an unreachable one.
		byOutcome := make(map[string][]int)
		for i, att := range atts {
			if att == nil {
				continue
			}
			key := strings.Join(att.Outcomes, "")
			byOutcome[key] = append(byOutcome[key], i)
		}

		var agreeing []int
		for _, idxs := range byOutcome {
			if len(idxs) >= int(info.Threshold) && len(idxs) > len(agreeing) {
				agreeing = idxs
			}
		}
		if len(agreeing) == 0 {
			continue
		}

		res, err := m.closeWithAttestations(ctx, cc, infoIdx, agreeing, atts)
		if err != nil {
			return nil, false, err
		}
		return res, true, nil
	}
	return nil, false, nil
}

// closeWithAttestations decrypts the counterparty's adaptor signature for
// the attested outcome, assembles the signed CET, and hands it to the
// closure helper.
func (m *Manager) closeWithAttestations(ctx context.Context, cc *contract.ConfirmedContract,
	infoIdx int, agreeing []int, atts []*dlcwire.OracleAttestation) (*CheckResult, error) {

	accepted := &cc.Signed.Accepted
	offered := &accepted.Offered
	info := &offered.ContractInfos[infoIdx]

	outcome, err := outcomeFromDigits(atts[agreeing[0]].Outcomes)
	if err != nil {
		return nil, err
	}

	payoutIdx := -1
	for j, point := range info.PayoutCurve {
		if point.Outcome == outcome {
			payoutIdx = j
			break
		}
	}
	if payoutIdx < 0 {
		return nil, dlcerr.New(dlcerr.KindInvalidState,
			"attested outcome %d has no payout point in info %d", outcome, infoIdx)
	}

	// The adaptor signatures were laid out one run per oracle
	// combination; pick the first combination the agreeing set covers.
	available := make(map[int]bool, len(agreeing))
	for _, i := range agreeing {
		available[i] = true
	}
	combos := txbuilder.Combinations(len(info.Announcements), int(info.Threshold))
	comboIdx := -1
	var combo []int
	for k, c := range combos {
		covered := true
		for _, i := range c {
			if !available[i] {
				covered = false
				break
			}
		}
		if covered {
			comboIdx, combo = k, c
			break
		}
	}
	if comboIdx < 0 {
		return nil, dlcerr.New(dlcerr.KindInvalidState,
			"no oracle combination covered by the agreeing attestations")
	}

	comboAtts := make([]*dlcwire.OracleAttestation, len(combo))
	for i, idx := range combo {
		comboAtts[i] = atts[idx]
	}

	fundingOP := fundingOutPoint(accepted.FundingTx)
	cets := buildCETs(offered, fundingOP, accepted.AcceptMessage.PayoutSPK)
	cet := cets[infoIdx][payoutIdx]
	total := offered.TotalCollateral()

	hash, err := txbuilder.SigHash(cet, 0, accepted.FundingRedeemScript, int64(total))
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindCrypto, err, "hashing closing CET")
	}

	point, err := comboPoint(info, combo, outcome)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindCrypto, err, "computing closing outcome point")
	}
	secret, err := txbuilder.AttestationsSecret(comboAtts)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindCrypto, err, "summing attestation scalars")
	}

	sigIdx := comboIdx*len(info.PayoutCurve) + payoutIdx
	adaptorSig := &accepted.AdaptorInfos[infoIdx].Sigs[sigIdx]
	theirSig, err := txbuilder.Decrypt(adaptorSig, point, secret, counterpartyFundingPub(accepted), hash)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindCrypto, err, "decrypting counterparty CET signature")
	}

	ownPriv, err := ownFundingPriv(accepted)
	if err != nil {
		return nil, err
	}
	ownSig, err := schnorr.Sign(ownPriv, hash[:])
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindCrypto, err, "signing closing CET")
	}

	offerSig, acceptSig := ownSig.Serialize(), theirSig.Serialize()
	if !offered.IsOfferer {
		offerSig, acceptSig = acceptSig, offerSig
	}
	cet.TxIn[0].Witness = txbuilder.MultisigWitness(
		accepted.FundingRedeemScript, offered.FundingPubkey, accepted.AcceptPubkey,
		offerSig, acceptSig,
	)

	return m.closeContract(ctx, cc, infoIdx, cet, comboAtts)
}

// closeContract is the closure helper: broadcast at zero confirmations,
// stay PreClosed below the confirmation threshold without rebroadcasting,
// land Closed at or above it. Persistence always precedes broadcast.
func (m *Manager) closeContract(ctx context.Context, cc *contract.ConfirmedContract,
	infoIdx int, cet *wire.MsgTx, atts []*dlcwire.OracleAttestation) (*CheckResult, error) {

	accepted := &cc.Signed.Accepted
	confs, err := m.chain.Confirmations(ctx, cet.TxHash())
	if err != nil {
		return nil, err
	}

	preClosed := &contract.PreClosedContract{
		Confirmed:         *cc,
		ContractInfoIndex: infoIdx,
		SignedCET:         cet,
		Attestations:      atts,
	}
	res := &CheckResult{
		ContractID: accepted.ContractIDValue,
		EventID:    accepted.Offered.ContractInfos[infoIdx].EventID(),
	}

	if confs >= m.nbConfirmations {
		closed := &contract.ClosedContract{PreClosed: *preClosed, Pnl: m.realizedPnl(preClosed)}
		if err := m.store.Update(ctx, closed); err != nil {
			return nil, err
		}
		log.Infof("contract %s closed, pnl %d", accepted.ContractIDValue, closed.Pnl)
		return res, nil
	}

	if err := m.store.Update(ctx, preClosed); err != nil {
		return nil, err
	}
	if confs == 0 {
		if err := m.chain.Broadcast(ctx, cet); err != nil {
			// Not rolled back; the pre-closed bucket retries next tick.
			log.Warnf("broadcasting CET for %s: %v", accepted.ContractIDValue, err)
		}
	}
	log.Infof("contract %s pre-closed", accepted.ContractIDValue)
	return res, nil
}

// realizedPnl computes this party's profit and loss at closure: its share
// of the attested payout point minus the collateral it committed.
func (m *Manager) realizedPnl(pc *contract.PreClosedContract) int64 {
	accepted := &pc.Confirmed.Signed.Accepted
	offered := &accepted.Offered
	info := &offered.ContractInfos[pc.ContractInfoIndex]

	if len(pc.Attestations) == 0 {
		return 0
	}
	outcome, err := outcomeFromDigits(pc.Attestations[0].Outcomes)
	if err != nil {
		return 0
	}
	for _, point := range info.PayoutCurve {
		if point.Outcome != outcome {
			continue
		}
		if offered.IsOfferer {
			return int64(point.Payout) - int64(offered.OfferCollateral)
		}
		return int64(info.TotalCollateral-point.Payout) - int64(offered.AcceptCollateral)
	}
	return 0
}

// checkRefund signs and broadcasts the refund transaction once the
// wall-clock passes its locktime and it remains unconfirmed.
func (m *Manager) checkRefund(ctx context.Context, cc *contract.ConfirmedContract) (*CheckResult, error) {
	accepted := &cc.Signed.Accepted
	offered := &accepted.Offered
	refundTx := accepted.RefundTx

	if uint32(m.clock.Now().Unix()) <= refundTx.LockTime {
		return nil, nil
	}
	confs, err := m.chain.Confirmations(ctx, refundTx.TxHash())
	if err != nil {
		return nil, err
	}
	if confs > 0 {
		return nil, nil
	}

	total := offered.TotalCollateral()
	hash, err := txbuilder.SigHash(refundTx, 0, accepted.FundingRedeemScript, int64(total))
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindCrypto, err, "hashing refund tx")
	}
	ownPriv, err := ownFundingPriv(accepted)
	if err != nil {
		return nil, err
	}
	ownSig, err := schnorr.Sign(ownPriv, hash[:])
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindCrypto, err, "signing refund tx")
	}

	var theirSig [64]byte
	if offered.IsOfferer {
		theirSig = accepted.AcceptMessage.RefundSignature
	} else {
		theirSig = cc.Signed.SignMessage.RefundSignature
	}

	offerSig, acceptSig := ownSig.Serialize(), theirSig[:]
	if !offered.IsOfferer {
		offerSig, acceptSig = acceptSig, offerSig
	}
	refundTx.TxIn[0].Witness = txbuilder.MultisigWitness(
		accepted.FundingRedeemScript, offered.FundingPubkey, accepted.AcceptPubkey,
		offerSig, acceptSig,
	)

	refunded := &contract.RefundedContract{Confirmed: *cc}
	if err := m.store.Update(ctx, refunded); err != nil {
		return nil, err
	}
	if err := m.chain.Broadcast(ctx, refundTx); err != nil {
		log.Warnf("broadcasting refund for %s: %v", accepted.ContractIDValue, err)
	}

	log.Infof("refunded contract %s", accepted.ContractIDValue)
	return &CheckResult{
		ContractID: accepted.ContractIDValue,
		EventID:    firstEventID(offered.ContractInfos),
	}, nil
}

func firstEventID(infos []dlcwire.ContractInfo) string {
	if len(infos) == 0 {
		return ""
	}
	return infos[0].EventID()
}
