// Package attestor implements the federated oracle's core: announcing
// future events by committing to a vector of Schnorr nonces, and later
// attesting to their outcome using the nonce-locked signing scheme that
// makes the DLC's adaptor signatures decryptable.
package attestor

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/dlc-link/dlc-engine/dlcerr"
	"github.com/dlc-link/dlc-engine/dlcwire"
)

// NbDigits is the number of outcome digits every announcement commits to,
// giving outcomes in [0, 2^NbDigits - 1].
const NbDigits = 14

// DefaultUnit is the outcome unit every announcement in this deployment
// describes.
const DefaultUnit = "BTCUSD"

// Attestor is a single federated oracle. It owns one long-lived signing
// key and the store of event records it has announced or attested.
type Attestor struct {
	privKey *btcec.PrivateKey
	store   EventStore
	clock   clock.Clock
}

// New creates an Attestor backed by store, signing with privKey. If clk is
// nil, the default wall-clock source is used.
func New(privKey *btcec.PrivateKey, store EventStore, clk clock.Clock) *Attestor {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Attestor{privKey: privKey, store: store, clock: clk}
}

// PublicKey returns the attestor's x-only Schnorr public key.
func (a *Attestor) PublicKey() *btcec.PublicKey {
	return a.privKey.PubKey()
}

// CreateEvent announces a new event: it draws NbDigits fresh nonces, builds
// and signs the oracle_event, and persists the record keyed by eventID. If
// the store write fails, the caller MUST retry with the same eventID.
func (a *Attestor) CreateEvent(eventID string, maturationEpoch uint32, chainTag string) (*dlcwire.OracleAnnouncement, error) {
	if _, exists := a.store.Get(eventID); exists {
		return nil, dlcerr.New(dlcerr.KindInvalidState,
			"event %q already announced", eventID)
	}

	skNonces := make([]*btcec.PrivateKey, NbDigits)
	oracleNonces := make([]*btcec.PublicKey, NbDigits)
	for i := 0; i < NbDigits; i++ {
		sk, err := btcec.NewPrivateKey()
		if err != nil {
			return nil, dlcerr.Wrap(dlcerr.KindCrypto, err,
				"drawing nonce %d for event %q", i, eventID)
		}
		skNonces[i] = sk
		oracleNonces[i] = sk.PubKey()
	}

	event := dlcwire.OracleEvent{
		OracleNonces:       oracleNonces,
		EventMaturityEpoch: maturationEpoch,
		EventDescriptor: dlcwire.EventDescriptor{
			Base:      dlcwire.DigitDecompositionBase,
			IsSigned:  false,
			Unit:      DefaultUnit,
			Precision: 0,
			NbDigits:  NbDigits,
		},
		EventID: eventID,
	}

	digest := event.Digest()
	sig, err := signWithNonce(a.privKey, mustFreshNonce(), digest[:])
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindCrypto, err,
			"signing announcement for event %q", eventID)
	}

	announcement := &dlcwire.OracleAnnouncement{
		OraclePublicKey:       a.privKey.PubKey(),
		AnnouncementSignature: sig,
		OracleEvent:           event,
	}

	rec := &EventRecord{
		EventID:           eventID,
		Chain:             chainTag,
		SkNonces:          skNonces,
		Announcement:      *announcement,
		AnnouncementBytes: announcement.Serialize(),
	}
	if err := a.store.Put(rec); err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindStorage, err,
			"failed to create event %q", eventID)
	}

	return announcement, nil
}

// mustFreshNonce draws a one-off nonce for the announcement signature
// itself (distinct from the per-digit oracle_nonces committed inside the
// event). Announcement signing isn't nonce-locked to anything external, so
// any fresh nonce serves; failure here is as unrecoverable as a failed
// call to crypto/rand and is treated as a programmer-visible panic rather
// than threaded through every CreateEvent caller.
func mustFreshNonce() *btcec.PrivateKey {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		panic(fmt.Sprintf("attestor: drawing announcement nonce: %v", err))
	}
	return sk
}

// Attest reveals the attestor's scalars for eventID's big-endian binary
// decomposition of outcome. It refuses to run twice against the same
// event id: once a record carries an attestation, a second call is an
// invalid-state error and the record is left untouched.
func (a *Attestor) Attest(eventID string, outcome uint64) (*dlcwire.OracleAttestation, error) {
	rec, ok := a.store.Get(eventID)
	if !ok {
		return nil, dlcerr.New(dlcerr.KindInvalidParameters,
			"no event record for %q", eventID)
	}
	if rec.IsAttested() {
		return nil, dlcerr.New(dlcerr.KindInvalidState,
			"event %q already attested", eventID)
	}
	if !rec.Announcement.OracleEvent.EventDescriptor.IsDigitDecomposition() {
		return nil, dlcerr.New(dlcerr.KindInvalidState,
			"event %q descriptor is not digit-decomposition", eventID)
	}

	nbDigits := int(rec.Announcement.OracleEvent.EventDescriptor.NbDigits)
	if outcome >= uint64(1)<<uint(nbDigits) {
		return nil, dlcerr.New(dlcerr.KindInvalidParameters,
			"outcome %d exceeds %d-digit range for event %q", outcome, nbDigits, eventID)
	}

	digits := binaryDigits(outcome, nbDigits)

	signatures := make([]*schnorr.Signature, nbDigits)
	for i, digit := range digits {
		digest := sha256.Sum256([]byte(digit))
		sig, err := signWithNonce(a.privKey, rec.SkNonces[i], digest[:])
		if err != nil {
			return nil, dlcerr.Wrap(dlcerr.KindCrypto, err,
				"signing digit %d for event %q", i, eventID)
		}
		signatures[i] = sig
	}

	attestation := &dlcwire.OracleAttestation{
		OraclePublicKey: a.privKey.PubKey(),
		EventID:         eventID,
		Signatures:      signatures,
		Outcomes:        digits,
	}

	o := outcome
	rec.Attestation = attestation
	rec.AttestationBytes = attestation.Serialize()
	rec.Outcome = &o
	rec.SkNonces = nil // erase once spent, per the event record invariant

	if err := a.store.Put(rec); err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindStorage, err,
			"persisting attestation for event %q", eventID)
	}

	return attestation, nil
}

// binaryDigits returns outcome's big-endian binary expansion as "0"/"1"
// ASCII strings, width digits wide.
func binaryDigits(outcome uint64, width int) []string {
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
