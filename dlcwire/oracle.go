package dlcwire

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// DigitDecompositionBase is the base every digit of an outcome is decomposed
// into. The engine only ever uses binary (base 2) decomposition.
const DigitDecompositionBase = 2

// EventDescriptor describes the shape of the outcome an announcement
// commits to. base=2/is_signed=false/precision=0 is the only decomposition
// this engine produces, but the fields are still carried on the wire since
// they're part of the announcement's signed payload.
type EventDescriptor struct {
	Base      uint32
	IsSigned  bool
	Unit      string
	Precision int32
	NbDigits  uint16
}

func (d *EventDescriptor) Encode(w io.Writer) error {
	if err := writeUint32(w, d.Base); err != nil {
		return err
	}
	if err := writeBool(w, d.IsSigned); err != nil {
		return err
	}
	if err := writeString(w, d.Unit); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(d.Precision)); err != nil {
		return err
	}
	return writeUint16(w, d.NbDigits)
}

func (d *EventDescriptor) Decode(r io.Reader) error {
	var err error
	if d.Base, err = readUint32(r); err != nil {
		return err
	}
	if d.IsSigned, err = readBool(r); err != nil {
		return err
	}
	if d.Unit, err = readString(r); err != nil {
		return err
	}
	prec, err := readUint32(r)
	if err != nil {
		return err
	}
	d.Precision = int32(prec)
	if d.NbDigits, err = readUint16(r); err != nil {
		return err
	}
	return nil
}

// IsDigitDecomposition reports whether this descriptor describes the
// digit-decomposition encoding the attestor core produces. Any other shape
// is rejected by Attest per spec.md §4.5/§8 scenario 5.
func (d *EventDescriptor) IsDigitDecomposition() bool {
	return d.Base == DigitDecompositionBase && !d.IsSigned && d.Precision == 0
}

// OracleEvent is the attestor's commitment to an event: the vector of
// public nonces it will later reveal scalars against, the maturation time,
// the outcome shape, and the caller-chosen event id.
type OracleEvent struct {
	OracleNonces       []*btcec.PublicKey
	EventMaturityEpoch uint32
	EventDescriptor    EventDescriptor
	EventID            string
}

func (e *OracleEvent) Encode(w io.Writer) error {
	if err := writeUint16(w, uint16(len(e.OracleNonces))); err != nil {
		return err
	}
	for _, nonce := range e.OracleNonces {
		if err := writeFixed(w, schnorr.SerializePubKey(nonce)); err != nil {
			return err
		}
	}
	if err := writeUint32(w, e.EventMaturityEpoch); err != nil {
		return err
	}
	if err := e.EventDescriptor.Encode(w); err != nil {
		return err
	}
	return writeString(w, e.EventID)
}

func (e *OracleEvent) Decode(r io.Reader) error {
	n, err := readUint16(r)
	if err != nil {
		return err
	}
	e.OracleNonces = make([]*btcec.PublicKey, n)
	for i := range e.OracleNonces {
		raw, err := readFixed(r, schnorr.PubKeyBytesLen)
		if err != nil {
			return err
		}
		pk, err := schnorr.ParsePubKey(raw)
		if err != nil {
			return fmt.Errorf("dlcwire: decoding oracle nonce %d: %w", i, err)
		}
		e.OracleNonces[i] = pk
	}
	if e.EventMaturityEpoch, err = readUint32(r); err != nil {
		return err
	}
	if err := e.EventDescriptor.Decode(r); err != nil {
		return err
	}
	e.EventID, err = readString(r)
	return err
}

// Serialize returns the canonical byte encoding of the event, the message
// whose SHA256 the announcement signature commits to.
func (e *OracleEvent) Serialize() []byte {
	var buf bytes.Buffer
	// Encode never fails writing into a bytes.Buffer.
	_ = e.Encode(&buf)
	return buf.Bytes()
}

// Digest returns SHA256(Serialize()).
func (e *OracleEvent) Digest() [32]byte {
	return sha256.Sum256(e.Serialize())
}

// OracleAnnouncement is the attestor's signed commitment to a future event.
type OracleAnnouncement struct {
	OraclePublicKey      *btcec.PublicKey
	AnnouncementSignature *schnorr.Signature
	OracleEvent           OracleEvent
}

func (a *OracleAnnouncement) Encode(w io.Writer) error {
	if err := writeFixed(w, schnorr.SerializePubKey(a.OraclePublicKey)); err != nil {
		return err
	}
	if err := writeFixed(w, a.AnnouncementSignature.Serialize()); err != nil {
		return err
	}
	return a.OracleEvent.Encode(w)
}

func (a *OracleAnnouncement) Decode(r io.Reader) error {
	rawPK, err := readFixed(r, schnorr.PubKeyBytesLen)
	if err != nil {
		return err
	}
	if a.OraclePublicKey, err = schnorr.ParsePubKey(rawPK); err != nil {
		return fmt.Errorf("dlcwire: decoding oracle public key: %w", err)
	}

	rawSig, err := readFixed(r, schnorr.SignatureSize)
	if err != nil {
		return err
	}
	if a.AnnouncementSignature, err = schnorr.ParseSignature(rawSig); err != nil {
		return fmt.Errorf("dlcwire: decoding announcement signature: %w", err)
	}

	return a.OracleEvent.Decode(r)
}

// Serialize returns the bit-exact binary encoding of the announcement.
func (a *OracleAnnouncement) Serialize() []byte {
	var buf bytes.Buffer
	_ = a.Encode(&buf)
	return buf.Bytes()
}

// ParseOracleAnnouncement decodes an announcement from its binary form.
func ParseOracleAnnouncement(b []byte) (*OracleAnnouncement, error) {
	var a OracleAnnouncement
	if err := a.Decode(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return &a, nil
}

// Verify checks that AnnouncementSignature is a valid Schnorr signature by
// OraclePublicKey over SHA256(serialize(OracleEvent)).
func (a *OracleAnnouncement) Verify() bool {
	digest := a.OracleEvent.Digest()
	return a.AnnouncementSignature.Verify(digest[:], a.OraclePublicKey)
}

// OracleAttestation is the attestor's reveal: one signature per outcome
// digit, each produced with the nonce pre-committed in the matching
// announcement.
type OracleAttestation struct {
	OraclePublicKey *btcec.PublicKey
	EventID         string
	Signatures      []*schnorr.Signature
	Outcomes        []string
}

func (a *OracleAttestation) Encode(w io.Writer) error {
	if err := writeFixed(w, schnorr.SerializePubKey(a.OraclePublicKey)); err != nil {
		return err
	}
	if err := writeString(w, a.EventID); err != nil {
		return err
	}
	if len(a.Signatures) != len(a.Outcomes) {
		return fmt.Errorf("dlcwire: %d signatures but %d outcomes",
			len(a.Signatures), len(a.Outcomes))
	}
	if err := writeUint16(w, uint16(len(a.Signatures))); err != nil {
		return err
	}
	for i, sig := range a.Signatures {
		if err := writeFixed(w, sig.Serialize()); err != nil {
			return err
		}
		if err := writeString(w, a.Outcomes[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *OracleAttestation) Decode(r io.Reader) error {
	rawPK, err := readFixed(r, schnorr.PubKeyBytesLen)
	if err != nil {
		return err
	}
	if a.OraclePublicKey, err = schnorr.ParsePubKey(rawPK); err != nil {
		return fmt.Errorf("dlcwire: decoding oracle public key: %w", err)
	}
	if a.EventID, err = readString(r); err != nil {
		return err
	}
	n, err := readUint16(r)
	if err != nil {
		return err
	}
	a.Signatures = make([]*schnorr.Signature, n)
	a.Outcomes = make([]string, n)
	for i := 0; i < int(n); i++ {
		rawSig, err := readFixed(r, schnorr.SignatureSize)
		if err != nil {
			return err
		}
		if a.Signatures[i], err = schnorr.ParseSignature(rawSig); err != nil {
			return fmt.Errorf("dlcwire: decoding attestation signature %d: %w", i, err)
		}
		if a.Outcomes[i], err = readString(r); err != nil {
			return err
		}
	}
	return nil
}

// Serialize returns the bit-exact binary encoding of the attestation.
func (a *OracleAttestation) Serialize() []byte {
	var buf bytes.Buffer
	_ = a.Encode(&buf)
	return buf.Bytes()
}

// ParseOracleAttestation decodes an attestation from its binary form.
func ParseOracleAttestation(b []byte) (*OracleAttestation, error) {
	var a OracleAttestation
	if err := a.Decode(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return &a, nil
}

// Verify checks that every signatures[i] is a valid Schnorr signature by
// OraclePublicKey over SHA256(outcomes[i]), using the nonce-locked scheme:
// the signature's own R value must be compared against the matching
// announcement's pre-committed nonce by the caller (see dlcmanager), since
// a bare Verify call alone cannot check nonce-reuse.
func (a *OracleAttestation) Verify() bool {
	if len(a.Signatures) != len(a.Outcomes) {
		return false
	}
	for i, sig := range a.Signatures {
		digest := sha256.Sum256([]byte(a.Outcomes[i]))
		if !sig.Verify(digest[:], a.OraclePublicKey) {
			return false
		}
	}
	return true
}
