package dlcwire

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// FundingInput is one UTXO a party commits to the funding transaction,
// together with the information its counterparty needs to verify and
// co-sign it.
type FundingInput struct {
	InputSerialID      uint64
	PrevOut            wire.OutPoint
	Sequence           uint32
	MaxWitnessLen      uint16
	RedeemScript       []byte
}

func (f *FundingInput) Encode(w io.Writer) error {
	if err := writeUint64(w, f.InputSerialID); err != nil {
		return err
	}
	if err := writeFixed(w, f.PrevOut.Hash[:]); err != nil {
		return err
	}
	if err := writeUint32(w, f.PrevOut.Index); err != nil {
		return err
	}
	if err := writeUint32(w, f.Sequence); err != nil {
		return err
	}
	if err := writeUint16(w, f.MaxWitnessLen); err != nil {
		return err
	}
	return writeVarBytes(w, f.RedeemScript)
}

func (f *FundingInput) Decode(r io.Reader) error {
	var err error
	if f.InputSerialID, err = readUint64(r); err != nil {
		return err
	}
	hashBytes, err := readFixed(r, chainhash.HashSize)
	if err != nil {
		return err
	}
	copy(f.PrevOut.Hash[:], hashBytes)
	if f.PrevOut.Index, err = readUint32(r); err != nil {
		return err
	}
	if f.Sequence, err = readUint32(r); err != nil {
		return err
	}
	if f.MaxWitnessLen, err = readUint16(r); err != nil {
		return err
	}
	f.RedeemScript, err = readVarBytes(r)
	return err
}

// PayoutPoint is one vertex of a contract's piecewise-linear payout curve:
// at outcome value Outcome, the offering party receives Payout satoshis.
type PayoutPoint struct {
	Outcome uint64
	Payout  uint64
}

func (p *PayoutPoint) Encode(w io.Writer) error {
	if err := writeUint64(w, p.Outcome); err != nil {
		return err
	}
	return writeUint64(w, p.Payout)
}

func (p *PayoutPoint) Decode(r io.Reader) error {
	var err error
	if p.Outcome, err = readUint64(r); err != nil {
		return err
	}
	p.Payout, err = readUint64(r)
	return err
}

// ContractInfo binds a quorum of attestors' announcements of the same
// event to the payout curve that applies once Threshold of them agree on
// an outcome. Every Announcements[i] is expected to commit to the same
// event id; the manager's quorum fan-out (see dlcmanager) is what
// actually enforces that they agree at attestation time.
type ContractInfo struct {
	TotalCollateral uint64
	Threshold       uint16
	Announcements   []OracleAnnouncement
	PayoutCurve     []PayoutPoint
}

func (c *ContractInfo) Encode(w io.Writer) error {
	if err := writeUint64(w, c.TotalCollateral); err != nil {
		return err
	}
	if err := writeUint16(w, c.Threshold); err != nil {
		return err
	}
	if err := writeUint16(w, uint16(len(c.Announcements))); err != nil {
		return err
	}
	for i := range c.Announcements {
		if err := c.Announcements[i].Encode(w); err != nil {
			return err
		}
	}
	if err := writeUint16(w, uint16(len(c.PayoutCurve))); err != nil {
		return err
	}
	for i := range c.PayoutCurve {
		if err := c.PayoutCurve[i].Encode(w); err != nil {
			return err
		}
	}
	return nil
}

func (c *ContractInfo) Decode(r io.Reader) error {
	var err error
	if c.TotalCollateral, err = readUint64(r); err != nil {
		return err
	}
	if c.Threshold, err = readUint16(r); err != nil {
		return err
	}
	nAnn, err := readUint16(r)
	if err != nil {
		return err
	}
	c.Announcements = make([]OracleAnnouncement, nAnn)
	for i := range c.Announcements {
		if err := c.Announcements[i].Decode(r); err != nil {
			return err
		}
	}
	n, err := readUint16(r)
	if err != nil {
		return err
	}
	c.PayoutCurve = make([]PayoutPoint, n)
	for i := range c.PayoutCurve {
		if err := c.PayoutCurve[i].Decode(r); err != nil {
			return err
		}
	}
	return nil
}

// EventID returns the event id every announcement in this info must agree
// on, taken from the first announcement. Callers that build a
// ContractInfo are responsible for giving every oracle the same event id.
func (c *ContractInfo) EventID() string {
	if len(c.Announcements) == 0 {
		return ""
	}
	return c.Announcements[0].OracleEvent.EventID
}

// CetAdaptorSignature pairs one CET's adaptor (encrypted) signature with
// the commitment the decryption key is checked against.
type CetAdaptorSignature struct {
	EncryptedSig []byte
	DleqProof    []byte
}

func (s *CetAdaptorSignature) Encode(w io.Writer) error {
	if err := writeVarBytes(w, s.EncryptedSig); err != nil {
		return err
	}
	return writeVarBytes(w, s.DleqProof)
}

func (s *CetAdaptorSignature) Decode(r io.Reader) error {
	var err error
	if s.EncryptedSig, err = readVarBytes(r); err != nil {
		return err
	}
	s.DleqProof, err = readVarBytes(r)
	return err
}

// CetAdaptorSignatures is the ordered set of adaptor signatures over every
// CET in a contract: for each contract info in turn, one run per oracle
// combination, each run in payout-curve order.
type CetAdaptorSignatures struct {
	Sigs []CetAdaptorSignature
}

func (s *CetAdaptorSignatures) Encode(w io.Writer) error {
	if err := writeUint16(w, uint16(len(s.Sigs))); err != nil {
		return err
	}
	for i := range s.Sigs {
		if err := s.Sigs[i].Encode(w); err != nil {
			return err
		}
	}
	return nil
}

func (s *CetAdaptorSignatures) Decode(r io.Reader) error {
	n, err := readUint16(r)
	if err != nil {
		return err
	}
	s.Sigs = make([]CetAdaptorSignature, n)
	for i := range s.Sigs {
		if err := s.Sigs[i].Decode(r); err != nil {
			return err
		}
	}
	return nil
}

// OfferDlc is the first message of the protocol: the offering party's
// terms, proposed contract infos, funding inputs and change/collateral
// amounts.
type OfferDlc struct {
	ContractFlags       uint8
	ChainHash           chainhash.Hash
	TempContractID      chainhash.Hash
	ContractInfos       []ContractInfo
	FundingPubkeyBytes  [33]byte
	PayoutSPK           []byte
	PayoutSerialID      uint64
	OfferCollateral     uint64
	FundingInputs       []FundingInput
	ChangeSPK           []byte
	ChangeSerialID      uint64
	FundOutputSerialID  uint64
	FeeRatePerVb        uint64
	ContractMaturityBound uint32
	ContractTimeout     uint32
}

func (o *OfferDlc) Encode(w io.Writer) error {
	if err := writeUint16(w, uint16(o.ContractFlags)); err != nil {
		return err
	}
	if err := writeFixed(w, o.ChainHash[:]); err != nil {
		return err
	}
	if err := writeFixed(w, o.TempContractID[:]); err != nil {
		return err
	}
	if err := writeUint16(w, uint16(len(o.ContractInfos))); err != nil {
		return err
	}
	for i := range o.ContractInfos {
		if err := o.ContractInfos[i].Encode(w); err != nil {
			return err
		}
	}
	if err := writeFixed(w, o.FundingPubkeyBytes[:]); err != nil {
		return err
	}
	if err := writeVarBytes(w, o.PayoutSPK); err != nil {
		return err
	}
	if err := writeUint64(w, o.PayoutSerialID); err != nil {
		return err
	}
	if err := writeUint64(w, o.OfferCollateral); err != nil {
		return err
	}
	if err := writeUint16(w, uint16(len(o.FundingInputs))); err != nil {
		return err
	}
	for i := range o.FundingInputs {
		if err := o.FundingInputs[i].Encode(w); err != nil {
			return err
		}
	}
	if err := writeVarBytes(w, o.ChangeSPK); err != nil {
		return err
	}
	if err := writeUint64(w, o.ChangeSerialID); err != nil {
		return err
	}
	if err := writeUint64(w, o.FundOutputSerialID); err != nil {
		return err
	}
	if err := writeUint64(w, o.FeeRatePerVb); err != nil {
		return err
	}
	if err := writeUint32(w, o.ContractMaturityBound); err != nil {
		return err
	}
	return writeUint32(w, o.ContractTimeout)
}

func (o *OfferDlc) Decode(r io.Reader) error {
	flags, err := readUint16(r)
	if err != nil {
		return err
	}
	o.ContractFlags = uint8(flags)

	ch, err := readFixed(r, chainhash.HashSize)
	if err != nil {
		return err
	}
	copy(o.ChainHash[:], ch)

	tid, err := readFixed(r, chainhash.HashSize)
	if err != nil {
		return err
	}
	copy(o.TempContractID[:], tid)

	nInfos, err := readUint16(r)
	if err != nil {
		return err
	}
	o.ContractInfos = make([]ContractInfo, nInfos)
	for i := range o.ContractInfos {
		if err := o.ContractInfos[i].Decode(r); err != nil {
			return err
		}
	}

	pk, err := readFixed(r, 33)
	if err != nil {
		return err
	}
	copy(o.FundingPubkeyBytes[:], pk)

	if o.PayoutSPK, err = readVarBytes(r); err != nil {
		return err
	}
	if o.PayoutSerialID, err = readUint64(r); err != nil {
		return err
	}
	if o.OfferCollateral, err = readUint64(r); err != nil {
		return err
	}

	nInputs, err := readUint16(r)
	if err != nil {
		return err
	}
	o.FundingInputs = make([]FundingInput, nInputs)
	for i := range o.FundingInputs {
		if err := o.FundingInputs[i].Decode(r); err != nil {
			return err
		}
	}

	if o.ChangeSPK, err = readVarBytes(r); err != nil {
		return err
	}
	if o.ChangeSerialID, err = readUint64(r); err != nil {
		return err
	}
	if o.FundOutputSerialID, err = readUint64(r); err != nil {
		return err
	}
	if o.FeeRatePerVb, err = readUint64(r); err != nil {
		return err
	}
	if o.ContractMaturityBound, err = readUint32(r); err != nil {
		return err
	}
	o.ContractTimeout, err = readUint32(r)
	return err
}

// Serialize returns the bit-exact binary encoding of the offer.
func (o *OfferDlc) Serialize() []byte {
	var buf bytes.Buffer
	_ = o.Encode(&buf)
	return buf.Bytes()
}

// AcceptDlc is the accepting party's counter-offer: its own funding
// inputs/pubkey plus the adaptor signatures over every CET and the refund
// transaction.
type AcceptDlc struct {
	TempContractID     chainhash.Hash
	AcceptCollateral    uint64
	FundingPubkeyBytes  [33]byte
	PayoutSPK           []byte
	PayoutSerialID      uint64
	FundingInputs       []FundingInput
	ChangeSPK           []byte
	ChangeSerialID      uint64
	CetAdaptorSignatures CetAdaptorSignatures
	RefundSignature     [64]byte
}

func (a *AcceptDlc) Encode(w io.Writer) error {
	if err := writeFixed(w, a.TempContractID[:]); err != nil {
		return err
	}
	if err := writeUint64(w, a.AcceptCollateral); err != nil {
		return err
	}
	if err := writeFixed(w, a.FundingPubkeyBytes[:]); err != nil {
		return err
	}
	if err := writeVarBytes(w, a.PayoutSPK); err != nil {
		return err
	}
	if err := writeUint64(w, a.PayoutSerialID); err != nil {
		return err
	}
	if err := writeUint16(w, uint16(len(a.FundingInputs))); err != nil {
		return err
	}
	for i := range a.FundingInputs {
		if err := a.FundingInputs[i].Encode(w); err != nil {
			return err
		}
	}
	if err := writeVarBytes(w, a.ChangeSPK); err != nil {
		return err
	}
	if err := writeUint64(w, a.ChangeSerialID); err != nil {
		return err
	}
	if err := a.CetAdaptorSignatures.Encode(w); err != nil {
		return err
	}
	return writeFixed(w, a.RefundSignature[:])
}

func (a *AcceptDlc) Decode(r io.Reader) error {
	tid, err := readFixed(r, chainhash.HashSize)
	if err != nil {
		return err
	}
	copy(a.TempContractID[:], tid)

	if a.AcceptCollateral, err = readUint64(r); err != nil {
		return err
	}

	pk, err := readFixed(r, 33)
	if err != nil {
		return err
	}
	copy(a.FundingPubkeyBytes[:], pk)

	if a.PayoutSPK, err = readVarBytes(r); err != nil {
		return err
	}
	if a.PayoutSerialID, err = readUint64(r); err != nil {
		return err
	}

	nInputs, err := readUint16(r)
	if err != nil {
		return err
	}
	a.FundingInputs = make([]FundingInput, nInputs)
	for i := range a.FundingInputs {
		if err := a.FundingInputs[i].Decode(r); err != nil {
			return err
		}
	}

	if a.ChangeSPK, err = readVarBytes(r); err != nil {
		return err
	}
	if a.ChangeSerialID, err = readUint64(r); err != nil {
		return err
	}
	if err := a.CetAdaptorSignatures.Decode(r); err != nil {
		return err
	}

	sig, err := readFixed(r, 64)
	if err != nil {
		return err
	}
	copy(a.RefundSignature[:], sig)
	return nil
}

// Serialize returns the bit-exact binary encoding of the accept message.
func (a *AcceptDlc) Serialize() []byte {
	var buf bytes.Buffer
	_ = a.Encode(&buf)
	return buf.Bytes()
}

// SignDlc is the offering party's final message: its adaptor signatures
// over the accepter's CETs, its refund signature, and the witnesses for
// its own funding inputs.
type SignDlc struct {
	ContractID           chainhash.Hash
	CetAdaptorSignatures CetAdaptorSignatures
	RefundSignature      [64]byte
	FundingSignatures    [][]byte
}

func (s *SignDlc) Encode(w io.Writer) error {
	if err := writeFixed(w, s.ContractID[:]); err != nil {
		return err
	}
	if err := s.CetAdaptorSignatures.Encode(w); err != nil {
		return err
	}
	if err := writeFixed(w, s.RefundSignature[:]); err != nil {
		return err
	}
	if err := writeUint16(w, uint16(len(s.FundingSignatures))); err != nil {
		return err
	}
	for _, witness := range s.FundingSignatures {
		if err := writeVarBytes(w, witness); err != nil {
			return err
		}
	}
	return nil
}

func (s *SignDlc) Decode(r io.Reader) error {
	cid, err := readFixed(r, chainhash.HashSize)
	if err != nil {
		return err
	}
	copy(s.ContractID[:], cid)

	if err := s.CetAdaptorSignatures.Decode(r); err != nil {
		return err
	}

	sig, err := readFixed(r, 64)
	if err != nil {
		return err
	}
	copy(s.RefundSignature[:], sig)

	n, err := readUint16(r)
	if err != nil {
		return err
	}
	s.FundingSignatures = make([][]byte, n)
	for i := range s.FundingSignatures {
		if s.FundingSignatures[i], err = readVarBytes(r); err != nil {
			return err
		}
	}
	return nil
}

// Serialize returns the bit-exact binary encoding of the sign message.
func (s *SignDlc) Serialize() []byte {
	var buf bytes.Buffer
	_ = s.Encode(&buf)
	return buf.Bytes()
}
