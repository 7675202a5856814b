package contract

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dlc-link/dlc-engine/dlcwire"
	"github.com/dlc-link/dlc-engine/txbuilder"
)

// record is contractstore's opaque on-the-wire representation of a
// Contract: one flat JSON object carrying every field any variant might
// need, hex-encoding anything that isn't already JSON-friendly. Only the
// fields relevant to State are populated; the rest round-trip as zero
// values. This plays the role the teacher's `channeldb` binary row codecs
// play for `lnwallet.ChannelDelta`-like structures, adapted to JSON+hex
// because the contract's content is handed to a remote KV store as a
// single opaque blob (§6) rather than read back with per-column queries.
type record struct {
	State State `json:"state"`

	// Offered fields, present from StateOffered onward.
	TempID                 string   `json:"temp_id"`
	IsOfferer              bool     `json:"is_offerer"`
	CounterParty           string   `json:"counter_party"`
	ContractInfos          []string `json:"contract_infos"`
	OfferCollateral        uint64   `json:"offer_collateral"`
	AcceptCollateral       uint64   `json:"accept_collateral"`
	FeeRatePerVb           uint64   `json:"fee_rate_per_vb"`
	RefundLocktime         uint32   `json:"refund_locktime"`
	ProtocolFeeBasisPoints uint32   `json:"protocol_fee_basis_points"`
	ProtocolFeeDenominator uint64   `json:"protocol_fee_denominator"`
	ProtocolFeeAddress     string   `json:"protocol_fee_address"`
	FundingPubkey          string   `json:"funding_pubkey"`
	FundingPrivkey         string   `json:"funding_privkey,omitempty"`
	PayoutSPK              string   `json:"payout_spk"`
	ChangeSPK              string   `json:"change_spk"`
	FundingInputs          []string `json:"funding_inputs"`
	OfferMessage           string   `json:"offer_message"`

	// Rejected/FailedAccept/FailedSign fields.
	Reason       string `json:"reason,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Accepted fields, present from StateAccepted onward (except
	// FailedAccept, which never reaches Accepted).
	ContractIDValue     string          `json:"contract_id,omitempty"`
	AcceptPubkey        string          `json:"accept_pubkey,omitempty"`
	AcceptPrivkey       string          `json:"accept_privkey,omitempty"`
	FundingRedeemScript string          `json:"funding_redeem_script,omitempty"`
	FundingTx           string          `json:"funding_tx,omitempty"`
	RefundTx            string          `json:"refund_tx,omitempty"`
	AdaptorInfos        [][]string      `json:"adaptor_infos,omitempty"`
	AcceptMessage       string          `json:"accept_message,omitempty"`

	// Signed fields.
	SignMessage string `json:"sign_message,omitempty"`

	// PreClosed fields.
	ContractInfoIndex int      `json:"contract_info_index,omitempty"`
	SignedCET         string   `json:"signed_cet,omitempty"`
	Attestations      []string `json:"attestations,omitempty"`

	// Closed fields.
	Pnl int64 `json:"pnl,omitempty"`
}

func chainhashFromHex(s string) (ID, error) {
	if s == "" {
		return ID{}, nil
	}
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return ID{}, err
	}
	return *h, nil
}

func hexPub(pub *btcec.PublicKey) string {
	if pub == nil {
		return ""
	}
	return hex.EncodeToString(pub.SerializeCompressed())
}

func hexPriv(priv *btcec.PrivateKey) string {
	if priv == nil {
		return ""
	}
	return hex.EncodeToString(priv.Serialize())
}

func parsePriv(s string) (*btcec.PrivateKey, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

func parsePub(s string) (*btcec.PublicKey, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(b)
}

func encodeContractInfo(ci dlcwire.ContractInfo) (string, error) {
	var buf bytes.Buffer
	if err := ci.Encode(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func decodeContractInfo(s string) (dlcwire.ContractInfo, error) {
	var ci dlcwire.ContractInfo
	b, err := hex.DecodeString(s)
	if err != nil {
		return ci, err
	}
	err = ci.Decode(bytes.NewReader(b))
	return ci, err
}

func encodeTx(tx *wire.MsgTx) (string, error) {
	if tx == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func decodeTx(s string) (*wire.MsgTx, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return tx, nil
}

func offeredToRecord(o *OfferedContract) (record, error) {
	rec := record{
		State:                  StateOffered,
		TempID:                 o.TempID.String(),
		IsOfferer:              o.IsOfferer,
		CounterParty:           hexPub(o.CounterParty),
		OfferCollateral:        o.OfferCollateral,
		AcceptCollateral:       o.AcceptCollateral,
		FeeRatePerVb:           o.FeeRatePerVb,
		RefundLocktime:         o.RefundLocktime,
		ProtocolFeeBasisPoints: o.ProtocolFeeBasisPoints,
		ProtocolFeeDenominator: o.ProtocolFeeDenominator,
		ProtocolFeeAddress:     o.ProtocolFeeAddress,
		FundingPubkey:          hexPub(o.FundingPubkey),
		FundingPrivkey:         hexPriv(o.FundingPrivkey),
		PayoutSPK:              hex.EncodeToString(o.PayoutSPK),
		ChangeSPK:              hex.EncodeToString(o.ChangeSPK),
	}
	for _, ci := range o.ContractInfos {
		s, err := encodeContractInfo(ci)
		if err != nil {
			return rec, err
		}
		rec.ContractInfos = append(rec.ContractInfos, s)
	}
	for _, fi := range o.FundingInputs {
		var buf bytes.Buffer
		if err := fi.Encode(&buf); err != nil {
			return rec, err
		}
		rec.FundingInputs = append(rec.FundingInputs, hex.EncodeToString(buf.Bytes()))
	}
	if o.OfferMessage != nil {
		rec.OfferMessage = hex.EncodeToString(o.OfferMessage.Serialize())
	}
	return rec, nil
}

func recordToOffered(rec record) (*OfferedContract, error) {
	o := &OfferedContract{
		IsOfferer:              rec.IsOfferer,
		OfferCollateral:        rec.OfferCollateral,
		AcceptCollateral:       rec.AcceptCollateral,
		FeeRatePerVb:           rec.FeeRatePerVb,
		RefundLocktime:         rec.RefundLocktime,
		ProtocolFeeBasisPoints: rec.ProtocolFeeBasisPoints,
		ProtocolFeeDenominator: rec.ProtocolFeeDenominator,
		ProtocolFeeAddress:     rec.ProtocolFeeAddress,
	}
	tid, err := chainhashFromHex(rec.TempID)
	if err != nil {
		return nil, err
	}
	o.TempID = tid
	if o.CounterParty, err = parsePub(rec.CounterParty); err != nil {
		return nil, err
	}
	if o.FundingPubkey, err = parsePub(rec.FundingPubkey); err != nil {
		return nil, err
	}
	if o.FundingPrivkey, err = parsePriv(rec.FundingPrivkey); err != nil {
		return nil, err
	}
	if o.PayoutSPK, err = hex.DecodeString(rec.PayoutSPK); err != nil {
		return nil, err
	}
	if o.ChangeSPK, err = hex.DecodeString(rec.ChangeSPK); err != nil {
		return nil, err
	}
	for _, s := range rec.ContractInfos {
		ci, err := decodeContractInfo(s)
		if err != nil {
			return nil, err
		}
		o.ContractInfos = append(o.ContractInfos, ci)
	}
	for _, s := range rec.FundingInputs {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, err
		}
		var fi dlcwire.FundingInput
		if err := fi.Decode(bytes.NewReader(b)); err != nil {
			return nil, err
		}
		o.FundingInputs = append(o.FundingInputs, fi)
	}
	if rec.OfferMessage != "" {
		b, err := hex.DecodeString(rec.OfferMessage)
		if err != nil {
			return nil, err
		}
		var msg dlcwire.OfferDlc
		if err := msg.Decode(bytes.NewReader(b)); err != nil {
			return nil, err
		}
		o.OfferMessage = &msg
	}
	return o, nil
}

// Marshal serializes c into contractstore's opaque content format.
func Marshal(c Contract) ([]byte, error) {
	var rec record
	var err error

	switch v := c.(type) {
	case *OfferedContract:
		rec, err = offeredToRecord(v)
	case *RejectedContract:
		rec, err = offeredToRecord(&v.Offered)
		rec.State = StateRejected
		rec.Reason = v.Reason
	case *FailedAcceptContract:
		rec, err = offeredToRecord(&v.Offered)
		rec.State = StateFailedAccept
		rec.ErrorMessage = v.ErrorMessage
	case *AcceptedContract:
		rec, err = acceptedToRecord(v)
	case *SignedContract:
		rec, err = acceptedToRecord(&v.Accepted)
		if err == nil {
			rec.State = StateSigned
			if v.SignMessage != nil {
				rec.SignMessage = hex.EncodeToString(v.SignMessage.Serialize())
			}
		}
	case *FailedSignContract:
		rec, err = acceptedToRecord(&v.Accepted)
		if err == nil {
			rec.State = StateFailedSign
			rec.ErrorMessage = v.ErrorMessage
			if v.SignMsg != nil {
				rec.SignMessage = hex.EncodeToString(v.SignMsg.Serialize())
			}
		}
	case *ConfirmedContract:
		rec, err = signedToRecord(&v.Signed)
		if err == nil {
			rec.State = StateConfirmed
		}
	case *PreClosedContract:
		rec, err = preclosedToRecord(v)
	case *ClosedContract:
		rec, err = preclosedToRecord(&v.PreClosed)
		if err == nil {
			rec.State = StateClosed
			rec.Pnl = v.Pnl
		}
	case *RefundedContract:
		rec, err = signedToRecord(&v.Confirmed.Signed)
		if err == nil {
			rec.State = StateRefunded
		}
	default:
		return nil, fmt.Errorf("contract: unknown variant %T", c)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

func acceptedToRecord(a *AcceptedContract) (record, error) {
	rec, err := offeredToRecord(&a.Offered)
	if err != nil {
		return rec, err
	}
	rec.State = StateAccepted
	rec.ContractIDValue = a.ContractIDValue.String()
	rec.AcceptPubkey = hexPub(a.AcceptPubkey)
	rec.AcceptPrivkey = hexPriv(a.AcceptPrivkey)
	rec.FundingRedeemScript = hex.EncodeToString(a.FundingRedeemScript)
	if rec.FundingTx, err = encodeTx(a.FundingTx); err != nil {
		return rec, err
	}
	if rec.RefundTx, err = encodeTx(a.RefundTx); err != nil {
		return rec, err
	}
	for _, info := range a.AdaptorInfos {
		sigs := make([]string, len(info.Sigs))
		for i := range info.Sigs {
			sigs[i] = hex.EncodeToString(info.Sigs[i].Serialize())
		}
		rec.AdaptorInfos = append(rec.AdaptorInfos, sigs)
	}
	if a.AcceptMessage != nil {
		rec.AcceptMessage = hex.EncodeToString(a.AcceptMessage.Serialize())
	}
	return rec, nil
}

func signedToRecord(s *SignedContract) (record, error) {
	rec, err := acceptedToRecord(&s.Accepted)
	if err != nil {
		return rec, err
	}
	rec.State = StateSigned
	if s.SignMessage != nil {
		rec.SignMessage = hex.EncodeToString(s.SignMessage.Serialize())
	}
	return rec, nil
}

func preclosedToRecord(p *PreClosedContract) (record, error) {
	rec, err := signedToRecord(&p.Confirmed.Signed)
	if err != nil {
		return rec, err
	}
	rec.State = StatePreClosed
	rec.ContractInfoIndex = p.ContractInfoIndex
	if rec.SignedCET, err = encodeTx(p.SignedCET); err != nil {
		return rec, err
	}
	for _, att := range p.Attestations {
		rec.Attestations = append(rec.Attestations, hex.EncodeToString(att.Serialize()))
	}
	return rec, nil
}

// Unmarshal reconstructs the Contract persisted by Marshal.
func Unmarshal(data []byte) (Contract, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}

	offered, err := recordToOffered(rec)
	if err != nil {
		return nil, err
	}

	switch rec.State {
	case StateOffered:
		return offered, nil
	case StateRejected:
		return &RejectedContract{Offered: *offered, Reason: rec.Reason}, nil
	case StateFailedAccept:
		return &FailedAcceptContract{Offered: *offered, ErrorMessage: rec.ErrorMessage}, nil
	}

	accepted, err := recordToAccepted(rec, offered)
	if err != nil {
		return nil, err
	}

	switch rec.State {
	case StateAccepted:
		return accepted, nil
	case StateFailedSign:
		fs := &FailedSignContract{Accepted: *accepted, ErrorMessage: rec.ErrorMessage}
		if rec.SignMessage != "" {
			msg, err := decodeSignDlc(rec.SignMessage)
			if err != nil {
				return nil, err
			}
			fs.SignMsg = msg
		}
		return fs, nil
	}

	signed := &SignedContract{Accepted: *accepted}
	if rec.SignMessage != "" {
		signed.SignMessage, err = decodeSignDlc(rec.SignMessage)
		if err != nil {
			return nil, err
		}
	}

	switch rec.State {
	case StateSigned:
		return signed, nil
	}

	confirmed := &ConfirmedContract{Signed: *signed}
	switch rec.State {
	case StateConfirmed:
		return confirmed, nil
	case StateRefunded:
		return &RefundedContract{Confirmed: *confirmed}, nil
	}

	preClosed := &PreClosedContract{
		Confirmed:         *confirmed,
		ContractInfoIndex: rec.ContractInfoIndex,
	}
	if preClosed.SignedCET, err = decodeTx(rec.SignedCET); err != nil {
		return nil, err
	}
	for _, s := range rec.Attestations {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, err
		}
		att, err := dlcwire.ParseOracleAttestation(b)
		if err != nil {
			return nil, err
		}
		preClosed.Attestations = append(preClosed.Attestations, att)
	}

	switch rec.State {
	case StatePreClosed:
		return preClosed, nil
	case StateClosed:
		return &ClosedContract{PreClosed: *preClosed, Pnl: rec.Pnl}, nil
	}

	return nil, fmt.Errorf("contract: unknown persisted state %d", rec.State)
}

func recordToAccepted(rec record, offered *OfferedContract) (*AcceptedContract, error) {
	a := &AcceptedContract{Offered: *offered}
	var err error
	cid, err := chainhashFromHex(rec.ContractIDValue)
	if err != nil {
		return nil, err
	}
	a.ContractIDValue = cid
	if a.AcceptPubkey, err = parsePub(rec.AcceptPubkey); err != nil {
		return nil, err
	}
	if a.AcceptPrivkey, err = parsePriv(rec.AcceptPrivkey); err != nil {
		return nil, err
	}
	if a.FundingRedeemScript, err = hex.DecodeString(rec.FundingRedeemScript); err != nil {
		return nil, err
	}
	if a.FundingTx, err = decodeTx(rec.FundingTx); err != nil {
		return nil, err
	}
	if a.RefundTx, err = decodeTx(rec.RefundTx); err != nil {
		return nil, err
	}
	for _, sigs := range rec.AdaptorInfos {
		info := AdaptorInfo{Sigs: make([]txbuilder.AdaptorSignature, len(sigs))}
		for i, s := range sigs {
			b, err := hex.DecodeString(s)
			if err != nil {
				return nil, err
			}
			sig, err := txbuilder.ParseAdaptorSignature(b)
			if err != nil {
				return nil, err
			}
			info.Sigs[i] = *sig
		}
		a.AdaptorInfos = append(a.AdaptorInfos, info)
	}
	if rec.AcceptMessage != "" {
		b, err := hex.DecodeString(rec.AcceptMessage)
		if err != nil {
			return nil, err
		}
		var msg dlcwire.AcceptDlc
		if err := msg.Decode(bytes.NewReader(b)); err != nil {
			return nil, err
		}
		a.AcceptMessage = &msg
	}
	return a, nil
}

func decodeSignDlc(s string) (*dlcwire.SignDlc, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var msg dlcwire.SignDlc
	if err := msg.Decode(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return &msg, nil
}
