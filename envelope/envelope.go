// Package envelope implements the signed transport wrapper every
// contract-store and attestor-store HTTP call carries (spec.md §4.7),
// grounded on original_source/storage/api/src/verify_sigs.rs's
// verify_body/verify_query_params: an ECDSA signature over the SHA256
// digest of the canonicalized JSON message, hex-encoded public key and
// signature.
package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/dlc-link/dlc-engine/dlcerr"
)

// Message is the signed body every POST/PUT/DELETE call to the storage
// API carries, per §4.7's envelope shape. Its Message field MUST include
// the server-issued nonce under a "nonce" key; the middleware checks that
// the authorization header nonce and this field agree.
type Message struct {
	Message   json.RawMessage `json:"message"`
	PublicKey string          `json:"public_key"`
	Signature string          `json:"signature"`
}

// digest returns SHA256 of raw's canonical byte form, the exact quantity
// verify_body/verify_query_params sign and verify.
func digest(raw []byte) [32]byte {
	return sha256.Sum256(raw)
}

// Sign builds a signed Message wrapping payload, whose JSON encoding MUST
// already include a "nonce" field the caller obtained from
// GET /request_nonce.
func Sign(privKey *btcec.PrivateKey, payload interface{}) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindSerialization, err, "marshaling envelope payload")
	}
	d := digest(raw)
	sig := ecdsa.Sign(privKey, d[:])
	return &Message{
		Message:   raw,
		PublicKey: hex.EncodeToString(privKey.PubKey().SerializeCompressed()),
		Signature: hex.EncodeToString(sig.Serialize()),
	}, nil
}

// Verify checks m's signature against its own embedded message and
// public key, returning the recovered public key on success.
func Verify(m *Message) (*btcec.PublicKey, error) {
	pubBytes, err := hex.DecodeString(m.PublicKey)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindSerialization, err, "decoding envelope public key")
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindCrypto, err, "parsing envelope public key")
	}
	sigBytes, err := hex.DecodeString(m.Signature)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindSerialization, err, "decoding envelope signature")
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindCrypto, err, "parsing envelope signature")
	}
	d := digest(m.Message)
	if !sig.Verify(d[:], pub) {
		return nil, dlcerr.New(dlcerr.KindCrypto, "envelope signature does not verify")
	}
	return pub, nil
}

// SignNonce signs nonce alone (the GET query-parameter variant of §4.7,
// where there is no JSON body to wrap), returning a hex-encoded DER
// signature.
func SignNonce(privKey *btcec.PrivateKey, nonce string) string {
	d := digest([]byte(nonce))
	sig := ecdsa.Sign(privKey, d[:])
	return hex.EncodeToString(sig.Serialize())
}

// VerifyNonce checks a GET request's query-parameter signature over
// nonce against the hex-encoded public key keyHex.
func VerifyNonce(keyHex, nonce, sigHex string) error {
	pubBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return dlcerr.Wrap(dlcerr.KindSerialization, err, "decoding query public key")
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return dlcerr.Wrap(dlcerr.KindCrypto, err, "parsing query public key")
	}
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return dlcerr.Wrap(dlcerr.KindSerialization, err, "decoding query signature")
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return dlcerr.Wrap(dlcerr.KindCrypto, err, "parsing query signature")
	}
	d := digest([]byte(nonce))
	if !sig.Verify(d[:], pub) {
		return dlcerr.New(dlcerr.KindCrypto, "query signature does not verify")
	}
	return nil
}
