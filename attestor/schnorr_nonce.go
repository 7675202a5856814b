package attestor

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var bip340ChallengeTag = []byte("BIP0340/challenge")

// signWithNonce produces a BIP340 Schnorr signature over hash using privKey
// as the signing key, but with nonceKey's scalar as the nonce instead of
// one derived deterministically from the message. This is the nonce-locked
// scheme an attestor needs: the nonce was already committed to (and
// published as one of oracle_nonces) at announcement time, so attestation
// must sign with that exact nonce or the commitment means nothing.
func signWithNonce(privKey, nonceKey *btcec.PrivateKey, hash []byte) (*schnorr.Signature, error) {
	if len(hash) != chainhash.HashSize {
		return nil, fmt.Errorf("attestor: hash must be %d bytes, got %d",
			chainhash.HashSize, len(hash))
	}

	// BIP340 requires the private key used to correspond to the even-y
	// square root of its public key.
	d := new(btcec.ModNScalar).Set(&privKey.Key)
	pub := privKey.PubKey()
	if pub.Y().Bit(0) == 1 {
		d.Negate()
	}

	// Likewise the nonce point must have even y; negate the committed
	// scalar if not. The oracle_nonce published at announcement time is
	// R's x-only coordinate, which is unaffected by this negation.
	k := new(btcec.ModNScalar).Set(&nonceKey.Key)
	var r btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(k, &r)
	r.ToAffine()
	if r.Y.IsOdd() {
		k.Negate()
	}

	rBytes := r.X.Bytes()
	pBytes := schnorr.SerializePubKey(pub)
	commitment := chainhash.TaggedHash(bip340ChallengeTag, rBytes[:], pBytes, hash)

	var e btcec.ModNScalar
	e.SetBytes((*[32]byte)(commitment))
	e.Mul(d)
	e.Add(k)

	return schnorr.NewSignature(&r.X, &e), nil
}
