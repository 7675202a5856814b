package txbuilder

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/dlc-link/dlc-engine/dlcwire"
)

// AdaptorSignature is a Schnorr pre-signature over a CET, "encrypted"
// under an outcome point so that it only becomes a valid signature once the
// attestor reveals the discrete log of that point (the glossary's
// "Adaptor signature"). The construction mirrors the nonce-locked signing
// scheme the attestor itself uses: s_hat = k + e*x, with the challenge e
// taken over the decrypted nonce point R+T so that once the missing scalar
// t is added, (R+T, s_hat+t) is a plain BIP340 signature.
type AdaptorSignature struct {
	// R is the pre-signature's uncorrected nonce point, k*G. The true
	// nonce point of the decrypted signature is R+T (T=t*G).
	R *btcec.PublicKey
	// SHat is the pre-signature scalar, missing t: s_hat = k + e*x.
	SHat *btcec.ModNScalar
}

var bip340ChallengeTag = []byte("BIP0340/challenge")

// OutcomePoint returns the point a CET's adaptor signature is encrypted
// under for one announcement's digit-by-digit decomposition of an outcome:
// the sum, over each digit, of e_i*P + R_i, where e_i is the BIP340
// challenge the attestor's digit signature will commit to and R_i is the
// announcement's pre-committed nonce for that digit.
//
// The tag and challenge inputs match the attestor's own per-digit signing
// exactly, so the sum of the revealed attestation scalars is the discrete
// log of this point. Summing one term per digit means decryption requires
// every digit's scalar, which is what an attestation delivers.
func OutcomePoint(ann *dlcwire.OracleAnnouncement, digits []string) (*btcec.PublicKey, error) {
	nonces := ann.OracleEvent.OracleNonces
	if len(digits) != len(nonces) {
		return nil, fmt.Errorf("txbuilder: %d digits but announcement commits to %d nonces",
			len(digits), len(nonces))
	}
	if len(digits) == 0 {
		return nil, fmt.Errorf("txbuilder: announcement commits to zero nonces")
	}

	var sum btcec.JacobianPoint
	for i, digit := range digits {
		e := digitChallenge(ann.OraclePublicKey, nonces[i], digit)

		var term btcec.JacobianPoint
		evenY(ann.OraclePublicKey).AsJacobian(&term)
		btcec.ScalarMultNonConst(e, &term, &term)

		var noncePt btcec.JacobianPoint
		evenY(nonces[i]).AsJacobian(&noncePt)
		btcec.AddNonConst(&term, &noncePt, &term)

		if i == 0 {
			sum = term
			continue
		}
		btcec.AddNonConst(&sum, &term, &sum)
	}

	sum.ToAffine()
	return btcec.NewPublicKey(&sum.X, &sum.Y), nil
}

// CombinedOutcomePoint sums OutcomePoint across several announcements of
// the same event, the encryption point for a CET that only a full set of
// those oracles' attestations can unlock.
func CombinedOutcomePoint(anns []*dlcwire.OracleAnnouncement, digits []string) (*btcec.PublicKey, error) {
	if len(anns) == 0 {
		return nil, fmt.Errorf("txbuilder: no announcements to combine")
	}

	var sum btcec.JacobianPoint
	for i, ann := range anns {
		pt, err := OutcomePoint(ann, digits)
		if err != nil {
			return nil, err
		}
		var ptJ btcec.JacobianPoint
		pt.AsJacobian(&ptJ)
		if i == 0 {
			sum = ptJ
			continue
		}
		btcec.AddNonConst(&sum, &ptJ, &sum)
	}

	sum.ToAffine()
	return btcec.NewPublicKey(&sum.X, &sum.Y), nil
}

// digitChallenge computes the BIP340 challenge scalar the attestor's digit
// signature commits to: e = H_tag(R_i || P || SHA256(digit)), with R_i and
// P in their x-only forms.
func digitChallenge(oraclePub, nonce *btcec.PublicKey, digit string) *btcec.ModNScalar {
	digest := sha256.Sum256([]byte(digit))
	rBytes := schnorr.SerializePubKey(nonce)
	pBytes := schnorr.SerializePubKey(oraclePub)
	commitment := chainhash.TaggedHash(bip340ChallengeTag, rBytes, pBytes, digest[:])

	var e btcec.ModNScalar
	e.SetBytes((*[32]byte)(commitment))
	return &e
}

// evenY returns pub if its y coordinate is even, else its negation, the
// lifting BIP340 verification performs on every x-only key.
func evenY(pub *btcec.PublicKey) *btcec.PublicKey {
	if pub.Y().Bit(0) == 0 {
		return pub
	}
	var j btcec.JacobianPoint
	pub.AsJacobian(&j)
	j.Y.Negate(1).Normalize()
	j.ToAffine()
	return btcec.NewPublicKey(&j.X, &j.Y)
}

// Sign produces an adaptor signature over hash (the CET's sighash),
// encrypted under point, using privKey as the CET signer's key. The nonce
// is redrawn until the decrypted nonce point R+T has even y, so neither
// verification nor decryption needs a parity correction.
func Sign(privKey *btcec.PrivateKey, hash [32]byte, point *btcec.PublicKey) (*AdaptorSignature, error) {
	d := new(btcec.ModNScalar).Set(&privKey.Key)
	if privKey.PubKey().Y().Bit(0) == 1 {
		d.Negate()
	}

	var pointJ btcec.JacobianPoint
	point.AsJacobian(&pointJ)

	var k *btcec.PrivateKey
	var finalJ btcec.JacobianPoint
	for {
		var err error
		k, err = btcec.NewPrivateKey()
		if err != nil {
			return nil, fmt.Errorf("txbuilder: drawing adaptor nonce: %w", err)
		}

		var rJ btcec.JacobianPoint
		k.PubKey().AsJacobian(&rJ)
		btcec.AddNonConst(&rJ, &pointJ, &finalJ)
		finalJ.ToAffine()
		if !finalJ.Y.IsOdd() {
			break
		}
	}

	e := adaptorSigChallenge(&finalJ.X, privKey.PubKey(), hash)

	var s btcec.ModNScalar
	s.Set(&k.Key)
	var ex btcec.ModNScalar
	ex.Set(e).Mul(d)
	s.Add(&ex)

	return &AdaptorSignature{R: k.PubKey(), SHat: &s}, nil
}

// adaptorSigChallenge computes the Schnorr challenge e = H(R'||P||m) over
// the decrypted nonce point's x coordinate, matching BIP340 exactly so
// that a decrypted adaptor signature verifies as a plain schnorr.Signature.
func adaptorSigChallenge(finalRX *btcec.FieldVal, pub *btcec.PublicKey, hash [32]byte) *btcec.ModNScalar {
	rBytes := finalRX.Bytes()
	pBytes := schnorr.SerializePubKey(pub)
	commitment := chainhash.TaggedHash(bip340ChallengeTag, rBytes[:], pBytes, hash[:])
	var e btcec.ModNScalar
	e.SetBytes((*[32]byte)(commitment))
	return &e
}

// Verify checks sig is a well-formed adaptor signature by pub over hash,
// encrypted under point: s_hat*G must equal R + e*P, with e taken over the
// decrypted nonce point R+T. This is what each party runs against the
// counterparty's CET signatures inside on_accept/on_sign.
func Verify(sig *AdaptorSignature, pub *btcec.PublicKey, hash [32]byte, point *btcec.PublicKey) error {
	var rJ, pointJ, finalJ btcec.JacobianPoint
	sig.R.AsJacobian(&rJ)
	point.AsJacobian(&pointJ)
	btcec.AddNonConst(&rJ, &pointJ, &finalJ)
	finalJ.ToAffine()
	if finalJ.Y.IsOdd() {
		return fmt.Errorf("txbuilder: adaptor signature decrypts to an odd-y nonce point")
	}

	e := adaptorSigChallenge(&finalJ.X, pub, hash)

	var expected btcec.JacobianPoint
	evenY(pub).AsJacobian(&expected)
	btcec.ScalarMultNonConst(e, &expected, &expected)
	btcec.AddNonConst(&expected, &rJ, &expected)
	expected.ToAffine()

	var sG btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(sig.SHat, &sG)
	sG.ToAffine()

	if !sG.X.Equals(&expected.X) || !sG.Y.Equals(&expected.Y) {
		return fmt.Errorf("txbuilder: adaptor signature does not verify")
	}
	return nil
}

// Serialize returns the wire encoding of an adaptor signature: R in
// 33-byte compressed form followed by SHat's 32-byte big-endian scalar
// encoding, matching the EncryptedSig field of dlcwire.CetAdaptorSignature.
func (s *AdaptorSignature) Serialize() []byte {
	out := make([]byte, 0, 65)
	out = append(out, s.R.SerializeCompressed()...)
	sBytes := s.SHat.Bytes()
	return append(out, sBytes[:]...)
}

// ParseAdaptorSignature parses the encoding Serialize produces.
func ParseAdaptorSignature(b []byte) (*AdaptorSignature, error) {
	if len(b) != 65 {
		return nil, fmt.Errorf("txbuilder: adaptor signature must be 65 bytes, got %d", len(b))
	}
	r, err := btcec.ParsePubKey(b[:33])
	if err != nil {
		return nil, fmt.Errorf("txbuilder: parsing adaptor signature nonce point: %w", err)
	}
	var s btcec.ModNScalar
	if overflow := s.SetBytes((*[32]byte)(b[33:65])); overflow != 0 {
		return nil, fmt.Errorf("txbuilder: adaptor signature scalar overflows the curve order")
	}
	return &AdaptorSignature{R: r, SHat: &s}, nil
}

// Decrypt combines an adaptor signature with the revealed scalar t (the
// discrete log of the point it was encrypted under, here the sum of the
// attesting oracles' per-digit attestation scalars) into a final schnorr
// signature, and verifies it against pub over hash before returning it.
func Decrypt(sig *AdaptorSignature, point *btcec.PublicKey, t *btcec.ModNScalar, pub *btcec.PublicKey, hash [32]byte) (*schnorr.Signature, error) {
	var rJ, pointJ, finalJ btcec.JacobianPoint
	sig.R.AsJacobian(&rJ)
	point.AsJacobian(&pointJ)
	btcec.AddNonConst(&rJ, &pointJ, &finalJ)
	finalJ.ToAffine()

	var s btcec.ModNScalar
	s.Set(sig.SHat).Add(t)

	final := schnorr.NewSignature(&finalJ.X, &s)
	if !final.Verify(hash[:], pub) {
		return nil, fmt.Errorf("txbuilder: decrypted signature failed verification")
	}
	return final, nil
}

// AttestationsSecret sums the scalar halves of every signature in atts:
// the discrete log of the CombinedOutcomePoint those attestations' oracles
// committed to for the attested digits.
func AttestationsSecret(atts []*dlcwire.OracleAttestation) (*btcec.ModNScalar, error) {
	if len(atts) == 0 {
		return nil, fmt.Errorf("txbuilder: no attestations to sum")
	}

	var t btcec.ModNScalar
	for _, att := range atts {
		for i, sig := range att.Signatures {
			raw := sig.Serialize()
			var si btcec.ModNScalar
			if overflow := si.SetBytes((*[32]byte)(raw[32:64])); overflow != 0 {
				return nil, fmt.Errorf("txbuilder: attestation scalar %d overflows the curve order", i)
			}
			t.Add(&si)
		}
	}
	return &t, nil
}

// Combinations returns every k-element subset of {0..n-1} in lexicographic
// order. Adaptor signatures for a contract-info with n oracles and
// threshold k are laid out one run per subset, in this order, so both
// parties index the counterparty's signature set identically.
func Combinations(n, k int) [][]int {
	if k <= 0 || k > n {
		return nil
	}

	var out [][]int
	combo := make([]int, k)
	for i := range combo {
		combo[i] = i
	}
	for {
		out = append(out, append([]int(nil), combo...))

		i := k - 1
		for i >= 0 && combo[i] == n-k+i {
			i--
		}
		if i < 0 {
			return out
		}
		combo[i]++
		for j := i + 1; j < k; j++ {
			combo[j] = combo[j-1] + 1
		}
	}
}
