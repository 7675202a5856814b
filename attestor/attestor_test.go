package attestor

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/require"

	"github.com/dlc-link/dlc-engine/dlcerr"
	"github.com/dlc-link/dlc-engine/dlcwire"
)

func newTestAttestor(t *testing.T) (*Attestor, *MemoryStore) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	store := NewMemoryStore()
	return New(priv, store, nil), store
}

func TestCreateEventCommitsNbDigitsNonces(t *testing.T) {
	a, store := newTestAttestor(t)

	ann, err := a.CreateEvent("u1", 1893456000, "regtest")
	require.NoError(t, err)

	event := &ann.OracleEvent
	require.Len(t, event.OracleNonces, NbDigits)
	require.Equal(t, "u1", event.EventID)
	require.Equal(t, uint32(1893456000), event.EventMaturityEpoch)
	require.Equal(t, uint32(dlcwire.DigitDecompositionBase), event.EventDescriptor.Base)
	require.Equal(t, DefaultUnit, event.EventDescriptor.Unit)
	require.Equal(t, uint16(NbDigits), event.EventDescriptor.NbDigits)

	// The announcement signature covers SHA256 of the serialized event.
	require.True(t, ann.Verify())

	rec, ok := store.Get("u1")
	require.True(t, ok)
	require.Len(t, rec.SkNonces, NbDigits)
	require.False(t, rec.IsAttested())
	require.Equal(t, ann.Serialize(), rec.AnnouncementBytes)

	// Announcement bytes round-trip bit-exact.
	parsed, err := dlcwire.ParseOracleAnnouncement(rec.AnnouncementBytes)
	require.NoError(t, err)
	require.Equal(t, rec.AnnouncementBytes, parsed.Serialize())
}

func TestCreateEventRefusesDuplicate(t *testing.T) {
	a, _ := newTestAttestor(t)

	_, err := a.CreateEvent("dup", 1893456000, "regtest")
	require.NoError(t, err)
	_, err = a.CreateEvent("dup", 1893456000, "regtest")
	require.Error(t, err)
	require.True(t, dlcerr.Is(err, dlcerr.KindInvalidState))
}

func TestAttestOutcomeZero(t *testing.T) {
	a, store := newTestAttestor(t)

	ann, err := a.CreateEvent("u1", 1893456000, "regtest")
	require.NoError(t, err)

	att, err := a.Attest("u1", 0)
	require.NoError(t, err)
	require.Len(t, att.Signatures, NbDigits)
	require.Len(t, att.Outcomes, NbDigits)
	for _, d := range att.Outcomes {
		require.Equal(t, "0", d)
	}

	// Every digit signature verifies, and each one's nonce is the exact
	// nonce the announcement committed to for that digit.
	for i, sig := range att.Signatures {
		digest := sha256.Sum256([]byte(att.Outcomes[i]))
		require.True(t, sig.Verify(digest[:], att.OraclePublicKey))

		raw := sig.Serialize()
		committed := schnorr.SerializePubKey(ann.OracleEvent.OracleNonces[i])
		require.True(t, bytes.Equal(raw[:32], committed), "digit %d nonce mismatch", i)
	}

	// Attestation bytes round-trip bit-exact.
	parsed, err := dlcwire.ParseOracleAttestation(att.Serialize())
	require.NoError(t, err)
	require.Equal(t, att.Serialize(), parsed.Serialize())

	// The record is updated once and its nonces erased.
	rec, ok := store.Get("u1")
	require.True(t, ok)
	require.True(t, rec.IsAttested())
	require.Nil(t, rec.SkNonces)
	require.Equal(t, uint64(0), *rec.Outcome)
}

func TestAttestBigEndianDigits(t *testing.T) {
	a, _ := newTestAttestor(t)

	_, err := a.CreateEvent("u2", 1893456000, "regtest")
	require.NoError(t, err)

	// 10000 = 0b10011100010000, left-padded to 14 digits.
	att, err := a.Attest("u2", 10000)
	require.NoError(t, err)

	var got string
	for _, d := range att.Outcomes {
		got += d
	}
	require.Equal(t, "10011100010000", got)
}

func TestAttestRefusesSecondAttestation(t *testing.T) {
	a, store := newTestAttestor(t)

	_, err := a.CreateEvent("once", 1893456000, "regtest")
	require.NoError(t, err)
	first, err := a.Attest("once", 3)
	require.NoError(t, err)

	_, err = a.Attest("once", 4)
	require.Error(t, err)
	require.True(t, dlcerr.Is(err, dlcerr.KindInvalidState))

	// The stored record still carries the first attestation untouched.
	rec, ok := store.Get("once")
	require.True(t, ok)
	require.Equal(t, first.Serialize(), rec.AttestationBytes)
	require.Equal(t, uint64(3), *rec.Outcome)
}

func TestAttestUnknownEvent(t *testing.T) {
	a, _ := newTestAttestor(t)

	_, err := a.Attest("missing", 1)
	require.Error(t, err)
	require.True(t, dlcerr.Is(err, dlcerr.KindInvalidParameters))
}

func TestAttestOutcomeOutOfRange(t *testing.T) {
	a, _ := newTestAttestor(t)

	_, err := a.CreateEvent("range", 1893456000, "regtest")
	require.NoError(t, err)

	_, err = a.Attest("range", 1<<NbDigits)
	require.Error(t, err)
	require.True(t, dlcerr.Is(err, dlcerr.KindInvalidParameters))
}

func TestAttestRefusesNonDigitDescriptor(t *testing.T) {
	a, store := newTestAttestor(t)

	_, err := a.CreateEvent("odd", 1893456000, "regtest")
	require.NoError(t, err)

	// Corrupt the stored descriptor into a non-digit-decomposition shape.
	rec, ok := store.Get("odd")
	require.True(t, ok)
	rec.Announcement.OracleEvent.EventDescriptor.Base = 10
	require.NoError(t, store.Put(rec))

	_, err = a.Attest("odd", 1)
	require.Error(t, err)
	require.True(t, dlcerr.Is(err, dlcerr.KindInvalidState))

	// Still unattested afterward.
	rec, ok = store.Get("odd")
	require.True(t, ok)
	require.False(t, rec.IsAttested())
	require.Len(t, rec.SkNonces, NbDigits)
}
