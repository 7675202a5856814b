package envelope

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	payload := map[string]string{"nonce": "abc123", "uuid": "u1"}
	msg, err := Sign(priv, payload)
	require.NoError(t, err)

	pub, err := Verify(msg)
	require.NoError(t, err)
	require.True(t, pub.IsEqual(priv.PubKey()))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	msg, err := Sign(priv, map[string]string{"nonce": "abc123"})
	require.NoError(t, err)

	msg.Message = []byte(`{"nonce":"different"}`)
	_, err = Verify(msg)
	require.Error(t, err)
}

func TestNonceSignVerifyRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	keyHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())
	sig := SignNonce(priv, "thenonce12345678abcd")
	require.NoError(t, VerifyNonce(keyHex, "thenonce12345678abcd", sig))
	require.Error(t, VerifyNonce(keyHex, "wrongnonce0000000000", sig))
}
