package oracleclient_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/require"

	"github.com/dlc-link/dlc-engine/attestor"
	"github.com/dlc-link/dlc-engine/oracleclient"
)

// The client and the attestor's HTTP surface agree end to end: the public
// key, announcement and attestation fetched over the wire are bit-exact
// with what the attestor produced.
func TestHTTPOracleAgainstAttestorServer(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	oracle := attestor.New(priv, attestor.NewMemoryStore(), nil)

	srv := httptest.NewServer(attestor.NewServer(oracle))
	defer srv.Close()

	client := oracleclient.NewHTTPOracle(srv.URL)
	ctx := context.Background()

	pub, err := client.PublicKey(ctx)
	require.NoError(t, err)
	require.Equal(t, schnorr.SerializePubKey(priv.PubKey()), schnorr.SerializePubKey(pub))

	ann, err := oracle.CreateEvent("http-u1", 1893456000, "regtest")
	require.NoError(t, err)

	gotAnn, err := client.GetAnnouncement(ctx, "http-u1")
	require.NoError(t, err)
	require.Equal(t, ann.Serialize(), gotAnn.Serialize())
	require.True(t, gotAnn.Verify())

	// Unattested events have an announcement but no attestation yet.
	_, err = client.GetAttestation(ctx, "http-u1")
	require.Error(t, err)

	att, err := oracle.Attest("http-u1", 5)
	require.NoError(t, err)

	gotAtt, err := client.GetAttestation(ctx, "http-u1")
	require.NoError(t, err)
	require.Equal(t, att.Serialize(), gotAtt.Serialize())
	require.True(t, gotAtt.Verify())
}

func TestHTTPOracleUnknownEvent(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	srv := httptest.NewServer(attestor.NewServer(attestor.New(priv, attestor.NewMemoryStore(), nil)))
	defer srv.Close()

	client := oracleclient.NewHTTPOracle(srv.URL)
	_, err = client.GetAnnouncement(context.Background(), "missing")
	require.Error(t, err)
}
