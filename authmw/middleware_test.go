package authmw

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/dlc-link/dlc-engine/envelope"
)

func newTestServer(t *testing.T) (*httptest.Server, *btcec.PrivateKey) {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(New(next))
	t.Cleanup(srv.Close)
	return srv, priv
}

func fetchNonce(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Get(srv.URL + "/request_nonce")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, string(body), NonceLength)
	return string(body)
}

func signedRequest(t *testing.T, srv *httptest.Server, priv *btcec.PrivateKey, nonce, bodyNonce string) *http.Request {
	t.Helper()

	msg, err := envelope.Sign(priv, map[string]string{
		"uuid":  "u1",
		"nonce": bodyNonce,
	})
	require.NoError(t, err)
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/contracts", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Authorization", nonce)
	return req
}

func TestSignedRequestPasses(t *testing.T) {
	srv, priv := newTestServer(t)
	nonce := fetchNonce(t, srv)

	resp, err := http.DefaultClient.Do(signedRequest(t, srv, priv, nonce, nonce))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// Spec scenario: the identical signed request replayed with the same nonce
// must be refused the second time.
func TestReplayedNonceForbidden(t *testing.T) {
	srv, priv := newTestServer(t)
	nonce := fetchNonce(t, srv)

	resp, err := http.DefaultClient.Do(signedRequest(t, srv, priv, nonce, nonce))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.DefaultClient.Do(signedRequest(t, srv, priv, nonce, nonce))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// A fresh header nonce whose signed body carries a different nonce is
// rejected even though the signature itself verifies.
func TestBodyNonceMismatchForbidden(t *testing.T) {
	srv, priv := newTestServer(t)
	header := fetchNonce(t, srv)
	other := fetchNonce(t, srv)

	resp, err := http.DefaultClient.Do(signedRequest(t, srv, priv, header, other))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUnknownNonceForbidden(t *testing.T) {
	srv, priv := newTestServer(t)

	resp, err := http.DefaultClient.Do(signedRequest(t, srv, priv, "neverissued0000000000", "neverissued0000000000"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestTamperedBodyForbidden(t *testing.T) {
	srv, priv := newTestServer(t)
	nonce := fetchNonce(t, srv)

	msg, err := envelope.Sign(priv, map[string]string{"uuid": "u1", "nonce": nonce})
	require.NoError(t, err)
	msg.Message = json.RawMessage(`{"uuid":"u2","nonce":"` + nonce + `"}`)
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/contracts", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Authorization", nonce)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGetVerifiesQuerySignature(t *testing.T) {
	srv, priv := newTestServer(t)
	nonce := fetchNonce(t, srv)

	keyHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())
	req, err := http.NewRequest(http.MethodGet,
		srv.URL+"/contracts?key="+keyHex+"&signature="+envelope.SignNonce(priv, nonce), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", nonce)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthBypassesAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
