package oracleclient

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/dlc-link/dlc-engine/dlcerr"
	"github.com/dlc-link/dlc-engine/dlcwire"
)

// requestTimeout bounds every outbound oracle HTTP call, matching the
// 30s default the rest of this module's transport uses.
const requestTimeout = 30 * time.Second

// HTTPOracle is an Oracle backed by an attestor.Server's HTTP surface.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
}

// NewHTTPOracle creates an HTTPOracle rooted at baseURL (no trailing
// slash), e.g. "https://oracle.example.com".
func NewHTTPOracle(baseURL string) *HTTPOracle {
	return &HTTPOracle{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (o *HTTPOracle) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path, nil)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindIO, err, "building request for %s", path)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindOracle, err, "requesting %s", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindIO, err, "reading response body for %s", path)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, dlcerr.New(dlcerr.KindOracle,
			"oracle returned %d for %s: %s", resp.StatusCode, path, string(body))
	}
	return body, nil
}

func (o *HTTPOracle) PublicKey(ctx context.Context) (*btcec.PublicKey, error) {
	body, err := o.get(ctx, "/publickey")
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(string(body))
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindSerialization, err, "decoding oracle public key hex")
	}
	pk, err := schnorr.ParsePubKey(raw)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindCrypto, err, "parsing oracle public key")
	}
	return pk, nil
}

type eventResponse struct {
	RustAnnouncement string `json:"rust_announcement"`
	RustAttestation  string `json:"rust_attestation,omitempty"`
}

func (o *HTTPOracle) fetchEvent(ctx context.Context, eventID string) (*eventResponse, error) {
	body, err := o.get(ctx, "/event/"+eventID)
	if err != nil {
		return nil, err
	}
	var resp eventResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindSerialization, err, "decoding event response for %q", eventID)
	}
	return &resp, nil
}

func (o *HTTPOracle) GetAnnouncement(ctx context.Context, eventID string) (*dlcwire.OracleAnnouncement, error) {
	resp, err := o.fetchEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if resp.RustAnnouncement == "" {
		return nil, dlcerr.New(dlcerr.KindOracle, "no announcement for event %q", eventID)
	}
	raw, err := hex.DecodeString(resp.RustAnnouncement)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindSerialization, err, "decoding announcement hex for %q", eventID)
	}
	announcement, err := dlcwire.ParseOracleAnnouncement(raw)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindSerialization, err, "parsing announcement for %q", eventID)
	}
	return announcement, nil
}

func (o *HTTPOracle) GetAttestation(ctx context.Context, eventID string) (*dlcwire.OracleAttestation, error) {
	resp, err := o.fetchEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if resp.RustAttestation == "" {
		return nil, dlcerr.New(dlcerr.KindOracle, "event %q not yet attested", eventID)
	}
	raw, err := hex.DecodeString(resp.RustAttestation)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindSerialization, err, "decoding attestation hex for %q", eventID)
	}
	attestation, err := dlcwire.ParseOracleAttestation(raw)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindSerialization, err, "parsing attestation for %q", eventID)
	}
	return attestation, nil
}
