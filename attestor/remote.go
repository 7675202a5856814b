package attestor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/dlc-link/dlc-engine/dlcerr"
	"github.com/dlc-link/dlc-engine/dlcwire"
	"github.com/dlc-link/dlc-engine/envelope"
)

const requestTimeout = 30 * time.Second

// RemoteStore is an EventStore backed by the same remote KV storage
// service the contract store uses, under its /events surface. Event
// records travel as opaque base64 blobs; only event_id is indexed.
//
// Get cannot surface transport errors through the EventStore interface;
// they are logged and reported as record-absent, which makes the attestor
// refuse to attest rather than attest against stale state.
type RemoteStore struct {
	baseURL string
	privKey *btcec.PrivateKey
	client  *http.Client
}

// NewRemoteStore creates a RemoteStore rooted at baseURL, authenticating
// as privKey's public key.
func NewRemoteStore(baseURL string, privKey *btcec.PrivateKey) *RemoteStore {
	return &RemoteStore{
		baseURL: baseURL,
		privKey: privKey,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// storedEvent is the persisted tuple: nonce scalars until attestation,
// announcement and attestation bytes, the attested outcome, and the chain
// tag the event was announced for.
type storedEvent struct {
	SkNonces    []string `json:"sk_nonces,omitempty"`
	Announcement string  `json:"announcement"`
	Attestation string   `json:"attestation,omitempty"`
	Outcome     *uint64  `json:"outcome,omitempty"`
	EventID     string   `json:"event_id"`
	Chain       string   `json:"chain,omitempty"`
}

func encodeRecord(rec *EventRecord) (string, error) {
	stored := storedEvent{
		Announcement: base64.StdEncoding.EncodeToString(rec.AnnouncementBytes),
		Outcome:      rec.Outcome,
		EventID:      rec.EventID,
		Chain:        rec.Chain,
	}
	for _, sk := range rec.SkNonces {
		stored.SkNonces = append(stored.SkNonces, hex.EncodeToString(sk.Serialize()))
	}
	if rec.AttestationBytes != nil {
		stored.Attestation = base64.StdEncoding.EncodeToString(rec.AttestationBytes)
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeRecord(content string) (*EventRecord, error) {
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, err
	}
	var stored storedEvent
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}

	rec := &EventRecord{
		EventID: stored.EventID,
		Chain:   stored.Chain,
		Outcome: stored.Outcome,
	}
	for _, s := range stored.SkNonces {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, err
		}
		sk, _ := btcec.PrivKeyFromBytes(b)
		rec.SkNonces = append(rec.SkNonces, sk)
	}
	if rec.AnnouncementBytes, err = base64.StdEncoding.DecodeString(stored.Announcement); err != nil {
		return nil, err
	}
	ann, err := dlcwire.ParseOracleAnnouncement(rec.AnnouncementBytes)
	if err != nil {
		return nil, err
	}
	rec.Announcement = *ann
	if stored.Attestation != "" {
		if rec.AttestationBytes, err = base64.StdEncoding.DecodeString(stored.Attestation); err != nil {
			return nil, err
		}
		if rec.Attestation, err = dlcwire.ParseOracleAttestation(rec.AttestationBytes); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func (s *RemoteStore) keyHex() string {
	return hex.EncodeToString(s.privKey.PubKey().SerializeCompressed())
}

func (s *RemoteStore) requestNonce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/request_nonce", nil)
	if err != nil {
		return "", dlcerr.Wrap(dlcerr.KindIO, err, "building nonce request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", dlcerr.Wrap(dlcerr.KindStorage, err, "requesting nonce")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", dlcerr.Wrap(dlcerr.KindIO, err, "reading nonce response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", dlcerr.New(dlcerr.KindStorage, "nonce request returned %d", resp.StatusCode)
	}
	return string(body), nil
}

func (s *RemoteStore) Get(eventID string) (*EventRecord, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	nonce, err := s.requestNonce(ctx)
	if err != nil {
		log.Errorf("fetching nonce for event %q lookup: %v", eventID, err)
		return nil, false
	}

	q := url.Values{}
	q.Set("key", s.keyHex())
	q.Set("signature", envelope.SignNonce(s.privKey, nonce))
	q.Set("event_id", eventID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/events?"+q.Encode(), nil)
	if err != nil {
		log.Errorf("building event %q lookup: %v", eventID, err)
		return nil, false
	}
	req.Header.Set("Authorization", nonce)

	resp, err := s.client.Do(req)
	if err != nil {
		log.Errorf("fetching event %q: %v", eventID, err)
		return nil, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		log.Errorf("event %q lookup returned %d: %v", eventID, resp.StatusCode, err)
		return nil, false
	}

	var rows []struct {
		EventID string `json:"event_id"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return nil, false
	}
	rec, err := decodeRecord(rows[0].Content)
	if err != nil {
		log.Errorf("decoding event %q record: %v", eventID, err)
		return nil, false
	}
	return rec, true
}

func (s *RemoteStore) Put(rec *EventRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	content, err := encodeRecord(rec)
	if err != nil {
		return dlcerr.Wrap(dlcerr.KindSerialization, err, "encoding event %q", rec.EventID)
	}

	// Update first; a zero effected count means this is the initial
	// insert for the event id.
	body, status, err := s.send(ctx, http.MethodPut, "/events", rec.EventID, content)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return dlcerr.New(dlcerr.KindStorage,
			"event update returned %d: %s", status, string(body))
	}
	var eff struct {
		EffectedNum uint64 `json:"effected_num"`
	}
	if err := json.Unmarshal(body, &eff); err != nil {
		return dlcerr.Wrap(dlcerr.KindSerialization, err, "decoding event update response")
	}
	if eff.EffectedNum > 0 {
		return nil
	}

	body, status, err = s.send(ctx, http.MethodPost, "/events", rec.EventID, content)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return dlcerr.New(dlcerr.KindStorage,
			"event create returned %d: %s", status, string(body))
	}
	return nil
}

func (s *RemoteStore) send(ctx context.Context, method, path, eventID, content string) ([]byte, int, error) {
	nonce, err := s.requestNonce(ctx)
	if err != nil {
		return nil, 0, err
	}

	msg, err := envelope.Sign(s.privKey, map[string]interface{}{
		"event_id": eventID,
		"content":  content,
		"key":      s.keyHex(),
		"nonce":    nonce,
	})
	if err != nil {
		return nil, 0, err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, 0, dlcerr.Wrap(dlcerr.KindSerialization, err, "marshaling envelope")
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, dlcerr.Wrap(dlcerr.KindIO, err, "building %s %s request", method, path)
	}
	req.Header.Set("Authorization", nonce)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, dlcerr.Wrap(dlcerr.KindStorage, err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, dlcerr.Wrap(dlcerr.KindIO, err, "reading %s %s response", method, path)
	}
	return body, resp.StatusCode, nil
}
