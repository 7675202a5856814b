package contractstore

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

	"github.com/dlc-link/dlc-engine/contract"
	"github.com/dlc-link/dlc-engine/dlcerr"
	"github.com/dlc-link/dlc-engine/envelope"
)

const requestTimeout = 30 * time.Second

// Remote is a Store backed by the remote KV storage service: every call
// first fetches a single-use nonce from /request_nonce, then issues the
// signed request the service's authorization middleware verifies. The
// contract's own bytes travel as an opaque base64 blob; the service only
// indexes uuid and state.
type Remote struct {
	baseURL string
	privKey *btcec.PrivateKey
	client  *http.Client
}

// NewRemote creates a Remote rooted at baseURL (no trailing slash),
// authenticating as privKey's public key.
func NewRemote(baseURL string, privKey *btcec.PrivateKey) *Remote {
	return &Remote{
		baseURL: baseURL,
		privKey: privKey,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (r *Remote) keyHex() string {
	return hex.EncodeToString(r.privKey.PubKey().SerializeCompressed())
}

func (r *Remote) requestNonce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/request_nonce", nil)
	if err != nil {
		return "", dlcerr.Wrap(dlcerr.KindIO, err, "building nonce request")
	}
	resp, err := r.client.Do(req)
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

// remoteContract is the service's row shape: uuid and state are indexed,
// content is opaque to it.
type remoteContract struct {
	UUID    string `json:"uuid"`
	State   string `json:"state"`
	Content string `json:"content"`
}

type effectedResponse struct {
	EffectedNum uint64 `json:"effected_num"`
}

// get issues the signed GET /contracts query with the given optional
// uuid/state filters and decodes every returned row.
func (r *Remote) get(ctx context.Context, uuid, state string) ([]contract.Contract, error) {
	nonce, err := r.requestNonce(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("key", r.keyHex())
	q.Set("signature", envelope.SignNonce(r.privKey, nonce))
	if uuid != "" {
		q.Set("uuid", uuid)
	}
	if state != "" {
		q.Set("state", state)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.baseURL+"/contracts?"+q.Encode(), nil)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindIO, err, "building contracts request")
	}
	req.Header.Set("Authorization", nonce)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindStorage, err, "fetching contracts")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindIO, err, "reading contracts response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, dlcerr.New(dlcerr.KindStorage,
			"contracts query returned %d: %s", resp.StatusCode, string(body))
	}

	var rows []remoteContract
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindSerialization, err, "decoding contracts response")
	}

	out := make([]contract.Contract, 0, len(rows))
	for _, row := range rows {
		raw, err := base64.StdEncoding.DecodeString(row.Content)
		if err != nil {
			return nil, dlcerr.Wrap(dlcerr.KindSerialization, err,
				"decoding content for contract %s", row.UUID)
		}
		c, err := contract.Unmarshal(raw)
		if err != nil {
			return nil, dlcerr.Wrap(dlcerr.KindSerialization, err,
				"unmarshaling contract %s", row.UUID)
		}
		out = append(out, c)
	}
	return out, nil
}

// send issues a signed body-bearing request and returns the raw response.
func (r *Remote) send(ctx context.Context, method, path string, payload map[string]interface{}) ([]byte, int, error) {
	nonce, err := r.requestNonce(ctx)
	if err != nil {
		return nil, 0, err
	}

	payload["key"] = r.keyHex()
	payload["nonce"] = nonce

	msg, err := envelope.Sign(r.privKey, payload)
	if err != nil {
		return nil, 0, err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, 0, dlcerr.Wrap(dlcerr.KindSerialization, err, "marshaling envelope")
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, dlcerr.Wrap(dlcerr.KindIO, err, "building %s %s request", method, path)
	}
	req.Header.Set("Authorization", nonce)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
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

// checkEffected interprets the service's {effected_num} responses: 0 is
// not-found, 1 success, anything larger is unexpected but treated as
// success after a warning.
func checkEffected(body []byte, op string) (bool, error) {
	var eff effectedResponse
	if err := json.Unmarshal(body, &eff); err != nil {
		return false, dlcerr.Wrap(dlcerr.KindSerialization, err, "decoding %s response", op)
	}
	switch {
	case eff.EffectedNum == 0:
		return false, nil
	case eff.EffectedNum > 1:
		log.Warnf("%s effected %d records, expected 1", op, eff.EffectedNum)
	}
	return true, nil
}

func (r *Remote) Get(ctx context.Context, id contract.ID) (contract.Contract, bool, error) {
	rows, err := r.get(ctx, id.String(), "")
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

func (r *Remote) GetAll(ctx context.Context) ([]contract.Contract, error) {
	return r.get(ctx, "", "")
}

func (r *Remote) GetByState(ctx context.Context, state contract.State) ([]contract.Contract, error) {
	return r.get(ctx, "", state.String())
}

func (r *Remote) Create(ctx context.Context, c *contract.OfferedContract) error {
	if _, exists, err := r.Get(ctx, c.TempID); err != nil {
		return err
	} else if exists {
		return dlcerr.New(dlcerr.KindInvalidParameters,
			"contract %s already exists", c.TempID)
	}

	content, err := marshalContent(c)
	if err != nil {
		return err
	}
	body, status, err := r.send(ctx, http.MethodPost, "/contracts", map[string]interface{}{
		"uuid":    c.TempID.String(),
		"state":   c.State().String(),
		"content": content,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return dlcerr.New(dlcerr.KindStorage,
			"create contract returned %d: %s", status, string(body))
	}
	return nil
}

func (r *Remote) Update(ctx context.Context, c contract.Contract) error {
	content, err := marshalContent(c)
	if err != nil {
		return err
	}

	key := recordKey(c)
	body, status, err := r.send(ctx, http.MethodPut, "/contracts", map[string]interface{}{
		"uuid":    key,
		"state":   c.State().String(),
		"content": content,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return dlcerr.New(dlcerr.KindStorage,
			"update contract returned %d: %s", status, string(body))
	}

	updated, err := checkEffected(body, "update contract")
	if err != nil {
		return err
	}
	if !updated {
		// First write under a freshly-promoted id: insert instead.
		body, status, err = r.send(ctx, http.MethodPost, "/contracts", map[string]interface{}{
			"uuid":    key,
			"state":   c.State().String(),
			"content": content,
		})
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return dlcerr.New(dlcerr.KindStorage,
				"insert on update returned %d: %s", status, string(body))
		}
	}

	// Promotion to a funding-txid id leaves the Offered record behind
	// under the temporary id; remove it, tolerating its absence.
	switch c.(type) {
	case *contract.AcceptedContract, *contract.SignedContract:
		if err := r.Delete(ctx, c.TempContractID()); err != nil {
			log.Warnf("removing temporary record %s: %v", c.TempContractID(), err)
		}
	}
	return nil
}

func (r *Remote) Delete(ctx context.Context, id contract.TempID) error {
	body, status, err := r.send(ctx, http.MethodDelete, "/contract", map[string]interface{}{
		"uuid": id.String(),
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return dlcerr.New(dlcerr.KindStorage,
			"delete contract returned %d: %s", status, string(body))
	}
	_, err = checkEffected(body, "delete contract")
	return err
}

func marshalContent(c contract.Contract) (string, error) {
	raw, err := contract.Marshal(c)
	if err != nil {
		return "", dlcerr.Wrap(dlcerr.KindSerialization, err, "marshaling contract")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
