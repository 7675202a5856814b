// Package authmw is the storage service's server-side half of the signed
// transport envelope: it issues single-use nonces, verifies every
// authenticated request's signature, and rejects replays. It wraps any
// http.Handler, the idiomatic Go analogue of the actix Transform/Service
// middleware pair the storage API's verify_sigs module implements.
package authmw

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http"

	"github.com/dlc-link/dlc-engine/envelope"
	"github.com/dlc-link/dlc-engine/queueutil"
)

const (
	// NonceLength is the length of every issued nonce string.
	NonceLength = 20

	// NonceQueueCapacity bounds the set of outstanding nonces; issuing
	// past it evicts the oldest, which then fails verification if used.
	NonceQueueCapacity = 100
)

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Middleware authenticates every request except the unprotected paths,
// serving /request_nonce itself since it owns the nonce queue.
type Middleware struct {
	nonces *queueutil.NonceQueue
	next   http.Handler
}

// New wraps next in the authorization middleware.
func New(next http.Handler) *Middleware {
	return &Middleware{
		nonces: queueutil.NewNonceQueue(NonceQueueCapacity),
		next:   next,
	}
}

func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health":
		m.next.ServeHTTP(w, r)
		return
	case "/request_nonce":
		m.handleRequestNonce(w, r)
		return
	}

	nonce := r.Header.Get("Authorization")
	if nonce == "" || !m.nonces.Contains(nonce) {
		log.Debugf("rejecting %s %s: missing or unknown nonce", r.Method, r.URL.Path)
		forbidden(w)
		return
	}
	// Single use: consumed whether or not the signature below verifies.
	m.nonces.Remove(nonce)

	if r.Method == http.MethodGet {
		q := r.URL.Query()
		if err := envelope.VerifyNonce(q.Get("key"), nonce, q.Get("signature")); err != nil {
			log.Debugf("rejecting %s %s: %v", r.Method, r.URL.Path, err)
			forbidden(w)
			return
		}
		m.next.ServeHTTP(w, r)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		forbidden(w)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var msg envelope.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debugf("rejecting %s %s: malformed envelope: %v", r.Method, r.URL.Path, err)
		forbidden(w)
		return
	}
	if _, err := envelope.Verify(&msg); err != nil {
		log.Debugf("rejecting %s %s: %v", r.Method, r.URL.Path, err)
		forbidden(w)
		return
	}

	// Body-bearing requests must also agree with the header on which
	// nonce they were signed over.
	var body struct {
		Nonce string `json:"nonce"`
	}
	if err := json.Unmarshal(msg.Message, &body); err != nil || body.Nonce != nonce {
		log.Debugf("rejecting %s %s: body nonce disagrees with header", r.Method, r.URL.Path)
		forbidden(w)
		return
	}

	m.next.ServeHTTP(w, r)
}

func (m *Middleware) handleRequestNonce(w http.ResponseWriter, _ *http.Request) {
	nonce := newNonce()
	m.nonces.Push(nonce)
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(nonce))
}

func forbidden(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

// newNonce draws a NonceLength-character random alphanumeric string.
func newNonce() string {
	raw := make([]byte, NonceLength)
	if _, err := rand.Read(raw); err != nil {
		panic("authmw: reading from crypto/rand: " + err.Error())
	}
	out := make([]byte, NonceLength)
	for i, b := range raw {
		out[i] = nonceAlphabet[int(b)%len(nonceAlphabet)]
	}
	return string(out)
}
