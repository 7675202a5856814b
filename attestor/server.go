package attestor

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/dlc-link/dlc-engine/dlcerr"
)

// Server exposes an Attestor's public surface over HTTP: its long-lived
// public key, and per-event announcement/attestation lookup. It is the
// thin transport wrapper around the attestor core; routing and framing
// aren't part of the core's testable behaviour.
type Server struct {
	attestor *Attestor
}

// NewServer wraps attestor in an http.Handler.
func NewServer(attestor *Attestor) *Server {
	return &Server{attestor: attestor}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/publickey":
		s.handlePublicKey(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/event/"):
		s.handleGetEvent(w, r)
	case strings.HasPrefix(r.URL.Path, "/create_event/"):
		s.handleCreateEvent(w, r)
	case strings.HasPrefix(r.URL.Path, "/attest/"):
		s.handleAttest(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handlePublicKey(w http.ResponseWriter, _ *http.Request) {
	pkBytes := s.attestor.PublicKey().SerializeCompressed()
	// x-only: drop the leading parity-tag byte of the compressed form.
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(hex.EncodeToString(pkBytes[1:])))
}

// eventResponse mirrors the storage-neutral JSON shape described in §6:
// hex-encoded, bit-exact announcement/attestation bytes.
type eventResponse struct {
	RustAnnouncement string `json:"rust_announcement"`
	RustAttestation  string `json:"rust_attestation,omitempty"`
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := strings.TrimPrefix(r.URL.Path, "/event/")
	if eventID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	rec, ok := s.attestor.store.Get(eventID)
	if !ok {
		http.Error(w, "event not found", http.StatusNotFound)
		return
	}

	resp := eventResponse{
		RustAnnouncement: hex.EncodeToString(rec.AnnouncementBytes),
	}
	if rec.IsAttested() {
		resp.RustAttestation = hex.EncodeToString(rec.AttestationBytes)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleCreateEvent announces a new event:
// /create_event/{uuid}?maturation={unix}&chain={tag}.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	eventID := strings.TrimPrefix(r.URL.Path, "/create_event/")
	if eventID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}
	maturation, err := strconv.ParseUint(r.URL.Query().Get("maturation"), 10, 32)
	if err != nil {
		http.Error(w, "bad maturation epoch", http.StatusBadRequest)
		return
	}

	ann, err := s.attestor.CreateEvent(eventID, uint32(maturation), r.URL.Query().Get("chain"))
	if err != nil {
		httpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(eventResponse{
		RustAnnouncement: hex.EncodeToString(ann.Serialize()),
	})
}

// handleAttest reveals the scalars for an announced event:
// /attest/{uuid}?outcome={n}.
func (s *Server) handleAttest(w http.ResponseWriter, r *http.Request) {
	eventID := strings.TrimPrefix(r.URL.Path, "/attest/")
	if eventID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}
	outcome, err := strconv.ParseUint(r.URL.Query().Get("outcome"), 10, 64)
	if err != nil {
		http.Error(w, "bad outcome", http.StatusBadRequest)
		return
	}

	att, err := s.attestor.Attest(eventID, outcome)
	if err != nil {
		httpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(eventResponse{
		RustAttestation: hex.EncodeToString(att.Serialize()),
	})
}

// httpError maps an error's kind to the status codes the error handling
// design prescribes: invalid parameters and state are the caller's fault,
// everything else is ours.
func httpError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if dlcerr.Is(err, dlcerr.KindInvalidParameters) || dlcerr.Is(err, dlcerr.KindInvalidState) {
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}
