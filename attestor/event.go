package attestor

import (
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/dlc-link/dlc-engine/dlcwire"
)

// EventRecord is the attestor's persisted state for one announced event.
// SkNonces is retained until the moment of attestation; implementations may
// erase it afterward (it is never needed again once Attestation is set).
type EventRecord struct {
	EventID           string
	Chain             string
	SkNonces          []*btcec.PrivateKey
	Announcement      dlcwire.OracleAnnouncement
	AnnouncementBytes []byte
	Attestation       *dlcwire.OracleAttestation
	AttestationBytes  []byte
	Outcome           *uint64
}

// IsAttested reports whether this event has already been attested to.
func (r *EventRecord) IsAttested() bool {
	return r.Attestation != nil
}

// EventStore persists attestor event records keyed by event id. A single
// writer (the attestor itself) owns this store. MemoryStore keeps records
// in process memory; RemoteStore keeps them under the remote KV service.
type EventStore interface {
	// Get returns the record for eventID, or (nil, false) if absent.
	Get(eventID string) (*EventRecord, bool)

	// Put inserts or replaces the record for its EventID.
	Put(rec *EventRecord) error
}
