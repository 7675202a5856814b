package oracleclient

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/dlc-link/dlc-engine/dlcerr"
	"github.com/dlc-link/dlc-engine/dlcwire"
)

// Memory is an in-process Oracle, the test-fake analogue of HTTPOracle
// used across the manager's own tests so the quorum fan-out in §4.6.3 can
// be exercised without standing up real attestor servers.
type Memory struct {
	pubKey *btcec.PublicKey

	mu            sync.Mutex
	announcements map[string]*dlcwire.OracleAnnouncement
	attestations  map[string]*dlcwire.OracleAttestation
	failEventIDs  map[string]bool
}

// NewMemory creates a Memory oracle reporting pubKey as its identity.
func NewMemory(pubKey *btcec.PublicKey) *Memory {
	return &Memory{
		pubKey:        pubKey,
		announcements: make(map[string]*dlcwire.OracleAnnouncement),
		attestations:  make(map[string]*dlcwire.OracleAttestation),
		failEventIDs:  make(map[string]bool),
	}
}

// PutAnnouncement registers the announcement this oracle will return for
// eventID.
func (m *Memory) PutAnnouncement(eventID string, a *dlcwire.OracleAnnouncement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announcements[eventID] = a
}

// PutAttestation registers the attestation this oracle will return for
// eventID.
func (m *Memory) PutAttestation(eventID string, a *dlcwire.OracleAttestation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attestations[eventID] = a
}

// FailEvent makes every call touching eventID return an error, simulating
// one oracle in a quorum being unreachable.
func (m *Memory) FailEvent(eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failEventIDs[eventID] = true
}

func (m *Memory) PublicKey(_ context.Context) (*btcec.PublicKey, error) {
	return m.pubKey, nil
}

func (m *Memory) GetAnnouncement(_ context.Context, eventID string) (*dlcwire.OracleAnnouncement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failEventIDs[eventID] {
		return nil, dlcerr.New(dlcerr.KindOracle, "simulated failure for event %q", eventID)
	}
	a, ok := m.announcements[eventID]
	if !ok {
		return nil, dlcerr.New(dlcerr.KindOracle, "no announcement for event %q", eventID)
	}
	return a, nil
}

func (m *Memory) GetAttestation(_ context.Context, eventID string) (*dlcwire.OracleAttestation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failEventIDs[eventID] {
		return nil, dlcerr.New(dlcerr.KindOracle, "simulated failure for event %q", eventID)
	}
	a, ok := m.attestations[eventID]
	if !ok {
		return nil, dlcerr.New(dlcerr.KindOracle, "event %q not yet attested", eventID)
	}
	return a, nil
}
