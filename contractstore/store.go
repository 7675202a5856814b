// Package contractstore is the manager's view of contract persistence: a
// small CRUD interface plus an in-memory implementation for tests and a
// remote HTTPS+JSON implementation for production, grounded on the
// teacher's channeldb-as-a-capability-interface idiom generalized from a
// local bbolt schema to a remote KV client (the contract's own content is
// opaque to the store, per spec.md §4.1/§6).
package contractstore

import (
	"context"
	"sync"

	"github.com/dlc-link/dlc-engine/contract"
	"github.com/dlc-link/dlc-engine/dlcerr"
)

// Store is the manager's persistence capability for contracts. Ownership
// is scoped by the caller's own public key (threaded through Remote's
// construction, not through these method signatures); each operation is
// individually atomic, and the manager performs read-modify-write without
// holding a store-level transaction across suspensions.
type Store interface {
	// Get returns the contract identified by id, or (nil, false) if
	// absent.
	Get(ctx context.Context, id contract.ID) (contract.Contract, bool, error)

	// GetAll returns every record owned by this principal.
	GetAll(ctx context.Context) ([]contract.Contract, error)

	// GetByState returns every record whose current variant is state,
	// the periodic loop's scan primitive.
	GetByState(ctx context.Context, state contract.State) ([]contract.Contract, error)

	// Create inserts a new Offered record. It fails if a record with the
	// same temporary id already exists.
	Create(ctx context.Context, c *contract.OfferedContract) error

	// Update replaces the record identified by c's current id (temporary
	// id while Offered, else its funding-txid ContractID). For Accepted
	// and Signed variants, Update additionally removes any prior Offered
	// record filed under the temporary id, tolerating its absence.
	Update(ctx context.Context, c contract.Contract) error

	// Delete removes the record identified by id.
	Delete(ctx context.Context, id contract.TempID) error
}

// recordKey is the string a Memory/Remote implementation files a contract
// under: its ContractID once assigned, else its TempContractID.
func recordKey(c contract.Contract) string {
	if id, ok := contract.ContractID(c); ok {
		return id.String()
	}
	return c.TempContractID().String()
}

// Memory is an in-process Store guarded by a RWMutex, used by tests and
// by deployments that don't need the remote KV surface.
type Memory struct {
	mu      sync.RWMutex
	records map[string]contract.Contract
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]contract.Contract)}
}

func (m *Memory) Get(_ context.Context, id contract.ID) (contract.Contract, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.records[id.String()]
	return c, ok, nil
}

func (m *Memory) GetAll(_ context.Context) ([]contract.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]contract.Contract, 0, len(m.records))
	for _, c := range m.records {
		out = append(out, c)
	}
	return out, nil
}

func (m *Memory) GetByState(_ context.Context, state contract.State) ([]contract.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []contract.Contract
	for _, c := range m.records {
		if c.State() == state {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) Create(_ context.Context, c *contract.OfferedContract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := c.TempID.String()
	if _, exists := m.records[key]; exists {
		return dlcerr.New(dlcerr.KindInvalidParameters,
			"contract %s already exists", key)
	}
	m.records[key] = c
	return nil
}

func (m *Memory) Update(_ context.Context, c contract.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch c.(type) {
	case *contract.AcceptedContract, *contract.SignedContract:
		delete(m.records, c.TempContractID().String())
	}
	m.records[recordKey(c)] = c
	return nil
}

func (m *Memory) Delete(_ context.Context, id contract.TempID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, id.String())
	return nil
}
