package contractstore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/dlc-link/dlc-engine/authmw"
	"github.com/dlc-link/dlc-engine/contract"
	"github.com/dlc-link/dlc-engine/contractstore"
	"github.com/dlc-link/dlc-engine/envelope"
)

// storageHandler is a minimal in-memory stand-in for the remote KV
// service, speaking the /contracts surface behind the real authorization
// middleware.
type storageHandler struct {
	mu   sync.Mutex
	rows map[string]storedRow
}

type storedRow struct {
	UUID    string `json:"uuid"`
	State   string `json:"state"`
	Content string `json:"content"`
}

func (s *storageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/health":
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/contracts" && r.Method == http.MethodGet:
		s.handleGet(w, r)
	case r.URL.Path == "/contracts" && r.Method == http.MethodPost:
		s.handleMutate(w, r, s.insert)
	case r.URL.Path == "/contracts" && r.Method == http.MethodPut:
		s.handleMutate(w, r, s.update)
	case r.URL.Path == "/contract" && r.Method == http.MethodDelete:
		s.handleMutate(w, r, s.delete)
	default:
		http.NotFound(w, r)
	}
}

func (s *storageHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []storedRow{}
	for _, row := range s.rows {
		if uuid := q.Get("uuid"); uuid != "" && row.UUID != uuid {
			continue
		}
		if state := q.Get("state"); state != "" && row.State != state {
			continue
		}
		out = append(out, row)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *storageHandler) handleMutate(w http.ResponseWriter, r *http.Request, op func(storedRow) uint64) {
	var msg envelope.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var row storedRow
	if err := json.Unmarshal(msg.Message, &row); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	effected := op(row)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]uint64{"effected_num": effected})
}

func (s *storageHandler) insert(row storedRow) uint64 {
	s.rows[row.UUID] = row
	return 1
}

func (s *storageHandler) update(row storedRow) uint64 {
	if _, ok := s.rows[row.UUID]; !ok {
		return 0
	}
	s.rows[row.UUID] = row
	return 1
}

func (s *storageHandler) delete(row storedRow) uint64 {
	if _, ok := s.rows[row.UUID]; !ok {
		return 0
	}
	delete(s.rows, row.UUID)
	return 1
}

func newRemoteStore(t *testing.T) *contractstore.Remote {
	t.Helper()

	handler := &storageHandler{rows: make(map[string]storedRow)}
	srv := httptest.NewServer(authmw.New(handler))
	t.Cleanup(srv.Close)

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return contractstore.NewRemote(srv.URL, priv)
}

func remoteTempID(b byte) contract.TempID {
	var id chainhash.Hash
	id[0] = b
	return id
}

func TestRemoteCreateGetRoundTrip(t *testing.T) {
	store := newRemoteStore(t)
	ctx := context.Background()

	offered := &contract.OfferedContract{
		TempID:          remoteTempID(1),
		IsOfferer:       true,
		OfferCollateral: 100000,
	}
	require.NoError(t, store.Create(ctx, offered))

	got, ok, err := store.Get(ctx, remoteTempID(1))
	require.NoError(t, err)
	require.True(t, ok)
	back := got.(*contract.OfferedContract)
	require.Equal(t, offered.TempID, back.TempID)
	require.Equal(t, offered.OfferCollateral, back.OfferCollateral)
	require.True(t, back.IsOfferer)

	err = store.Create(ctx, &contract.OfferedContract{TempID: remoteTempID(1)})
	require.Error(t, err)
}

func TestRemoteUpdatePromotesAndCleansUp(t *testing.T) {
	store := newRemoteStore(t)
	ctx := context.Background()

	offered := &contract.OfferedContract{TempID: remoteTempID(2)}
	require.NoError(t, store.Create(ctx, offered))

	accepted := &contract.AcceptedContract{
		Offered:         *offered,
		ContractIDValue: remoteTempID(9),
	}
	require.NoError(t, store.Update(ctx, accepted))

	_, ok, err := store.Get(ctx, remoteTempID(2))
	require.NoError(t, err)
	require.False(t, ok)

	byState, err := store.GetByState(ctx, contract.StateAccepted)
	require.NoError(t, err)
	require.Len(t, byState, 1)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestRemoteDelete(t *testing.T) {
	store := newRemoteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &contract.OfferedContract{TempID: remoteTempID(3)}))
	require.NoError(t, store.Delete(ctx, remoteTempID(3)))

	_, ok, err := store.Get(ctx, remoteTempID(3))
	require.NoError(t, err)
	require.False(t, ok)

	// Deleting the absent record again reports zero effected rows but no
	// error, matching the tolerate-absence contract.
	require.NoError(t, store.Delete(ctx, remoteTempID(3)))
}
