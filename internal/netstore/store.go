package netstore

import (
	"sort"
	"sync"

	"wifiwatch/internal/models"
)

// Store holds the deduplicated set of networks seen during one scan session,
// keyed by BSSID.
type Store struct {
	mu       sync.Mutex
	networks map[string]models.NetworkRecord
}

// New creates an empty Store.
func New() *Store {
	return &Store{networks: make(map[string]models.NetworkRecord)}
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.networks = make(map[string]models.NetworkRecord)
}

// Upsert records an observation. An existing entry for the same BSSID is
// replaced wholesale by the newer one.
func (s *Store) Upsert(rec models.NetworkRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.networks[rec.BSSID] = rec
}

// UpsertAll applies a batch of observations in order under a single lock, so
// readers never see a partially merged batch.
func (s *Store) UpsertAll(recs []models.NetworkRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		s.networks[rec.BSSID] = rec
	}
}

// Get returns the record for bssid, if present.
func (s *Store) Get(bssid string) (models.NetworkRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.networks[bssid]
	return rec, ok
}

// Len returns the number of distinct networks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.networks)
}

// Snapshot returns a copy of the current records ordered by BSSID.
func (s *Store) Snapshot() []models.NetworkRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]models.NetworkRecord, 0, len(s.networks))
	for _, rec := range s.networks {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].BSSID < result[j].BSSID
	})
	return result
}
