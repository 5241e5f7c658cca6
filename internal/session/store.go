package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zulandar/rentbell/internal/transport"
)

// Record is one tenant's connection state. All fields are guarded by mu and
// mutated only by the Manager.
type Record struct {
	TenantID string

	mu             sync.RWMutex
	state          State
	handle         transport.Handle
	generation     uint64
	pairingCode    string
	lastError      string
	stage          string
	syncPercent    int
	readyTimer     *time.Timer
	stopHeartbeat  context.CancelFunc
	lastActivityAt time.Time
	updatedAt      time.Time
}

// Store is the in-memory registry of tenant records.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]*Record)}
}

// Get returns the record for tenantID, if any.
func (s *Store) Get(tenantID string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[tenantID]
	return r, ok
}

// GetOrCreate returns the record for tenantID, creating an Idle one.
func (s *Store) GetOrCreate(tenantID string) *Record {
	if r, ok := s.Get(tenantID); ok {
		return r
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[tenantID]; ok {
		return r
	}
	r := &Record{TenantID: tenantID, state: StateIdle}
	s.records[tenantID] = r
	return r
}

// All returns every record ordered by tenant ID.
func (s *Store) All() []*Record {
	s.mu.RLock()
	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
