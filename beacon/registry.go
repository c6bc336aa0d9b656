package beacon

import (
	"sync"
	"time"
)

// Registry stores every peer ever observed, keyed by identity and kept in
// first-seen order. Records are updated in place and never removed.
type Registry struct {
	mu    sync.RWMutex
	peers []Peer
	index map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Upsert inserts or updates the record for obs.ID and reports whether the
// observation was newsworthy: a new peer, a display-name change, or a payload
// change. RSSI is updated unconditionally but never counts as a change, since
// it fluctuates on every observation.
func (r *Registry) Upsert(obs Observation, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, exists := r.index[obs.ID]
	if !exists {
		r.index[obs.ID] = len(r.peers)
		r.peers = append(r.peers, Peer{
			ID:          obs.ID,
			DisplayName: obs.DisplayName,
			Payload:     obs.Payload,
			RSSI:        obs.RSSI,
			FirstSeen:   now,
		})
		return true
	}

	record := &r.peers[pos]
	changed := record.DisplayName != obs.DisplayName || record.Payload != obs.Payload
	record.DisplayName = obs.DisplayName
	record.Payload = obs.Payload
	record.RSSI = obs.RSSI
	return changed
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, exists := r.index[id]
	if !exists {
		return Peer{}, false
	}
	return r.peers[pos], true
}

// Peers returns a snapshot copy in first-seen order.
func (r *Registry) Peers() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, len(r.peers))
	copy(out, r.peers)
	return out
}

// Len returns the number of known peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
