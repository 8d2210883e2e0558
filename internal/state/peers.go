package state

import (
	"sort"
	"sync"
	"time"
)

// PeerTable is an ephemeral cache over discovery events: arrivals add an
// identity, departures remove it. Nothing else writes to it.
type PeerTable struct {
	mu    sync.Mutex
	peers map[string]time.Time
}

func NewPeerTable() *PeerTable {
	return &PeerTable{
		peers: map[string]time.Time{},
	}
}

func (t *PeerTable) Add(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[id] = time.Now()
}

func (t *PeerTable) Touch(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.peers[id]; ok {
		t.peers[id] = time.Now()
	}
}

func (t *PeerTable) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
}

func (t *PeerTable) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.peers[id]
	return ok
}

func (t *PeerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

// IDs returns the deduplicated current peer set, sorted for stable output.
func (t *PeerTable) IDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LastSeen returns when the peer was last reported by discovery.
func (t *PeerTable) LastSeen(id string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.peers[id]
	return ts, ok
}
