package shield

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// historyTTL bounds how long IP and device sightings count toward collusion
// and overlap checks.
const historyTTL = 24 * time.Hour

// rateWindow and rateLimit define the match-request budget per account.
const (
	rateWindow = time.Minute
	rateLimit  = 10
)

// MemoryStore tracks presence, request rates, encounters and quarantines.
// All indexes are in-process; a node restart clears them, which is acceptable
// because every signal here is short-lived by design.
type MemoryStore struct {
	mu sync.Mutex

	// ip/device -> accounts seen there, with last-seen time.
	ipIndex     map[string]map[uuid.UUID]time.Time
	deviceIndex map[string]map[uuid.UUID]time.Time

	// account -> ips/devices it used, with last-seen time.
	ipHistory     map[uuid.UUID]map[string]time.Time
	deviceHistory map[uuid.UUID]map[string]time.Time

	// unordered pair -> matches played together.
	encounters map[pairKey]int

	quarantine map[uuid.UUID]time.Time
	requests   map[uuid.UUID][]time.Time
}

type pairKey struct{ lo, hi uuid.UUID }

func newPairKey(a, b uuid.UUID) pairKey {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return pairKey{lo: a, hi: b}
			}
			return pairKey{lo: b, hi: a}
		}
	}
	return pairKey{lo: a, hi: b}
}

// NewMemoryStore creates an empty presence store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ipIndex:       make(map[string]map[uuid.UUID]time.Time),
		deviceIndex:   make(map[string]map[uuid.UUID]time.Time),
		ipHistory:     make(map[uuid.UUID]map[string]time.Time),
		deviceHistory: make(map[uuid.UUID]map[string]time.Time),
		encounters:    make(map[pairKey]int),
		quarantine:    make(map[uuid.UUID]time.Time),
		requests:      make(map[uuid.UUID][]time.Time),
	}
}

// RecordPresence notes that an account connected from an IP and device.
func (s *MemoryStore) RecordPresence(accountID uuid.UUID, ip, device string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ip != "" {
		if s.ipIndex[ip] == nil {
			s.ipIndex[ip] = make(map[uuid.UUID]time.Time)
		}
		s.ipIndex[ip][accountID] = now
		if s.ipHistory[accountID] == nil {
			s.ipHistory[accountID] = make(map[string]time.Time)
		}
		s.ipHistory[accountID][ip] = now
	}
	if device != "" {
		if s.deviceIndex[device] == nil {
			s.deviceIndex[device] = make(map[uuid.UUID]time.Time)
		}
		s.deviceIndex[device][accountID] = now
		if s.deviceHistory[accountID] == nil {
			s.deviceHistory[accountID] = make(map[string]time.Time)
		}
		s.deviceHistory[accountID][device] = now
	}
}

// RecordEncounter counts one match played between two accounts.
func (s *MemoryStore) RecordEncounter(a, b uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encounters[newPairKey(a, b)]++
}

// Encounters returns how many matches two accounts played together.
func (s *MemoryStore) Encounters(a, b uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encounters[newPairKey(a, b)]
}

// Quarantine blocks an account from matchmaking until the given time.
func (s *MemoryStore) Quarantine(accountID uuid.UUID, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quarantine[accountID] = until
}

// QuarantinedUntil returns the quarantine deadline, if any remains.
func (s *MemoryStore) QuarantinedUntil(accountID uuid.UUID, now time.Time) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.quarantine[accountID]
	if !ok {
		return time.Time{}, false
	}
	if !now.Before(until) {
		delete(s.quarantine, accountID)
		return time.Time{}, false
	}
	return until, true
}

// AllowRequest applies the sliding-window rate limit and records the request
// when admitted.
func (s *MemoryStore) AllowRequest(accountID uuid.UUID, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-rateWindow)
	kept := s.requests[accountID][:0]
	for _, ts := range s.requests[accountID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= rateLimit {
		s.requests[accountID] = kept
		return false
	}
	s.requests[accountID] = append(kept, now)
	return true
}

// sharedNow returns accounts currently seen on the key, excluding self and
// anything older than the history TTL.
func shared(index map[string]map[uuid.UUID]time.Time, key string, self uuid.UUID, now time.Time) []uuid.UUID {
	var out []uuid.UUID
	for id, seen := range index[key] {
		if id == self {
			continue
		}
		if now.Sub(seen) > historyTTL {
			continue
		}
		out = append(out, id)
	}
	return out
}

// historyOverlap reports whether two accounts ever used a common key within
// the TTL.
func historyOverlap(history map[uuid.UUID]map[string]time.Time, a, b uuid.UUID, now time.Time) bool {
	for key, seenA := range history[a] {
		if now.Sub(seenA) > historyTTL {
			continue
		}
		if seenB, ok := history[b][key]; ok && now.Sub(seenB) <= historyTTL {
			return true
		}
	}
	return false
}

// Evict drops every sighting older than the history TTL. Called periodically
// by the shield's housekeeping loop.
func (s *MemoryStore) Evict(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-historyTTL)
	for key, accounts := range s.ipIndex {
		for id, seen := range accounts {
			if seen.Before(cutoff) {
				delete(accounts, id)
			}
		}
		if len(accounts) == 0 {
			delete(s.ipIndex, key)
		}
	}
	for key, accounts := range s.deviceIndex {
		for id, seen := range accounts {
			if seen.Before(cutoff) {
				delete(accounts, id)
			}
		}
		if len(accounts) == 0 {
			delete(s.deviceIndex, key)
		}
	}
	for id, keys := range s.ipHistory {
		for key, seen := range keys {
			if seen.Before(cutoff) {
				delete(keys, key)
			}
		}
		if len(keys) == 0 {
			delete(s.ipHistory, id)
		}
	}
	for id, keys := range s.deviceHistory {
		for key, seen := range keys {
			if seen.Before(cutoff) {
				delete(keys, key)
			}
		}
		if len(keys) == 0 {
			delete(s.deviceHistory, id)
		}
	}
	for id, until := range s.quarantine {
		if !now.Before(until) {
			delete(s.quarantine, id)
		}
	}
}
