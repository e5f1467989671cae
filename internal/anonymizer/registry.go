package anonymizer

import (
	"hash/fnv"
	"sort"
	"sync"
)

// Mapping is one original-id to anonymized-id pair.
type Mapping struct {
	Kind         Kind   `json:"-"`
	ResourceType string `json:"resourceType"`
	OriginalID   string `json:"originalId"`
	AnonymizedID string `json:"anonymizedId"`
}

// NewMapping builds a Mapping with its resource type name filled in.
func NewMapping(kind Kind, originalID, anonymizedID string) Mapping {
	return Mapping{Kind: kind, ResourceType: kind.String(), OriginalID: originalID, AnonymizedID: anonymizedID}
}

// Registry maps original resource ids to anonymized ids per kind.
type Registry interface {
	// Record stores the mapping. Recording an existing (kind, originalID)
	// replaces it; that is an explicit re-anonymization.
	Record(kind Kind, originalID, anonymizedID string)
	// Lookup never blocks on generation; a miss is a normal outcome.
	Lookup(kind Kind, originalID string) (string, bool)
}

const registryShards = 32

type registryKey struct {
	kind Kind
	id   string
}

type registryShard struct {
	mu      sync.RWMutex
	entries map[registryKey]string
}

// MemoryRegistry is the in-process Registry. Record and Lookup on the same
// key are linearizable through the key's shard lock.
type MemoryRegistry struct {
	shards [registryShards]registryShard
}

func NewMemoryRegistry() *MemoryRegistry {
	r := &MemoryRegistry{}
	for i := range r.shards {
		r.shards[i].entries = make(map[registryKey]string)
	}
	return r
}

func (r *MemoryRegistry) shardFor(k registryKey) *registryShard {
	h := fnv.New32a()
	h.Write([]byte{byte(k.kind)})
	h.Write([]byte(k.id))
	return &r.shards[h.Sum32()%registryShards]
}

func (r *MemoryRegistry) Record(kind Kind, originalID, anonymizedID string) {
	k := registryKey{kind: kind, id: originalID}
	s := r.shardFor(k)
	s.mu.Lock()
	s.entries[k] = anonymizedID
	s.mu.Unlock()
}

func (r *MemoryRegistry) Lookup(kind Kind, originalID string) (string, bool) {
	k := registryKey{kind: kind, id: originalID}
	s := r.shardFor(k)
	s.mu.RLock()
	v, ok := s.entries[k]
	s.mu.RUnlock()
	return v, ok
}

// Load records every mapping; used to rehydrate from persisted pairs.
func (r *MemoryRegistry) Load(mappings []Mapping) {
	for _, m := range mappings {
		r.Record(m.Kind, m.OriginalID, m.AnonymizedID)
	}
}

// Len returns the number of mappings held.
func (r *MemoryRegistry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Snapshot returns all mappings sorted by kind then original id.
func (r *MemoryRegistry) Snapshot() []Mapping {
	var out []Mapping
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for k, v := range s.entries {
			out = append(out, NewMapping(k.kind, k.id, v))
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].OriginalID < out[j].OriginalID
	})
	return out
}
