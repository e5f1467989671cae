package anonymizer

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
)

// ValueClass scopes pseudonyms so equal raw strings of different semantic
// categories never alias.
type ValueClass string

const (
	ClassName    ValueClass = "name"
	ClassPhone   ValueClass = "phone"
	ClassAddress ValueClass = "address"
	ClassSSN     ValueClass = "ssn"
	ClassID      ValueClass = "id"
)

// ValueClasses lists the classes reported by cache statistics.
func ValueClasses() []ValueClass {
	return []ValueClass{ClassName, ClassPhone, ClassAddress, ClassSSN, ClassID}
}

// fingerprintBytes is the digest prefix length used as a cache key.
const fingerprintBytes = 16

// Fingerprint is the one-way cache key for an original value within a class.
func Fingerprint(class ValueClass, original string) string {
	h := sha256.New()
	h.Write([]byte(class))
	h.Write([]byte{0})
	h.Write([]byte(original))
	return hex.EncodeToString(h.Sum(nil)[:fingerprintBytes])
}

// CacheStats counts cached pseudonyms per value class.
type CacheStats map[ValueClass]int

// Total sums all classes.
func (s CacheStats) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// PseudonymCache maps (class, original value) to a pseudonym that never
// changes for the lifetime of the cache.
type PseudonymCache interface {
	// GetOrCreate returns the cached pseudonym, invoking generate at most
	// once per fingerprint even under concurrent callers.
	GetOrCreate(class ValueClass, original string, generate func() string) string
	Stats() CacheStats
}

const cacheShards = 64

type cacheKey struct {
	class ValueClass
	fp    string
}

type cacheEntry struct {
	once  sync.Once
	value string
}

type cacheShard struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
}

// ShardedCache is the in-memory PseudonymCache. Keys are spread over shards
// by fingerprint; generation runs outside the shard lock under a per-key
// once, so a slow generation only blocks callers asking for the same value.
type ShardedCache struct {
	shards [cacheShards]cacheShard
}

func NewShardedCache() *ShardedCache {
	c := &ShardedCache{}
	for i := range c.shards {
		c.shards[i].entries = make(map[cacheKey]*cacheEntry)
	}
	return c
}

func (c *ShardedCache) shardFor(fp string) *cacheShard {
	raw, _ := hex.DecodeString(fp[:4])
	return &c.shards[int(binary.BigEndian.Uint16(raw))%cacheShards]
}

func (c *ShardedCache) GetOrCreate(class ValueClass, original string, generate func() string) string {
	key := cacheKey{class: class, fp: Fingerprint(class, original)}
	s := c.shardFor(key.fp)

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &cacheEntry{}
		s.entries[key] = e
	}
	s.mu.Unlock()

	e.once.Do(func() {
		e.value = generate()
	})
	return e.value
}

// Stats walks every shard; it takes each shard lock briefly and never blocks
// generation.
func (c *ShardedCache) Stats() CacheStats {
	stats := make(CacheStats, len(ValueClasses()))
	for _, class := range ValueClasses() {
		stats[class] = 0
	}
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for k := range s.entries {
			stats[k.class]++
		}
		s.mu.Unlock()
	}
	return stats
}
