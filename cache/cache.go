package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/provas/models"
)

// entry holds a decoded output file with its creation timestamp.
type entry struct {
	questions []models.TransformedQuestion
	createdAt time.Time
}

// Cache keeps decoded output files in memory so per-question lookups do not
// re-read and re-parse the whole array. It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	maxAge     time.Duration
}

// New creates a Cache holding at most maxEntries files, each for at most
// maxAge. maxEntries <= 0 disables caching.
func New(maxEntries int, maxAge time.Duration) *Cache {
	return &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		maxAge:     maxAge,
	}
}

// Key identifies one version of a file. A rewrite changes the mod time or
// size and therefore the key.
func Key(path string, modTime time.Time, size int64) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatInt(modTime.UnixNano(), 10)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatInt(size, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached questions for key and whether it was a hit.
func (c *Cache) Get(key string) ([]models.TransformedQuestion, bool) {
	if c == nil || c.maxEntries <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || c.expired(e, time.Now()) {
		return nil, false
	}
	return e.questions, true
}

// Set stores questions under key. Expired entries are dropped first; if the
// cache is still at capacity, a random entry is evicted to make room.
func (c *Cache) Set(key string, questions []models.TransformedQuestion) {
	if c == nil || c.maxEntries <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, e := range c.store {
		if c.expired(e, now) {
			delete(c.store, k)
		}
	}
	// Map iteration order is random.
	if len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		questions: questions,
		createdAt: now,
	}
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return c.maxAge > 0 && now.Sub(e.createdAt) > c.maxAge
}
