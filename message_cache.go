package main

import (
	"strconv"
	"sync"
	"time"
)

const (
	cleanupTargetFraction = 10   // Target: cleanup when ~1/10th of cache size new entries added
	minCleanupInterval    = 10   // Minimum cleanup interval in operations
	maxCleanupInterval    = 1000 // Maximum cleanup interval in operations
)

// MessageCache remembers recently resolved request keys so that a request the
// relay redelivers within the TTL is not processed twice.
// Expired entries are treated as absent and removed lazily by later Adds.
type MessageCache struct {
	entries        map[string]int64 // key -> expiry timestamp (Unix ms)
	mu             sync.RWMutex
	ttl            time.Duration
	cleanupCounter int
	cleanupEvery   int // Dynamically calculated based on cache size
}

// NewMessageCache creates a new MessageCache instance with the specified TTL.
func NewMessageCache(ttl time.Duration) *MessageCache {
	return &MessageCache{
		entries:      make(map[string]int64),
		ttl:          ttl,
		cleanupEvery: minCleanupInterval,
	}
}

// Add stores key with an expiry of TTL from now.
func (mc *MessageCache) Add(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.addLocked(key)
}

// AddIfAbsent stores key unless a live entry exists. It reports whether key was added.
func (mc *MessageCache) AddIfAbsent(key string) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if expiry, ok := mc.entries[key]; ok && time.Now().UnixMilli() <= expiry {
		return false
	}
	mc.addLocked(key)
	return true
}

func (mc *MessageCache) addLocked(key string) {
	mc.entries[key] = time.Now().Add(mc.ttl).UnixMilli()

	mc.cleanupCounter++
	if mc.cleanupCounter >= mc.cleanupEvery {
		mc.cleanupExpiredLocked()
		mc.recalculateCleanupInterval()
		mc.cleanupCounter = 0
	}
}

// Exists checks if key is in the cache and has not expired.
func (mc *MessageCache) Exists(key string) bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	expiryTime, exists := mc.entries[key]
	if !exists {
		return false
	}

	return time.Now().UnixMilli() <= expiryTime
}

// Remove explicitly removes key from the cache.
func (mc *MessageCache) Remove(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.entries, key)
}

// cleanupExpiredLocked removes all expired entries. The caller holds mc.mu.
func (mc *MessageCache) cleanupExpiredLocked() {
	now := time.Now().UnixMilli()
	for key, expiryTime := range mc.entries {
		if now > expiryTime {
			delete(mc.entries, key)
		}
	}
}

// recalculateCleanupInterval scales the cleanup frequency with the cache size,
// bounded between min and max operations.
func (mc *MessageCache) recalculateCleanupInterval() {
	interval := len(mc.entries) / cleanupTargetFraction

	if interval < minCleanupInterval {
		mc.cleanupEvery = minCleanupInterval
	} else if interval > maxCleanupInterval {
		mc.cleanupEvery = maxCleanupInterval
	} else {
		mc.cleanupEvery = interval
	}
}

// RequestKey identifies a request for duplicate detection. Proposals and
// session requests live in separate id spaces.
func RequestKey(req Request) string {
	if req.IsSessionProposal() {
		return "proposal:" + strconv.FormatUint(req.ID, 10)
	}
	return "request:" + strconv.FormatUint(req.ID, 10)
}
