package cache

import (
	"log"
	"sync"
	"time"

	"backtestd/internal/backtest"
)

// PriceCache provides in-memory caching of the latest candle seen per
// coin, with TTL-based staleness tracking. The orchestrator's price
// window tracker (backtest.PriceWindowTracker) already keeps the
// bounded per-coin history needed for slippage/regime math; this cache
// exists for consumers outside the bar loop (the HTTP API, the
// websocket hub) that want the latest tick without reaching into a
// running backtest's internal state.
type PriceCache struct {
	prices map[string]*CachedPrice
	mu     sync.RWMutex
	ttl    time.Duration
}

// CachedPrice stores a candle with the time it was cached.
type CachedPrice struct {
	Data      *backtest.Candle
	Timestamp time.Time
}

// NewPriceCache creates a new price cache with specified TTL
func NewPriceCache(ttl time.Duration) *PriceCache {
	cache := &PriceCache{
		prices: make(map[string]*CachedPrice),
		ttl:    ttl,
	}

	// Start cleanup goroutine (every 5 minutes)
	go cache.cleanupExpired()

	return cache
}

// Get retrieves a cached candle if available and not expired
func (pc *PriceCache) Get(coinID string) (*backtest.Candle, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	cached, exists := pc.prices[coinID]
	if !exists {
		return nil, false
	}

	if time.Since(cached.Timestamp) > pc.ttl {
		log.Printf("[CACHE][DEBUG] price for %s expired (age: %v)", coinID, time.Since(cached.Timestamp))
		return nil, false
	}

	age := time.Since(cached.Timestamp)
	log.Printf("[CACHE][HIT] using cached price for %s (age: %v, close: %.4f)",
		coinID, age.Round(time.Second), cached.Data.Close)

	return cached.Data, true
}

// Set stores a candle in the cache
func (pc *PriceCache) Set(coinID string, candle *backtest.Candle) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.prices[coinID] = &CachedPrice{
		Data:      candle,
		Timestamp: time.Now(),
	}

	log.Printf("[CACHE][SET] cached price for %s: %.4f", coinID, candle.Close)
}

// GetStale retrieves any cached candle, even if expired (for emergency fallback)
func (pc *PriceCache) GetStale(coinID string) (*backtest.Candle, time.Duration, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	cached, exists := pc.prices[coinID]
	if !exists {
		return nil, 0, false
	}

	age := time.Since(cached.Timestamp)
	log.Printf("[CACHE][STALE] using stale price for %s (age: %v, close: %.4f)",
		coinID, age.Round(time.Second), cached.Data.Close)

	return cached.Data, age, true
}

// cleanupExpired removes expired entries periodically
func (pc *PriceCache) cleanupExpired() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		pc.mu.Lock()

		removed := 0
		for coinID, cached := range pc.prices {
			// Keep entries for 24 hours max (even if TTL is shorter)
			if time.Since(cached.Timestamp) > 24*time.Hour {
				delete(pc.prices, coinID)
				removed++
			}
		}

		if removed > 0 {
			log.Printf("[CACHE][CLEANUP] removed %d expired entries (total remaining: %d)",
				removed, len(pc.prices))
		}

		pc.mu.Unlock()
	}
}

// Stats returns cache statistics
func (pc *PriceCache) Stats() map[string]interface{} {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	fresh := 0
	stale := 0

	for _, cached := range pc.prices {
		if time.Since(cached.Timestamp) <= pc.ttl {
			fresh++
		} else {
			stale++
		}
	}

	return map[string]interface{}{
		"total_entries": len(pc.prices),
		"fresh_entries": fresh,
		"stale_entries": stale,
		"ttl_seconds":   int(pc.ttl.Seconds()),
	}
}
