package source

import (
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/metrics"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// EstimateCache reuses a provider's estimates for a market between builds
// inside the provider's refresh window, so back-to-back builds do not burn
// request quota re-fetching prices that cannot have moved.
type EstimateCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewEstimateCache creates an estimate cache with the given default TTL
func NewEstimateCache(ttl time.Duration) *EstimateCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &EstimateCache{
		cache: cache.New(ttl, ttl*2),
		ttl:   ttl,
	}
}

func estimateKey(source models.SourceKey, marketID string) string {
	return string(source) + ":" + marketID
}

// Get retrieves cached estimates for a (source, market) pair
func (ec *EstimateCache) Get(source models.SourceKey, marketID string) ([]models.SourceEstimate, bool) {
	if v, found := ec.cache.Get(estimateKey(source, marketID)); found {
		if ests, ok := v.([]models.SourceEstimate); ok {
			metrics.RecordSourceCacheHit(string(source))
			return ests, true
		}
	}
	metrics.RecordSourceCacheMiss(string(source))
	return nil, false
}

// Set stores estimates for a (source, market) pair under the given TTL,
// falling back to the cache default when ttl is zero
func (ec *EstimateCache) Set(source models.SourceKey, marketID string, ests []models.SourceEstimate, ttl time.Duration) {
	if ttl <= 0 {
		ttl = ec.ttl
	}
	ec.cache.Set(estimateKey(source, marketID), ests, ttl)
}

// Flush drops every cached estimate
func (ec *EstimateCache) Flush() {
	ec.cache.Flush()
}

// ItemCount returns the number of cached entries
func (ec *EstimateCache) ItemCount() int {
	return ec.cache.ItemCount()
}

// SignalCache reuses computed edge signals between overlapping analysis
// passes. Aggregation is pure with respect to its inputs, so entries are
// keyed by the market id plus a fingerprint of the quote and estimates: any
// input change produces a new key and the stale entry simply expires.
type SignalCache struct {
	cache *cache.Cache
}

// NewSignalCache creates a signal cache with the given TTL
func NewSignalCache(ttl time.Duration) *SignalCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SignalCache{cache: cache.New(ttl, ttl*2)}
}

func signalKey(marketID, inputsHash string) string {
	return marketID + ":" + inputsHash
}

// Get retrieves a cached signal for a (market, inputs fingerprint) pair
func (sc *SignalCache) Get(marketID, inputsHash string) (*models.EdgeSignal, bool) {
	if v, found := sc.cache.Get(signalKey(marketID, inputsHash)); found {
		if sig, ok := v.(*models.EdgeSignal); ok {
			metrics.RecordSourceCacheHit("signal")
			return sig, true
		}
	}
	metrics.RecordSourceCacheMiss("signal")
	return nil, false
}

// Set stores a computed signal under its inputs fingerprint
func (sc *SignalCache) Set(marketID, inputsHash string, sig *models.EdgeSignal) {
	sc.cache.Set(signalKey(marketID, inputsHash), sig, cache.DefaultExpiration)
}

// Flush drops every cached signal. Called when calibration multipliers
// change, since those feed scoring without being part of the fingerprint.
func (sc *SignalCache) Flush() {
	sc.cache.Flush()
}

// QuoteCache holds the current book quotes per event. Polls replace an
// event's quote set wholesale; the live stream upserts single quotes in
// between. Reads hand out copies.
type QuoteCache struct {
	cache *cache.Cache
	ttl   time.Duration
	mu    sync.Mutex
}

// NewQuoteCache creates a quote cache with the given TTL
func NewQuoteCache(ttl time.Duration) *QuoteCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &QuoteCache{
		cache: cache.New(ttl, ttl*2),
		ttl:   ttl,
	}
}

// Quotes returns the cached quote set for an event
func (qc *QuoteCache) Quotes(eventID string) ([]models.BookQuote, bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	v, found := qc.cache.Get(eventID)
	if !found {
		return nil, false
	}
	stored, ok := v.([]models.BookQuote)
	if !ok {
		return nil, false
	}
	out := make([]models.BookQuote, len(stored))
	copy(out, stored)
	return out, true
}

// SetQuotes replaces an event's quote set
func (qc *QuoteCache) SetQuotes(eventID string, quotes []models.BookQuote) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	stored := make([]models.BookQuote, len(quotes))
	copy(stored, quotes)
	qc.cache.Set(eventID, stored, qc.ttl)
}

// UpsertQuote merges one live quote into its event's set, replacing any
// existing quote from the same book for the same outcome
func (qc *QuoteCache) UpsertQuote(q models.BookQuote) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	var stored []models.BookQuote
	if v, found := qc.cache.Get(q.EventID); found {
		if existing, ok := v.([]models.BookQuote); ok {
			stored = existing
		}
	}

	replaced := false
	for i := range stored {
		if stored[i].BookmakerName == q.BookmakerName && stored[i].OutcomeLabel == q.OutcomeLabel {
			stored[i] = q
			replaced = true
			break
		}
	}
	if !replaced {
		stored = append(stored, q)
	}
	qc.cache.Set(q.EventID, stored, qc.ttl)
}

// EventIDs returns the ids of all events with cached quotes
func (qc *QuoteCache) EventIDs() []string {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	items := qc.cache.Items()
	ids := make([]string, 0, len(items))
	for k := range items {
		ids = append(ids, k)
	}
	return ids
}
