package edge

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// InputsHash fingerprints a market's aggregation inputs so signal results
// can be cached and reused while the inputs are unchanged. Estimate order
// does not affect the hash.
func InputsHash(quote models.MarketQuote, estimates []models.SourceEstimate) string {
	sorted := make([]models.SourceEstimate, len(estimates))
	copy(sorted, estimates)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SourceKey != sorted[j].SourceKey {
			return sorted[i].SourceKey < sorted[j].SourceKey
		}
		return sorted[i].ObservedAt.Before(sorted[j].ObservedAt)
	})

	h := fnv.New64a()
	h.Write([]byte(quote.MarketID))
	writeFloat(h, quote.ImpliedProbability)
	writeInt(h, quote.ObservedAt.UnixNano())
	for _, est := range sorted {
		h.Write([]byte(est.SourceKey))
		writeFloat(h, est.Probability)
		writeFloat(h, est.Weight)
		writeInt(h, est.ObservedAt.UnixNano())
	}
	return fmt.Sprintf("%s:%016x", quote.MarketID, h.Sum64())
}

func writeFloat(h interface{ Write([]byte) (int, error) }, f float64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
	h.Write(buf[:])
}

func writeInt(h interface{ Write([]byte) (int, error) }, v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	h.Write(buf[:])
}
