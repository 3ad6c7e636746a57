package processor

import (
	"sort"
	"time"

	"fundingflow/internal/symbols"
	"fundingflow/models"
)

// BuildSnapshot assembles the published view of one cycle.
func BuildSnapshot(cycleID string, rates []models.FundingRate, opps []models.Opportunity, reports []models.SourceReport, now time.Time, latency time.Duration) models.Snapshot {
	pairs := make(map[string]struct{})
	contributing := make(map[string]struct{})
	for _, r := range rates {
		contributing[r.Exchange] = struct{}{}
		if sym := symbols.Normalize(r.Symbol); symbols.HasQuote(sym) {
			pairs[sym] = struct{}{}
		}
	}

	active := make(map[string]struct{})
	longs := make(map[string]int)
	shorts := make(map[string]int)
	for _, o := range opps {
		active[o.LongExchange] = struct{}{}
		active[o.ShortExchange] = struct{}{}
		longs[o.LongExchange]++
		shorts[o.ShortExchange]++
	}

	if opps == nil {
		opps = []models.Opportunity{}
	}
	sources := append(make([]models.SourceReport, 0, len(reports)), reports...)

	return models.Snapshot{
		CycleID:       cycleID,
		Opportunities: opps,
		Sources:       sources,
		Metadata: models.SnapshotMetadata{
			LastUpdate:            now,
			TotalPairsScanned:     len(pairs),
			ActiveExchanges:       len(active),
			ContributingExchanges: len(contributing),
			TopLongExchange:       mostFrequent(longs),
			TopShortExchange:      mostFrequent(shorts),
			Count:                 len(opps),
			RateCount:             len(rates),
			LatencyMs:             float64(latency.Microseconds()) / 1000,
		},
	}
}

// mostFrequent returns the key with the highest count, the alphabetically
// first on ties, or N/A for an empty tally.
func mostFrequent(counts map[string]int) string {
	if len(counts) == 0 {
		return models.ExchangeNone
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return best
}
