package models

import "time"

// Placeholder shown for the dominant long/short exchange before the first
// cycle completes and when a cycle produced no opportunities.
const (
	ExchangeAnalyzing = "Analyzing..."
	ExchangeNone      = "N/A"
)

// SnapshotMetadata carries cycle-level statistics shown next to the
// opportunity table.
type SnapshotMetadata struct {
	LastUpdate            time.Time `json:"last_update"`
	TotalPairsScanned     int       `json:"total_pairs_scanned"`
	ActiveExchanges       int       `json:"active_exchanges"`
	ContributingExchanges int       `json:"contributing_exchanges"`
	TopLongExchange       string    `json:"top_long_exchange"`
	TopShortExchange      string    `json:"top_short_exchange"`
	Count                 int       `json:"count"`
	RateCount             int       `json:"rate_count"`
	LatencyMs             float64   `json:"api_latency"`
}

// Snapshot is the complete, self-consistent result of one cycle. It is never
// mutated after publication; consumers get their own copy via Clone.
type Snapshot struct {
	CycleID       string           `json:"cycle_id"`
	Opportunities []Opportunity    `json:"opportunities"`
	Metadata      SnapshotMetadata `json:"metadata"`
	Sources       []SourceReport   `json:"sources"`
}

// EmptySnapshot is the store's initial content before any cycle ran.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Opportunities: []Opportunity{},
		Sources:       []SourceReport{},
		Metadata: SnapshotMetadata{
			TopLongExchange:  ExchangeAnalyzing,
			TopShortExchange: ExchangeAnalyzing,
		},
	}
}

// Clone returns a deep copy so the receiver can be handed to another
// goroutine without sharing backing arrays.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Opportunities = append(make([]Opportunity, 0, len(s.Opportunities)), s.Opportunities...)
	out.Sources = append(make([]SourceReport, 0, len(s.Sources)), s.Sources...)
	return out
}

// Top returns at most n leading opportunities.
func (s Snapshot) Top(n int) []Opportunity {
	if n <= 0 || n >= len(s.Opportunities) {
		return s.Opportunities
	}
	return s.Opportunities[:n]
}
