package models

import (
	"fmt"
	"math"
	"time"

	"fundingflow/internal/symbols"
)

// FundingRate is one observation of one instrument on one exchange. Rates are
// expressed in percent per funding interval.
type FundingRate struct {
	Exchange    string    `json:"exchange"`
	Symbol      string    `json:"symbol"`
	RatePercent float64   `json:"rate"`
	ObservedAt  time.Time `json:"timestamp"`
}

// NewFundingRate validates and builds a FundingRate. The observation time is
// left zero; the fetch coordinator stamps one timestamp per cycle.
func NewFundingRate(exchange, symbol string, ratePercent float64) (FundingRate, error) {
	if symbol == "" {
		return FundingRate{}, fmt.Errorf("empty symbol")
	}
	if !symbols.HasQuote(symbol) {
		return FundingRate{}, fmt.Errorf("symbol %q does not end in %s", symbol, symbols.QuoteAsset)
	}
	if math.IsNaN(ratePercent) || math.IsInf(ratePercent, 0) {
		return FundingRate{}, fmt.Errorf("non-finite rate for %s", symbol)
	}
	return FundingRate{
		Exchange:    exchange,
		Symbol:      symbol,
		RatePercent: ratePercent,
	}, nil
}

// Opportunity is a cross-exchange funding spread for one instrument in one
// cycle: go long where funding is lowest, short where it is highest.
type Opportunity struct {
	Symbol                  string  `json:"symbol"`
	SpreadPercent           float64 `json:"spread"`
	LongExchange            string  `json:"long_exchange"`
	LongRatePercent         float64 `json:"long_rate"`
	ShortExchange           string  `json:"short_exchange"`
	ShortRatePercent        float64 `json:"short_rate"`
	AnnualizedSpreadPercent float64 `json:"annualized"`
}

// SourceReport is the per-exchange outcome of one fetch cycle.
type SourceReport struct {
	Exchange string        `json:"exchange"`
	Count    int           `json:"count"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Failed reports whether the source errored rather than returning rows.
func (r SourceReport) Failed() bool {
	return r.Err != ""
}

// Status renders the compact fetch-report cell: the record count, or ERR.
func (r SourceReport) Status() string {
	if r.Failed() {
		return "ERR"
	}
	return fmt.Sprintf("%d", r.Count)
}
