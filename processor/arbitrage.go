package processor

import (
	"sort"

	"fundingflow/internal/symbols"
	"fundingflow/models"
)

const (
	// FundingsPerDay assumes the common 8-hour funding cycle.
	FundingsPerDay      = 3
	DaysPerYear         = 365
	AnnualizationFactor = FundingsPerDay * DaysPerYear
)

type leg struct {
	exchange string
	rate     float64
}

// Detect finds, per instrument, the cheapest exchange to be long and the
// richest to be short, and returns every pair whose spread is at least
// minSpread, widest first.
//
// Tie-breaks are fixed so the result does not depend on map iteration:
// a repeated (symbol, exchange) keeps the last record in input order; equal
// rates order by exchange name, so the long leg is the alphabetically first
// exchange at the minimum and the short leg the alphabetically first of the
// rest at the maximum; equal spreads order by symbol.
func Detect(rates []models.FundingRate, minSpread float64) []models.Opportunity {
	groups := make(map[string]map[string]float64)
	for _, r := range rates {
		sym := symbols.Normalize(r.Symbol)
		if !symbols.HasQuote(sym) {
			continue
		}
		byExchange, ok := groups[sym]
		if !ok {
			byExchange = make(map[string]float64)
			groups[sym] = byExchange
		}
		byExchange[r.Exchange] = r.RatePercent
	}

	opps := make([]models.Opportunity, 0)
	for sym, byExchange := range groups {
		if len(byExchange) < 2 {
			continue
		}
		legs := make([]leg, 0, len(byExchange))
		for ex, rate := range byExchange {
			legs = append(legs, leg{exchange: ex, rate: rate})
		}
		sort.Slice(legs, func(i, j int) bool {
			if legs[i].rate != legs[j].rate {
				return legs[i].rate < legs[j].rate
			}
			return legs[i].exchange < legs[j].exchange
		})

		long := legs[0]
		short := legs[1]
		for _, l := range legs[2:] {
			if l.rate > short.rate || (l.rate == short.rate && l.exchange < short.exchange) {
				short = l
			}
		}

		spread := short.rate - long.rate
		if spread < minSpread {
			continue
		}
		opps = append(opps, models.Opportunity{
			Symbol:                  sym,
			SpreadPercent:           spread,
			LongExchange:            long.exchange,
			LongRatePercent:         long.rate,
			ShortExchange:           short.exchange,
			ShortRatePercent:        short.rate,
			AnnualizedSpreadPercent: spread * AnnualizationFactor,
		})
	}

	sort.Slice(opps, func(i, j int) bool {
		if opps[i].SpreadPercent != opps[j].SpreadPercent {
			return opps[i].SpreadPercent > opps[j].SpreadPercent
		}
		return opps[i].Symbol < opps[j].Symbol
	})
	return opps
}
