package reader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"fundingflow/internal/symbols"
	"fundingflow/logger"
	"fundingflow/models"
)

var (
	asIs    = decimal.NewFromInt(1)
	percent = decimal.NewFromInt(100)
	// fixed-point rates scaled by 10^8, then to percent
	scaledE8 = decimal.New(1, -6)
)

// flexNumber is a numeric field that exchanges send either as a JSON string
// or a JSON number. null and "" decode to the empty value.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*n = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = flexNumber(strings.TrimSpace(s))
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		*n = flexNumber(b)
	default:
		return fmt.Errorf("not a number: %s", b)
	}
	return nil
}

func (n flexNumber) present() bool {
	return n != ""
}

func (n flexNumber) scaled(factor decimal.Decimal) (float64, error) {
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return 0, err
	}
	f, _ := d.Mul(factor).Float64()
	return f, nil
}

// flexCode is a status code sent as a string by some endpoints and a number
// by others.
type flexCode string

func (c *flexCode) UnmarshalJSON(b []byte) error {
	var n flexNumber
	if err := n.UnmarshalJSON(b); err != nil {
		return err
	}
	*c = flexCode(n)
	return nil
}

// batch accumulates validated records for one source.
type batch struct {
	exchange string
	rates    []models.FundingRate
	skipped  int
}

func newBatch(exchange string, size int) *batch {
	return &batch{exchange: exchange, rates: make([]models.FundingRate, 0, size)}
}

func (b *batch) add(symbol string, rate flexNumber, factor decimal.Decimal) bool {
	if !rate.present() {
		b.skipped++
		return false
	}
	pct, err := rate.scaled(factor)
	if err != nil {
		b.skipped++
		return false
	}
	fr, err := models.NewFundingRate(b.exchange, symbols.Normalize(symbol), pct)
	if err != nil {
		b.skipped++
		return false
	}
	b.rates = append(b.rates, fr)
	return true
}

func (b *batch) result() []models.FundingRate {
	if b.skipped > 0 {
		logger.GetLogger().WithComponent("reader").WithFields(logger.Fields{
			"exchange": b.exchange,
			"accepted": len(b.rates),
			"skipped":  b.skipped,
		}).Debug("skipped entries")
	}
	return b.rates
}

// decodeEach decodes entries one at a time so a malformed entry is dropped
// without losing the rest of the response.
func decodeEach[T any](raw []json.RawMessage, fn func(T)) {
	for _, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			continue
		}
		fn(v)
	}
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
