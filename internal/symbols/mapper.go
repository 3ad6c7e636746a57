package symbols

import "strings"

// QuoteAsset is the canonical quote suffix every matched instrument carries.
const QuoteAsset = "USDT"

var separators = strings.NewReplacer("-", "", "_", "", "/", "")

// Normalize converts an exchange symbol to the canonical scheme: separators
// removed and uppercased. Normalizing an already canonical symbol is a no-op.
func Normalize(sym string) string {
	return strings.ToUpper(separators.Replace(strings.TrimSpace(sym)))
}

// HasQuote reports whether the normalized form of sym ends in the quote asset
// and carries a non-empty base asset.
func HasQuote(sym string) bool {
	n := Normalize(sym)
	return len(n) > len(QuoteAsset) && strings.HasSuffix(n, QuoteAsset)
}

// ReplaceSuffix swaps a trailing marker (e.g. USDTM, PERP) for repl. Symbols
// without the marker are returned unchanged.
func ReplaceSuffix(sym, marker, repl string) string {
	if !strings.HasSuffix(sym, marker) {
		return sym
	}
	return strings.TrimSuffix(sym, marker) + repl
}

// legacy maps inverse-era tickers that some venues still use for their two
// largest instruments onto canonical symbols.
var legacy = map[string]string{
	"XBTUSD": "BTCUSDT",
	"ETHUSD": "ETHUSDT",
}

// FromLegacy resolves a legacy ticker to its canonical symbol.
func FromLegacy(sym string) (string, bool) {
	v, ok := legacy[strings.ToUpper(sym)]
	return v, ok
}

// FromBase builds a canonical symbol from a base asset, folding XBT into BTC.
func FromBase(base string) string {
	base = Normalize(base)
	if base == "XBT" {
		base = "BTC"
	}
	return base + QuoteAsset
}
