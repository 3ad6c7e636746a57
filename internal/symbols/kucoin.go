package symbols

import "strings"

const kucoinMarginMarker = "USDTM"

// FromKucoin converts a KuCoin USDT-margined futures symbol to the canonical
// form. ok is false for contracts margined in anything else.
//
//	XBTUSDTM -> BTCUSDT
//	ETHUSDTM -> ETHUSDT
func FromKucoin(sym string) (string, bool) {
	sym = Normalize(sym)
	if !strings.HasSuffix(sym, kucoinMarginMarker) {
		return "", false
	}
	sym = ReplaceSuffix(sym, kucoinMarginMarker, QuoteAsset)
	if strings.HasPrefix(sym, "XBT") {
		sym = "BTC" + sym[3:]
	}
	return sym, true
}
