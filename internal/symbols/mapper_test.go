package symbols

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BTC_USDT", "BTCUSDT"},
		{"btc-usdt", "BTCUSDT"},
		{"ETH/USDT", "ETHUSDT"},
		{"PERP_SOL-USDT", "PERPSOLUSDT"},
		{"BTCUSDT", "BTCUSDT"},
		{" doge_usdt ", "DOGEUSDT"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, in := range []string{"BTC_USDT", "x-y/z_usdt", "ETHUSDT", "1000PEPE-USDT", ""} {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestHasQuote(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"BTCUSDT", true},
		{"btc_usdt", true},
		{"USDT", false},
		{"BTCUSD", false},
		{"BTCUSDTM", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := HasQuote(tt.in); got != tt.want {
			t.Errorf("HasQuote(%q)=%v want %v", tt.in, got, tt.want)
		}
	}
}

func TestReplaceSuffix(t *testing.T) {
	if got := ReplaceSuffix("XBTUSDTM", "USDTM", "USDT"); got != "XBTUSDT" {
		t.Errorf("got %s", got)
	}
	if got := ReplaceSuffix("BTCPERP", "PERP", "USDT"); got != "BTCUSDT" {
		t.Errorf("got %s", got)
	}
	if got := ReplaceSuffix("BTCUSDT", "PERP", "USDT"); got != "BTCUSDT" {
		t.Errorf("unmarked symbol changed: %s", got)
	}
}

func TestLegacyAndBase(t *testing.T) {
	if got, ok := FromLegacy("XBTUSD"); !ok || got != "BTCUSDT" {
		t.Errorf("FromLegacy(XBTUSD)=%s,%v", got, ok)
	}
	if _, ok := FromLegacy("SOLUSD"); ok {
		t.Errorf("SOLUSD should not be a legacy ticker")
	}
	if got := FromBase("xbt"); got != "BTCUSDT" {
		t.Errorf("FromBase(xbt)=%s", got)
	}
	if got := FromBase("SOL"); got != "SOLUSDT" {
		t.Errorf("FromBase(SOL)=%s", got)
	}
}

func TestFromKucoin(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"XBTUSDTM", "BTCUSDT", true},
		{"ETHUSDTM", "ETHUSDT", true},
		{"SOL-USDTM", "SOLUSDT", true},
		{"XBTUSDM", "", false},
		{"ETHUSDT", "", false},
	}
	for _, tt := range tests {
		got, ok := FromKucoin(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FromKucoin(%q)=%q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
