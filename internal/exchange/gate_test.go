package exchange

import "testing"

func TestToGateSymbol(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"SOLUSDT", "SOL_USDT"},
		{"BTCUSDT", "BTC_USDT"},
		{"ETHBTC", "ETH_BTC"},
		{"SOLUSDC", "SOL_USDC"},
		// 未识别的计价币保持原样
		{"FOOBAR", "FOOBAR"},
	}
	for _, c := range cases {
		if got := toGateSymbol(c.in); got != c.want {
			t.Errorf("toGateSymbol(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestOkxSplitSymbol(t *testing.T) {
	base, quote, err := okxSplitSymbol("SOLUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base != "SOL" || quote != "USDT" {
		t.Errorf("got %s/%s, want SOL/USDT", base, quote)
	}

	base, quote, err = okxSplitSymbol("SOL-USDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base != "SOL" || quote != "USDT" {
		t.Errorf("got %s/%s, want SOL/USDT", base, quote)
	}

	if _, _, err = okxSplitSymbol("FOOBAR"); err == nil {
		t.Error("expected error for unmapped symbol")
	}
}
