package money

import "testing"

func TestSplit_FeeIsFloorOfTenPercent(t *testing.T) {
	cases := []struct {
		amount  int64
		wantFee int64
	}{
		{10000, 1000},
		{105, 10},  // 10.5 rounds down
		{9, 0},     // below one fee unit
		{1, 0},
		{999, 99},
		{1000000, 100000},
	}

	for _, tc := range cases {
		fee, net := Split(tc.amount)
		if fee != tc.wantFee {
			t.Errorf("Split(%d) fee = %d, want %d", tc.amount, fee, tc.wantFee)
		}
		if fee+net != tc.amount {
			t.Errorf("Split(%d): fee %d + net %d != amount", tc.amount, fee, net)
		}
	}
}

func TestSplit_IdentityHoldsAcrossRange(t *testing.T) {
	for amount := int64(1); amount <= 100000; amount++ {
		fee, net := Split(amount)
		if fee+net != amount {
			t.Fatalf("Split(%d): fee %d + net %d != amount", amount, fee, net)
		}
		if fee < 0 || net < 0 {
			t.Fatalf("Split(%d): negative component fee=%d net=%d", amount, fee, net)
		}
	}
}

func TestSupported(t *testing.T) {
	for _, c := range []string{"USD", "EUR", "GBP", "NGN", "KES", "GHS", "ZAR"} {
		if !Supported(c) {
			t.Errorf("expected %s to be supported", c)
		}
	}
	for _, c := range []string{"usd", "JPY", "BTC", ""} {
		if Supported(c) {
			t.Errorf("expected %s to be unsupported", c)
		}
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		amount   int64
		currency string
		want     string
	}{
		{10000, "USD", "100.00 USD"},
		{9000, "USD", "90.00 USD"},
		{5, "NGN", "0.05 NGN"},
		{-150, "EUR", "-1.50 EUR"},
		{0, "GBP", "0.00 GBP"},
	}
	for _, tc := range cases {
		if got := Format(tc.amount, tc.currency); got != tc.want {
			t.Errorf("Format(%d, %s) = %q, want %q", tc.amount, tc.currency, got, tc.want)
		}
	}
}
