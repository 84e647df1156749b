// Package money provides integer minor-unit arithmetic for platform payments.
//
// All amounts are int64 minor units (cents, kobo, pesewas). Floating point
// never touches a balance.
package money

import "fmt"

// FeeBasisPoints is the platform fee rate applied to every escrow.
const FeeBasisPoints = 1000 // 10%

// supported lists the currencies the platform settles in.
var supported = map[string]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
	"NGN": true,
	"KES": true,
	"GHS": true,
	"ZAR": true,
}

// Supported reports whether the platform settles in the given ISO code.
func Supported(currency string) bool {
	return supported[currency]
}

// Fee returns the platform fee for an amount, rounded down.
func Fee(amount int64) int64 {
	return amount * FeeBasisPoints / 10000
}

// Split returns the platform fee and the net amount after the fee.
// Split(amount) always satisfies fee + net == amount.
func Split(amount int64) (fee, net int64) {
	fee = Fee(amount)
	return fee, amount - fee
}

// Format renders minor units as a display string, e.g. "100.00 USD".
// All supported currencies use two decimal places.
func Format(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, currency)
}
