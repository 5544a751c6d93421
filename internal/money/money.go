// Package money provides scale-aware arithmetic for currency, price and tax amounts.
package money

import "github.com/shopspring/decimal"

// Scales used across invoicing documents.
const (
	MoneyScale         int32 = 2
	SalesPriceScale    int32 = 4
	ExtendedPriceScale int32 = 2
	TaxScale           int32 = 6
	QuantityScale      int32 = 6
	UnitRatioScale     int32 = 8
)

// SentinelNoPrice is the wire value a pricing procedure returns when no price applies.
const SentinelNoPrice int64 = -9999

// Round rounds half away from zero at the given scale.
func Round(amount decimal.Decimal, scale int32) decimal.Decimal {
	return amount.Round(scale)
}

// Add sums amounts exactly and rounds the result once at scale.
func Add(scale int32, amounts ...decimal.Decimal) decimal.Decimal {
	return Sum(amounts, scale)
}

// Sum is the slice form of Add.
func Sum(amounts []decimal.Decimal, scale int32) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	return total.Round(scale)
}

// ToExtendedPrice applies the canonical extended price rounding.
func ToExtendedPrice(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(ExtendedPriceScale)
}

// Max returns the greater of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// IsWhole reports whether d has no fractional part.
func IsWhole(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(0))
}

// OrZero unwraps a nullable amount, treating null as zero.
func OrZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

// Null wraps d as a valid nullable amount.
func Null(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// IsSentinelNoPrice reports whether price is the pricing procedure's "no price" marker.
func IsSentinelNoPrice(price decimal.Decimal) bool {
	return price.Equal(decimal.NewFromInt(SentinelNoPrice))
}
