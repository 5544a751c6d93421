package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAddRoundsOnceAtScale(t *testing.T) {
	cases := []struct {
		name    string
		scale   int32
		amounts []string
		want    string
	}{
		{name: "empty", scale: MoneyScale, want: "0"},
		{name: "exact", scale: MoneyScale, amounts: []string{"1.10", "2.20"}, want: "3.3"},
		{name: "half away from zero", scale: MoneyScale, amounts: []string{"0.004", "0.001"}, want: "0.01"},
		{name: "negative half", scale: MoneyScale, amounts: []string{"-0.005"}, want: "-0.01"},
		{name: "no intermediate rounding", scale: MoneyScale, amounts: []string{"0.004", "0.004", "0.004"}, want: "0.01"},
		{name: "tax scale", scale: TaxScale, amounts: []string{"0.1234565", "0"}, want: "0.123457"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amounts := make([]decimal.Decimal, 0, len(tc.amounts))
			for _, a := range tc.amounts {
				amounts = append(amounts, d(a))
			}
			require.True(t, d(tc.want).Equal(Add(tc.scale, amounts...)), "got %s", Add(tc.scale, amounts...))
		})
	}
}

func TestToExtendedPrice(t *testing.T) {
	require.True(t, d("12.35").Equal(ToExtendedPrice(d("12.345"))))
	require.True(t, d("12.34").Equal(ToExtendedPrice(d("12.3449"))))
}

func TestIsWhole(t *testing.T) {
	require.True(t, IsWhole(d("3")))
	require.True(t, IsWhole(d("3.000")))
	require.False(t, IsWhole(d("1.5")))
	require.False(t, IsWhole(d("-0.25")))
}

func TestNullHelpers(t *testing.T) {
	require.True(t, OrZero(decimal.NullDecimal{}).IsZero())
	require.True(t, d("4.2").Equal(OrZero(Null(d("4.2")))))
	require.True(t, IsSentinelNoPrice(d("-9999")))
	require.True(t, IsSentinelNoPrice(d("-9999.0000")))
	require.False(t, IsSentinelNoPrice(d("-9998")))
	require.True(t, d("2").Equal(Max(d("-1"), d("2"))))
}
