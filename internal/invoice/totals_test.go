package invoice

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestComputeTotalsRoundsPerTaxCode(t *testing.T) {
	split := ComputeTotals(TotalsInput{Taxes: []TaxAmount{
		{Code: "B", Amount: dec("0.005")},
		{Code: "A", Amount: dec("0.005")},
	}})
	require.Equal(t, "0.02", split.TaxTotal.StringFixed(2))

	single := ComputeTotals(TotalsInput{Taxes: []TaxAmount{
		{Code: "A", Amount: dec("0.005")},
		{Code: "A", Amount: dec("0.005")},
	}})
	require.Equal(t, "0.01", single.TaxTotal.StringFixed(2))
}

func TestComputeTotals(t *testing.T) {
	got := ComputeTotals(TotalsInput{
		ExtendedPrices: []decimal.Decimal{dec("100.00"), dec("33.33")},
		Taxes: []TaxAmount{
			{Code: "VA", Amount: dec("5.00")},
			{Code: "VA", Amount: dec("1.6665")},
			{Code: "FED", Amount: dec("1.00")},
		},
		MiscCharge: dec("2.50"),
	})
	require.True(t, got.Subtotal.Equal(dec("133.33")), got.Subtotal.String())
	require.True(t, got.TaxTotal.Equal(dec("7.67")), got.TaxTotal.String())
	require.True(t, got.Total.Equal(dec("143.50")), got.Total.String())
}

func TestComputeTotalsEmpty(t *testing.T) {
	got := ComputeTotals(TotalsInput{})
	require.True(t, got.Subtotal.IsZero())
	require.True(t, got.TaxTotal.IsZero())
	require.True(t, got.Total.IsZero())
}

func TestBalance(t *testing.T) {
	tests := []struct {
		name        string
		total       string
		allocated   string
		outstanding decimal.NullDecimal
		want        string
	}{
		{name: "unknown outstanding", total: "100", allocated: "30", want: "70"},
		{name: "outstanding", total: "100", allocated: "30", outstanding: decimal.NewNullDecimal(dec("20")), want: "50"},
		{name: "floored at zero", total: "100", allocated: "80", outstanding: decimal.NewNullDecimal(dec("40")), want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Balance(dec(tt.total), dec(tt.allocated), tt.outstanding)
			require.True(t, got.Equal(dec(tt.want)), got.String())
		})
	}
}

func TestExtendedPrice(t *testing.T) {
	require.True(t, ExtendedPrice(dec("3"), dec("12"), dec("1"), dec("0.3333")).Equal(dec("12.00")))
	require.True(t, ExtendedPrice(dec("5"), dec("1"), dec("2"), dec("7.5")).Equal(dec("18.75")))
	require.True(t, ExtendedPrice(dec("5"), dec("1"), decimal.Zero, dec("7.5")).IsZero())
}
