package formula

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func pct(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestResolveProportions(t *testing.T) {
	f := Formula{
		ID:                1,
		FinishedProductID: 100,
		Items: []Item{
			{ProductID: 10, Percentage: pct("60")},
			{ProductID: 11, Percentage: pct("40")},
		},
	}

	requirements, err := Resolve(f, pct("100"))
	require.NoError(t, err)
	require.Len(t, requirements, 2)
	require.Equal(t, int64(10), requirements[0].ProductID)
	require.True(t, requirements[0].RequiredQuantity.Equal(pct("60")))
	require.Equal(t, int64(11), requirements[1].ProductID)
	require.True(t, requirements[1].RequiredQuantity.Equal(pct("40")))
}

func TestResolveKeepsFullPrecision(t *testing.T) {
	f := Formula{Items: []Item{{ProductID: 10, Percentage: pct("33.33")}}}

	requirements, err := Resolve(f, pct("7"))
	require.NoError(t, err)
	// 7 * 33.33 / 100, no rounding applied
	require.True(t, requirements[0].RequiredQuantity.Equal(pct("2.3331")))
}

func TestResolvePercentagesNeedNotSumToHundred(t *testing.T) {
	f := Formula{Items: []Item{
		{ProductID: 10, Percentage: pct("50")},
		{ProductID: 11, Percentage: pct("70")},
	}}

	requirements, err := Resolve(f, pct("10"))
	require.NoError(t, err)
	require.True(t, requirements[0].RequiredQuantity.Equal(pct("5")))
	require.True(t, requirements[1].RequiredQuantity.Equal(pct("7")))
}

func TestResolveInvalidTarget(t *testing.T) {
	f := Formula{Items: []Item{{ProductID: 10, Percentage: pct("50")}}}

	_, err := Resolve(f, decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidTarget)

	_, err = Resolve(f, pct("-5"))
	require.ErrorIs(t, err, ErrInvalidTarget)
}

func TestResolveRejectsNegativePercentage(t *testing.T) {
	f := Formula{Items: []Item{{ProductID: 10, Percentage: pct("-1")}}}

	_, err := Resolve(f, pct("10"))
	require.ErrorIs(t, err, ErrInvalidPercentage)
}

func TestResolveEmptyFormula(t *testing.T) {
	_, err := Resolve(Formula{}, pct("10"))
	require.ErrorIs(t, err, ErrEmptyFormula)
}
