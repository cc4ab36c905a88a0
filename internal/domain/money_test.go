package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1000", 100000},
		{"1000.5", 100050},
		{"0.01", 1},
		{"250.00", 25000},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseAmountRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "0", "-5", "1.005", "184467440737095516.17", "92233720368547758.08"} {
		_, err := ParseAmount(in)
		assert.ErrorIs(t, err, ErrInvalidAmount, in)
	}
}

func TestMinorUnits(t *testing.T) {
	got, ok := MinorUnits(decimal.RequireFromString("2500.5"))
	assert.True(t, ok)
	assert.Equal(t, int64(250050), got)

	_, ok = MinorUnits(decimal.RequireFromString("10.005"))
	assert.False(t, ok)
	_, ok = MinorUnits(decimal.RequireFromString("184467440737095516.17"))
	assert.False(t, ok)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1000.00", FormatAmount(100000))
	assert.Equal(t, "0.05", FormatAmount(5))
	assert.Equal(t, "-3.10", FormatAmount(-310))
}

func TestKindClassification(t *testing.T) {
	assert.True(t, KindAirtime.IsPurchase())
	assert.False(t, KindDeposit.IsPurchase())
	assert.False(t, KindRefund.IsPurchase())
	assert.True(t, KindGiftAdjustment.Valid())
	assert.False(t, Kind("lottery").Valid())
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	for _, s := range []Status{StatusSuccess, StatusFailed, StatusRefunded} {
		assert.True(t, s.Terminal(), s)
	}
}
