package shipping

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestValidate(t *testing.T) {
	d := ShippingDiscount{Percentage: 50}
	require.NoError(t, d.Validate())

	d.Percentage = -1
	require.ErrorIs(t, d.Validate(), ErrInvalidPercentage)

	d.Percentage = 101
	require.ErrorIs(t, d.Validate(), ErrInvalidPercentage)
}

func TestQualifies(t *testing.T) {
	d := ShippingDiscount{MinOrderPrice: decimal.RequireFromString("50.00")}

	assert.False(t, d.Qualifies(decimal.RequireFromString("49.99")))
	assert.True(t, d.Qualifies(decimal.RequireFromString("50.00")), "minimum is inclusive")
	assert.True(t, d.Qualifies(decimal.RequireFromString("72.00")))
}

func TestDueForExpiration(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		discount ShippingDiscount
		want     bool
	}{
		{
			name:     "open ended",
			discount: ShippingDiscount{},
			want:     false,
		},
		{
			name:     "future end",
			discount: ShippingDiscount{EndsAt: timePtr(now.Add(time.Hour))},
			want:     false,
		},
		{
			name:     "ends exactly now",
			discount: ShippingDiscount{EndsAt: timePtr(now)},
			want:     true,
		},
		{
			name:     "expired",
			discount: ShippingDiscount{EndsAt: timePtr(now.Add(-time.Hour))},
			want:     true,
		},
		{
			name:     "already deleted",
			discount: ShippingDiscount{EndsAt: timePtr(now.Add(-time.Hour)), Deleted: true},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.discount.DueForExpiration(now))
		})
	}
}
