package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestChargeFor(t *testing.T) {
	tests := []struct {
		rate     string
		quantity int64
		want     string
	}{
		{"2.50", 1000, "2.50"},
		{"2.50", 100, "0.25"},
		{"0.015", 1000, "0.02"}, // 0.015 rounds half-up
		{"1.234", 1500, "1.85"}, // 1.851
		{"0.001", 1, "0.00"},
		{"3", 100000, "300.00"},
	}

	for _, tt := range tests {
		svc := Service{Rate: decimal.RequireFromString(tt.rate)}
		got := svc.ChargeFor(tt.quantity)
		require.True(t, got.Equal(decimal.RequireFromString(tt.want)),
			"rate %s qty %d: got %s want %s", tt.rate, tt.quantity, got, tt.want)
	}
}

func TestAcceptsQuantity(t *testing.T) {
	svc := Service{MinOrder: 100, MaxOrder: 100000}
	require.True(t, svc.AcceptsQuantity(100))
	require.True(t, svc.AcceptsQuantity(100000))
	require.False(t, svc.AcceptsQuantity(99))
	require.False(t, svc.AcceptsQuantity(100001))
}

func TestEntryKindAllowsAmount(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		kind   EntryKind
		amount string
		ok     bool
	}{
		{Deposit, "10", true},
		{Deposit, "-10", false},
		{Refund, "2.50", true},
		{Refund, "0", false},
		{OrderCharge, "-2.50", true},
		{OrderCharge, "2.50", false},
		{AdminAdjustment, "-1", true},
		{AdminAdjustment, "1", true},
		{AdminAdjustment, "0", false},
		{Deposit, "1.005", false},
		{Deposit, "1.500", true},
		{EntryKind("BONUS"), "1", false},
	}

	for _, tt := range tests {
		require.Equal(t, tt.ok, tt.kind.AllowsAmount(d(tt.amount)), "%s %s", tt.kind, tt.amount)
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	require.True(t, Pending.Refundable())
	require.True(t, Processing.Refundable())
	require.False(t, Partial.Refundable())
	require.False(t, Refunded.Refundable())

	require.True(t, Pending.CanAdvanceTo(Processing))
	require.True(t, Pending.CanAdvanceTo(Completed))
	require.True(t, Processing.CanAdvanceTo(Partial))
	require.False(t, Processing.CanAdvanceTo(Pending))
	require.False(t, Completed.CanAdvanceTo(Processing))
	require.False(t, Pending.CanAdvanceTo(Refunded))
	require.False(t, Pending.CanAdvanceTo(Cancelled))

	for _, s := range []OrderStatus{Partial, Completed, Cancelled, Refunded} {
		require.True(t, s.Settled(), s)
	}
	require.False(t, Pending.Settled())
}

func TestPageNormalize(t *testing.T) {
	require.Equal(t, Page{Limit: 10}, Page{}.Normalize())
	require.Equal(t, Page{Limit: 100, Offset: 5}, Page{Limit: 500, Offset: 5}.Normalize())
	require.Equal(t, Page{Limit: 25}, Page{Limit: 25, Offset: -3}.Normalize())
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "ann@example.com", NormalizeEmail("  Ann@Example.COM "))
	require.Equal(t, "ann@example.com", NormalizeEmail("ann@example.com"))
}
