package engine

import (
	"testing"

	"cowork/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func request(w model.TimeWindow, addOns map[int64]int) model.BookingRequest {
	return model.BookingRequest{SpaceID: 1, Window: w, AddOns: addOns}
}

func TestComputeTotal_Examples(t *testing.T) {
	t.Run("hourly space, four hours", func(t *testing.T) {
		tier := model.PricingTier{Hourly: dec("10")}
		got := ComputeTotal(request(bounded("09:00", "13:00"), nil), tier, nil)
		assert.Equal(t, "40.00", got.StringFixed(2))
	})

	t.Run("daily tier wins for full day", func(t *testing.T) {
		tier := model.PricingTier{Hourly: dec("10"), Daily: dec("60")}
		got := ComputeTotal(request(allDay(), nil), tier, nil)
		assert.Equal(t, "60.00", got.StringFixed(2))
	})

	t.Run("hourly add-on scales with duration", func(t *testing.T) {
		addOns := []model.AddOnItem{{ID: 5, Name: "Projector", Price: dec("5"), PriceType: model.PriceHourly}}
		b := Quote(request(bounded("09:00", "12:00"), map[int64]int{5: 2}), model.PricingTier{}, addOns)
		require.Len(t, b.AddOns, 1)
		assert.Equal(t, "30.00", b.AddOns[0].Amount.StringFixed(2))
		assert.Equal(t, "30.00", b.Total.StringFixed(2))

		withBase := ComputeTotal(request(bounded("09:00", "12:00"), map[int64]int{5: 2}), model.PricingTier{Hourly: dec("10")}, addOns)
		assert.Equal(t, "60.00", withBase.StringFixed(2))
	})
}

func TestComputeTotal_BaseRules(t *testing.T) {
	tests := []struct {
		name   string
		window model.TimeWindow
		tier   model.PricingTier
		want   string
	}{
		{"full day without daily rate bills eight hours", allDay(), model.PricingTier{Hourly: dec("12.50")}, "100.00"},
		{"long bounded window uses daily rate", bounded("08:00", "18:00"), model.PricingTier{Hourly: dec("10"), Daily: dec("60")}, "60.00"},
		{"long bounded window without daily rate", bounded("08:00", "18:00"), model.PricingTier{Hourly: dec("10")}, "100.00"},
		{"short window with daily only", bounded("09:00", "10:00"), model.PricingTier{Daily: dec("45")}, "45.00"},
		{"hourly capped at daily rate", bounded("09:00", "16:00"), model.PricingTier{Hourly: dec("10"), Daily: dec("60")}, "60.00"},
		{"no rates", bounded("09:00", "10:00"), model.PricingTier{}, "0.00"},
		{"negative rates clamp to zero", bounded("09:00", "10:00"), model.PricingTier{Hourly: dec("-10")}, "0.00"},
		{"fractional hour", bounded("09:00", "09:20"), model.PricingTier{Hourly: dec("10")}, "3.33"},
		{"half cent rounds up", bounded("09:00", "09:03"), model.PricingTier{Hourly: dec("0.10")}, "0.01"},
		{"invalid window prices to zero", model.TimeWindow{Date: testDate}, model.PricingTier{Hourly: dec("10"), Daily: dec("60")}, "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotal(request(tt.window, nil), tt.tier, nil)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestComputeTotal_AddOns(t *testing.T) {
	catalog := []model.AddOnItem{
		{ID: 1, Name: "Monitor", Price: dec("2.50"), PriceType: model.PriceHourly},
		{ID: 2, Name: "Locker", Price: dec("7"), PriceType: model.PriceDaily},
		{ID: 3, Name: "Coffee", Price: dec("3.20"), PriceType: model.PriceOneTime},
		{ID: 4, Name: "Broken", Price: dec("-5"), PriceType: model.PriceOneTime},
	}
	tier := model.PricingTier{Hourly: dec("10"), Daily: dec("60")}

	t.Run("all price types on a bounded window", func(t *testing.T) {
		req := request(bounded("10:00", "12:00"), map[int64]int{1: 2, 2: 1, 3: 3})
		b := Quote(req, tier, catalog)
		assert.Equal(t, "20.00", b.Base.StringFixed(2))
		require.Len(t, b.AddOns, 3)
		assert.Equal(t, "10.00", b.AddOns[0].Amount.StringFixed(2))
		assert.Equal(t, "7.00", b.AddOns[1].Amount.StringFixed(2))
		assert.Equal(t, "9.60", b.AddOns[2].Amount.StringFixed(2))
		assert.Equal(t, "46.60", b.Total.StringFixed(2))
		assert.Equal(t, int64(1), b.DurationDays)
		assert.Equal(t, "2.00", b.DurationHours.StringFixed(2))
	})

	t.Run("full day bills eight hours and one day", func(t *testing.T) {
		req := request(allDay(), map[int64]int{1: 1, 2: 2})
		got := ComputeTotal(req, tier, catalog)
		// 60 + 2.5*8 + 7*2
		assert.Equal(t, "94.00", got.StringFixed(2))
	})

	t.Run("zero, negative and unknown selections contribute nothing", func(t *testing.T) {
		req := request(bounded("10:00", "11:00"), map[int64]int{1: 0, 2: -3, 4: 2, 99: 1})
		b := Quote(req, tier, catalog)
		assert.Equal(t, "10.00", b.Total.StringFixed(2))
		require.Len(t, b.AddOns, 1)
		assert.Equal(t, int64(4), b.AddOns[0].AddOnID)
		assert.True(t, b.AddOns[0].Amount.IsZero())
	})
}

func TestComputeTotal_MonotonicInDuration(t *testing.T) {
	catalog := []model.AddOnItem{
		{ID: 1, Price: dec("1.75"), PriceType: model.PriceHourly},
		{ID: 2, Price: dec("4"), PriceType: model.PriceDaily},
	}
	tiers := []model.PricingTier{
		{Hourly: dec("10")},
		{Daily: dec("60")},
		{Hourly: dec("10"), Daily: dec("60")},
		{Hourly: dec("9.99"), Daily: dec("120")},
	}

	for _, tier := range tiers {
		prev := decimal.Zero
		for end := 0; end <= 24*60; end += 5 {
			w := model.TimeWindow{Date: testDate, Slot: model.BoundedSlot(0, model.Clock(end))}
			got := ComputeTotal(request(w, map[int64]int{1: 1, 2: 1}), tier, catalog)
			assert.False(t, got.LessThan(prev), "tier %+v end %d: %s < %s", tier, end, got, prev)
			prev = got
		}
	}
}

func TestComputeTotal_MonotonicInQuantity(t *testing.T) {
	catalog := []model.AddOnItem{{ID: 1, Price: dec("3.333"), PriceType: model.PriceHourly}}
	tier := model.PricingTier{Hourly: dec("7")}
	prev := decimal.Zero
	for qty := 0; qty <= 20; qty++ {
		got := ComputeTotal(request(bounded("09:00", "10:10"), map[int64]int{1: qty}), tier, catalog)
		assert.False(t, got.LessThan(prev))
		assert.False(t, got.IsNegative())
		prev = got
	}
}

func TestComputeTotal_Idempotent(t *testing.T) {
	catalog := []model.AddOnItem{{ID: 1, Price: dec("2"), PriceType: model.PriceOneTime}}
	req := request(bounded("09:15", "11:40"), map[int64]int{1: 4})
	tier := model.PricingTier{Hourly: dec("11.11")}

	first := ComputeTotal(req, tier, catalog)
	for i := 0; i < 5; i++ {
		assert.True(t, first.Equal(ComputeTotal(req, tier, catalog)))
	}
	assert.Equal(t, 4, req.AddOns[1])
}
