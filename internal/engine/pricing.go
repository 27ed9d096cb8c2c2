package engine

import (
	"maps"
	"slices"

	"cowork/internal/model"

	"github.com/shopspring/decimal"
)

var (
	sixty       = decimal.NewFromInt(60)
	minutesADay = decimal.NewFromInt(24 * 60)
	hourlyLimit = model.FullDayHours * 60
)

// Line is a single priced component of a quote.
type Line struct {
	AddOnID  int64           `json:"add_on_id,omitempty"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
}

// Breakdown is the itemized result of pricing a booking request.
type Breakdown struct {
	DurationHours decimal.Decimal `json:"duration_hours"`
	DurationDays  int64           `json:"duration_days"`
	Base          decimal.Decimal `json:"base"`
	AddOns        []Line          `json:"add_ons,omitempty"`
	Total         decimal.Decimal `json:"total"`
}

// ComputeTotal prices a booking request against the space tier and the add-on catalog.
// The result is rounded half-up to cents and is never negative.
func ComputeTotal(req model.BookingRequest, space model.PricingTier, addOns []model.AddOnItem) decimal.Decimal {
	return Quote(req, space, addOns).Total
}

// Quote is ComputeTotal with the itemized components.
func Quote(req model.BookingRequest, space model.PricingTier, addOns []model.AddOnItem) Breakdown {
	minutes := durationMinutes(req.Window)
	days := durationDays(req.Window, minutes)

	b := Breakdown{
		DurationHours: decimal.NewFromInt(int64(minutes)).Div(sixty).Round(2),
		DurationDays:  days,
		Base:          basePrice(req.Window.AllDay(), minutes, days, space),
	}

	total := b.Base
	byID := make(map[int64]model.AddOnItem, len(addOns))
	for _, item := range addOns {
		byID[item.ID] = item
	}
	for _, id := range sortedIDs(req.AddOns) {
		qty := req.AddOns[id]
		if qty <= 0 {
			continue
		}
		item, ok := byID[id]
		if !ok {
			continue
		}
		amount := addOnPrice(item, qty, minutes, days)
		b.AddOns = append(b.AddOns, Line{
			AddOnID:  id,
			Name:     item.Name,
			Quantity: qty,
			Amount:   amount.Round(2),
		})
		total = total.Add(amount)
	}

	b.Base = b.Base.Round(2)
	b.Total = total.Round(2)
	return b
}

func durationMinutes(w model.TimeWindow) int {
	if w.AllDay() {
		return model.FullDayHours * 60
	}
	return w.Slot.Minutes()
}

func durationDays(w model.TimeWindow, minutes int) int64 {
	if w.AllDay() {
		return 1
	}
	return decimal.NewFromInt(int64(minutes)).Div(minutesADay).Ceil().IntPart()
}

// basePrice applies the first matching tier rule. A same-day hourly price is
// capped at the daily rate so that the total never drops when a booking
// crosses into the daily tier.
func basePrice(allDay bool, minutes int, days int64, tier model.PricingTier) decimal.Decimal {
	hourly := clamp(tier.Hourly)
	daily := clamp(tier.Daily)
	byHour := perMinute(hourly, minutes)

	switch {
	case !allDay && minutes < hourlyLimit && hourly.IsPositive():
		if daily.IsPositive() {
			return decimal.Min(byHour, daily.Mul(decimal.NewFromInt(max(days, 1))))
		}
		return byHour
	case daily.IsPositive():
		return daily.Mul(decimal.NewFromInt(days))
	case hourly.IsPositive():
		return byHour
	default:
		return decimal.Zero
	}
}

func addOnPrice(item model.AddOnItem, qty, minutes int, days int64) decimal.Decimal {
	unit := clamp(item.Price).Mul(decimal.NewFromInt(int64(qty)))
	switch item.PriceType {
	case model.PriceHourly:
		return perMinute(unit, minutes)
	case model.PriceDaily:
		return unit.Mul(decimal.NewFromInt(days))
	default:
		return unit
	}
}

// perMinute multiplies before dividing to keep exact cents for whole-minute windows.
func perMinute(perHour decimal.Decimal, minutes int) decimal.Decimal {
	return perHour.Mul(decimal.NewFromInt(int64(minutes))).Div(sixty)
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func sortedIDs(m map[int64]int) []int64 {
	return slices.Sorted(maps.Keys(m))
}
