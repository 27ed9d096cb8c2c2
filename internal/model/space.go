package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PricingTier holds the optional rates of a space. Absent rates are zero.
type PricingTier struct {
	Hourly  decimal.Decimal `json:"hourly"`
	Daily   decimal.Decimal `json:"daily"`
	Weekly  decimal.Decimal `json:"weekly"`
	Monthly decimal.Decimal `json:"monthly"`
}

// OpeningHours bound the bookable part of a day.
type OpeningHours struct {
	Open  Clock
	Close Clock
}

// DefaultOpeningHours is used when a space has no explicit hours.
var DefaultOpeningHours = OpeningHours{Open: 8 * 60, Close: 20 * 60}

// Space is a bookable unit (desk, room) within a coworking location.
type Space struct {
	ID             int64        `json:"id"`
	Name           string       `json:"name"`
	CoworkingSpace string       `json:"coworking_space,omitempty"`
	Description    string       `json:"description,omitempty"`
	Capacity       int          `json:"capacity"`
	IsActive       bool         `json:"is_active"`
	Pricing        PricingTier  `json:"pricing"`
	Hours          OpeningHours `json:"-"`
}

// PriceType controls how an add-on price scales with the reservation length.
type PriceType string

const (
	PriceHourly  PriceType = "hourly"
	PriceDaily   PriceType = "daily"
	PriceOneTime PriceType = "one-time"
)

// ParsePriceType accepts the CMS enumeration values.
func ParsePriceType(s string) (PriceType, error) {
	switch s {
	case string(PriceHourly):
		return PriceHourly, nil
	case string(PriceDaily):
		return PriceDaily, nil
	case string(PriceOneTime), "one_time", "onetime":
		return PriceOneTime, nil
	}
	return "", fmt.Errorf("unknown price type %q", s)
}

// AddOnKind distinguishes equipment from services; both price the same way.
type AddOnKind string

const (
	KindEquipment AddOnKind = "equipment"
	KindService   AddOnKind = "service"
)

// AddOnItem is an equipment or service item that can be attached to a reservation.
type AddOnItem struct {
	ID        int64           `json:"id"`
	Kind      AddOnKind       `json:"kind"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	PriceType PriceType       `json:"price_type"`
}
