package config

import (
	"fmt"
	"os"
	"time"

	"cowork/internal/model"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SpaceConfig represents a single bookable space.
type SpaceConfig struct {
	ID             int64         `yaml:"id"`
	Name           string        `yaml:"name"`
	CoworkingSpace string        `yaml:"coworking_space"`
	Description    string        `yaml:"description"`
	Capacity       int           `yaml:"capacity"`
	IsActive       bool          `yaml:"is_active"`
	Pricing        PricingConfig `yaml:"pricing"`
	Hours          *HoursConfig  `yaml:"hours,omitempty"`
}

// PricingConfig holds decimal rates as strings ("12.50"); empty means not offered.
type PricingConfig struct {
	Hourly  string `yaml:"hourly"`
	Daily   string `yaml:"daily"`
	Weekly  string `yaml:"weekly"`
	Monthly string `yaml:"monthly"`
}

// HoursConfig represents opening hours.
type HoursConfig struct {
	Open  string `yaml:"open"`  // "08:00"
	Close string `yaml:"close"` // "20:00"
}

// AddOnConfig represents an equipment or service item.
type AddOnConfig struct {
	ID        int64  `yaml:"id"`
	Kind      string `yaml:"kind"` // equipment, service
	Name      string `yaml:"name"`
	Price     string `yaml:"price"`
	PriceType string `yaml:"price_type"` // hourly, daily, one-time
}

// HolidayConfig represents a closed date.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-01-01"
	Name string `yaml:"name"`
}

// CatalogConfig is the root of catalog.yaml.
type CatalogConfig struct {
	Spaces   []SpaceConfig   `yaml:"spaces"`
	AddOns   []AddOnConfig   `yaml:"add_ons"`
	Defaults struct {
		Hours *HoursConfig `yaml:"hours"`
	} `yaml:"defaults"`
	Holidays []HolidayConfig `yaml:"holidays"`
}

// LoadCatalog loads and validates the catalog from a YAML file.
func LoadCatalog(path string) (*CatalogConfig, error) {
	if path == "" {
		path = "configs/catalog.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var cfg CatalogConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Validate checks the catalog for errors.
func (c *CatalogConfig) Validate() error {
	if len(c.Spaces) == 0 {
		return fmt.Errorf("no spaces defined")
	}

	ids := make(map[int64]bool)
	names := make(map[string]bool)

	for i, sp := range c.Spaces {
		if sp.ID <= 0 {
			return fmt.Errorf("space[%d]: id must be positive, got %d", i, sp.ID)
		}
		if ids[sp.ID] {
			return fmt.Errorf("space[%d]: duplicate id %d", i, sp.ID)
		}
		ids[sp.ID] = true

		if sp.Name == "" {
			return fmt.Errorf("space[%d]: name is required", i)
		}
		if names[sp.Name] {
			return fmt.Errorf("space[%d]: duplicate name '%s'", i, sp.Name)
		}
		names[sp.Name] = true

		if sp.Capacity < 0 {
			return fmt.Errorf("space[%d]: capacity cannot be negative", i)
		}

		if _, err := sp.Pricing.Tier(); err != nil {
			return fmt.Errorf("space[%d].pricing: %w", i, err)
		}

		if sp.Hours != nil {
			if err := validateHours(sp.Hours, fmt.Sprintf("space[%d].hours", i)); err != nil {
				return err
			}
		}
	}

	addOnIDs := make(map[int64]bool)
	for i, a := range c.AddOns {
		if a.ID <= 0 {
			return fmt.Errorf("add_on[%d]: id must be positive, got %d", i, a.ID)
		}
		if addOnIDs[a.ID] {
			return fmt.Errorf("add_on[%d]: duplicate id %d", i, a.ID)
		}
		addOnIDs[a.ID] = true

		if a.Name == "" {
			return fmt.Errorf("add_on[%d]: name is required", i)
		}
		if a.Kind != string(model.KindEquipment) && a.Kind != string(model.KindService) {
			return fmt.Errorf("add_on[%d]: kind must be equipment or service, got '%s'", i, a.Kind)
		}
		if _, err := parseRate(a.Price); err != nil {
			return fmt.Errorf("add_on[%d].price: %w", i, err)
		}
		if _, err := model.ParsePriceType(a.PriceType); err != nil {
			return fmt.Errorf("add_on[%d]: %w", i, err)
		}
	}

	if c.Defaults.Hours != nil {
		if err := validateHours(c.Defaults.Hours, "defaults.hours"); err != nil {
			return err
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := time.Parse(model.DateLayout, h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	return nil
}

func validateHours(h *HoursConfig, prefix string) error {
	open, err := model.ParseClock(h.Open)
	if err != nil {
		return fmt.Errorf("%s.open: invalid format '%s', expected HH:MM", prefix, h.Open)
	}
	closing, err := model.ParseClock(h.Close)
	if err != nil {
		return fmt.Errorf("%s.close: invalid format '%s', expected HH:MM", prefix, h.Close)
	}
	if closing <= open {
		return fmt.Errorf("%s: close must be after open", prefix)
	}
	return nil
}

func (c *CatalogConfig) applyDefaults() {
	for i := range c.Spaces {
		if c.Spaces[i].Hours == nil && c.Defaults.Hours != nil {
			c.Spaces[i].Hours = c.Defaults.Hours
		}
		if c.Spaces[i].Capacity == 0 {
			c.Spaces[i].Capacity = 1
		}
	}
}

// Tier converts the string rates into a pricing tier.
func (p PricingConfig) Tier() (model.PricingTier, error) {
	var (
		tier model.PricingTier
		err  error
	)
	if tier.Hourly, err = parseRate(p.Hourly); err != nil {
		return tier, fmt.Errorf("hourly: %w", err)
	}
	if tier.Daily, err = parseRate(p.Daily); err != nil {
		return tier, fmt.Errorf("daily: %w", err)
	}
	if tier.Weekly, err = parseRate(p.Weekly); err != nil {
		return tier, fmt.Errorf("weekly: %w", err)
	}
	if tier.Monthly, err = parseRate(p.Monthly); err != nil {
		return tier, fmt.Errorf("monthly: %w", err)
	}
	return tier, nil
}

func parseRate(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount '%s'", s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount cannot be negative: %s", s)
	}
	return d, nil
}

// SpaceModels converts the validated catalog into domain spaces.
func (c *CatalogConfig) SpaceModels() []model.Space {
	out := make([]model.Space, 0, len(c.Spaces))
	for _, sp := range c.Spaces {
		tier, _ := sp.Pricing.Tier()
		hours := model.DefaultOpeningHours
		if sp.Hours != nil {
			hours.Open, _ = model.ParseClock(sp.Hours.Open)
			hours.Close, _ = model.ParseClock(sp.Hours.Close)
		}
		out = append(out, model.Space{
			ID:             sp.ID,
			Name:           sp.Name,
			CoworkingSpace: sp.CoworkingSpace,
			Description:    sp.Description,
			Capacity:       sp.Capacity,
			IsActive:       sp.IsActive,
			Pricing:        tier,
			Hours:          hours,
		})
	}
	return out
}

// AddOnModels converts the validated catalog into domain add-ons.
func (c *CatalogConfig) AddOnModels() []model.AddOnItem {
	out := make([]model.AddOnItem, 0, len(c.AddOns))
	for _, a := range c.AddOns {
		price, _ := parseRate(a.Price)
		pt, _ := model.ParsePriceType(a.PriceType)
		out = append(out, model.AddOnItem{
			ID:        a.ID,
			Kind:      model.AddOnKind(a.Kind),
			Name:      a.Name,
			Price:     price,
			PriceType: pt,
		})
	}
	return out
}

// IsHoliday checks if a date is a holiday.
func (c *CatalogConfig) IsHoliday(date time.Time) (bool, string) {
	dateStr := date.Format(model.DateLayout)
	for _, h := range c.Holidays {
		if h.Date == dateStr {
			return true, h.Name
		}
	}
	return false, ""
}

// String returns a summary of the catalog.
func (c *CatalogConfig) String() string {
	active := 0
	for _, sp := range c.Spaces {
		if sp.IsActive {
			active++
		}
	}
	return fmt.Sprintf("Catalog: %d spaces (%d active), %d add-ons, %d holidays",
		len(c.Spaces), active, len(c.AddOns), len(c.Holidays))
}
