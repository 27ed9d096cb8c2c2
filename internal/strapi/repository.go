package strapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cowork/internal/engine"
	"cowork/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ServiceIDOffset is added to service ids so equipment and services share one add-on id space.
const ServiceIDOffset int64 = 1 << 20

const pageSize = 100

type pricingDTO struct {
	Hourly  decimal.Decimal `json:"hourly"`
	Daily   decimal.Decimal `json:"daily"`
	Weekly  decimal.Decimal `json:"weekly"`
	Monthly decimal.Decimal `json:"monthly"`
}

type spaceDTO struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Capacity       int             `json:"capacity"`
	IsActive       *bool           `json:"is_active"`
	CoworkingSpace flexString      `json:"coworking_space"`
	Pricing        *pricingDTO     `json:"pricing,omitempty"`
	HourlyRate     decimal.Decimal `json:"hourly_rate"`
	DailyRate      decimal.Decimal `json:"daily_rate"`
	WeeklyRate     decimal.Decimal `json:"weekly_rate"`
	MonthlyRate    decimal.Decimal `json:"monthly_rate"`
	OpenTime       string          `json:"open_time"`
	CloseTime      string          `json:"close_time"`
}

type cachedSpace struct {
	ID     int64    `json:"id"`
	Fields spaceDTO `json:"fields"`
}

func (c cachedSpace) toModel() *model.Space {
	d := c.Fields
	sp := &model.Space{
		ID:             c.ID,
		Name:           d.Name,
		CoworkingSpace: string(d.CoworkingSpace),
		Description:    d.Description,
		Capacity:       d.Capacity,
		IsActive:       d.IsActive == nil || *d.IsActive,
		Pricing: model.PricingTier{
			Hourly:  d.HourlyRate,
			Daily:   d.DailyRate,
			Weekly:  d.WeeklyRate,
			Monthly: d.MonthlyRate,
		},
		Hours: model.DefaultOpeningHours,
	}
	// A pricing component takes precedence over flat rate fields.
	if d.Pricing != nil {
		sp.Pricing = model.PricingTier(*d.Pricing)
	}
	if sp.Capacity <= 0 {
		sp.Capacity = 1
	}
	if open, ok := parseCMSClock(d.OpenTime); ok {
		sp.Hours.Open = open
	}
	if closing, ok := parseCMSClock(d.CloseTime); ok {
		sp.Hours.Close = closing
	}
	return sp
}

// parseCMSClock accepts "09:00" and the CMS time format "09:00:00.000".
func parseCMSClock(s string) (model.Clock, bool) {
	if len(s) > 5 {
		s = s[:5]
	}
	c, err := model.ParseClock(s)
	return c, err == nil
}

type addOnDTO struct {
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	PriceType string          `json:"price_type"`
}

type reservationDTO struct {
	User           relation        `json:"user"`
	Space          relation        `json:"space"`
	CoworkingSpace flexString      `json:"coworking_space"`
	Date           string          `json:"date"`
	TimeSlot       string          `json:"time_slot"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	Extras         json.RawMessage `json:"extras"`
	Status         string          `json:"status"`
	Reference      string          `json:"reference"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// GetSpace fetches a space by id.
func (c *Client) GetSpace(ctx context.Context, id int64) (*model.Space, error) {
	key := "space:" + strconv.FormatInt(id, 10)
	var cached cachedSpace
	if c.readCache(ctx, key, &cached) {
		return cached.toModel(), nil
	}

	var env envelope
	if err := c.get(ctx, "/api/spaces/"+strconv.FormatInt(id, 10), url.Values{"populate": {"*"}}, &env); err != nil {
		return nil, err
	}
	ent, err := env.one()
	if err != nil {
		return nil, fmt.Errorf("decode space %d: %w", id, err)
	}
	if ent == nil {
		return nil, fmt.Errorf("space %d: %w", id, model.ErrNotFound)
	}

	cached = cachedSpace{ID: ent.ID}
	if err := ent.decode(&cached.Fields); err != nil {
		return nil, fmt.Errorf("decode space %d: %w", id, err)
	}
	c.writeCache(ctx, key, cached)
	return cached.toModel(), nil
}

// ListAddOns returns equipment and services as one catalog. Service ids are shifted
// by ServiceIDOffset.
func (c *Client) ListAddOns(ctx context.Context) ([]model.AddOnItem, error) {
	const key = "add_ons"
	var items []model.AddOnItem
	if c.readCache(ctx, key, &items) {
		return items, nil
	}

	equipment, err := c.listAddOns(ctx, "/api/equipments", model.KindEquipment, 0)
	if err != nil {
		return nil, err
	}
	services, err := c.listAddOns(ctx, "/api/services", model.KindService, ServiceIDOffset)
	if err != nil {
		return nil, err
	}
	items = append(equipment, services...)

	c.writeCache(ctx, key, items)
	return items, nil
}

func (c *Client) listAddOns(ctx context.Context, path string, kind model.AddOnKind, idOffset int64) ([]model.AddOnItem, error) {
	ents, err := c.listAll(ctx, path, url.Values{})
	if err != nil {
		return nil, err
	}

	items := make([]model.AddOnItem, 0, len(ents))
	for i := range ents {
		var dto addOnDTO
		if err := ents[i].decode(&dto); err != nil {
			return nil, fmt.Errorf("decode %s %d: %w", kind, ents[i].ID, err)
		}
		pt, err := model.ParsePriceType(dto.PriceType)
		if err != nil {
			c.logger.Warn().Err(err).Int64("id", ents[i].ID).Str("kind", string(kind)).Msg("skipping add-on")
			continue
		}
		items = append(items, model.AddOnItem{
			ID:        ents[i].ID + idOffset,
			Kind:      kind,
			Name:      dto.Name,
			Price:     dto.Price,
			PriceType: pt,
		})
	}
	return items, nil
}

// listAll walks every page of a collection.
func (c *Client) listAll(ctx context.Context, path string, query url.Values) ([]entity, error) {
	var all []entity
	for page := 1; ; page++ {
		query.Set("pagination[page]", strconv.Itoa(page))
		query.Set("pagination[pageSize]", strconv.Itoa(pageSize))

		var env envelope
		if err := c.get(ctx, path, query, &env); err != nil {
			return nil, err
		}
		ents, err := env.many()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		all = append(all, ents...)

		if page >= env.Meta.Pagination.PageCount || len(ents) == 0 {
			return all, nil
		}
	}
}

// ListActiveReservations returns the non-cancelled reservations of a space on date.
func (c *Client) ListActiveReservations(ctx context.Context, spaceID int64, date time.Time) ([]model.ReservationRecord, error) {
	q := url.Values{}
	q.Set("filters[space][id][$eq]", strconv.FormatInt(spaceID, 10))
	q.Set("filters[date][$eq]", date.Format(model.DateLayout))
	// A missing status reads as pending, so those rows must still block the slot.
	q.Set("filters[$or][0][status][$null]", "true")
	q.Set("filters[$or][1][status][$notIn][0]", string(model.StatusCancelled))
	q.Set("filters[$or][1][status][$notIn][1]", "canceled")
	q.Set("populate", "*")

	reservations, err := c.listReservations(ctx, q)
	if err != nil {
		return nil, err
	}
	records := make([]model.ReservationRecord, 0, len(reservations))
	for i := range reservations {
		rec := reservations[i].Record()
		rec.SpaceID = spaceID
		records = append(records, rec)
	}
	return records, nil
}

// ListReservations returns reservations matching filter ordered by date.
func (c *Client) ListReservations(ctx context.Context, filter model.ReservationFilter) ([]model.Reservation, error) {
	q := url.Values{}
	if filter.SpaceID > 0 {
		q.Set("filters[space][id][$eq]", strconv.FormatInt(filter.SpaceID, 10))
	}
	if filter.UserID > 0 {
		q.Set("filters[user][id][$eq]", strconv.FormatInt(filter.UserID, 10))
	}
	if !filter.From.IsZero() {
		q.Set("filters[date][$gte]", filter.From.Format(model.DateLayout))
	}
	if !filter.To.IsZero() {
		q.Set("filters[date][$lte]", filter.To.Format(model.DateLayout))
	}
	if filter.Status != "" {
		q.Set("filters[status][$eq]", string(filter.Status))
	}
	q.Set("sort[0]", "date:asc")
	q.Set("populate", "*")
	return c.listReservations(ctx, q)
}

func (c *Client) listReservations(ctx context.Context, q url.Values) ([]model.Reservation, error) {
	ents, err := c.listAll(ctx, "/api/reservations", q)
	if err != nil {
		return nil, err
	}
	out := make([]model.Reservation, 0, len(ents))
	for i := range ents {
		r, err := c.toReservation(&ents[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// GetReservation fetches a reservation by id.
func (c *Client) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	var env envelope
	if err := c.get(ctx, "/api/reservations/"+strconv.FormatInt(id, 10), url.Values{"populate": {"*"}}, &env); err != nil {
		return nil, err
	}
	ent, err := env.one()
	if err != nil {
		return nil, fmt.Errorf("decode reservation %d: %w", id, err)
	}
	if ent == nil {
		return nil, fmt.Errorf("reservation %d: %w", id, model.ErrNotFound)
	}
	return c.toReservation(ent)
}

func (c *Client) toReservation(ent *entity) (*model.Reservation, error) {
	var dto reservationDTO
	if err := ent.decode(&dto); err != nil {
		return nil, fmt.Errorf("decode reservation %d: %w", ent.ID, err)
	}

	r := &model.Reservation{
		ID:             ent.ID,
		Reference:      dto.Reference,
		UserID:         dto.User.ID,
		SpaceID:        dto.Space.ID,
		CoworkingSpace: string(dto.CoworkingSpace),
		TotalPrice:     dto.TotalPrice,
		Version:        max(dto.Version, 1),
		CreatedAt:      dto.CreatedAt,
		UpdatedAt:      dto.UpdatedAt,
	}
	r.Slot, _ = model.ParseSlot(dto.TimeSlot)

	status, err := model.ParseStatus(strings.ToLower(dto.Status))
	if err != nil {
		return nil, fmt.Errorf("reservation %d: %w", ent.ID, err)
	}
	r.Status = status

	// CMS dates may carry a time part.
	date := dto.Date
	if len(date) > len(model.DateLayout) {
		date = date[:len(model.DateLayout)]
	}
	if r.Date, err = model.ParseDate(date); err != nil {
		return nil, fmt.Errorf("reservation %d: %w", ent.ID, err)
	}

	if !isNull(dto.Extras) {
		if err := json.Unmarshal(dto.Extras, &r.Extras); err != nil {
			c.logger.Debug().Err(err).Int64("reservation_id", ent.ID).Msg("unreadable extras")
		}
	}
	return r, nil
}

// CreateReservation re-checks the slot and creates the reservation. The check and the
// write are separate requests, so callers serialize attempts with a slot lock.
func (c *Client) CreateReservation(ctx context.Context, r *model.Reservation) error {
	if !r.Slot.Valid() {
		return fmt.Errorf("invalid slot %q", r.Slot.String())
	}

	existing, err := c.ListActiveReservations(ctx, r.SpaceID, r.Date)
	if err != nil {
		return err
	}
	if engine.HasConflict(r.Window(), existing) {
		return model.ErrSlotTaken
	}

	if r.Reference == "" {
		r.Reference = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = model.StatusPending
	}

	body := map[string]any{
		"space":           r.SpaceID,
		"coworking_space": r.CoworkingSpace,
		"date":            r.Date.Format(model.DateLayout),
		"time_slot":       r.Slot.String(),
		"total_price":     json.Number(r.TotalPrice.StringFixed(2)),
		"extras":          r.Extras,
		"status":          string(r.Status),
		"reference":       r.Reference,
		"version":         1,
	}
	if r.UserID > 0 {
		body["user"] = r.UserID
	}

	var env envelope
	if err := c.send(ctx, http.MethodPost, "/api/reservations", body, &env); err != nil {
		return err
	}
	ent, err := env.one()
	if err != nil {
		return fmt.Errorf("decode created reservation: %w", err)
	}
	if ent == nil {
		return fmt.Errorf("create reservation: empty response")
	}

	created, err := c.toReservation(ent)
	if err != nil {
		return err
	}
	r.ID = created.ID
	r.Version = 1
	r.CreatedAt = created.CreatedAt
	r.UpdatedAt = created.UpdatedAt
	return nil
}

// UpdateReservationStatus sets the status if the stored version still equals version.
func (c *Client) UpdateReservationStatus(ctx context.Context, id int64, status model.Status, version int64) error {
	current, err := c.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	if current.Version != version {
		return model.ErrConcurrentModification
	}

	body := map[string]any{
		"status":  string(status),
		"version": version + 1,
	}
	return c.send(ctx, http.MethodPut, "/api/reservations/"+strconv.FormatInt(id, 10), body, nil)
}
