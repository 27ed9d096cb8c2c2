package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cowork/internal/config"
	"cowork/internal/model"

	"github.com/shopspring/decimal"
)

// SyncCatalogFromConfig applies catalog.yaml to the database. Spaces and add-ons are
// upserted; rows missing from the file are marked inactive, never deleted, so existing
// reservations keep their foreign keys.
func (db *DB) SyncCatalogFromConfig(ctx context.Context, cfg *config.CatalogConfig) error {
	if cfg == nil {
		return fmt.Errorf("catalog config is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	seenSpaces := make([]any, 0, len(cfg.Spaces))
	for _, sp := range cfg.SpaceModels() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO spaces (
				id, name, coworking_space, description, capacity, is_active,
				price_hourly, price_daily, price_weekly, price_monthly,
				open_time, close_time, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				coworking_space = excluded.coworking_space,
				description = excluded.description,
				capacity = excluded.capacity,
				is_active = excluded.is_active,
				price_hourly = excluded.price_hourly,
				price_daily = excluded.price_daily,
				price_weekly = excluded.price_weekly,
				price_monthly = excluded.price_monthly,
				open_time = excluded.open_time,
				close_time = excluded.close_time,
				updated_at = excluded.updated_at`,
			sp.ID, sp.Name, sp.CoworkingSpace, sp.Description, sp.Capacity, sp.IsActive,
			sp.Pricing.Hourly.String(), sp.Pricing.Daily.String(),
			sp.Pricing.Weekly.String(), sp.Pricing.Monthly.String(),
			sp.Hours.Open.String(), sp.Hours.Close.String(), now, now,
		)
		if err != nil {
			return fmt.Errorf("sync space %d: %w", sp.ID, err)
		}
		seenSpaces = append(seenSpaces, sp.ID)
	}

	seenAddOns := make([]any, 0, len(cfg.AddOns))
	for _, a := range cfg.AddOnModels() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO add_ons (id, kind, name, price, price_type, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				kind = excluded.kind,
				name = excluded.name,
				price = excluded.price,
				price_type = excluded.price_type,
				is_active = 1,
				updated_at = excluded.updated_at`,
			a.ID, string(a.Kind), a.Name, a.Price.String(), string(a.PriceType), now, now,
		)
		if err != nil {
			return fmt.Errorf("sync add-on %d: %w", a.ID, err)
		}
		seenAddOns = append(seenAddOns, a.ID)
	}

	if err := deactivateMissing(ctx, tx, "spaces", seenSpaces, now); err != nil {
		return err
	}
	if err := deactivateMissing(ctx, tx, "add_ons", seenAddOns, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	db.logger.Info().
		Int("spaces", len(seenSpaces)).
		Int("add_ons", len(seenAddOns)).
		Msg("Catalog synced")
	return nil
}

func deactivateMissing(ctx context.Context, tx *sql.Tx, table string, keep []any, now time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET is_active = 0, updated_at = ? WHERE is_active = 1`, table)
	args := []any{now}
	if len(keep) > 0 {
		query += " AND id NOT IN (" + placeholders(len(keep)) + ")"
		args = append(args, keep...)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deactivate %s: %w", table, err)
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}

const spaceColumns = `id, name, coworking_space, description, capacity, is_active,
	price_hourly, price_daily, price_weekly, price_monthly, open_time, close_time`

// GetSpace returns a space by id, active or not.
func (db *DB) GetSpace(ctx context.Context, id int64) (*model.Space, error) {
	row := db.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM spaces WHERE id = ?`, id)
	sp, err := scanSpace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("space %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get space %d: %w", id, err)
	}
	return sp, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSpace(s scanner) (*model.Space, error) {
	var (
		sp                             model.Space
		coworking, description         sql.NullString
		hourly, daily, weekly, monthly string
		open, closing                  string
	)
	if err := s.Scan(&sp.ID, &sp.Name, &coworking, &description, &sp.Capacity, &sp.IsActive,
		&hourly, &daily, &weekly, &monthly, &open, &closing); err != nil {
		return nil, err
	}
	sp.CoworkingSpace = coworking.String
	sp.Description = description.String

	var err error
	if sp.Pricing.Hourly, err = decimal.NewFromString(hourly); err != nil {
		return nil, fmt.Errorf("space %d hourly price: %w", sp.ID, err)
	}
	if sp.Pricing.Daily, err = decimal.NewFromString(daily); err != nil {
		return nil, fmt.Errorf("space %d daily price: %w", sp.ID, err)
	}
	if sp.Pricing.Weekly, err = decimal.NewFromString(weekly); err != nil {
		return nil, fmt.Errorf("space %d weekly price: %w", sp.ID, err)
	}
	if sp.Pricing.Monthly, err = decimal.NewFromString(monthly); err != nil {
		return nil, fmt.Errorf("space %d monthly price: %w", sp.ID, err)
	}

	sp.Hours = model.DefaultOpeningHours
	if c, err := model.ParseClock(open); err == nil {
		sp.Hours.Open = c
	}
	if c, err := model.ParseClock(closing); err == nil {
		sp.Hours.Close = c
	}
	return &sp, nil
}

// ListAddOns returns the active equipment and service items.
func (db *DB) ListAddOns(ctx context.Context) ([]model.AddOnItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, name, price, price_type
		FROM add_ons WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list add-ons: %w", err)
	}
	defer rows.Close()

	var items []model.AddOnItem
	for rows.Next() {
		var (
			item             model.AddOnItem
			kind, price, ptp string
		)
		if err := rows.Scan(&item.ID, &kind, &item.Name, &price, &ptp); err != nil {
			return nil, fmt.Errorf("scan add-on: %w", err)
		}
		item.Kind = model.AddOnKind(kind)
		if item.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("add-on %d price: %w", item.ID, err)
		}
		if item.PriceType, err = model.ParsePriceType(ptp); err != nil {
			db.logger.Warn().Int64("add_on_id", item.ID).Err(err).Msg("Skipping add-on")
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
