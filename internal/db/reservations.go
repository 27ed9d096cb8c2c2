package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cowork/internal/engine"
	"cowork/internal/model"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// CreateReservation stores r after re-checking the slot inside an immediate transaction.
// It fills ID, Reference, Version and timestamps. ErrSlotTaken is returned when an active
// reservation overlaps the requested window.
func (db *DB) CreateReservation(ctx context.Context, r *model.Reservation) error {
	if !r.Slot.Valid() {
		return fmt.Errorf("invalid slot %q", r.Slot.String())
	}

	extras, err := json.Marshal(r.Extras)
	if err != nil {
		return fmt.Errorf("encode extras: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := activeRecords(ctx, tx, r.SpaceID, r.Date)
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
	now := time.Now().UTC()

	var start, end sql.NullInt64
	if !r.Slot.FullDay {
		start = sql.NullInt64{Int64: int64(r.Slot.Start), Valid: true}
		end = sql.NullInt64{Int64: int64(r.Slot.End), Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (
			reference, user_id, space_id, coworking_space, date, time_slot,
			slot_start, slot_end, full_day, total_price, extras, status,
			created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		r.Reference, r.UserID, r.SpaceID, r.CoworkingSpace, r.Date.Format(model.DateLayout), r.Slot.String(),
		start, end, r.Slot.FullDay, r.TotalPrice.StringFixed(2), string(extras), string(r.Status),
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrSlotTaken
		}
		return fmt.Errorf("insert reservation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.ID = id
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func activeRecords(ctx context.Context, q querier, spaceID int64, date time.Time) ([]model.ReservationRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, time_slot, status FROM reservations
		WHERE space_id = ? AND date = ? AND status != ?`,
		spaceID, date.Format(model.DateLayout), string(model.StatusCancelled),
	)
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}
	defer rows.Close()

	var records []model.ReservationRecord
	for rows.Next() {
		var (
			rec          model.ReservationRecord
			slot, status string
		)
		if err := rows.Scan(&rec.ID, &slot, &status); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		// Unparseable slots stay in the list as invalid records; the engine skips them
		// for bounded requests but all-day requests still see them.
		rec.Slot, _ = model.ParseSlot(slot)
		rec.SpaceID = spaceID
		rec.Date = model.DateOf(date)
		rec.Status, _ = model.ParseStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListActiveReservations returns non-cancelled reservations of a space on date.
func (db *DB) ListActiveReservations(ctx context.Context, spaceID int64, date time.Time) ([]model.ReservationRecord, error) {
	return activeRecords(ctx, db, spaceID, date)
}

const reservationColumns = `id, reference, user_id, space_id, coworking_space, date, time_slot,
	total_price, extras, status, version, created_at, updated_at`

// GetReservation returns a reservation by id.
func (db *DB) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation %d: %w", id, err)
	}
	return r, nil
}

// ListReservations returns reservations matching filter ordered by date and start time.
func (db *DB) ListReservations(ctx context.Context, filter model.ReservationFilter) ([]model.Reservation, error) {
	var (
		where []string
		args  []any
	)
	if filter.SpaceID > 0 {
		where = append(where, "space_id = ?")
		args = append(args, filter.SpaceID)
	}
	if filter.UserID > 0 {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if !filter.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, filter.From.Format(model.DateLayout))
	}
	if !filter.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, filter.To.Format(model.DateLayout))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, full_day DESC, slot_start, id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateReservationStatus moves a reservation to status if it is still at version.
// ErrConcurrentModification is returned when another writer got there first.
func (db *DB) UpdateReservationStatus(ctx context.Context, id int64, status model.Status, version int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE reservations
		SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(status), time.Now().UTC(), id, version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrSlotTaken
		}
		return fmt.Errorf("update reservation %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM reservations WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reservation %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check reservation %d: %w", id, err)
	}
	return model.ErrConcurrentModification
}

func scanReservation(s scanner) (*model.Reservation, error) {
	var (
		r                      model.Reservation
		coworking, extras      sql.NullString
		date, slot, total, sts string
	)
	if err := s.Scan(&r.ID, &r.Reference, &r.UserID, &r.SpaceID, &coworking, &date, &slot,
		&total, &extras, &sts, &r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}

	r.CoworkingSpace = coworking.String
	r.Slot, _ = model.ParseSlot(slot)

	var err error
	if r.Date, err = model.ParseDate(date); err != nil {
		return nil, fmt.Errorf("reservation %d: %w", r.ID, err)
	}
	if r.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("reservation %d total: %w", r.ID, err)
	}
	if r.Status, err = model.ParseStatus(sts); err != nil {
		return nil, fmt.Errorf("reservation %d: %w", r.ID, err)
	}
	if extras.Valid && extras.String != "" {
		if err := json.Unmarshal([]byte(extras.String), &r.Extras); err != nil {
			return nil, fmt.Errorf("reservation %d extras: %w", r.ID, err)
		}
	}
	return &r, nil
}

// EnsureUser returns the id of the user with the contact's email, creating it if needed.
// Contacts without an email always get a new user row.
func (db *DB) EnsureUser(ctx context.Context, c model.Contact) (int64, error) {
	if c.Email != "" {
		var id int64
		err := db.QueryRowContext(ctx, `SELECT id FROM users WHERE email = ? LIMIT 1`, c.Email).Scan(&id)
		if err == nil {
			_, err = db.ExecContext(ctx, `UPDATE users SET name = ?, phone = ?, updated_at = ? WHERE id = ?`,
				c.Name, c.Phone, time.Now().UTC(), id)
			if err != nil {
				return 0, fmt.Errorf("update user %d: %w", id, err)
			}
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("find user: %w", err)
		}
	}

	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		INSERT INTO users (name, phone, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.Phone, c.Email, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}
