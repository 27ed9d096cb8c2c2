package db

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cowork/internal/audit"
	"cowork/internal/config"
	"cowork/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var testDay = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.SyncCatalogFromConfig(context.Background(), testCatalog()))
	return db
}

func testCatalog() *config.CatalogConfig {
	cfg := &config.CatalogConfig{
		Spaces: []config.SpaceConfig{
			{ID: 1, Name: "Desk A", CoworkingSpace: "Center", IsActive: true, Capacity: 1,
				Pricing: config.PricingConfig{Hourly: "10", Daily: "60"},
				Hours:   &config.HoursConfig{Open: "09:00", Close: "18:00"}},
			{ID: 2, Name: "Room B", IsActive: true, Capacity: 6, Pricing: config.PricingConfig{Hourly: "25.50"}},
		},
		AddOns: []config.AddOnConfig{
			{ID: 10, Kind: "equipment", Name: "Projector", Price: "5", PriceType: "hourly"},
			{ID: 11, Kind: "service", Name: "Coffee", Price: "3.20", PriceType: "one-time"},
		},
	}
	return cfg
}

func newReservation(spaceID int64, slot string) *model.Reservation {
	s, _ := model.ParseSlot(slot)
	return &model.Reservation{
		SpaceID:    spaceID,
		Date:       testDay,
		Slot:       s,
		TotalPrice: decimal.RequireFromString("40"),
		Extras: model.Extras{
			AddOns:  map[int64]int{10: 2},
			Contact: model.Contact{Name: "Ann", Email: "ann@example.com"},
		},
	}
}

func TestCatalogSync(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	sp, err := db.GetSpace(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Desk A", sp.Name)
	assert.Equal(t, "60", sp.Pricing.Daily.String())
	assert.Equal(t, model.MustClock("09:00"), sp.Hours.Open)

	sp2, err := db.GetSpace(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultOpeningHours, sp2.Hours)

	addOns, err := db.ListAddOns(ctx)
	require.NoError(t, err)
	require.Len(t, addOns, 2)
	assert.Equal(t, model.PriceOneTime, addOns[1].PriceType)

	// Drop Room B and the coffee service from the file.
	cfg := testCatalog()
	cfg.Spaces = cfg.Spaces[:1]
	cfg.AddOns = cfg.AddOns[:1]
	require.NoError(t, db.SyncCatalogFromConfig(ctx, cfg))

	sp1, err := db.GetSpace(ctx, 1)
	require.NoError(t, err)
	assert.True(t, sp1.IsActive)

	sp2, err = db.GetSpace(ctx, 2)
	require.NoError(t, err)
	assert.False(t, sp2.IsActive)

	addOns, err = db.ListAddOns(ctx)
	require.NoError(t, err)
	assert.Len(t, addOns, 1)

	_, err = db.GetSpace(ctx, 99)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateReservation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := newReservation(1, "09:00 - 12:00")
	require.NoError(t, db.CreateReservation(ctx, r))
	assert.NotZero(t, r.ID)
	assert.NotEmpty(t, r.Reference)
	assert.Equal(t, int64(1), r.Version)
	assert.Equal(t, model.StatusPending, r.Status)

	got, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "09:00 - 12:00", got.Slot.String())
	assert.Equal(t, "40", got.TotalPrice.String())
	assert.Equal(t, 2, got.Extras.AddOns[10])
	assert.Equal(t, "Ann", got.Extras.Contact.Name)
	assert.True(t, got.Date.Equal(testDay))

	// Touching window is allowed; overlapping and full-day are not.
	require.NoError(t, db.CreateReservation(ctx, newReservation(1, "12:00 - 13:00")))
	assert.ErrorIs(t, db.CreateReservation(ctx, newReservation(1, "11:00 - 12:30")), model.ErrSlotTaken)
	assert.ErrorIs(t, db.CreateReservation(ctx, newReservation(1, "Full Day")), model.ErrSlotTaken)

	// Other spaces are independent.
	require.NoError(t, db.CreateReservation(ctx, newReservation(2, "Full Day")))
	assert.ErrorIs(t, db.CreateReservation(ctx, newReservation(2, "15:00 - 16:00")), model.ErrSlotTaken)

	assert.Error(t, db.CreateReservation(ctx, &model.Reservation{SpaceID: 1, Date: testDay}))

	records, err := db.ListActiveReservations(ctx, 1, testDay)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCreateReservation_ConcurrentWriters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		taken   int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.CreateReservation(ctx, newReservation(1, "10:00 - 11:00"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, model.ErrSlotTaken):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, writers-1, taken)
}

func TestCancelledReservationFreesSlot(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := newReservation(1, "09:00 - 10:00")
	require.NoError(t, db.CreateReservation(ctx, r))
	require.NoError(t, db.UpdateReservationStatus(ctx, r.ID, model.StatusCancelled, r.Version))

	again := newReservation(1, "09:00 - 10:00")
	require.NoError(t, db.CreateReservation(ctx, again))

	records, err := db.ListActiveReservations(ctx, 1, testDay)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, again.ID, records[0].ID)
}

func TestLegacyMalformedSlot(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		INSERT INTO reservations (reference, space_id, date, time_slot, status)
		VALUES ('legacy-1', 1, ?, 'morning', 'confirmed')`, testDay.Format(model.DateLayout))
	require.NoError(t, err)

	assert.NoError(t, db.CreateReservation(ctx, newReservation(1, "09:00 - 10:00")))
	assert.ErrorIs(t, db.CreateReservation(ctx, newReservation(1, "Full Day")), model.ErrSlotTaken)
}

func TestUpdateReservationStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := newReservation(1, "09:00 - 10:00")
	require.NoError(t, db.CreateReservation(ctx, r))

	require.NoError(t, db.UpdateReservationStatus(ctx, r.ID, model.StatusConfirmed, 1))
	err := db.UpdateReservationStatus(ctx, r.ID, model.StatusCancelled, 1)
	assert.ErrorIs(t, err, model.ErrConcurrentModification)

	got, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, int64(2), got.Version)

	assert.ErrorIs(t, db.UpdateReservationStatus(ctx, 404, model.StatusConfirmed, 1), model.ErrNotFound)
	_, err = db.GetReservation(ctx, 404)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListReservations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateReservation(ctx, newReservation(1, "13:00 - 14:00")))
	require.NoError(t, db.CreateReservation(ctx, newReservation(1, "09:00 - 10:00")))
	later := newReservation(2, "Full Day")
	later.Date = testDay.AddDate(0, 0, 3)
	require.NoError(t, db.CreateReservation(ctx, later))

	all, err := db.ListReservations(ctx, model.ReservationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "09:00 - 10:00", all[0].Slot.String())
	assert.Equal(t, "13:00 - 14:00", all[1].Slot.String())

	bySpace, err := db.ListReservations(ctx, model.ReservationFilter{SpaceID: 2})
	require.NoError(t, err)
	assert.Len(t, bySpace, 1)

	byRange, err := db.ListReservations(ctx, model.ReservationFilter{From: testDay, To: testDay.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Len(t, byRange, 2)

	pending, err := db.ListReservations(ctx, model.ReservationFilter{Status: model.StatusConfirmed})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEnsureUser(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id1, err := db.EnsureUser(ctx, model.Contact{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
	id2, err := db.EnsureUser(ctx, model.Contact{Name: "Ann B.", Email: "ann@example.com", Phone: "+100"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	id3, err := db.EnsureUser(ctx, model.Contact{Name: "Walk-in"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestGetTableData(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreateReservation(ctx, newReservation(1, "09:00 - 10:00")))

	names, err := db.GetTableNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "reservations")

	rows, cols, err := db.GetTableData(ctx, "reservations")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Contains(t, cols, "time_slot")
	assert.Equal(t, "09:00 - 10:00", rows[0]["time_slot"])

	_, _, err = db.GetTableData(ctx, "sqlite_master")
	assert.Error(t, err)
}

func TestAuditDump(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreateReservation(ctx, newReservation(1, "09:00 - 10:00")))

	var buf bytes.Buffer
	require.NoError(t, audit.WriteTables(ctx, &buf, db))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, AuditTableNames, f.GetSheetList())

	rows, err := f.GetRows("reservations")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Contains(t, rows[1], "09:00 - 10:00")
}

func TestBackupService(t *testing.T) {
	db := setupTestDB(t)
	logger := zerolog.New(io.Discard)
	dir := t.TempDir()

	svc := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 7}, &logger)
	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	stale := filepath.Join(dir, backupPrefix+"20000101_000000.db")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(stale, old, old))
	unrelated := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, nil, 0o644))
	require.NoError(t, os.Chtimes(unrelated, old, old))

	assert.Equal(t, 1, svc.CleanupOldBackups())
	assert.NoFileExists(t, stale)
	assert.FileExists(t, unrelated)
	assert.FileExists(t, path)
}
