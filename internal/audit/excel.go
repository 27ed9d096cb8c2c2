// Package audit exports reservations and raw tables to Excel workbooks.
package audit

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"cowork/internal/model"

	"github.com/xuri/excelize/v2"
)

// TableSource provides raw tables for a full dump.
type TableSource interface {
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error)
}

var reservationColumns = []string{
	"ID", "Reference", "Date", "Time slot", "Space", "Coworking space",
	"Status", "Total", "Customer", "Phone", "Email", "Add-ons", "Created at",
}

// sheet streams rows into one worksheet.
type sheet struct {
	sw  *excelize.StreamWriter
	row int
}

func newSheet(f *excelize.File, name string, first bool) (*sheet, error) {
	// Excel limits sheet names to 31 characters.
	if len(name) > 31 {
		name = name[:31]
	}
	if first {
		if err := f.SetSheetName("Sheet1", name); err != nil {
			return nil, fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := f.NewSheet(name); err != nil {
		return nil, fmt.Errorf("create sheet %s: %w", name, err)
	}

	sw, err := f.NewStreamWriter(name)
	if err != nil {
		return nil, fmt.Errorf("stream sheet %s: %w", name, err)
	}
	return &sheet{sw: sw, row: 1}, nil
}

func (s *sheet) header(f *excelize.File, columns []string) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	cells := make([]any, len(columns))
	for i, c := range columns {
		cells[i] = excelize.Cell{StyleID: bold, Value: c}
	}
	return s.write(cells)
}

func (s *sheet) write(values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	if err := s.sw.SetRow(cell, values); err != nil {
		return err
	}
	s.row++
	return nil
}

// WriteReservations renders reservations as a single-sheet workbook. spaceNames maps
// space ids to display names; unknown ids are shown as numbers.
func WriteReservations(w io.Writer, reservations []model.Reservation, spaceNames map[int64]string) error {
	f := excelize.NewFile()
	defer f.Close()

	sh, err := newSheet(f, "Reservations", true)
	if err != nil {
		return err
	}
	if err := sh.header(f, reservationColumns); err != nil {
		return err
	}

	for i := range reservations {
		r := &reservations[i]
		space, ok := spaceNames[r.SpaceID]
		if !ok {
			space = strconv.FormatInt(r.SpaceID, 10)
		}
		row := []any{
			r.ID,
			r.Reference,
			r.Date.Format(model.DateLayout),
			r.Slot.String(),
			space,
			r.CoworkingSpace,
			string(r.Status),
			r.TotalPrice.InexactFloat64(),
			r.Extras.Contact.Name,
			r.Extras.Contact.Phone,
			r.Extras.Contact.Email,
			formatAddOns(r.Extras.AddOns),
			r.CreatedAt.Format(time.DateTime),
		}
		if err := sh.write(row); err != nil {
			return fmt.Errorf("write reservation %d: %w", r.ID, err)
		}
	}

	if err := sh.sw.Flush(); err != nil {
		return err
	}
	return f.Write(w)
}

// WriteTables dumps every table of src into its own sheet.
func WriteTables(ctx context.Context, w io.Writer, src TableSource) error {
	names, err := src.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, name := range names {
		rows, columns, err := src.GetTableData(ctx, name)
		if err != nil {
			return fmt.Errorf("read table %s: %w", name, err)
		}

		sh, err := newSheet(f, name, i == 0)
		if err != nil {
			return err
		}
		if err := sh.header(f, columns); err != nil {
			return err
		}
		for _, row := range rows {
			values := make([]any, len(columns))
			for j, col := range columns {
				values[j] = row[col]
			}
			if err := sh.write(values); err != nil {
				return fmt.Errorf("write %s row: %w", name, err)
			}
		}
		if err := sh.sw.Flush(); err != nil {
			return err
		}
	}
	return f.Write(w)
}

// formatAddOns renders selections as "3x2, 7x1" ordered by add-on id.
func formatAddOns(addOns map[int64]int) string {
	ids := make([]int64, 0, len(addOns))
	for id, qty := range addOns {
		if qty > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%dx%d", id, addOns[id])
	}
	return strings.Join(parts, ", ")
}

// TablesFilename returns the name of a full dump taken on date, like "audit_2026-06-01.xlsx".
func TablesFilename(date time.Time) string {
	return "audit_" + date.Format(model.DateLayout) + ".xlsx"
}

// Filename returns a download name like "reservations_2026-01-01_2026-01-31.xlsx".
func Filename(from, to time.Time) string {
	return fmt.Sprintf("reservations_%s_%s.xlsx", from.Format(model.DateLayout), to.Format(model.DateLayout))
}
