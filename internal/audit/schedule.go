package audit

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

// DocumentSender delivers a finished workbook, e.g. to Telegram managers.
type DocumentSender interface {
	SendDocument(ctx context.Context, filename string, data []byte, caption string) error
}

// SendTables dumps every table of src and hands the workbook to dst.
func SendTables(ctx context.Context, src TableSource, dst DocumentSender, now time.Time) error {
	var buf bytes.Buffer
	if err := WriteTables(ctx, &buf, src); err != nil {
		return err
	}

	caption := fmt.Sprintf("Monthly audit %s", now.Format("2006-01"))
	if err := dst.SendDocument(ctx, TablesFilename(now), buf.Bytes(), caption); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}

// NextMonthlyRun returns 00:01 on the first day of the month after now, in now's location.
func NextMonthlyRun(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}
