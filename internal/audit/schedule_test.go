package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type sentDocument struct {
	filename string
	data     []byte
	caption  string
}

type fakeSender struct {
	sent []sentDocument
	err  error
}

func (f *fakeSender) SendDocument(_ context.Context, filename string, data []byte, caption string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentDocument{filename: filename, data: data, caption: caption})
	return nil
}

type failingTables struct{}

func (failingTables) GetTableNames(context.Context) ([]string, error) {
	return nil, errors.New("db closed")
}

func (failingTables) GetTableData(context.Context, string) ([]map[string]any, []string, error) {
	return nil, nil, nil
}

func TestSendTables(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 1, 0, 0, time.UTC)
	sender := &fakeSender{}

	require.NoError(t, SendTables(context.Background(), fakeTables{}, sender, now))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "audit_2026-07-01.xlsx", sender.sent[0].filename)
	assert.Equal(t, "Monthly audit 2026-07", sender.sent[0].caption)

	f, err := excelize.OpenReader(bytes.NewReader(sender.sent[0].data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"spaces", "reservations"}, f.GetSheetList())
}

func TestSendTables_Errors(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 1, 0, 0, time.UTC)

	sender := &fakeSender{}
	err := SendTables(context.Background(), failingTables{}, sender, now)
	assert.ErrorContains(t, err, "db closed")
	assert.Empty(t, sender.sent)

	err = SendTables(context.Background(), fakeTables{}, &fakeSender{err: errors.New("bot blocked")}, now)
	assert.ErrorContains(t, err, "send document: bot blocked")
}

func TestNextMonthlyRun(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"mid month", time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC), time.Date(2026, 7, 1, 0, 1, 0, 0, time.UTC)},
		{"year end", time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC), time.Date(2027, 1, 1, 0, 1, 0, 0, time.UTC)},
		{"right after a run", time.Date(2026, 7, 1, 0, 1, 0, 0, time.UTC), time.Date(2026, 8, 1, 0, 1, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextMonthlyRun(tt.now))
		})
	}
}
