package s3blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybread8/tradesyncer/internal/domain"
)

type memWriter struct {
	objects map[string]string
	err     error
}

func newMemWriter() *memWriter {
	return &memWriter{objects: make(map[string]string)}
}

func (w *memWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = string(body)
	return nil
}

type memTradeStore struct {
	trades  []domain.Trade
	pruned  bool
	listErr error
}

func (s *memTradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Trade
	for _, t := range s.trades {
		if t.CreatedAt.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memTradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	var kept []domain.Trade
	var removed int64
	for _, t := range s.trades {
		if t.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	s.trades = kept
	s.pruned = true
	return removed, nil
}

type memLogStore struct {
	logs []domain.ExecutionLog
}

func (s *memLogStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionLog, error) {
	var out []domain.ExecutionLog
	for _, e := range s.logs {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memLogStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	var kept []domain.ExecutionLog
	var removed int64
	for _, e := range s.logs {
		if e.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.logs = kept
	return removed, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveTradesUploadsThenPrunes(t *testing.T) {
	cutoff := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-30 * 24 * time.Hour)
	recent := cutoff.Add(24 * time.Hour)

	writer := newMemWriter()
	trades := &memTradeStore{trades: []domain.Trade{
		{ID: "t-1", AccountID: "acc-1", Symbol: "NQZ6", CreatedAt: old},
		{ID: "t-2", AccountID: "acc-1", Symbol: "ESZ6", CreatedAt: old},
		{ID: "t-3", AccountID: "acc-1", Symbol: "NQZ6", CreatedAt: recent},
	}}

	a := NewArchiver(writer, trades, &memLogStore{}, testLogger())
	n, err := a.ArchiveTrades(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	body, ok := writer.objects["archive/trades/2026-06.jsonl"]
	require.True(t, ok, "upload key is partitioned by cutoff month")
	lines := strings.Split(strings.TrimSpace(body), "\n")
	assert.Len(t, lines, 2, "one JSON document per line")
	assert.Contains(t, lines[0], `"t-1"`)

	// The recent trade survives the prune.
	require.Len(t, trades.trades, 1)
	assert.Equal(t, "t-3", trades.trades[0].ID)
}

func TestArchiveTradesNothingToDo(t *testing.T) {
	writer := newMemWriter()
	trades := &memTradeStore{}

	a := NewArchiver(writer, trades, &memLogStore{}, testLogger())
	n, err := a.ArchiveTrades(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.objects, "no empty objects are uploaded")
	assert.False(t, trades.pruned)
}

func TestArchiveTradesUploadFailureKeepsRecords(t *testing.T) {
	cutoff := time.Now().UTC()
	writer := newMemWriter()
	writer.err = errors.New("bucket unreachable")
	trades := &memTradeStore{trades: []domain.Trade{
		{ID: "t-1", CreatedAt: cutoff.Add(-time.Hour)},
	}}

	a := NewArchiver(writer, trades, &memLogStore{}, testLogger())
	_, err := a.ArchiveTrades(context.Background(), cutoff)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")

	// Upload-before-delete: the store is untouched.
	assert.Len(t, trades.trades, 1)
	assert.False(t, trades.pruned)
}

func TestArchiveExecutionLogs(t *testing.T) {
	cutoff := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	writer := newMemWriter()
	logs := &memLogStore{logs: []domain.ExecutionLog{
		{ID: 1, CopierID: "cop-1", Message: "trade replicated", CreatedAt: cutoff.Add(-time.Hour)},
		{ID: 2, CopierID: "cop-1", Message: "kept", CreatedAt: cutoff.Add(time.Hour)},
	}}

	a := NewArchiver(writer, &memTradeStore{}, logs, testLogger())
	n, err := a.ArchiveExecutionLogs(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	body, ok := writer.objects["archive/execution_logs/2026-06.jsonl"]
	require.True(t, ok)
	assert.Contains(t, body, "trade replicated")

	require.Len(t, logs.logs, 1)
	assert.Equal(t, int64(2), logs.logs[0].ID)
}

func TestArchivePath(t *testing.T) {
	before := time.Date(2026, time.January, 15, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "archive/trades/2026-01.jsonl", archivePath("trades", before))
	assert.Equal(t, "archive/execution_logs/2026-01.jsonl", archivePath("execution_logs", before))
}
