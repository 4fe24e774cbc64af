package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// Narrow store interfaces required by the archiver. The archiver only needs
// the time-ranged query and prune methods, not the full domain stores.

// TradeArchiveStore provides read and prune access to trades for archival.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// LogArchiveStore provides read and prune access to execution logs for
// archival.
type LogArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionLog, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver serialises aged trades and execution logs to JSONL and uploads
// them to S3-compatible storage. Pruning the primary store happens only after
// the upload succeeded, so a failed upload never loses records.
type Archiver struct {
	writer domain.BlobWriter
	trades TradeArchiveStore
	logs   LogArchiveStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, trades TradeArchiveStore, logs LogArchiveStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		trades: trades,
		logs:   logs,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTrades uploads all trades recorded before the cutoff to
// archive/trades/YYYY-MM.jsonl and prunes them from the store. Returns the
// number of records archived.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	deleted, err := a.trades.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(trades)), fmt.Errorf("s3blob: prune archived trades: %w", err)
	}

	a.logger.InfoContext(ctx, "trades archived",
		slog.String("path", path),
		slog.Int("count", len(trades)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(trades)), nil
}

// ArchiveExecutionLogs uploads all audit entries recorded before the cutoff
// to archive/execution_logs/YYYY-MM.jsonl and prunes them from the store.
// Returns the number of records archived.
func (a *Archiver) ArchiveExecutionLogs(ctx context.Context, before time.Time) (int64, error) {
	logs, err := a.logs.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive execution logs query: %w", err)
	}
	if len(logs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(logs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive execution logs marshal: %w", err)
	}

	path := archivePath("execution_logs", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive execution logs upload: %w", err)
	}

	deleted, err := a.logs.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(logs)), fmt.Errorf("s3blob: prune archived execution logs: %w", err)
	}

	a.logger.InfoContext(ctx, "execution logs archived",
		slog.String("path", path),
		slog.Int("count", len(logs)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(logs)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2025-01.jsonl
//	archive/execution_logs/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
