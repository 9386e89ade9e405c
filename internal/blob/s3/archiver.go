package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/breakoutbot/internal/domain"
)

// Archiver implements domain.Archiver by querying the trade journal for old
// rows, serializing them to JSONL, uploading the result, and deleting the
// archived rows once the upload succeeded.
type Archiver struct {
	writer domain.BlobWriter
	trades domain.TradeStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, trades domain.TradeStore) *Archiver {
	return &Archiver{writer: writer, trades: trades}
}

// ArchiveTrades uploads all journal rows closed strictly before the cutoff
// as a JSONL object keyed by cutoff date, then deletes them from the
// journal. It returns the number of rows archived.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, t := range trades {
		if err := enc.Encode(t); err != nil {
			return 0, fmt.Errorf("s3blob: encode trade %s: %w", t.ID, err)
		}
	}

	path := fmt.Sprintf("archive/trades/%s.jsonl", before.UTC().Format("2006-01-02"))
	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: upload archive: %w", err)
	}

	if _, err := a.trades.DeleteBefore(ctx, before); err != nil {
		return 0, fmt.Errorf("s3blob: prune archived trades: %w", err)
	}

	return int64(len(trades)), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
