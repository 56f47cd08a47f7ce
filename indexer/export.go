package indexer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	ID          string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sequence    int64  `parquet:"name=sequence, type=INT64"`
	Position    int32  `parquet:"name=position, type=INT32"`
	Type        string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	VaultID     string `parquet:"name=vault_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Account     string `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes  string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	Fingerprint string `parquet:"name=fingerprint, type=BYTE_ARRAY, convertedtype=UTF8"`
	EmittedAt   string `parquet:"name=emitted_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every event matching f to a snappy compressed parquet
// file at path and returns the number of rows written. The filter limit is
// ignored; the export pages through the whole index.
func (ix *Indexer) ExportParquet(ctx context.Context, path string, f Filter) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	page := f
	page.Limit = maxQueryLimit
	var last *EventRecord
	for {
		rows, err := ix.Query(ctx, page)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		for i := range rows {
			row := rows[i]
			if last != nil && (row.Sequence < last.Sequence || (row.Sequence == last.Sequence && row.Position <= last.Position)) {
				continue
			}
			if err := pw.Write(&parquetRow{
				ID:          row.ID.String(),
				Sequence:    int64(row.Sequence),
				Position:    int32(row.Position),
				Type:        row.Type,
				VaultID:     row.VaultID,
				Account:     row.Account,
				Attributes:  row.Attributes,
				Fingerprint: row.Fingerprint,
				EmittedAt:   row.EmittedAt.Format(time.RFC3339),
			}); err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("indexer: parquet write: %w", err)
			}
			written++
			last = &row
		}
		if len(rows) < page.Limit || last == nil {
			break
		}
		// Resume from the last sequence; rows already written are skipped.
		page.FromSequence = last.Sequence
		if len(rows) == page.Limit && rows[0].Sequence == last.Sequence {
			return written, fmt.Errorf("indexer: sequence %d has more than %d events", last.Sequence, page.Limit)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return written, nil
}
