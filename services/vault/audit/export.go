package audit

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRecord struct {
	Seq        int64  `parquet:"name=seq, type=INT64"`
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Operation  string `parquet:"name=operation, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	PrevDigest string `parquet:"name=prev_digest, type=BYTE_ARRAY, convertedtype=UTF8"`
	Digest     string `parquet:"name=digest, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt  string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

const exportPage = 500

// ExportParquet writes every record matching q.Type and q.Since to w in
// sequence order. q.Limit is ignored. It returns the number of rows written.
func (s *Sink) ExportParquet(ctx context.Context, w io.Writer, q Query) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("audit: sink not configured")
	}
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(w), new(parquetRecord), 1)
	if err != nil {
		return 0, fmt.Errorf("audit: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	var after uint64
	for {
		tx := s.db.WithContext(ctx).Where("seq > ?", after)
		if q.Type != "" {
			tx = tx.Where("type = ?", q.Type)
		}
		if !q.Since.IsZero() {
			tx = tx.Where("created_at >= ?", q.Since.UTC())
		}
		var batch []Record
		if err := tx.Order("seq ASC").Limit(exportPage).Find(&batch).Error; err != nil {
			_ = pw.WriteStop()
			return written, fmt.Errorf("audit: export: %w", err)
		}
		for _, r := range batch {
			row := &parquetRecord{
				Seq:        int64(r.Seq),
				ID:         r.ID.String(),
				Type:       r.Type,
				Operation:  r.Operation,
				Attributes: r.Attributes,
				PrevDigest: r.PrevDigest,
				Digest:     r.Digest,
				CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339Nano),
			}
			if err := pw.Write(row); err != nil {
				_ = pw.WriteStop()
				return written, fmt.Errorf("audit: parquet write: %w", err)
			}
			written++
			after = r.Seq
		}
		if len(batch) < exportPage {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		return written, fmt.Errorf("audit: parquet flush: %w", err)
	}
	return written, nil
}
