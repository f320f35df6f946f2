package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// CatalogPrefix is the key prefix every catalog export is written under.
const CatalogPrefix = "catalog/"

// multipartThreshold is the payload size above which exports go through the
// multipart uploader.
const multipartThreshold = 8 * 1024 * 1024

// ExportResult describes one written export.
type ExportResult struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
	Bytes int    `json:"bytes"`
}

// CatalogSource is the slice of the market store the exporter reads.
type CatalogSource interface {
	List(ctx context.Context, filter domain.MarketFilter, sort domain.MarketSort) ([]domain.MarketRecord, error)
}

// Exporter snapshots the market catalog to object storage as JSON lines so
// on-chain markets can be reconciled against their records offline. Records
// are never modified or deleted by an export.
type Exporter struct {
	writer  domain.BlobWriter
	markets CatalogSource
	audit   domain.AuditStore
	now     func() time.Time
}

// NewExporter creates an Exporter. audit may be nil.
func NewExporter(writer domain.BlobWriter, markets CatalogSource, audit domain.AuditStore) *Exporter {
	return &Exporter{
		writer:  writer,
		markets: markets,
		audit:   audit,
		now:     time.Now,
	}
}

// ExportCatalog writes every market record, newest first, to
// catalog/markets-<UTC timestamp>.jsonl and records the export in the audit
// log. An empty catalog still produces an (empty) object so each export
// request leaves a trace.
func (e *Exporter) ExportCatalog(ctx context.Context) (ExportResult, error) {
	markets, err := e.markets.List(ctx, domain.MarketFilter{}, domain.SortByNewest)
	if err != nil {
		return ExportResult{}, fmt.Errorf("s3blob: export catalog query: %w", err)
	}

	buf, err := marshalJSONL(markets)
	if err != nil {
		return ExportResult{}, fmt.Errorf("s3blob: export catalog marshal: %w", err)
	}

	path := exportPath(e.now())
	if len(buf) > multipartThreshold {
		err = e.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = e.writer.Put(ctx, path, bytes.NewReader(buf), jsonLinesContentType)
	}
	if err != nil {
		return ExportResult{}, fmt.Errorf("s3blob: export catalog upload: %w", err)
	}

	res := ExportResult{Path: path, Count: len(markets), Bytes: len(buf)}
	if e.audit != nil {
		if err := e.audit.Log(ctx, "catalog.export", map[string]any{
			"path":  res.Path,
			"count": res.Count,
		}); err != nil {
			return res, fmt.Errorf("s3blob: export catalog audit log: %w", err)
		}
	}
	return res, nil
}

// exportPath builds the object key for an export taken at t.
//
//	catalog/markets-20250102T150405Z.jsonl
func exportPath(t time.Time) string {
	return fmt.Sprintf("%smarkets-%s.jsonl", CatalogPrefix, t.UTC().Format("20060102T150405Z"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// object per line.
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
