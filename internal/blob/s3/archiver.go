package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

// auditPage bounds how many audit rows are read per query.
const auditPage = 1000

// archiveWindow is the span of audit history covered by one object, matching
// the daily schedule.
const archiveWindow = 24 * time.Hour

// Archiver implements domain.Archiver. It copies the day of audit log ending
// at a cutoff into one JSONL object per cutoff day and records the copy in
// the audit log itself. Rows are never deleted here.
type Archiver struct {
	repo   domain.Repository
	writer domain.BlobWriter
	reader domain.BlobReader
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(repo domain.Repository, writer domain.BlobWriter, reader domain.BlobReader, logger *slog.Logger) *Archiver {
	return &Archiver{repo: repo, writer: writer, reader: reader, logger: logger}
}

// ArchiveAudit uploads the audit entries created in [before-24h, before) and
// returns how many were written. An archive already present for the cutoff
// day is left alone and counts as zero.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	path := archivePath("audit", before)
	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit: %w", err)
	}
	if exists {
		a.logger.InfoContext(ctx, "s3blob: audit archive already present", slog.String("path", path))
		return 0, nil
	}

	since := before.Add(-archiveWindow)
	var entries []domain.AuditEntry
	err = a.repo.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		for offset := 0; ; offset += auditPage {
			page, err := tx.Audit().List(ctx, domain.ListOpts{Since: &since, Until: &before, Limit: auditPage, Offset: offset})
			if err != nil {
				return err
			}
			entries = append(entries, page...)
			if len(page) < auditPage {
				return nil
			}
		}
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	count := int64(len(entries))
	err = a.repo.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Audit().Log(ctx, "archive.audit", map[string]any{
			"path":   path,
			"count":  count,
			"since":  since.UTC().Format(time.RFC3339),
			"before": before.UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		return count, fmt.Errorf("s3blob: archive audit log: %w", err)
	}

	a.logger.InfoContext(ctx, "s3blob: audit archived",
		slog.String("path", path),
		slog.Int64("count", count),
	)
	return count, nil
}

// archivePath names the object for a cutoff, e.g.
// archive/audit/2026-03-01.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01-02"))
}

// marshalJSONL encodes records one compact JSON document per line.
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
