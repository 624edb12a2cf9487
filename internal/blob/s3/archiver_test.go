package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/editionshop/internal/domain"
	"github.com/alanyoungcy/editionshop/internal/store/memory"
)

type memBlobs struct {
	objects map[string][]byte
	types   map[string]string
	failPut bool
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memBlobs) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if b.failPut {
		return errors.New("upload refused")
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.objects[path] = raw
	b.types[path] = contentType
	return nil
}

func (b *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := b.objects[path]
	return ok, nil
}

func logAudit(t *testing.T, repo domain.Repository, events ...string) {
	t.Helper()
	require.NoError(t, repo.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		for _, e := range events {
			if err := tx.Audit().Log(ctx, e, map[string]any{"n": e}); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestArchivePath(t *testing.T) {
	at := time.Date(2026, 3, 1, 23, 30, 0, 0, time.FixedZone("x", -2*3600))
	assert.Equal(t, "archive/audit/2026-03-02.jsonl", archivePath("audit", at))
}

func TestArchiveAudit(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	blobs := newMemBlobs()
	a := NewArchiver(repo, blobs, blobs, slog.New(slog.NewTextHandler(io.Discard, nil)))

	logAudit(t, repo, "store_created", "sale", "payout")
	before := time.Now().Add(time.Minute)

	n, err := a.ArchiveAudit(ctx, before)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	path := archivePath("audit", before)
	require.Contains(t, blobs.objects, path)
	assert.Equal(t, "application/x-ndjson", blobs.types[path])

	var events []string
	sc := bufio.NewScanner(bytes.NewReader(blobs.objects[path]))
	for sc.Scan() {
		var e domain.AuditEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		events = append(events, e.Event)
	}
	assert.Equal(t, []string{"store_created", "sale", "payout"}, events)

	// The copy itself is audited.
	var entries []domain.AuditEntry
	require.NoError(t, repo.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		entries, err = tx.Audit().List(ctx, domain.ListOpts{})
		return err
	}))
	require.Len(t, entries, 4)
	assert.Equal(t, "archive.audit", entries[3].Event)

	// Same cutoff day again is a no-op.
	n, err = a.ArchiveAudit(ctx, before)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestArchiveAuditCoversOneDay(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	blobs := newMemBlobs()
	a := NewArchiver(repo, blobs, blobs, slog.New(slog.NewTextHandler(io.Discard, nil)))

	logAudit(t, repo, "sale")
	n, err := a.ArchiveAudit(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Two days later the earlier entries fall outside the window.
	n, err = a.ArchiveAudit(ctx, time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, blobs.objects, 1)

	// Entries older than a day before the cutoff are never picked up.
	n, err = a.ArchiveAudit(ctx, time.Now().Add(25*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestArchiveAuditEmptyAndFailure(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	blobs := newMemBlobs()
	a := NewArchiver(repo, blobs, blobs, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := a.ArchiveAudit(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blobs.objects)

	logAudit(t, repo, "sale")
	blobs.failPut = true
	_, err = a.ArchiveAudit(ctx, time.Now().Add(time.Minute))
	assert.Error(t, err)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
}
