package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/domain/repository"
	"github.com/zots0127/uploadstore/internal/infrastructure/blobstore"
)

const (
	defaultContentType = "application/octet-stream"
	// filetype inspects at most this many leading bytes
	sniffLength = 261
	spoolPrefix = "ingest-"
)

// Ingest outcomes, used as metric label values
const (
	outcomeCreated   = "created"
	outcomeDuplicate = "duplicate"
	outcomeRaceLost  = "race_lost"
	outcomeFailed    = "failed"
)

var (
	ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uploadstore_ingest_total",
		Help: "Upload attempts by outcome.",
	}, []string{"outcome"})
	ingestBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uploadstore_ingest_bytes_total",
		Help: "Bytes of newly stored content.",
	})
	ingestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "uploadstore_ingest_duration_seconds",
		Help:    "Time to hash, store and commit an upload.",
		Buckets: prometheus.DefBuckets,
	})
)

// ContentHasher digests a stream
type ContentHasher interface {
	Hash(r io.Reader) (digest string, size int64, err error)
}

// Upload is one incoming file. A nil Body means no file was supplied; a
// non-nil Body that yields no bytes is a valid empty file.
type Upload struct {
	Body        io.Reader
	Filename    string
	ContentType string
}

// IngestUseCase stores uploads exactly once per distinct content
type IngestUseCase struct {
	catalog repository.FileCatalog
	blobs   repository.BlobStore
	hasher  ContentHasher
	logger  *slog.Logger

	tempDir string
	now     func() time.Time
	newID   func() string
	newKey  func(filename string) (string, error)
}

// IngestOption customizes an IngestUseCase
type IngestOption func(*IngestUseCase)

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) IngestOption {
	return func(u *IngestUseCase) { u.now = now }
}

// WithIDGenerator overrides the record id source
func WithIDGenerator(newID func() string) IngestOption {
	return func(u *IngestUseCase) { u.newID = newID }
}

// WithKeyGenerator overrides the storage key source
func WithKeyGenerator(newKey func(filename string) (string, error)) IngestOption {
	return func(u *IngestUseCase) { u.newKey = newKey }
}

// WithTempDir sets the directory for spool files
func WithTempDir(dir string) IngestOption {
	return func(u *IngestUseCase) { u.tempDir = dir }
}

// NewIngestUseCase creates a new ingest use case
func NewIngestUseCase(catalog repository.FileCatalog, blobs repository.BlobStore, hasher ContentHasher, logger *slog.Logger, opts ...IngestOption) *IngestUseCase {
	u := &IngestUseCase{
		catalog: catalog,
		blobs:   blobs,
		hasher:  hasher,
		logger:  logger.With(slog.String("component", "ingest")),
		now:     time.Now,
		newID:   uuid.NewString,
		newKey:  blobstore.NewStorageKey,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Ingest hashes the upload, rejects content that is already stored and
// otherwise persists the blob and commits its record. On any failure no
// record is left behind.
func (u *IngestUseCase) Ingest(ctx context.Context, up Upload) (*entities.FileRecord, error) {
	start := time.Now()
	rec, outcome, err := u.ingest(ctx, up)
	ingestTotal.WithLabelValues(outcome).Inc()
	ingestDuration.Observe(time.Since(start).Seconds())

	switch outcome {
	case outcomeCreated:
		ingestBytesTotal.Add(float64(rec.Size))
		u.logger.Info("File stored",
			slog.String("id", rec.ID),
			slog.String("digest", rec.Digest),
			slog.Int64("size", rec.Size),
			slog.String("filename", rec.OriginalFilename),
		)
	case outcomeDuplicate, outcomeRaceLost:
		attrs := []any{slog.String("outcome", outcome)}
		if conflict, ok := AsConflict(err); ok && conflict.Existing != nil {
			attrs = append(attrs, slog.String("existing_id", conflict.Existing.ID))
		}
		u.logger.Info("Duplicate upload rejected", attrs...)
	default:
		if errors.Is(err, ErrNoContent) {
			u.logger.Debug("Upload without file rejected")
			break
		}
		u.logger.Error("Upload failed", slog.String("error", err.Error()))
	}

	return rec, err
}

func (u *IngestUseCase) ingest(ctx context.Context, up Upload) (*entities.FileRecord, string, error) {
	if up.Body == nil {
		return nil, outcomeFailed, ErrNoContent
	}

	spool, err := os.CreateTemp(u.tempDir, spoolPrefix+"*")
	if err != nil {
		return nil, outcomeFailed, storageError("create spool file", err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	// Hashed
	sw := &spoolWriter{w: spool}
	digest, size, err := u.hasher.Hash(io.TeeReader(&contextReader{ctx: ctx, r: up.Body}, sw))
	if err != nil {
		if sw.err != nil {
			return nil, outcomeFailed, storageError("write spool file", sw.err)
		}
		return nil, outcomeFailed, readError(err)
	}

	contentType, err := u.resolveContentType(spool, up.ContentType)
	if err != nil {
		return nil, outcomeFailed, storageError("read spool file", err)
	}

	// Pre-check
	existing, err := u.catalog.FindByDigest(ctx, digest)
	switch {
	case err == nil:
		return nil, outcomeDuplicate, &ConflictError{Existing: existing}
	case !errors.Is(err, repository.ErrRecordNotFound):
		return nil, outcomeFailed, storageError("look up digest", err)
	}

	// BlobPersisted
	key, err := u.newKey(up.Filename)
	if err != nil {
		return nil, outcomeFailed, storageError("generate storage key", err)
	}
	written, err := u.blobs.Put(ctx, key, spool)
	if err != nil {
		return nil, outcomeFailed, storageError("write blob", err)
	}

	// From here on the blob exists and must be removed on every path that
	// does not commit a record referencing it.
	if written != size {
		u.discard(ctx, key)
		return nil, outcomeFailed, storageError("write blob", fmt.Errorf("wrote %d of %d bytes", written, size))
	}
	if err := ctx.Err(); err != nil {
		u.discard(ctx, key)
		return nil, outcomeFailed, err
	}

	rec := &entities.FileRecord{
		ID:               u.newID(),
		StorageKey:       key,
		OriginalFilename: truncateUTF8(up.Filename, entities.MaxFilenameBytes),
		ContentType:      contentType,
		Size:             size,
		Digest:           digest,
		CreatedAt:        u.now().UTC().Truncate(time.Microsecond),
	}

	// Committed. The insert ignores cancellation so that a record which
	// did commit never loses its blob.
	res, err := u.catalog.InsertIfDigestAbsent(context.WithoutCancel(ctx), rec)
	if err != nil {
		u.discard(ctx, key)
		return nil, outcomeFailed, storageError("commit record", err)
	}
	if !res.Inserted {
		u.discard(ctx, key)
		return nil, outcomeRaceLost, &ConflictError{Existing: res.Record}
	}

	return rec, outcomeCreated, nil
}

// resolveContentType keeps a client-declared type unless it is missing or
// generic, in which case the spooled content is sniffed. Leaves spool
// positioned at the start.
func (u *IngestUseCase) resolveContentType(spool *os.File, declared string) (string, error) {
	if declared != "" && declared != defaultContentType {
		if _, err := spool.Seek(0, io.SeekStart); err != nil {
			return "", err
		}
		return truncateUTF8(declared, entities.MaxContentTypeBytes), nil
	}

	head := make([]byte, sniffLength)
	n, err := spool.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	kind, _ := filetype.Match(head[:n])
	if kind != filetype.Unknown {
		return truncateUTF8(kind.MIME.Value, entities.MaxContentTypeBytes), nil
	}
	return defaultContentType, nil
}

// discard deletes a blob that will not be referenced. Failure only leaves
// an orphan for the sweeper, so it is logged rather than returned.
func (u *IngestUseCase) discard(ctx context.Context, key string) {
	if err := u.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		u.logger.Warn("Failed to delete unreferenced blob",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// contextReader fails reads once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

// spoolWriter remembers its own write failure so it can be told apart
// from a failure of the upload body
type spoolWriter struct {
	w   io.Writer
	err error
}

func (sw *spoolWriter) Write(p []byte) (int, error) {
	n, err := sw.w.Write(p)
	if err != nil {
		sw.err = err
	}
	return n, err
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
