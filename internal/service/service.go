// Package service wires hashing, extraction, indexing, search and export into the
// upload, search, export and catalog operations exposed by the server and CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/leakscan/internal/blob"
	"github.com/hyperjump/leakscan/internal/config"
	"github.com/hyperjump/leakscan/internal/contenthash"
	"github.com/hyperjump/leakscan/internal/errs"
	"github.com/hyperjump/leakscan/internal/export"
	"github.com/hyperjump/leakscan/internal/extract"
	"github.com/hyperjump/leakscan/internal/index"
	"github.com/hyperjump/leakscan/internal/indexer"
	"github.com/hyperjump/leakscan/internal/metrics"
	"github.com/hyperjump/leakscan/internal/models"
	"github.com/hyperjump/leakscan/internal/search"
	"github.com/hyperjump/leakscan/internal/storage"
)

// sniffBytes is how much of an upload is inspected for its content type.
const sniffBytes = 3072

// purgeTimeout bounds cleanup of a failed ingest after its context is gone.
const purgeTimeout = 30 * time.Second

// Service is the pipeline facade.
type Service struct {
	registry  storage.Registry
	index     index.RecordIndex
	blobs     blob.Store
	indexer   *indexer.Indexer
	engine    *search.Engine
	extractor *extract.Extractor
	cfg       *config.Config
	metrics   *metrics.Metrics
	logger    *zap.Logger
	spoolDir  string
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for ingest events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records uploads, batches, searches and exports in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the upload timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSpoolDir sets where uploads are buffered while they are hashed and validated.
func WithSpoolDir(dir string) Option {
	return func(s *Service) { s.spoolDir = dir }
}

// New builds a Service over the shared registry, index and blob store.
func New(registry storage.Registry, idx index.RecordIndex, blobs blob.Store, cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		index:    idx,
		blobs:    blobs,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.extractor = extract.NewExtractor(cfg.Ingest.MaxLineBytes)
	s.indexer = indexer.NewIndexer(idx, &cfg.Ingest,
		indexer.WithLogger(s.logger), indexer.WithMetrics(s.metrics), indexer.WithClock(s.now))
	s.engine = search.NewEngine(idx, &cfg.Search, s.metrics)
	return s
}

// Upload ingests one dump for ownerID. The content is spooled and hashed, checked
// to be plain text and valid UTF-8, de-duplicated per owner, archived, registered
// and committed to the index. Some records failing to index is reported through
// UploadResult.Partial, not as an error. A commit that cannot reach the index, or
// is cancelled, purges the records already written and marks the document incomplete.
func (s *Service) Upload(ctx context.Context, r io.Reader, originalName, ownerID string) (*models.UploadResult, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, errs.New(errs.KindInvalidArgument, "owner id is required")
	}

	spool, err := os.CreateTemp(s.spoolDir, "leakscan-upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	h := contenthash.New()
	if _, err := io.Copy(io.MultiWriter(spool, h), r); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	size := h.Size()

	if err := rewind(spool); err != nil {
		return nil, err
	}
	if err := checkPlainText(spool, originalName, size); err != nil {
		s.metrics.Upload("rejected")
		return nil, err
	}

	if err := rewind(spool); err != nil {
		return nil, err
	}
	lines, err := s.extractor.Validate(ctx, spool)
	if err != nil {
		s.metrics.Upload("rejected")
		return nil, err
	}

	hash := h.Sum()
	if s.cfg.Ingest.DuplicatePolicy != config.DuplicateAllow {
		existing, err := s.registry.FindByHash(ctx, ownerID, hash)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.metrics.Upload("duplicate")
			if s.cfg.Ingest.DuplicatePolicy == config.DuplicateReject {
				return nil, errs.Newf(errs.KindDuplicateContent, "content already uploaded as document %s", existing.ID)
			}
			s.logger.Info("duplicate upload skipped",
				zap.String("document_id", existing.ID), zap.String("owner_id", ownerID))
			return &models.UploadResult{Document: existing, Duplicate: true}, nil
		}
	}

	now := s.now()
	doc := &models.Document{
		ID:           uuid.NewString(),
		OriginalName: originalName,
		StoredName:   blob.StoredName(now, originalName),
		SizeBytes:    size,
		OwnerID:      ownerID,
		ContentHash:  hash,
		UploadedAt:   now,
		Status:       models.StatusIndexing,
		LineCount:    int64(lines),
	}

	if err := rewind(spool); err != nil {
		return nil, err
	}
	if err := s.blobs.Put(ctx, doc.StoredName, spool, size); err != nil {
		s.metrics.Upload("failed")
		return nil, fmt.Errorf("failed to archive dump: %w", err)
	}
	if err := s.registry.Register(ctx, doc); err != nil {
		_ = s.blobs.Delete(context.WithoutCancel(ctx), doc.StoredName)
		s.metrics.Upload("failed")
		return nil, err
	}

	if err := rewind(spool); err != nil {
		return nil, err
	}
	commit, err := s.indexer.Commit(ctx, doc, s.extractor.Records(ctx, spool))
	if err != nil {
		s.metrics.Upload("failed")
		s.abandon(ctx, doc, commit, err)
		return nil, err
	}

	status := models.StatusComplete
	msg := ""
	if commit.Failed > 0 {
		msg = errs.Message(commit.Err())
	}
	recordCount, failedCount := int64(commit.Indexed), int64(commit.Failed)
	if err := s.registry.Update(ctx, doc.ID, models.DocumentPatch{
		Status:        &status,
		RecordCount:   &recordCount,
		FailedCount:   &failedCount,
		StatusMessage: &msg,
	}); err != nil {
		return nil, err
	}
	doc.Status, doc.RecordCount, doc.FailedCount, doc.StatusMessage = status, recordCount, failedCount, msg

	result := &models.UploadResult{Document: doc, Commit: commit, Partial: commit.Failed > 0}
	if result.Partial {
		s.metrics.Upload("partial")
	} else {
		s.metrics.Upload("complete")
	}
	s.logger.Info("dump ingested",
		zap.String("document_id", doc.ID),
		zap.String("name", originalName),
		zap.Int64("lines", doc.LineCount),
		zap.Int("indexed", commit.Indexed),
		zap.Int("failed", commit.Failed))
	return result, nil
}

// abandon purges whatever a failed commit wrote and marks the document incomplete.
func (s *Service) abandon(ctx context.Context, doc *models.Document, commit *models.CommitResult, cause error) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), purgeTimeout)
	defer cancel()

	removed, err := s.index.DeleteDocument(cleanupCtx, doc.ID)
	if err != nil {
		s.logger.Error("failed to purge records of abandoned document",
			zap.String("document_id", doc.ID), zap.Error(err))
	}

	status := models.StatusIncomplete
	msg := errs.Message(cause)
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		msg = "ingest cancelled: " + cause.Error()
	}
	zero := int64(0)
	failed := int64(0)
	if commit != nil {
		failed = int64(commit.Failed)
	}
	if err := s.registry.Update(cleanupCtx, doc.ID, models.DocumentPatch{
		Status:        &status,
		RecordCount:   &zero,
		FailedCount:   &failed,
		StatusMessage: &msg,
	}); err != nil {
		s.logger.Error("failed to mark document incomplete",
			zap.String("document_id", doc.ID), zap.Error(err))
	}
	doc.Status, doc.RecordCount, doc.FailedCount, doc.StatusMessage = status, zero, failed, msg

	s.logger.Warn("ingest abandoned",
		zap.String("document_id", doc.ID),
		zap.Int("purged", removed),
		zap.Error(cause))
}

// IngestFile uploads the file at path under its base name.
func (s *Service) IngestFile(ctx context.Context, path, ownerID string) (*models.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return s.Upload(ctx, f, filepath.Base(path), ownerID)
}

// Search returns one page of records for a domain.
func (s *Service) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchPage, error) {
	return s.engine.Search(ctx, q)
}

// NewQuery returns a query for domain with the configured default paging.
func (s *Service) NewQuery(domain string) *models.SearchQuery {
	return &models.SearchQuery{Domain: domain, Page: 1, PageSize: s.cfg.Search.DefaultPageSize}
}

// Export encodes every record for a domain, up to the configured export limit.
func (s *Service) Export(ctx context.Context, req models.ExportRequest) (*models.ExportResult, error) {
	format, err := models.ParseExportFormat(req.Format)
	if err != nil {
		return nil, err
	}
	rows, total, truncated, err := s.engine.Collect(ctx, req.Domain, req.OwnerID, s.cfg.Search.ExportLimit)
	if err != nil {
		return nil, err
	}
	data, err := export.Encode(format, rows)
	if err != nil {
		return nil, err
	}
	s.metrics.Export(string(format))
	if truncated {
		s.logger.Warn("export truncated",
			zap.String("domain", req.Domain), zap.Int("rows", len(rows)), zap.Int("total", total))
	}
	return &models.ExportResult{
		Data:      data,
		Format:    format,
		FileName:  export.FileName(strings.TrimSpace(req.Domain), format, s.now()),
		Rows:      len(rows),
		Total:     total,
		Truncated: truncated,
	}, nil
}

// ListDocuments returns one page of the catalog, newest first.
func (s *Service) ListDocuments(ctx context.Context, q models.ListQuery) (*models.DocumentPage, error) {
	if q.PageSize > s.cfg.Search.MaxPageSize {
		q.PageSize = s.cfg.Search.MaxPageSize
	}
	return s.registry.List(ctx, q)
}

// GetDocument returns one document or a NotFound error.
func (s *Service) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return s.registry.Get(ctx, id)
}

// Status reports document and record counts, disk usage of local storage paths
// and the storage configuration.
func (s *Service) Status(ctx context.Context) (*models.StatusReport, error) {
	docs, err := s.registry.Count(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	paths := append(storage.DatabaseFiles(s.cfg.Storage.DatabasePath), s.cfg.Storage.BleveIndexPath)
	backend := "minio"
	if !s.cfg.Storage.MinIO.Enabled() {
		backend = "local"
		paths = append(paths, s.cfg.Storage.UploadDir)
	}
	usage, err := storage.DiskUsageBytes(paths...)
	if err != nil {
		s.logger.Warn("failed to compute disk usage", zap.Error(err))
	}
	return &models.StatusReport{
		Documents:      docs,
		Records:        records,
		DiskUsageBytes: usage,
		Config: &models.StatusConfig{
			BlobBackend:     backend,
			DatabasePath:    s.cfg.Storage.DatabasePath,
			BleveIndexPath:  s.cfg.Storage.BleveIndexPath,
			BatchSize:       s.cfg.Ingest.BatchSize,
			DuplicatePolicy: s.cfg.Ingest.DuplicatePolicy,
			ExportLimit:     s.cfg.Search.ExportLimit,
		},
	}, nil
}

func rewind(f *os.File) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind spool file: %w", err)
	}
	return nil
}

// checkPlainText accepts content that sniffs as text/plain or one of its subtypes.
// Content the sniffer cannot classify is accepted when the name ends in .txt and
// left for UTF-8 validation to judge.
func checkPlainText(r io.Reader, name string, size int64) error {
	if size == 0 {
		return nil
	}
	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read upload head: %w", err)
	}
	mt := mimetype.Detect(head[:n])
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return nil
		}
	}
	if mt.Is("application/octet-stream") && strings.EqualFold(filepath.Ext(name), ".txt") {
		return nil
	}
	return errs.Newf(errs.KindUnsupportedFileType, "only plain text dumps are accepted, got %s", mt.String())
}
