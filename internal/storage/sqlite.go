package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hyperjump/leakscan/internal/errs"
	"github.com/hyperjump/leakscan/internal/models"
)

const (
	defaultListPageSize = 20
	documentColumns     = `id, original_name, stored_name, size_bytes, owner_id, content_hash, uploaded_at,
		status, line_count, record_count, failed_count, status_message`
)

// SQLiteRegistry implements Registry using SQLite.
type SQLiteRegistry struct {
	db *sql.DB
}

// RegistryOption configures a SQLiteRegistry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	logger *zap.Logger
}

// WithLogger sets the logger that receives migration output.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(o *registryOptions) {
		o.logger = l
	}
}

// NewSQLiteRegistry opens or creates a SQLite database at dbPath and migrates it.
// Parent directories are created if they do not exist.
func NewSQLiteRegistry(ctx context.Context, dbPath string, opts ...RegistryOption) (*SQLiteRegistry, error) {
	o := registryOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := RunMigrations(ctx, db, o.logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &SQLiteRegistry{db: db}, nil
}

// NewRegistryFromDB wraps an already migrated database handle.
func NewRegistryFromDB(db *sql.DB) *SQLiteRegistry {
	return &SQLiteRegistry{db: db}
}

// Register inserts a document.
func (s *SQLiteRegistry) Register(ctx context.Context, doc *models.Document) error {
	if doc.Status == "" {
		doc.Status = models.StatusIndexing
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OriginalName, doc.StoredName, doc.SizeBytes, doc.OwnerID, doc.ContentHash, doc.UploadedAt,
		doc.Status, doc.LineCount, doc.RecordCount, doc.FailedCount, doc.StatusMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to register document: %w", err)
	}
	return nil
}

// Get returns a document by ID.
func (s *SQLiteRegistry) Get(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Newf(errs.KindNotFound, "document not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// List returns documents ordered by upload time, newest first.
func (s *SQLiteRegistry) List(ctx context.Context, q models.ListQuery) (*models.DocumentPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultListPageSize
	}

	where := ""
	var args []any
	if q.OwnerID != "" {
		where = " WHERE owner_id = ?"
		args = append(args, q.OwnerID)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents`+where+`
		 ORDER BY uploaded_at DESC, id ASC LIMIT ? OFFSET ?`,
		append(args, q.PageSize, (q.Page-1)*q.PageSize)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	page := &models.DocumentPage{
		Items:      []*models.Document{},
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: models.TotalPages(int(total), q.PageSize),
	}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		page.Items = append(page.Items, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return page, nil
}

// FindByHash returns the first completely ingested document of owner with hash, or nil.
// Documents left indexing or incomplete hold no records and never count as duplicates.
func (s *SQLiteRegistry) FindByHash(ctx context.Context, ownerID, hash string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE owner_id = ? AND content_hash = ? AND status = ?
		 ORDER BY uploaded_at ASC LIMIT 1`, ownerID, hash, models.StatusComplete)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up content hash: %w", err)
	}
	return doc, nil
}

// Update applies a partial update in a single statement.
func (s *SQLiteRegistry) Update(ctx context.Context, id string, patch models.DocumentPatch) error {
	if patch.Empty() {
		return nil
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET
			status = COALESCE(?, status),
			line_count = COALESCE(?, line_count),
			record_count = COALESCE(?, record_count),
			failed_count = COALESCE(?, failed_count),
			status_message = COALESCE(?, status_message)
		 WHERE id = ?`,
		patch.Status, patch.LineCount, patch.RecordCount, patch.FailedCount, patch.StatusMessage, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return errs.Newf(errs.KindNotFound, "document not found: %s", id)
	}
	return nil
}

// Count returns the number of registered documents.
func (s *SQLiteRegistry) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteRegistry) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (*models.Document, error) {
	var doc models.Document
	err := r.Scan(
		&doc.ID, &doc.OriginalName, &doc.StoredName, &doc.SizeBytes, &doc.OwnerID, &doc.ContentHash, &doc.UploadedAt,
		&doc.Status, &doc.LineCount, &doc.RecordCount, &doc.FailedCount, &doc.StatusMessage,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
