// Package storage persists document metadata and reports disk usage of storage paths.
package storage

import (
	"context"

	"github.com/hyperjump/leakscan/internal/models"
)

// Registry is the catalog of uploaded documents.
type Registry interface {
	// Register inserts a new document. The document's content fields never change afterwards.
	Register(ctx context.Context, doc *models.Document) error
	// Get returns a document by id, or a NotFound error.
	Get(ctx context.Context, id string) (*models.Document, error)
	// List returns one page of documents, newest first.
	List(ctx context.Context, q models.ListQuery) (*models.DocumentPage, error)
	// FindByHash returns the oldest complete document of owner with the given content hash, or nil when none exists.
	FindByHash(ctx context.Context, ownerID, hash string) (*models.Document, error)
	// Update applies the non-nil fields of patch, or returns a NotFound error.
	Update(ctx context.Context, id string, patch models.DocumentPatch) error
	Count(ctx context.Context) (int64, error)
	Close() error
}
