package index

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/leakscan/internal/models"
)

const (
	recordType = "record"
	// deleteWindow is how many hits DeleteDocument removes per batch.
	deleteWindow = 5000
)

var sortOrder = []string{"indexed_at", "line", "_id"}

// recordDoc is the shape stored in bleve for one ExtractedRecord.
type recordDoc struct {
	DocumentID string    `json:"document_id"`
	OwnerID    string    `json:"owner_id"`
	Content    string    `json:"content"`
	Email      string    `json:"email"`
	Domain     string    `json:"domain"`
	DomainKey  string    `json:"domain_key"`
	Line       int       `json:"line"`
	UploadedAt time.Time `json:"uploaded_at"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// Type routes every record to the record mapping.
func (recordDoc) Type() string { return recordType }

// BleveIndex implements RecordIndex on a local bleve index.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a bleve index at path. An empty path gives an
// in-memory index. Changing the mapping requires removing the index directory.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := newRecordMapping()

	if path == "" {
		idx, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory index: %w", err)
		}
		return &BleveIndex{index: idx}, nil
	}

	if _, err := os.Stat(path); err == nil {
		idx, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: idx}, nil
	}

	idx, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: idx}, nil
}

func newRecordMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	doc := bleve.NewDocumentStaticMapping()

	kw := bleve.NewKeywordFieldMapping()
	kw.Analyzer = keyword.Name
	for _, f := range []string{"domain_key", "owner_id", "document_id"} {
		doc.AddFieldMappingsAt(f, kw)
	}

	// Stored for retrieval only.
	stored := bleve.NewTextFieldMapping()
	stored.Index = false
	stored.IncludeInAll = false
	stored.IncludeTermVectors = false
	for _, f := range []string{"content", "email", "domain"} {
		doc.AddFieldMappingsAt(f, stored)
	}

	doc.AddFieldMappingsAt("line", bleve.NewNumericFieldMapping())
	doc.AddFieldMappingsAt("uploaded_at", bleve.NewDateTimeFieldMapping())
	doc.AddFieldMappingsAt("indexed_at", bleve.NewDateTimeFieldMapping())

	im.AddDocumentMapping(recordType, doc)
	im.DefaultType = recordType
	im.DefaultMapping = doc
	return im
}

// Bulk indexes items in a single bleve batch.
func (b *BleveIndex) Bulk(ctx context.Context, items []BulkItem) (*BulkResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := &BulkResponse{}
	batch := b.index.NewBatch()
	for _, it := range items {
		if err := batch.Index(it.ID, toDoc(it.Record)); err != nil {
			resp.Failures = append(resp.Failures, ItemError{ID: it.ID, Reason: err.Error()})
		}
	}
	if batch.Size() == 0 {
		return resp, nil
	}
	if err := b.index.Batch(batch); err != nil {
		return nil, fmt.Errorf("bleve batch: %w", err)
	}
	return resp, nil
}

// Query runs a conjunction of term filters and returns one sorted window.
func (b *BleveIndex) Query(ctx context.Context, f Filter, offset, limit int) (*QueryResult, error) {
	req := bleve.NewSearchRequestOptions(buildQuery(f), limit, offset, false)
	req.SortBy(sortOrder)
	req.Fields = []string{"document_id", "owner_id", "content", "email", "domain", "line", "uploaded_at", "indexed_at"}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}
	out := &QueryResult{
		Records: make([]models.ExtractedRecord, 0, len(res.Hits)),
		Total:   int(res.Total),
	}
	for _, hit := range res.Hits {
		out.Records = append(out.Records, fromFields(hit.ID, hit.Fields))
	}
	return out, nil
}

// DeleteDocument removes all records whose document_id matches.
func (b *BleveIndex) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	q := bleve.NewTermQuery(documentID)
	q.SetField("document_id")

	removed := 0
	for {
		req := bleve.NewSearchRequestOptions(q, deleteWindow, 0, false)
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return removed, fmt.Errorf("bleve search failed: %w", err)
		}
		if len(res.Hits) == 0 {
			return removed, nil
		}
		batch := b.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return removed, fmt.Errorf("bleve delete batch: %w", err)
		}
		removed += len(res.Hits)
	}
}

// DocCount returns the number of records in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func buildQuery(f Filter) blevequery.Query {
	var terms []blevequery.Query
	add := func(field, value string) {
		if value == "" {
			return
		}
		tq := bleve.NewTermQuery(value)
		tq.SetField(field)
		terms = append(terms, tq)
	}
	add("domain_key", f.DomainKey)
	add("owner_id", f.OwnerID)
	add("document_id", f.DocumentID)
	if len(terms) == 0 {
		return bleve.NewMatchAllQuery()
	}
	return bleve.NewConjunctionQuery(terms...)
}

func toDoc(r models.ExtractedRecord) recordDoc {
	return recordDoc{
		DocumentID: r.DocumentID,
		OwnerID:    r.OwnerID,
		Content:    r.RawLine,
		Email:      r.Email,
		Domain:     r.Domain,
		DomainKey:  DomainKey(r.Domain),
		Line:       r.LineNumber,
		UploadedAt: r.UploadedAt,
		IndexedAt:  r.IndexedAt,
	}
}

func fromFields(id string, fields map[string]interface{}) models.ExtractedRecord {
	str := func(k string) string {
		s, _ := fields[k].(string)
		return s
	}
	ts := func(k string) time.Time {
		t, _ := time.Parse(time.RFC3339Nano, str(k))
		return t
	}
	line, _ := fields["line"].(float64)
	return models.ExtractedRecord{
		RecordID:   id,
		DocumentID: str("document_id"),
		OwnerID:    str("owner_id"),
		RawLine:    str("content"),
		Email:      str("email"),
		Domain:     str("domain"),
		LineNumber: int(line),
		UploadedAt: ts("uploaded_at"),
		IndexedAt:  ts("indexed_at"),
	}
}
