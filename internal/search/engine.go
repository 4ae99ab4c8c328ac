// Package search serves paged, exact-domain queries over the record index.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/leakscan/internal/config"
	"github.com/hyperjump/leakscan/internal/index"
	"github.com/hyperjump/leakscan/internal/metrics"
	"github.com/hyperjump/leakscan/internal/models"
)

// collectWindow is how many rows Collect fetches per index query.
const collectWindow = 1000

// Engine runs domain searches.
type Engine struct {
	index   index.RecordIndex
	config  *config.SearchConfig
	metrics *metrics.Metrics
}

// NewEngine creates a search engine over idx. m may be nil.
func NewEngine(idx index.RecordIndex, cfg *config.SearchConfig, m *metrics.Metrics) *Engine {
	return &Engine{index: idx, config: cfg, metrics: m}
}

// Search returns one page of records whose domain equals query.Domain, ignoring case.
// Page < 1, PageSize <= 0 or an empty domain are InvalidArgument; PageSize above
// the configured maximum is clamped and the page reports the size used.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchPage, error) {
	startTime := time.Now()
	if err := query.Validate(e.config.MaxPageSize); err != nil {
		return nil, err
	}

	res, err := e.index.Query(ctx, filterFor(query.Domain, query.OwnerID), query.Offset(), query.PageSize)
	if err != nil {
		return nil, fmt.Errorf("domain search failed: %w", err)
	}
	e.metrics.Search()

	return &models.SearchPage{
		Items:      toRows(res.Records),
		Total:      res.Total,
		Page:       query.Page,
		PageSize:   query.PageSize,
		TotalPages: models.TotalPages(res.Total, query.PageSize),
		QueryTime:  time.Since(startTime).Milliseconds(),
		Domain:     query.Domain,
	}, nil
}

// Collect returns up to limit rows for domain in search order, the true match
// count, and whether the count exceeded limit.
func (e *Engine) Collect(ctx context.Context, domain, ownerID string, limit int) ([]models.ResultRow, int, bool, error) {
	probe := &models.SearchQuery{Domain: domain, Page: 1, PageSize: max(limit, 1)}
	if err := probe.Validate(0); err != nil {
		return nil, 0, false, err
	}
	f := filterFor(probe.Domain, ownerID)

	var rows []models.ResultRow
	total := 0
	for offset := 0; offset < limit; {
		size := min(collectWindow, limit-offset)
		res, err := e.index.Query(ctx, f, offset, size)
		if err != nil {
			return nil, 0, false, fmt.Errorf("domain export query failed: %w", err)
		}
		total = res.Total
		rows = append(rows, toRows(res.Records)...)
		offset += len(res.Records)
		if len(res.Records) < size || offset >= total {
			break
		}
	}
	if limit <= 0 {
		res, err := e.index.Query(ctx, f, 0, 0)
		if err != nil {
			return nil, 0, false, fmt.Errorf("domain export query failed: %w", err)
		}
		total = res.Total
	}
	if rows == nil {
		rows = []models.ResultRow{}
	}
	return rows, total, total > len(rows), nil
}

func filterFor(domain, ownerID string) index.Filter {
	return index.Filter{DomainKey: index.DomainKey(domain), OwnerID: ownerID}
}

func toRows(records []models.ExtractedRecord) []models.ResultRow {
	rows := make([]models.ResultRow, len(records))
	for i, r := range records {
		rows[i] = models.ResultRow{
			Content:    r.RawLine,
			Email:      r.Email,
			Domain:     r.Domain,
			UploadedAt: r.UploadedAt,
		}
	}
	return rows
}
