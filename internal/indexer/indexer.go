// Package indexer commits extracted records to the record index in bounded, retried batches.
package indexer

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hyperjump/leakscan/internal/config"
	"github.com/hyperjump/leakscan/internal/errs"
	"github.com/hyperjump/leakscan/internal/index"
	"github.com/hyperjump/leakscan/internal/metrics"
	"github.com/hyperjump/leakscan/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Indexer writes records of one document at a time into a RecordIndex.
type Indexer struct {
	index           index.RecordIndex
	batchSize       int
	concurrency     int
	maxRetries      int
	initialInterval time.Duration
	metrics         *metrics.Metrics
	logger          *zap.Logger // optional; when set, logs debug events
	now             func() time.Time
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (batch committed, retry scheduled).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(ix *Indexer) { ix.logger = l }
}

// WithMetrics records batch outcomes in m.
func WithMetrics(m *metrics.Metrics) IndexerOption {
	return func(ix *Indexer) { ix.metrics = m }
}

// WithClock overrides the time source used for indexed_at.
func WithClock(now func() time.Time) IndexerOption {
	return func(ix *Indexer) { ix.now = now }
}

// NewIndexer creates an indexer over idx with batching and retry settings from cfg.
// Zero settings fall back to one record per batch, one worker and no retries.
func NewIndexer(idx index.RecordIndex, cfg *config.IngestConfig, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		index:           idx,
		batchSize:       max(cfg.BatchSize, 1),
		concurrency:     max(cfg.Concurrency, 1),
		maxRetries:      max(cfg.MaxRetries, 0),
		initialInterval: time.Duration(cfg.RetryInitialIntervalMS) * time.Millisecond,
		logger:          zap.NewNop(),
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Commit drains records into the index for doc. Batches are dispatched while the
// next one is assembled, at most concurrency at a time. A bulk request that keeps
// failing after the configured retries ends the commit with IndexUnavailable.
// If records yields an error, the pending partial batch is dropped, in-flight
// batches are awaited and the error is returned. The result is always non-nil
// and satisfies Indexed == Submitted - Failed.
func (ix *Indexer) Commit(ctx context.Context, doc *models.Document, records iter.Seq2[models.ExtractedRecord, error]) (*models.CommitResult, error) {
	res := &models.CommitResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)

	dispatch := func(items []index.BulkItem) {
		g.Go(func() error {
			start := time.Now()
			resp, err := ix.send(gctx, items)
			if err != nil {
				return err
			}
			failures := itemFailures(items, resp)

			mu.Lock()
			res.Batches++
			res.Submitted += len(items)
			res.Failed += len(failures)
			res.Indexed += len(items) - len(failures)
			res.Failures = append(res.Failures, failures...)
			mu.Unlock()

			ix.metrics.Batch(len(items)-len(failures), len(failures), time.Since(start).Seconds())
			ix.logger.Debug("batch committed",
				zap.String("document_id", doc.ID),
				zap.Int("records", len(items)),
				zap.Int("failed", len(failures)))
			return nil
		})
	}

	var seqErr error
	batch := make([]index.BulkItem, 0, ix.batchSize)
	for rec, err := range records {
		if err != nil {
			seqErr = err
			break
		}
		if gctx.Err() != nil {
			break
		}
		rec.RecordID = uuid.NewString()
		rec.DocumentID = doc.ID
		rec.OwnerID = doc.OwnerID
		rec.UploadedAt = doc.UploadedAt
		rec.IndexedAt = ix.now()
		batch = append(batch, index.BulkItem{ID: rec.RecordID, Record: rec})
		if len(batch) == ix.batchSize {
			dispatch(batch)
			batch = make([]index.BulkItem, 0, ix.batchSize)
		}
	}
	if seqErr == nil && gctx.Err() == nil && len(batch) > 0 {
		dispatch(batch)
	}

	waitErr := g.Wait()
	switch {
	case seqErr != nil:
		return res, seqErr
	case waitErr != nil:
		return res, waitErr
	case ctx.Err() != nil:
		return res, ctx.Err()
	}
	return res, nil
}

// send performs one bulk request with exponential backoff on transport failures.
func (ix *Indexer) send(ctx context.Context, items []index.BulkItem) (*index.BulkResponse, error) {
	var resp *index.BulkResponse
	attempts := 0
	op := func() error {
		attempts++
		r, err := ix.index.Bulk(ctx, items)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		resp = r
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	if ix.initialInterval > 0 {
		eb.InitialInterval = ix.initialInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(ix.maxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		ix.metrics.Retry()
		ix.logger.Warn("bulk request failed, retrying",
			zap.Int("records", len(items)),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Wrap(errs.KindIndexUnavailable,
			fmt.Sprintf("bulk request failed after %d attempts", attempts), err)
	}
	if resp == nil {
		resp = &index.BulkResponse{}
	}
	return resp, nil
}

func itemFailures(items []index.BulkItem, resp *index.BulkResponse) []models.ItemFailure {
	if len(resp.Failures) == 0 {
		return nil
	}
	lines := make(map[string]int, len(items))
	for _, it := range items {
		lines[it.ID] = it.Record.LineNumber
	}
	out := make([]models.ItemFailure, 0, len(resp.Failures))
	for _, f := range resp.Failures {
		out = append(out, models.ItemFailure{RecordID: f.ID, LineNumber: lines[f.ID], Reason: f.Reason})
	}
	return out
}
