package index

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/leakscan/internal/models"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "bleve"))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func item(id, docID, owner, email, domain string, line int, at time.Time) BulkItem {
	return BulkItem{ID: id, Record: models.ExtractedRecord{
		DocumentID: docID,
		OwnerID:    owner,
		RawLine:    "https://x:" + email + ":pw",
		Email:      email,
		Domain:     domain,
		LineNumber: line,
		UploadedAt: at,
		IndexedAt:  at,
	}}
}

func TestBleveIndex_BulkAndQuery(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	resp, err := idx.Bulk(ctx, []BulkItem{
		item("r1", "d1", "alice", "a@Example.COM", "Example.COM", 1, at),
		item("r2", "d1", "alice", "b@example.com", "example.com", 2, at),
		item("r3", "d1", "alice", "c@sub.example.com", "sub.example.com", 3, at),
		item("r4", "d2", "bob", "d@example.com", "example.com", 1, at.Add(time.Second)),
	})
	if err != nil {
		t.Fatalf("Bulk: %v", err)
	}
	if len(resp.Failures) != 0 {
		t.Fatalf("unexpected failures: %+v", resp.Failures)
	}

	res, err := idx.Query(ctx, Filter{DomainKey: DomainKey("EXAMPLE.com")}, 0, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Total != 3 {
		t.Fatalf("Total = %d, want 3 (subdomain must not match)", res.Total)
	}
	wantIDs := []string{"r1", "r2", "r4"}
	for i, rec := range res.Records {
		if rec.RecordID != wantIDs[i] {
			t.Errorf("record %d id = %q, want %q", i, rec.RecordID, wantIDs[i])
		}
	}
	first := res.Records[0]
	if first.Domain != "Example.COM" || first.Email != "a@Example.COM" || first.LineNumber != 1 {
		t.Errorf("stored fields not round-tripped: %+v", first)
	}
	if !first.UploadedAt.Equal(at) {
		t.Errorf("UploadedAt = %v, want %v", first.UploadedAt, at)
	}

	owned, err := idx.Query(ctx, Filter{DomainKey: "example.com", OwnerID: "bob"}, 0, 10)
	if err != nil {
		t.Fatalf("Query owner: %v", err)
	}
	if owned.Total != 1 || owned.Records[0].RecordID != "r4" {
		t.Errorf("owner filter: %+v", owned)
	}
}

func TestBleveIndex_QueryWindows(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var items []BulkItem
	for i := 1; i <= 25; i++ {
		items = append(items, item(fmt.Sprintf("r%02d", i), "d1", "o", fmt.Sprintf("u%d@foo.com", i), "foo.com", i, at))
	}
	if _, err := idx.Bulk(ctx, items); err != nil {
		t.Fatalf("Bulk: %v", err)
	}

	seen := map[string]bool{}
	for offset := 0; offset < 25; offset += 10 {
		res, err := idx.Query(ctx, Filter{DomainKey: "foo.com"}, offset, 10)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if res.Total != 25 {
			t.Errorf("Total = %d, want 25", res.Total)
		}
		for _, r := range res.Records {
			if seen[r.RecordID] {
				t.Errorf("duplicate record %s across windows", r.RecordID)
			}
			seen[r.RecordID] = true
		}
	}
	if len(seen) != 25 {
		t.Errorf("windows covered %d records, want 25", len(seen))
	}

	past, err := idx.Query(ctx, Filter{DomainKey: "foo.com"}, 100, 10)
	if err != nil {
		t.Fatalf("Query past end: %v", err)
	}
	if len(past.Records) != 0 || past.Total != 25 {
		t.Errorf("past end: %d records, total %d", len(past.Records), past.Total)
	}
}

func TestBleveIndex_DeleteDocument(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	at := time.Now().UTC()

	if _, err := idx.Bulk(ctx, []BulkItem{
		item("r1", "keep", "o", "a@foo.com", "foo.com", 1, at),
		item("r2", "drop", "o", "b@foo.com", "foo.com", 1, at),
		item("r3", "drop", "o", "c@foo.com", "foo.com", 2, at),
	}); err != nil {
		t.Fatalf("Bulk: %v", err)
	}

	n, err := idx.DeleteDocument(ctx, "drop")
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	count, err := idx.DocCount()
	if err != nil {
		t.Fatalf("DocCount: %v", err)
	}
	if count != 1 {
		t.Errorf("DocCount = %d, want 1", count)
	}
}

func TestBleveIndex_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleve")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	if _, err := idx.Bulk(context.Background(), []BulkItem{item("r1", "d", "o", "a@foo.com", "foo.com", 1, time.Now())}); err != nil {
		t.Fatalf("Bulk: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err = NewBleveIndex(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = idx.Close() }()
	count, _ := idx.DocCount()
	if count != 1 {
		t.Errorf("DocCount after reopen = %d, want 1", count)
	}
}

func TestBleveIndex_MemOnly(t *testing.T) {
	idx, err := NewBleveIndex("")
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	defer func() { _ = idx.Close() }()
	res, err := idx.Query(context.Background(), Filter{DomainKey: "none.com"}, 0, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Total != 0 {
		t.Errorf("Total = %d, want 0", res.Total)
	}
}

func TestDomainKey(t *testing.T) {
	if got := DomainKey("  Example.COM "); got != "example.com" {
		t.Errorf("DomainKey = %q", got)
	}
}
