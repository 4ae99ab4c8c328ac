package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()

	f1 := filepath.Join(dir, "dump.txt")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := DiskUsageBytes(f1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("single file: got %d bytes, want 5", got)
	}

	sub := filepath.Join(dir, "uploads", "nested")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "uploads", "b"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}
	uploads := filepath.Join(dir, "uploads")
	got, err = DiskUsageBytes(uploads)
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Errorf("dir: got %d bytes, want 3", got)
	}

	got, err = DiskUsageBytes("", f1, filepath.Join(dir, "nonexistent"), uploads)
	if err != nil {
		t.Fatal(err)
	}
	if got != 8 {
		t.Errorf("mixed paths: got %d bytes, want 8", got)
	}
}

func TestDatabaseFiles(t *testing.T) {
	files := DatabaseFiles("/data/documents.db")
	if len(files) != 3 || files[1] != "/data/documents.db-wal" {
		t.Errorf("DatabaseFiles = %v", files)
	}
}
