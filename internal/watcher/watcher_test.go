package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/leakscan/internal/errs"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recorder) ingest(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return r.err
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func (r *recorder) has(suffix string) bool {
	for _, p := range r.seen() {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T, roots []string, rec *recorder) *Watcher {
	t.Helper()
	w := NewWatcher(roots, []string{".txt"}, true, rec.ingest, WithDebounce(50*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, nil, &recorder{})

	require.NoError(t, w.AddDirectory(dir, false))
	require.NoError(t, w.AddDirectory(dir, false))
	dirs := w.Directories()
	require.Len(t, dirs, 1)
	assert.Equal(t, filepath.Clean(dir), dirs[0])

	require.NoError(t, w.RemoveDirectory(dir))
	assert.Empty(t, w.Directories())
}

func TestWatcher_AddDirectoryBeforeStart(t *testing.T) {
	w := NewWatcher(nil, nil, true, nil)
	assert.Error(t, w.AddDirectory(t.TempDir(), false))
}

func TestWatcher_IngestsDroppedDump(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec)

	require.NoError(t, writeFile(filepath.Join(dir, "combo.txt"), "a@foo.com:pw\n"))
	require.NoError(t, writeFile(filepath.Join(dir, "notes.md"), "b@foo.com"))

	assert.Eventually(t, func() bool { return rec.has("combo.txt") }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.False(t, rec.has("notes.md"), "extension filter should skip notes.md")
}

func TestWatcher_DebouncesRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".txt"}, true, rec.ingest, WithDebounce(200*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	path := filepath.Join(dir, "growing.txt")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.WriteString("x@foo.com:pw\n")
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	assert.Eventually(t, func() bool { return rec.has("growing.txt") }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, rec.seen(), 1)
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec)

	nested := filepath.Join(dir, "level1", "level2")
	require.NoError(t, os.MkdirAll(nested, 0755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, writeFile(filepath.Join(nested, "deep.txt"), "deep@bar.org"))

	assert.Eventually(t, func() bool { return rec.has("deep.txt") }, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(filepath.Join(dir, "a.txt"), "a@foo.com"))
	require.NoError(t, writeFile(filepath.Join(dir, "ignore.xyz"), "x"))

	rec := &recorder{}
	w := startWatcher(t, []string{dir}, rec)
	w.SyncExistingFiles()

	assert.Eventually(t, func() bool { return rec.has("a.txt") }, 3*time.Second, 20*time.Millisecond)
	assert.False(t, rec.has("ignore.xyz"))
}

func TestWatcher_IngestErrorsDoNotStopWorker(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{err: errs.New(errs.KindUnsupportedFileType, "binary")}
	startWatcher(t, []string{dir}, rec)

	require.NoError(t, writeFile(filepath.Join(dir, "one.txt"), "\x00\x01"))
	assert.Eventually(t, func() bool { return rec.has("one.txt") }, 3*time.Second, 20*time.Millisecond)

	rec.mu.Lock()
	rec.err = errors.New("disk full")
	rec.mu.Unlock()
	require.NoError(t, writeFile(filepath.Join(dir, "two.txt"), "b@foo.com"))
	assert.Eventually(t, func() bool { return rec.has("two.txt") }, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	startWatcher(t, []string{root}, &recorder{})

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{".txt"}, false},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
