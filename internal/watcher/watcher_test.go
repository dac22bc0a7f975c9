package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etlrepo/internal/service"
)

type recordingImporter struct {
	mu    sync.Mutex
	paths []string
	opts  []service.ImportOptions
}

func (r *recordingImporter) ImportFile(ctx context.Context, path string, opts service.ImportOptions, fb service.Feedback) (*service.ImportResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	r.opts = append(r.opts, opts)
	return &service.ImportResult{Saved: 1}, nil
}

func (r *recordingImporter) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func runWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		err := <-errc
		assert.True(t, errors.Is(err, context.Canceled))
	})
	// Give fsnotify time to register the directories
	time.Sleep(50 * time.Millisecond)
}

func TestWatchFileImportsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repo.xml")
	require.NoError(t, os.WriteFile(path, []byte("<repository/>"), 0644))

	imp := &recordingImporter{}
	opts := service.ImportOptions{Overwrite: service.OverwriteAlways, BaseDirectory: "/incoming"}
	results := make(chan *service.ImportResult, 4)
	w := New(imp, opts, path).
		WithDebounce(100 * time.Millisecond).
		OnImport(func(p string, res *service.ImportResult, err error) {
			results <- res
		})
	runWatcher(t, w)

	// Several quick writes collapse into one import
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("<repository></repository>"), 0644))
	}

	select {
	case res := <-results:
		assert.Equal(t, 1, res.Saved)
	case <-time.After(3 * time.Second):
		t.Fatal("no import after the file changed")
	}

	calls := imp.calls()
	require.Len(t, calls, 1)
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	assert.Equal(t, abs, calls[0])
	assert.Equal(t, "/incoming", imp.opts[0].BaseDirectory)
}

func TestWatchDirectoryMatchesXMLFiles(t *testing.T) {
	dir := t.TempDir()
	imp := &recordingImporter{}
	imported := make(chan string, 4)
	w := New(imp, service.ImportOptions{}, dir).
		WithDebounce(20 * time.Millisecond).
		OnImport(func(p string, res *service.ImportResult, err error) {
			imported <- filepath.Base(p)
		})
	runWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "drop.xml"), []byte("<repository/>"), 0644))

	select {
	case name := <-imported:
		assert.Equal(t, "drop.xml", name)
	case <-time.After(3 * time.Second):
		t.Fatal("no import after a file was dropped")
	}
	assert.Len(t, imp.calls(), 1)
}
