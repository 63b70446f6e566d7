package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignatij/goclassify/internal/watch"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func startWatcher(t *testing.T, dir string, handle watch.Handler) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	w := watch.New(dir, func(path string) bool { return strings.HasSuffix(path, ".json") }, handle,
		watch.WithDebounce(20*time.Millisecond), watch.WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	// Give the watcher time to register its directories.
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_HandlesNewAndChangedFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.json")
	require.NoError(t, os.WriteFile(existing, []byte(`[]`), 0o644))

	rec := &recorder{}
	startWatcher(t, dir, rec.handle)

	first := filepath.Join(dir, "first.json")
	require.NoError(t, os.WriteFile(first, []byte(`[{"id": 1}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))
	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{first}, rec.seen())

	// Same content again is not handled twice.
	require.NoError(t, os.WriteFile(first, []byte(`[{"id": 1}]`), 0o644))
	time.Sleep(150 * time.Millisecond)
	assert.Len(t, rec.seen(), 1)

	require.NoError(t, os.WriteFile(first, []byte(`[{"id": 2}]`), 0o644))
	require.Eventually(t, func() bool { return len(rec.seen()) == 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, rec.handle)

	sub := filepath.Join(dir, "2024")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond)
	nested := filepath.Join(sub, "batch.json")
	require.NoError(t, os.WriteFile(nested, []byte(`[]`), 0o644))

	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{nested}, rec.seen())
}
