package phase

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSettle = 80 * time.Millisecond

func waitChanges(t *testing.T, w *Watcher, n int) []Change {
	t.Helper()
	var got []Change
	require.Eventually(t, func() bool {
		got = append(got, w.Poll()...)
		return len(got) >= n
	}, 3*time.Second, 10*time.Millisecond)
	return got
}

func newTestWatcher(t *testing.T) (w *Watcher, stageFile, scripts string) {
	t.Helper()
	dir := t.TempDir()
	stageFile = filepath.Join(dir, "show.yaml")
	scripts = filepath.Join(dir, "scripts")
	require.NoError(t, os.WriteFile(stageFile, []byte("entities: []\n"), 0o644))
	require.NoError(t, os.Mkdir(scripts, 0o755))

	w, err := newWatcher(testSettle, stageFile, scripts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, stageFile, scripts
}

func TestWatcherReportsSettledContent(t *testing.T) {
	w, stageFile, _ := newTestWatcher(t)

	// Truncate-then-write save, as most editors do it.
	require.NoError(t, os.WriteFile(stageFile, nil, 0o644))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(stageFile, []byte("entities: [final]\n"), 0o644))

	got := waitChanges(t, w, 1)
	require.Len(t, got, 1)
	assert.Equal(t, filepath.Clean(stageFile), got[0].Path)
	require.NoError(t, got[0].Err)
	assert.Equal(t, "entities: [final]\n", string(got[0].Data))

	time.Sleep(3 * testSettle)
	assert.Empty(t, w.Poll(), "one save is one change")
}

func TestWatcherFiltersFiles(t *testing.T) {
	w, stageFile, scripts := newTestWatcher(t)
	dir := filepath.Dir(stageFile)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.tengo"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "loud.tengo"), []byte("result := true"), 0o644))

	got := waitChanges(t, w, 1)
	time.Sleep(3 * testSettle)
	got = append(got, w.Poll()...)

	require.Len(t, got, 1)
	assert.Equal(t, filepath.Join(scripts, "loud.tengo"), got[0].Path)
	assert.Equal(t, "result := true", string(got[0].Data))
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, _, _ := newTestWatcher(t)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
	assert.Empty(t, w.Poll())
}
