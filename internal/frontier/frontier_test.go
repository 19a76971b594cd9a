package frontier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedEnqueuesOnlyExistingRoots(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "exists")
	require.NoError(t, os.Mkdir(existing, 0o755))

	f, err := Open(filepath.Join(dir, "frontier.json"))
	require.NoError(t, err)

	f.Seed([]string{existing, filepath.Join(dir, "missing")})
	assert.Equal(t, 1, f.Len())
}

func TestSeedIsNoOpWhenQueueAlreadyPopulated(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(filepath.Join(dir, "frontier.json"))
	require.NoError(t, err)

	f.Enqueue("/already/queued")
	f.Seed([]string{dir})
	assert.Equal(t, []string{"/already/queued"}, queueOf(f))
}

func queueOf(f *Frontier) []string {
	var out []string
	for f.Len() > 0 {
		p, _ := f.Dequeue()
		out = append(out, p)
	}
	for _, p := range out {
		f.Enqueue(p)
	}
	return out
}

func TestDequeueIsFIFO(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(filepath.Join(dir, "frontier.json"))
	require.NoError(t, err)

	f.Enqueue("/a", "/b", "/c")
	p1, ok := f.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "/a", p1)

	p2, _ := f.Dequeue()
	assert.Equal(t, "/b", p2)
}

func TestDequeueOnEmptyQueueReturnsNotOK(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(filepath.Join(dir, "frontier.json"))
	require.NoError(t, err)

	_, ok := f.Dequeue()
	assert.False(t, ok)
}

func TestSeenRequiresExactDevInoMatch(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(filepath.Join(dir, "frontier.json"))
	require.NoError(t, err)

	id := DevIno{Device: 1, Inode: 42}
	f.MarkSeen("/docs/a.txt", id)

	assert.True(t, f.Seen("/docs/a.txt", id))
	assert.False(t, f.Seen("/docs/a.txt", DevIno{Device: 1, Inode: 99}), "a changed inode means re-added, not seen")
	assert.False(t, f.Seen("/docs/never-visited.txt", id))
}

func TestSaveAndOpenRoundTripsQueueSeenAndCounters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frontier.json")

	f, err := Open(path)
	require.NoError(t, err)
	f.Enqueue("/a", "/b")
	f.MarkSeen("/visited", DevIno{Device: 1, Inode: 7})
	f.IncFiles()
	f.IncDirs()
	f.RecordError("permission denied: /locked")
	require.NoError(t, f.Save())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())
	assert.True(t, reopened.Seen("/visited", DevIno{Device: 1, Inode: 7}))

	stats := reopened.Stats()
	assert.Equal(t, 1, stats.ProcessedFiles)
	assert.Equal(t, 1, stats.ProcessedDirs)
	assert.Equal(t, 1, stats.ErrorCount)
}

func TestOpenOnMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(filepath.Join(dir, "does-not-exist.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, Stats{}, f.Stats())
}

func TestResetClearsQueueSeenAndCounters(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(filepath.Join(dir, "frontier.json"))
	require.NoError(t, err)

	f.Enqueue("/a")
	f.MarkSeen("/a", DevIno{Device: 1, Inode: 1})
	f.IncFiles()

	f.Reset()
	assert.Equal(t, 0, f.Len())
	assert.False(t, f.Seen("/a", DevIno{Device: 1, Inode: 1}))
	assert.Equal(t, 0, f.Stats().ProcessedFiles)
}
