package engine_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragrep/internal/engine"
	"ragrep/internal/store"
)

// fakeGateway produces deterministic vectors from text content, so the
// same text always embeds identically and round-trip searches score 1.0.
type fakeGateway struct {
	model      string
	embedCalls int
	dropOne    bool // violate the positional contract on purpose
}

func (f *fakeGateway) Embed(texts []string) ([][]float32, error) {
	f.embedCalls++
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = fakeVector(t)
	}
	if f.dropOne && len(vecs) > 0 {
		vecs = vecs[:len(vecs)-1]
	}
	return vecs, nil
}

func (f *fakeGateway) EmbedOne(text string) ([]float32, error) {
	return fakeVector(text), nil
}

func (f *fakeGateway) Model() string { return f.model }

func fakeVector(text string) []float32 {
	vec := make([]float32, 4)
	for i := 0; i < len(text); i++ {
		vec[i%4] += float32(text[i]) / 100
	}
	return vec
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, root, rel, content string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func newTestEngine(t *testing.T, root string, gw *fakeGateway, size, overlap int) *engine.Engine {
	t.Helper()
	eng, err := engine.New(engine.Config{
		StorePath:    filepath.Join(root, ".ragrep", "index.db"),
		Gateway:      gw,
		ChunkSize:    size,
		ChunkOverlap: overlap,
		Logger:       quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

var t0 = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func TestIndex_InitialFullRebuild(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", strings.Repeat("a", 50), t0)
	writeFile(t, root, "b.py", strings.Repeat("b", 80), t0)

	gw := &fakeGateway{model: "fake/v1"}
	eng := newTestEngine(t, root, gw, 1000, 200)

	res, err := eng.Index(root, false)
	require.NoError(t, err)

	assert.True(t, res.Indexed)
	assert.True(t, res.FullRebuild)
	assert.Equal(t, "index has not been created yet", res.Reason)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 2, res.IndexedFiles)
	assert.Equal(t, 2, res.Chunks, "one chunk per small file")
	assert.Equal(t, 2, res.ChunksIndexed)
}

func TestIndex_SecondRunIsNoop(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", strings.Repeat("a", 50), t0)
	writeFile(t, root, "b.py", strings.Repeat("b", 80), t0)

	gw := &fakeGateway{model: "fake/v1"}
	eng := newTestEngine(t, root, gw, 1000, 200)

	_, err := eng.Index(root, false)
	require.NoError(t, err)
	callsAfterFirst := gw.embedCalls

	res, err := eng.Index(root, false)
	require.NoError(t, err)

	assert.False(t, res.Indexed)
	assert.Equal(t, "index is current", res.Reason)
	assert.Equal(t, 2, res.Chunks)
	assert.Zero(t, res.ChunksIndexed)
	assert.Equal(t, callsAfterFirst, gw.embedCalls, "no-op must not touch the embedding gateway")
}

func TestIndex_UpdatedFileIsPatchedAlone(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", strings.Repeat("a", 50), t0)
	writeFile(t, root, "b.py", strings.Repeat("b", 80), t0)

	gw := &fakeGateway{model: "fake/v1"}
	eng := newTestEngine(t, root, gw, 1000, 200)
	_, err := eng.Index(root, false)
	require.NoError(t, err)

	writeFile(t, root, "a.py", strings.Repeat("a", 120), t0.Add(time.Second))

	res, err := eng.Index(root, false)
	require.NoError(t, err)

	assert.True(t, res.Indexed)
	assert.False(t, res.FullRebuild)
	assert.Equal(t, "updated files detected", res.Reason)
	assert.Equal(t, []string{"a.py"}, res.UpdatedFiles)
	assert.Empty(t, res.NewFiles)
	assert.Empty(t, res.RemovedFiles)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 1, res.ChunksIndexed)
}

func TestIndex_RemovedFileDropsItsChunks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", strings.Repeat("a", 50), t0)
	// Three chunks: 80 bytes with size 40, overlap 20 → windows
	// [0,40) [20,60) [40,80).
	writeFile(t, root, "b.py", strings.Repeat("b", 80), t0)

	gw := &fakeGateway{model: "fake/v1"}
	eng := newTestEngine(t, root, gw, 40, 20)
	first, err := eng.Index(root, false)
	require.NoError(t, err)
	require.Equal(t, 5, first.Chunks)

	require.NoError(t, os.Remove(filepath.Join(root, "b.py")))

	res, err := eng.Index(root, false)
	require.NoError(t, err)

	assert.Equal(t, "files removed", res.Reason)
	assert.Equal(t, []string{"b.py"}, res.RemovedFiles)
	assert.Equal(t, 2, res.Chunks, "only a.py's chunks remain")
	assert.Zero(t, res.ChunksIndexed)
}

func TestIndex_VanishedRootFailsWithoutTouchingIndex(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "project")
	writeFile(t, root, "a.py", strings.Repeat("a", 50), t0)

	gw := &fakeGateway{model: "fake/v1"}
	eng, err := engine.New(engine.Config{
		StorePath:    filepath.Join(base, "index.db"),
		Gateway:      gw,
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Logger:       quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	first, err := eng.Index(root, false)
	require.NoError(t, err)
	require.Equal(t, 1, first.Chunks)

	// An unmounted volume or moved directory must not read as "every
	// file was removed".
	require.NoError(t, os.RemoveAll(root))

	_, err = eng.Index(root, false)
	require.Error(t, err)

	stats, err := eng.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChunks, "prior index must survive a failed scan")
}

func TestIndex_ForceRebuilds(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", strings.Repeat("a", 50), t0)

	gw := &fakeGateway{model: "fake/v1"}
	eng := newTestEngine(t, root, gw, 1000, 200)
	_, err := eng.Index(root, false)
	require.NoError(t, err)

	res, err := eng.Index(root, true)
	require.NoError(t, err)
	assert.True(t, res.FullRebuild)
	assert.Equal(t, "forced reindex", res.Reason)
	assert.Equal(t, 1, res.ChunksIndexed)
}

func TestIndex_ConfigChangeInvalidatesEverything(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", strings.Repeat("a", 50), t0)

	_, err := newTestEngine(t, root, &fakeGateway{model: "fake/v1"}, 1000, 200).Index(root, false)
	require.NoError(t, err)

	t.Run("model change", func(t *testing.T) {
		res, err := newTestEngine(t, root, &fakeGateway{model: "fake/v2"}, 1000, 200).Index(root, false)
		require.NoError(t, err)
		assert.True(t, res.FullRebuild)
		assert.Equal(t, "embedding model changed", res.Reason)
	})

	t.Run("chunk size change", func(t *testing.T) {
		res, err := newTestEngine(t, root, &fakeGateway{model: "fake/v2"}, 500, 200).Index(root, false)
		require.NoError(t, err)
		assert.True(t, res.FullRebuild)
	})

	t.Run("chunk overlap change", func(t *testing.T) {
		res, err := newTestEngine(t, root, &fakeGateway{model: "fake/v2"}, 500, 100).Index(root, false)
		require.NoError(t, err)
		assert.True(t, res.FullRebuild)
	})
}

func TestIndex_SkipsNonUTF8Files(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.py", "hello world", t0)
	writeFile(t, root, "bad.py", string([]byte{0xff, 0xfe, 0x01, 'x'}), t0)

	gw := &fakeGateway{model: "fake/v1"}
	eng := newTestEngine(t, root, gw, 1000, 200)

	res, err := eng.Index(root, false)
	require.NoError(t, err)
	assert.True(t, res.Indexed)
	assert.Equal(t, 1, res.IndexedFiles)
	assert.Equal(t, 1, res.FilesSkipped)
	assert.Equal(t, 1, res.Chunks)
}

func TestIndex_GatewayCountMismatchFailsWithoutWriting(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", strings.Repeat("a", 50), t0)

	gw := &fakeGateway{model: "fake/v1", dropOne: true}
	eng := newTestEngine(t, root, gw, 1000, 200)

	_, err := eng.Index(root, false)
	require.ErrorIs(t, err, engine.ErrVectorCount)

	stats, err := eng.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.TotalChunks, "nothing may be committed on a contract violation")
}

func TestRecall_RoundTripFindsOwnChunk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "alpha alpha alpha", t0)
	writeFile(t, root, "b.py", "totally different text here", t0)

	gw := &fakeGateway{model: "fake/v1"}
	eng := newTestEngine(t, root, gw, 1000, 200)
	_, err := eng.Index(root, false)
	require.NoError(t, err)

	res, err := eng.Recall("alpha alpha alpha", 2, "", false)
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, "a.py", res.Matches[0].Metadata["source"])
	assert.InDelta(t, 1.0, res.Matches[0].Score, 1e-5)
	assert.Nil(t, res.AutoIndex)
}

func TestRecall_AutoIndexRefreshesFirst(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "needle in a haystack", t0)

	gw := &fakeGateway{model: "fake/v1"}
	eng := newTestEngine(t, root, gw, 1000, 200)

	res, err := eng.Recall("needle in a haystack", 5, root, true)
	require.NoError(t, err)

	require.NotNil(t, res.AutoIndex)
	assert.True(t, res.AutoIndex.Indexed)
	assert.True(t, res.AutoIndex.FullRebuild)
	require.Equal(t, 1, res.Count)
	assert.InDelta(t, 1.0, res.Matches[0].Score, 1e-5)
}

func TestRecall_AutoIndexFallsBackToPersistedRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "persisted root content", t0)

	gw := &fakeGateway{model: "fake/v1"}
	eng := newTestEngine(t, root, gw, 1000, 200)
	_, err := eng.Index(root, false)
	require.NoError(t, err)

	writeFile(t, root, "late.py", "added after the first index", t0.Add(time.Minute))

	// No explicit path: auto-index must reuse the indexed root.
	res, err := eng.Recall("added after the first index", 5, "", true)
	require.NoError(t, err)
	require.NotNil(t, res.AutoIndex)
	assert.Equal(t, []string{"late.py"}, res.AutoIndex.NewFiles)
	assert.Equal(t, "late.py", res.Matches[0].Metadata["source"])
}

func TestEngine_StoreSelfExclusion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "real content", t0)

	gw := &fakeGateway{model: "fake/v1"}
	eng := newTestEngine(t, root, gw, 1000, 200)

	// Index twice: the second run must not see the store's own files
	// under <root>/.ragrep as new.
	_, err := eng.Index(root, false)
	require.NoError(t, err)
	res, err := eng.Index(root, false)
	require.NoError(t, err)
	assert.Equal(t, "index is current", res.Reason)
}

func TestEngine_MemoryStoreBackend(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "ephemeral content", t0)

	eng, err := engine.NewWithStore(store.NewMemoryStore(), engine.Config{
		Gateway:      &fakeGateway{model: "fake/v1"},
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Logger:       quietLogger(),
	})
	require.NoError(t, err)
	defer eng.Close()

	res, err := eng.Index(root, false)
	require.NoError(t, err)
	assert.True(t, res.Indexed)

	stats, err := eng.Stats()
	require.NoError(t, err)
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, 1, stats.TotalChunks)
}

func TestEngine_InvalidChunkConfigRejectedAtConstruction(t *testing.T) {
	_, err := engine.NewWithStore(store.NewMemoryStore(), engine.Config{
		Gateway:      &fakeGateway{model: "fake/v1"},
		ChunkSize:    100,
		ChunkOverlap: 100,
		Logger:       quietLogger(),
	})
	require.Error(t, err)
}
