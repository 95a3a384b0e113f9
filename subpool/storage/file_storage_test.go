package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subpool/subpool/model"
)

func newStore(t *testing.T) *FileStorage {
	t.Helper()
	fs := NewFileStorage(t.TempDir())
	require.NoError(t, fs.Load())
	return fs
}

func TestUpsertInitializesProtection(t *testing.T) {
	fs := newStore(t)
	states := fs.Upsert([]string{"https://a.example/sub", "https://b.example/sub"})

	require.Len(t, states, 2)
	for _, s := range states {
		assert.Equal(t, model.NewSubscriptionProtection, s.Protection)
		assert.Zero(t, s.Score)
	}
	assert.Equal(t, "a.example", states[0].Name)

	// Upserting again must not reset existing state.
	states[0].Protection = 1
	again := fs.Upsert([]string{"https://a.example/sub"})
	assert.Equal(t, 1, again[0].Protection)
}

func TestPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStorage(dir)
	require.NoError(t, fs.Load())

	fs.Upsert([]string{"https://a.example/sub"})
	fs.RecordRun("https://a.example/sub", model.HistoryEntry{
		Timestamp:    time.Now().UTC(),
		TotalNodes:   10,
		ValidNodes:   8,
		AvgLatencyMS: 250,
		FetchOK:      true,
	})
	fs.AppendScoreTransition("https://a.example/sub", 0, 80)
	fs.SetIPGeo("1.2.3.4", GeoInfo{CountryCode: "US", City: "Ashburn"})
	require.NoError(t, fs.Persist())

	reloaded := NewFileStorage(dir)
	require.NoError(t, reloaded.Load())

	assert.Equal(t, 1, reloaded.RunNumber())
	states := reloaded.Subscriptions([]string{"https://a.example/sub"})
	require.Len(t, states, 1)
	require.Len(t, states[0].History, 1)
	assert.Equal(t, 8, states[0].History[0].ValidNodes)
	assert.Equal(t, 1, states[0].SuccessCount)

	geo, ok := reloaded.GetIPGeo("1.2.3.4")
	require.True(t, ok)
	assert.Equal(t, "US", geo.CountryCode)

	// No temp siblings left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestFailedPersistLeavesPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStorage(dir)
	require.NoError(t, fs.Load())
	fs.Upsert([]string{"https://a.example/sub"})
	require.NoError(t, fs.Persist())
	before, err := os.ReadFile(filepath.Join(dir, "subscriptions"))
	require.NoError(t, err)

	// A directory squatting on the temp path makes the second stage fail
	// after the subscriptions file has already been staged.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "score_history.tmp"), 0o755))

	fs.RecordRun("https://a.example/sub", model.HistoryEntry{TotalNodes: 5, FetchOK: true})
	require.Error(t, fs.Persist())

	// Run counter rolled back, previous snapshot untouched, no stray temp.
	assert.Equal(t, 1, fs.RunNumber())
	after, err := os.ReadFile(filepath.Join(dir, "subscriptions"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, err = os.Stat(filepath.Join(dir, "subscriptions.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadToleratesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "subscriptions"), []byte("{not json"), 0o644))

	fs := NewFileStorage(dir)
	require.NoError(t, fs.Load())
	assert.Empty(t, fs.All())
	assert.Zero(t, fs.RunNumber())
}

func TestPruneAbsent(t *testing.T) {
	fs := newStore(t)
	states := fs.Upsert([]string{"https://keep.example/sub", "https://used.example/sub", "https://fresh.example/sub"})
	states[1].UseCount = 2

	removed := fs.PruneAbsent([]string{"https://keep.example/sub"})
	assert.Equal(t, 1, removed)

	// The used one is gone; the never-used one survives its first cycle.
	assert.Empty(t, fs.Subscriptions([]string{"https://used.example/sub"}))
	assert.Len(t, fs.Subscriptions([]string{"https://fresh.example/sub"}), 1)
}

func TestHistoryCap(t *testing.T) {
	fs := newStore(t)
	fs.Upsert([]string{"https://a.example/sub"})
	for i := 0; i < model.HistoryLimit+7; i++ {
		fs.RecordRun("https://a.example/sub", model.HistoryEntry{TotalNodes: i, FetchOK: true})
	}
	states := fs.Subscriptions([]string{"https://a.example/sub"})
	require.Len(t, states[0].History, model.HistoryLimit)
	// Oldest entries dropped, newest kept.
	assert.Equal(t, model.HistoryLimit+6, states[0].History[model.HistoryLimit-1].TotalNodes)
}
