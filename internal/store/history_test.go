package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testforge/internal/shards/tester"
	"testforge/internal/types"
)

func newTestHistory(t *testing.T) *HistoryStore {
	t.Helper()
	s, err := NewHistoryStore(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func run(id, module string, at time.Time, score float64) RunRecord {
	return RunRecord{
		ID:             id,
		Module:         module,
		StartedAt:      at,
		DurationMs:     1500,
		Total:          4,
		Passed:         3,
		Failed:         1,
		Score:          score,
		FeedbackSource: types.SourceCalculated,
		ArtifactOrigin: types.OriginFallback,
		Model:          "gemini-2.0-flash-exp",
	}
}

func TestHistoryStore_RecordAndRecent(t *testing.T) {
	s := newTestHistory(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(run("r1", "calc", base, 2.5)))
	require.NoError(t, s.Record(run("r2", "strings", base.Add(time.Minute), 5)))
	require.NoError(t, s.Record(run("r3", "calc", base.Add(2*time.Minute), 3.75)))

	recent, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "r3", recent[0].ID)
	assert.Equal(t, "r2", recent[1].ID)

	got := recent[0]
	assert.Equal(t, "calc", got.Module)
	assert.True(t, got.StartedAt.Equal(base.Add(2*time.Minute)))
	assert.Equal(t, int64(1500), got.DurationMs)
	assert.Equal(t, [4]int{4, 3, 1, 0}, [4]int{got.Total, got.Passed, got.Failed, got.Errors})
	assert.InDelta(t, 3.75, got.Score, 1e-9)
	assert.Equal(t, types.SourceCalculated, got.FeedbackSource)
	assert.Equal(t, types.OriginFallback, got.ArtifactOrigin)
	assert.Equal(t, "gemini-2.0-flash-exp", got.Model)

	all, err := s.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHistoryStore_RecordReplaces(t *testing.T) {
	s := newTestHistory(t)
	at := time.Now()

	require.NoError(t, s.Record(run("r1", "calc", at, 1)))
	require.NoError(t, s.Record(run("r1", "calc", at, 4)))

	runs, err := s.ByModule("calc", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.InDelta(t, 4.0, runs[0].Score, 1e-9)
}

func TestHistoryStore_RecordRequiresID(t *testing.T) {
	s := newTestHistory(t)
	assert.Error(t, s.Record(RunRecord{Module: "calc"}))
}

func TestHistoryStore_ModuleTrend(t *testing.T) {
	s := newTestHistory(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, score := range []float64{1.25, 4.5, 3} {
		require.NoError(t, s.Record(run(string(rune('a'+i)), "calc", base.Add(time.Duration(i)*time.Hour), score)))
	}
	require.NoError(t, s.Record(run("other", "strings", base, 5)))

	trend, err := s.ModuleTrend("calc")
	require.NoError(t, err)
	assert.Equal(t, 3, trend.Runs)
	assert.Equal(t, []float64{1.25, 4.5, 3}, trend.Scores)
	assert.InDelta(t, 1.25, trend.FirstScore, 1e-9)
	assert.InDelta(t, 3.0, trend.LastScore, 1e-9)
	assert.InDelta(t, 4.5, trend.BestScore, 1e-9)
	assert.InDelta(t, 2.9166, trend.MeanScore, 1e-3)
	assert.InDelta(t, 1.75, trend.Delta(), 1e-9)

	empty, err := s.ModuleTrend("missing")
	require.NoError(t, err)
	assert.Equal(t, Trend{Module: "missing"}, empty)
}

func TestHistoryStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := NewHistoryStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(run("r1", "calc", time.Now(), 5)))
	require.NoError(t, s.Close())

	s, err = NewHistoryStore(path)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.Recent(5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, path, s.Path())
}

func TestRunMigrations_UpgradesV1Database(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE runs (
		id TEXT PRIMARY KEY, module TEXT NOT NULL, started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL, total INTEGER NOT NULL, passed INTEGER NOT NULL,
		failed INTEGER NOT NULL, errors INTEGER NOT NULL, score REAL NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO runs VALUES ('old', 'calc', ?, 10, 2, 2, 0, 0, 5.0)`, time.Now().UTC())
	require.NoError(t, err)

	v, err := SchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	require.NoError(t, db.Close())

	s, err := NewHistoryStore(path)
	require.NoError(t, err)
	defer s.Close()

	for _, col := range []string{"feedback_source", "artifact_origin", "model"} {
		assert.True(t, columnExists(s.db, "runs", col), col)
	}
	v, err = SchemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)

	runs, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.FeedbackSource(""), runs[0].FeedbackSource)
	assert.InDelta(t, 5.0, runs[0].Score, 1e-9)
}

func TestRecordFromResult(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	res := &tester.Result{
		RunID:     "abc",
		Module:    "calc",
		StartedAt: started,
		Stats:     types.NewRunStatistics(10, 8, 1, 1),
		Feedback:  &types.FeedbackRecord{Score: 4, Source: types.SourceLLM},
		Artifact:  &types.GeneratedArtifact{Origin: types.OriginLLM},
		Durations: tester.StageDurations{Total: 2500 * time.Millisecond},
	}

	assert.Equal(t, RunRecord{
		ID:             "abc",
		Module:         "calc",
		StartedAt:      started,
		DurationMs:     2500,
		Total:          10,
		Passed:         8,
		Failed:         1,
		Errors:         1,
		Score:          4,
		FeedbackSource: types.SourceLLM,
		ArtifactOrigin: types.OriginLLM,
		Model:          "gpt-4o",
	}, RecordFromResult(res, "gpt-4o"))

	bare := RecordFromResult(&tester.Result{RunID: "x", Module: "m"}, "")
	assert.Equal(t, types.FeedbackSource(""), bare.FeedbackSource)
	assert.Zero(t, bare.Score)
}
