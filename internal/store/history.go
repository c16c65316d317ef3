package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"testforge/internal/logging"
	"testforge/internal/shards/tester"
	"testforge/internal/types"
)

// HistoryStore persists one row per pipeline run so score trends can be
// followed across invocations.
//
// Storage location: <output dir>/history.db
type HistoryStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID             string
	Module         string
	StartedAt      time.Time
	DurationMs     int64
	Total          int
	Passed         int
	Failed         int
	Errors         int
	Score          float64
	FeedbackSource types.FeedbackSource
	ArtifactOrigin types.ArtifactOrigin
	Model          string
}

// Trend summarizes the score history of one module, oldest run first.
type Trend struct {
	Module     string
	Runs       int
	FirstScore float64
	LastScore  float64
	BestScore  float64
	MeanScore  float64
	Scores     []float64
}

// Delta is the score change between the first and the latest run.
func (t Trend) Delta() float64 {
	return t.LastScore - t.FirstScore
}

// RecordFromResult flattens a pipeline result into a history row.
func RecordFromResult(res *tester.Result, model string) RunRecord {
	rec := RunRecord{
		ID:         res.RunID,
		Module:     res.Module,
		StartedAt:  res.StartedAt,
		DurationMs: res.Durations.Total.Milliseconds(),
		Total:      res.Stats.Total,
		Passed:     res.Stats.Passed,
		Failed:     res.Stats.Failed,
		Errors:     res.Stats.Errors,
		Model:      model,
	}
	if res.Feedback != nil {
		rec.Score = res.Feedback.Score
		rec.FeedbackSource = res.Feedback.Source
	}
	if res.Artifact != nil {
		rec.ArtifactOrigin = res.Artifact.Origin
	}
	return rec
}

// NewHistoryStore opens (or creates) the history database at dbPath.
func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	logging.StoreDebug("Initializing HistoryStore at path: %s", dbPath)

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to create HistoryStore directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open HistoryStore database at %s: %v", dbPath, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}

	store := &HistoryStore{db: db, dbPath: dbPath}
	if err := store.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize HistoryStore schema: %v", err)
		db.Close()
		return nil, err
	}

	logging.Store("HistoryStore initialized at %s", dbPath)
	return store, nil
}

// initialize creates the v1 schema and migrates it forward.
func (s *HistoryStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		module TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		total INTEGER NOT NULL,
		passed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		score REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_module ON runs(module);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}
	return RunMigrations(s.db)
}

// Path returns the database file path.
func (s *HistoryStore) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Record persists a run. Recording the same ID twice replaces the row.
func (s *HistoryStore) Record(rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		return fmt.Errorf("run record for %q has no id", rec.Module)
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO runs
		(id, module, started_at, duration_ms, total, passed, failed, errors,
		 score, feedback_source, artifact_origin, model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Module, rec.StartedAt.UTC(), rec.DurationMs,
		rec.Total, rec.Passed, rec.Failed, rec.Errors,
		rec.Score, string(rec.FeedbackSource), string(rec.ArtifactOrigin), rec.Model,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to record run %s: %v", rec.ID, err)
		return err
	}

	logging.StoreDebug("Recorded run %s (module=%s, score=%.2f)", rec.ID, rec.Module, rec.Score)
	return nil
}

const runColumns = `id, module, started_at, duration_ms, total, passed, failed, errors,
	score, feedback_source, artifact_origin, model`

// Recent returns the newest runs across all modules, newest first.
func (s *HistoryStore) Recent(limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// ByModule returns the newest runs of one module, newest first.
func (s *HistoryStore) ByModule(module string, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs WHERE module = ? ORDER BY started_at DESC LIMIT ?`,
		module, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// ModuleTrend summarizes every recorded score for module. A module with no
// runs yields a zero Trend.
func (s *HistoryStore) ModuleTrend(module string) (Trend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trend := Trend{Module: module}
	rows, err := s.db.Query(`SELECT score FROM runs WHERE module = ? ORDER BY started_at ASC`, module)
	if err != nil {
		return trend, err
	}
	defer rows.Close()

	sum := 0.0
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return trend, err
		}
		if trend.Runs == 0 || score > trend.BestScore {
			trend.BestScore = score
		}
		trend.Scores = append(trend.Scores, score)
		trend.Runs++
		sum += score
	}
	if err := rows.Err(); err != nil {
		return trend, err
	}

	if trend.Runs > 0 {
		trend.FirstScore = trend.Scores[0]
		trend.LastScore = trend.Scores[trend.Runs-1]
		trend.MeanScore = sum / float64(trend.Runs)
	}
	return trend, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

func scanRuns(rows *sql.Rows) ([]RunRecord, error) {
	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var source, origin string
		if err := rows.Scan(&rec.ID, &rec.Module, &rec.StartedAt, &rec.DurationMs,
			&rec.Total, &rec.Passed, &rec.Failed, &rec.Errors,
			&rec.Score, &source, &origin, &rec.Model); err != nil {
			return nil, err
		}
		rec.FeedbackSource = types.FeedbackSource(source)
		rec.ArtifactOrigin = types.ArtifactOrigin(origin)
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}
