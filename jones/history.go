package jones

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DefaultHistoryPath is the default path for the run history database
const DefaultHistoryPath = ".history.db"

const historySchema = `
CREATE TABLE IF NOT EXISTS runs (
	uuid       TEXT PRIMARY KEY,
	bench      TEXT NOT NULL,
	input      TEXT NOT NULL,
	target     TEXT NOT NULL,
	theta1     REAL NOT NULL,
	theta2     REAL NOT NULL,
	theta3     REAL NOT NULL,
	error      REAL NOT NULL,
	converged  INTEGER NOT NULL,
	iterations INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_bench_created ON runs(bench, created_at DESC);
`

// RunRecord is one completed angle search stored in the history database
type RunRecord struct {
	UUID       string            `json:"uuid"`
	Bench      string            `json:"bench"`
	Input      PolarizationState `json:"input"`
	Target     PolarizationState `json:"target"`
	Theta1     float64           `json:"theta1"`
	Theta2     float64           `json:"theta2"`
	Theta3     float64           `json:"theta3"`
	Error      float64           `json:"error"`
	Converged  bool              `json:"converged"`
	Iterations int               `json:"iterations"`
	DurationMs int64             `json:"durationMs"`
	CreatedAt  int64             `json:"createdAt"`
}

// History records completed angle searches in a SQLite database
type History struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenHistory opens (creating if necessary) the run history database
func OpenHistory(path string, log zerolog.Logger) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	connStr := path + "?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	if _, err := db.Exec(historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}

	return &History{
		db:  db,
		log: log.With().Str("component", "history").Logger(),
	}, nil
}

// Close closes the history database
func (h *History) Close() error {
	return h.db.Close()
}

// Record stores a completed search and returns the run's UUID
func (h *History) Record(bench string, input, target PolarizationState, result SearchResult) (string, error) {
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("marshaling input state: %w", err)
	}
	targetJSON, err := json.Marshal(target)
	if err != nil {
		return "", fmt.Errorf("marshaling target state: %w", err)
	}

	id := uuid.New().String()
	_, err = h.db.Exec(`
		INSERT INTO runs
		(uuid, bench, input, target, theta1, theta2, theta3, error, converged, iterations, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		bench,
		string(inputJSON),
		string(targetJSON),
		result.Theta1,
		result.Theta2,
		result.Theta3,
		result.Error,
		result.Converged,
		result.Iterations,
		result.Duration.Milliseconds(),
		time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	h.log.Debug().
		Str("uuid", id).
		Str("bench", bench).
		Float64("error", result.Error).
		Bool("converged", result.Converged).
		Msg("Recorded search run")

	return id, nil
}

// Recent returns the most recent runs, newest first. An empty bench
// matches all benches. A non-positive limit defaults to 20.
func (h *History) Recent(bench string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT uuid, bench, input, target, theta1, theta2, theta3, error, converged, iterations, duration_ms, created_at
		FROM runs
	`
	args := []interface{}{}
	if bench != "" {
		query += ` WHERE bench = ?`
		args = append(args, bench)
	}
	// rowid breaks ties for runs recorded within the same second
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var inputJSON, targetJSON string

		err := rows.Scan(&r.UUID, &r.Bench, &inputJSON, &targetJSON,
			&r.Theta1, &r.Theta2, &r.Theta3, &r.Error,
			&r.Converged, &r.Iterations, &r.DurationMs, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}

		if err := json.Unmarshal([]byte(inputJSON), &r.Input); err != nil {
			return nil, fmt.Errorf("parsing stored input state: %w", err)
		}
		if err := json.Unmarshal([]byte(targetJSON), &r.Target); err != nil {
			return nil, fmt.Errorf("parsing stored target state: %w", err)
		}

		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return runs, nil
}

// Count returns the total number of recorded runs
func (h *History) Count() (int, error) {
	var count int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting runs: %w", err)
	}
	return count, nil
}

// Prune removes runs recorded before the cutoff. Used to keep the
// history database from growing without bound.
func (h *History) Prune(olderThan time.Time) error {
	result, err := h.db.Exec("DELETE FROM runs WHERE created_at < ?", olderThan.Unix())
	if err != nil {
		return fmt.Errorf("deleting old runs: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		h.log.Info().
			Int64("rows_deleted", rowsAffected).
			Time("older_than", olderThan).
			Msg("Pruned old runs")
	}

	return nil
}
