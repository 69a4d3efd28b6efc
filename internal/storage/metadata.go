package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// ErrOutcomeNotFound is returned by GetOutcome for unknown job IDs
var ErrOutcomeNotFound = errors.New("outcome not found")

// OutcomeRecord is one persisted job outcome
type OutcomeRecord struct {
	JobID       string    `json:"job_id"`
	BatchID     string    `json:"batch_id"`
	SourcePath  string    `json:"source_path"`
	OutputPath  string    `json:"output_path,omitempty"`
	Status      string    `json:"status"`
	Kind        string    `json:"kind,omitempty"`
	Cause       string    `json:"cause,omitempty"`
	Message     string    `json:"message,omitempty"`
	WordCount   int       `json:"word_count"`
	RemoteURL   string    `json:"remote_url,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// MetadataDB handles SQLite database operations
type MetadataDB struct {
	db *sql.DB
}

// NewMetadataDB creates a new metadata database
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Workers record outcomes concurrently; one connection serializes writes.
	db.SetMaxOpenConns(1)

	// Create tables if not exists
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		folder TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		discovered INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS outcomes (
		job_id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		source_path TEXT NOT NULL,
		output_path TEXT,
		status TEXT NOT NULL,
		kind TEXT,
		cause TEXT,
		message TEXT,
		word_count INTEGER NOT NULL DEFAULT 0,
		remote_url TEXT,
		started_at TEXT,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_completed_at ON outcomes(completed_at);
	CREATE INDEX IF NOT EXISTS idx_outcomes_batch ON outcomes(batch_id);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// StartBatch records a new batch run and returns its ID
func (mdb *MetadataDB) StartBatch(folder string, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := mdb.db.Exec(
		`INSERT INTO batches (id, folder, started_at) VALUES (?, ?, ?)`,
		id, folder, formatTime(startedAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save batch: %w", err)
	}
	return id, nil
}

// FinishBatch stores the final counts of a batch
func (mdb *MetadataDB) FinishBatch(batchID string, report *types.BatchReport) error {
	_, err := mdb.db.Exec(
		`UPDATE batches SET finished_at = ?, discovered = ?, succeeded = ?, failed = ? WHERE id = ?`,
		formatTime(report.FinishedAt), report.Discovered, report.Succeeded(), report.Failed(), batchID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish batch: %w", err)
	}
	return nil
}

// SaveOutcome saves one job outcome. Saving the same job twice overwrites.
func (mdb *MetadataDB) SaveOutcome(batchID string, o types.JobOutcome) error {
	status := types.StatusCompleted
	if !o.Succeeded() {
		status = types.StatusFailed
	}

	query := `
	INSERT OR REPLACE INTO outcomes
		(job_id, batch_id, source_path, output_path, status, kind, cause, message, word_count, remote_url, started_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := mdb.db.Exec(query,
		o.JobID, batchID, o.SourcePath, o.OutputPath, status,
		string(o.Kind()), string(o.Cause()), o.Message(), o.WordCount, o.RemoteURL,
		formatTime(o.StartedAt), formatTime(o.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}
	return nil
}

const outcomeColumns = `job_id, batch_id, source_path, output_path, status, kind, cause, message, word_count, remote_url, started_at, completed_at`

// GetOutcome retrieves an outcome by job ID
func (mdb *MetadataDB) GetOutcome(jobID string) (*OutcomeRecord, error) {
	row := mdb.db.QueryRow(`SELECT `+outcomeColumns+` FROM outcomes WHERE job_id = ?`, jobID)

	rec, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrOutcomeNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}
	return rec, nil
}

// ListOutcomes returns the most recent outcomes first
func (mdb *MetadataDB) ListOutcomes(limit int) ([]OutcomeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := mdb.db.Query(
		`SELECT `+outcomeColumns+` FROM outcomes ORDER BY completed_at DESC, source_path ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	records := []OutcomeRecord{}
	for rows.Next() {
		rec, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read outcome: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row rowScanner) (*OutcomeRecord, error) {
	var (
		rec                                     OutcomeRecord
		output, kind, cause, message, remoteURL sql.NullString
		startedAt, completedAt                  sql.NullString
	)
	err := row.Scan(&rec.JobID, &rec.BatchID, &rec.SourcePath, &output, &rec.Status,
		&kind, &cause, &message, &rec.WordCount, &remoteURL, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	rec.OutputPath = output.String
	rec.Kind = kind.String
	rec.Cause = cause.String
	rec.Message = message.String
	rec.RemoteURL = remoteURL.String
	rec.StartedAt = parseTime(startedAt.String)
	rec.CompletedAt = parseTime(completedAt.String)
	return &rec, nil
}

// timeLayout is RFC3339 with fixed-width nanoseconds so stored values sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
