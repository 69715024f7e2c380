package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jpequegn/ttsdispatch/internal/model"
)

// Ledger appends batch-completion summaries to a SQLite database. It is
// write-only by design: the dispatcher never reads from it, so a slow
// or unavailable database can never stall a batch (spec.md's "no
// cross-restart persistence of dispatch state" non-goal governs live
// dispatch state only, not this audit trail).
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and
// ensures its schema exists.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) init() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS batch_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		total INTEGER NOT NULL,
		completed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		stopped INTEGER NOT NULL,
		stopped_reason TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_batch_history_batch_id ON batch_history(batch_id);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("history: create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Summary is the one row recorded per finished batch.
type Summary struct {
	BatchID       string
	Total         int
	Completed     int
	Failed        int
	Stopped       bool
	StoppedReason string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Record appends one batch-completion summary row.
func (l *Ledger) Record(s Summary) error {
	_, err := l.db.Exec(`
		INSERT INTO batch_history
			(batch_id, total, completed, failed, stopped, stopped_reason, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.BatchID, s.Total, s.Completed, s.Failed, boolToInt(s.Stopped), s.StoppedReason, s.StartedAt, s.FinishedAt)
	if err != nil {
		return fmt.Errorf("history: insert summary: %w", err)
	}
	return nil
}

// SummaryFromBatch derives a Summary from a finished model.Batch. Failed
// is computed by walking the task map, since Batch itself only tracks a
// combined completed-or-failed counter.
func SummaryFromBatch(b model.Batch, startedAt, finishedAt time.Time) Summary {
	failed := 0
	for _, t := range b.Tasks {
		if t.State == model.TaskFailed {
			failed++
		}
	}
	return Summary{
		BatchID:       b.ID.String(),
		Total:         b.Total,
		Completed:     b.Completed - failed,
		Failed:        failed,
		Stopped:       b.Stopped,
		StoppedReason: b.StoppedReason,
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
