package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Burnaviour/realtime-translator/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS utterances (
	id              TEXT PRIMARY KEY,
	source          TEXT NOT NULL,
	transcript      TEXT NOT NULL,
	translation     TEXT NOT NULL,
	audio_ms        INTEGER NOT NULL,
	transcribe_ms   INTEGER NOT NULL,
	translate_ms    INTEGER NOT NULL,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_utterances_created_at ON utterances(created_at);
`

// Store records finalized utterances in SQLite. It implements the
// pipeline Recorder contract.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the history database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// The pipelines write one row at a time; a single connection avoids
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	logger.Info("History database opened", slog.String("path", path))

	return &Store{db: db, logger: logger}, nil
}

// Record inserts one finalized utterance.
func (s *Store) Record(ctx context.Context, rec pipeline.UtteranceRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO utterances
			(id, source, transcript, translation, audio_ms, transcribe_ms, translate_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Source,
		rec.Transcript,
		rec.Translation,
		rec.AudioDuration.Milliseconds(),
		rec.TranscribeTime.Milliseconds(),
		rec.TranslateTime.Milliseconds(),
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record utterance: %w", err)
	}
	return nil
}

// Recent returns up to limit utterances, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]pipeline.UtteranceRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, transcript, translation, audio_ms, transcribe_ms, translate_ms, created_at
		FROM utterances ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []pipeline.UtteranceRecord
	for rows.Next() {
		var (
			rec                              pipeline.UtteranceRecord
			audioMS, transcribeMS, translate int64
		)
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Transcript, &rec.Translation,
			&audioMS, &transcribeMS, &translate, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		rec.AudioDuration = time.Duration(audioMS) * time.Millisecond
		rec.TranscribeTime = time.Duration(transcribeMS) * time.Millisecond
		rec.TranslateTime = time.Duration(translate) * time.Millisecond
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
