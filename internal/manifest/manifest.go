// Package manifest persists per-run crawl outcomes to a SQLite database:
// one row per run and one row per game. The manifest is what monitoring
// reads to find skipped games and what a manual backfill queries to re-run
// only the games that failed.
package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"nhlcrawl/internal/domain"
)

// Store is a run manifest backed by a SQLite database.
type Store struct {
	db *sql.DB
}

// GameOutcome is one game's recorded outcome within a run.
type GameOutcome struct {
	GameID   int64
	GameDate time.Time
	Status   string
	Detail   string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	start_date  TEXT NOT NULL,
	end_date    TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	games       INTEGER NOT NULL DEFAULT 0,
	written     INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS game_outcomes (
	run_id    INTEGER NOT NULL REFERENCES runs(id),
	game_id   INTEGER NOT NULL,
	game_date TEXT NOT NULL,
	status    TEXT NOT NULL,
	detail    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, game_id)
);
`

// Open opens (or creates) the manifest database at dbPath and ensures the
// schema exists.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating manifest schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records the start of a crawl over the given range and returns
// the new run id.
func (s *Store) BeginRun(ctx context.Context, dr domain.DateRange) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (start_date, end_date, started_at) VALUES (?, ?, ?)`,
		dr.Start.Format("2006-01-02"),
		dr.End.Format("2006-01-02"),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	return res.LastInsertId()
}

// RecordOutcome records one game's outcome within a run. Re-recording the
// same game replaces the previous row, so a re-run over the same manifest
// reflects the latest state.
func (s *Store) RecordOutcome(ctx context.Context, runID, gameID int64, gameDate time.Time, status, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO game_outcomes (run_id, game_id, game_date, status, detail)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, gameID, gameDate.Format("2006-01-02"), status, detail,
	)
	if err != nil {
		return fmt.Errorf("recording outcome for game %d: %w", gameID, err)
	}
	return nil
}

// FinishRun stamps the run's end time and final counters.
func (s *Store) FinishRun(ctx context.Context, runID int64, games, written, skipped int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, games = ?, written = ?, skipped = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), games, written, skipped, runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", runID, err)
	}
	return nil
}

// SkippedGames returns the games recorded with a non-written status for the
// given run, ordered by game date then game id.
func (s *Store) SkippedGames(ctx context.Context, runID int64) ([]GameOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT game_id, game_date, status, detail
		 FROM game_outcomes
		 WHERE run_id = ? AND status != 'written'
		 ORDER BY game_date, game_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying skipped games: %w", err)
	}
	defer rows.Close()

	var outcomes []GameOutcome
	for rows.Next() {
		var o GameOutcome
		var dateStr string
		if err := rows.Scan(&o.GameID, &dateStr, &o.Status, &o.Detail); err != nil {
			return nil, fmt.Errorf("scanning skipped game: %w", err)
		}
		o.GameDate, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("parsing game date %q: %w", dateStr, err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
