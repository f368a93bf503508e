// Package storage provides a SQLite-backed implementation of
// server.GameRepository. Grounded on the Store shape in
// louisbranch-fracturing.space's internal/services/*/storage/sqlite
// packages: a single *sql.DB opened with WAL/foreign-key/busy-timeout
// pragmas via the modernc.org/sqlite driver, schema applied at Open time,
// typed errors translated from driver-specific constraint violations.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	server "gamesession/server"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists GameRecords in SQLite.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id           INTEGER PRIMARY KEY,
	title        TEXT NOT NULL,
	featured_mod TEXT NOT NULL,
	map_file     TEXT NOT NULL,
	host_id      INTEGER NOT NULL,
	state        TEXT NOT NULL,
	validity     TEXT NOT NULL,
	start_time   INTEGER,
	end_time     INTEGER
);

CREATE TABLE IF NOT EXISTS game_player_stats (
	game_id    INTEGER NOT NULL REFERENCES games(id),
	player_id  INTEGER NOT NULL,
	team       INTEGER NOT NULL,
	faction    INTEGER NOT NULL,
	color      INTEGER NOT NULL,
	start_spot INTEGER NOT NULL,
	mean       REAL NOT NULL,
	deviation  REAL NOT NULL,
	score      INTEGER,
	score_time INTEGER,
	PRIMARY KEY (game_id, player_id)
);
`

// Open opens a SQLite-backed Store at path, creating the schema if absent.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toMillis(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().UnixMilli()
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

// Insert writes a new game row plus its player stats, called at LAUNCHING
// (spec.md §9).
func (s *Store) Insert(ctx context.Context, g *server.GameRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert game: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO games (id, title, featured_mod, map_file, host_id, state, validity, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Title, g.FeaturedMod, g.MapFileName, g.HostID, string(g.State), string(g.Validity),
		toMillis(g.StartTime), toMillis(g.EndTime),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert game %d: %w", g.ID, errAlreadyExists)
		}
		return fmt.Errorf("insert game %d: %w", g.ID, err)
	}
	if err := upsertStats(ctx, tx, g.ID, g.PlayerStats); err != nil {
		return err
	}
	return tx.Commit()
}

// Save updates an existing game row plus its player stats, called at end
// processing (spec.md §4.6 step 7).
func (s *Store) Save(ctx context.Context, g *server.GameRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save game: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE games SET title = ?, featured_mod = ?, map_file = ?, host_id = ?,
		       state = ?, validity = ?, start_time = ?, end_time = ?
		 WHERE id = ?`,
		g.Title, g.FeaturedMod, g.MapFileName, g.HostID, string(g.State), string(g.Validity),
		toMillis(g.StartTime), toMillis(g.EndTime), g.ID,
	)
	if err != nil {
		return fmt.Errorf("save game %d: %w", g.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// The game was never Insert-ed (ended before ever launching). Save
		// behaves as an upsert in that case rather than silently dropping
		// the record. The update transaction is closed first so that Insert's
		// own transaction does not wait on it.
		if err := tx.Rollback(); err != nil {
			return fmt.Errorf("save game %d: %w", g.ID, err)
		}
		return s.Insert(ctx, g)
	}
	if err := upsertStats(ctx, tx, g.ID, g.PlayerStats); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertStats(ctx context.Context, tx *sql.Tx, gameID int32, stats []*server.GamePlayerStats) error {
	for _, st := range stats {
		var score any
		var scoreTime any
		if st.Score != nil {
			score = *st.Score
		}
		if st.ScoreTime != nil {
			scoreTime = st.ScoreTime.UTC().UnixMilli()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO game_player_stats (game_id, player_id, team, faction, color, start_spot, mean, deviation, score, score_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(game_id, player_id) DO UPDATE SET
				team = excluded.team, faction = excluded.faction, color = excluded.color,
				start_spot = excluded.start_spot, mean = excluded.mean, deviation = excluded.deviation,
				score = excluded.score, score_time = excluded.score_time`,
			gameID, st.PlayerID, st.Team, st.Faction, st.Color, st.StartSpot, st.Mean, st.Deviation, score, scoreTime,
		)
		if err != nil {
			return fmt.Errorf("upsert player stats game=%d player=%d: %w", gameID, st.PlayerID, err)
		}
	}
	return nil
}

// FindMaxID returns the highest known game id, used to seed the Registry's
// id counter at startup (spec.md §9). Returns 0 if the table is empty.
func (s *Store) FindMaxID(ctx context.Context) (int32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var maxID sql.NullInt64
	row := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM games`)
	if err := row.Scan(&maxID); err != nil {
		return 0, fmt.Errorf("find max game id: %w", err)
	}
	if !maxID.Valid {
		return 0, nil
	}
	return int32(maxID.Int64), nil
}

// UpdateUnfinishedGamesValidity stamps validity onto every game row not yet
// in a terminal state, used at startup to mark games orphaned by a crash
// (spec.md §12). Returns the number of rows touched.
func (s *Store) UpdateUnfinishedGamesValidity(ctx context.Context, validity server.Validity) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE games SET validity = ?
		 WHERE state NOT IN (?, ?)`,
		string(validity), string(server.GameEnded), string(server.GameClosed),
	)
	if err != nil {
		return 0, fmt.Errorf("update unfinished games validity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update unfinished games validity: %w", err)
	}
	return int(n), nil
}

var errAlreadyExists = errors.New("game already exists")

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ server.GameRepository = (*Store)(nil)
