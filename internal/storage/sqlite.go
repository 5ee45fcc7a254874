package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ackinacki-farmer/internal/types"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rounds (
	round       INTEGER PRIMARY KEY,
	stats       TEXT NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS account_status (
	round        INTEGER NOT NULL,
	account      INTEGER NOT NULL,
	farm_status  TEXT,
	wait_seconds INTEGER NOT NULL DEFAULT 0,
	success      INTEGER NOT NULL,
	data         TEXT NOT NULL,
	PRIMARY KEY (round, account)
);
`

// roundsKept is how many rounds of history the sqlite store retains.
const roundsKept = 50

// SQLiteStorage records each round and its per-account rows
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Save(snap *types.Snapshot) error {
	stats, err := json.Marshal(snap.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT OR REPLACE INTO rounds (round, stats, updated_at) VALUES (?, ?, ?)",
		snap.Stats.Round, string(stats), snap.Updated.UTC()); err != nil {
		return fmt.Errorf("insert round: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM account_status WHERE round = ?", snap.Stats.Round); err != nil {
		return fmt.Errorf("clear account rows: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO account_status (round, account, farm_status, wait_seconds, success, data) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare account insert: %w", err)
	}
	defer stmt.Close()

	for _, acct := range snap.Accounts {
		data, err := json.Marshal(acct)
		if err != nil {
			return fmt.Errorf("marshal account %d: %w", acct.Index, err)
		}
		if _, err := stmt.Exec(snap.Stats.Round, acct.Index, acct.FarmStatus, acct.WaitSeconds, acct.Success, string(data)); err != nil {
			return fmt.Errorf("insert account %d: %w", acct.Index, err)
		}
	}

	cutoff := snap.Stats.Round - roundsKept
	if _, err := tx.Exec("DELETE FROM account_status WHERE round <= ?", cutoff); err != nil {
		return fmt.Errorf("prune account rows: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM rounds WHERE round <= ?", cutoff); err != nil {
		return fmt.Errorf("prune rounds: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Load() (*types.Snapshot, error) {
	var (
		round   int
		stats   string
		updated time.Time
	)
	err := s.db.QueryRow("SELECT round, stats, updated_at FROM rounds ORDER BY round DESC LIMIT 1").Scan(&round, &stats, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query round: %w", err)
	}

	snap := &types.Snapshot{Updated: updated}
	if err := json.Unmarshal([]byte(stats), &snap.Stats); err != nil {
		return nil, fmt.Errorf("unmarshal stats: %w", err)
	}

	rows, err := s.db.Query("SELECT data FROM account_status WHERE round = ? ORDER BY account", round)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		var acct types.AccountStatus
		if err := json.Unmarshal([]byte(data), &acct); err != nil {
			return nil, fmt.Errorf("unmarshal account: %w", err)
		}
		snap.Accounts = append(snap.Accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return snap, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
