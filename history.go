package minsh

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// HistoryManager persists executed lines to a SQLite database, one row per
// command with its session, working directory, return code and timing.
type HistoryManager struct {
	db *sql.DB
}

func NewHistoryManager(dbPath string) (*HistoryManager, error) {
	if dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(homeDir, ".minsh_history.sqlite")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %v", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	createTableSQL := `
    CREATE TABLE IF NOT EXISTS command(
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id VARCHAR(40) NOT NULL,
        cwd VARCHAR(256) NOT NULL,
        return_code INT NOT NULL,
        start_time INTEGER NOT NULL,
        end_time INTEGER NOT NULL,
        duration INTEGER NOT NULL,
        line VARCHAR(1000) NOT NULL
    );`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, err
	}

	return &HistoryManager{db: db}, nil
}

func (h *HistoryManager) Insert(cmd *Command, sessionID string) error {
	insertSQL := `INSERT INTO command (session_id, cwd, return_code, start_time, end_time, duration, line) VALUES (?, ?, ?, ?, ?, ?, ?)`

	cwd := ""
	if cmd.State != nil {
		cwd = cmd.State.CWD()
	}

	_, err := h.db.Exec(insertSQL, sessionID, cwd, cmd.ReturnCode,
		cmd.StartTime.Unix(), cmd.EndTime.Unix(), cmd.Duration.Milliseconds(), cmd.Raw)
	return err
}

// Dump returns every recorded line, oldest first.
func (h *HistoryManager) Dump() ([]string, error) {
	rows, err := h.db.Query("SELECT line FROM command ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		history = append(history, line)
	}
	return history, rows.Err()
}

func (h *HistoryManager) Close() error {
	return h.db.Close()
}
