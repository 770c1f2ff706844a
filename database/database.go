package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type Database struct {
	db *sql.DB
}

type DownloadRecord struct {
	ID           int64     `json:"id"`
	TrackID      string    `json:"track_id"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	Album        string    `json:"album"`
	Target       string    `json:"target"`
	FilePath     string    `json:"file_path"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// New opens the history database. dbPath defaults to DB_PATH env var or
// ./data/trackfetch.db.
func New() (*Database, error) {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./data/trackfetch.db"
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	d := &Database{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Infof("Database initialized at %s", dbPath)
	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS download_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			track_id TEXT NOT NULL,
			title TEXT NOT NULL,
			artist TEXT NOT NULL DEFAULT '',
			album TEXT NOT NULL DEFAULT '',
			target TEXT NOT NULL DEFAULT 'local',
			file_path TEXT NOT NULL DEFAULT '',
			downloaded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_download_history_track_id ON download_history(track_id)`,
		`CREATE INDEX IF NOT EXISTS idx_download_history_downloaded_at ON download_history(downloaded_at DESC)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	return nil
}

// RecordDownload inserts one row per finished download.
func (d *Database) RecordDownload(trackID, title, artist, album string, target, filePath string) error {
	_, err := d.db.Exec(
		`INSERT INTO download_history (track_id, title, artist, album, target, file_path, downloaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		trackID, title, artist, album, target, filePath, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}

// GetHistory returns the most recent downloads, newest first.
func (d *Database) GetHistory(limit int) ([]DownloadRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.db.Query(
		`SELECT id, track_id, title, artist, album, target, file_path, downloaded_at
		 FROM download_history
		 ORDER BY downloaded_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []DownloadRecord
	for rows.Next() {
		var r DownloadRecord
		var downloadedAt string
		if err := rows.Scan(&r.ID, &r.TrackID, &r.Title, &r.Artist, &r.Album,
			&r.Target, &r.FilePath, &downloadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		r.DownloadedAt = parseStoredTime(downloadedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// LastDownload returns the most recent download of a track, or nil if the
// track has never been downloaded.
func (d *Database) LastDownload(trackID string) (*DownloadRecord, error) {
	row := d.db.QueryRow(
		`SELECT id, track_id, title, artist, album, target, file_path, downloaded_at
		 FROM download_history
		 WHERE track_id = ?
		 ORDER BY downloaded_at DESC
		 LIMIT 1`,
		trackID,
	)

	var r DownloadRecord
	var downloadedAt string
	err := row.Scan(&r.ID, &r.TrackID, &r.Title, &r.Artist, &r.Album,
		&r.Target, &r.FilePath, &downloadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last download: %w", err)
	}
	r.DownloadedAt = parseStoredTime(downloadedAt)
	return &r, nil
}

// parseStoredTime handles both RFC3339Nano values written by RecordDownload
// and SQLite's CURRENT_TIMESTAMP default.
func parseStoredTime(value string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
