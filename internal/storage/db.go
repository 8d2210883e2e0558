package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database holding the peer sighting log.
type DB struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens or creates the sighting database in the given directory.
func Open(dir string) (*DB, error) {
	dbPath := filepath.Join(dir, "data.db")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sightings (
			peer_id    TEXT PRIMARY KEY,
			first_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_seen  DATETIME DEFAULT CURRENT_TIMESTAMP,
			count      INTEGER DEFAULT 1
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sightings table: %w", err)
	}

	return &DB{db: db, path: dbPath}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Path() string {
	return d.path
}

// Sighting is the persistent record of a peer observed via discovery.
// first_seen is set once and never changes; last_seen advances on every
// new sighting.
type Sighting struct {
	PeerID    string
	FirstSeen time.Time
	LastSeen  time.Time
	Count     int
}

// RecordSighting stores or refreshes the sighting row for a peer.
func (d *DB) RecordSighting(peerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`
		INSERT INTO sightings (peer_id) VALUES (?)
		ON CONFLICT(peer_id) DO UPDATE SET
			last_seen = CURRENT_TIMESTAMP,
			count     = count + 1`,
		peerID,
	)
	return err
}

// Sightings returns all recorded sightings, most recent first.
func (d *DB) Sightings() ([]Sighting, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT peer_id, first_seen, last_seen, count
		FROM sightings ORDER BY last_seen DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var s Sighting
		var first, last string
		if err := rows.Scan(&s.PeerID, &first, &last, &s.Count); err != nil {
			return nil, err
		}
		s.FirstSeen, _ = time.Parse("2006-01-02 15:04:05", first)
		s.LastSeen, _ = time.Parse("2006-01-02 15:04:05", last)
		out = append(out, s)
	}
	return out, rows.Err()
}
