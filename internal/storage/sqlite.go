// Package storage handles database connections, schema migrations, and data operations using SQLite.
package storage

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/woozymasta/herald/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New initializes a new SQLite connection, sets connection pool parameters, and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

const statusColumns = `
	target_key, name, host, port, online,
	server_name, map_name, folder, game_name, game_version, server_os,
	app_id, players, max_players, bots, country_code,
	last_error, last_error_kind, failures, query_ms,
	first_seen, last_seen, last_checked`

// UpsertStatus records a successful query. It resets the failure counter,
// keeps the first seen time of an existing row and keeps the stored country
// when the new one is blank.
func (r *Repository) UpsertStatus(s models.ServerStatus) error {
	query := `
	INSERT INTO statuses (` + statusColumns + `)
	VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', 0, ?, ?, ?, ?)
	ON CONFLICT(target_key) DO UPDATE SET
		name            = excluded.name,
		online          = 1,
		server_name     = excluded.server_name,
		map_name        = excluded.map_name,
		folder          = excluded.folder,
		game_name       = excluded.game_name,
		game_version    = excluded.game_version,
		server_os       = excluded.server_os,
		app_id          = excluded.app_id,
		players         = excluded.players,
		max_players     = excluded.max_players,
		bots            = excluded.bots,
		country_code    = CASE WHEN excluded.country_code != '' THEN excluded.country_code ELSE statuses.country_code END,
		last_error      = '',
		last_error_kind = '',
		failures        = 0,
		query_ms        = excluded.query_ms,
		first_seen      = COALESCE(statuses.first_seen, excluded.first_seen),
		last_seen       = excluded.last_seen,
		last_checked    = excluded.last_checked;
	`

	// Use LastChecked for FirstSeen and LastSeen
	seen := s.LastChecked.UTC()
	_, err := r.db.Exec(query,
		s.Key, s.Name, s.Host, s.Port,
		s.ServerName, s.MapName, s.Folder, s.GameName, s.GameVersion, s.ServerOS,
		s.AppID, s.Players, s.MaxPlayers, s.Bots, s.CountryCode,
		s.QueryMS, seen, seen, seen,
	)

	return err
}

// MarkFailed records a failed query. The last known server fields stay,
// the row goes offline and its failure counter grows by one.
func (r *Repository) MarkFailed(s models.ServerStatus) error {
	query := `
	INSERT INTO statuses (target_key, name, host, port, online, last_error, last_error_kind, failures, query_ms, last_checked)
	VALUES (?, ?, ?, ?, 0, ?, ?, 1, ?, ?)
	ON CONFLICT(target_key) DO UPDATE SET
		name            = excluded.name,
		online          = 0,
		last_error      = excluded.last_error,
		last_error_kind = excluded.last_error_kind,
		failures        = statuses.failures + 1,
		query_ms        = excluded.query_ms,
		last_checked    = excluded.last_checked;
	`

	_, err := r.db.Exec(query,
		s.Key, s.Name, s.Host, s.Port,
		s.LastError, s.LastErrorKind, s.QueryMS, s.LastChecked.UTC(),
	)

	return err
}

// GetStatuses retrieves all statuses sorted by name, host and port.
func (r *Repository) GetStatuses() ([]models.ServerStatus, error) {
	rows, err := r.db.Query(`SELECT ` + statusColumns + ` FROM statuses ORDER BY name, host, port`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	statuses := []models.ServerStatus{}
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return statuses, nil
}

// GetStatus retrieves the status stored under a target key. It returns nil without error when none is stored.
func (r *Repository) GetStatus(key string) (*models.ServerStatus, error) {
	row := r.db.QueryRow(`SELECT `+statusColumns+` FROM statuses WHERE target_key = ?`, key)

	s, err := scanStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}

	return s, nil
}

// DeleteStatus removes the status stored under a target key and returns the number of removed rows.
func (r *Repository) DeleteStatus(key string) (int64, error) {
	return r.exec(`DELETE FROM statuses WHERE target_key = ?`, key)
}

// DeleteOffline removes statuses of servers whose last query failed.
func (r *Repository) DeleteOffline() (int64, error) {
	return r.exec(`DELETE FROM statuses WHERE online = 0`)
}

// DeleteExcept removes statuses whose key is not listed. An empty list removes everything.
func (r *Repository) DeleteExcept(keys []string) (int64, error) {
	if len(keys) == 0 {
		return r.exec(`DELETE FROM statuses`)
	}

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")

	return r.exec(`DELETE FROM statuses WHERE target_key NOT IN (`+placeholders+`)`, args...)
}

func (r *Repository) exec(query string, args ...any) (int64, error) {
	res, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStatus(row scanner) (*models.ServerStatus, error) {
	var (
		s         models.ServerStatus
		firstSeen sql.NullTime
		lastSeen  sql.NullTime
	)

	err := row.Scan(
		&s.Key, &s.Name, &s.Host, &s.Port, &s.Online,
		&s.ServerName, &s.MapName, &s.Folder, &s.GameName, &s.GameVersion, &s.ServerOS,
		&s.AppID, &s.Players, &s.MaxPlayers, &s.Bots, &s.CountryCode,
		&s.LastError, &s.LastErrorKind, &s.Failures, &s.QueryMS,
		&firstSeen, &lastSeen, &s.LastChecked,
	)
	if err != nil {
		return nil, err
	}

	if firstSeen.Valid {
		t := firstSeen.Time
		s.FirstSeen = &t
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		s.LastSeen = &t
	}

	return &s, nil
}
