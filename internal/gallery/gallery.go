// Package gallery persists upload records produced by the compression and
// upload pipeline. It is an insert-only collaborator of the pipeline: the
// pipeline writes records, the UI queries and deletes them.
package gallery

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const dbFileName = "gallery.db"

type Item struct {
	ID           int64   `json:"id"`
	FileName     string  `json:"file_name"`
	URL          string  `json:"url"`
	Host         string  `json:"host"`
	DeleteMarker *string `json:"delete_marker,omitempty"`
	InsertedAt   string  `json:"inserted_at"`
	Filesize     *int64  `json:"filesize,omitempty"`
}

type NewItem struct {
	FileName     string  `json:"file_name"`
	URL          string  `json:"url"`
	Host         string  `json:"host"`
	DeleteMarker *string `json:"delete_marker,omitempty"`
	// InsertedAt is optional RFC3339 UTC; empty means now.
	InsertedAt string `json:"inserted_at,omitempty"`
	Filesize   *int64 `json:"filesize,omitempty"`
}

type Query struct {
	FileName    string `json:"file_name,omitempty"`
	Host        string `json:"host,omitempty"`
	StartUTC    string `json:"start_utc,omitempty"`
	EndUTC      string `json:"end_utc,omitempty"`
	MinFilesize *int64 `json:"min_filesize,omitempty"`
	MaxFilesize *int64 `json:"max_filesize,omitempty"`
}

type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the gallery database under dataDir, creating the directory
// and the schema on first use.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at create data dir"), err)
	}

	dbPath := filepath.Join(dataDir, dbFileName)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at open sqlite db"), err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			return nil, multierr.Append(fmt.Errorf("failed at apply pragma %q", pragma), multierr.Append(execErr, db.Close()))
		}
	}

	s := &Store{db: db, path: dbPath}
	if err := s.ensureSchema(); err != nil {
		return nil, multierr.Append(err, db.Close())
	}

	return s, nil
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS gallery_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_name TEXT NOT NULL,
			url TEXT NOT NULL,
			host TEXT NOT NULL,
			delete_marker TEXT,
			inserted_at TEXT NOT NULL,
			filesize INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_gallery_items_host ON gallery_items(host);
		CREATE INDEX IF NOT EXISTS idx_gallery_items_inserted_at ON gallery_items(inserted_at);
	`)
	if err != nil {
		return multierr.Append(fmt.Errorf("failed at ensure schema"), err)
	}

	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func parseTimestamp(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, multierr.Append(fmt.Errorf("failed at parse timestamp %q", value), err)
	}

	return ts.UTC(), nil
}

func (s *Store) Insert(ctx context.Context, item NewItem) (Item, error) {
	insertedAt := item.InsertedAt
	if insertedAt == "" {
		insertedAt = time.Now().UTC().Format(time.RFC3339)
	} else if _, err := parseTimestamp(insertedAt); err != nil {
		return Item{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO gallery_items (file_name, url, host, delete_marker, inserted_at, filesize)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.FileName, item.URL, item.Host, item.DeleteMarker, insertedAt, item.Filesize,
	)
	if err != nil {
		return Item{}, multierr.Append(fmt.Errorf("failed at insert gallery item"), err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Item{}, multierr.Append(fmt.Errorf("failed at last insert id"), err)
	}

	zap.S().Debugw("gallery item inserted",
		"id", id,
		"file_name", item.FileName,
		"host", item.Host,
	)

	return Item{
		ID:           id,
		FileName:     item.FileName,
		URL:          item.URL,
		Host:         item.Host,
		DeleteMarker: item.DeleteMarker,
		InsertedAt:   insertedAt,
		Filesize:     item.Filesize,
	}, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM gallery_items WHERE id = ?`, id)
	if err != nil {
		return multierr.Append(fmt.Errorf("failed at delete gallery item"), err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return multierr.Append(fmt.Errorf("failed at rows affected"), err)
	}

	if affected == 0 {
		return fmt.Errorf("gallery item %d not found", id)
	}

	return nil
}

func (s *Store) Query(ctx context.Context, q Query) ([]Item, error) {
	where := []string{}
	args := []interface{}{}

	if q.FileName != "" {
		where = append(where, "file_name LIKE ?")
		args = append(args, "%"+q.FileName+"%")
	}

	if q.Host != "" {
		where = append(where, "host = ?")
		args = append(args, q.Host)
	}

	if q.StartUTC != "" {
		ts, err := parseTimestamp(q.StartUTC)
		if err != nil {
			return nil, err
		}

		where = append(where, "inserted_at >= ?")
		args = append(args, ts.Format(time.RFC3339))
	}

	if q.EndUTC != "" {
		ts, err := parseTimestamp(q.EndUTC)
		if err != nil {
			return nil, err
		}

		where = append(where, "inserted_at <= ?")
		args = append(args, ts.Format(time.RFC3339))
	}

	if q.MinFilesize != nil {
		where = append(where, "filesize >= ?")
		args = append(args, *q.MinFilesize)
	}

	if q.MaxFilesize != nil {
		where = append(where, "filesize <= ?")
		args = append(args, *q.MaxFilesize)
	}

	query := `SELECT id, file_name, url, host, delete_marker, inserted_at, filesize FROM gallery_items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY inserted_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at query gallery items"), err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.FileName, &item.URL, &item.Host, &item.DeleteMarker, &item.InsertedAt, &item.Filesize); err != nil {
			return nil, multierr.Append(fmt.Errorf("failed at scan gallery item"), err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at iterate gallery items"), err)
	}

	return items, nil
}

func (s *Store) ListHosts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT host FROM gallery_items ORDER BY host`)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at list hosts"), err)
	}
	defer rows.Close()

	hosts := []string{}
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, multierr.Append(fmt.Errorf("failed at scan host"), err)
		}

		hosts = append(hosts, host)
	}

	if err := rows.Err(); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at iterate hosts"), err)
	}

	return hosts, nil
}
