// Package store persists runtime parameters and the Gemini model table in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/fpt/gemini-discuss/pkg/client/gemini"
	pkgLogger "github.com/fpt/gemini-discuss/pkg/logger"
)

// ErrDuplicateKey is returned by AddModel when the key is already taken.
var ErrDuplicateKey = errors.New("model key already exists")

// Store is a SQLite backed parameter store and model table.
type Store struct {
	db     *sql.DB
	logger *pkgLogger.Logger
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "cannot create database directory %s", dir)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(err, "cannot open database")
	}
	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: pkgLogger.NewComponentLogger("store")}
	if err := runMigrations(db, s.logger); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "database migration failed")
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored value for key, or "" when the key is not set.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM config_parameter WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read parameter %s", key)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config_parameter (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return errors.Wrapf(err, "failed to write parameter %s", key)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM config_parameter WHERE key = ?`, key)
	return errors.Wrapf(err, "failed to delete parameter %s", key)
}

// ListModels returns every model row ordered by id.
func (s *Store) ListModels(ctx context.Context) ([]gemini.Model, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, key, name FROM gemini_model ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list models")
	}
	defer rows.Close()

	var models []gemini.Model
	for rows.Next() {
		var m gemini.Model
		if err := rows.Scan(&m.ID, &m.Key, &m.Name); err != nil {
			return nil, errors.Wrap(err, "failed to scan model row")
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

func (s *Store) ModelByID(ctx context.Context, id int64) (gemini.Model, error) {
	return s.queryModel(ctx, `SELECT id, key, name FROM gemini_model WHERE id = ?`, id)
}

func (s *Store) ModelByKey(ctx context.Context, key string) (gemini.Model, error) {
	return s.queryModel(ctx, `SELECT id, key, name FROM gemini_model WHERE key = ?`, key)
}

func (s *Store) queryModel(ctx context.Context, query string, arg any) (gemini.Model, error) {
	var m gemini.Model
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&m.ID, &m.Key, &m.Name)
	if err == sql.ErrNoRows {
		return gemini.Model{}, errors.Wrapf(gemini.ErrModelNotFound, "%v", arg)
	}
	if err != nil {
		return gemini.Model{}, errors.Wrap(err, "failed to query model")
	}
	return m, nil
}

// AddModel inserts a model row and returns it with its assigned id.
func (s *Store) AddModel(ctx context.Context, key, name string) (gemini.Model, error) {
	key = strings.TrimSpace(key)
	name = strings.TrimSpace(name)
	if key == "" || name == "" {
		return gemini.Model{}, errors.New("model key and name are required")
	}

	if _, err := s.ModelByKey(ctx, key); err == nil {
		return gemini.Model{}, errors.Wrapf(ErrDuplicateKey, "%q", key)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO gemini_model (key, name) VALUES (?, ?)`, key, name)
	if err != nil {
		return gemini.Model{}, errors.Wrapf(err, "failed to add model %s", key)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return gemini.Model{}, errors.Wrap(err, "failed to read model id")
	}
	return gemini.Model{ID: id, Key: key, Name: name}, nil
}

// RemoveModel deletes the row identified by a numeric id or a key.
func (s *Store) RemoveModel(ctx context.Context, idOrKey string) error {
	m, err := s.LookupModel(ctx, idOrKey)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM gemini_model WHERE id = ?`, m.ID); err != nil {
		return errors.Wrapf(err, "failed to remove model %s", idOrKey)
	}
	return nil
}

// LookupModel finds a row by numeric id or by key.
func (s *Store) LookupModel(ctx context.Context, idOrKey string) (gemini.Model, error) {
	idOrKey = strings.TrimSpace(idOrKey)
	if id, ok := parseID(idOrKey); ok {
		return s.ModelByID(ctx, id)
	}
	return s.ModelByKey(ctx, idOrKey)
}

// SeedDefaultModels inserts the default rows whose keys are missing and
// reports how many were added. It never touches the model selection; the
// default selection comes from settings.
func (s *Store) SeedDefaultModels(ctx context.Context) (int, error) {
	added := 0
	for _, m := range gemini.DefaultModels() {
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO gemini_model (key, name) VALUES (?, ?)`, m.Key, m.Name)
		if err != nil {
			return added, errors.Wrapf(err, "failed to seed model %s", m.Key)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	if added > 0 {
		s.logger.InfoWithIntention(pkgLogger.IntentionConfig, "Seeded default Gemini models", "added", added)
	}
	return added, nil
}
