// Package registry persists the set of known probes and the devices the
// scanner decided to ignore.
package registry

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/teosibileau/grillgauge/internal/errors"
	"github.com/teosibileau/grillgauge/internal/logger"
	"github.com/teosibileau/grillgauge/internal/probe"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/grillgauge/registry.db"
)

type Config struct {
	DBPath string
}

func DefaultConfig() Config {
	return Config{DBPath: defaultDBPath}
}

func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New(ErrInvalidDBPath)
	}
	return nil
}

// Store is the SQLite-backed probe registry.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the registry database and initializes its
// schema.
func Open(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug().Str("path", cfg.DBPath).Msg("opening probe registry")

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errors.Wrap(ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// ListProbes returns every registered probe, ordered by name.
func (s *Store) ListProbes(ctx context.Context) ([]probe.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT address, name FROM probes ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var probes []probe.Info
	for rows.Next() {
		var address, name string
		if err := rows.Scan(&address, &name); err != nil {
			return nil, errors.Wrap(ErrStorageAccess, err)
		}
		probes = append(probes, probe.Info{Address: probe.DeviceID(address), Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(ErrStorageAccess, err)
	}

	return probes, nil
}

// AddProbe registers a probe or refreshes its name and last-seen
// timestamp.
func (s *Store) AddProbe(ctx context.Context, id probe.DeviceID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO probes (address, name, last_seen) VALUES (?, ?, ?)
        ON CONFLICT(address) DO UPDATE SET
            name = excluded.name,
            last_seen = excluded.last_seen
    `, string(id), name, time.Now().Unix())
	if err != nil {
		return errors.Wrap(ErrStorageAccess, err)
	}

	return nil
}

// RemoveProbe deletes a probe. Removing an unknown probe is not an
// error.
func (s *Store) RemoveProbe(ctx context.Context, id probe.DeviceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM probes WHERE address = ?`, string(id)); err != nil {
		return errors.Wrap(ErrStorageAccess, err)
	}
	return nil
}

// ListIgnored returns the addresses the scanner decided to skip.
func (s *Store) ListIgnored(ctx context.Context) ([]probe.DeviceID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT address FROM ignored`)
	if err != nil {
		return nil, errors.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var ignored []probe.DeviceID
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, errors.Wrap(ErrStorageAccess, err)
		}
		ignored = append(ignored, probe.DeviceID(address))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(ErrStorageAccess, err)
	}

	return ignored, nil
}

// AddIgnored marks an address as not-a-probe.
func (s *Store) AddIgnored(ctx context.Context, id probe.DeviceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO ignored (address) VALUES (?)`, string(id)); err != nil {
		return errors.Wrap(ErrStorageAccess, err)
	}
	return nil
}

// RemoveIgnored drops an address from the ignore list.
func (s *Store) RemoveIgnored(ctx context.Context, id probe.DeviceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM ignored WHERE address = ?`, string(id)); err != nil {
		return errors.Wrap(ErrStorageAccess, err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return errors.Wrap(ErrStorageClose, err)
	}
	return nil
}
