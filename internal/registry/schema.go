package registry

import (
	"database/sql"

	"github.com/teosibileau/grillgauge/internal/errors"
)

// initSchema creates the registry tables.
func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS probes (
            address   TEXT PRIMARY KEY,
            name      TEXT NOT NULL,
            last_seen INTEGER NOT NULL
        );
        CREATE TABLE IF NOT EXISTS ignored (
            address TEXT PRIMARY KEY
        );
    `)
	if err != nil {
		return errors.Wrap(ErrSchemaInit, err)
	}

	return nil
}
