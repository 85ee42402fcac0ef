package datasource

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is stored in PRAGMA user_version of every case database.
const SchemaVersion = 1

// Schema creates the tables of an offline case database. The same layout is
// written by the export command, so an exported file can be opened offline.
const Schema = `
CREATE TABLE IF NOT EXISTS case_counts (
	dataset   TEXT    NOT NULL,
	geography TEXT    NOT NULL,
	unit      TEXT    NOT NULL,
	total     INTEGER NOT NULL DEFAULT 0,
	rate      REAL,
	PRIMARY KEY (dataset, geography, unit)
);
CREATE TABLE IF NOT EXISTS case_breakdown (
	dataset   TEXT    NOT NULL,
	geography TEXT    NOT NULL,
	unit      TEXT    NOT NULL,
	position  INTEGER NOT NULL,
	label     TEXT    NOT NULL,
	count     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (dataset, geography, unit, position)
);
CREATE TABLE IF NOT EXISTS population (
	geography   TEXT    NOT NULL,
	unit        TEXT    NOT NULL,
	total       INTEGER NOT NULL DEFAULT 0,
	male        INTEGER NOT NULL DEFAULT 0,
	female      INTEGER NOT NULL DEFAULT 0,
	child       INTEGER NOT NULL DEFAULT 0,
	adolescent  INTEGER NOT NULL DEFAULT 0,
	youth       INTEGER NOT NULL DEFAULT 0,
	adult       INTEGER NOT NULL DEFAULT 0,
	older_adult INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (geography, unit)
);
`

// CreateSchema creates the case tables in db and stamps the schema version.
func CreateSchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("creating case schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return fmt.Errorf("stamping schema version: %w", err)
	}
	return nil
}
