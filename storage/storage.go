// Package storage is the embedded relational store: events, snapshots,
// forensic captures, and daemon state in one SQLite file with a fixed
// schema version. On a version mismatch the store is dropped and
// recreated; there are no migrations.
package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the compile-time schema version. Bump it whenever the
// table shapes change; a running daemon pointed at an on-disk store with a
// different value drops and recreates every table.
const SchemaVersion = 1

// Store is the daemon's single writer connection plus the read helpers
// used by the tracker and forensics orchestrator. Viewer processes open
// their own read-only connections.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite file at path in WAL mode, checks the
// schema version, and drops+recreates the store on a mismatch.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	// Single writer connection; modernc.org/sqlite does not support
	// concurrent writers on one *sql.DB without this.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(ddlSchemaVersion); err != nil {
		return fmt.Errorf("storage: create schema_version table: %w", err)
	}

	var stored int
	err := s.db.QueryRow(`SELECT version FROM schema_version WHERE id = 1`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		return s.recreate()
	case err != nil:
		return fmt.Errorf("storage: read schema version: %w", err)
	case stored != SchemaVersion:
		return s.recreate()
	}
	return nil
}

// recreate drops every table and rebuilds the schema from scratch. No
// data is preserved across a version change.
func (s *Store) recreate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: begin recreate tx: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range dropStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("storage: drop table: %w", err)
		}
	}
	for _, stmt := range createStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("storage: create table: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_version(id, version) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version`, SchemaVersion); err != nil {
		return fmt.Errorf("storage: write schema version: %w", err)
	}
	return tx.Commit()
}
