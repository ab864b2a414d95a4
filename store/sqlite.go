package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/relaykms/kmsgate/codec"
)

// SQLiteStore is the on-disk (or in-memory, via ":memory:") activation
// record store. A single *sql.DB is shared across requests; SQLite
// serializes writers internally so no additional locking is needed here.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the client bookkeeping database at path and
// runs its schema migration. path may be ":memory:" for an ephemeral,
// process-lifetime-only store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite has no useful concurrent-writer story; keep one connection.
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS clients (
	cmid TEXT PRIMARY KEY,
	app_group TEXT NOT NULL,
	sku TEXT NOT NULL,
	epid TEXT NOT NULL,
	first_request_time INTEGER NOT NULL,
	last_request_time INTEGER NOT NULL,
	n_requests INTEGER NOT NULL DEFAULT 1,
	ring_1 INTEGER,
	ring_2 INTEGER,
	ring_3 INTEGER,
	ring_4 INTEGER,
	ring_5 INTEGER,
	ring_6 INTEGER
)`

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Upsert implements kmsmsg.Store. The first request for a cmid inserts a
// fresh row using candidateEPID; every subsequent request from the same
// cmid returns the EPID recorded on the first insert,
// regardless of what candidateEPID this call computed, so a client's
// activation identity never changes across renewals.
//
// A row is keyed on cmid alone, matching the persisted schema: a machine
// re-activating against a different application group overwrites the row's
// app_group and sku (keeping its EPID and request count) rather than
// growing a second row, since a real client only
// ever runs one activation dialect at a time.
func (s *SQLiteStore) Upsert(cmid, appGroup, sku codec.UUID, requestTime uint64, candidateEPID string) (string, int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", 0, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var existing Record
	var epidCol sql.NullString
	var ring [ringSize]sql.NullInt64
	row := tx.QueryRow(`SELECT epid, first_request_time, n_requests,
		ring_1, ring_2, ring_3, ring_4, ring_5, ring_6
		FROM clients WHERE cmid = ?`, cmid.String())
	err = row.Scan(&epidCol, &existing.FirstRequestTime, &existing.NRequests,
		&ring[0], &ring[1], &ring[2], &ring[3], &ring[4], &ring[5])

	switch {
	case err == sql.ErrNoRows:
		newRing := pushRing([ringSize]uint64{}, requestTime)
		if _, err := tx.Exec(`INSERT INTO clients
			(cmid, app_group, sku, epid, first_request_time, last_request_time, n_requests,
			 ring_1, ring_2, ring_3, ring_4, ring_5, ring_6)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?)`,
			cmid.String(), appGroup.String(), sku.String(), candidateEPID,
			requestTime, requestTime,
			newRing[0], newRing[1], newRing[2], newRing[3], newRing[4], newRing[5]); err != nil {
			return "", 0, fmt.Errorf("store: insert: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", 0, fmt.Errorf("store: commit: %w", err)
		}
		return candidateEPID, 1, nil

	case err != nil:
		return "", 0, fmt.Errorf("store: select: %w", err)
	}

	epid := candidateEPID
	if epidCol.Valid && epidCol.String != "" {
		epid = epidCol.String
	}
	var oldRing [ringSize]uint64
	for i, v := range ring {
		if v.Valid {
			oldRing[i] = uint64(v.Int64)
		}
	}
	newRing := pushRing(oldRing, requestTime)
	nRequests := existing.NRequests + 1

	if _, err := tx.Exec(`UPDATE clients SET
		app_group = ?, sku = ?, epid = ?, last_request_time = ?, n_requests = ?,
		ring_1 = ?, ring_2 = ?, ring_3 = ?, ring_4 = ?, ring_5 = ?, ring_6 = ?
		WHERE cmid = ?`,
		appGroup.String(), sku.String(), epid, requestTime, nRequests,
		newRing[0], newRing[1], newRing[2], newRing[3], newRing[4], newRing[5],
		cmid.String()); err != nil {
		return "", 0, fmt.Errorf("store: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", 0, fmt.Errorf("store: commit: %w", err)
	}
	return epid, nRequests, nil
}

// Lookup returns the persisted record for cmid, if any. Used by
// diagnostics and tests; not part of the kmsmsg.Store interface.
func (s *SQLiteStore) Lookup(cmid codec.UUID) (Record, bool, error) {
	var rec Record
	var appGroup, sku, epid string
	var ring [ringSize]sql.NullInt64
	row := s.db.QueryRow(`SELECT app_group, sku, epid, first_request_time, last_request_time, n_requests,
		ring_1, ring_2, ring_3, ring_4, ring_5, ring_6
		FROM clients WHERE cmid = ?`, cmid.String())
	err := row.Scan(&appGroup, &sku, &epid, &rec.FirstRequestTime, &rec.LastRequestTime, &rec.NRequests,
		&ring[0], &ring[1], &ring[2], &ring[3], &ring[4], &ring[5])
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("store: lookup: %w", err)
	}
	rec.CMID = cmid
	rec.ApplicationGroup = codec.MustUUID(appGroup)
	rec.SKU = codec.MustUUID(sku)
	rec.EPID = epid
	for i, v := range ring {
		if v.Valid {
			rec.Ring[i] = uint64(v.Int64)
		}
	}
	return rec, true, nil
}
