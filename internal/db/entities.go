package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/fleetwatch/internal/fleet"
)

// UpsertIdentities creates or replaces the identity fields of the given
// records. The telemetry column is never touched here: identity refresh
// must not clobber the latest flushed snapshot.
func (db *DB) UpsertIdentities(records []fleet.EntityRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin identity upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO entities (tracker_id, label, group_name, model, phone, device_id, contract_end_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tracker_id) DO UPDATE SET
			label = excluded.label,
			group_name = excluded.group_name,
			model = excluded.model,
			phone = excluded.phone,
			device_id = excluded.device_id,
			contract_end_date = excluded.contract_end_date,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("failed to prepare identity upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.ID, r.Label, r.Group, r.Model, r.Phone, r.DeviceID, r.ContractEndDate); err != nil {
			return fmt.Errorf("failed to upsert identity %d: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// MergeTelemetry updates the telemetry snapshot of one existing identity
// row. If the row does not exist the update is dropped: the identity list
// may simply not have loaded yet, so this is a defined no-op, not an
// error.
func (db *DB) MergeTelemetry(id fleet.EntityID, t fleet.TelemetryState) error {
	return db.mergeTelemetryExec(db.DB, id, t)
}

// MergeTelemetryBatch merges a drained buffer batch in one transaction.
// It implements buffer.Sink.
func (db *DB) MergeTelemetryBatch(batch fleet.Batch) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin telemetry merge: %w", err)
	}
	defer tx.Rollback()

	for id, t := range batch {
		if err := db.mergeTelemetryExec(tx, id, t); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (db *DB) mergeTelemetryExec(e execer, id fleet.EntityID, t fleet.TelemetryState) error {
	blob, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry for %d: %w", id, err)
	}
	_, err = e.Exec(`
		UPDATE entities
		SET telemetry = ?, telemetry_updated_at = ?
		WHERE tracker_id = ?`,
		string(blob), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to merge telemetry for %d: %w", id, err)
	}
	// zero rows affected means the identity is unknown; dropped by design
	return nil
}

// GetAll returns the full entity snapshot, the offline fallback source
// when no live state is available.
func (db *DB) GetAll() ([]fleet.EntityRecord, error) {
	rows, err := db.Query(`
		SELECT tracker_id, label, group_name, model, phone, device_id, contract_end_date, telemetry
		FROM entities ORDER BY tracker_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var records []fleet.EntityRecord
	for rows.Next() {
		r, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// GetEntity returns one entity record.
func (db *DB) GetEntity(id fleet.EntityID) (fleet.EntityRecord, error) {
	row := db.QueryRow(`
		SELECT tracker_id, label, group_name, model, phone, device_id, contract_end_date, telemetry
		FROM entities WHERE tracker_id = ?`, id)
	return scanEntity(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (fleet.EntityRecord, error) {
	var r fleet.EntityRecord
	var telemetry sql.NullString
	if err := row.Scan(&r.ID, &r.Label, &r.Group, &r.Model, &r.Phone, &r.DeviceID, &r.ContractEndDate, &telemetry); err != nil {
		return fleet.EntityRecord{}, fmt.Errorf("failed to scan entity: %w", err)
	}
	if telemetry.Valid && telemetry.String != "" {
		var t fleet.TelemetryState
		if err := json.Unmarshal([]byte(telemetry.String), &t); err != nil {
			return fleet.EntityRecord{}, fmt.Errorf("failed to unmarshal telemetry for %d: %w", r.ID, err)
		}
		r.Telemetry = &t
	}
	return r, nil
}
