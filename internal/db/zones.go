package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/banshee-data/fleetwatch/internal/geo"
)

// ErrZoneNotFound is returned when a zone id does not exist.
var ErrZoneNotFound = errors.New("zone not found")

// CreateZone inserts a zone and assigns its id. The geometry is validated
// up front so degenerate shapes never reach the analyzer from storage.
func (db *DB) CreateZone(z *geo.Zone) error {
	if err := (geo.Zone{ID: z.ID, Shape: z.Shape}).Validate(); err != nil {
		return err
	}
	shape, err := geo.MarshalShape(z.Shape)
	if err != nil {
		return err
	}
	res, err := db.Exec(`
		INSERT INTO zones (name, category, color, shape) VALUES (?, ?, ?, ?)`,
		z.Name, z.Category, z.Color, shape)
	if err != nil {
		return fmt.Errorf("failed to create zone: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read zone id: %w", err)
	}
	z.ID = id
	return nil
}

// UpdateZone replaces the stored zone with the given one.
func (db *DB) UpdateZone(z geo.Zone) error {
	if err := z.Validate(); err != nil {
		return err
	}
	shape, err := geo.MarshalShape(z.Shape)
	if err != nil {
		return err
	}
	res, err := db.Exec(`
		UPDATE zones SET name = ?, category = ?, color = ?, shape = ?, updated_at = CURRENT_TIMESTAMP
		WHERE zone_id = ?`,
		z.Name, z.Category, z.Color, shape, z.ID)
	if err != nil {
		return fmt.Errorf("failed to update zone %d: %w", z.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrZoneNotFound
	}
	return nil
}

// DeleteZone removes a zone.
func (db *DB) DeleteZone(id int64) error {
	res, err := db.Exec(`DELETE FROM zones WHERE zone_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete zone %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrZoneNotFound
	}
	return nil
}

// GetZone returns one zone.
func (db *DB) GetZone(id int64) (geo.Zone, error) {
	row := db.QueryRow(`SELECT zone_id, name, category, color, shape FROM zones WHERE zone_id = ?`, id)
	z, err := scanZone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return geo.Zone{}, ErrZoneNotFound
	}
	return z, err
}

// ListZones returns all zones. It implements analysis.ZoneSource.
func (db *DB) ListZones() ([]geo.Zone, error) {
	rows, err := db.Query(`SELECT zone_id, name, category, color, shape FROM zones ORDER BY zone_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query zones: %w", err)
	}
	defer rows.Close()

	var zones []geo.Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return zones, nil
}

func scanZone(row rowScanner) (geo.Zone, error) {
	var z geo.Zone
	var shape string
	if err := row.Scan(&z.ID, &z.Name, &z.Category, &z.Color, &shape); err != nil {
		return geo.Zone{}, err
	}
	s, err := geo.UnmarshalShape(shape)
	if err != nil {
		return geo.Zone{}, fmt.Errorf("zone %d: %w", z.ID, err)
	}
	z.Shape = s
	return z, nil
}
