package trips

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/poolup/carpool/pkg/common"
)

// PgDriverDirectory resolves driver snapshots from the drivers table.
type PgDriverDirectory struct {
	db *pgxpool.Pool
}

// NewPgDriverDirectory creates a postgres-backed driver directory.
func NewPgDriverDirectory(db *pgxpool.Pool) *PgDriverDirectory {
	return &PgDriverDirectory{db: db}
}

// GetDriverInfo loads the driver profile captured into the trip at accept.
func (d *PgDriverDirectory) GetDriverInfo(ctx context.Context, driverID uuid.UUID) (*DriverInfo, error) {
	info := &DriverInfo{DriverID: driverID}
	err := d.db.QueryRow(ctx, `
		SELECT name, vehicle_make, vehicle_model, vehicle_color, license_plate, rating
		FROM drivers
		WHERE id = $1
	`, driverID).Scan(
		&info.Name,
		&info.VehicleMake,
		&info.VehicleModel,
		&info.VehicleColor,
		&info.LicensePlate,
		&info.Rating,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("driver not found", nil)
		}
		return nil, fmt.Errorf("failed to load driver: %w", err)
	}
	return info, nil
}
