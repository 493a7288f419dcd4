package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/gridforge/gpumesh/internal/models"
)

// DeviceStore implements store.DeviceStore using PostgreSQL.
type DeviceStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Upsert creates or refreshes a device record.
func (s *DeviceStore) Upsert(ctx context.Context, device models.NodeInfo) error {
	query := `
		INSERT INTO devices (id, gpu_model, vram_gb, hash_rate, partition_id, peers, load, last_heartbeat, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			gpu_model = EXCLUDED.gpu_model,
			vram_gb = EXCLUDED.vram_gb,
			hash_rate = EXCLUDED.hash_rate,
			partition_id = EXCLUDED.partition_id,
			peers = EXCLUDED.peers,
			load = EXCLUDED.load,
			last_heartbeat = EXCLUDED.last_heartbeat`

	_, err := s.db.ExecContext(ctx, query,
		device.ID,
		device.Specs.GPUModel,
		device.Specs.VRAMGB,
		device.Specs.HashRate,
		device.PartitionID,
		pq.Array(device.Peers),
		device.Load,
		device.LastHeartbeat,
		device.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", device.ID, err)
	}
	return nil
}

// Get retrieves a device record by id.
func (s *DeviceStore) Get(ctx context.Context, id string) (*models.NodeInfo, error) {
	query := `
		SELECT id, gpu_model, vram_gb, hash_rate, partition_id, peers, load, last_heartbeat, registered_at
		FROM devices WHERE id = $1`

	device, err := scanDevice(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting device %s: %w", id, err)
	}
	return device, nil
}

// List retrieves all device records ordered by registration time.
func (s *DeviceStore) List(ctx context.Context) ([]*models.NodeInfo, error) {
	query := `
		SELECT id, gpu_model, vram_gb, hash_rate, partition_id, peers, load, last_heartbeat, registered_at
		FROM devices ORDER BY registered_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.NodeInfo
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*models.NodeInfo, error) {
	var device models.NodeInfo
	var peers pq.StringArray

	err := row.Scan(
		&device.ID,
		&device.Specs.GPUModel,
		&device.Specs.VRAMGB,
		&device.Specs.HashRate,
		&device.PartitionID,
		&peers,
		&device.Load,
		&device.LastHeartbeat,
		&device.RegisteredAt,
	)
	if err != nil {
		return nil, err
	}
	device.Peers = peers
	return &device, nil
}
