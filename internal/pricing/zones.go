package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/poolup/carpool/pkg/logger"
	"go.uber.org/zap"
)

// zoneRefreshInterval bounds how stale the in-process zone snapshot can get.
// Zone edits are rare and admin-driven, so minutes of staleness is acceptable.
const zoneRefreshInterval = 5 * time.Minute

// ZoneProvider serves the zone snapshot the engine quotes against. Zones are
// loaded from postgres once and refreshed in the background; Quote never
// touches the database.
type ZoneProvider struct {
	db *pgxpool.Pool

	mu       sync.RWMutex
	zones    []Zone
	loadedAt time.Time
}

// NewZoneProvider creates a provider and performs the initial load.
func NewZoneProvider(ctx context.Context, db *pgxpool.Pool) (*ZoneProvider, error) {
	p := &ZoneProvider{db: db}
	if err := p.refresh(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Zones returns the current snapshot. The returned slice must not be mutated.
func (p *ZoneProvider) Zones() []Zone {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.zones
}

// LoadedAt reports when the current snapshot was loaded, for health surfaces.
func (p *ZoneProvider) LoadedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loadedAt
}

// Start refreshes the snapshot periodically until ctx is cancelled.
func (p *ZoneProvider) Start(ctx context.Context) {
	ticker := time.NewTicker(zoneRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.refresh(ctx); err != nil {
				// Keep serving the previous snapshot
				logger.Get().Warn("zone snapshot refresh failed", zap.Error(err))
			}
		}
	}
}

func (p *ZoneProvider) refresh(ctx context.Context) error {
	rows, err := p.db.Query(ctx, `
		SELECT id, name, display_name, is_airport, priority, polygon
		FROM zones
		ORDER BY priority ASC, name ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to load zones: %w", err)
	}
	defer rows.Close()

	var zones []Zone
	for rows.Next() {
		var z Zone
		var polygonJSON []byte
		if err := rows.Scan(&z.ID, &z.Name, &z.DisplayName, &z.IsAirport, &z.Priority, &polygonJSON); err != nil {
			return fmt.Errorf("failed to scan zone: %w", err)
		}
		if err := json.Unmarshal(polygonJSON, &z.Polygon); err != nil {
			return fmt.Errorf("failed to parse polygon for zone %s: %w", z.Name, err)
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read zones: %w", err)
	}

	p.mu.Lock()
	p.zones = zones
	p.loadedAt = time.Now()
	p.mu.Unlock()

	logger.Get().Info("zone snapshot loaded", zap.Int("zones", len(zones)))
	return nil
}
