package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"rtb-client/internal/config"
)

// CreativeRow is one ad creative in the sandbox inventory.
type CreativeRow struct {
	ID       string `yaml:"id"`
	SlotID   string `yaml:"slot_id"`
	SlotType int    `yaml:"slot_type"`
	ImageURL string `yaml:"image_url"`
	CTA      string `yaml:"cta"`
	TrackURL string `yaml:"track_url"`
	Priority int    `yaml:"priority"`
	Status   string `yaml:"status"`
}

// Store loads the inventory from Postgres.
type Store struct {
	pool    *pgxpool.Pool
	channel string
}

func New(ctx context.Context, cfg config.Config) (*Store, error) {
	dsn := cfg.DSN()
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Postgres.MaxIdleConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return &Store{pool: pool, channel: cfg.Listener.Channel}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// LoadActiveCreatives loads every ACTIVE creative.
func (s *Store) LoadActiveCreatives(ctx context.Context) ([]CreativeRow, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.slot_id, c.slot_type, c.image_url, c.cta, c.track_url, c.priority, c.status
		FROM creatives c
		WHERE c.status = 'ACTIVE'
		ORDER BY c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query creatives: %w", err)
	}
	defer rows.Close()

	var out []CreativeRow
	for rows.Next() {
		var (
			r             CreativeRow
			slot, cta, tr sql.NullString
		)
		if err := rows.Scan(&r.ID, &slot, &r.SlotType, &r.ImageURL, &cta, &tr, &r.Priority, &r.Status); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.SlotID, r.CTA, r.TrackURL = slot.String, cta.String, tr.String
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *Store) ListenChannel() string {
	if s.channel == "" {
		return "creatives_changed"
	}
	return s.channel
}

func (s *Store) PgxPool() *pgxpool.Pool {
	if s.pool == nil {
		panic(errors.New("pgx pool is nil"))
	}
	return s.pool
}
