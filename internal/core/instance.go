package core

import (
	"context"
	"fmt"
	"time"

	"github.com/nilay/reportgen/internal/model"
)

type RegistryService struct {
	db DB
}

func NewRegistryService(db DB) *RegistryService {
	return &RegistryService{db: db}
}

// GetOrCreate returns the instance row for the given MAC, creating it on
// first use and refreshing ip and last_seen otherwise. The single upsert
// keeps concurrent first registrations from racing; mac is UNIQUE, so both
// callers land on the same row.
func (s *RegistryService) GetOrCreate(ctx context.Context, mac, ip string, now time.Time) (*model.Instance, error) {
	inst := model.Instance{MAC: mac, IP: ip, LastSeen: now}
	err := s.db.QueryRow(ctx,
		`INSERT INTO instances (mac, ip, last_seen) VALUES ($1, $2, $3)
		 ON CONFLICT (mac) DO UPDATE SET ip = EXCLUDED.ip, last_seen = EXCLUDED.last_seen
		 RETURNING id`,
		mac, ip, now,
	).Scan(&inst.ID)
	if err != nil {
		return nil, fmt.Errorf("register instance %s: %w", mac, err)
	}
	return &inst, nil
}
