package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"shortlink/internal/repository"
)

// AdminOverview is the aggregate picture served to administrators.
type AdminOverview struct {
	TotalUsers    int64                     `json:"total_users"`
	TotalLinks    int64                     `json:"total_links"`
	TotalClicks   int64                     `json:"total_clicks"`
	EndpointStats []repository.EndpointStat `json:"endpoint_stats"`
}

// LinkTotals exposes aggregate link counters.
type LinkTotals interface {
	Totals(ctx context.Context) (links, clicks int64, err error)
}

// UserCounter exposes the registered-user count.
type UserCounter interface {
	Count(ctx context.Context) (int64, error)
}

// StatLister exposes per-endpoint usage counters.
type StatLister interface {
	ListEndpointStats(ctx context.Context) ([]repository.EndpointStat, error)
}

// AdminService assembles the admin overview.
type AdminService struct {
	links  LinkTotals
	users  UserCounter
	stats  StatLister
	logger *zap.Logger
}

func NewAdminService(links LinkTotals, users UserCounter, stats StatLister, logger *zap.Logger) *AdminService {
	return &AdminService{links: links, users: users, stats: stats, logger: logger}
}

func (s *AdminService) Overview(ctx context.Context) (*AdminOverview, error) {
	links, clicks, err := s.links.Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: admin link totals: %w", err)
	}
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: admin user count: %w", err)
	}
	stats, err := s.stats.ListEndpointStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: admin endpoint stats: %w", err)
	}

	return &AdminOverview{
		TotalUsers:    users,
		TotalLinks:    links,
		TotalClicks:   clicks,
		EndpointStats: stats,
	}, nil
}
