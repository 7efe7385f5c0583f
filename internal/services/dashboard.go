package services

import (
	"time"

	"github.com/lifetravel/cartguard/internal/models"
	"gorm.io/gorm"
)

// DashboardService aggregates the security log and cart table for the
// admin overview page.
type DashboardService struct {
	db       *gorm.DB
	analyzer *SecurityAnalyzer
	carts    *CartService
}

func NewDashboardService(db *gorm.DB, analyzer *SecurityAnalyzer, carts *CartService) *DashboardService {
	return &DashboardService{db: db, analyzer: analyzer, carts: carts}
}

type EventTypeStat struct {
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

type IPStat struct {
	IPAddress string `json:"ip_address"`
	Count     int64  `json:"count"`
}

type DashboardResponse struct {
	Risk          *RiskScore      `json:"risk"`
	TopEventTypes []EventTypeStat `json:"top_event_types"`
	TopIPs        []IPStat        `json:"top_ips"`
	Carts         *CartStats      `json:"carts"`
}

// RiskScore exposes the analyzer's current score without the rest of
// the overview payload.
func (s *DashboardService) RiskScore() (*RiskScore, error) {
	return s.analyzer.CalculateRiskScore()
}

// GetOverview builds the dashboard payload over the trailing 7 days.
func (s *DashboardService) GetOverview() (*DashboardResponse, error) {
	risk, err := s.analyzer.CalculateRiskScore()
	if err != nil {
		return nil, err
	}

	since := time.Now().Add(-riskScoreWindow)

	var eventTypes []EventTypeStat
	err = s.db.Model(&models.SecurityEvent{}).
		Select("event_type, COUNT(*) as count").
		Where("event_time >= ?", since).
		Group("event_type").
		Order("count DESC").
		Limit(10).
		Scan(&eventTypes).Error
	if err != nil {
		return nil, err
	}

	var ips []IPStat
	err = s.db.Model(&models.SecurityEvent{}).
		Select("ip_address, COUNT(*) as count").
		Where("event_time >= ? AND ip_address <> ''", since).
		Group("ip_address").
		Order("count DESC").
		Limit(10).
		Scan(&ips).Error
	if err != nil {
		return nil, err
	}

	cartStats, err := s.carts.Stats()
	if err != nil {
		return nil, err
	}

	return &DashboardResponse{
		Risk:          risk,
		TopEventTypes: eventTypes,
		TopIPs:        ips,
		Carts:         cartStats,
	}, nil
}
