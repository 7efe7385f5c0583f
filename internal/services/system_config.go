package services

import (
	"strconv"

	"github.com/lifetravel/cartguard/internal/models"
	"gorm.io/gorm"
)

type SystemConfigService struct {
	db *gorm.DB
}

func NewSystemConfigService(db *gorm.DB) *SystemConfigService {
	return &SystemConfigService{db: db}
}

// GetString returns a config value, or fallback when the key is missing.
func (s *SystemConfigService) GetString(key, fallback string) string {
	var cfg models.SystemConfig
	if err := s.db.Where("config_key = ?", key).First(&cfg).Error; err != nil {
		return fallback
	}
	return cfg.Value
}

// GetInt returns an integer config value, or fallback when missing/invalid.
func (s *SystemConfigService) GetInt(key string, fallback int) int {
	v := s.GetString(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// GetBool returns a boolean config value, or fallback when missing.
func (s *SystemConfigService) GetBool(key string, fallback bool) bool {
	v := s.GetString(key, "")
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1"
}

// Set upserts a config value.
func (s *SystemConfigService) Set(key, value string) error {
	var cfg models.SystemConfig
	err := s.db.Where("config_key = ?", key).First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		return s.db.Create(&models.SystemConfig{Key: key, Value: value}).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&cfg).Update("value", value).Error
}

// ListGroup returns all config rows in a group.
func (s *SystemConfigService) ListGroup(group string) ([]models.SystemConfig, error) {
	var configs []models.SystemConfig
	if err := s.db.Where("config_group = ?", group).Order("config_key").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

// SecurityThresholds are the tunable detector limits, one count per window.
type SecurityThresholds struct {
	SuspiciousIPAttempts       int `json:"suspicious_ip_attempts"`
	TokenValidationFailures    int `json:"token_validation_failures"`
	RapidCartCreation          int `json:"rapid_cart_creation"`
	SuspiciousRecoveryAttempts int `json:"suspicious_recovery_attempts"`
}

// DefaultThresholds mirror the seeded system_configs values.
func DefaultThresholds() SecurityThresholds {
	return SecurityThresholds{
		SuspiciousIPAttempts:       5,
		TokenValidationFailures:    3,
		RapidCartCreation:          10,
		SuspiciousRecoveryAttempts: 3,
	}
}

// GetThresholds loads the detector thresholds, falling back to defaults.
func (s *SystemConfigService) GetThresholds() SecurityThresholds {
	d := DefaultThresholds()
	return SecurityThresholds{
		SuspiciousIPAttempts:       s.GetInt("suspicious_ip_attempts", d.SuspiciousIPAttempts),
		TokenValidationFailures:    s.GetInt("token_validation_failures", d.TokenValidationFailures),
		RapidCartCreation:          s.GetInt("rapid_cart_creation", d.RapidCartCreation),
		SuspiciousRecoveryAttempts: s.GetInt("suspicious_recovery_attempts", d.SuspiciousRecoveryAttempts),
	}
}

// SetThresholds persists the detector thresholds.
func (s *SystemConfigService) SetThresholds(t SecurityThresholds) error {
	pairs := map[string]int{
		"suspicious_ip_attempts":       t.SuspiciousIPAttempts,
		"token_validation_failures":    t.TokenValidationFailures,
		"rapid_cart_creation":          t.RapidCartCreation,
		"suspicious_recovery_attempts": t.SuspiciousRecoveryAttempts,
	}
	for key, v := range pairs {
		if v <= 0 {
			continue // zero or negative thresholds would fire on everything
		}
		if err := s.Set(key, strconv.Itoa(v)); err != nil {
			return err
		}
	}
	return nil
}

// GetRetentionDays returns the security log retention period.
func (s *SystemConfigService) GetRetentionDays() int {
	return s.GetInt("log_retention_days", 90)
}

// SetRetentionDays stores the security log retention period.
func (s *SystemConfigService) SetRetentionDays(days int) error {
	return s.Set("log_retention_days", strconv.Itoa(days))
}
