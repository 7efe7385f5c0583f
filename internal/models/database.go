package models

import (
	"fmt"

	"github.com/lifetravel/cartguard/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB(cfg *config.DatabaseConfig) error {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	DB = db
	return nil
}

func AutoMigrate() error {
	return DB.AutoMigrate(
		&User{},
		&SystemConfig{},
		&SecurityEvent{},
		&AbandonedCart{},
		&SchedulerLock{},
	)
}

func GetDB() *gorm.DB {
	return DB
}

// SeedDefaultData creates default system configs if not exists
func SeedDefaultData() error {
	defaultConfigs := []SystemConfig{
		{Key: "suspicious_ip_attempts", Value: "5", Type: "int", Group: "security", Label: "Suspicious IP event threshold (24h)"},
		{Key: "token_validation_failures", Value: "3", Type: "int", Group: "security", Label: "Failed token validations per IP (1h)"},
		{Key: "rapid_cart_creation", Value: "10", Type: "int", Group: "security", Label: "Cart creations per IP (1h)"},
		{Key: "suspicious_recovery_attempts", Value: "3", Type: "int", Group: "security", Label: "Recovery attempts per cart/IP (24h)"},
		{Key: "log_retention_days", Value: "90", Type: "int", Group: "security", Label: "Security log retention days"},
		{Key: "recovery_email_subject", Value: "Your excursion is waiting for you", Type: "string", Group: "recovery", Label: "Recovery email subject"},
		{Key: "recovery_email_template", Value: defaultRecoveryTemplate, Type: "string", Group: "recovery", Label: "Recovery email HTML template"},
		{Key: "email_enabled", Value: "false", Type: "bool", Group: "email", Label: "Enable outbound email"},
		{Key: "email_host", Value: "", Type: "string", Group: "email", Label: "SMTP host"},
		{Key: "email_port", Value: "587", Type: "int", Group: "email", Label: "SMTP port"},
		{Key: "email_username", Value: "", Type: "string", Group: "email", Label: "SMTP username"},
		{Key: "email_password", Value: "", Type: "string", Group: "email", Label: "SMTP password"},
		{Key: "email_from", Value: "", Type: "string", Group: "email", Label: "From address"},
		{Key: "email_use_tls", Value: "false", Type: "bool", Group: "email", Label: "Use SMTP TLS"},
	}

	for _, cfg := range defaultConfigs {
		var count int64
		DB.Model(&SystemConfig{}).Where("config_key = ?", cfg.Key).Count(&count)
		if count == 0 {
			if err := DB.Create(&cfg).Error; err != nil {
				return err
			}
		}
	}

	return nil
}

const defaultRecoveryTemplate = `<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Hello {{customer_name}},</h2>
  <p>You left an excursion booking in your cart on {{site_name}}.</p>
  <p>Your cart total: <strong>{{cart_total}}</strong></p>
  <p><a href="{{recovery_link}}" style="background: #0073aa; color: #fff; padding: 10px 18px; border-radius: 4px; text-decoration: none;">Resume my booking</a></p>
  <p style="color: #888; font-size: 12px;">This link is valid for 24 hours.</p>
</body>
</html>`
