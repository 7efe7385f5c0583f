package services

import (
	"errors"
	"os"
	"time"

	"github.com/lifetravel/cartguard/internal/config"
	"github.com/lifetravel/cartguard/internal/models"
	"github.com/lifetravel/cartguard/internal/utils"
	"github.com/lifetravel/cartguard/pkg/logger"
	"gorm.io/gorm"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

type AuthService struct {
	db  *gorm.DB
	log *SecurityLogger
	cfg *config.JWTConfig
}

func NewAuthService(db *gorm.DB, log *SecurityLogger, cfg *config.JWTConfig) *AuthService {
	return &AuthService{db: db, log: log, cfg: cfg}
}

type LoginResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login verifies credentials and issues a JWT. Failed attempts are recorded
// in the security log.
func (s *AuthService) Login(username, password, ip, userAgent string) (*LoginResult, error) {
	var user models.User
	err := s.db.Where("username = ? AND is_active = ?", username, true).First(&user).Error
	if err != nil || !utils.CheckPassword(password, user.Password) {
		s.log.LogEvent(EventInput{
			EventType: "admin_login_failed",
			Severity:  models.SeverityWarning,
			IPAddress: ip,
			UserAgent: userAgent,
			EventData: map[string]interface{}{"username": username},
		})
		return nil, ErrInvalidCredentials
	}

	token, err := utils.GenerateToken(user.ID, user.Username, user.Role, s.cfg.ExpireHour)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s.db.Model(&user).Update("last_login", &now)

	uid := user.ID
	s.log.LogEvent(EventInput{
		EventType: "admin_login",
		Severity:  models.SeverityInfo,
		UserID:    &uid,
		IPAddress: ip,
		UserAgent: userAgent,
	})

	return &LoginResult{Token: token, User: &user}, nil
}

// GetUser loads one user by id.
func (s *AuthService) GetUser(userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateAdminIfNotExists bootstraps the default admin account. The initial
// password comes from ADMIN_PASSWORD, defaulting to "admin123" in dev.
func (s *AuthService) CreateAdminIfNotExists() error {
	var count int64
	if err := s.db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
		logger.Warn().Msg("ADMIN_PASSWORD not set, using default admin password")
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}

	admin := models.User{
		Username: "admin",
		Password: hash,
		Role:     "admin",
		IsActive: true,
	}
	if err := s.db.Create(&admin).Error; err != nil {
		return err
	}

	logger.Info().Msg("default admin user created")
	return nil
}
