package handlers

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lifetravel/cartguard/internal/config"
	"github.com/lifetravel/cartguard/internal/models"
	"github.com/lifetravel/cartguard/internal/services"
	"github.com/lifetravel/cartguard/internal/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetNonceSecret("test-nonce-secret")
	utils.SetJWTSecret("test-jwt-secret")
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.SystemConfig{},
		&models.SecurityEvent{},
		&models.AbandonedCart{},
		&models.SchedulerLock{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// cartStack wires the full cart/recovery service chain over one test
// database, with mail captured in memory and a synchronous queue.
type cartStack struct {
	db       *gorm.DB
	carts    *services.CartService
	recovery *services.RecoveryService
	queue    *services.SyncQueue
	sent     *[]string
}

func newCartStack(t *testing.T) *cartStack {
	t.Helper()
	db := newTestDB(t)

	sc := services.NewSystemConfigService(db)
	for key, value := range map[string]string{
		"email_enabled":           "true",
		"email_host":              "smtp.test",
		"email_from":              "noreply@test",
		"recovery_email_template": "<p>Hi {{customer_name}}: {{recovery_link}}</p>",
	} {
		if err := sc.Set(key, value); err != nil {
			t.Fatalf("config seed failed: %v", err)
		}
	}

	var sent []string
	email := services.NewEmailService(db, nil)
	email.SetTransport(func(cfg *services.EmailConfig, from string, to []string, msg []byte) error {
		sent = append(sent, strings.Join(to, ","))
		return nil
	})

	hooks := services.NewHookRegistry()
	log := services.NewSecurityLogger(db, hooks, email, "", "")
	carts := services.NewCartService(db, log)
	recovery := services.NewRecoveryService(db, carts, log, email, &config.RecoveryConfig{
		BaseURL:  "https://shop.test",
		SiteName: "Test Excursions",
	})

	queue := services.NewSyncQueue()
	queue.SetProcessor(recovery.ProcessRecoveryTask)

	return &cartStack{db: db, carts: carts, recovery: recovery, queue: queue, sent: &sent}
}

func (s *cartStack) seedCart(t *testing.T, cart models.AbandonedCart) *models.AbandonedCart {
	t.Helper()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = time.Now()
	}
	if cart.LastUpdated.IsZero() {
		cart.LastUpdated = cart.CreatedAt
	}
	if err := s.db.Create(&cart).Error; err != nil {
		t.Fatalf("seed cart failed: %v", err)
	}
	return &cart
}
