package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/lifetravel/cartguard/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database for one test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
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

// capturedMail is one message delivered through the test transport.
type capturedMail struct {
	To  []string
	Msg string
}

// newTestEmail returns a mail service wired to an in-memory transport and
// the slice its deliveries land in.
func newTestEmail(t *testing.T, db *gorm.DB) (*EmailService, *[]capturedMail) {
	t.Helper()

	sc := NewSystemConfigService(db)
	if err := sc.Set("email_enabled", "true"); err != nil {
		t.Fatalf("failed to enable email: %v", err)
	}
	if err := sc.Set("email_host", "smtp.test"); err != nil {
		t.Fatalf("failed to set email host: %v", err)
	}
	if err := sc.Set("email_from", "noreply@test"); err != nil {
		t.Fatalf("failed to set email from: %v", err)
	}

	var sent []capturedMail
	svc := NewEmailService(db, nil)
	svc.SetTransport(func(cfg *EmailConfig, from string, to []string, msg []byte) error {
		sent = append(sent, capturedMail{To: to, Msg: string(msg)})
		return nil
	})
	return svc, &sent
}
