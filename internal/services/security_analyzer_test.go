package services

import (
	"testing"
	"time"

	"github.com/lifetravel/cartguard/internal/models"
	"gorm.io/gorm"
)

func newTestAnalyzer(t *testing.T) (*SecurityAnalyzer, *gorm.DB, *HookRegistry) {
	t.Helper()
	db := newTestDB(t)
	hooks := NewHookRegistry()
	log := NewSecurityLogger(db, hooks, nil, "", "")
	return NewSecurityAnalyzer(db, log, hooks), db, hooks
}

func seedEvents(t *testing.T, db *gorm.DB, n int, tmpl models.SecurityEvent) {
	t.Helper()
	for i := 0; i < n; i++ {
		row := tmpl
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
}

func countEvents(t *testing.T, db *gorm.DB, eventType string) int64 {
	t.Helper()
	var count int64
	db.Model(&models.SecurityEvent{}).Where("event_type = ?", eventType).Count(&count)
	return count
}

func TestCalculateRiskScore_Empty(t *testing.T) {
	analyzer, _, _ := newTestAnalyzer(t)

	risk, err := analyzer.CalculateRiskScore()
	if err != nil {
		t.Fatalf("CalculateRiskScore() error: %v", err)
	}
	if risk.Score != 0 {
		t.Errorf("score = %d, expected 0", risk.Score)
	}
	if risk.Level != "low" {
		t.Errorf("level = %q, expected low", risk.Level)
	}
}

func TestCalculateRiskScore_SingleCritical(t *testing.T) {
	analyzer, db, _ := newTestAnalyzer(t)

	seedEvents(t, db, 1, models.SecurityEvent{
		EventTime: time.Now(),
		EventType: "test_breach",
		Severity:  models.SeverityCritical,
	})

	risk, err := analyzer.CalculateRiskScore()
	if err != nil {
		t.Fatalf("CalculateRiskScore() error: %v", err)
	}
	// One critical weighs 10 out of a 500 divisor: 2 points.
	if risk.Score != 2 {
		t.Errorf("score = %d, expected 2", risk.Score)
	}
	if risk.Level != "low" {
		t.Errorf("level = %q, expected low", risk.Level)
	}
	if risk.Counts[models.SeverityCritical] != 1 {
		t.Errorf("critical count = %d, expected 1", risk.Counts[models.SeverityCritical])
	}
}

func TestCalculateRiskScore_ClampedAt100(t *testing.T) {
	analyzer, db, _ := newTestAnalyzer(t)

	seedEvents(t, db, 60, models.SecurityEvent{
		EventTime: time.Now(),
		EventType: "test_breach",
		Severity:  models.SeverityCritical,
	})

	risk, err := analyzer.CalculateRiskScore()
	if err != nil {
		t.Fatalf("CalculateRiskScore() error: %v", err)
	}
	if risk.Score != 100 {
		t.Errorf("score = %d, expected clamp at 100", risk.Score)
	}
	if risk.Level != "critical" {
		t.Errorf("level = %q, expected critical", risk.Level)
	}
}

func TestCalculateRiskScore_IgnoresOldEvents(t *testing.T) {
	analyzer, db, _ := newTestAnalyzer(t)

	seedEvents(t, db, 10, models.SecurityEvent{
		EventTime: time.Now().AddDate(0, 0, -8),
		EventType: "test_breach",
		Severity:  models.SeverityCritical,
	})

	risk, err := analyzer.CalculateRiskScore()
	if err != nil {
		t.Fatalf("CalculateRiskScore() error: %v", err)
	}
	if risk.Score != 0 {
		t.Errorf("score = %d, events outside the 7-day window should not count", risk.Score)
	}
}

func TestRiskLevel_Bands(t *testing.T) {
	tests := []struct {
		score    int
		expected string
	}{
		{0, "low"},
		{24, "low"},
		{25, "medium"},
		{49, "medium"},
		{50, "high"},
		{74, "high"},
		{75, "critical"},
		{100, "critical"},
	}
	for _, tt := range tests {
		if got := riskLevel(tt.score); got != tt.expected {
			t.Errorf("riskLevel(%d) = %q, expected %q", tt.score, got, tt.expected)
		}
	}
}

func TestDetectBruteForce(t *testing.T) {
	analyzer, db, hooks := newTestAnalyzer(t)

	fired := 0
	hooks.Register(HookTokenBruteForce, func(payload map[string]interface{}) {
		fired++
		if payload["ip_address"] != "203.0.113.9" {
			t.Errorf("hook ip = %v, expected 203.0.113.9", payload["ip_address"])
		}
	})

	// Default threshold is 3 failed validations in the last hour.
	seedEvents(t, db, 3, models.SecurityEvent{
		EventTime: time.Now().Add(-10 * time.Minute),
		EventType: models.EventTokenValidation,
		Severity:  models.SeverityNotice,
		IPAddress: "203.0.113.9",
		EventData: `{"is_valid":false,"reason":"bad nonce"}`,
	})
	// Successful validations do not count.
	seedEvents(t, db, 5, models.SecurityEvent{
		EventTime: time.Now().Add(-10 * time.Minute),
		EventType: models.EventTokenValidation,
		Severity:  models.SeverityInfo,
		IPAddress: "198.51.100.1",
		EventData: `{"is_valid":true}`,
	})

	analyzer.PerformPeriodicAnalysis()

	if fired != 1 {
		t.Errorf("brute force hook fired %d times, expected 1", fired)
	}
	if n := countEvents(t, db, models.EventBruteForce); n != 1 {
		t.Fatalf("brute force events = %d, expected 1", n)
	}
	var event models.SecurityEvent
	db.Where("event_type = ?", models.EventBruteForce).First(&event)
	if event.Severity != models.SeverityCritical {
		t.Errorf("brute force severity = %q, expected critical", event.Severity)
	}
	if event.IPAddress != "203.0.113.9" {
		t.Errorf("brute force ip = %q, expected 203.0.113.9", event.IPAddress)
	}
}

func TestDetectBruteForce_BelowThreshold(t *testing.T) {
	analyzer, db, _ := newTestAnalyzer(t)

	seedEvents(t, db, 2, models.SecurityEvent{
		EventTime: time.Now().Add(-10 * time.Minute),
		EventType: models.EventTokenValidation,
		IPAddress: "203.0.113.9",
		EventData: `{"is_valid":false}`,
	})

	analyzer.PerformPeriodicAnalysis()

	if n := countEvents(t, db, models.EventBruteForce); n != 0 {
		t.Errorf("brute force events = %d, expected 0 below threshold", n)
	}
}

func TestDetectBruteForce_IgnoresOldFailures(t *testing.T) {
	analyzer, db, _ := newTestAnalyzer(t)

	seedEvents(t, db, 10, models.SecurityEvent{
		EventTime: time.Now().Add(-2 * time.Hour),
		EventType: models.EventTokenValidation,
		IPAddress: "203.0.113.9",
		EventData: `{"is_valid":false}`,
	})

	analyzer.PerformPeriodicAnalysis()

	if n := countEvents(t, db, models.EventBruteForce); n != 0 {
		t.Errorf("brute force events = %d, failures outside the hour should not count", n)
	}
}

func TestDetectSuspiciousIPs(t *testing.T) {
	analyzer, db, hooks := newTestAnalyzer(t)

	fired := 0
	hooks.Register(HookSuspiciousIP, func(map[string]interface{}) { fired++ })

	// Default threshold is 5 error-or-worse events in 24 hours.
	seedEvents(t, db, 3, models.SecurityEvent{
		EventTime: time.Now().Add(-2 * time.Hour),
		EventType: "test_event",
		Severity:  models.SeverityError,
		IPAddress: "203.0.113.9",
	})
	seedEvents(t, db, 2, models.SecurityEvent{
		EventTime: time.Now().Add(-2 * time.Hour),
		EventType: "test_event",
		Severity:  models.SeverityCritical,
		IPAddress: "203.0.113.9",
	})
	// Warnings never count toward the suspicious IP threshold.
	seedEvents(t, db, 10, models.SecurityEvent{
		EventTime: time.Now().Add(-2 * time.Hour),
		EventType: "test_event",
		Severity:  models.SeverityWarning,
		IPAddress: "198.51.100.1",
	})

	analyzer.detectSuspiciousIPs(5)

	if fired != 1 {
		t.Errorf("suspicious IP hook fired %d times, expected 1", fired)
	}
	var event models.SecurityEvent
	if err := db.Where("event_type = ?", models.EventSuspiciousIP).First(&event).Error; err != nil {
		t.Fatalf("suspicious IP event not logged: %v", err)
	}
	if event.IPAddress != "203.0.113.9" {
		t.Errorf("flagged ip = %q, expected 203.0.113.9", event.IPAddress)
	}
	if event.Severity != models.SeverityWarning {
		t.Errorf("severity = %q, expected warning", event.Severity)
	}
}

func TestDetectCartManipulation(t *testing.T) {
	analyzer, db, hooks := newTestAnalyzer(t)

	fired := 0
	hooks.Register(HookCartManipulation, func(map[string]interface{}) { fired++ })

	cartID := uint(7)
	// The limit is more than 5 updates in 24 hours.
	seedEvents(t, db, 6, models.SecurityEvent{
		EventTime: time.Now().Add(-time.Hour),
		EventType: models.EventCartUpdated,
		CartID:    &cartID,
	})

	quietCart := uint(8)
	seedEvents(t, db, 5, models.SecurityEvent{
		EventTime: time.Now().Add(-time.Hour),
		EventType: models.EventCartUpdated,
		CartID:    &quietCart,
	})

	analyzer.detectCartManipulation()

	if fired != 1 {
		t.Errorf("cart manipulation hook fired %d times, expected 1", fired)
	}
	var event models.SecurityEvent
	if err := db.Where("event_type = ?", models.EventCartManipulation).First(&event).Error; err != nil {
		t.Fatalf("cart manipulation event not logged: %v", err)
	}
	if event.CartID == nil || *event.CartID != cartID {
		t.Errorf("flagged cart = %v, expected %d", event.CartID, cartID)
	}
}

func TestDetectUnusualRecovery_GroupedByCartAndIP(t *testing.T) {
	analyzer, db, hooks := newTestAnalyzer(t)

	fired := 0
	hooks.Register(HookUnusualRecovery, func(map[string]interface{}) { fired++ })

	cartID := uint(3)
	// Three attempts from one IP cross the default threshold; two from
	// another IP on the same cart do not.
	seedEvents(t, db, 3, models.SecurityEvent{
		EventTime: time.Now().Add(-time.Hour),
		EventType: models.EventCartRecoveryAttempt,
		CartID:    &cartID,
		IPAddress: "203.0.113.9",
	})
	seedEvents(t, db, 2, models.SecurityEvent{
		EventTime: time.Now().Add(-time.Hour),
		EventType: models.EventCartRecoveryAttempt,
		CartID:    &cartID,
		IPAddress: "198.51.100.1",
	})

	analyzer.detectUnusualRecovery(3)

	if fired != 1 {
		t.Errorf("unusual recovery hook fired %d times, expected 1", fired)
	}
	var event models.SecurityEvent
	if err := db.Where("event_type = ?", models.EventUnusualRecovery).First(&event).Error; err != nil {
		t.Fatalf("unusual recovery event not logged: %v", err)
	}
	if event.IPAddress != "203.0.113.9" {
		t.Errorf("flagged ip = %q, expected 203.0.113.9", event.IPAddress)
	}
}

func TestPerformPeriodicAnalysis_UsesStoredThresholds(t *testing.T) {
	analyzer, db, _ := newTestAnalyzer(t)

	// Raise the brute force threshold above the seeded failure count.
	sc := NewSystemConfigService(db)
	if err := sc.Set("token_validation_failures", "50"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	seedEvents(t, db, 10, models.SecurityEvent{
		EventTime: time.Now().Add(-10 * time.Minute),
		EventType: models.EventTokenValidation,
		IPAddress: "203.0.113.9",
		EventData: `{"is_valid":false}`,
	})

	analyzer.PerformPeriodicAnalysis()

	if n := countEvents(t, db, models.EventBruteForce); n != 0 {
		t.Errorf("brute force events = %d, raised threshold should suppress the finding", n)
	}
}

func TestAcquireLock(t *testing.T) {
	analyzer, db, _ := newTestAnalyzer(t)

	if !analyzer.acquireLock("security_analysis", "2026-08-29T10", time.Hour) {
		t.Fatal("first acquisition should succeed")
	}
	if analyzer.acquireLock("security_analysis", "2026-08-29T10", time.Hour) {
		t.Error("second acquisition of the same bucket should fail")
	}
	if !analyzer.acquireLock("security_analysis", "2026-08-29T11", time.Hour) {
		t.Error("a different bucket should acquire independently")
	}
	if !analyzer.acquireLock("log_cleanup", "2026-08-29T10", time.Hour) {
		t.Error("a different lock name should acquire independently")
	}

	// Expired locks are purged on the next acquisition attempt.
	db.Model(&models.SchedulerLock{}).
		Where("lock_name = ? AND lock_key = ?", "security_analysis", "2026-08-29T10").
		Update("expires_at", time.Now().Add(-time.Minute))
	if !analyzer.acquireLock("security_analysis", "2026-08-29T10", time.Hour) {
		t.Error("expired lock should be reclaimable")
	}
}
