package services

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lifetravel/cartguard/internal/models"
	"github.com/lifetravel/cartguard/pkg/logger"
	"gorm.io/gorm"
)

// Analysis windows. Detector thresholds come from system_configs.
const (
	suspiciousIPWindow    = 24 * time.Hour
	bruteForceWindow      = time.Hour
	manipulationWindow    = 24 * time.Hour
	recoveryAttemptWindow = 24 * time.Hour
	riskScoreWindow       = 7 * 24 * time.Hour

	// cartManipulationLimit is fixed: more than this many updates to one
	// cart in the window is abnormal regardless of tuning.
	cartManipulationLimit = 5

	// riskScoreDivisor normalizes the weighted event sum to 0-100.
	riskScoreDivisor = 500.0
)

// Severity weights for the risk score.
var severityWeights = map[string]float64{
	models.SeverityInfo:     0,
	models.SeverityNotice:   0.5,
	models.SeverityWarning:  2,
	models.SeverityError:    5,
	models.SeverityCritical: 10,
}

// SecurityAnalyzer periodically aggregates the security log against tunable
// thresholds, logging composite events and firing hooks for each finding.
// Findings are not deduplicated across ticks: a condition that still holds
// is reported again (recall over precision).
type SecurityAnalyzer struct {
	db      *gorm.DB
	log     *SecurityLogger
	hooks   *HookRegistry
	configs *SystemConfigService

	cronScheduler *cron.Cron
	instanceID    string
}

func NewSecurityAnalyzer(db *gorm.DB, log *SecurityLogger, hooks *HookRegistry) *SecurityAnalyzer {
	host, _ := os.Hostname()
	return &SecurityAnalyzer{
		db:         db,
		log:        log,
		hooks:      hooks,
		configs:    NewSystemConfigService(db),
		instanceID: fmt.Sprintf("%s-%d", host, os.Getpid()),
	}
}

// PerformPeriodicAnalysis runs the four detection passes.
func (a *SecurityAnalyzer) PerformPeriodicAnalysis() {
	thresholds := a.configs.GetThresholds()

	a.detectSuspiciousIPs(thresholds.SuspiciousIPAttempts)
	a.detectBruteForce(thresholds.TokenValidationFailures)
	a.detectCartManipulation()
	a.detectUnusualRecovery(thresholds.SuspiciousRecoveryAttempts)
}

type ipAggregate struct {
	IPAddress string
	Cnt       int64
}

type cartAggregate struct {
	CartID uint
	Cnt    int64
}

type cartIPAggregate struct {
	CartID    uint
	IPAddress string
	Cnt       int64
}

// detectSuspiciousIPs flags IPs with repeated error-or-worse events in the
// trailing 24 hours.
func (a *SecurityAnalyzer) detectSuspiciousIPs(threshold int) {
	var rows []ipAggregate
	err := a.db.Model(&models.SecurityEvent{}).
		Select("ip_address, COUNT(*) as cnt").
		Where("severity IN ? AND event_time >= ? AND ip_address <> ''",
			[]string{models.SeverityError, models.SeverityCritical},
			time.Now().Add(-suspiciousIPWindow)).
		Group("ip_address").
		Having("COUNT(*) >= ?", threshold).
		Scan(&rows).Error
	if err != nil {
		logger.Error().Err(err).Msg("suspicious IP detection query failed")
		return
	}

	for _, row := range rows {
		a.log.LogEvent(EventInput{
			EventType: models.EventSuspiciousIP,
			Severity:  models.SeverityWarning,
			IPAddress: row.IPAddress,
			EventData: map[string]interface{}{
				"event_count":  row.Cnt,
				"window_hours": 24,
				"threshold":    threshold,
			},
		})
		a.hooks.Do(HookSuspiciousIP, map[string]interface{}{
			"ip_address":  row.IPAddress,
			"event_count": row.Cnt,
		})
	}
}

// detectBruteForce flags IPs hammering token validation in the last hour.
func (a *SecurityAnalyzer) detectBruteForce(threshold int) {
	var rows []ipAggregate
	err := a.db.Model(&models.SecurityEvent{}).
		Select("ip_address, COUNT(*) as cnt").
		Where("event_type = ? AND event_time >= ? AND ip_address <> ''",
			models.EventTokenValidation, time.Now().Add(-bruteForceWindow)).
		Where("event_data LIKE ?", `%"is_valid":false%`).
		Group("ip_address").
		Having("COUNT(*) >= ?", threshold).
		Scan(&rows).Error
	if err != nil {
		logger.Error().Err(err).Msg("brute force detection query failed")
		return
	}

	for _, row := range rows {
		a.log.LogEvent(EventInput{
			EventType: models.EventBruteForce,
			Severity:  models.SeverityCritical,
			IPAddress: row.IPAddress,
			EventData: map[string]interface{}{
				"failure_count": row.Cnt,
				"window_hours":  1,
				"threshold":     threshold,
			},
		})
		payload := map[string]interface{}{
			"ip_address":    row.IPAddress,
			"failure_count": row.Cnt,
		}
		a.hooks.Do(HookTokenBruteForce, payload)
		a.hooks.Do(HookBruteForce, payload)
	}
}

// detectCartManipulation flags carts with an abnormal number of update or
// sync events in the trailing 24 hours.
func (a *SecurityAnalyzer) detectCartManipulation() {
	var rows []cartAggregate
	err := a.db.Model(&models.SecurityEvent{}).
		Select("cart_id, COUNT(*) as cnt").
		Where("event_type IN ? AND cart_id IS NOT NULL AND event_time >= ?",
			[]string{models.EventCartUpdated, models.EventCartSync},
			time.Now().Add(-manipulationWindow)).
		Group("cart_id").
		Having("COUNT(*) > ?", cartManipulationLimit).
		Scan(&rows).Error
	if err != nil {
		logger.Error().Err(err).Msg("cart manipulation detection query failed")
		return
	}

	for _, row := range rows {
		cartID := row.CartID
		a.log.LogEvent(EventInput{
			EventType: models.EventCartManipulation,
			Severity:  models.SeverityWarning,
			CartID:    &cartID,
			EventData: map[string]interface{}{
				"update_count": row.Cnt,
				"window_hours": 24,
			},
		})
		a.hooks.Do(HookCartManipulation, map[string]interface{}{
			"cart_id":      cartID,
			"update_count": row.Cnt,
		})
	}
}

// detectUnusualRecovery flags repeated recovery attempts on one cart from
// one IP in the trailing 24 hours.
func (a *SecurityAnalyzer) detectUnusualRecovery(threshold int) {
	var rows []cartIPAggregate
	err := a.db.Model(&models.SecurityEvent{}).
		Select("cart_id, ip_address, COUNT(*) as cnt").
		Where("event_type = ? AND cart_id IS NOT NULL AND event_time >= ?",
			models.EventCartRecoveryAttempt, time.Now().Add(-recoveryAttemptWindow)).
		Group("cart_id, ip_address").
		Having("COUNT(*) >= ?", threshold).
		Scan(&rows).Error
	if err != nil {
		logger.Error().Err(err).Msg("unusual recovery detection query failed")
		return
	}

	for _, row := range rows {
		cartID := row.CartID
		a.log.LogEvent(EventInput{
			EventType: models.EventUnusualRecovery,
			Severity:  models.SeverityWarning,
			CartID:    &cartID,
			IPAddress: row.IPAddress,
			EventData: map[string]interface{}{
				"attempt_count": row.Cnt,
				"window_hours":  24,
			},
		})
		a.hooks.Do(HookUnusualRecovery, map[string]interface{}{
			"cart_id":       cartID,
			"ip_address":    row.IPAddress,
			"attempt_count": row.Cnt,
		})
	}
}

// RiskScore summarizes the overall threat level from the trailing 7 days.
type RiskScore struct {
	Score  int              `json:"score"` // 0-100
	Level  string           `json:"level"` // low, medium, high, critical
	Counts map[string]int64 `json:"counts_by_severity"`
}

// CalculateRiskScore buckets events by severity over the trailing week,
// applies fixed weights, and normalizes against a constant divisor.
func (a *SecurityAnalyzer) CalculateRiskScore() (*RiskScore, error) {
	type severityCount struct {
		Severity string
		Cnt      int64
	}

	var rows []severityCount
	err := a.db.Model(&models.SecurityEvent{}).
		Select("severity, COUNT(*) as cnt").
		Where("event_time >= ?", time.Now().Add(-riskScoreWindow)).
		Group("severity").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	var weighted float64
	for _, row := range rows {
		counts[row.Severity] = row.Cnt
		weighted += float64(row.Cnt) * severityWeights[row.Severity]
	}

	score := int(math.Round(weighted / riskScoreDivisor * 100))
	if score > 100 {
		score = 100
	}

	return &RiskScore{
		Score:  score,
		Level:  riskLevel(score),
		Counts: counts,
	}, nil
}

func riskLevel(score int) string {
	switch {
	case score < 25:
		return "low"
	case score < 50:
		return "medium"
	case score < 75:
		return "high"
	default:
		return "critical"
	}
}

// StartScheduler registers the hourly analysis tick and the daily retention
// cleanup. Each tick is guarded by a DB lock keyed on its time bucket so
// only one instance runs it.
func (a *SecurityAnalyzer) StartScheduler() {
	a.cronScheduler = cron.New()

	a.cronScheduler.AddFunc("0 * * * *", func() {
		bucket := time.Now().Format("2006-01-02T15")
		if !a.acquireLock("security_analysis", bucket, time.Hour) {
			return
		}
		logger.Info().Str("bucket", bucket).Msg("running periodic security analysis")
		a.PerformPeriodicAnalysis()
	})

	a.cronScheduler.AddFunc("30 3 * * *", func() {
		bucket := time.Now().Format("2006-01-02")
		if !a.acquireLock("log_cleanup", bucket, 24*time.Hour) {
			return
		}
		days := a.configs.GetRetentionDays()
		deleted, err := a.log.CleanupOldLogs(days)
		if err != nil {
			logger.Error().Err(err).Msg("security log cleanup failed")
			return
		}
		if deleted > 0 {
			logger.Info().Int64("deleted", deleted).Int("retention_days", days).Msg("security log cleanup")
		}
	})

	a.cronScheduler.Start()
	logger.Info().Msg("security analyzer scheduler started")
}

func (a *SecurityAnalyzer) StopScheduler() {
	if a.cronScheduler != nil {
		a.cronScheduler.Stop()
	}
}

// acquireLock claims the (name, key) scheduler lock. The unique index on
// scheduler_locks makes the insert race-safe across instances.
func (a *SecurityAnalyzer) acquireLock(name, key string, ttl time.Duration) bool {
	a.db.Where("expires_at < ?", time.Now()).Delete(&models.SchedulerLock{})

	lock := models.SchedulerLock{
		LockName:  name,
		LockKey:   key,
		LockedBy:  a.instanceID,
		LockedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := a.db.Create(&lock).Error; err != nil {
		return false
	}
	return true
}
