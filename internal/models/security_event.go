package models

import "time"

// Severity levels for security events, ordered from least to most severe.
const (
	SeverityInfo     = "info"
	SeverityNotice   = "notice"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

var severityRank = map[string]int{
	SeverityInfo:     0,
	SeverityNotice:   1,
	SeverityWarning:  2,
	SeverityError:    3,
	SeverityCritical: 4,
}

// ValidSeverity reports whether s is one of the five known levels.
func ValidSeverity(s string) bool {
	_, ok := severityRank[s]
	return ok
}

// SeverityAtLeast reports whether severity s ranks at or above min.
// Unknown severities rank below everything.
func SeverityAtLeast(s, min string) bool {
	sr, ok := severityRank[s]
	if !ok {
		return false
	}
	return sr >= severityRank[min]
}

// SecurityEvent is one row of the security log. Rows are append-only: only
// Status is ever updated, and deletion happens through retention cleanup.
type SecurityEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EventTime  time.Time `gorm:"index" json:"event_time"`
	EventType  string    `gorm:"size:100;index;not null" json:"event_type"`
	Severity   string    `gorm:"size:20;index" json:"severity"`
	UserID     *uint     `json:"user_id"`
	IPAddress  string    `gorm:"size:50;index" json:"ip_address"`
	UserAgent  string    `gorm:"size:500" json:"user_agent"`
	CartID     *uint     `gorm:"index" json:"cart_id"`
	RequestURI string    `gorm:"size:500" json:"request_uri"`
	EventData  string    `gorm:"type:text" json:"event_data"` // sanitized JSON payload
	Status     string    `gorm:"size:20;index;default:new" json:"status"`
}

func (SecurityEvent) TableName() string { return "security_events" }

// Well-known event types
const (
	EventTokenValidation     = "token_validation"
	EventCartUpdated         = "cart_updated"
	EventCartSync            = "sync_abandoned_cart"
	EventCartRecoveryAttempt = "cart_recovery_attempt"
	EventCartRecovered       = "cart_recovered"
	EventRecoveryEmailSent   = "recovery_email_sent"
	EventCartDeleted         = "cart_deleted"
	EventSuspiciousIP        = "suspicious_ip_detected"
	EventBruteForce          = "token_brute_force_detected"
	EventCartManipulation    = "cart_manipulation_detected"
	EventUnusualRecovery     = "unusual_recovery_detected"
	EventAdminAction         = "admin_action"
)
