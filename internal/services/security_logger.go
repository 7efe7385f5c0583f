package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/lifetravel/cartguard/internal/models"
	"github.com/lifetravel/cartguard/pkg/logger"
	"gorm.io/gorm"
)

// ErrEmptyEventType is returned when LogEvent is called without an event type.
var ErrEmptyEventType = errors.New("empty event type")

// Escalation limits for repeated failed token validations from one IP.
const (
	failedValidationErrorLimit    = 5  // above this within the window → error
	failedValidationCriticalLimit = 10 // above this within the window → critical
)

// SecurityLogger appends structured security events to the database, fires
// action hooks, and raises an admin alert on every critical event.
type SecurityLogger struct {
	db         *gorm.DB
	hooks      *HookRegistry
	email      *EmailService
	adminEmail string
	siteName   string
}

func NewSecurityLogger(db *gorm.DB, hooks *HookRegistry, email *EmailService, adminEmail, siteName string) *SecurityLogger {
	return &SecurityLogger{
		db:         db,
		hooks:      hooks,
		email:      email,
		adminEmail: adminEmail,
		siteName:   siteName,
	}
}

// EventInput is the caller-supplied portion of a security event.
type EventInput struct {
	EventType  string
	Severity   string
	EventData  map[string]interface{}
	UserID     *uint
	CartID     *uint
	IPAddress  string
	UserAgent  string
	RequestURI string
}

// LogEvent appends one event row. Unknown severities are stored as "info".
// Repeated failed token validations from the same IP escalate the stored
// severity. Returns the inserted row id.
func (l *SecurityLogger) LogEvent(in EventInput) (uint, error) {
	if strings.TrimSpace(in.EventType) == "" {
		return 0, ErrEmptyEventType
	}

	severity := in.Severity
	if !models.ValidSeverity(severity) {
		severity = models.SeverityInfo
	}

	data := sanitizeEventData(in.EventData)
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}

	if in.EventType == models.EventTokenValidation && isFailedValidation(data) {
		// Count includes the event being logged.
		n := l.CountRecentFailedValidations(in.IPAddress, 60) + 1
		if escalated := escalateSeverity(n); escalated != "" && models.SeverityAtLeast(escalated, severity) {
			severity = escalated
		}
	}

	event := models.SecurityEvent{
		EventTime:  time.Now(),
		EventType:  in.EventType,
		Severity:   severity,
		UserID:     in.UserID,
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
		CartID:     in.CartID,
		RequestURI: in.RequestURI,
		EventData:  string(payload),
		Status:     "new",
	}

	if err := l.db.Create(&event).Error; err != nil {
		logger.Error().Err(err).Str("event_type", in.EventType).Msg("failed to insert security event")
		return 0, err
	}

	l.hooks.Do(HookEventLogged, map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.EventType,
		"severity":   event.Severity,
		"ip_address": event.IPAddress,
	})

	if severity == models.SeverityCritical {
		l.alertCritical(&event)
	}

	return event.ID, nil
}

// alertCritical emails the site admin and fires the critical hook. Fired
// exactly once, at event creation; the periodic analyzer never re-alerts.
func (l *SecurityLogger) alertCritical(event *models.SecurityEvent) {
	l.hooks.Do(HookCriticalAlert, map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.EventType,
		"ip_address": event.IPAddress,
	})

	if l.email == nil || l.adminEmail == "" {
		return
	}

	subject := fmt.Sprintf("[%s] Critical security event: %s", l.siteName, event.EventType)
	body := fmt.Sprintf(
		`<html><body style="font-family: Arial, sans-serif;">
<h2>Critical security event</h2>
<table style="border-collapse: collapse;">
<tr><td style="padding: 6px; border: 1px solid #ddd;"><strong>Type</strong></td><td style="padding: 6px; border: 1px solid #ddd;">%s</td></tr>
<tr><td style="padding: 6px; border: 1px solid #ddd;"><strong>Time</strong></td><td style="padding: 6px; border: 1px solid #ddd;">%s</td></tr>
<tr><td style="padding: 6px; border: 1px solid #ddd;"><strong>IP</strong></td><td style="padding: 6px; border: 1px solid #ddd;">%s</td></tr>
</table>
<pre style="background: #f5f5f5; padding: 12px;">%s</pre>
</body></html>`,
		event.EventType, event.EventTime.Format(time.RFC3339), event.IPAddress, event.EventData)

	// Best effort: an unreachable mail server must not fail the insert.
	if err := l.email.SendHTML([]string{l.adminEmail}, subject, body); err != nil {
		logger.Warn().Err(err).Uint("event_id", event.ID).Msg("critical alert email not delivered")
	}
}

// CountRecentFailedValidations counts failed token validations from ip
// within the last minutes.
func (l *SecurityLogger) CountRecentFailedValidations(ip string, minutes int) int {
	if minutes <= 0 {
		minutes = 60
	}
	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)

	var count int64
	l.db.Model(&models.SecurityEvent{}).
		Where("event_type = ? AND ip_address = ? AND event_time >= ?", models.EventTokenValidation, ip, cutoff).
		Where("event_data LIKE ?", `%"is_valid":false%`).
		Count(&count)
	return int(count)
}

// CleanupOldLogs purges events older than days, keeping everything at error
// severity and above indefinitely. Returns the number of deleted rows.
func (l *SecurityLogger) CleanupOldLogs(days int) (int64, error) {
	if days <= 0 {
		days = 90
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	result := l.db.Where("event_time < ? AND severity IN ?", cutoff,
		[]string{models.SeverityInfo, models.SeverityNotice, models.SeverityWarning}).
		Delete(&models.SecurityEvent{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// MarkStatus updates the status of an event (the only mutable column).
func (l *SecurityLogger) MarkStatus(eventID uint, status string) error {
	return l.db.Model(&models.SecurityEvent{}).Where("id = ?", eventID).
		Update("status", status).Error
}

func escalateSeverity(failureCount int) string {
	switch {
	case failureCount > failedValidationCriticalLimit:
		return models.SeverityCritical
	case failureCount > failedValidationErrorLimit:
		return models.SeverityError
	default:
		return ""
	}
}

func isFailedValidation(data map[string]interface{}) bool {
	v, ok := data["is_valid"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && !b
}

// sanitizeEventData cleans a payload before JSON encoding: email-shaped
// strings are normalized as emails, numerics become float64, booleans pass
// through, and everything else is flattened to plain text.
func sanitizeEventData(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[sanitizeText(k)] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case bool:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case float32:
		return float64(val)
	case float64:
		return val
	case string:
		if addr, err := mail.ParseAddress(val); err == nil && strings.Contains(val, "@") {
			return strings.ToLower(addr.Address)
		}
		return sanitizeText(val)
	case map[string]interface{}:
		return sanitizeEventData(val)
	case []interface{}:
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = sanitizeValue(item)
		}
		return items
	default:
		return sanitizeText(fmt.Sprintf("%v", val))
	}
}

// sanitizeText strips control characters and angle brackets and bounds the
// length, preventing log injection and payload flooding.
func sanitizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '<' || r == '>':
			// drop
		case r < 0x20 || r == 0x7f:
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	clean := strings.TrimSpace(b.String())
	if len(clean) > 500 {
		clean = clean[:500] + "..."
	}
	return clean
}
