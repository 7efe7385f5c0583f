package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lifetravel/cartguard/internal/models"
)

func newTestLogger(t *testing.T) (*SecurityLogger, *HookRegistry, *[]capturedMail) {
	t.Helper()
	db := newTestDB(t)
	hooks := NewHookRegistry()
	email, sent := newTestEmail(t, db)
	return NewSecurityLogger(db, hooks, email, "admin@test", "Test Site"), hooks, sent
}

func TestLogEvent_EmptyEventType(t *testing.T) {
	db := newTestDB(t)
	log := NewSecurityLogger(db, NewHookRegistry(), nil, "", "")

	for _, eventType := range []string{"", "   ", "\t\n"} {
		if _, err := log.LogEvent(EventInput{EventType: eventType}); err != ErrEmptyEventType {
			t.Errorf("LogEvent(%q) error = %v, expected ErrEmptyEventType", eventType, err)
		}
	}

	var count int64
	db.Model(&models.SecurityEvent{}).Count(&count)
	if count != 0 {
		t.Errorf("no rows should be written for rejected events, found %d", count)
	}
}

func TestLogEvent_SeverityCoercion(t *testing.T) {
	db := newTestDB(t)
	log := NewSecurityLogger(db, NewHookRegistry(), nil, "", "")

	tests := []struct {
		name     string
		severity string
		expected string
	}{
		{"empty severity", "", models.SeverityInfo},
		{"unknown severity", "catastrophic", models.SeverityInfo},
		{"uppercase not accepted", "WARNING", models.SeverityInfo},
		{"valid severity kept", models.SeverityWarning, models.SeverityWarning},
		{"critical kept", models.SeverityCritical, models.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := log.LogEvent(EventInput{EventType: "test_event", Severity: tt.severity})
			if err != nil {
				t.Fatalf("LogEvent() error: %v", err)
			}
			var event models.SecurityEvent
			if err := db.First(&event, id).Error; err != nil {
				t.Fatalf("event not found: %v", err)
			}
			if event.Severity != tt.expected {
				t.Errorf("stored severity = %q, expected %q", event.Severity, tt.expected)
			}
		})
	}
}

func TestLogEvent_FailedValidationEscalation(t *testing.T) {
	db := newTestDB(t)
	log := NewSecurityLogger(db, NewHookRegistry(), nil, "", "")

	var ids []uint
	for i := 0; i < 11; i++ {
		id, err := log.LogEvent(EventInput{
			EventType: models.EventTokenValidation,
			Severity:  models.SeverityNotice,
			IPAddress: "203.0.113.9",
			EventData: map[string]interface{}{"is_valid": false, "reason": "bad nonce"},
		})
		if err != nil {
			t.Fatalf("LogEvent() #%d error: %v", i+1, err)
		}
		ids = append(ids, id)
	}

	severityOf := func(id uint) string {
		var event models.SecurityEvent
		if err := db.First(&event, id).Error; err != nil {
			t.Fatalf("event %d not found: %v", id, err)
		}
		return event.Severity
	}

	// Counts include the event being logged: 1-5 keep the caller's
	// severity, 6-10 escalate to error, 11 and beyond to critical.
	if got := severityOf(ids[4]); got != models.SeverityNotice {
		t.Errorf("5th failure severity = %q, expected notice", got)
	}
	if got := severityOf(ids[5]); got != models.SeverityError {
		t.Errorf("6th failure severity = %q, expected error", got)
	}
	if got := severityOf(ids[10]); got != models.SeverityCritical {
		t.Errorf("11th failure severity = %q, expected critical", got)
	}
}

func TestLogEvent_SuccessfulValidationDoesNotEscalate(t *testing.T) {
	db := newTestDB(t)
	log := NewSecurityLogger(db, NewHookRegistry(), nil, "", "")

	for i := 0; i < 12; i++ {
		id, err := log.LogEvent(EventInput{
			EventType: models.EventTokenValidation,
			Severity:  models.SeverityInfo,
			IPAddress: "203.0.113.9",
			EventData: map[string]interface{}{"is_valid": true},
		})
		if err != nil {
			t.Fatalf("LogEvent() error: %v", err)
		}
		var event models.SecurityEvent
		db.First(&event, id)
		if event.Severity != models.SeverityInfo {
			t.Fatalf("successful validation #%d escalated to %q", i+1, event.Severity)
		}
	}
}

func TestLogEvent_EscalationScopedToIP(t *testing.T) {
	db := newTestDB(t)
	log := NewSecurityLogger(db, NewHookRegistry(), nil, "", "")

	for i := 0; i < 10; i++ {
		log.LogEvent(EventInput{
			EventType: models.EventTokenValidation,
			Severity:  models.SeverityNotice,
			IPAddress: "203.0.113.9",
			EventData: map[string]interface{}{"is_valid": false},
		})
	}

	// A different IP starts from a clean slate.
	id, err := log.LogEvent(EventInput{
		EventType: models.EventTokenValidation,
		Severity:  models.SeverityNotice,
		IPAddress: "198.51.100.1",
		EventData: map[string]interface{}{"is_valid": false},
	})
	if err != nil {
		t.Fatalf("LogEvent() error: %v", err)
	}
	var event models.SecurityEvent
	db.First(&event, id)
	if event.Severity != models.SeverityNotice {
		t.Errorf("other IP severity = %q, expected notice", event.Severity)
	}
}

func TestLogEvent_CriticalAlertsAdminOnce(t *testing.T) {
	log, hooks, sent := newTestLogger(t)

	criticalFired := 0
	hooks.Register(HookCriticalAlert, func(payload map[string]interface{}) {
		criticalFired++
	})

	if _, err := log.LogEvent(EventInput{
		EventType: "test_breach",
		Severity:  models.SeverityCritical,
		IPAddress: "203.0.113.9",
	}); err != nil {
		t.Fatalf("LogEvent() error: %v", err)
	}

	if criticalFired != 1 {
		t.Errorf("critical hook fired %d times, expected 1", criticalFired)
	}
	if len(*sent) != 1 {
		t.Fatalf("admin alert emails = %d, expected 1", len(*sent))
	}
	mail := (*sent)[0]
	if mail.To[0] != "admin@test" {
		t.Errorf("alert recipient = %q, expected admin@test", mail.To[0])
	}
	if !strings.Contains(mail.Msg, "test_breach") {
		t.Error("alert body should name the event type")
	}
}

func TestLogEvent_NonCriticalDoesNotAlert(t *testing.T) {
	log, hooks, sent := newTestLogger(t)

	hooks.Register(HookCriticalAlert, func(map[string]interface{}) {
		t.Error("critical hook must not fire for non-critical events")
	})

	for _, severity := range []string{models.SeverityInfo, models.SeverityNotice, models.SeverityWarning, models.SeverityError} {
		if _, err := log.LogEvent(EventInput{EventType: "test_event", Severity: severity}); err != nil {
			t.Fatalf("LogEvent() error: %v", err)
		}
	}
	if len(*sent) != 0 {
		t.Errorf("alert emails = %d, expected 0", len(*sent))
	}
}

func TestLogEvent_FiresEventLoggedHook(t *testing.T) {
	db := newTestDB(t)
	hooks := NewHookRegistry()
	log := NewSecurityLogger(db, hooks, nil, "", "")

	var payload map[string]interface{}
	hooks.Register(HookEventLogged, func(p map[string]interface{}) {
		payload = p
	})

	id, err := log.LogEvent(EventInput{EventType: "test_event", IPAddress: "203.0.113.9"})
	if err != nil {
		t.Fatalf("LogEvent() error: %v", err)
	}

	if payload == nil {
		t.Fatal("event logged hook did not fire")
	}
	if payload["event_id"] != id {
		t.Errorf("hook event_id = %v, expected %d", payload["event_id"], id)
	}
	if payload["event_type"] != "test_event" {
		t.Errorf("hook event_type = %v, expected test_event", payload["event_type"])
	}
}

func TestCleanupOldLogs_RetainsSevereEvents(t *testing.T) {
	db := newTestDB(t)
	log := NewSecurityLogger(db, NewHookRegistry(), nil, "", "")

	old := time.Now().AddDate(0, 0, -91)
	rows := []models.SecurityEvent{
		{EventTime: old, EventType: "old_info", Severity: models.SeverityInfo},
		{EventTime: old, EventType: "old_notice", Severity: models.SeverityNotice},
		{EventTime: old, EventType: "old_warning", Severity: models.SeverityWarning},
		{EventTime: old, EventType: "old_error", Severity: models.SeverityError},
		{EventTime: old, EventType: "old_critical", Severity: models.SeverityCritical},
		{EventTime: time.Now(), EventType: "fresh_info", Severity: models.SeverityInfo},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	deleted, err := log.CleanupOldLogs(90)
	if err != nil {
		t.Fatalf("CleanupOldLogs() error: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, expected 3", deleted)
	}

	var remaining []models.SecurityEvent
	db.Order("id").Find(&remaining)
	kept := make([]string, 0, len(remaining))
	for _, e := range remaining {
		kept = append(kept, e.EventType)
	}
	expected := []string{"old_error", "old_critical", "fresh_info"}
	if fmt.Sprint(kept) != fmt.Sprint(expected) {
		t.Errorf("remaining events = %v, expected %v", kept, expected)
	}
}

func TestCleanupOldLogs_DefaultRetention(t *testing.T) {
	db := newTestDB(t)
	log := NewSecurityLogger(db, NewHookRegistry(), nil, "", "")

	db.Create(&models.SecurityEvent{
		EventTime: time.Now().AddDate(0, 0, -30),
		EventType: "recent_info",
		Severity:  models.SeverityInfo,
	})

	// Zero days falls back to the 90-day default, keeping this row.
	deleted, err := log.CleanupOldLogs(0)
	if err != nil {
		t.Fatalf("CleanupOldLogs() error: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, expected 0", deleted)
	}
}

func TestMarkStatus(t *testing.T) {
	db := newTestDB(t)
	log := NewSecurityLogger(db, NewHookRegistry(), nil, "", "")

	id, err := log.LogEvent(EventInput{EventType: "test_event"})
	if err != nil {
		t.Fatalf("LogEvent() error: %v", err)
	}

	if err := log.MarkStatus(id, "reviewed"); err != nil {
		t.Fatalf("MarkStatus() error: %v", err)
	}
	var event models.SecurityEvent
	db.First(&event, id)
	if event.Status != "reviewed" {
		t.Errorf("status = %q, expected reviewed", event.Status)
	}
}

func TestSanitizeEventData(t *testing.T) {
	data := sanitizeEventData(map[string]interface{}{
		"script":  "<script>alert(1)</script>",
		"email":   "User@Example.COM",
		"count":   42,
		"ratio":   1.5,
		"ok":      true,
		"failed":  false,
		"control": "line1\x00line2\nline3",
		"nested": map[string]interface{}{
			"inner": "<b>bold</b>",
		},
		"list": []interface{}{"<i>x</i>", 3},
	})

	if got := data["script"]; got != "scriptalert(1)/script" {
		t.Errorf("script = %q, angle brackets should be stripped", got)
	}
	if got := data["email"]; got != "user@example.com" {
		t.Errorf("email = %q, expected normalized lowercase address", got)
	}
	if got := data["count"]; got != float64(42) {
		t.Errorf("count = %v (%T), expected float64(42)", got, got)
	}
	if got := data["ok"]; got != true {
		t.Errorf("ok = %v, booleans must pass through", got)
	}
	if got := data["failed"]; got != false {
		t.Errorf("failed = %v, booleans must pass through", got)
	}
	if got := data["control"].(string); strings.ContainsAny(got, "\x00\n") {
		t.Errorf("control = %q, control characters should be replaced", got)
	}
	nested := data["nested"].(map[string]interface{})
	if nested["inner"] != "bbold/b" {
		t.Errorf("nested inner = %q, expected tags stripped", nested["inner"])
	}
	list := data["list"].([]interface{})
	if list[0] != "ix/i" || list[1] != float64(3) {
		t.Errorf("list = %v, expected sanitized elements", list)
	}
}

func TestSanitizeEventData_BooleanQueryable(t *testing.T) {
	// The brute force detector matches on the serialized payload, so the
	// is_valid flag must survive sanitization as a JSON boolean.
	data := sanitizeEventData(map[string]interface{}{"is_valid": false})
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(payload), `"is_valid":false`) {
		t.Errorf("payload = %s, expected literal is_valid:false", payload)
	}
}

func TestSanitizeText_Truncation(t *testing.T) {
	long := strings.Repeat("a", 600)
	got := sanitizeText(long)
	if len(got) != 503 {
		t.Errorf("len = %d, expected 500 chars plus ellipsis", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated text should end with ellipsis")
	}
}
