package logging

import (
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Stage calls
	AuditStageRequest AuditEventType = "stage_request"
	AuditStageSuccess AuditEventType = "stage_success"
	AuditStageFailure AuditEventType = "stage_failure"

	// Workflow
	AuditTransition AuditEventType = "transition"
	AuditStaleDrop  AuditEventType = "stale_drop"
	AuditReset      AuditEventType = "reset"
)

// AuditEvent is one structured audit entry.
type AuditEvent struct {
	Type      AuditEventType
	ScanID    string
	Stage     string
	RequestID string
	Duration  time.Duration
	Success   bool
	Message   string
	Fields    map[string]interface{}
}

// Audit writes an event to the audit category as structured fields.
func Audit(ev AuditEvent) {
	l := Get(CategoryAudit)
	if l.sugar == nil {
		return
	}
	kv := []interface{}{
		"event", string(ev.Type),
		"success", ev.Success,
	}
	if ev.ScanID != "" {
		kv = append(kv, "scan_id", ev.ScanID)
	}
	if ev.Stage != "" {
		kv = append(kv, "stage", ev.Stage)
	}
	if ev.RequestID != "" {
		kv = append(kv, "request_id", ev.RequestID)
	}
	if ev.Duration > 0 {
		kv = append(kv, "duration_ms", ev.Duration.Milliseconds())
	}
	for k, v := range ev.Fields {
		kv = append(kv, k, v)
	}
	msg := ev.Message
	if msg == "" {
		msg = string(ev.Type)
	}
	l.sugar.Infow(msg, kv...)
}
