package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AlertStatus string

const (
	AlertStatusOpen     AlertStatus = "open"
	AlertStatusResolved AlertStatus = "resolved"
)

// CanTransitionTo reports whether moving from s to next is legal. Open to
// resolved is the only transition.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	return s == AlertStatusOpen && next == AlertStatusResolved
}

type AlertCategory string

const (
	CategoryGlycemicThreshold AlertCategory = "glycemic-threshold"
	CategoryMissedDose        AlertCategory = "missed-dose"
	CategorySymptomEscalation AlertCategory = "symptom-escalation"
	CategoryMonitoringGap     AlertCategory = "monitoring-gap"
	CategoryManual            AlertCategory = "manual"
)

// AlertType is immutable reference data.
type AlertType struct {
	Code            string        `db:"code" json:"code"`
	Category        AlertCategory `db:"category" json:"category"`
	DefaultSeverity Severity      `db:"default_severity" json:"default_severity"`
	Description     string        `db:"description" json:"description"`
}

type ContextKind string

const (
	ContextMeasurement ContextKind = "measurement"
	ContextSchedule    ContextKind = "schedule"
	ContextSymptom     ContextKind = "symptom"
	ContextPatient     ContextKind = "patient"
	ContextManual      ContextKind = "manual"
)

// TriggerContext identifies what made an alert fire.
type TriggerContext struct {
	Kind        ContextKind `json:"kind"`
	Ref         string      `json:"ref"`
	WindowStart time.Time   `json:"window_start"`
	WindowEnd   time.Time   `json:"window_end"`
}

// Key is the deduplication identity of the context. The window is not part of it.
func (c TriggerContext) Key() string {
	return fmt.Sprintf("%s:%s", c.Kind, c.Ref)
}

type Alert struct {
	ID               uuid.UUID        `json:"id"`
	PatientID        uuid.UUID        `json:"patient_id"`
	AlertType        string           `json:"alert_type"`
	RuleID           string           `json:"rule_id,omitempty"`
	Severity         Severity         `json:"severity"`
	Context          TriggerContext   `json:"context"`
	Note             string           `json:"note,omitempty"`
	Status           AlertStatus      `json:"status"`
	CreatedBy        string           `json:"created_by"`
	CreatedAt        time.Time        `json:"created_at"`
	// DetectedAt is the evaluation time the alert fired for. It equals
	// CreatedAt for live scans and manual alerts but not for backdated scans.
	DetectedAt       time.Time        `json:"detected_at"`
	ResolvedBy       *uuid.UUID       `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`
	RecipientWarning bool             `json:"recipient_warning"`
	WarningReason    string           `json:"warning_reason,omitempty"`
	Recipients       []AlertRecipient `json:"recipients"`
}

// FiredAt is the time cooldowns are measured from.
func (a *Alert) FiredAt() time.Time {
	if a.DetectedAt.IsZero() {
		return a.CreatedAt
	}
	return a.DetectedAt
}

// Clone returns a deep copy, safe to hand out from in-memory stores.
func (a *Alert) Clone() *Alert {
	c := *a
	if a.ResolvedBy != nil {
		v := *a.ResolvedBy
		c.ResolvedBy = &v
	}
	if a.ResolvedAt != nil {
		v := *a.ResolvedAt
		c.ResolvedAt = &v
	}
	c.Recipients = make([]AlertRecipient, len(a.Recipients))
	for i, r := range a.Recipients {
		c.Recipients[i] = r
		if r.ResolvedAt != nil {
			v := *r.ResolvedAt
			c.Recipients[i].ResolvedAt = &v
		}
	}
	return &c
}

type RecipientRole string

const (
	RolePatient RecipientRole = "patient"
	RoleDoctor  RecipientRole = "doctor"
)

type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryDispatched DeliveryStatus = "dispatched"
	DeliveryResolved   DeliveryStatus = "resolved"
)

type AlertRecipient struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	AlertID        uuid.UUID      `db:"alert_id" json:"alert_id"`
	UserID         uuid.UUID      `db:"user_id" json:"user_id"`
	Role           RecipientRole  `db:"role" json:"role"`
	DeliveryStatus DeliveryStatus `db:"delivery_status" json:"delivery_status"`
	ResolvedAt     *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
}

// CandidateAlert is what a rule produces before deduplication.
type CandidateAlert struct {
	PatientID  uuid.UUID         `json:"patient_id"`
	RuleID     string            `json:"rule_id"`
	AlertType  string            `json:"alert_type"`
	Severity   Severity          `json:"severity"`
	Context    TriggerContext    `json:"context"`
	Cooldown   time.Duration     `json:"cooldown"`
	Detail     map[string]string `json:"detail,omitempty"`
	DetectedAt time.Time         `json:"detected_at"`
}

// Note renders the candidate detail as the alert note.
func (c CandidateAlert) Note() string {
	if len(c.Detail) == 0 {
		return ""
	}
	parts := make([]string, 0, len(c.Detail))
	for _, k := range sortedKeys(c.Detail) {
		parts = append(parts, k+"="+c.Detail[k])
	}
	return strings.Join(parts, ", ")
}
