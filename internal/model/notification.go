package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationRecipient is who the dispatcher must reach, and in which role.
type NotificationRecipient struct {
	UserID uuid.UUID     `json:"user_id"`
	Role   RecipientRole `json:"role"`
}

// AlertNotification is the outbox payload for alert events. It carries the
// who and the severity; the channel is the dispatcher's concern.
type AlertNotification struct {
	AlertID    uuid.UUID               `json:"alert_id"`
	PatientID  uuid.UUID               `json:"patient_id"`
	AlertType  string                  `json:"alert_type"`
	Severity   Severity                `json:"severity"`
	Status     AlertStatus             `json:"status"`
	Recipients []NotificationRecipient `json:"recipients"`
	Warning    string                  `json:"warning,omitempty"`
	OccurredAt time.Time               `json:"occurred_at"`
}

// NewAlertNotification builds the payload from the alert's current state.
func NewAlertNotification(a *Alert, at time.Time) AlertNotification {
	n := AlertNotification{
		AlertID:    a.ID,
		PatientID:  a.PatientID,
		AlertType:  a.AlertType,
		Severity:   a.Severity,
		Status:     a.Status,
		Recipients: make([]NotificationRecipient, 0, len(a.Recipients)),
		Warning:    a.WarningReason,
		OccurredAt: at,
	}
	for _, r := range a.Recipients {
		n.Recipients = append(n.Recipients, NotificationRecipient{UserID: r.UserID, Role: r.Role})
	}
	return n
}
