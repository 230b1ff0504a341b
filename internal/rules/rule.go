// Package rules holds the alert rule catalog and the built-in rule kinds.
// Rules are pure: they look at a pre-fetched clinical window and never do I/O.
package rules

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/alert-engine/internal/model"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

// ClinicalWindow is the data a predicate sees, already limited to the rule window.
type ClinicalWindow struct {
	PatientID    uuid.UUID
	AsOf         time.Time
	Window       model.TimeWindow
	Measurements []model.Measurement
	Intakes      []model.Intake
	Schedules    []model.ScheduledDose
	Symptoms     []model.Symptom
}

// Outcome is one firing of a rule. A zero Severity means the rule's own severity.
type Outcome struct {
	Severity model.Severity
	Context  model.TriggerContext
	Detail   map[string]string
}

// Predicate evaluates a clinical window. It returns no outcomes when the
// rule does not fire, and an error for data it cannot interpret.
type Predicate interface {
	Evaluate(w *ClinicalWindow) ([]Outcome, error)
}

// PredicateFunc adapts a plain function to Predicate.
type PredicateFunc func(w *ClinicalWindow) ([]Outcome, error)

func (f PredicateFunc) Evaluate(w *ClinicalWindow) ([]Outcome, error) {
	return f(w)
}

// Applicability is implemented by predicates that only apply to some patients.
type Applicability interface {
	Applicable(pc PatientContext) bool
}

// PatientContext is what the catalog knows when picking rules for a patient.
type PatientContext struct {
	Patient model.Patient
	AsOf    time.Time
}

// RuleDefinition is a catalog entry.
type RuleDefinition struct {
	ID          string
	Kind        string
	AlertType   string
	Description string
	Severity    model.Severity
	Window      time.Duration
	Cooldown    time.Duration
	Needs       []model.DataKind
	Predicate   Predicate
}

// Validate checks the definition is complete. It does not check the alert type exists.
func (d *RuleDefinition) Validate() error {
	switch {
	case d == nil:
		return apperrors.Validation("rule definition is nil")
	case d.ID == "":
		return apperrors.Validation("rule id is required")
	case d.AlertType == "":
		return apperrors.Validation("alert type is required for rule %q", d.ID)
	case !d.Severity.Valid():
		return apperrors.Validation("valid severity is required for rule %q", d.ID)
	case d.Predicate == nil:
		return apperrors.Validation("predicate is required for rule %q", d.ID)
	case d.Window <= 0:
		return apperrors.Validation("window must be positive for rule %q", d.ID)
	case d.Cooldown < 0:
		return apperrors.Validation("cooldown must not be negative for rule %q", d.ID)
	case len(d.Needs) == 0:
		return apperrors.Validation("rule %q declares no clinical data", d.ID)
	}
	return nil
}

// Applicable reports whether the rule should run for the patient.
func (d *RuleDefinition) Applicable(pc PatientContext) bool {
	if a, ok := d.Predicate.(Applicability); ok {
		return a.Applicable(pc)
	}
	return true
}

// NeedsKind reports whether the rule declared the given data kind.
func (d *RuleDefinition) NeedsKind(kind model.DataKind) bool {
	for _, k := range d.Needs {
		if k == kind {
			return true
		}
	}
	return false
}

// Candidate turns an outcome into a candidate alert for patient.
func (d *RuleDefinition) Candidate(patientID uuid.UUID, o Outcome, detectedAt time.Time) model.CandidateAlert {
	sev := d.Severity
	if o.Severity.Valid() {
		sev = o.Severity
	}
	return model.CandidateAlert{
		PatientID:  patientID,
		RuleID:     d.ID,
		AlertType:  d.AlertType,
		Severity:   sev,
		Context:    o.Context,
		Cooldown:   d.Cooldown,
		Detail:     o.Detail,
		DetectedAt: detectedAt,
	}
}

func (d *RuleDefinition) String() string {
	return fmt.Sprintf("%s(%s -> %s/%s)", d.ID, d.Kind, d.AlertType, d.Severity)
}

// conditional restricts a predicate to patients carrying one of the listed conditions.
type conditional struct {
	Predicate
	conditions []string
}

func (c conditional) Applicable(pc PatientContext) bool {
	return pc.Patient.HasCondition(c.conditions...)
}
