package alert

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/alert-engine/internal/model"
)

type SuppressionReason string

const (
	ReasonDuplicateInRun SuppressionReason = "duplicate_in_run"
	ReasonOpenAlert      SuppressionReason = "open_alert"
	ReasonCooldown       SuppressionReason = "cooldown"
)

// Suppression records why a candidate was dropped. ExistingID is the alert
// that caused it, when there is one.
type Suppression struct {
	Candidate  model.CandidateAlert `json:"candidate"`
	Reason     SuppressionReason    `json:"reason"`
	ExistingID uuid.UUID            `json:"existing_id,omitempty"`
}

type dedupKey struct {
	patientID  uuid.UUID
	alertType  string
	contextKey string
}

func candidateKey(c model.CandidateAlert) dedupKey {
	return dedupKey{c.PatientID, c.AlertType, c.Context.Key()}
}

// Filter drops candidates that would duplicate an alert. It has no side
// effects. In order:
//
//  1. Candidates of one run sharing (patient, alert type, context key) collapse
//     to the highest severity; the first wins a tie.
//  2. Candidates matching an open alert are dropped.
//  3. Candidates whose rule fired for the same patient and context key at or
//     after asOf minus the rule cooldown are dropped, whether that alert is
//     open or resolved. Firing time is the alert's detection time, so
//     backdated scans compare like with like.
//
// Kept candidates preserve the input order.
func Filter(candidates []model.CandidateAlert, open, recent []*model.Alert, asOf time.Time) ([]model.CandidateAlert, []Suppression) {
	var suppressed []Suppression

	best := make(map[dedupKey]int, len(candidates))
	order := make([]dedupKey, 0, len(candidates))
	for i, c := range candidates {
		k := candidateKey(c)
		j, seen := best[k]
		if !seen {
			best[k] = i
			order = append(order, k)
			continue
		}
		if c.Severity > candidates[j].Severity {
			suppressed = append(suppressed, Suppression{Candidate: candidates[j], Reason: ReasonDuplicateInRun})
			best[k] = i
		} else {
			suppressed = append(suppressed, Suppression{Candidate: c, Reason: ReasonDuplicateInRun})
		}
	}

	openByKey := make(map[dedupKey]uuid.UUID, len(open))
	for _, a := range open {
		if a.Status == model.AlertStatusOpen {
			openByKey[dedupKey{a.PatientID, a.AlertType, a.Context.Key()}] = a.ID
		}
	}

	kept := make([]model.CandidateAlert, 0, len(order))
	for _, k := range order {
		c := candidates[best[k]]
		if id, ok := openByKey[k]; ok {
			suppressed = append(suppressed, Suppression{Candidate: c, Reason: ReasonOpenAlert, ExistingID: id})
			continue
		}
		if id, ok := lastFiring(c, recent, asOf); ok {
			suppressed = append(suppressed, Suppression{Candidate: c, Reason: ReasonCooldown, ExistingID: id})
			continue
		}
		kept = append(kept, c)
	}
	return kept, suppressed
}

// lastFiring finds an alert of the candidate's rule and context inside its
// cooldown. Other contexts of the same rule never cool each other down.
func lastFiring(c model.CandidateAlert, recent []*model.Alert, asOf time.Time) (uuid.UUID, bool) {
	if c.RuleID == "" || c.Cooldown <= 0 {
		return uuid.Nil, false
	}
	since := asOf.Add(-c.Cooldown)
	key := c.Context.Key()
	for _, a := range recent {
		if a.PatientID != c.PatientID || a.RuleID != c.RuleID || a.Context.Key() != key {
			continue
		}
		if fired := a.FiredAt(); !fired.Before(since) && !fired.After(asOf) {
			return a.ID, true
		}
	}
	return uuid.Nil, false
}
