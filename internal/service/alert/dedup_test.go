package alert

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/alert-engine/internal/model"
)

func candidate(patient uuid.UUID, rule, alertType, ref string, sev model.Severity) model.CandidateAlert {
	return model.CandidateAlert{
		PatientID: patient,
		RuleID:    rule,
		AlertType: alertType,
		Severity:  sev,
		Context:   model.TriggerContext{Kind: model.ContextMeasurement, Ref: ref},
		Cooldown:  24 * time.Hour,
	}
}

func existing(c model.CandidateAlert, status model.AlertStatus, createdAt time.Time) *model.Alert {
	return &model.Alert{
		ID:        uuid.New(),
		PatientID: c.PatientID,
		AlertType: c.AlertType,
		RuleID:    c.RuleID,
		Severity:  c.Severity,
		Context:   c.Context,
		Status:    status,
		CreatedAt: createdAt,
	}
}

func TestFilterKeepsHighestSeverityInRun(t *testing.T) {
	p := uuid.New()
	medium := candidate(p, "rule-a", "glycemia_high", "m1", model.SeverityMedium)
	critical := candidate(p, "rule-b", "glycemia_high", "m1", model.SeverityCritical)
	high := candidate(p, "rule-c", "glycemia_high", "m1", model.SeverityHigh)

	kept, suppressed := Filter([]model.CandidateAlert{medium, critical, high}, nil, nil, testAsOf)

	require.Len(t, kept, 1)
	assert.Equal(t, "rule-b", kept[0].RuleID)
	require.Len(t, suppressed, 2)
	for _, s := range suppressed {
		assert.Equal(t, ReasonDuplicateInRun, s.Reason)
	}
}

func TestFilterFirstWinsOnSeverityTie(t *testing.T) {
	p := uuid.New()
	first := candidate(p, "rule-a", "glycemia_high", "m1", model.SeverityHigh)
	second := candidate(p, "rule-b", "glycemia_high", "m1", model.SeverityHigh)

	kept, _ := Filter([]model.CandidateAlert{first, second}, nil, nil, testAsOf)
	require.Len(t, kept, 1)
	assert.Equal(t, "rule-a", kept[0].RuleID)
}

func TestFilterDifferentContextsAreDistinct(t *testing.T) {
	p := uuid.New()
	a := candidate(p, "missed-dose", "missed_dose", "s1", model.SeverityMedium)
	b := candidate(p, "missed-dose", "missed_dose", "s2", model.SeverityMedium)

	kept, suppressed := Filter([]model.CandidateAlert{a, b}, nil, nil, testAsOf)
	assert.Len(t, kept, 2)
	assert.Empty(t, suppressed)
}

func TestFilterDropsOpenAlertMatch(t *testing.T) {
	p := uuid.New()
	c := candidate(p, "rule-a", "glycemia_high", "m1", model.SeverityHigh)
	c.Cooldown = 0
	open := existing(c, model.AlertStatusOpen, testAsOf.Add(-72*time.Hour))

	kept, suppressed := Filter([]model.CandidateAlert{c}, []*model.Alert{open}, nil, testAsOf)
	assert.Empty(t, kept)
	require.Len(t, suppressed, 1)
	assert.Equal(t, ReasonOpenAlert, suppressed[0].Reason)
	assert.Equal(t, open.ID, suppressed[0].ExistingID)
}

func TestFilterOpenMatchIgnoresWindow(t *testing.T) {
	p := uuid.New()
	c := candidate(p, "rule-a", "glycemia_high", "m1", model.SeverityHigh)
	open := existing(c, model.AlertStatusOpen, testAsOf.Add(-time.Hour))
	open.Context.WindowEnd = testAsOf.Add(-time.Hour)
	c.Context.WindowEnd = testAsOf

	kept, _ := Filter([]model.CandidateAlert{c}, []*model.Alert{open}, nil, testAsOf)
	assert.Empty(t, kept)
}

func TestFilterCooldown(t *testing.T) {
	p := uuid.New()
	c := candidate(p, "rule-a", "glycemia_high", "m2", model.SeverityHigh)

	tests := []struct {
		name     string
		prior    *model.Alert
		wantKept bool
	}{
		{"resolved inside cooldown", existing(c, model.AlertStatusResolved, testAsOf.Add(-23*time.Hour)), false},
		{"exactly at cooldown edge", existing(c, model.AlertStatusResolved, testAsOf.Add(-24*time.Hour)), false},
		{"outside cooldown", existing(c, model.AlertStatusResolved, testAsOf.Add(-25*time.Hour)), true},
		{"other context", existing(candidate(p, "rule-a", "glycemia_high", "m1", model.SeverityHigh), model.AlertStatusResolved, testAsOf.Add(-time.Hour)), true},
		{"other rule", existing(candidate(p, "rule-b", "glycemia_high", "m2", model.SeverityHigh), model.AlertStatusResolved, testAsOf.Add(-time.Hour)), true},
		{"other patient", existing(candidate(uuid.New(), "rule-a", "glycemia_high", "m2", model.SeverityHigh), model.AlertStatusResolved, testAsOf.Add(-time.Hour)), true},
		{"detected after asOf", existing(c, model.AlertStatusResolved, testAsOf.Add(time.Hour)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, suppressed := Filter([]model.CandidateAlert{c}, nil, []*model.Alert{tt.prior}, testAsOf)
			if tt.wantKept {
				assert.Len(t, kept, 1)
				assert.Empty(t, suppressed)
				return
			}
			assert.Empty(t, kept)
			require.Len(t, suppressed, 1)
			assert.Equal(t, ReasonCooldown, suppressed[0].Reason)
		})
	}
}

func TestFilterCooldownUsesDetectionTime(t *testing.T) {
	p := uuid.New()
	c := candidate(p, "rule-a", "glycemia_high", "m1", model.SeverityHigh)
	// Written late by a backfill, detected long before asOf minus cooldown.
	prior := existing(c, model.AlertStatusResolved, testAsOf.Add(-time.Hour))
	prior.DetectedAt = testAsOf.Add(-48 * time.Hour)

	kept, suppressed := Filter([]model.CandidateAlert{c}, nil, []*model.Alert{prior}, testAsOf)
	assert.Len(t, kept, 1)
	assert.Empty(t, suppressed)
}

func TestFilterManualCandidateHasNoCooldown(t *testing.T) {
	p := uuid.New()
	c := model.CandidateAlert{
		PatientID: p,
		AlertType: "clinician_concern",
		Severity:  model.SeverityMedium,
		Context:   model.TriggerContext{Kind: model.ContextManual, Ref: ManualContextRef},
	}
	prior := existing(c, model.AlertStatusResolved, testAsOf.Add(-time.Minute))

	kept, _ := Filter([]model.CandidateAlert{c}, nil, []*model.Alert{prior}, testAsOf)
	assert.Len(t, kept, 1)
}
