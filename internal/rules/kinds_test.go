package rules

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/alert-engine/internal/model"
)

const missedDoseRule = `
rules:
  - id: missed
    kind: missed_dose
    alert_type: missed_dose
    severity: medium
    window: 72h
    cooldown: 24h
    params:
      grace: 2h
      min_missed: 1
      escalate_after: 3
      escalate_severity: high
`

func dose(schedule uuid.UUID, h float64) model.ScheduledDose {
	return model.ScheduledDose{ScheduleID: schedule, Medication: "metformin", DueAt: hoursAgo(h)}
}

func intake(schedule uuid.UUID, h float64) model.Intake {
	return model.Intake{ID: uuid.New(), ScheduleID: schedule, TakenAt: hoursAgo(h)}
}

func TestMissedDose(t *testing.T) {
	def := buildFromYAML(t, missedDoseRule)
	assert.True(t, def.NeedsKind(model.DataSchedules))
	assert.True(t, def.NeedsKind(model.DataIntakes))

	partly := uuid.New()
	pending := uuid.New()
	neglected := uuid.New()

	w := windowFor(def)
	w.Schedules = []model.ScheduledDose{
		dose(partly, 48), dose(partly, 24), dose(partly, 12),
		// grace still running
		dose(pending, 1),
		// too close to the window start to judge
		dose(pending, 71),
		dose(neglected, 60), dose(neglected, 36), dose(neglected, 12),
	}
	w.Intakes = []model.Intake{
		intake(partly, 23),
		// wrong schedule, must not satisfy neglected doses
		intake(partly, 36),
	}

	out, err := def.Predicate.Evaluate(w)
	require.NoError(t, err)

	byRef := map[string]Outcome{}
	for _, o := range out {
		byRef[o.Context.Ref] = o
	}
	require.Len(t, byRef, 2)

	p := byRef[partly.String()]
	assert.Equal(t, model.ContextSchedule, p.Context.Kind)
	assert.Equal(t, "2", p.Detail["missed"])
	assert.Equal(t, model.SeverityUnknown, p.Severity)
	assert.Equal(t, hoursAgo(48), p.Context.WindowStart)
	assert.Equal(t, hoursAgo(12), p.Context.WindowEnd)

	n := byRef[neglected.String()]
	assert.Equal(t, "3", n.Detail["missed"])
	assert.Equal(t, model.SeverityHigh, n.Severity)

	_, ok := byRef[pending.String()]
	assert.False(t, ok)
}

func TestMissedDoseIntakeMatchesOnlyOneDose(t *testing.T) {
	def := buildFromYAML(t, missedDoseRule)
	s := uuid.New()
	w := windowFor(def)
	w.Schedules = []model.ScheduledDose{dose(s, 10), dose(s, 9)}
	w.Intakes = []model.Intake{intake(s, 9.5)}

	out, err := def.Predicate.Evaluate(w)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "1", out[0].Detail["missed"])
}

func TestSymptomEscalation(t *testing.T) {
	def := buildFromYAML(t, `
rules:
  - id: symptoms
    kind: symptom_escalation
    alert_type: symptom_escalation
    severity: medium
    window: 72h
    params: {min_intensity: 7, min_occurrences: 2, critical_intensity: 10}
`)
	w := windowFor(def)
	w.Symptoms = []model.Symptom{
		{ID: uuid.New(), Code: "dizziness", Intensity: 7, ReportedAt: hoursAgo(30)},
		{ID: uuid.New(), Code: "dizziness", Intensity: 8, ReportedAt: hoursAgo(5)},
		{ID: uuid.New(), Code: "nausea", Intensity: 10, ReportedAt: hoursAgo(4)},
		{ID: uuid.New(), Code: "nausea", Intensity: 3, ReportedAt: hoursAgo(2)},
		{ID: uuid.New(), Code: "thirst", Intensity: 9, ReportedAt: hoursAgo(6)},
		{ID: uuid.New(), Code: "thirst", Intensity: 10, ReportedAt: hoursAgo(1)},
	}

	out, err := def.Predicate.Evaluate(w)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "symptom:dizziness", out[0].Context.Key())
	assert.Equal(t, "2", out[0].Detail["occurrences"])
	assert.Equal(t, model.SeverityUnknown, out[0].Severity)

	assert.Equal(t, "symptom:thirst", out[1].Context.Key())
	assert.Equal(t, model.SeverityCritical, out[1].Severity)
}

func TestSymptomEscalationRejectsOutOfRangeIntensity(t *testing.T) {
	def := buildFromYAML(t, `
rules:
  - id: symptoms
    kind: symptom_escalation
    alert_type: symptom_escalation
    severity: medium
    window: 72h
    params: {min_intensity: 7}
`)
	w := windowFor(def)
	w.Symptoms = []model.Symptom{{ID: uuid.New(), Code: "pain", Intensity: 11, ReportedAt: hoursAgo(1)}}

	_, err := def.Predicate.Evaluate(w)
	assert.Error(t, err)
}

func TestMeasurementGap(t *testing.T) {
	def := buildFromYAML(t, `
rules:
  - id: daily
    kind: measurement_gap
    alert_type: monitoring_gap
    severity: low
    window: 1d
    params: {min_readings: 1, context_ref: glycemia-daily}
`)
	w := windowFor(def)
	w.Measurements = []model.Measurement{missingReading(hoursAgo(3))}

	out, err := def.Predicate.Evaluate(w)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "patient:glycemia-daily", out[0].Context.Key())
	assert.Equal(t, w.Window.Start, out[0].Context.WindowStart)

	w.Measurements = append(w.Measurements, reading(hoursAgo(2), 110, model.UnitMgDL))
	out, err = def.Predicate.Evaluate(w)
	require.NoError(t, err)
	assert.Empty(t, out)
}
