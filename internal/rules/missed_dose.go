package rules

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/alert-engine/internal/model"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

const KindMissedDose = "missed_dose"

func init() {
	RegisterKind(KindMissedDose, buildMissedDose)
}

type missedDoseParams struct {
	Grace            duration `yaml:"grace"`
	MinMissed        int      `yaml:"min_missed"`
	EscalateAfter    int      `yaml:"escalate_after"`
	EscalateSeverity string   `yaml:"escalate_severity"`
}

// MissedDose fires per schedule when enough doses went untaken.
// A dose is missed once its grace period has elapsed before asOf without an
// intake of the same schedule within grace of the due time.
type MissedDose struct {
	Grace            time.Duration
	MinMissed        int
	EscalateAfter    int
	EscalateSeverity model.Severity
}

func buildMissedDose(spec *Spec) (Predicate, []model.DataKind, error) {
	p := missedDoseParams{MinMissed: 1}
	if err := spec.DecodeParams(&p); err != nil {
		return nil, nil, err
	}
	if p.MinMissed <= 0 {
		return nil, nil, apperrors.Validation("min_missed must be positive for rule %q", spec.ID)
	}
	if p.Grace < 0 {
		return nil, nil, apperrors.Validation("grace must not be negative for rule %q", spec.ID)
	}
	md := &MissedDose{
		Grace:         time.Duration(p.Grace),
		MinMissed:     p.MinMissed,
		EscalateAfter: p.EscalateAfter,
	}
	if p.EscalateAfter > 0 {
		sev, err := model.ParseSeverity(p.EscalateSeverity)
		if err != nil {
			return nil, nil, apperrors.Validation("rule %q: escalate_severity: %v", spec.ID, err)
		}
		md.EscalateSeverity = sev
	}
	return md, []model.DataKind{model.DataSchedules, model.DataIntakes}, nil
}

func (md *MissedDose) Evaluate(w *ClinicalWindow) ([]Outcome, error) {
	doses := make([]model.ScheduledDose, 0, len(w.Schedules))
	for _, d := range w.Schedules {
		// Doses near the window start may have intakes just before it.
		if d.DueAt.Before(w.Window.Start.Add(md.Grace)) || d.DueAt.Add(md.Grace).After(w.AsOf) {
			continue
		}
		doses = append(doses, d)
	}
	sort.SliceStable(doses, func(i, j int) bool { return doses[i].DueAt.Before(doses[j].DueAt) })

	used := make(map[uuid.UUID]bool, len(w.Intakes))
	missed := make(map[uuid.UUID][]model.ScheduledDose)
	for _, d := range doses {
		if id, ok := md.matchIntake(d, w.Intakes, used); ok {
			used[id] = true
			continue
		}
		missed[d.ScheduleID] = append(missed[d.ScheduleID], d)
	}

	scheduleIDs := make([]uuid.UUID, 0, len(missed))
	for id := range missed {
		scheduleIDs = append(scheduleIDs, id)
	}
	sort.Slice(scheduleIDs, func(i, j int) bool { return scheduleIDs[i].String() < scheduleIDs[j].String() })

	var out []Outcome
	for _, id := range scheduleIDs {
		misses := missed[id]
		if len(misses) < md.MinMissed {
			continue
		}
		o := Outcome{
			Context: model.TriggerContext{
				Kind:        model.ContextSchedule,
				Ref:         id.String(),
				WindowStart: misses[0].DueAt,
				WindowEnd:   misses[len(misses)-1].DueAt,
			},
			Detail: map[string]string{
				"missed":     strconv.Itoa(len(misses)),
				"medication": misses[0].Medication,
			},
		}
		if md.EscalateAfter > 0 && len(misses) >= md.EscalateAfter {
			o.Severity = md.EscalateSeverity
		}
		out = append(out, o)
	}
	return out, nil
}

func (md *MissedDose) matchIntake(d model.ScheduledDose, intakes []model.Intake, used map[uuid.UUID]bool) (uuid.UUID, bool) {
	for _, in := range intakes {
		if used[in.ID] || in.ScheduleID != d.ScheduleID {
			continue
		}
		delta := in.TakenAt.Sub(d.DueAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= md.Grace {
			return in.ID, true
		}
	}
	return uuid.Nil, false
}
