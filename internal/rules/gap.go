package rules

import (
	"strconv"

	"github.com/jwalitptl/alert-engine/internal/model"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

const KindMeasurementGap = "measurement_gap"

func init() {
	RegisterKind(KindMeasurementGap, buildMeasurementGap)
}

// MeasurementGap fires when fewer than MinReadings recorded glycemic readings
// exist in the window.
type MeasurementGap struct {
	MinReadings int    `yaml:"min_readings"`
	ContextRef  string `yaml:"context_ref"`
}

func buildMeasurementGap(spec *Spec) (Predicate, []model.DataKind, error) {
	p := &MeasurementGap{MinReadings: 1, ContextRef: "glycemia-gap"}
	if err := spec.DecodeParams(p); err != nil {
		return nil, nil, err
	}
	if p.MinReadings <= 0 {
		return nil, nil, apperrors.Validation("min_readings must be positive for rule %q", spec.ID)
	}
	if p.ContextRef == "" {
		return nil, nil, apperrors.Validation("context_ref must not be empty for rule %q", spec.ID)
	}
	return p, []model.DataKind{model.DataMeasurements}, nil
}

func (g *MeasurementGap) Evaluate(w *ClinicalWindow) ([]Outcome, error) {
	recorded := 0
	for _, m := range w.Measurements {
		if m.Value != nil {
			recorded++
		}
	}
	if recorded >= g.MinReadings {
		return nil, nil
	}
	return []Outcome{{
		Context: model.TriggerContext{
			Kind:        model.ContextPatient,
			Ref:         g.ContextRef,
			WindowStart: w.Window.Start,
			WindowEnd:   w.Window.End,
		},
		Detail: map[string]string{
			"readings": strconv.Itoa(recorded),
			"expected": strconv.Itoa(g.MinReadings),
		},
	}}, nil
}
