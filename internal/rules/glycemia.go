package rules

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jwalitptl/alert-engine/internal/model"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

const KindGlycemiaThreshold = "glycemia_threshold"

func init() {
	RegisterKind(KindGlycemiaThreshold, buildGlycemiaThreshold)
}

type glycemiaParams struct {
	Operator          string   `yaml:"operator"`
	Threshold         float64  `yaml:"threshold"`
	Consecutive       int      `yaml:"consecutive"`
	ExpectedInterval  duration `yaml:"expected_interval"`
	TolerateGaps      bool     `yaml:"tolerate_gaps"`
	CriticalThreshold *float64 `yaml:"critical_threshold"`
}

// GlycemiaThreshold fires when N consecutive readings compare true against
// the threshold. Thresholds are in mg/dL.
type GlycemiaThreshold struct {
	Operator    string
	Threshold   float64
	Consecutive int
	// ExpectedInterval is the longest allowed spacing between readings. A
	// longer gap counts as a missing reading. Zero disables the check.
	ExpectedInterval time.Duration
	// TolerateGaps keeps a streak alive across missing readings.
	TolerateGaps      bool
	CriticalThreshold *float64
}

func buildGlycemiaThreshold(spec *Spec) (Predicate, []model.DataKind, error) {
	p := glycemiaParams{Consecutive: 1}
	if err := spec.DecodeParams(&p); err != nil {
		return nil, nil, err
	}
	if !validOperator(p.Operator) {
		return nil, nil, apperrors.Validation("invalid operator %q for rule %q", p.Operator, spec.ID)
	}
	if p.Consecutive <= 0 {
		return nil, nil, apperrors.Validation("consecutive must be positive for rule %q", spec.ID)
	}
	if p.Threshold <= 0 {
		return nil, nil, apperrors.Validation("threshold must be positive for rule %q", spec.ID)
	}
	return &GlycemiaThreshold{
		Operator:          p.Operator,
		Threshold:         p.Threshold,
		Consecutive:       p.Consecutive,
		ExpectedInterval:  time.Duration(p.ExpectedInterval),
		TolerateGaps:      p.TolerateGaps,
		CriticalThreshold: p.CriticalThreshold,
	}, []model.DataKind{model.DataMeasurements}, nil
}

func (g *GlycemiaThreshold) Evaluate(w *ClinicalWindow) ([]Outcome, error) {
	readings := make([]model.Measurement, len(w.Measurements))
	copy(readings, w.Measurements)
	sort.SliceStable(readings, func(i, j int) bool { return readings[i].TakenAt.Before(readings[j].TakenAt) })

	var (
		streak  []model.Measurement
		values  []float64
		latest  []model.Measurement
		lvalues []float64
		prev    *model.Measurement
	)
	reset := func() {
		streak = streak[:0]
		values = values[:0]
	}

	for i := range readings {
		m := readings[i]
		gap := prev != nil && g.ExpectedInterval > 0 && m.TakenAt.Sub(prev.TakenAt) > g.ExpectedInterval
		prev = &readings[i]

		if gap && !g.TolerateGaps {
			reset()
		}
		if m.Value == nil {
			if !g.TolerateGaps {
				reset()
			}
			continue
		}

		v, err := toMgDL(m)
		if err != nil {
			return nil, err
		}
		if !compareThreshold(v, g.Threshold, g.Operator) {
			reset()
			continue
		}

		streak = append(streak, m)
		values = append(values, v)
		if len(streak) >= g.Consecutive {
			latest = append(latest[:0], streak...)
			lvalues = append(lvalues[:0], values...)
		}
	}

	if len(latest) == 0 {
		return nil, nil
	}

	peak := lvalues[0]
	for _, v := range lvalues[1:] {
		if compareThreshold(v, peak, g.Operator) {
			peak = v
		}
	}

	out := Outcome{
		Context: model.TriggerContext{
			Kind:        model.ContextMeasurement,
			Ref:         latest[0].ID.String(),
			WindowStart: latest[0].TakenAt,
			WindowEnd:   latest[len(latest)-1].TakenAt,
		},
		Detail: map[string]string{
			"readings":  strconv.Itoa(len(latest)),
			"peak":      strconv.FormatFloat(peak, 'f', -1, 64),
			"threshold": fmt.Sprintf("%s %s", g.Operator, strconv.FormatFloat(g.Threshold, 'f', -1, 64)),
		},
	}
	if g.CriticalThreshold != nil && compareThreshold(peak, *g.CriticalThreshold, g.Operator) {
		out.Severity = model.SeverityCritical
	}
	return []Outcome{out}, nil
}

// toMgDL normalises a reading to mg/dL. Unknown units are malformed data.
func toMgDL(m model.Measurement) (float64, error) {
	switch m.Unit {
	case model.UnitMgDL:
		return *m.Value, nil
	case model.UnitMmolL:
		return *m.Value * model.MmolToMgDL, nil
	default:
		return 0, fmt.Errorf("measurement %s has unsupported unit %q", m.ID, m.Unit)
	}
}
