package rules

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/jwalitptl/alert-engine/internal/model"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

const KindSymptomEscalation = "symptom_escalation"

func init() {
	RegisterKind(KindSymptomEscalation, buildSymptomEscalation)
}

const maxSymptomIntensity = 10

// SymptomEscalation fires per symptom code reported at or above MinIntensity
// at least MinOccurrences times in the window.
type SymptomEscalation struct {
	MinIntensity   int `yaml:"min_intensity"`
	MinOccurrences int `yaml:"min_occurrences"`
	// CriticalIntensity escalates to critical when any qualifying report reaches it. Zero disables.
	CriticalIntensity int `yaml:"critical_intensity"`
}

func buildSymptomEscalation(spec *Spec) (Predicate, []model.DataKind, error) {
	p := &SymptomEscalation{MinOccurrences: 1}
	if err := spec.DecodeParams(p); err != nil {
		return nil, nil, err
	}
	if p.MinIntensity < 0 || p.MinIntensity > maxSymptomIntensity {
		return nil, nil, apperrors.Validation("min_intensity must be within 0..%d for rule %q", maxSymptomIntensity, spec.ID)
	}
	if p.MinOccurrences <= 0 {
		return nil, nil, apperrors.Validation("min_occurrences must be positive for rule %q", spec.ID)
	}
	return p, []model.DataKind{model.DataSymptoms}, nil
}

func (s *SymptomEscalation) Evaluate(w *ClinicalWindow) ([]Outcome, error) {
	byCode := make(map[string][]model.Symptom)
	for _, sym := range w.Symptoms {
		if sym.Intensity < 0 || sym.Intensity > maxSymptomIntensity {
			return nil, fmt.Errorf("symptom %s has intensity %d outside 0..%d", sym.ID, sym.Intensity, maxSymptomIntensity)
		}
		if sym.Intensity >= s.MinIntensity {
			byCode[sym.Code] = append(byCode[sym.Code], sym)
		}
	}

	codes := make([]string, 0, len(byCode))
	for code := range byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var out []Outcome
	for _, code := range codes {
		reports := byCode[code]
		if len(reports) < s.MinOccurrences {
			continue
		}
		sort.SliceStable(reports, func(i, j int) bool { return reports[i].ReportedAt.Before(reports[j].ReportedAt) })

		maxIntensity := 0
		for _, r := range reports {
			if r.Intensity > maxIntensity {
				maxIntensity = r.Intensity
			}
		}
		o := Outcome{
			Context: model.TriggerContext{
				Kind:        model.ContextSymptom,
				Ref:         code,
				WindowStart: reports[0].ReportedAt,
				WindowEnd:   reports[len(reports)-1].ReportedAt,
			},
			Detail: map[string]string{
				"occurrences":   strconv.Itoa(len(reports)),
				"max_intensity": strconv.Itoa(maxIntensity),
			},
		}
		if s.CriticalIntensity > 0 && maxIntensity >= s.CriticalIntensity {
			o.Severity = model.SeverityCritical
		}
		out = append(out, o)
	}
	return out, nil
}
