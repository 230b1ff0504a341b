package alert

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
	"github.com/jwalitptl/alert-engine/internal/rules"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
	"github.com/jwalitptl/alert-engine/pkg/logger"
	"github.com/jwalitptl/alert-engine/pkg/metrics"
)

// RuleDiagnostic reports a rule that could not be evaluated for a patient.
// It is an operational event, never a clinical alert.
type RuleDiagnostic struct {
	PatientID uuid.UUID `json:"patient_id"`
	RuleID    string    `json:"rule_id"`
	Error     string    `json:"error"`
	Panicked  bool      `json:"panicked,omitempty"`
}

type EvaluationResult struct {
	PatientID   uuid.UUID              `json:"patient_id"`
	AsOf        time.Time              `json:"as_of"`
	RulesRun    int                    `json:"rules_run"`
	Candidates  []model.CandidateAlert `json:"candidates"`
	Diagnostics []RuleDiagnostic       `json:"diagnostics,omitempty"`
}

// Evaluator runs the applicable rules of the catalog against one patient.
type Evaluator struct {
	catalog  *rules.Catalog
	provider repository.ClinicalDataProvider
	metrics  *metrics.Metrics
	log      *logger.Logger
}

func NewEvaluator(catalog *rules.Catalog, provider repository.ClinicalDataProvider, m *metrics.Metrics, log *logger.Logger) *Evaluator {
	return &Evaluator{
		catalog:  catalog,
		provider: provider,
		metrics:  m,
		log:      log.WithComponent("evaluator"),
	}
}

// Evaluate fetches each rule's window of data and applies its predicate. A
// failing or panicking rule becomes a diagnostic and the remaining rules
// still run. A provider failure aborts the patient with a transient
// provider error.
func (e *Evaluator) Evaluate(ctx context.Context, patient model.Patient, asOf time.Time) (*EvaluationResult, error) {
	applicable := e.catalog.ListApplicableRules(rules.PatientContext{Patient: patient, AsOf: asOf})
	result := &EvaluationResult{
		PatientID:  patient.ID,
		AsOf:       asOf,
		RulesRun:   len(applicable),
		Candidates: []model.CandidateAlert{},
	}

	fetch := newWindowFetcher(e.provider, patient.ID, asOf)
	for _, rule := range applicable {
		window, err := fetch.window(ctx, rule)
		if err != nil {
			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) {
				err = apperrors.TransientProvider("fetch", err)
			}
			return nil, err
		}

		outcomes, err := e.apply(rule, window)
		if err != nil {
			var pe *predicatePanic
			diag := RuleDiagnostic{PatientID: patient.ID, RuleID: rule.ID, Error: err.Error(), Panicked: errors.As(err, &pe)}
			result.Diagnostics = append(result.Diagnostics, diag)
			e.metrics.RuleFailures.WithLabelValues(rule.ID).Inc()
			e.log.Warn("rule evaluation failed",
				"rule_id", rule.ID,
				"patient_id", patient.ID.String(),
				"error", err.Error(),
				"panicked", diag.Panicked,
			)
			continue
		}

		for _, o := range outcomes {
			result.Candidates = append(result.Candidates, rule.Candidate(patient.ID, o, asOf))
		}
	}
	return result, nil
}

type predicatePanic struct {
	value interface{}
	stack []byte
}

func (p *predicatePanic) Error() string {
	return fmt.Sprintf("predicate panicked: %v", p.value)
}

func (e *Evaluator) apply(rule *rules.RuleDefinition, w *rules.ClinicalWindow) (out []rules.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			p := &predicatePanic{value: r, stack: debug.Stack()}
			e.log.Debug("predicate panic", "rule_id", rule.ID, "stack", string(p.stack))
			out, err = nil, p
		}
	}()
	return rule.Predicate.Evaluate(w)
}

type fetchKey struct {
	kind   model.DataKind
	window time.Duration
}

// windowFetcher memoises provider reads for one evaluation. Rules sharing a
// window and data kind cause a single provider call.
type windowFetcher struct {
	provider  repository.ClinicalDataProvider
	patientID uuid.UUID
	asOf      time.Time
	cache     map[fetchKey]interface{}
}

func newWindowFetcher(p repository.ClinicalDataProvider, patientID uuid.UUID, asOf time.Time) *windowFetcher {
	return &windowFetcher{provider: p, patientID: patientID, asOf: asOf, cache: make(map[fetchKey]interface{})}
}

func (f *windowFetcher) window(ctx context.Context, rule *rules.RuleDefinition) (*rules.ClinicalWindow, error) {
	tw := model.WindowEndingAt(f.asOf, rule.Window)
	w := &rules.ClinicalWindow{
		PatientID:    f.patientID,
		AsOf:         f.asOf,
		Window:       tw,
		Measurements: []model.Measurement{},
		Intakes:      []model.Intake{},
		Schedules:    []model.ScheduledDose{},
		Symptoms:     []model.Symptom{},
	}

	for _, kind := range rule.Needs {
		data, err := f.get(ctx, kind, rule.Window, tw)
		if err != nil {
			return nil, err
		}
		switch kind {
		case model.DataMeasurements:
			w.Measurements = data.([]model.Measurement)
		case model.DataIntakes:
			w.Intakes = data.([]model.Intake)
		case model.DataSchedules:
			w.Schedules = data.([]model.ScheduledDose)
		case model.DataSymptoms:
			w.Symptoms = data.([]model.Symptom)
		}
	}
	return w, nil
}

func (f *windowFetcher) get(ctx context.Context, kind model.DataKind, d time.Duration, tw model.TimeWindow) (interface{}, error) {
	key := fetchKey{kind, d}
	if v, ok := f.cache[key]; ok {
		return v, nil
	}

	var (
		v   interface{}
		err error
	)
	switch kind {
	case model.DataMeasurements:
		v, err = f.provider.GetMeasurements(ctx, f.patientID, tw)
	case model.DataIntakes:
		v, err = f.provider.GetIntakes(ctx, f.patientID, tw)
	case model.DataSchedules:
		v, err = f.provider.GetSchedules(ctx, f.patientID, tw)
	case model.DataSymptoms:
		v, err = f.provider.GetSymptoms(ctx, f.patientID, tw)
	default:
		return nil, apperrors.DataIntegrity("unknown clinical data kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	f.cache[key] = v
	return v, nil
}
