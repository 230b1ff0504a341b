package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
	"github.com/jwalitptl/alert-engine/internal/rules"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
	"github.com/jwalitptl/alert-engine/pkg/logger"
	"github.com/jwalitptl/alert-engine/pkg/metrics"
)

// Failure kinds of a patient evaluation.
const (
	FailureProvider = "provider"
	FailureTimeout  = "timeout"
	FailurePanic    = "panic"
	FailureStorage  = "storage"
	FailureCreate   = "create"
	FailureEval     = "evaluation"
)

type ScannerConfig struct {
	Workers        int
	PatientTimeout time.Duration
}

// PatientFailure records a patient whose evaluation did not complete. It is
// retried on the next cycle, never within the same one.
type PatientFailure struct {
	PatientID uuid.UUID `json:"patient_id"`
	Kind      string    `json:"kind"`
	Error     string    `json:"error"`
}

type ScanResult struct {
	AsOf         time.Time        `json:"as_of"`
	Patients     int              `json:"patients"`
	Evaluated    int              `json:"evaluated"`
	Created      int              `json:"created"`
	Suppressed   int              `json:"suppressed"`
	Failed       int              `json:"failed"`
	RuleFailures int              `json:"rule_failures"`
	Cancelled    bool             `json:"cancelled"`
	Duration     time.Duration    `json:"duration"`
	Failures     []PatientFailure `json:"failures,omitempty"`
	Diagnostics  []RuleDiagnostic `json:"diagnostics,omitempty"`
	AlertIDs     []uuid.UUID      `json:"alert_ids,omitempty"`
	// SuppressedBy counts suppressions per reason.
	SuppressedBy map[SuppressionReason]int `json:"suppressed_by,omitempty"`

	mu sync.Mutex
}

// Scanner runs one full-population scan cycle.
type Scanner struct {
	directory repository.PatientDirectory
	alerts    repository.AlertRepository
	evaluator *Evaluator
	service   *Service
	catalog   *rules.Catalog
	cfg       ScannerConfig
	metrics   *metrics.Metrics
	log       *logger.Logger
}

func NewScanner(
	directory repository.PatientDirectory,
	alerts repository.AlertRepository,
	evaluator *Evaluator,
	service *Service,
	catalog *rules.Catalog,
	cfg ScannerConfig,
	m *metrics.Metrics,
	log *logger.Logger,
) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PatientTimeout <= 0 {
		cfg.PatientTimeout = 30 * time.Second
	}
	return &Scanner{
		directory: directory,
		alerts:    alerts,
		evaluator: evaluator,
		service:   service,
		catalog:   catalog,
		cfg:       cfg,
		metrics:   m,
		log:       log.WithComponent("scanner"),
	}
}

// RunScanCycle evaluates every active patient as of asOf on a bounded pool.
// One patient's failure never stops the others. Cancelling ctx stops new
// patients from starting; patients already running finish under their own
// timeout. The returned error is only for failing to list patients.
func (s *Scanner) RunScanCycle(ctx context.Context, asOf time.Time) (*ScanResult, error) {
	start := time.Now()
	result := &ScanResult{
		AsOf:         asOf,
		SuppressedBy: make(map[SuppressionReason]int),
	}

	patients, err := s.directory.ListActivePatients(ctx)
	if err != nil {
		s.metrics.ScanRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to list active patients: %w", err)
	}
	result.Patients = len(patients)

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)

	for _, p := range patients {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}
		p := p
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PatientTimeout)
			defer cancel()
			s.scanPatient(pctx, p, asOf, result)
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(start)
	outcome := "completed"
	if result.Cancelled {
		outcome = "cancelled"
	}
	s.metrics.ScanRuns.WithLabelValues(outcome).Inc()
	s.metrics.ScanDuration.Observe(result.Duration.Seconds())

	s.log.Info("scan cycle finished",
		"as_of", asOf.Format(time.RFC3339),
		"outcome", outcome,
		"patients", result.Patients,
		"evaluated", result.Evaluated,
		"created", result.Created,
		"suppressed", result.Suppressed,
		"failed", result.Failed,
		"rule_failures", result.RuleFailures,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (s *Scanner) scanPatient(ctx context.Context, p model.Patient, asOf time.Time, result *ScanResult) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(result, p.ID, FailurePanic, fmt.Errorf("panic: %v", r))
		}
	}()

	s.metrics.PatientsEvaluated.Inc()
	eval, err := s.evaluator.Evaluate(ctx, p, asOf)
	if err != nil {
		s.fail(result, p.ID, classify(err), err)
		return
	}

	result.mu.Lock()
	result.Evaluated++
	result.RuleFailures += len(eval.Diagnostics)
	result.Diagnostics = append(result.Diagnostics, eval.Diagnostics...)
	result.mu.Unlock()

	if len(eval.Candidates) == 0 {
		return
	}

	open, err := s.alerts.ListOpenByPatient(ctx, p.ID)
	if err != nil {
		s.fail(result, p.ID, FailureStorage, err)
		return
	}
	recent, err := s.alerts.ListByPatientSince(ctx, p.ID, asOf.Add(-s.catalog.MaxCooldown()))
	if err != nil {
		s.fail(result, p.ID, FailureStorage, err)
		return
	}

	kept, suppressed := Filter(eval.Candidates, open, recent, asOf)
	for _, sup := range suppressed {
		s.suppress(result, sup.Reason)
	}

	var createErr error
	for _, c := range kept {
		a, err := s.service.CreateFromCandidate(ctx, c)
		switch {
		case err == nil:
			result.mu.Lock()
			result.Created++
			result.AlertIDs = append(result.AlertIDs, a.ID)
			result.mu.Unlock()
		case apperrors.IsCode(err, apperrors.ErrConflict):
			// A concurrent writer got there first.
			s.suppress(result, ReasonOpenAlert)
		default:
			createErr = errors.Join(createErr, err)
		}
	}
	if createErr != nil {
		s.fail(result, p.ID, FailureCreate, createErr)
	}
}

func (s *Scanner) suppress(result *ScanResult, reason SuppressionReason) {
	s.metrics.AlertsSuppressed.WithLabelValues(string(reason)).Inc()
	result.mu.Lock()
	result.Suppressed++
	result.SuppressedBy[reason]++
	result.mu.Unlock()
}

func (s *Scanner) fail(result *ScanResult, patientID uuid.UUID, kind string, err error) {
	s.metrics.EvaluationFailures.WithLabelValues(kind).Inc()
	s.log.Error(err, "patient evaluation failed",
		"patient_id", patientID.String(),
		"kind", kind,
	)
	result.mu.Lock()
	result.Failed++
	result.Failures = append(result.Failures, PatientFailure{PatientID: patientID, Kind: kind, Error: err.Error()})
	result.mu.Unlock()
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case apperrors.IsCode(err, apperrors.ErrTransientProvider):
		return FailureProvider
	default:
		return FailureEval
	}
}
