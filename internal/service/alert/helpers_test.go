package alert

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository/memory"
	"github.com/jwalitptl/alert-engine/internal/repository/postgres"
	"github.com/jwalitptl/alert-engine/internal/rules"
	"github.com/jwalitptl/alert-engine/internal/service/audit"
	"github.com/jwalitptl/alert-engine/pkg/logger"
	"github.com/jwalitptl/alert-engine/pkg/metrics"
)

var testAsOf = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

const highStreakRules = `
rules:
  - id: glycemia-high-streak
    kind: glycemia_threshold
    alert_type: glycemia_high
    severity: high
    window: 24h
    cooldown: 24h
    params:
      operator: ">"
      threshold: 250
      consecutive: 3
      expected_interval: 8h
      critical_threshold: 400
`

type harness struct {
	store     *memory.ClinicalStore
	alerts    *memory.AlertRepository
	audit     *memory.AuditRepository
	outbox    *memory.OutboxRepository
	types     *memory.AlertTypeRepository
	metrics   *metrics.Metrics
	catalog   *rules.Catalog
	evaluator *Evaluator
	service   *Service
	scanner   *Scanner
	// clock is the service's notion of now. Tests move it along with asOf.
	clock time.Time
}

func newHarness(t *testing.T, rulesYAML string, cfg ScannerConfig) *harness {
	t.Helper()

	h := &harness{
		store:   memory.NewClinicalStore(),
		alerts:  memory.NewAlertRepository(),
		audit:   memory.NewAuditRepository(),
		outbox:  memory.NewOutboxRepository(),
		types:   memory.NewAlertTypeRepository(postgres.DefaultAlertTypes()),
		metrics: metrics.NewTestMetrics(),
		clock:   testAsOf,
	}

	var defs []*rules.RuleDefinition
	if rulesYAML == "" {
		var err error
		defs, err = rules.BuildAll(rules.DefaultSpecs())
		require.NoError(t, err)
	} else {
		specs, err := rules.LoadSpecs(strings.NewReader(rulesYAML))
		require.NoError(t, err)
		defs, err = rules.BuildAll(specs)
		require.NoError(t, err)
	}
	h.catalog = rules.NewCatalog(postgres.DefaultAlertTypes())
	require.NoError(t, h.catalog.RegisterAll(defs))

	log := logger.Nop()
	h.evaluator = NewEvaluator(h.catalog, h.store, h.metrics, log)
	h.service = NewService(Dependencies{
		Alerts:    h.alerts,
		Directory: h.store,
		Outbox:    h.outbox,
		Types:     NewTypeLookup(h.types, time.Minute),
		Resolver:  NewRecipientResolver(h.store, model.SeverityHigh, log),
		Audit:     audit.NewAuditLogger(audit.NewService(h.audit), log, h.metrics),
		Metrics:   h.metrics,
		Logger:    log,
	})
	h.service.now = func() time.Time { return h.clock }
	h.scanner = NewScanner(h.store, h.alerts, h.evaluator, h.service, h.catalog, cfg, h.metrics, log)
	return h
}

func (h *harness) addPatient(conditions ...string) uuid.UUID {
	id := uuid.New()
	h.store.AddPatient(model.Patient{ID: id, Status: model.PatientStatusActive, Conditions: conditions})
	return id
}

func (h *harness) addReadings(patientID uuid.UUID, unit string, readings map[float64]float64) []model.Measurement {
	var out []model.Measurement
	for hoursAgo, v := range readings {
		v := v
		m := model.Measurement{
			ID:        uuid.New(),
			PatientID: patientID,
			Value:     &v,
			Unit:      unit,
			TakenAt:   testAsOf.Add(-time.Duration(hoursAgo * float64(time.Hour))),
		}
		h.store.AddMeasurements(m)
		out = append(out, m)
	}
	return out
}

// highStreak gives the patient three readings above 250 mg/dL in the last 12 hours.
func (h *harness) highStreak(patientID uuid.UUID) {
	h.addReadings(patientID, model.UnitMgDL, map[float64]float64{12: 260, 8: 270, 4: 280})
}
