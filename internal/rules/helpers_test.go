package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/alert-engine/internal/model"
)

var testAsOf = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func buildFromYAML(t *testing.T, doc string) *RuleDefinition {
	t.Helper()
	specs, err := LoadSpecs(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, specs, 1)
	def, err := Build(specs[0])
	require.NoError(t, err)
	return def
}

func reading(at time.Time, v float64, unit string) model.Measurement {
	return model.Measurement{ID: uuid.New(), Value: &v, Unit: unit, TakenAt: at}
}

func missingReading(at time.Time) model.Measurement {
	return model.Measurement{ID: uuid.New(), Unit: model.UnitMgDL, TakenAt: at}
}

func windowFor(def *RuleDefinition) *ClinicalWindow {
	return &ClinicalWindow{
		PatientID: uuid.New(),
		AsOf:      testAsOf,
		Window:    model.WindowEndingAt(testAsOf, def.Window),
	}
}

func hoursAgo(h float64) time.Time {
	return testAsOf.Add(-time.Duration(h * float64(time.Hour)))
}
