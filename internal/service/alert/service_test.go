package alert

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/alert-engine/internal/model"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

func manualRequest(patient uuid.UUID) ManualAlertRequest {
	return ManualAlertRequest{
		PatientID: patient,
		AlertType: "clinician_concern",
		Severity:  model.SeverityMedium,
		Note:      "  patient reports dizziness  ",
		ActorID:   uuid.New(),
	}
}

func TestCreateManualAlert(t *testing.T) {
	h := newHarness(t, highStreakRules, ScannerConfig{})
	p := h.addPatient()
	req := manualRequest(p)

	a, err := h.service.CreateManualAlert(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, model.AlertStatusOpen, a.Status)
	assert.Equal(t, req.ActorID.String(), a.CreatedBy)
	assert.Equal(t, "patient reports dizziness", a.Note)
	assert.Empty(t, a.RuleID)
	assert.Equal(t, model.ContextManual, a.Context.Kind)
	require.Len(t, a.Recipients, 1)
	assert.Equal(t, p, a.Recipients[0].UserID)

	history, err := h.audit.ListByEntity(context.Background(), model.AuditEntityAlert, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.AuditActionCreate, history[0].Operation)
	assert.Equal(t, req.ActorID.String(), history[0].Actor)
	assert.Nil(t, history[0].Before)

	events := h.outbox.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventAlertCreated, events[0].EventType)
	var n model.AlertNotification
	require.NoError(t, json.Unmarshal(events[0].Payload, &n))
	assert.Equal(t, a.ID, n.AlertID)
	assert.Equal(t, model.SeverityMedium, n.Severity)
}

func TestCreateManualAlertValidation(t *testing.T) {
	h := newHarness(t, highStreakRules, ScannerConfig{})
	p := h.addPatient()
	inactive := uuid.New()
	h.store.AddPatient(model.Patient{ID: inactive, Status: model.PatientStatusInactive})

	tests := []struct {
		name   string
		mutate func(*ManualAlertRequest)
		code   apperrors.ErrorCode
	}{
		{"unknown alert type", func(r *ManualAlertRequest) { r.AlertType = "made_up" }, apperrors.ErrValidation},
		{"invalid severity", func(r *ManualAlertRequest) { r.Severity = model.SeverityUnknown }, apperrors.ErrValidation},
		{"missing actor", func(r *ManualAlertRequest) { r.ActorID = uuid.Nil }, apperrors.ErrValidation},
		{"unknown patient", func(r *ManualAlertRequest) { r.PatientID = uuid.New() }, apperrors.ErrNotFound},
		{"inactive patient", func(r *ManualAlertRequest) { r.PatientID = inactive }, apperrors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := manualRequest(p)
			tt.mutate(&req)

			_, err := h.service.CreateManualAlert(context.Background(), req)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, tt.code), "got %v", err)
		})
	}

	assert.Zero(t, h.alerts.Count(), "no alert row")
	assert.Zero(t, h.audit.Len(), "no change log entry")
	assert.Empty(t, h.outbox.Events())
}

func TestCreateManualAlertDuplicateIsConflict(t *testing.T) {
	h := newHarness(t, highStreakRules, ScannerConfig{})
	p := h.addPatient()

	_, err := h.service.CreateManualAlert(context.Background(), manualRequest(p))
	require.NoError(t, err)

	_, err = h.service.CreateManualAlert(context.Background(), manualRequest(p))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
	assert.Equal(t, 1, h.alerts.Count())
	assert.Equal(t, 1, h.audit.Len())

	other := manualRequest(p)
	other.ContextRef = "measurement-42"
	_, err = h.service.CreateManualAlert(context.Background(), other)
	assert.NoError(t, err)
}

func TestCreateHighSeverityWithoutDoctorWarns(t *testing.T) {
	h := newHarness(t, highStreakRules, ScannerConfig{})
	q := h.addPatient()
	req := manualRequest(q)
	req.AlertType = "glycemia_high"
	req.Severity = model.SeverityHigh

	a, err := h.service.CreateManualAlert(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, a.Recipients, 1)
	assert.Equal(t, q, a.Recipients[0].UserID)
	assert.True(t, a.RecipientWarning)
	assert.Equal(t, WarningNoDoctor, a.WarningReason)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.RecipientWarnings))
}

func TestRecipientsFixedAtCreation(t *testing.T) {
	h := newHarness(t, highStreakRules, ScannerConfig{})
	p := h.addPatient()
	doctor := uuid.New()
	h.store.SetDoctors(p, doctor)
	req := manualRequest(p)
	req.Severity = model.SeverityCritical

	a, err := h.service.CreateManualAlert(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, a.Recipients, 2)

	h.store.SetDoctors(p, uuid.New(), uuid.New())

	got, err := h.service.GetAlert(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, got.Recipients, 2)
	assert.Equal(t, doctor, got.Recipients[1].UserID)
	assert.Equal(t, model.SeverityCritical, got.Severity)
}

func TestResolveAlert(t *testing.T) {
	h := newHarness(t, highStreakRules, ScannerConfig{})
	p := h.addPatient()
	a, err := h.service.CreateManualAlert(context.Background(), manualRequest(p))
	require.NoError(t, err)
	actor := uuid.New()

	resolved, err := h.service.ResolveAlert(context.Background(), a.Recipients[0].ID, actor)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, actor, *resolved.ResolvedBy)
	for _, r := range resolved.Recipients {
		assert.Equal(t, model.DeliveryResolved, r.DeliveryStatus)
	}

	_, err = h.service.ResolveAlert(context.Background(), a.Recipients[0].ID, actor)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))

	_, err = h.service.ResolveAlert(context.Background(), uuid.New(), actor)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))

	history, err := h.audit.ListByEntity(context.Background(), model.AuditEntityAlert, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 2, "one entry per transition")
	assert.Equal(t, model.AuditActionResolve, history[1].Operation)
	assert.Equal(t, actor.String(), history[1].Actor)

	var before, after model.Alert
	require.NoError(t, json.Unmarshal(history[1].Before, &before))
	require.NoError(t, json.Unmarshal(history[1].After, &after))
	assert.Equal(t, model.AlertStatusOpen, before.Status)
	assert.Equal(t, model.AlertStatusResolved, after.Status)

	events := h.outbox.Events()
	require.Len(t, events, 2)
	assert.Equal(t, model.EventAlertResolved, events[1].EventType)
}

func TestConcurrentResolveExactlyOneSucceeds(t *testing.T) {
	h := newHarness(t, highStreakRules, ScannerConfig{})
	p := h.addPatient()
	doctor := uuid.New()
	h.store.SetDoctors(p, doctor)
	req := manualRequest(p)
	req.Severity = model.SeverityHigh
	a, err := h.service.CreateManualAlert(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, a.Recipients, 2)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Patient and doctor race through different recipient records.
			_, err := h.service.ResolveAlert(context.Background(), a.Recipients[i%2].ID, uuid.New())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperrors.IsCode(err, apperrors.ErrConflict):
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, 2, h.audit.Len())
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	h := newHarness(t, highStreakRules, ScannerConfig{})
	p := h.addPatient()
	h.audit.FailWith(errors.New("audit store unavailable"))

	a, err := h.service.CreateManualAlert(context.Background(), manualRequest(p))
	require.NoError(t, err)
	_, err = h.service.ResolveAlert(context.Background(), a.Recipients[0].ID, uuid.New())
	require.NoError(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.AuditFailures))
	got, err := h.service.GetAlert(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusResolved, got.Status)
}

func TestListAlertsByRecipient(t *testing.T) {
	h := newHarness(t, highStreakRules, ScannerConfig{})
	p := h.addPatient()
	doctor := uuid.New()
	h.store.SetDoctors(p, doctor)

	low := manualRequest(p)
	low.Severity = model.SeverityLow
	lowAlert, err := h.service.CreateManualAlert(context.Background(), low)
	require.NoError(t, err)

	high := manualRequest(p)
	high.AlertType = "glycemia_high"
	high.Severity = model.SeverityHigh
	_, err = h.service.CreateManualAlert(context.Background(), high)
	require.NoError(t, err)

	patientOpen, err := h.service.ListOpenAlerts(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, patientOpen, 2)

	doctorOpen, err := h.service.ListOpenAlerts(context.Background(), doctor)
	require.NoError(t, err)
	require.Len(t, doctorOpen, 1)
	assert.Equal(t, "glycemia_high", doctorOpen[0].AlertType)

	_, err = h.service.ResolveAlert(context.Background(), lowAlert.Recipients[0].ID, p)
	require.NoError(t, err)

	patientOpen, err = h.service.ListOpenAlerts(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, patientOpen, 1)

	all, err := h.service.ListAllAlerts(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTypeLookupCaches(t *testing.T) {
	h := newHarness(t, highStreakRules, ScannerConfig{})
	lookup := NewTypeLookup(h.types, 0)

	for i := 0; i < 3; i++ {
		at, err := lookup.Get(context.Background(), "glycemia_high")
		require.NoError(t, err)
		assert.Equal(t, model.CategoryGlycemicThreshold, at.Category)
	}
	assert.Equal(t, int64(1), h.types.Calls())

	_, err := lookup.Get(context.Background(), "nope")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}
