package alert

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository/memory"
	"github.com/jwalitptl/alert-engine/pkg/logger"
)

func TestRecipientResolver(t *testing.T) {
	store := memory.NewClinicalStore()
	withDoctors := uuid.New()
	d1, d2 := uuid.New(), uuid.New()
	store.SetDoctors(withDoctors, d1, d2, d1)
	noDoctor := uuid.New()

	r := NewRecipientResolver(store, model.SeverityHigh, logger.Nop())
	ctx := context.Background()

	tests := []struct {
		name        string
		patient     uuid.UUID
		severity    model.Severity
		wantDoctors int
		wantWarning string
	}{
		{"low goes to patient only", withDoctors, model.SeverityLow, 0, ""},
		{"medium goes to patient only", withDoctors, model.SeverityMedium, 0, ""},
		{"high adds doctors", withDoctors, model.SeverityHigh, 2, ""},
		{"critical adds doctors", withDoctors, model.SeverityCritical, 2, ""},
		{"high without doctor warns", noDoctor, model.SeverityHigh, 0, WarningNoDoctor},
		{"medium without doctor is fine", noDoctor, model.SeverityMedium, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(ctx, tt.patient, tt.severity)
			require.NotEmpty(t, res.Recipients)
			assert.Equal(t, model.NotificationRecipient{UserID: tt.patient, Role: model.RolePatient}, res.Recipients[0])
			assert.Len(t, res.Recipients, 1+tt.wantDoctors)
			for _, rec := range res.Recipients[1:] {
				assert.Equal(t, model.RoleDoctor, rec.Role)
			}
			assert.Equal(t, tt.wantWarning, res.Warning)
		})
	}
}

func TestRecipientResolverDoctorLookupFailure(t *testing.T) {
	store := memory.NewClinicalStore()
	patient := uuid.New()
	store.FailOn(patient, memory.OpDoctors, errors.New("directory down"))

	res := NewRecipientResolver(store, model.SeverityHigh, logger.Nop()).Resolve(context.Background(), patient, model.SeverityCritical)
	require.Len(t, res.Recipients, 1)
	assert.Equal(t, WarningDoctorLookup, res.Warning)
}

func TestRecipientResolverConfigurableThreshold(t *testing.T) {
	store := memory.NewClinicalStore()
	patient := uuid.New()
	store.SetDoctors(patient, uuid.New())

	r := NewRecipientResolver(store, model.SeverityMedium, logger.Nop())
	assert.Len(t, r.Resolve(context.Background(), patient, model.SeverityMedium).Recipients, 2)
	assert.Len(t, r.Resolve(context.Background(), patient, model.SeverityLow).Recipients, 1)

	assert.Equal(t, model.SeverityHigh, NewRecipientResolver(store, model.SeverityUnknown, logger.Nop()).Threshold())
}
