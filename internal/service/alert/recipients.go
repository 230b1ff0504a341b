package alert

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
	"github.com/jwalitptl/alert-engine/pkg/logger"
)

const (
	WarningNoDoctor       = "no assigned doctor"
	WarningDoctorLookup   = "doctor lookup failed"
	defaultDoctorSeverity = model.SeverityHigh
)

// Resolution is the recipient set of a new alert.
type Resolution struct {
	Recipients []model.NotificationRecipient
	// Warning is set when a doctor was required but none could be added.
	Warning string
}

// RecipientResolver decides who sees an alert. Severities below the
// threshold go to the patient only; at or above, to the patient and every
// assigned doctor.
type RecipientResolver struct {
	provider  repository.ClinicalDataProvider
	threshold model.Severity
	log       *logger.Logger
}

func NewRecipientResolver(provider repository.ClinicalDataProvider, threshold model.Severity, log *logger.Logger) *RecipientResolver {
	if !threshold.Valid() {
		threshold = defaultDoctorSeverity
	}
	return &RecipientResolver{provider: provider, threshold: threshold, log: log.WithComponent("recipients")}
}

func (r *RecipientResolver) Threshold() model.Severity {
	return r.threshold
}

// Resolve never fails: a missing or unreachable doctor degrades to the
// patient alone with a warning.
func (r *RecipientResolver) Resolve(ctx context.Context, patientID uuid.UUID, severity model.Severity) Resolution {
	res := Resolution{
		Recipients: []model.NotificationRecipient{{UserID: patientID, Role: model.RolePatient}},
	}
	if !severity.AtLeast(r.threshold) {
		return res
	}

	doctors, err := r.provider.GetAssignedDoctors(ctx, patientID)
	if err != nil {
		r.log.Error(err, "doctor lookup failed, alert goes to patient only", "patient_id", patientID.String())
		res.Warning = WarningDoctorLookup
		return res
	}

	seen := make(map[uuid.UUID]bool, len(doctors))
	unique := make([]uuid.UUID, 0, len(doctors))
	for _, d := range doctors {
		if d == uuid.Nil || d == patientID || seen[d] {
			continue
		}
		seen[d] = true
		unique = append(unique, d)
	}
	if len(unique) == 0 {
		res.Warning = WarningNoDoctor
		return res
	}

	sort.Slice(unique, func(i, j int) bool { return unique[i].String() < unique[j].String() })
	for _, d := range unique {
		res.Recipients = append(res.Recipients, model.NotificationRecipient{UserID: d, Role: model.RoleDoctor})
	}
	return res
}
