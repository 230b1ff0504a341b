package model

import (
	"time"

	"github.com/google/uuid"
)

// Glycemia units accepted by the threshold rules.
const (
	UnitMgDL   = "mg/dL"
	UnitMmolL  = "mmol/L"
	MmolToMgDL = 18.0
)

// Measurement is one glycemic reading. A nil Value is a reading that was
// due but not recorded.
type Measurement struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Value     *float64  `db:"value" json:"value,omitempty"`
	Unit      string    `db:"unit" json:"unit"`
	TakenAt   time.Time `db:"taken_at" json:"taken_at"`
}

// ScheduledDose is one expected administration from a therapy schedule.
type ScheduledDose struct {
	ScheduleID uuid.UUID `db:"schedule_id" json:"schedule_id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	Medication string    `db:"medication" json:"medication"`
	DueAt      time.Time `db:"due_at" json:"due_at"`
}

type Intake struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	ScheduleID uuid.UUID `db:"schedule_id" json:"schedule_id"`
	TakenAt    time.Time `db:"taken_at" json:"taken_at"`
}

// Symptom is a patient-reported symptom with intensity on a 0-10 scale.
type Symptom struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	Code       string    `db:"code" json:"code"`
	Intensity  int       `db:"intensity" json:"intensity"`
	ReportedAt time.Time `db:"reported_at" json:"reported_at"`
}

// DataKind names a slice of the clinical record a rule can ask for.
type DataKind string

const (
	DataMeasurements DataKind = "measurements"
	DataIntakes      DataKind = "intakes"
	DataSchedules    DataKind = "schedules"
	DataSymptoms     DataKind = "symptoms"
)
