package model

import (
	"github.com/google/uuid"
)

type PatientStatus string

const (
	PatientStatusActive   PatientStatus = "active"
	PatientStatusInactive PatientStatus = "inactive"
)

// Patient is the minimal view of a monitored patient the engine needs.
type Patient struct {
	ID         uuid.UUID     `db:"id" json:"id"`
	Status     PatientStatus `db:"status" json:"status"`
	Conditions []string      `db:"-" json:"conditions,omitempty"`
}

// HasCondition reports whether the patient carries any of the given condition codes.
func (p Patient) HasCondition(codes ...string) bool {
	for _, c := range p.Conditions {
		for _, want := range codes {
			if c == want {
				return true
			}
		}
	}
	return false
}
