package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Lifecycle event types written to the outbox.
const (
	EventPatientAdmitted   = "patient.admitted"
	EventPatientReadmitted = "patient.readmitted"
	EventTreatmentRecorded = "treatment.recorded"
	EventPatientDischarged = "patient.discharged"
)

type OutboxEvent struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	EventType   string          `db:"event_type" json:"event_type"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Status      OutboxStatus    `db:"status" json:"status"`
	Attempts    int             `db:"attempts" json:"attempts"`
	LastError   *string         `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// NewOutboxEvent marshals payload into a pending event.
func NewOutboxEvent(eventType string, payload interface{}) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   data,
		Status:    OutboxStatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// PatientEvent is the payload of admission and discharge events.
type PatientEvent struct {
	PatientID   int64   `json:"patient_id"`
	AdmissionID int64   `json:"admission_id"`
	Date        Date    `json:"date"`
	Diagnosis   *string `json:"diagnosis,omitempty"`
}

// TreatmentEvent is the payload of treatment.recorded.
type TreatmentEvent struct {
	PatientID     int64  `json:"patient_id"`
	TreatmentID   int64  `json:"treatment_id"`
	TreatmentName string `json:"treatment_name"`
	TreatmentDate Date   `json:"treatment_date"`
}
