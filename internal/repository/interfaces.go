package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/ward-api/internal/model"
)

// ErrAdmissionOpen is returned when an episode would be opened for a patient
// that already has one.
var ErrAdmissionOpen = errors.New("patient already has an open admission")

// All repository interfaces in one file
type (
	// PatientRepository is the persistence gateway for the patient lifecycle.
	// Each method runs in its own transaction. A false "found" result means the
	// referenced patient or open episode does not exist; nothing was written.
	PatientRepository interface {
		Admit(ctx context.Context, p *model.NewPatient) (patientID int64, admission *model.Admission, err error)
		ListCurrentAdmissions(ctx context.Context) ([]*model.CurrentAdmission, error)
		AddTreatment(ctx context.Context, t *model.Treatment) (found bool, err error)
		Discharge(ctx context.Context, d *model.Discharge) (admission *model.Admission, found bool, err error)
		Readmit(ctx context.Context, patientID int64, date model.Date) (admission *model.Admission, found bool, err error)
		GetPatientRecord(ctx context.Context, patientID int64) (record *model.PatientRecord, found bool, err error)
		ListTreatments(ctx context.Context, patientID int64) (treatments []*model.Treatment, found bool, err error)
		Ping(ctx context.Context) error
	}

	// BatchResult summarises one outbox processing pass.
	BatchResult struct {
		Processed int
		Retried   int
		Failed    int
	}

	// OutboxRepository stores lifecycle events until the relay publishes them.
	OutboxRepository interface {
		ProcessPending(ctx context.Context, limit, maxAttempts int, fn func(context.Context, *model.OutboxEvent) error) (BatchResult, error)
		CountPending(ctx context.Context) (int, error)
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
