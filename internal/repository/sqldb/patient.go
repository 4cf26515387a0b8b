package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
)

const admissionColumns = `id, patient_id, admission_date, discharge_date, diagnosis`

type patientRepository struct {
	BaseRepository
	// write lifecycle events to the outbox in the same transaction
	events bool
}

func NewPatientRepository(base BaseRepository, events bool) repository.PatientRepository {
	return &patientRepository{BaseRepository: base, events: events}
}

func (r *patientRepository) Admit(ctx context.Context, p *model.NewPatient) (int64, *model.Admission, error) {
	var (
		patientID int64
		admission *model.Admission
	)

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`
			INSERT INTO patients (name, dob, gender, admit_date, discharge_date)
			VALUES (?, ?, ?, ?, NULL)
			RETURNING id
		`)
		if err := tx.GetContext(ctx, &patientID, query, p.Name, p.DOB, p.Gender, p.AdmitDate); err != nil {
			return fmt.Errorf("failed to insert patient: %w", err)
		}

		a, err := r.openAdmission(ctx, tx, patientID, p.AdmitDate)
		if err != nil {
			return err
		}
		admission = a

		return r.emit(ctx, tx, model.EventPatientAdmitted, model.PatientEvent{
			PatientID:   patientID,
			AdmissionID: a.ID,
			Date:        a.AdmissionDate,
		})
	})
	if err != nil {
		return 0, nil, err
	}
	return patientID, admission, nil
}

func (r *patientRepository) ListCurrentAdmissions(ctx context.Context) ([]*model.CurrentAdmission, error) {
	query := `
		SELECT p.id AS patient_id, p.name AS patient_name, p.dob, p.gender,
			a.admission_date AS admit_date
		FROM patients p
		JOIN admissions a ON a.patient_id = p.id
		WHERE a.discharge_date IS NULL
		ORDER BY p.id
	`
	admissions := []*model.CurrentAdmission{}
	if err := r.db.SelectContext(ctx, &admissions, query); err != nil {
		return nil, fmt.Errorf("failed to list current admissions: %w", err)
	}
	return admissions, nil
}

func (r *patientRepository) AddTreatment(ctx context.Context, t *model.Treatment) (bool, error) {
	found := false

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, ok, err := r.lockOpenAdmission(ctx, tx, t.PatientID); err != nil || !ok {
			return err
		}

		query := tx.Rebind(`
			INSERT INTO treatments (patient_id, treatment_name, treatment_date)
			VALUES (?, ?, ?)
			RETURNING id
		`)
		if err := tx.GetContext(ctx, &t.ID, query, t.PatientID, t.TreatmentName, t.TreatmentDate); err != nil {
			return fmt.Errorf("failed to insert treatment: %w", err)
		}
		found = true

		return r.emit(ctx, tx, model.EventTreatmentRecorded, model.TreatmentEvent{
			PatientID:     t.PatientID,
			TreatmentID:   t.ID,
			TreatmentName: t.TreatmentName,
			TreatmentDate: t.TreatmentDate,
		})
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (r *patientRepository) Discharge(ctx context.Context, d *model.Discharge) (*model.Admission, bool, error) {
	var admission *model.Admission

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		a, ok, err := r.lockOpenAdmission(ctx, tx, d.PatientID)
		if err != nil || !ok {
			return err
		}

		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE admissions SET discharge_date = ?, diagnosis = ?
			WHERE id = ? AND discharge_date IS NULL
		`), d.DischargeDate, d.Diagnosis, a.ID)
		if err != nil {
			return fmt.Errorf("failed to close admission: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to close admission: %w", err)
		} else if n == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE patients SET discharge_date = ? WHERE id = ?`),
			d.DischargeDate, d.PatientID); err != nil {
			return fmt.Errorf("failed to update patient discharge date: %w", err)
		}

		dischargeDate := d.DischargeDate
		diagnosis := d.Diagnosis
		a.DischargeDate = &dischargeDate
		a.Diagnosis = &diagnosis
		admission = a

		return r.emit(ctx, tx, model.EventPatientDischarged, model.PatientEvent{
			PatientID:   d.PatientID,
			AdmissionID: a.ID,
			Date:        dischargeDate,
			Diagnosis:   &diagnosis,
		})
	})
	if err != nil {
		return nil, false, err
	}
	return admission, admission != nil, nil
}

func (r *patientRepository) Readmit(ctx context.Context, patientID int64, date model.Date) (*model.Admission, bool, error) {
	var admission *model.Admission

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var id int64
		err := tx.GetContext(ctx, &id, tx.Rebind(`SELECT id FROM patients WHERE id = ?`+r.dialect.forUpdate), patientID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock patient: %w", err)
		}

		if _, open, err := r.lockOpenAdmission(ctx, tx, patientID); err != nil {
			return err
		} else if open {
			return repository.ErrAdmissionOpen
		}

		a, err := r.openAdmission(ctx, tx, patientID, date)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE patients SET admit_date = ?, discharge_date = NULL WHERE id = ?`),
			date, patientID); err != nil {
			return fmt.Errorf("failed to update patient admit date: %w", err)
		}
		admission = a

		return r.emit(ctx, tx, model.EventPatientReadmitted, model.PatientEvent{
			PatientID:   patientID,
			AdmissionID: a.ID,
			Date:        date,
		})
	})
	if err != nil {
		return nil, false, err
	}
	return admission, admission != nil, nil
}

func (r *patientRepository) GetPatientRecord(ctx context.Context, patientID int64) (*model.PatientRecord, bool, error) {
	var record *model.PatientRecord

	err := r.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		rec := &model.PatientRecord{Admissions: []*model.Admission{}}
		err := tx.GetContext(ctx, &rec.Patient, tx.Rebind(`
			SELECT id, name, dob, gender, admit_date, discharge_date
			FROM patients WHERE id = ?
		`), patientID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get patient: %w", err)
		}

		if err := tx.SelectContext(ctx, &rec.Admissions, tx.Rebind(`
			SELECT `+admissionColumns+`
			FROM admissions WHERE patient_id = ?
			ORDER BY admission_date DESC, id DESC
		`), patientID); err != nil {
			return fmt.Errorf("failed to list admissions: %w", err)
		}

		for _, a := range rec.Admissions {
			if a.Open() {
				rec.CurrentlyAdmitted = true
				break
			}
		}
		record = rec
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return record, record != nil, nil
}

func (r *patientRepository) ListTreatments(ctx context.Context, patientID int64) ([]*model.Treatment, bool, error) {
	var (
		treatments []*model.Treatment
		found      bool
	)

	err := r.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM patients WHERE id = ?`), patientID); err != nil {
			return fmt.Errorf("failed to check patient: %w", err)
		}
		if n == 0 {
			return nil
		}
		found = true

		treatments = []*model.Treatment{}
		if err := tx.SelectContext(ctx, &treatments, tx.Rebind(`
			SELECT id, patient_id, treatment_name, treatment_date
			FROM treatments WHERE patient_id = ?
			ORDER BY treatment_date, id
		`), patientID); err != nil {
			return fmt.Errorf("failed to list treatments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return treatments, found, nil
}

// lockOpenAdmission returns the patient's open episode, locking it until the
// transaction ends.
func (r *patientRepository) lockOpenAdmission(ctx context.Context, tx *sqlx.Tx, patientID int64) (*model.Admission, bool, error) {
	query := tx.Rebind(`
		SELECT ` + admissionColumns + `
		FROM admissions
		WHERE patient_id = ? AND discharge_date IS NULL
		ORDER BY admission_date DESC, id DESC
		LIMIT 1` + r.dialect.forUpdate)

	var a model.Admission
	err := tx.GetContext(ctx, &a, query, patientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get open admission: %w", err)
	}
	return &a, true, nil
}

func (r *patientRepository) openAdmission(ctx context.Context, tx *sqlx.Tx, patientID int64, date model.Date) (*model.Admission, error) {
	a := &model.Admission{PatientID: patientID, AdmissionDate: date}
	query := tx.Rebind(`
		INSERT INTO admissions (patient_id, admission_date)
		VALUES (?, ?)
		RETURNING id
	`)
	if err := tx.GetContext(ctx, &a.ID, query, patientID, date); err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrAdmissionOpen
		}
		return nil, fmt.Errorf("failed to insert admission: %w", err)
	}
	return a, nil
}

func (r *patientRepository) emit(ctx context.Context, tx *sqlx.Tx, eventType string, payload interface{}) error {
	if !r.events {
		return nil
	}
	event, err := model.NewOutboxEvent(eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", eventType, err)
	}
	return insertOutboxEvent(ctx, tx, event)
}
