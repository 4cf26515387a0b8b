package patient

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
	"github.com/jwalitptl/ward-api/pkg/errors"
	"github.com/jwalitptl/ward-api/pkg/logger"
	"github.com/jwalitptl/ward-api/pkg/metrics"
	"github.com/jwalitptl/ward-api/pkg/validator"
)

const (
	MsgAdmitted        = "Patient admitted successfully"
	MsgTreatmentAdded  = "Treatment added successfully"
	MsgDischarged      = "Patient discharged successfully"
	MsgReadmitted      = "Patient readmitted successfully"
	MsgRecordNotFound  = "Patient record not found"
	MsgNotAdmitted     = "Patient not currently admitted"
	MsgPatientNotFound = "Patient not found"
	MsgAlreadyAdmitted = "Patient already admitted"
)

// PatientService is the patient lifecycle: admit, treat, discharge, readmit.
// Every error it returns is an *errors.AppError.
type PatientService interface {
	Admit(ctx context.Context, req *model.AdmitPatientRequest) (int64, error)
	ListCurrentAdmissions(ctx context.Context) ([]*model.CurrentAdmission, error)
	AddTreatment(ctx context.Context, req *model.AddTreatmentRequest) (*model.Treatment, error)
	Discharge(ctx context.Context, req *model.DischargePatientRequest) (*model.Admission, error)
	GetPatient(ctx context.Context, patientID int64) (*model.PatientRecord, error)
	Readmit(ctx context.Context, patientID int64, req *model.ReadmitPatientRequest) (*model.Admission, error)
	ListTreatments(ctx context.Context, patientID int64) ([]*model.Treatment, error)
}

type Service struct {
	repo      repository.PatientRepository
	validator *validator.Validator
	log       *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(repo repository.PatientRepository, log *logger.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New("ward")
	}
	return &Service{
		repo:      repo,
		validator: validator.New(),
		log:       log,
		metrics:   m,
	}
}

func (s *Service) Admit(ctx context.Context, req *model.AdmitPatientRequest) (id int64, err error) {
	defer s.observe("admit", time.Now(), &err)

	req.PatientName = strings.TrimSpace(req.PatientName)
	req.Gender = strings.TrimSpace(req.Gender)
	if err := s.validator.Validate(req); err != nil {
		return 0, err
	}

	dob, err := parseDate("dob", req.DOB)
	if err != nil {
		return 0, err
	}
	admitDate, err := parseDate("admit_date", req.AdmitDate)
	if err != nil {
		return 0, err
	}

	patientID, _, err := s.repo.Admit(ctx, &model.NewPatient{
		Name:      req.PatientName,
		DOB:       dob,
		Gender:    req.Gender,
		AdmitDate: admitDate,
	})
	if err != nil {
		return 0, errors.Storage(err)
	}

	s.log.WithContext(ctx).Info("Patient admitted",
		"patient_id", patientID,
		"name", req.PatientName,
		"dob", dob.String(),
		"gender", req.Gender,
		"admit_date", admitDate.String(),
	)
	return patientID, nil
}

func (s *Service) ListCurrentAdmissions(ctx context.Context) (list []*model.CurrentAdmission, err error) {
	defer s.observe("list_admissions", time.Now(), &err)

	list, err = s.repo.ListCurrentAdmissions(ctx)
	if err != nil {
		return nil, errors.Storage(err)
	}

	s.log.WithContext(ctx).Info("Retrieved admissions data", "patients", len(list))
	return list, nil
}

func (s *Service) AddTreatment(ctx context.Context, req *model.AddTreatmentRequest) (t *model.Treatment, err error) {
	defer s.observe("add_treatment", time.Now(), &err)

	req.TreatmentName = strings.TrimSpace(req.TreatmentName)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	date, err := parseDate("treatment_date", req.TreatmentDate)
	if err != nil {
		return nil, err
	}

	treatment := &model.Treatment{
		PatientID:     req.PatientID,
		TreatmentName: req.TreatmentName,
		TreatmentDate: date,
	}
	found, err := s.repo.AddTreatment(ctx, treatment)
	if err != nil {
		return nil, errors.Storage(err)
	}
	if !found {
		return nil, errors.NotFound(MsgRecordNotFound)
	}

	s.log.WithContext(ctx).Info("Treatment added",
		"patient_id", req.PatientID,
		"treatment_id", treatment.ID,
		"treatment_name", treatment.TreatmentName,
	)
	return treatment, nil
}

func (s *Service) Discharge(ctx context.Context, req *model.DischargePatientRequest) (a *model.Admission, err error) {
	defer s.observe("discharge", time.Now(), &err)

	req.Diagnosis = strings.TrimSpace(req.Diagnosis)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	date, err := parseDate("discharge_date", req.DischargeDate)
	if err != nil {
		return nil, err
	}

	admission, found, err := s.repo.Discharge(ctx, &model.Discharge{
		PatientID:     req.PatientID,
		DischargeDate: date,
		Diagnosis:     req.Diagnosis,
	})
	if err != nil {
		return nil, errors.Storage(err)
	}
	if !found {
		return nil, errors.NotFound(MsgNotAdmitted)
	}

	s.log.WithContext(ctx).Info("Patient discharged",
		"patient_id", req.PatientID,
		"admission_id", admission.ID,
		"discharge_date", date.String(),
	)
	return admission, nil
}

func (s *Service) GetPatient(ctx context.Context, patientID int64) (rec *model.PatientRecord, err error) {
	defer s.observe("get_patient", time.Now(), &err)

	if err := validID(patientID); err != nil {
		return nil, err
	}

	record, found, err := s.repo.GetPatientRecord(ctx, patientID)
	if err != nil {
		return nil, errors.Storage(err)
	}
	if !found {
		return nil, errors.NotFound(MsgPatientNotFound)
	}

	s.log.WithContext(ctx).Info("Patient retrieved",
		"patient_id", patientID,
		"admissions", len(record.Admissions),
	)
	return record, nil
}

func (s *Service) Readmit(ctx context.Context, patientID int64, req *model.ReadmitPatientRequest) (a *model.Admission, err error) {
	defer s.observe("readmit", time.Now(), &err)

	if err := validID(patientID); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	date, err := parseDate("admission_date", req.AdmissionDate)
	if err != nil {
		return nil, err
	}

	admission, found, err := s.repo.Readmit(ctx, patientID, date)
	if stderrors.Is(err, repository.ErrAdmissionOpen) {
		return nil, errors.Conflict(MsgAlreadyAdmitted)
	}
	if err != nil {
		return nil, errors.Storage(err)
	}
	if !found {
		return nil, errors.NotFound(MsgPatientNotFound)
	}

	s.log.WithContext(ctx).Info("Patient readmitted",
		"patient_id", patientID,
		"admission_id", admission.ID,
		"admission_date", date.String(),
	)
	return admission, nil
}

func (s *Service) ListTreatments(ctx context.Context, patientID int64) (list []*model.Treatment, err error) {
	defer s.observe("list_treatments", time.Now(), &err)

	if err := validID(patientID); err != nil {
		return nil, err
	}

	treatments, found, err := s.repo.ListTreatments(ctx, patientID)
	if err != nil {
		return nil, errors.Storage(err)
	}
	if !found {
		return nil, errors.NotFound(MsgPatientNotFound)
	}
	return treatments, nil
}

// observe records the outcome of one operation; errp is read after the
// operation returns.
func (s *Service) observe(op string, start time.Time, errp *error) {
	outcome := "success"
	if *errp != nil {
		outcome = string(errors.KindOf(*errp))
	}
	s.metrics.LifecycleOperations.WithLabelValues(op, outcome).Inc()
	s.metrics.DatabaseLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())

	status := "ok"
	if errors.Is(*errp, errors.KindStorage) {
		status = "error"
	}
	s.metrics.DatabaseOperations.WithLabelValues(op, status).Inc()
}

func parseDate(field, value string) (model.Date, error) {
	d, err := model.ParseDate(value)
	if err != nil {
		return model.Date{}, errors.Format(field, err)
	}
	return d, nil
}

func validID(id int64) error {
	if id <= 0 {
		return errors.InvalidField("patient_id", "must be a positive integer", nil)
	}
	return nil
}

var _ PatientService = (*Service)(nil)
