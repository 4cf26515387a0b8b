package model

// Request bodies. Dates stay strings so malformed values surface as format
// errors from the lifecycle service rather than as JSON decode errors.

type AdmitPatientRequest struct {
	PatientName string `json:"patient_name" validate:"required"`
	DOB         string `json:"dob" validate:"required"`
	Gender      string `json:"gender" validate:"required"`
	AdmitDate   string `json:"admit_date" validate:"required"`
}

type AdmitPatientResponse struct {
	PatientID int64  `json:"patient_id"`
	Message   string `json:"message"`
}

type AddTreatmentRequest struct {
	PatientID     int64  `json:"patient_id" validate:"required,gt=0"`
	TreatmentName string `json:"treatment_name" validate:"required"`
	TreatmentDate string `json:"treatment_date" validate:"required"`
}

type DischargePatientRequest struct {
	PatientID     int64  `json:"patient_id" validate:"required,gt=0"`
	DischargeDate string `json:"discharge_date" validate:"required"`
	Diagnosis     string `json:"diagnosis" validate:"required"`
}

type ReadmitPatientRequest struct {
	AdmissionDate string `json:"admission_date" validate:"required"`
}

type ReadmitPatientResponse struct {
	AdmissionID int64  `json:"admission_id"`
	Message     string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
