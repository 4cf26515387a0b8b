package model

// Patient is the person record. AdmitDate and DischargeDate mirror the most
// recent admission episode; the admissions table is authoritative.
type Patient struct {
	ID            int64  `db:"id" json:"id"`
	Name          string `db:"name" json:"name"`
	DOB           Date   `db:"dob" json:"dob"`
	Gender        string `db:"gender" json:"gender"`
	AdmitDate     Date   `db:"admit_date" json:"admit_date"`
	DischargeDate *Date  `db:"discharge_date" json:"discharge_date"`
}

// Admission is one admitted-to-discharged episode.
type Admission struct {
	ID            int64   `db:"id" json:"id"`
	PatientID     int64   `db:"patient_id" json:"-"`
	AdmissionDate Date    `db:"admission_date" json:"admission_date"`
	DischargeDate *Date   `db:"discharge_date" json:"discharge_date"`
	Diagnosis     *string `db:"diagnosis" json:"diagnosis"`
}

// Open reports whether the episode has not been discharged yet.
func (a *Admission) Open() bool {
	return a.DischargeDate == nil
}

// CurrentAdmission is one row of the current admissions listing.
type CurrentAdmission struct {
	PatientID   int64  `db:"patient_id" json:"patient_id"`
	PatientName string `db:"patient_name" json:"patient_name"`
	DOB         Date   `db:"dob" json:"dob"`
	Gender      string `db:"gender" json:"gender"`
	AdmitDate   Date   `db:"admit_date" json:"admit_date"`
}

// PatientRecord is a patient with its admission history, most recent first.
type PatientRecord struct {
	Patient
	CurrentlyAdmitted bool         `json:"currently_admitted"`
	Admissions        []*Admission `json:"admissions"`
}

// NewPatient holds the fields needed to admit a new patient.
type NewPatient struct {
	Name      string
	DOB       Date
	Gender    string
	AdmitDate Date
}

// Discharge closes the open episode of a patient.
type Discharge struct {
	PatientID     int64
	DischargeDate Date
	Diagnosis     string
}
