package model

// Treatment is an immutable record of care given during an admission.
type Treatment struct {
	ID            int64  `db:"id" json:"id"`
	PatientID     int64  `db:"patient_id" json:"patient_id"`
	TreatmentName string `db:"treatment_name" json:"treatment_name"`
	TreatmentDate Date   `db:"treatment_date" json:"treatment_date"`
}
