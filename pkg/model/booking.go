package model

// BookingRequest claims a slot for a patient. Patients may omit PatientID,
// which then defaults to the caller.
type BookingRequest struct {
	PatientID string `json:"patient_id" validate:"required,max=64"`
}

type CancellationRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}
