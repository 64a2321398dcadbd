package entity

// Notification types
const (
	NotificationPatientRegistered = "patient.registered"
)

// NotificationJob is the queued payload for an outbound email.
type NotificationJob struct {
	Type      string `json:"type"`
	PatientID int64  `json:"patient_id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Attempts  int    `json:"attempts"`
}
