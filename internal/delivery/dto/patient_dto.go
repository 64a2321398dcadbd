package dto

import (
	"io"
	"time"
)

// CreatePatientRequest carries a multipart registration submission.
type CreatePatientRequest struct {
	FullName         string
	Email            string
	PhoneCountryCode string
	PhoneNumber      string
	DocumentPhoto    *DocumentPhoto
}

// DocumentPhoto is the uploaded file of a create request. ContentType is
// sniffed from the content, the client supplied header is ignored.
type DocumentPhoto struct {
	Filename    string
	Size        int64
	ContentType string
	Content     io.Reader
}

// PatientResponse represents a patient in responses
type PatientResponse struct {
	ID               int64     `json:"id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	PhoneCountryCode string    `json:"phone_country_code"`
	PhoneNumber      string    `json:"phone_number"`
	DocumentPhotoURL string    `json:"document_photo_url"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
