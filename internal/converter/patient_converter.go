package converter

import (
	"patient-registration/internal/delivery/dto"
	"patient-registration/internal/domain/entity"
	"patient-registration/internal/rules"
)

// PatientToResponse converts a Patient entity to PatientResponse DTO.
// photoURL maps the stored document path to its public URL.
func PatientToResponse(patient *entity.Patient, photoURL func(string) string) *dto.PatientResponse {
	if patient == nil {
		return nil
	}

	return &dto.PatientResponse{
		ID:               patient.ID,
		FullName:         patient.FullName,
		Email:            patient.Email,
		PhoneCountryCode: patient.PhoneCountryCode,
		PhoneNumber:      patient.PhoneNumber,
		DocumentPhotoURL: photoURL(patient.DocumentPhotoPath),
		CreatedAt:        patient.CreatedAt,
		UpdatedAt:        patient.UpdatedAt,
	}
}

// PatientsToResponse converts a slice of Patient entities. The result is never
// nil so an empty collection serialises as [].
func PatientsToResponse(patients []entity.Patient, photoURL func(string) string) []dto.PatientResponse {
	responses := make([]dto.PatientResponse, 0, len(patients))
	for i := range patients {
		responses = append(responses, *PatientToResponse(&patients[i], photoURL))
	}
	return responses
}

// CreateRequestToCandidate maps a create request onto the rule engine input.
func CreateRequestToCandidate(req *dto.CreatePatientRequest) rules.Candidate {
	candidate := rules.Candidate{
		FullName:         req.FullName,
		Email:            req.Email,
		PhoneCountryCode: req.PhoneCountryCode,
		PhoneNumber:      req.PhoneNumber,
	}
	if req.DocumentPhoto != nil {
		candidate.Photo = &rules.Photo{
			Filename:    req.DocumentPhoto.Filename,
			Size:        req.DocumentPhoto.Size,
			ContentType: req.DocumentPhoto.ContentType,
		}
	}
	return candidate
}

// CreateRequestToPatient builds the entity persisted for an accepted request.
func CreateRequestToPatient(req *dto.CreatePatientRequest, documentPhotoPath string) *entity.Patient {
	return &entity.Patient{
		FullName:          req.FullName,
		Email:             req.Email,
		PhoneCountryCode:  req.PhoneCountryCode,
		PhoneNumber:       req.PhoneNumber,
		DocumentPhotoPath: documentPhotoPath,
	}
}
