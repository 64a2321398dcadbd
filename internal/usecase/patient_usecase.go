package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"patient-registration/internal/converter"
	"patient-registration/internal/delivery/dto"
	"patient-registration/internal/domain/entity"
	"patient-registration/internal/domain/repository"
	"patient-registration/internal/infrastructure/storage"
	"patient-registration/internal/metrics"
	"patient-registration/internal/rules"
	"patient-registration/internal/service"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

// documentNamespace is the storage directory for identity document photos.
const documentNamespace = "documents"

var (
	ErrPatientNotFound    = errors.New("patient not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
)

// ValidationError reports per-field rule failures. Err is set when the
// failure was detected by the store rather than the rule engine.
type ValidationError struct {
	Fields rules.FieldErrors
	Err    error
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type PatientUsecase interface {
	Validate(ctx context.Context, req *dto.CreatePatientRequest) (rules.FieldErrors, error)
	CreatePatient(ctx context.Context, req *dto.CreatePatientRequest) (*dto.PatientResponse, error)
	GetPatient(ctx context.Context, id int64) (*dto.PatientResponse, error)
	GetAllPatients(ctx context.Context) ([]dto.PatientResponse, error)
	DeletePatient(ctx context.Context, id int64) error
}

type patientUsecase struct {
	log         *logrus.Logger
	engine      *rules.Engine
	patientRepo repository.PatientRepository
	documents   repository.DocumentStorage
	dispatcher  service.NotificationDispatcher
	metrics     *metrics.Metrics
}

func NewPatientUsecase(
	log *logrus.Logger,
	engine *rules.Engine,
	patientRepo repository.PatientRepository,
	documents repository.DocumentStorage,
	dispatcher service.NotificationDispatcher,
	m *metrics.Metrics,
) PatientUsecase {
	return &patientUsecase{
		log:         log,
		engine:      engine,
		patientRepo: patientRepo,
		documents:   documents,
		dispatcher:  dispatcher,
		metrics:     m,
	}
}

// Validate runs the rule table and, when the email is otherwise valid, the
// uniqueness lookup. The returned error is only set for store failures.
func (u *patientUsecase) Validate(ctx context.Context, req *dto.CreatePatientRequest) (rules.FieldErrors, error) {
	fieldErrors := u.engine.Check(converter.CreateRequestToCandidate(req))

	if _, failed := fieldErrors[rules.FieldEmail]; !failed {
		exists, err := u.patientRepo.ExistsByEmail(ctx, req.Email)
		if err != nil {
			u.log.Warnf("Failed to check email uniqueness: %+v", err)
			return nil, fmt.Errorf("check email uniqueness: %w", err)
		}
		if exists {
			fieldErrors[rules.FieldEmail] = rules.Message(rules.FieldEmail, rules.RuleUnique)
		}
	}

	return fieldErrors, nil
}

func (u *patientUsecase) CreatePatient(ctx context.Context, req *dto.CreatePatientRequest) (*dto.PatientResponse, error) {
	fieldErrors, err := u.Validate(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	path, err := u.documents.Save(ctx, documentNamespace, req.DocumentPhoto.Content, rules.DocumentPhoto.MimeTypes[0])
	if err != nil {
		u.log.Warnf("Failed to store document photo: %+v", err)
		switch {
		case errors.Is(err, storage.ErrFileTooLarge):
			return nil, photoError(rules.RuleSize, err)
		case errors.Is(err, storage.ErrUnsupportedType):
			return nil, photoError(rules.RuleType, err)
		}
		return nil, fmt.Errorf("store document photo: %w", err)
	}

	patient := converter.CreateRequestToPatient(req, path)
	if err := u.patientRepo.Create(ctx, patient); err != nil {
		u.log.Warnf("Failed to create patient: %+v", err)
		u.removeDocument(ctx, path)
		if isDuplicateKeyError(err, "email") {
			return nil, &ValidationError{
				Fields: rules.FieldErrors{rules.FieldEmail: rules.Message(rules.FieldEmail, rules.RuleUnique)},
				Err:    ErrEmailAlreadyExists,
			}
		}
		return nil, fmt.Errorf("insert patient: %w", err)
	}

	u.metrics.Registrations.Inc()

	job := entity.NotificationJob{
		Type:      entity.NotificationPatientRegistered,
		PatientID: patient.ID,
		Email:     patient.Email,
		FullName:  patient.FullName,
	}
	if err := u.dispatcher.Enqueue(ctx, job); err != nil {
		// Registration stands even if the welcome email is never sent
		u.log.Warnf("Failed to enqueue registration notification: %+v", err)
	}

	return converter.PatientToResponse(patient, u.documents.URL), nil
}

func (u *patientUsecase) GetPatient(ctx context.Context, id int64) (*dto.PatientResponse, error) {
	patient, err := u.patientRepo.FindByID(ctx, id)
	if err != nil {
		u.log.Warnf("Failed to find patient: %+v", err)
		return nil, err
	}
	if patient == nil {
		return nil, ErrPatientNotFound
	}

	return converter.PatientToResponse(patient, u.documents.URL), nil
}

func (u *patientUsecase) GetAllPatients(ctx context.Context) ([]dto.PatientResponse, error) {
	patients, err := u.patientRepo.FindAll(ctx)
	if err != nil {
		u.log.Warnf("Failed to find patients: %+v", err)
		return nil, err
	}

	return converter.PatientsToResponse(patients, u.documents.URL), nil
}

func (u *patientUsecase) DeletePatient(ctx context.Context, id int64) error {
	patient, err := u.patientRepo.FindByID(ctx, id)
	if err != nil {
		u.log.Warnf("Failed to find patient: %+v", err)
		return err
	}
	if patient == nil {
		return ErrPatientNotFound
	}

	affected, err := u.patientRepo.Delete(ctx, id)
	if err != nil {
		u.log.Warnf("Failed to delete patient: %+v", err)
		return err
	}
	// A concurrent delete already removed the row and owns the photo
	if affected == 0 {
		return ErrPatientNotFound
	}

	u.removeDocument(ctx, patient.DocumentPhotoPath)
	return nil
}

// removeDocument deletes a stored photo, logging instead of failing.
func (u *patientUsecase) removeDocument(ctx context.Context, path string) {
	if err := u.documents.Delete(ctx, path); err != nil {
		u.log.Warnf("Failed to remove document photo %s: %+v", path, err)
	}
}

func photoError(rule string, err error) *ValidationError {
	return &ValidationError{
		Fields: rules.FieldErrors{rules.FieldDocumentPhoto: rules.Message(rules.FieldDocumentPhoto, rule)},
		Err:    err,
	}
}

// isDuplicateKeyError checks if the error is a PostgreSQL unique violation
// on a constraint containing the specified name
func isDuplicateKeyError(err error, constraintName string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// PostgreSQL error code 23505 = unique_violation
		if pgErr.Code == "23505" && strings.Contains(strings.ToLower(pgErr.ConstraintName), strings.ToLower(constraintName)) {
			return true
		}
	}
	return false
}
