// Package repositorytest provides an in-memory PatientRepository for tests.
package repositorytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"patient-registration/internal/domain/entity"
	domainRepo "patient-registration/internal/domain/repository"
)

// PatientRepository keeps patients in memory. Each Create advances a fake
// clock by one minute so list ordering is deterministic. Setting CreateErr or
// FindErr makes the corresponding calls fail.
type PatientRepository struct {
	mu       sync.Mutex
	nextID   int64
	clock    time.Time
	patients map[int64]entity.Patient

	CreateErr error
	FindErr   error
}

var _ domainRepo.PatientRepository = (*PatientRepository)(nil)

func NewPatientRepository() *PatientRepository {
	return &PatientRepository{
		clock:    time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		patients: make(map[int64]entity.Patient),
	}
}

func (r *PatientRepository) Create(_ context.Context, patient *entity.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return r.CreateErr
	}
	r.nextID++
	r.clock = r.clock.Add(time.Minute)
	patient.ID = r.nextID
	patient.CreatedAt = r.clock
	patient.UpdatedAt = r.clock
	r.patients[patient.ID] = *patient
	return nil
}

func (r *PatientRepository) FindAll(_ context.Context) ([]entity.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FindErr != nil {
		return nil, r.FindErr
	}
	patients := make([]entity.Patient, 0, len(r.patients))
	for _, p := range r.patients {
		patients = append(patients, p)
	}
	sort.Slice(patients, func(i, j int) bool {
		if patients[i].CreatedAt.Equal(patients[j].CreatedAt) {
			return patients[i].ID > patients[j].ID
		}
		return patients[i].CreatedAt.After(patients[j].CreatedAt)
	})
	return patients, nil
}

func (r *PatientRepository) FindByID(_ context.Context, id int64) (*entity.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FindErr != nil {
		return nil, r.FindErr
	}
	p, ok := r.patients[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *PatientRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FindErr != nil {
		return false, r.FindErr
	}
	for _, p := range r.patients {
		if p.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *PatientRepository) Delete(_ context.Context, id int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patients[id]; !ok {
		return 0, nil
	}
	delete(r.patients, id)
	return 1, nil
}

// Count returns the number of stored patients.
func (r *PatientRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.patients)
}
