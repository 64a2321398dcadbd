package repository

import (
	"context"

	"patient-registration/internal/domain/entity"
)

type PatientRepository interface {
	Create(ctx context.Context, patient *entity.Patient) error
	FindAll(ctx context.Context) ([]entity.Patient, error)
	FindByID(ctx context.Context, id int64) (*entity.Patient, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// Delete returns the number of rows removed.
	Delete(ctx context.Context, id int64) (int64, error)
}
