package directory

import (
	"context"

	"github.com/google/uuid"
)

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Doctor, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ServiceTypeRepository interface {
	Create(ctx context.Context, s *ServiceType) error
	GetByID(ctx context.Context, id uuid.UUID) (*ServiceType, error)
	Update(ctx context.Context, s *ServiceType) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*ServiceType, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
