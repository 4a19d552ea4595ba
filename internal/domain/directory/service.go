package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service exposes directory CRUD plus the lookups the scheduling engine
// needs (doctor time zone, patient existence, service length).
type Service struct {
	doctors  DoctorRepository
	patients PatientRepository
	services ServiceTypeRepository
}

func NewService(doctors DoctorRepository, patients PatientRepository, services ServiceTypeRepository) *Service {
	return &Service{doctors: doctors, patients: patients, services: services}
}

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return s.doctors.Update(ctx, d)
}

func (s *Service) ListDoctors(ctx context.Context, activeOnly bool, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, activeOnly, limit, offset)
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return s.doctors.Delete(ctx, id)
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) CreateServiceType(ctx context.Context, st *ServiceType) error {
	if err := st.Validate(); err != nil {
		return err
	}
	return s.services.Create(ctx, st)
}

func (s *Service) GetServiceType(ctx context.Context, id uuid.UUID) (*ServiceType, error) {
	return s.services.GetByID(ctx, id)
}

func (s *Service) UpdateServiceType(ctx context.Context, st *ServiceType) error {
	if err := st.Validate(); err != nil {
		return err
	}
	return s.services.Update(ctx, st)
}

func (s *Service) ListServiceTypes(ctx context.Context, activeOnly bool, limit, offset int) ([]*ServiceType, int, error) {
	return s.services.List(ctx, activeOnly, limit, offset)
}

func (s *Service) DeleteServiceType(ctx context.Context, id uuid.UUID) error {
	return s.services.Delete(ctx, id)
}

// DoctorTimeZone resolves a doctor's IANA location. Inactive doctors are
// still resolvable so existing appointments keep rendering correctly.
func (s *Service) DoctorTimeZone(ctx context.Context, doctorID uuid.UUID) (*time.Location, error) {
	d, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(d.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("doctor %s has invalid time zone %q: %w", doctorID, d.TimeZone, err)
	}
	return loc, nil
}

// PatientExists reports whether the patient is on file and active.
func (s *Service) PatientExists(ctx context.Context, patientID uuid.UUID) (bool, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.Active, nil
}

// ServiceDuration returns the default appointment length for a service.
func (s *Service) ServiceDuration(ctx context.Context, serviceID uuid.UUID) (time.Duration, error) {
	st, err := s.services.GetByID(ctx, serviceID)
	if err != nil {
		return 0, err
	}
	return st.Duration(), nil
}
