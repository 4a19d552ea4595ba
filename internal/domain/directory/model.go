// Package directory holds the practice's reference data: the doctors,
// patients and bookable services the scheduling engine validates against.
package directory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Doctor maps to the doctor table.
type Doctor struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Specialty *string   `db:"specialty" json:"specialty,omitempty"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	// TimeZone is the IANA zone the doctor's weekly template and exceptions
	// are expressed in, e.g. "America/New_York".
	TimeZone  string    `db:"time_zone" json:"time_zone"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (d *Doctor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.TimeZone == "" {
		return fmt.Errorf("time_zone is required")
	}
	if _, err := time.LoadLocation(d.TimeZone); err != nil {
		return fmt.Errorf("invalid time_zone %q", d.TimeZone)
	}
	return nil
}

// Patient maps to the patient table.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Email       *string    `db:"email" json:"email,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Active      bool       `db:"active" json:"active"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Patient) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// ServiceType maps to the service_type table and describes a bookable
// service (consultation, follow-up, procedure) with its default length.
type ServiceType struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Description     *string   `db:"description" json:"description,omitempty"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	PriceCents      *int      `db:"price_cents" json:"price_cents,omitempty"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

func (s *ServiceType) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.DurationMinutes <= 0 {
		return fmt.Errorf("duration_minutes must be positive")
	}
	return nil
}

// Duration returns the service's default appointment length.
func (s *ServiceType) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}
