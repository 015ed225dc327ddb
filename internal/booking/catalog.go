package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type SpecialtyInput struct {
	Name        string
	Description string
	Icon        string
}

type DoctorInput struct {
	Name              string
	SpecialtyID       string
	Experience        int
	Price             float64
	Bio               string
	ImageURL          string
	ConsultationTypes []string
}

func (s *Service) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	out, err := s.repo.ListSpecialties(ctx)
	if err != nil {
		return nil, fmt.Errorf("list specialties: %w", err)
	}
	return out, nil
}

func (s *Service) CreateSpecialty(ctx context.Context, in SpecialtyInput) (*Specialty, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, missing("name")
	}

	now := s.now().UTC()
	created, err := s.repo.CreateSpecialty(ctx, Specialty{
		ID:          uuid.New(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Icon:        strings.TrimSpace(in.Icon),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateSpecialty) {
			return nil, err
		}
		return nil, fmt.Errorf("create specialty: %w", err)
	}
	return created, nil
}

func (s *Service) UpdateSpecialty(ctx context.Context, id uuid.UUID, in SpecialtyInput) (*Specialty, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, missing("name")
	}

	current, err := s.repo.GetSpecialtyByID(ctx, id)
	if err != nil {
		return nil, passNotFound(err, ErrSpecialtyNotFound, "load specialty")
	}

	current.Name = name
	current.Description = strings.TrimSpace(in.Description)
	current.Icon = strings.TrimSpace(in.Icon)
	current.UpdatedAt = s.now().UTC()

	updated, err := s.repo.UpdateSpecialty(ctx, *current)
	if err != nil {
		if errors.Is(err, ErrDuplicateSpecialty) {
			return nil, err
		}
		return nil, passNotFound(err, ErrSpecialtyNotFound, "update specialty")
	}
	return updated, nil
}

func (s *Service) DeleteSpecialty(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteSpecialty(ctx, id); err != nil {
		if errors.Is(err, ErrSpecialtyInUse) {
			return err
		}
		return passNotFound(err, ErrSpecialtyNotFound, "delete specialty")
	}
	return nil
}

func (s *Service) ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error) {
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return nil, malformed("minPrice", "greater than maxPrice")
	}

	out, err := s.repo.ListDoctors(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return out, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil {
		return nil, passNotFound(err, ErrDoctorNotFound, "get doctor")
	}
	return d, nil
}

func (s *Service) CreateDoctor(ctx context.Context, in DoctorInput) (*Doctor, error) {
	d, err := s.doctorFromInput(ctx, in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	d.ID = uuid.New()
	d.CreatedAt = now
	d.UpdatedAt = now

	created, err := s.repo.CreateDoctor(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("create doctor: %w", err)
	}
	return created, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, in DoctorInput) (*Doctor, error) {
	current, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil {
		return nil, passNotFound(err, ErrDoctorNotFound, "load doctor")
	}

	d, err := s.doctorFromInput(ctx, in)
	if err != nil {
		return nil, err
	}
	d.ID = current.ID
	d.CreatedAt = current.CreatedAt
	d.UpdatedAt = s.now().UTC()

	updated, err := s.repo.UpdateDoctor(ctx, d)
	if err != nil {
		return nil, passNotFound(err, ErrDoctorNotFound, "update doctor")
	}
	return updated, nil
}

// DeleteDoctor removes a doctor that has never been booked. Bookings are never
// deleted, so a booked doctor stays.
func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteDoctor(ctx, id); err != nil {
		if errors.Is(err, ErrDoctorInUse) {
			return err
		}
		return passNotFound(err, ErrDoctorNotFound, "delete doctor")
	}
	return nil
}

func (s *Service) doctorFromInput(ctx context.Context, in DoctorInput) (Doctor, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Doctor{}, missing("name")
	}
	if strings.TrimSpace(in.SpecialtyID) == "" {
		return Doctor{}, missing("specialtyId")
	}
	specialtyID, err := uuid.Parse(strings.TrimSpace(in.SpecialtyID))
	if err != nil {
		return Doctor{}, malformed("specialtyId", "must be a UUID")
	}
	if in.Experience < 0 {
		return Doctor{}, malformed("experience", "must not be negative")
	}
	if in.Price < 0 {
		return Doctor{}, malformed("price", "must not be negative")
	}

	types := make([]ConsultationType, 0, len(in.ConsultationTypes))
	seen := make(map[ConsultationType]bool)
	for _, raw := range in.ConsultationTypes {
		ct, ok := ParseConsultationType(strings.ToLower(strings.TrimSpace(raw)))
		if !ok {
			return Doctor{}, malformed("consultationTypes", fmt.Sprintf("unknown type %q", raw))
		}
		if !seen[ct] {
			seen[ct] = true
			types = append(types, ct)
		}
	}

	specialty, err := s.repo.GetSpecialtyByID(ctx, specialtyID)
	if err != nil {
		if errors.Is(err, ErrSpecialtyNotFound) {
			return Doctor{}, &ValidationError{Field: "specialtyId", Reason: ReasonUnsupported, Detail: "unknown specialty"}
		}
		return Doctor{}, fmt.Errorf("load specialty: %w", err)
	}

	return Doctor{
		Name:              name,
		SpecialtyID:       specialty.ID,
		SpecialtyName:     specialty.Name,
		Experience:        in.Experience,
		Price:             in.Price,
		Bio:               strings.TrimSpace(in.Bio),
		ImageURL:          strings.TrimSpace(in.ImageURL),
		ConsultationTypes: types,
	}, nil
}

func passNotFound(err, notFound error, op string) error {
	if errors.Is(err, notFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
