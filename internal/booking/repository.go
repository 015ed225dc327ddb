package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSpecialtyNotFound  = errors.New("specialty not found")
	ErrDoctorNotFound     = errors.New("doctor not found")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrDuplicateSpecialty = errors.New("specialty name already exists")
	ErrSpecialtyInUse     = errors.New("specialty still has doctors")
	ErrDoctorInUse        = errors.New("doctor still has bookings")

	// ErrSlotConflict is returned by CreateBooking when the store's uniqueness
	// constraint on active (doctor, date, time) bookings rejects the insert.
	ErrSlotConflict = errors.New("active booking already exists for slot")
)

// Repository contains all store interactions needed by the service.
type Repository interface {
	ListSpecialties(ctx context.Context) ([]Specialty, error)
	GetSpecialtyByID(ctx context.Context, id uuid.UUID) (*Specialty, error)
	CreateSpecialty(ctx context.Context, s Specialty) (*Specialty, error)
	UpdateSpecialty(ctx context.Context, s Specialty) (*Specialty, error)
	DeleteSpecialty(ctx context.Context, id uuid.UUID) error

	ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	CreateDoctor(ctx context.Context, d Doctor) (*Doctor, error)
	UpdateDoctor(ctx context.Context, d Doctor) (*Doctor, error)
	DeleteDoctor(ctx context.Context, id uuid.UUID) error

	// For availability: bookings of one doctor on one day with status != cancelled
	ListBookingsForDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Booking, error)

	CreateBooking(ctx context.Context, b Booking) (*Booking, error)
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error)

	// Completion worker
	FindConfirmedBefore(ctx context.Context, date time.Time) ([]Booking, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
