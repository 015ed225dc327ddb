package booking

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire and storage form of a calendar date.
const DateLayout = "2006-01-02"

// TimeLayout is the wire and storage form of a slot start time.
const TimeLayout = "15:04"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, true
	}
	return "", false
}

// Active reports whether a booking in this status holds its slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

type ConsultationType string

const (
	ConsultationOnline ConsultationType = "online"
	ConsultationClinic ConsultationType = "clinic"
)

func ParseConsultationType(s string) (ConsultationType, bool) {
	switch ct := ConsultationType(s); ct {
	case ConsultationOnline, ConsultationClinic:
		return ct, true
	}
	return "", false
}

type Specialty struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Doctor struct {
	ID                uuid.UUID          `json:"id"`
	Name              string             `json:"name"`
	SpecialtyID       uuid.UUID          `json:"specialtyId"`
	SpecialtyName     string             `json:"specialtyName,omitempty"`
	Experience        int                `json:"experience"`
	Price             float64            `json:"price"`
	Bio               string             `json:"bio,omitempty"`
	ImageURL          string             `json:"imageUrl,omitempty"`
	ConsultationTypes []ConsultationType `json:"consultationTypes"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// Offers reports whether the doctor accepts the consultation type.
// A doctor with no configured types accepts both.
func (d *Doctor) Offers(ct ConsultationType) bool {
	if len(d.ConsultationTypes) == 0 {
		return true
	}
	for _, t := range d.ConsultationTypes {
		if t == ct {
			return true
		}
	}
	return false
}

type Booking struct {
	ID               uuid.UUID
	DoctorID         uuid.UUID
	DoctorName       string // filled on reads by the service, not stored
	PatientName      string
	PatientEmail     string
	PatientPhone     string
	Date             time.Time // UTC midnight
	Time             string    // HH:MM
	ConsultationType ConsultationType
	Status           Status
	Notes            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DateString returns the booking date as YYYY-MM-DD.
func (b *Booking) DateString() string {
	return b.Date.Format(DateLayout)
}

type BookingFilter struct {
	Status   *Status
	DoctorID *uuid.UUID
	Limit    int
	Offset   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize applies the default page size and clamps limit and offset.
func (f BookingFilter) Normalize() BookingFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

type DoctorFilter struct {
	SpecialtyID   *uuid.UUID
	SpecialtyName string
	MinPrice      *float64
	MaxPrice      *float64
}

type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// ParseDate parses YYYY-MM-DD into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// NormalizeTime turns "9:00" or "09:00" into the zero-padded "09:00".
func NormalizeTime(s string) (string, bool) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return "", false
	}
	return t.Format(TimeLayout), true
}
