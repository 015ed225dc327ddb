package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository for service tests. It enforces the same
// active-slot uniqueness as the SQL stores.
type memRepo struct {
	mu          sync.Mutex
	specialties map[uuid.UUID]Specialty
	doctors     map[uuid.UUID]Doctor
	bookings    map[uuid.UUID]Booking
	events      []EventLog

	// staleDayReads makes ListBookingsForDay return nothing, simulating a
	// read that missed a concurrent insert.
	staleDayReads bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		specialties: make(map[uuid.UUID]Specialty),
		doctors:     make(map[uuid.UUID]Doctor),
		bookings:    make(map[uuid.UUID]Booking),
	}
}

func (r *memRepo) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Specialty, 0, len(r.specialties))
	for _, s := range r.specialties {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memRepo) GetSpecialtyByID(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.specialties[id]
	if !ok {
		return nil, ErrSpecialtyNotFound
	}
	return &s, nil
}

func (r *memRepo) CreateSpecialty(ctx context.Context, s Specialty) (*Specialty, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.specialties {
		if existing.Name == s.Name {
			return nil, ErrDuplicateSpecialty
		}
	}
	r.specialties[s.ID] = s
	return &s, nil
}

func (r *memRepo) UpdateSpecialty(ctx context.Context, s Specialty) (*Specialty, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.specialties[s.ID]; !ok {
		return nil, ErrSpecialtyNotFound
	}
	for _, existing := range r.specialties {
		if existing.ID != s.ID && existing.Name == s.Name {
			return nil, ErrDuplicateSpecialty
		}
	}
	r.specialties[s.ID] = s
	return &s, nil
}

func (r *memRepo) DeleteSpecialty(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.specialties[id]; !ok {
		return ErrSpecialtyNotFound
	}
	for _, d := range r.doctors {
		if d.SpecialtyID == id {
			return ErrSpecialtyInUse
		}
	}
	delete(r.specialties, id)
	return nil
}

func (r *memRepo) ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Doctor
	for _, d := range r.doctors {
		if f.SpecialtyID != nil && d.SpecialtyID != *f.SpecialtyID {
			continue
		}
		if f.SpecialtyName != "" && d.SpecialtyName != f.SpecialtyName {
			continue
		}
		if f.MinPrice != nil && d.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && d.Price > *f.MaxPrice {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memRepo) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *memRepo) CreateDoctor(ctx context.Context, d Doctor) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[d.ID] = d
	return &d, nil
}

func (r *memRepo) UpdateDoctor(ctx context.Context, d Doctor) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.doctors[d.ID]; !ok {
		return nil, ErrDoctorNotFound
	}
	r.doctors[d.ID] = d
	return &d, nil
}

func (r *memRepo) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.doctors[id]; !ok {
		return ErrDoctorNotFound
	}
	for _, b := range r.bookings {
		if b.DoctorID == id {
			return ErrDoctorInUse
		}
	}
	delete(r.doctors, id)
	return nil
}

func (r *memRepo) ListBookingsForDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staleDayReads {
		return nil, nil
	}
	var out []Booking
	for _, b := range r.bookings {
		if b.DoctorID == doctorID && b.Date.Equal(date) && b.Status != StatusCancelled {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memRepo) CreateBooking(ctx context.Context, b Booking) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.bookings {
		if existing.DoctorID == b.DoctorID && existing.Date.Equal(b.Date) &&
			existing.Time == b.Time && existing.Status.Active() {
			return nil, ErrSlotConflict
		}
	}
	r.bookings[b.ID] = b
	return &b, nil
}

func (r *memRepo) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return &b, nil
}

func (r *memRepo) ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Booking
	for _, b := range r.bookings {
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		if f.DoctorID != nil && b.DoctorID != *f.DoctorID {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Time > out[j].Time
	})
	if f.Offset >= len(out) {
		return []Booking{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memRepo) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.Status != from {
		return nil, ErrBookingNotFound
	}
	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	r.bookings[id] = b
	return &b, nil
}

func (r *memRepo) FindConfirmedBefore(ctx context.Context, date time.Time) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Booking
	for _, b := range r.bookings {
		if b.Status == StatusConfirmed && b.Date.Before(date) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}
