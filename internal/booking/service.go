package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/medbook/internal/config"
	"github.com/hackgods/medbook/internal/metrics"
	redisclient "github.com/hackgods/medbook/internal/redis"
)

const (
	EventBookingCreated       = "BOOKING_CREATED"
	EventBookingStatusChanged = "BOOKING_STATUS_CHANGED"
)

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	grid    Grid
	loc     *time.Location
	cfg     config.Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log zerolog.Logger, m *metrics.Metrics) (*Service, error) {
	grid, err := NewGrid(cfg.SlotTimes)
	if err != nil {
		return nil, fmt.Errorf("slot grid: %w", err)
	}

	return &Service{
		repo:    repo,
		locker:  locker,
		grid:    grid,
		loc:     cfg.Location(),
		cfg:     cfg,
		log:     log.With().Str("component", "booking").Logger(),
		metrics: m,
		now:     time.Now,
	}, nil
}

func (s *Service) Grid() Grid {
	return s.grid
}

// Slots returns the availability grid of one doctor on one day.
func (s *Service) Slots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	existing, err := s.repo.ListBookingsForDay(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load bookings for day: %w", err)
	}

	s.metrics.RecordSlotQuery()
	return ComputeSlots(s.grid, existing), nil
}

// SubmitRequest is a booking request exactly as received from a client.
type SubmitRequest struct {
	DoctorID         string
	PatientName      string
	PatientEmail     string
	PatientPhone     string
	Date             string // YYYY-MM-DD
	Time             string // HH:MM
	ConsultationType string
	Notes            string
}

// SubmitBooking validates a request and persists it if the slot is still free.
// The availability re-check and the insert run under a per-slot lock; the store's
// uniqueness constraint backs that up when the lock is lost or process local.
func (s *Service) SubmitBooking(ctx context.Context, req SubmitRequest) (*Booking, error) {
	candidate, err := s.admissionCandidate(req)
	if err != nil {
		s.metrics.RecordAdmission(metrics.OutcomeInvalid)
		return nil, err
	}

	doctor, err := s.repo.GetDoctorByID(ctx, candidate.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			s.metrics.RecordAdmission(metrics.OutcomeNotFound)
			return nil, err
		}
		s.metrics.RecordAdmission(metrics.OutcomeError)
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	if !doctor.Offers(candidate.ConsultationType) {
		s.metrics.RecordAdmission(metrics.OutcomeInvalid)
		return nil, &ValidationError{
			Field:  "consultationType",
			Reason: ReasonUnsupported,
			Detail: fmt.Sprintf("doctor does not offer %s consultations", candidate.ConsultationType),
		}
	}

	onGrid := s.grid.Contains(candidate.Time)
	if !onGrid && s.cfg.RejectOffGridTimes {
		s.metrics.RecordAdmission(metrics.OutcomeInvalid)
		return nil, &ValidationError{Field: "time", Reason: ReasonNotInGrid, Detail: candidate.Time}
	}

	var created *Booking

	key := SlotKey(candidate.DoctorID, candidate.Date, candidate.Time)
	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		// Inside the critical section re-derive availability from fresh bookings
		existing, err := s.repo.ListBookingsForDay(lockCtx, candidate.DoctorID, candidate.Date)
		if err != nil {
			return fmt.Errorf("load bookings for day: %w", err)
		}
		if onGrid && !isAvailable(ComputeSlots(s.grid, existing), candidate.Time) {
			return ErrSlotTaken
		}

		b, err := s.repo.CreateBooking(lockCtx, candidate)
		if err != nil {
			if errors.Is(err, ErrSlotConflict) {
				return ErrSlotTaken
			}
			return fmt.Errorf("create booking: %w", err)
		}
		created = b

		s.logEvent(lockCtx, b.ID, EventBookingCreated, map[string]any{
			"doctor_id": b.DoctorID.String(),
			"date":      b.DateString(),
			"time":      b.Time,
			"status":    b.Status,
		})

		return nil
	})

	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			s.metrics.RecordAdmission(metrics.OutcomeContention)
			return nil, ErrSlotBeingBooked
		case errors.Is(err, ErrSlotTaken):
			s.metrics.RecordAdmission(metrics.OutcomeSlotTaken)
			return nil, err
		default:
			s.metrics.RecordAdmission(metrics.OutcomeError)
			return nil, err
		}
	}

	created.DoctorName = doctor.Name
	s.metrics.RecordAdmission(metrics.OutcomeAdmitted)
	s.log.Info().
		Str("booking_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Str("date", created.DateString()).
		Str("time", created.Time).
		Str("status", string(created.Status)).
		Msg("booking admitted")

	return created, nil
}

// admissionCandidate turns a raw request into a Booking ready to persist, or
// returns the first *ValidationError found.
func (s *Service) admissionCandidate(req SubmitRequest) (Booking, error) {
	doctorIDRaw := strings.TrimSpace(req.DoctorID)
	patientName := strings.TrimSpace(req.PatientName)
	dateRaw := strings.TrimSpace(req.Date)
	timeRaw := strings.TrimSpace(req.Time)
	typeRaw := strings.ToLower(strings.TrimSpace(req.ConsultationType))

	switch {
	case doctorIDRaw == "":
		return Booking{}, missing("doctorId")
	case patientName == "":
		return Booking{}, missing("patientName")
	case dateRaw == "":
		return Booking{}, missing("date")
	case timeRaw == "":
		return Booking{}, missing("time")
	case typeRaw == "":
		return Booking{}, missing("consultationType")
	}

	doctorID, err := uuid.Parse(doctorIDRaw)
	if err != nil {
		return Booking{}, malformed("doctorId", "must be a UUID")
	}
	date, err := ParseDate(dateRaw)
	if err != nil {
		return Booking{}, malformed("date", "expected YYYY-MM-DD")
	}
	slotTime, ok := NormalizeTime(timeRaw)
	if !ok {
		return Booking{}, malformed("time", "expected HH:MM")
	}
	ct, ok := ParseConsultationType(typeRaw)
	if !ok {
		return Booking{}, malformed("consultationType", "expected online or clinic")
	}

	email := strings.TrimSpace(req.PatientEmail)
	if email != "" && !strings.Contains(email, "@") {
		return Booking{}, malformed("patientEmail", "not an email address")
	}

	status := StatusPending
	if s.cfg.AutoConfirm {
		status = StatusConfirmed
	}

	now := s.now().UTC()
	return Booking{
		ID:               uuid.New(),
		DoctorID:         doctorID,
		PatientName:      patientName,
		PatientEmail:     email,
		PatientPhone:     strings.TrimSpace(req.PatientPhone),
		Date:             date,
		Time:             slotTime,
		ConsultationType: ct,
		Status:           status,
		Notes:            strings.TrimSpace(req.Notes),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// UpdateStatus moves a booking along the status state machine.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Booking, error) {
	current, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}

	if !CanTransition(current.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, to)
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, id, current.Status, to)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			// status changed underneath us
			return nil, fmt.Errorf("%w: booking is no longer %s", ErrInvalidStatusTransition, current.Status)
		}
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	s.metrics.RecordStatusChange(string(to))
	s.logEvent(ctx, id, EventBookingStatusChanged, map[string]any{
		"from": current.Status,
		"to":   to,
	})

	return updated, nil
}

// CompletePastBookings marks confirmed bookings dated before today (clinic time)
// as completed. Intended to be called by the worker periodically.
func (s *Service) CompletePastBookings(ctx context.Context, now time.Time) (int, error) {
	local := now.In(s.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	candidates, err := s.repo.FindConfirmedBefore(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("find confirmed bookings before %s: %w", today.Format(DateLayout), err)
	}

	completed := 0
	for _, b := range candidates {
		_, err := s.repo.UpdateBookingStatus(ctx, b.ID, StatusConfirmed, StatusCompleted)
		if err != nil {
			if !errors.Is(err, ErrBookingNotFound) {
				s.log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("failed to complete booking")
			}
			continue
		}
		completed++
		s.metrics.RecordStatusChange(string(StatusCompleted))
		s.logEvent(ctx, b.ID, EventBookingStatusChanged, map[string]any{
			"from":   StatusConfirmed,
			"to":     StatusCompleted,
			"reason": "worker",
		})
	}

	return completed, nil
}

// GetBooking retrieves one booking by ID
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}

	d, err := s.repo.GetDoctorByID(ctx, b.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor of booking: %w", err)
	}
	b.DoctorName = d.Name
	return b, nil
}

// ListBookings returns bookings newest slot first, with doctor names resolved.
func (s *Service) ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error) {
	f = f.Normalize()

	bookings, err := s.repo.ListBookings(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	if len(bookings) == 0 {
		return bookings, nil
	}

	names, err := s.doctorNames(ctx, f.DoctorID)
	if err != nil {
		return nil, err
	}
	for i := range bookings {
		bookings[i].DoctorName = names[bookings[i].DoctorID]
	}
	return bookings, nil
}

// doctorNames loads one doctor when the listing is already scoped to it, and
// the whole roster otherwise. Doctors with bookings cannot be deleted, so every
// booking resolves.
func (s *Service) doctorNames(ctx context.Context, only *uuid.UUID) (map[uuid.UUID]string, error) {
	if only != nil {
		d, err := s.repo.GetDoctorByID(ctx, *only)
		if err != nil {
			return nil, fmt.Errorf("load doctor: %w", err)
		}
		return map[uuid.UUID]string{d.ID: d.Name}, nil
	}

	doctors, err := s.repo.ListDoctors(ctx, DoctorFilter{})
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	names := make(map[uuid.UUID]string, len(doctors))
	for _, d := range doctors {
		names[d.ID] = d.Name
	}
	return names, nil
}

func (s *Service) logEvent(ctx context.Context, bookingID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	id := bookingID

	ev := EventLog{
		EventType: eventType,
		BookingID: &id,
		Payload:   data,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Str("booking_id", bookingID.String()).Msg("failed to insert event log")
	}
}
