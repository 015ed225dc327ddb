package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/medbook/internal/booking"
)

//go:embed schema.sql
var schema string

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	activeSlotIndex = "bookings_active_slot_uniq"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn and returns a Store owning the pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return New(pool), nil
}

// Migrate creates missing tables and indexes. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Helpers

func pgCode(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func scanSpecialty(row pgx.Row) (*booking.Specialty, error) {
	var sp booking.Specialty
	err := row.Scan(&sp.ID, &sp.Name, &sp.Description, &sp.Icon, &sp.CreatedAt, &sp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrSpecialtyNotFound
		}
		return nil, err
	}
	return &sp, nil
}

const doctorColumns = `
	d.id, d.name, d.specialty_id, s.name, d.experience, d.price,
	d.bio, d.image_url, d.consultation_types, d.created_at, d.updated_at`

func scanDoctor(row pgx.Row) (*booking.Doctor, error) {
	var d booking.Doctor
	var types []string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.SpecialtyID,
		&d.SpecialtyName,
		&d.Experience,
		&d.Price,
		&d.Bio,
		&d.ImageURL,
		&types,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrDoctorNotFound
		}
		return nil, err
	}

	d.ConsultationTypes = make([]booking.ConsultationType, 0, len(types))
	for _, t := range types {
		d.ConsultationTypes = append(d.ConsultationTypes, booking.ConsultationType(t))
	}
	return &d, nil
}

const bookingColumns = `
	id, doctor_id, patient_name, patient_email, patient_phone, slot_date, slot_time,
	consultation_type, status, notes, created_at, updated_at`

func scanBooking(row pgx.Row) (*booking.Booking, error) {
	var b booking.Booking

	err := row.Scan(
		&b.ID,
		&b.DoctorID,
		&b.PatientName,
		&b.PatientEmail,
		&b.PatientPhone,
		&b.Date,
		&b.Time,
		&b.ConsultationType,
		&b.Status,
		&b.Notes,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, err
	}

	b.Date = time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, time.UTC)
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]booking.Booking, error) {
	defer rows.Close()

	result := []booking.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Specialties

func (s *Store) ListSpecialties(ctx context.Context) ([]booking.Specialty, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, icon, created_at, updated_at
		FROM specialties
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []booking.Specialty{}
	for rows.Next() {
		sp, err := scanSpecialty(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sp)
	}
	return result, rows.Err()
}

func (s *Store) GetSpecialtyByID(ctx context.Context, id uuid.UUID) (*booking.Specialty, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, icon, created_at, updated_at
		FROM specialties
		WHERE id = $1
	`, id)
	return scanSpecialty(row)
}

func (s *Store) CreateSpecialty(ctx context.Context, sp booking.Specialty) (*booking.Specialty, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO specialties (id, name, description, icon, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, description, icon, created_at, updated_at
	`, sp.ID, sp.Name, sp.Description, sp.Icon, sp.CreatedAt, sp.UpdatedAt)

	created, err := scanSpecialty(row)
	if err != nil {
		if code, _ := pgCode(err); code == pgUniqueViolation {
			return nil, booking.ErrDuplicateSpecialty
		}
		return nil, err
	}
	return created, nil
}

func (s *Store) UpdateSpecialty(ctx context.Context, sp booking.Specialty) (*booking.Specialty, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE specialties
		SET name = $2,
		    description = $3,
		    icon = $4,
		    updated_at = $5
		WHERE id = $1
		RETURNING id, name, description, icon, created_at, updated_at
	`, sp.ID, sp.Name, sp.Description, sp.Icon, sp.UpdatedAt)

	updated, err := scanSpecialty(row)
	if err != nil {
		if code, _ := pgCode(err); code == pgUniqueViolation {
			return nil, booking.ErrDuplicateSpecialty
		}
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteSpecialty(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM specialties WHERE id = $1`, id)
	if err != nil {
		if code, _ := pgCode(err); code == pgForeignKeyViolation {
			return booking.ErrSpecialtyInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrSpecialtyNotFound
	}
	return nil
}

// Doctors

func (s *Store) ListDoctors(ctx context.Context, f booking.DoctorFilter) ([]booking.Doctor, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.SpecialtyID != nil {
		add("d.specialty_id = $%d", *f.SpecialtyID)
	}
	if f.SpecialtyName != "" {
		add("lower(s.name) = lower($%d)", f.SpecialtyName)
	}
	if f.MinPrice != nil {
		add("d.price >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("d.price <= $%d", *f.MaxPrice)
	}

	query := `SELECT ` + doctorColumns + `
		FROM doctors d
		JOIN specialties s ON s.id = d.specialty_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY d.name"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []booking.Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (s *Store) GetDoctorByID(ctx context.Context, id uuid.UUID) (*booking.Doctor, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+doctorColumns+`
		FROM doctors d
		JOIN specialties s ON s.id = d.specialty_id
		WHERE d.id = $1
	`, id)
	return scanDoctor(row)
}

func consultationTypes(d booking.Doctor) []string {
	out := make([]string, 0, len(d.ConsultationTypes))
	for _, t := range d.ConsultationTypes {
		out = append(out, string(t))
	}
	return out
}

func (s *Store) CreateDoctor(ctx context.Context, d booking.Doctor) (*booking.Doctor, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO doctors (id, name, specialty_id, experience, price, bio, image_url,
		                     consultation_types, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, d.ID, d.Name, d.SpecialtyID, d.Experience, d.Price, d.Bio, d.ImageURL,
		consultationTypes(d), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if code, _ := pgCode(err); code == pgForeignKeyViolation {
			return nil, booking.ErrSpecialtyNotFound
		}
		return nil, fmt.Errorf("insert doctor: %w", err)
	}
	return s.GetDoctorByID(ctx, d.ID)
}

func (s *Store) UpdateDoctor(ctx context.Context, d booking.Doctor) (*booking.Doctor, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE doctors
		SET name = $2,
		    specialty_id = $3,
		    experience = $4,
		    price = $5,
		    bio = $6,
		    image_url = $7,
		    consultation_types = $8,
		    updated_at = $9
		WHERE id = $1
	`, d.ID, d.Name, d.SpecialtyID, d.Experience, d.Price, d.Bio, d.ImageURL,
		consultationTypes(d), d.UpdatedAt)
	if err != nil {
		if code, _ := pgCode(err); code == pgForeignKeyViolation {
			return nil, booking.ErrSpecialtyNotFound
		}
		return nil, fmt.Errorf("update doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, booking.ErrDoctorNotFound
	}
	return s.GetDoctorByID(ctx, d.ID)
}

func (s *Store) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		if code, _ := pgCode(err); code == pgForeignKeyViolation {
			return booking.ErrDoctorInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrDoctorNotFound
	}
	return nil
}

// Bookings

func (s *Store) ListBookingsForDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]booking.Booking, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+bookingColumns+`
		FROM bookings
		WHERE doctor_id = $1
		  AND slot_date = $2
		  AND status <> 'cancelled'
		ORDER BY slot_time
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) CreateBooking(ctx context.Context, b booking.Booking) (*booking.Booking, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, doctor_id, patient_name, patient_email, patient_phone,
		                      slot_date, slot_time, consultation_type, status, notes,
		                      created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+bookingColumns,
		b.ID, b.DoctorID, b.PatientName, b.PatientEmail, b.PatientPhone,
		b.Date, b.Time, b.ConsultationType, b.Status, b.Notes,
		b.CreatedAt, b.UpdatedAt)

	created, err := scanBooking(row)
	if err != nil {
		code, constraint := pgCode(err)
		switch {
		case code == pgUniqueViolation && constraint == activeSlotIndex:
			return nil, booking.ErrSlotConflict
		case code == pgForeignKeyViolation:
			return nil, booking.ErrDoctorNotFound
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	return created, nil
}

func (s *Store) GetBookingByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

func (s *Store) ListBookings(ctx context.Context, f booking.BookingFilter) ([]booking.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::uuid IS NULL OR doctor_id = $2)
		ORDER BY slot_date DESC, slot_time DESC, created_at DESC
		LIMIT $3 OFFSET $4`

	var status *string
	if f.Status != nil {
		v := string(*f.Status)
		status = &v
	}

	rows, err := s.pool.Query(ctx, query, status, f.DoctorID, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to booking.Status) (*booking.Booking, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+bookingColumns,
		id, to, from)

	return scanBooking(row)
}

func (s *Store) FindConfirmedBefore(ctx context.Context, date time.Time) ([]booking.Booking, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'confirmed'
		  AND slot_date < $1
		ORDER BY slot_date, slot_time
	`, date)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) InsertEvent(ctx context.Context, ev booking.EventLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO booking_events (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.BookingID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert booking event: %w", err)
	}
	return nil
}

// Reset empties every table. Tests only.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE booking_events, bookings, doctors, specialties RESTART IDENTITY CASCADE`)
	return err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
