package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hackgods/medbook/internal/booking"
)

const timestampLayout = time.RFC3339Nano

// Store implements booking.Repository on SQLite. Dates, times and timestamps
// are stored as TEXT so ordering is lexical.
type Store struct {
	db *sql.DB
}

// Open opens path (":memory:" for an in-process database) with foreign keys on.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// one writer; an in-memory database lives only as long as its connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if path != ":memory:" {
		db.SetConnMaxLifetime(time.Hour)
	}

	return &Store{db: db}, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS specialties (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		icon        TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS doctors (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		specialty_id       TEXT NOT NULL REFERENCES specialties(id) ON DELETE RESTRICT,
		experience         INTEGER NOT NULL DEFAULT 0,
		price              REAL NOT NULL DEFAULT 0,
		bio                TEXT NOT NULL DEFAULT '',
		image_url          TEXT NOT NULL DEFAULT '',
		consultation_types TEXT NOT NULL DEFAULT '',
		created_at         TEXT NOT NULL,
		updated_at         TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id                TEXT PRIMARY KEY,
		doctor_id         TEXT NOT NULL REFERENCES doctors(id) ON DELETE RESTRICT,
		patient_name      TEXT NOT NULL,
		patient_email     TEXT NOT NULL DEFAULT '',
		patient_phone     TEXT NOT NULL DEFAULT '',
		slot_date         TEXT NOT NULL,
		slot_time         TEXT NOT NULL,
		consultation_type TEXT NOT NULL CHECK (consultation_type IN ('online', 'clinic')),
		status            TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'cancelled', 'completed')),
		notes             TEXT NOT NULL DEFAULT '',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS bookings_active_slot_uniq
		ON bookings (doctor_id, slot_date, slot_time)
		WHERE status IN ('pending', 'confirmed')`,
	`CREATE INDEX IF NOT EXISTS bookings_doctor_date_idx ON bookings (doctor_id, slot_date)`,
	`CREATE INDEX IF NOT EXISTS bookings_status_date_idx ON bookings (status, slot_date)`,
	`CREATE INDEX IF NOT EXISTS doctors_specialty_idx ON doctors (specialty_id)`,
	`CREATE TABLE IF NOT EXISTS booking_events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		booking_id TEXT REFERENCES bookings(id),
		payload    TEXT,
		created_at TEXT NOT NULL
	)`,
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, query := range migrations {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("apply sqlite migration: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const (
	uniqueViolation = iota + 1
	foreignKeyViolation
)

func constraintKind(err error) int {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return 0
	}

	code := se.Code()
	if code&0xff != sqlite3.SQLITE_CONSTRAINT {
		return 0
	}
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return uniqueViolation
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return foreignKeyViolation
	}

	// ON DELETE RESTRICT reports SQLITE_CONSTRAINT_TRIGGER, and some builds set
	// only the primary code; the message names the constraint either way.
	msg := se.Error()
	switch {
	case strings.Contains(msg, "UNIQUE"):
		return uniqueViolation
	case strings.Contains(msg, "FOREIGN KEY"):
		return foreignKeyViolation
	}
	return 0
}

func formatTS(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

type scanner interface {
	Scan(dest ...any) error
}

// Specialties

func scanSpecialty(row scanner) (*booking.Specialty, error) {
	var (
		sp               booking.Specialty
		created, updated string
	)
	err := row.Scan(&sp.ID, &sp.Name, &sp.Description, &sp.Icon, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrSpecialtyNotFound
		}
		return nil, err
	}
	if sp.CreatedAt, err = parseTS(created); err != nil {
		return nil, fmt.Errorf("specialty created_at: %w", err)
	}
	if sp.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, fmt.Errorf("specialty updated_at: %w", err)
	}
	return &sp, nil
}

func (s *Store) ListSpecialties(ctx context.Context) ([]booking.Specialty, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, icon, created_at, updated_at
		FROM specialties
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list specialties: %w", err)
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
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, icon, created_at, updated_at
		FROM specialties WHERE id = ?`, id)
	return scanSpecialty(row)
}

func (s *Store) CreateSpecialty(ctx context.Context, sp booking.Specialty) (*booking.Specialty, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO specialties (id, name, description, icon, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sp.ID, sp.Name, sp.Description, sp.Icon, formatTS(sp.CreatedAt), formatTS(sp.UpdatedAt))
	if err != nil {
		if constraintKind(err) == uniqueViolation {
			return nil, booking.ErrDuplicateSpecialty
		}
		return nil, fmt.Errorf("insert specialty: %w", err)
	}
	return s.GetSpecialtyByID(ctx, sp.ID)
}

func (s *Store) UpdateSpecialty(ctx context.Context, sp booking.Specialty) (*booking.Specialty, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE specialties
		SET name = ?, description = ?, icon = ?, updated_at = ?
		WHERE id = ?`,
		sp.Name, sp.Description, sp.Icon, formatTS(sp.UpdatedAt), sp.ID)
	if err != nil {
		if constraintKind(err) == uniqueViolation {
			return nil, booking.ErrDuplicateSpecialty
		}
		return nil, fmt.Errorf("update specialty: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, booking.ErrSpecialtyNotFound
	}
	return s.GetSpecialtyByID(ctx, sp.ID)
}

func (s *Store) DeleteSpecialty(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM specialties WHERE id = ?`, id)
	if err != nil {
		if constraintKind(err) == foreignKeyViolation {
			return booking.ErrSpecialtyInUse
		}
		return fmt.Errorf("delete specialty: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrSpecialtyNotFound
	}
	return nil
}

// Doctors

const doctorSelect = `
	SELECT d.id, d.name, d.specialty_id, s.name, d.experience, d.price, d.bio,
	       d.image_url, d.consultation_types, d.created_at, d.updated_at
	FROM doctors d
	JOIN specialties s ON s.id = d.specialty_id`

func scanDoctor(row scanner) (*booking.Doctor, error) {
	var (
		d                       booking.Doctor
		types, created, updated string
	)
	err := row.Scan(&d.ID, &d.Name, &d.SpecialtyID, &d.SpecialtyName, &d.Experience, &d.Price,
		&d.Bio, &d.ImageURL, &types, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrDoctorNotFound
		}
		return nil, err
	}

	d.ConsultationTypes = []booking.ConsultationType{}
	for _, t := range strings.Split(types, ",") {
		if t != "" {
			d.ConsultationTypes = append(d.ConsultationTypes, booking.ConsultationType(t))
		}
	}
	if d.CreatedAt, err = parseTS(created); err != nil {
		return nil, fmt.Errorf("doctor created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, fmt.Errorf("doctor updated_at: %w", err)
	}
	return &d, nil
}

func joinTypes(types []booking.ConsultationType) string {
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, string(t))
	}
	return strings.Join(parts, ",")
}

func (s *Store) ListDoctors(ctx context.Context, f booking.DoctorFilter) ([]booking.Doctor, error) {
	var (
		where []string
		args  []any
	)
	if f.SpecialtyID != nil {
		where = append(where, "d.specialty_id = ?")
		args = append(args, *f.SpecialtyID)
	}
	if f.SpecialtyName != "" {
		where = append(where, "s.name = ? COLLATE NOCASE")
		args = append(args, f.SpecialtyName)
	}
	if f.MinPrice != nil {
		where = append(where, "d.price >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		where = append(where, "d.price <= ?")
		args = append(args, *f.MaxPrice)
	}

	query := doctorSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY d.name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
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
	return scanDoctor(s.db.QueryRowContext(ctx, doctorSelect+" WHERE d.id = ?", id))
}

func (s *Store) CreateDoctor(ctx context.Context, d booking.Doctor) (*booking.Doctor, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO doctors (id, name, specialty_id, experience, price, bio, image_url,
		                     consultation_types, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.SpecialtyID, d.Experience, d.Price, d.Bio, d.ImageURL,
		joinTypes(d.ConsultationTypes), formatTS(d.CreatedAt), formatTS(d.UpdatedAt))
	if err != nil {
		if constraintKind(err) == foreignKeyViolation {
			return nil, booking.ErrSpecialtyNotFound
		}
		return nil, fmt.Errorf("insert doctor: %w", err)
	}
	return s.GetDoctorByID(ctx, d.ID)
}

func (s *Store) UpdateDoctor(ctx context.Context, d booking.Doctor) (*booking.Doctor, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE doctors
		SET name = ?, specialty_id = ?, experience = ?, price = ?, bio = ?, image_url = ?,
		    consultation_types = ?, updated_at = ?
		WHERE id = ?`,
		d.Name, d.SpecialtyID, d.Experience, d.Price, d.Bio, d.ImageURL,
		joinTypes(d.ConsultationTypes), formatTS(d.UpdatedAt), d.ID)
	if err != nil {
		if constraintKind(err) == foreignKeyViolation {
			return nil, booking.ErrSpecialtyNotFound
		}
		return nil, fmt.Errorf("update doctor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, booking.ErrDoctorNotFound
	}
	return s.GetDoctorByID(ctx, d.ID)
}

func (s *Store) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM doctors WHERE id = ?`, id)
	if err != nil {
		if constraintKind(err) == foreignKeyViolation {
			return booking.ErrDoctorInUse
		}
		return fmt.Errorf("delete doctor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrDoctorNotFound
	}
	return nil
}

// Bookings

const bookingSelect = `
	SELECT id, doctor_id, patient_name, patient_email, patient_phone, slot_date, slot_time,
	       consultation_type, status, notes, created_at, updated_at
	FROM bookings`

func scanBooking(row scanner) (*booking.Booking, error) {
	var (
		b                      booking.Booking
		date, created, updated string
	)
	err := row.Scan(&b.ID, &b.DoctorID, &b.PatientName, &b.PatientEmail, &b.PatientPhone,
		&date, &b.Time, &b.ConsultationType, &b.Status, &b.Notes, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, err
	}

	if b.Date, err = booking.ParseDate(date); err != nil {
		return nil, fmt.Errorf("booking slot_date: %w", err)
	}
	if b.CreatedAt, err = parseTS(created); err != nil {
		return nil, fmt.Errorf("booking created_at: %w", err)
	}
	if b.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, fmt.Errorf("booking updated_at: %w", err)
	}
	return &b, nil
}

func (s *Store) queryBookings(ctx context.Context, query string, args ...any) ([]booking.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []booking.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

func (s *Store) ListBookingsForDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]booking.Booking, error) {
	return s.queryBookings(ctx, bookingSelect+`
		WHERE doctor_id = ? AND slot_date = ? AND status <> 'cancelled'
		ORDER BY slot_time`,
		doctorID, date.Format(booking.DateLayout))
}

func (s *Store) CreateBooking(ctx context.Context, b booking.Booking) (*booking.Booking, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, doctor_id, patient_name, patient_email, patient_phone,
		                      slot_date, slot_time, consultation_type, status, notes,
		                      created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.DoctorID, b.PatientName, b.PatientEmail, b.PatientPhone,
		b.DateString(), b.Time, string(b.ConsultationType), string(b.Status), b.Notes,
		formatTS(b.CreatedAt), formatTS(b.UpdatedAt))
	if err != nil {
		switch constraintKind(err) {
		case uniqueViolation:
			return nil, booking.ErrSlotConflict
		case foreignKeyViolation:
			return nil, booking.ErrDoctorNotFound
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	return s.GetBookingByID(ctx, b.ID)
}

func (s *Store) GetBookingByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return scanBooking(s.db.QueryRowContext(ctx, bookingSelect+" WHERE id = ?", id))
}

func (s *Store) ListBookings(ctx context.Context, f booking.BookingFilter) ([]booking.Booking, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.DoctorID != nil {
		where = append(where, "doctor_id = ?")
		args = append(args, *f.DoctorID)
	}

	query := bookingSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY slot_date DESC, slot_time DESC, created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	return s.queryBookings(ctx, query, args...)
}

func (s *Store) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to booking.Status) (*booking.Booking, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), formatTS(time.Now()), id, string(from))
	if err != nil {
		return nil, fmt.Errorf("update booking status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, booking.ErrBookingNotFound
	}
	return s.GetBookingByID(ctx, id)
}

func (s *Store) FindConfirmedBefore(ctx context.Context, date time.Time) ([]booking.Booking, error) {
	return s.queryBookings(ctx, bookingSelect+`
		WHERE status = 'confirmed' AND slot_date < ?
		ORDER BY slot_date, slot_time`,
		date.Format(booking.DateLayout))
}

func (s *Store) InsertEvent(ctx context.Context, ev booking.EventLog) error {
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var payload any
	if ev.Payload != nil {
		payload = string(ev.Payload)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO booking_events (event_type, booking_id, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		ev.EventType, ev.BookingID, payload, formatTS(createdAt))
	if err != nil {
		return fmt.Errorf("insert booking event: %w", err)
	}
	return nil
}
