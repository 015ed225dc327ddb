// Package storagetest holds the behaviour every booking.Repository
// implementation must share. Driver packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/medbook/internal/booking"
)

// Factory returns an empty, migrated repository.
type Factory func(t *testing.T) booking.Repository

func Run(t *testing.T, newRepo Factory) {
	t.Run("SpecialtyCRUD", func(t *testing.T) { testSpecialtyCRUD(t, newRepo(t)) })
	t.Run("DoctorCRUDAndFilters", func(t *testing.T) { testDoctors(t, newRepo(t)) })
	t.Run("BookingsForDay", func(t *testing.T) { testBookingsForDay(t, newRepo(t)) })
	t.Run("ActiveSlotUnique", func(t *testing.T) { testActiveSlotUnique(t, newRepo(t)) })
	t.Run("ConcurrentInsertsOneWins", func(t *testing.T) { testConcurrentInserts(t, newRepo(t)) })
	t.Run("ConditionalStatusUpdate", func(t *testing.T) { testStatusUpdate(t, newRepo(t)) })
	t.Run("ListBookings", func(t *testing.T) { testListBookings(t, newRepo(t)) })
	t.Run("FindConfirmedBefore", func(t *testing.T) { testFindConfirmedBefore(t, newRepo(t)) })
	t.Run("Events", func(t *testing.T) { testEvents(t, newRepo(t)) })
}

var base = time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := booking.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func seedDoctor(t *testing.T, repo booking.Repository, name string, price float64) (booking.Specialty, booking.Doctor) {
	t.Helper()
	ctx := context.Background()

	sp, err := repo.CreateSpecialty(ctx, booking.Specialty{
		ID: uuid.New(), Name: "Specialty " + name, CreatedAt: base, UpdatedAt: base,
	})
	if err != nil {
		t.Fatalf("CreateSpecialty: %v", err)
	}

	d, err := repo.CreateDoctor(ctx, booking.Doctor{
		ID:                uuid.New(),
		Name:              name,
		SpecialtyID:       sp.ID,
		Experience:        5,
		Price:             price,
		ConsultationTypes: []booking.ConsultationType{booking.ConsultationOnline, booking.ConsultationClinic},
		CreatedAt:         base,
		UpdatedAt:         base,
	})
	if err != nil {
		t.Fatalf("CreateDoctor: %v", err)
	}
	return *sp, *d
}

func newBooking(doctorID uuid.UUID, date time.Time, slot string, status booking.Status) booking.Booking {
	return booking.Booking{
		ID:               uuid.New(),
		DoctorID:         doctorID,
		PatientName:      "Yaw Asante",
		PatientEmail:     "yaw@example.com",
		Date:             date,
		Time:             slot,
		ConsultationType: booking.ConsultationClinic,
		Status:           status,
		CreatedAt:        base,
		UpdatedAt:        base,
	}
}

func testSpecialtyCRUD(t *testing.T, repo booking.Repository) {
	ctx := context.Background()

	sp, err := repo.CreateSpecialty(ctx, booking.Specialty{
		ID: uuid.New(), Name: "Neurology", Description: "Brain", Icon: "brain", CreatedAt: base, UpdatedAt: base,
	})
	if err != nil {
		t.Fatalf("CreateSpecialty: %v", err)
	}

	_, err = repo.CreateSpecialty(ctx, booking.Specialty{ID: uuid.New(), Name: "Neurology", CreatedAt: base, UpdatedAt: base})
	if !errors.Is(err, booking.ErrDuplicateSpecialty) {
		t.Errorf("expected ErrDuplicateSpecialty, got %v", err)
	}

	got, err := repo.GetSpecialtyByID(ctx, sp.ID)
	if err != nil {
		t.Fatalf("GetSpecialtyByID: %v", err)
	}
	if got.Name != "Neurology" || got.Icon != "brain" {
		t.Errorf("unexpected specialty %+v", got)
	}

	sp.Name = "Neurosurgery"
	sp.UpdatedAt = base.Add(time.Hour)
	if _, err := repo.UpdateSpecialty(ctx, *sp); err != nil {
		t.Fatalf("UpdateSpecialty: %v", err)
	}

	list, err := repo.ListSpecialties(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "Neurosurgery" {
		t.Errorf("unexpected list %+v", list)
	}

	if _, err := repo.GetSpecialtyByID(ctx, uuid.New()); !errors.Is(err, booking.ErrSpecialtyNotFound) {
		t.Errorf("expected ErrSpecialtyNotFound, got %v", err)
	}

	_, d := seedDoctor(t, repo, "Dr. A", 100)
	if err := repo.DeleteSpecialty(ctx, d.SpecialtyID); !errors.Is(err, booking.ErrSpecialtyInUse) {
		t.Errorf("expected ErrSpecialtyInUse, got %v", err)
	}
	if err := repo.DeleteSpecialty(ctx, sp.ID); err != nil {
		t.Errorf("DeleteSpecialty: %v", err)
	}
	if err := repo.DeleteSpecialty(ctx, sp.ID); !errors.Is(err, booking.ErrSpecialtyNotFound) {
		t.Errorf("expected ErrSpecialtyNotFound on second delete, got %v", err)
	}
}

func testDoctors(t *testing.T, repo booking.Repository) {
	ctx := context.Background()

	sp, cheap := seedDoctor(t, repo, "Dr. Cheap", 50)
	_, pricey := seedDoctor(t, repo, "Dr. Pricey", 500)

	got, err := repo.GetDoctorByID(ctx, cheap.ID)
	if err != nil {
		t.Fatalf("GetDoctorByID: %v", err)
	}
	if got.SpecialtyName != sp.Name {
		t.Errorf("specialty name = %q, want %q", got.SpecialtyName, sp.Name)
	}
	if len(got.ConsultationTypes) != 2 {
		t.Errorf("consultation types = %v", got.ConsultationTypes)
	}

	lo := 100.0
	list, err := repo.ListDoctors(ctx, booking.DoctorFilter{MinPrice: &lo})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != pricey.ID {
		t.Errorf("min price filter returned %+v", list)
	}

	list, err = repo.ListDoctors(ctx, booking.DoctorFilter{SpecialtyID: &sp.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != cheap.ID {
		t.Errorf("specialty filter returned %+v", list)
	}

	list, err = repo.ListDoctors(ctx, booking.DoctorFilter{SpecialtyName: sp.Name})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != cheap.ID {
		t.Errorf("specialty name filter returned %+v", list)
	}

	list, err = repo.ListDoctors(ctx, booking.DoctorFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "Dr. Cheap" {
		t.Errorf("expected both doctors ordered by name, got %+v", list)
	}

	cheap.Price = 75
	cheap.ConsultationTypes = []booking.ConsultationType{booking.ConsultationOnline}
	cheap.UpdatedAt = base.Add(time.Hour)
	updated, err := repo.UpdateDoctor(ctx, cheap)
	if err != nil {
		t.Fatalf("UpdateDoctor: %v", err)
	}
	if updated.Price != 75 || len(updated.ConsultationTypes) != 1 {
		t.Errorf("unexpected update %+v", updated)
	}

	if _, err := repo.UpdateDoctor(ctx, booking.Doctor{ID: uuid.New(), SpecialtyID: sp.ID, Name: "x"}); !errors.Is(err, booking.ErrDoctorNotFound) {
		t.Errorf("expected ErrDoctorNotFound, got %v", err)
	}

	if _, err := repo.CreateBooking(ctx, newBooking(pricey.ID, day(t, "2024-06-01"), "10:00", booking.StatusConfirmed)); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteDoctor(ctx, pricey.ID); !errors.Is(err, booking.ErrDoctorInUse) {
		t.Errorf("expected ErrDoctorInUse, got %v", err)
	}
	if err := repo.DeleteDoctor(ctx, cheap.ID); err != nil {
		t.Errorf("DeleteDoctor: %v", err)
	}
	if _, err := repo.GetDoctorByID(ctx, cheap.ID); !errors.Is(err, booking.ErrDoctorNotFound) {
		t.Errorf("expected ErrDoctorNotFound, got %v", err)
	}
}

func testBookingsForDay(t *testing.T, repo booking.Repository) {
	ctx := context.Background()
	_, d := seedDoctor(t, repo, "Dr. Day", 100)
	_, other := seedDoctor(t, repo, "Dr. Other", 100)

	june1 := day(t, "2024-06-01")
	for _, b := range []booking.Booking{
		newBooking(d.ID, june1, "09:00", booking.StatusConfirmed),
		newBooking(d.ID, june1, "10:00", booking.StatusCancelled),
		newBooking(d.ID, june1, "11:00", booking.StatusPending),
		newBooking(d.ID, day(t, "2024-06-02"), "09:00", booking.StatusConfirmed),
		newBooking(other.ID, june1, "12:00", booking.StatusConfirmed),
	} {
		if _, err := repo.CreateBooking(ctx, b); err != nil {
			t.Fatalf("CreateBooking: %v", err)
		}
	}

	got, err := repo.ListBookingsForDay(ctx, d.ID, june1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 non-cancelled bookings, got %+v", got)
	}
	for _, b := range got {
		if b.Status == booking.StatusCancelled {
			t.Error("cancelled booking returned")
		}
		if !b.Date.Equal(june1) {
			t.Errorf("date %v, want %v", b.Date, june1)
		}
	}
}

func testActiveSlotUnique(t *testing.T, repo booking.Repository) {
	ctx := context.Background()
	_, d := seedDoctor(t, repo, "Dr. Unique", 100)
	date := day(t, "2024-06-01")

	first, err := repo.CreateBooking(ctx, newBooking(d.ID, date, "10:00", booking.StatusPending))
	if err != nil {
		t.Fatal(err)
	}

	_, err = repo.CreateBooking(ctx, newBooking(d.ID, date, "10:00", booking.StatusConfirmed))
	if !errors.Is(err, booking.ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}

	// a cancelled booking frees the slot
	if _, err := repo.UpdateBookingStatus(ctx, first.ID, booking.StatusPending, booking.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateBooking(ctx, newBooking(d.ID, date, "10:00", booking.StatusConfirmed)); err != nil {
		t.Fatalf("rebooking cancelled slot: %v", err)
	}

	// and a cancelled row may coexist with other cancelled rows
	if _, err := repo.CreateBooking(ctx, newBooking(d.ID, date, "11:00", booking.StatusCancelled)); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateBooking(ctx, newBooking(d.ID, date, "11:00", booking.StatusCancelled)); err != nil {
		t.Fatal(err)
	}
}

func testConcurrentInserts(t *testing.T, repo booking.Repository) {
	ctx := context.Background()
	_, d := seedDoctor(t, repo, "Dr. Race", 100)
	date := day(t, "2024-06-01")

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CreateBooking(ctx, newBooking(d.ID, date, "15:00", booking.StatusConfirmed))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, booking.ErrSlotConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || conflicts != n-1 {
		t.Errorf("ok=%d conflicts=%d, want 1 and %d", ok, conflicts, n-1)
	}
}

func testStatusUpdate(t *testing.T, repo booking.Repository) {
	ctx := context.Background()
	_, d := seedDoctor(t, repo, "Dr. Status", 100)

	b, err := repo.CreateBooking(ctx, newBooking(d.ID, day(t, "2024-06-01"), "09:00", booking.StatusPending))
	if err != nil {
		t.Fatal(err)
	}

	updated, err := repo.UpdateBookingStatus(ctx, b.ID, booking.StatusPending, booking.StatusConfirmed)
	if err != nil {
		t.Fatalf("UpdateBookingStatus: %v", err)
	}
	if updated.Status != booking.StatusConfirmed {
		t.Errorf("status = %s", updated.Status)
	}

	// stale from status loses
	if _, err := repo.UpdateBookingStatus(ctx, b.ID, booking.StatusPending, booking.StatusCancelled); !errors.Is(err, booking.ErrBookingNotFound) {
		t.Errorf("expected ErrBookingNotFound for stale update, got %v", err)
	}

	got, err := repo.GetBookingByID(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != booking.StatusConfirmed || got.Time != "09:00" || got.PatientEmail != "yaw@example.com" {
		t.Errorf("unexpected booking %+v", got)
	}

	if _, err := repo.GetBookingByID(ctx, uuid.New()); !errors.Is(err, booking.ErrBookingNotFound) {
		t.Errorf("expected ErrBookingNotFound, got %v", err)
	}
}

func testListBookings(t *testing.T, repo booking.Repository) {
	ctx := context.Background()
	_, d1 := seedDoctor(t, repo, "Dr. One", 100)
	_, d2 := seedDoctor(t, repo, "Dr. Two", 100)

	for _, b := range []booking.Booking{
		newBooking(d1.ID, day(t, "2024-06-01"), "09:00", booking.StatusConfirmed),
		newBooking(d1.ID, day(t, "2024-06-02"), "09:00", booking.StatusPending),
		newBooking(d2.ID, day(t, "2024-06-03"), "09:00", booking.StatusConfirmed),
	} {
		if _, err := repo.CreateBooking(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	all, err := repo.ListBookings(ctx, booking.BookingFilter{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].DateString() != "2024-06-03" {
		t.Errorf("expected newest first, got %+v", all)
	}

	confirmed := booking.StatusConfirmed
	list, err := repo.ListBookings(ctx, booking.BookingFilter{Status: &confirmed, DoctorID: &d1.ID, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].DateString() != "2024-06-01" {
		t.Errorf("filtered list %+v", list)
	}

	page, err := repo.ListBookings(ctx, booking.BookingFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 {
		t.Errorf("expected 1 booking on page 2, got %d", len(page))
	}
}

func testFindConfirmedBefore(t *testing.T, repo booking.Repository) {
	ctx := context.Background()
	_, d := seedDoctor(t, repo, "Dr. Past", 100)

	for _, b := range []booking.Booking{
		newBooking(d.ID, day(t, "2024-05-30"), "09:00", booking.StatusConfirmed),
		newBooking(d.ID, day(t, "2024-05-30"), "10:00", booking.StatusPending),
		newBooking(d.ID, day(t, "2024-06-01"), "09:00", booking.StatusConfirmed),
	} {
		if _, err := repo.CreateBooking(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.FindConfirmedBefore(ctx, day(t, "2024-06-01"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Time != "09:00" || got[0].DateString() != "2024-05-30" {
		t.Errorf("unexpected result %+v", got)
	}
}

func testEvents(t *testing.T, repo booking.Repository) {
	ctx := context.Background()
	_, d := seedDoctor(t, repo, "Dr. Events", 100)

	b, err := repo.CreateBooking(ctx, newBooking(d.ID, day(t, "2024-06-01"), "09:00", booking.StatusConfirmed))
	if err != nil {
		t.Fatal(err)
	}

	err = repo.InsertEvent(ctx, booking.EventLog{
		EventType: booking.EventBookingCreated,
		BookingID: &b.ID,
		Payload:   []byte(`{"time":"09:00"}`),
		CreatedAt: base,
	})
	if err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	if err := repo.InsertEvent(ctx, booking.EventLog{EventType: "SEED"}); err != nil {
		t.Fatalf("InsertEvent without booking: %v", err)
	}
}
