package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/medbook/internal/booking"
	"github.com/hackgods/medbook/internal/config"
	redisclient "github.com/hackgods/medbook/internal/redis"
	"github.com/hackgods/medbook/internal/storage/sqlite"
)

func newTestService(t *testing.T) *booking.Service {
	t.Helper()

	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}

	cfg := config.Config{
		Env:                "dev",
		SlotTimes:          append([]string(nil), config.DefaultSlotTimes...),
		ClinicTimezone:     "UTC",
		AutoConfirm:        true,
		RejectOffGridTimes: true,
	}
	svc, err := booking.NewService(store, redisclient.NewProcessSlotLocker(), cfg, zerolog.Nop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestSeedCatalog_Idempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	specialties, doctors, err := seedCatalog(ctx, svc)
	if err != nil {
		t.Fatalf("seedCatalog: %v", err)
	}
	if specialties != len(catalogSpecialties) || doctors != len(catalogDoctors) {
		t.Fatalf("seeded %d/%d, want %d/%d", specialties, doctors, len(catalogSpecialties), len(catalogDoctors))
	}

	specialties, doctors, err = seedCatalog(ctx, svc)
	if err != nil {
		t.Fatalf("second seedCatalog: %v", err)
	}
	if specialties != 0 || doctors != 0 {
		t.Errorf("re-seed inserted %d specialties and %d doctors", specialties, doctors)
	}

	online := booking.ConsultationOnline
	all, err := svc.ListDoctors(ctx, booking.DoctorFilter{SpecialtyName: "Dermatology"})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || !all[0].Offers(online) || all[0].Offers(booking.ConsultationClinic) {
		t.Errorf("unexpected dermatology doctors %+v", all)
	}
}

func TestSeedFake(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := seedFake(ctx, svc, gofakeit.New(1), 1, 0, time.Now()); err == nil {
		t.Fatal("expected error without specialties")
	}

	if _, _, err := seedCatalog(ctx, svc); err != nil {
		t.Fatal(err)
	}

	doctors, bookings, err := seedFake(ctx, svc, gofakeit.New(42), 3, 40, time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("seedFake: %v", err)
	}
	if doctors != 3 {
		t.Errorf("doctors = %d, want 3", doctors)
	}
	if bookings == 0 || bookings > 40 {
		t.Errorf("bookings = %d", bookings)
	}

	listed, err := svc.ListBookings(ctx, booking.BookingFilter{Limit: booking.MaxPageSize})
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != bookings {
		t.Errorf("listed %d bookings, seeded %d", len(listed), bookings)
	}
}

func TestBookingFilter(t *testing.T) {
	id := uuid.New()

	f, err := bookingFilter("Confirmed", id.String(), 500, -1)
	if err != nil {
		t.Fatal(err)
	}
	if f.Status == nil || *f.Status != booking.StatusConfirmed {
		t.Errorf("status = %v", f.Status)
	}
	if f.DoctorID == nil || *f.DoctorID != id {
		t.Errorf("doctor = %v", f.DoctorID)
	}
	if f.Limit != booking.MaxPageSize || f.Offset != 0 {
		t.Errorf("page = %d/%d", f.Limit, f.Offset)
	}

	if _, err := bookingFilter("lost", "", 0, 0); err == nil {
		t.Error("expected error for unknown status")
	}
	if _, err := bookingFilter("", "doc-1", 0, 0); err == nil {
		t.Error("expected error for bad doctor id")
	}
}

func TestPrintBookings(t *testing.T) {
	b := booking.Booking{
		ID:               uuid.New(),
		DoctorID:         uuid.New(),
		PatientName:      "Kofi Boateng",
		Date:             time.Date(2030, 3, 14, 0, 0, 0, 0, time.UTC),
		Time:             "09:00",
		ConsultationType: booking.ConsultationClinic,
		Status:           booking.StatusConfirmed,
	}

	var out bytes.Buffer
	if err := printBookings(&out, []booking.Booking{b}); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), out.String())
	}
	for _, want := range []string{"2030-03-14", "09:00", "Kofi Boateng", "confirmed"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row %q missing %q", lines[1], want)
		}
	}
}

func TestHashPasswordCmd(t *testing.T) {
	cmd := hashPasswordCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("hunter2\n"))
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")); err != nil {
		t.Errorf("hash does not match: %v", err)
	}
}
