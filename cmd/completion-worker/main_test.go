package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/medbook/internal/booking"
	"github.com/hackgods/medbook/internal/config"
	redisclient "github.com/hackgods/medbook/internal/redis"
	"github.com/hackgods/medbook/internal/storage/sqlite"
)

func TestRunOnce_CompletesPastBookings(t *testing.T) {
	ctx := context.Background()

	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(ctx); err != nil {
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

	sp, err := svc.CreateSpecialty(ctx, booking.SpecialtyInput{Name: "Neurology"})
	if err != nil {
		t.Fatal(err)
	}
	d, err := svc.CreateDoctor(ctx, booking.DoctorInput{Name: "Dr. Lisa Davis", SpecialtyID: sp.ID.String(), Price: 200})
	if err != nil {
		t.Fatal(err)
	}

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format(booking.DateLayout)
	past, err := svc.SubmitBooking(ctx, booking.SubmitRequest{
		DoctorID: d.ID.String(), PatientName: "Kwame", Date: yesterday, Time: "10:00", ConsultationType: "clinic",
	})
	if err != nil {
		t.Fatal(err)
	}

	runOnce(ctx, svc, zerolog.Nop())

	got, err := svc.GetBooking(ctx, past.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != booking.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}

	if _, err := svc.GetBooking(ctx, uuid.New()); err == nil {
		t.Error("expected not found for unknown booking")
	}
}
