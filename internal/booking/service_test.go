package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/hackgods/medbook/internal/config"
	"github.com/hackgods/medbook/internal/metrics"
	redisclient "github.com/hackgods/medbook/internal/redis"
)

type fixture struct {
	repo    *memRepo
	svc     *Service
	metrics *metrics.Metrics
	doctor  Doctor
}

func testConfig() config.Config {
	return config.Config{
		Env:                "dev",
		SlotTimes:          append([]string(nil), config.DefaultSlotTimes...),
		ClinicTimezone:     "UTC",
		AutoConfirm:        true,
		RejectOffGridTimes: true,
	}
}

func newFixture(t *testing.T, cfg config.Config, locker redisclient.Locker) *fixture {
	t.Helper()

	repo := newMemRepo()
	sp := Specialty{ID: uuid.New(), Name: "Cardiology"}
	repo.specialties[sp.ID] = sp

	doctor := Doctor{
		ID:            uuid.New(),
		Name:          "Dr. Ama Mensah",
		SpecialtyID:   sp.ID,
		SpecialtyName: sp.Name,
		Price:         100,
	}
	repo.doctors[doctor.ID] = doctor

	if locker == nil {
		locker = redisclient.NewProcessSlotLocker()
	}
	m := metrics.New(prometheus.NewRegistry())

	svc, err := NewService(repo, locker, cfg, zerolog.Nop(), m)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	return &fixture{repo: repo, svc: svc, metrics: m, doctor: doctor}
}

func (f *fixture) request(date, slot string) SubmitRequest {
	return SubmitRequest{
		DoctorID:         f.doctor.ID.String(),
		PatientName:      "Kofi Boateng",
		PatientEmail:     "kofi@example.com",
		PatientPhone:     "+233200000000",
		Date:             date,
		Time:             slot,
		ConsultationType: "clinic",
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func TestSubmitBooking_AdmitsAndBlocksSlot(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	b, err := f.svc.SubmitBooking(ctx, f.request("2024-06-01", "10:00"))
	if err != nil {
		t.Fatalf("SubmitBooking: %v", err)
	}
	if b.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", b.Status)
	}
	if b.Time != "10:00" || b.DateString() != "2024-06-01" {
		t.Errorf("unexpected slot %s %s", b.DateString(), b.Time)
	}

	slots, err := f.svc.Slots(ctx, f.doctor.ID, mustDate(t, "2024-06-01"))
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	for _, s := range slots {
		if s.Time == "10:00" && s.Available {
			t.Error("10:00 should be taken")
		}
		if s.Time != "10:00" && !s.Available {
			t.Errorf("%s should be free", s.Time)
		}
	}

	// same slot again
	_, err = f.svc.SubmitBooking(ctx, f.request("2024-06-01", "10:00"))
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}

	// same time on a different day is independent
	if _, err := f.svc.SubmitBooking(ctx, f.request("2024-06-02", "10:00")); err != nil {
		t.Fatalf("different day should be bookable: %v", err)
	}

	if got := testutil.ToFloat64(f.metrics.Admissions.WithLabelValues(metrics.OutcomeAdmitted)); got != 2 {
		t.Errorf("admitted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(f.metrics.Admissions.WithLabelValues(metrics.OutcomeSlotTaken)); got != 1 {
		t.Errorf("slot_taken = %v, want 1", got)
	}
}

func TestSubmitBooking_NormalizesSingleDigitHour(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	b, err := f.svc.SubmitBooking(ctx, f.request("2024-06-01", "9:00"))
	if err != nil {
		t.Fatalf("SubmitBooking: %v", err)
	}
	if b.Time != "09:00" {
		t.Errorf("expected 09:00, got %s", b.Time)
	}

	if _, err := f.svc.SubmitBooking(ctx, f.request("2024-06-01", "09:00")); !errors.Is(err, ErrSlotTaken) {
		t.Errorf("expected ErrSlotTaken, got %v", err)
	}
}

func TestSubmitBooking_PendingWhenAutoConfirmOff(t *testing.T) {
	cfg := testConfig()
	cfg.AutoConfirm = false
	f := newFixture(t, cfg, nil)

	b, err := f.svc.SubmitBooking(context.Background(), f.request("2024-06-01", "11:00"))
	if err != nil {
		t.Fatalf("SubmitBooking: %v", err)
	}
	if b.Status != StatusPending {
		t.Errorf("expected pending, got %s", b.Status)
	}

	// pending still holds the slot
	_, err = f.svc.SubmitBooking(context.Background(), f.request("2024-06-01", "11:00"))
	if !errors.Is(err, ErrSlotTaken) {
		t.Errorf("expected ErrSlotTaken, got %v", err)
	}
}

func TestSubmitBooking_Validation(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	cases := []struct {
		name   string
		mutate func(*SubmitRequest)
		field  string
		reason Reason
	}{
		{"missing doctor", func(r *SubmitRequest) { r.DoctorID = "" }, "doctorId", ReasonMissing},
		{"missing patient", func(r *SubmitRequest) { r.PatientName = "  " }, "patientName", ReasonMissing},
		{"missing date", func(r *SubmitRequest) { r.Date = "" }, "date", ReasonMissing},
		{"missing time", func(r *SubmitRequest) { r.Time = "" }, "time", ReasonMissing},
		{"missing type", func(r *SubmitRequest) { r.ConsultationType = "" }, "consultationType", ReasonMissing},
		{"bad doctor id", func(r *SubmitRequest) { r.DoctorID = "42" }, "doctorId", ReasonMalformed},
		{"bad date", func(r *SubmitRequest) { r.Date = "01/06/2024" }, "date", ReasonMalformed},
		{"bad time", func(r *SubmitRequest) { r.Time = "ten" }, "time", ReasonMalformed},
		{"bad type", func(r *SubmitRequest) { r.ConsultationType = "phone" }, "consultationType", ReasonMalformed},
		{"bad email", func(r *SubmitRequest) { r.PatientEmail = "nope" }, "patientEmail", ReasonMalformed},
		{"off grid", func(r *SubmitRequest) { r.Time = "10:30" }, "time", ReasonNotInGrid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := f.request("2024-06-01", "10:00")
			tc.mutate(&req)

			_, err := f.svc.SubmitBooking(context.Background(), req)

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if ve.Field != tc.field || ve.Reason != tc.reason {
				t.Errorf("got %s/%s, want %s/%s", ve.Field, ve.Reason, tc.field, tc.reason)
			}
		})
	}

	if len(f.repo.bookings) != 0 {
		t.Errorf("rejected requests must not persist, found %d bookings", len(f.repo.bookings))
	}
}

func TestSubmitBooking_UnknownDoctor(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	req := f.request("2024-06-01", "10:00")
	req.DoctorID = uuid.NewString()

	_, err := f.svc.SubmitBooking(context.Background(), req)
	if !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("expected ErrDoctorNotFound, got %v", err)
	}
}

func TestSubmitBooking_ConsultationTypeNotOffered(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	d := f.repo.doctors[f.doctor.ID]
	d.ConsultationTypes = []ConsultationType{ConsultationOnline}
	f.repo.doctors[d.ID] = d

	_, err := f.svc.SubmitBooking(context.Background(), f.request("2024-06-01", "10:00"))

	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Reason != ReasonUnsupported {
		t.Fatalf("expected unsupported consultation type, got %v", err)
	}

	req := f.request("2024-06-01", "10:00")
	req.ConsultationType = "ONLINE"
	if _, err := f.svc.SubmitBooking(context.Background(), req); err != nil {
		t.Fatalf("online should be accepted: %v", err)
	}
}

func TestSubmitBooking_OffGridAllowedWhenPolicyOff(t *testing.T) {
	cfg := testConfig()
	cfg.RejectOffGridTimes = false
	f := newFixture(t, cfg, nil)
	ctx := context.Background()

	b, err := f.svc.SubmitBooking(ctx, f.request("2024-06-01", "10:30"))
	if err != nil {
		t.Fatalf("SubmitBooking: %v", err)
	}
	if b.Time != "10:30" {
		t.Errorf("expected 10:30, got %s", b.Time)
	}

	// grid is unaffected by the off-grid booking
	slots, err := f.svc.Slots(ctx, f.doctor.ID, mustDate(t, "2024-06-01"))
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	for _, s := range slots {
		if !s.Available {
			t.Errorf("%s should be free", s.Time)
		}
	}

	// the same off-grid time still cannot be double booked
	if _, err := f.svc.SubmitBooking(ctx, f.request("2024-06-01", "10:30")); !errors.Is(err, ErrSlotTaken) {
		t.Errorf("expected ErrSlotTaken, got %v", err)
	}
}

func TestSubmitBooking_StoreConflictBacksUpStaleRead(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	if _, err := f.svc.SubmitBooking(ctx, f.request("2024-06-01", "10:00")); err != nil {
		t.Fatalf("SubmitBooking: %v", err)
	}

	f.repo.mu.Lock()
	f.repo.staleDayReads = true
	f.repo.mu.Unlock()

	_, err := f.svc.SubmitBooking(ctx, f.request("2024-06-01", "10:00"))
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken from store conflict, got %v", err)
	}
}

type busyLocker struct{}

func (busyLocker) WithSlotLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestSubmitBooking_LockContention(t *testing.T) {
	f := newFixture(t, testConfig(), busyLocker{})

	_, err := f.svc.SubmitBooking(context.Background(), f.request("2024-06-01", "10:00"))
	if !errors.Is(err, ErrSlotBeingBooked) {
		t.Fatalf("expected ErrSlotBeingBooked, got %v", err)
	}
	if got := testutil.ToFloat64(f.metrics.Admissions.WithLabelValues(metrics.OutcomeContention)); got != 1 {
		t.Errorf("contention = %v, want 1", got)
	}
}

func TestSubmitBooking_ConcurrentSameSlotAdmitsOne(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	const workers = 25
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		unknown  []error
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SubmitBooking(ctx, f.request("2024-06-01", "10:00"))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrSlotBeingBooked):
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	wg.Wait()

	if admitted != 1 {
		t.Errorf("expected exactly one admission, got %d", admitted)
	}
	if len(unknown) > 0 {
		t.Errorf("unexpected errors: %v", unknown)
	}
}

func TestUpdateStatus(t *testing.T) {
	cfg := testConfig()
	cfg.AutoConfirm = false
	f := newFixture(t, cfg, nil)
	ctx := context.Background()

	b, err := f.svc.SubmitBooking(ctx, f.request("2024-06-01", "10:00"))
	if err != nil {
		t.Fatalf("SubmitBooking: %v", err)
	}

	updated, err := f.svc.UpdateStatus(ctx, b.ID, StatusConfirmed)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if updated.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", updated.Status)
	}

	if _, err := f.svc.UpdateStatus(ctx, b.ID, StatusPending); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Errorf("confirmed -> pending should fail, got %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, b.ID, StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// cancelled is terminal
	if _, err := f.svc.UpdateStatus(ctx, b.ID, StatusConfirmed); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Errorf("cancelled -> confirmed should fail, got %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, uuid.New(), StatusCancelled); !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("expected ErrBookingNotFound, got %v", err)
	}

	want := []string{EventBookingCreated, EventBookingStatusChanged, EventBookingStatusChanged}
	got := f.repo.eventTypes()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestCancelledBookingFreesSlot(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	b, err := f.svc.SubmitBooking(ctx, f.request("2024-06-01", "14:00"))
	if err != nil {
		t.Fatalf("SubmitBooking: %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, b.ID, StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	slots, err := f.svc.Slots(ctx, f.doctor.ID, mustDate(t, "2024-06-01"))
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	for _, s := range slots {
		if !s.Available {
			t.Errorf("%s should be free after cancellation", s.Time)
		}
	}

	if _, err := f.svc.SubmitBooking(ctx, f.request("2024-06-01", "14:00")); err != nil {
		t.Errorf("rebooking a cancelled slot should succeed: %v", err)
	}
}

func TestSlots_UnknownDoctor(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	_, err := f.svc.Slots(context.Background(), uuid.New(), mustDate(t, "2024-06-01"))
	if !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("expected ErrDoctorNotFound, got %v", err)
	}
}

func TestCompletePastBookings(t *testing.T) {
	cfg := testConfig()
	cfg.AutoConfirm = false
	f := newFixture(t, cfg, nil)
	ctx := context.Background()

	past, err := f.svc.SubmitBooking(ctx, f.request("2024-05-30", "10:00"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.UpdateStatus(ctx, past.ID, StatusConfirmed); err != nil {
		t.Fatal(err)
	}
	pendingPast, err := f.svc.SubmitBooking(ctx, f.request("2024-05-30", "11:00"))
	if err != nil {
		t.Fatal(err)
	}
	today, err := f.svc.SubmitBooking(ctx, f.request("2024-06-01", "10:00"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.UpdateStatus(ctx, today.ID, StatusConfirmed); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	n, err := f.svc.CompletePastBookings(ctx, now)
	if err != nil {
		t.Fatalf("CompletePastBookings: %v", err)
	}
	if n != 1 {
		t.Errorf("completed %d, want 1", n)
	}

	check := func(id uuid.UUID, want Status) {
		t.Helper()
		b, err := f.svc.GetBooking(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if b.Status != want {
			t.Errorf("booking %s: status %s, want %s", id, b.Status, want)
		}
	}
	check(past.ID, StatusCompleted)
	check(pendingPast.ID, StatusPending)
	check(today.ID, StatusConfirmed)
}

func TestCompletePastBookings_UsesClinicTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.ClinicTimezone = "Asia/Tokyo"
	f := newFixture(t, cfg, nil)
	ctx := context.Background()

	b, err := f.svc.SubmitBooking(ctx, f.request("2024-05-31", "10:00"))
	if err != nil {
		t.Fatal(err)
	}

	// 2024-05-31 20:00 UTC is already 2024-06-01 in Tokyo
	n, err := f.svc.CompletePastBookings(ctx, time.Date(2024, 5, 31, 20, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("completed %d, want 1", n)
	}
	got, _ := f.svc.GetBooking(ctx, b.ID)
	if got.Status != StatusCompleted {
		t.Errorf("status %s, want completed", got.Status)
	}
}

func TestListBookings_ClampsLimit(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	for _, slot := range []string{"09:00", "10:00", "11:00"} {
		if _, err := f.svc.SubmitBooking(ctx, f.request("2024-06-01", slot)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := f.svc.ListBookings(ctx, BookingFilter{Limit: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d bookings, want 3", len(all))
	}
	if all[0].Time != "11:00" {
		t.Errorf("expected newest slot first, got %s", all[0].Time)
	}

	page, err := f.svc.ListBookings(ctx, BookingFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 {
		t.Errorf("got %d bookings on second page, want 1", len(page))
	}
}

func TestBookingReads_ResolveDoctorName(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	b, err := f.svc.SubmitBooking(ctx, f.request("2024-06-01", "09:00"))
	if err != nil {
		t.Fatal(err)
	}
	if b.DoctorName != "Dr. Ama Mensah" {
		t.Errorf("admitted booking doctor name %q", b.DoctorName)
	}

	got, err := f.svc.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DoctorName != "Dr. Ama Mensah" {
		t.Errorf("GetBooking doctor name %q", got.DoctorName)
	}

	for _, filter := range []BookingFilter{{}, {DoctorID: &f.doctor.ID}} {
		list, err := f.svc.ListBookings(ctx, filter)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 || list[0].DoctorName != "Dr. Ama Mensah" {
			t.Errorf("ListBookings(%+v) = %+v", filter, list)
		}
	}
}
