package booking

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
)

var testTimes = []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00", "17:00"}

func mustGrid(t *testing.T, times []string) Grid {
	t.Helper()
	g, err := NewGrid(times)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

func TestComputeSlots_EmptyDayAllAvailable(t *testing.T) {
	g := mustGrid(t, testTimes)

	slots := ComputeSlots(g, nil)
	if len(slots) != len(testTimes) {
		t.Fatalf("expected %d slots, got %d", len(testTimes), len(slots))
	}
	for i, s := range slots {
		if s.Time != testTimes[i] {
			t.Errorf("slot %d: expected %s, got %s", i, testTimes[i], s.Time)
		}
		if !s.Available {
			t.Errorf("slot %s should be available", s.Time)
		}
	}
}

func TestComputeSlots_MarksActiveBookingsTaken(t *testing.T) {
	g := mustGrid(t, testTimes)
	existing := []Booking{
		{Time: "10:00", Status: StatusConfirmed},
		{Time: "14:00", Status: StatusPending},
		{Time: "15:00", Status: StatusCompleted},
	}

	taken := map[string]bool{"10:00": true, "14:00": true, "15:00": true}
	for _, s := range ComputeSlots(g, existing) {
		if s.Available == taken[s.Time] {
			t.Errorf("slot %s: available=%v", s.Time, s.Available)
		}
	}
}

func TestComputeSlots_CancelledFreesSlot(t *testing.T) {
	g := mustGrid(t, testTimes)
	existing := []Booking{{Time: "10:00", Status: StatusCancelled}}

	for _, s := range ComputeSlots(g, existing) {
		if !s.Available {
			t.Errorf("slot %s should be available", s.Time)
		}
	}
}

func TestComputeSlots_IgnoresOffGridAndNormalizes(t *testing.T) {
	g := mustGrid(t, testTimes)
	existing := []Booking{
		{Time: "10:30", Status: StatusConfirmed},
		{Time: "9:00", Status: StatusConfirmed},
	}

	slots := ComputeSlots(g, existing)
	if len(slots) != len(testTimes) {
		t.Fatalf("off-grid booking must not add slots, got %d", len(slots))
	}
	for _, s := range slots {
		want := s.Time != "09:00"
		if s.Available != want {
			t.Errorf("slot %s: expected available=%v", s.Time, want)
		}
	}
}

func TestComputeSlots_DuplicateBookingsSameTime(t *testing.T) {
	g := mustGrid(t, []string{"09:00", "10:00"})
	existing := []Booking{
		{Time: "09:00", Status: StatusConfirmed},
		{Time: "09:00", Status: StatusPending},
	}

	slots := ComputeSlots(g, existing)
	if slots[0].Available || !slots[1].Available {
		t.Errorf("unexpected slots %+v", slots)
	}
}

func TestNewGrid(t *testing.T) {
	cases := []struct {
		name    string
		times   []string
		wantErr bool
	}{
		{"default", testTimes, false},
		{"single digit hour", []string{"9:00", "10:00"}, false},
		{"empty", nil, true},
		{"not a time", []string{"nine"}, true},
		{"descending", []string{"10:00", "09:00"}, true},
		{"duplicate", []string{"09:00", "09:00"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGrid(tc.times)
			if (err != nil) != tc.wantErr {
				t.Errorf("NewGrid(%v) err=%v, wantErr=%v", tc.times, err, tc.wantErr)
			}
		})
	}

	g := mustGrid(t, []string{"9:00", "10:00"})
	if !g.Contains("09:00") || g.Contains("9:00") {
		t.Error("grid should hold normalized times only")
	}
}

func TestSlotKey(t *testing.T) {
	id := uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	date, _ := ParseDate("2024-06-01")

	got := SlotKey(id, date, "10:00")
	want := "7c9e6679-7425-40de-944b-e07fc1f90ae7:2024-06-01:10:00"
	if got != want {
		t.Errorf("SlotKey = %q, want %q", got, want)
	}
}

func TestNormalizeTime(t *testing.T) {
	cases := map[string]string{"09:00": "09:00", "9:00": "09:00", "17:30": "17:30"}
	for in, want := range cases {
		got, ok := NormalizeTime(in)
		if !ok || got != want {
			t.Errorf("NormalizeTime(%q) = %q, %v", in, got, ok)
		}
	}
	for _, bad := range []string{"", "25:00", "9am", "09:00:00"} {
		if _, ok := NormalizeTime(bad); ok {
			t.Errorf("NormalizeTime(%q) should fail", bad)
		}
	}
}

func TestComputeSlots_DeterministicAndLeavesInputAlone(t *testing.T) {
	g := mustGrid(t, testTimes)
	existing := []Booking{
		{Time: "11:00", Status: StatusConfirmed},
		{Time: "09:00", Status: StatusCancelled},
		{Time: "13:30", Status: StatusPending},
		{Time: "16:00", Status: StatusPending},
	}
	before := append([]Booking(nil), existing...)
	gridBefore := g.Times()

	first := ComputeSlots(g, existing)
	second := ComputeSlots(g, existing)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated calls differ:\n%v\n%v", first, second)
	}
	if !reflect.DeepEqual(existing, before) {
		t.Errorf("bookings mutated: %v, was %v", existing, before)
	}
	if !reflect.DeepEqual(g.Times(), gridBefore) {
		t.Errorf("grid mutated: %v, was %v", g.Times(), gridBefore)
	}

	first[0].Available = !first[0].Available
	if third := ComputeSlots(g, existing); !reflect.DeepEqual(third, second) {
		t.Error("result shares state with an earlier call")
	}
}
