package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TimeSlot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// Grid is the ordered list of slot start times shared by every doctor.
type Grid struct {
	times []string
	index map[string]struct{}
}

// NewGrid validates and normalizes slot start times. Times must be HH:MM,
// strictly ascending and unique.
func NewGrid(times []string) (Grid, error) {
	if len(times) == 0 {
		return Grid{}, fmt.Errorf("slot grid is empty")
	}

	g := Grid{
		times: make([]string, 0, len(times)),
		index: make(map[string]struct{}, len(times)),
	}

	for i, raw := range times {
		t, ok := NormalizeTime(raw)
		if !ok {
			return Grid{}, fmt.Errorf("slot %d: %q is not HH:MM", i, raw)
		}
		if i > 0 && t <= g.times[i-1] {
			return Grid{}, fmt.Errorf("slot %d: %s is not after %s", i, t, g.times[i-1])
		}
		g.times = append(g.times, t)
		g.index[t] = struct{}{}
	}

	return g, nil
}

// Times returns a copy of the grid's start times.
func (g Grid) Times() []string {
	return append([]string(nil), g.times...)
}

// Contains reports whether a normalized HH:MM time is a grid slot.
func (g Grid) Contains(t string) bool {
	_, ok := g.index[t]
	return ok
}

// ComputeSlots marks each grid slot unavailable when a non-cancelled booking
// starts at that time. Bookings must already be filtered to one doctor and one
// day. Off-grid booking times have no effect.
func ComputeSlots(g Grid, existing []Booking) []TimeSlot {
	booked := make(map[string]struct{}, len(existing))
	for _, b := range existing {
		if b.Status == StatusCancelled {
			continue
		}
		if t, ok := NormalizeTime(b.Time); ok {
			booked[t] = struct{}{}
		}
	}

	slots := make([]TimeSlot, 0, len(g.times))
	for _, t := range g.times {
		_, taken := booked[t]
		slots = append(slots, TimeSlot{Time: t, Available: !taken})
	}
	return slots
}

// isAvailable looks up one time in a computed slot list.
func isAvailable(slots []TimeSlot, t string) bool {
	for _, s := range slots {
		if s.Time == t {
			return s.Available
		}
	}
	return false
}

// SlotKey identifies one bookable (doctor, date, time) triple for locking.
func SlotKey(doctorID uuid.UUID, date time.Time, t string) string {
	return fmt.Sprintf("%s:%s:%s", doctorID, date.Format(DateLayout), t)
}
