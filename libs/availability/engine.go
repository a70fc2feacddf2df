package availability

import (
	"errors"
	"fmt"
	"time"
)

// SlotStep is the fixed granularity at which candidate slot start times are
// probed. It is independent of the service duration: a 50-minute service
// still offers start times every 15 minutes.
const SlotStep = 15 * time.Minute

// DefaultHorizonDays bounds a range scan when the caller passes no horizon.
const DefaultHorizonDays = 30

const dateLayout = "2006-01-02"

// Params is the engine's sole input aggregate. It is treated as an immutable
// value: New validates it once and compiles it into an Engine.
type Params struct {
	BusinessID         string
	WorkingHours       []WeekdayHours
	ServiceDurationMin int
	BufferMin          int
	Reservations       []Reservation
	// Timezone is the business's IANA zone name. Day boundaries and "now"
	// comparisons are evaluated in this zone. Empty means the process zone.
	Timezone string
}

// Slot is a bookable window. Ephemeral: computed on demand, never stored.
type Slot struct {
	Start time.Time
	End   time.Time
	Label string // display label, e.g. "10:00 AM"
}

type interval struct {
	start time.Time
	end   time.Time
}

// Engine computes availability for one business. It is a pure, read-only
// computation over the snapshot of schedule and reservations it was built
// from; safe for concurrent use.
type Engine struct {
	schedule *Schedule
	busy     []interval
	slotLen  time.Duration
	loc      *time.Location
}

// New validates params up front and compiles them. Malformed input is the
// only error class; absence of availability is never an error.
func New(p Params) (*Engine, error) {
	if p.BusinessID == "" {
		return nil, errors.New("business id is required")
	}
	if p.ServiceDurationMin <= 0 {
		return nil, fmt.Errorf("service duration must be positive, got %d", p.ServiceDurationMin)
	}
	if p.BufferMin < 0 {
		return nil, fmt.Errorf("buffer must not be negative, got %d", p.BufferMin)
	}

	schedule, err := NewSchedule(p.WorkingHours)
	if err != nil {
		return nil, err
	}

	loc := time.Local
	if p.Timezone != "" {
		loc, err = time.LoadLocation(p.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", p.Timezone, err)
		}
	}

	var busy []interval
	for _, r := range p.Reservations {
		if r.blocks(p.BusinessID) {
			busy = append(busy, interval{start: r.Start, end: r.End})
		}
	}

	return &Engine{
		schedule: schedule,
		busy:     busy,
		slotLen:  time.Duration(p.ServiceDurationMin+p.BufferMin) * time.Minute,
		loc:      loc,
	}, nil
}

// SlotsForDay returns the bookable slots for one calendar date ("YYYY-MM-DD"),
// ascending by start time. A closed day, a fully booked day, or a day in the
// past all yield an empty result, not an error.
func (e *Engine) SlotsForDay(date string, now time.Time) ([]Slot, error) {
	day, err := time.ParseInLocation(dateLayout, date, e.loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}
	return e.slotsOn(day, now), nil
}

// slotsOn walks each open window on day's weekday in SlotStep increments.
// day must be midnight in e.loc.
func (e *Engine) slotsOn(day time.Time, now time.Time) []Slot {
	var slots []Slot
	for _, w := range e.schedule.windowsOn(isoWeekday(day)) {
		winStart := day.Add(time.Duration(w.start) * time.Minute)
		winEnd := day.Add(time.Duration(w.end) * time.Minute)

		// Stop as soon as a candidate no longer fits before close; later
		// cursors only fit worse. Windows are disjoint and sorted, so output
		// stays ascending across windows without a sort.
		for t := winStart; !t.Add(e.slotLen).After(winEnd); t = t.Add(SlotStep) {
			if !t.After(now) {
				continue
			}
			if overlapsAny(t, t.Add(e.slotLen), e.busy) {
				continue
			}
			slots = append(slots, Slot{
				Start: t,
				End:   t.Add(e.slotLen),
				Label: t.Format("3:04 PM"),
			})
		}
	}
	return slots
}

// overlapsAny uses half-open intervals: a slot that starts exactly when a
// reservation ends (or ends exactly when one starts) does not conflict.
func overlapsAny(start, end time.Time, busy []interval) bool {
	for _, b := range busy {
		if start.Before(b.end) && b.start.Before(end) {
			return true
		}
	}
	return false
}

// AvailableDays scans daysAhead forward calendar days starting from today in
// the business zone and returns the dates ("YYYY-MM-DD", ascending) with at
// least one open slot.
func (e *Engine) AvailableDays(now time.Time, daysAhead int) []string {
	if daysAhead <= 0 {
		daysAhead = DefaultHorizonDays
	}
	local := now.In(e.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)

	var days []string
	for i := 0; i < daysAhead; i++ {
		day := today.AddDate(0, 0, i)
		if len(e.slotsOn(day, now)) > 0 {
			days = append(days, day.Format(dateLayout))
		}
	}
	return days
}

// FilterByMonth keeps the dates falling in the given month. The scanner is
// horizon-based, not month-aware; month views are a prefix filter over a
// horizon long enough to cover the requested month.
func FilterByMonth(dates []string, year, month int) []string {
	prefix := fmt.Sprintf("%04d-%02d", year, month)
	var out []string
	for _, d := range dates {
		if len(d) >= len(prefix) && d[:len(prefix)] == prefix {
			out = append(out, d)
		}
	}
	return out
}
