package bookingclient

import (
	"context"
	"time"

	"github.com/slotly-app/slotly/libs/availability"
)

// localHorizonDays is how far forward Local scans for month queries. 90 days
// covers any month a booking calendar realistically shows.
const localHorizonDays = 90

// Directory resolves a business/service pair to the inputs the availability
// engine needs. Implementations range from an in-memory catalog to the
// booking service's own storage layer.
type Directory interface {
	AvailabilityParams(ctx context.Context, businessID, serviceID string) (availability.Params, error)
}

// Local implements Client with in-process computation. Results match what
// the booking API would return for the same directory contents.
type Local struct {
	dir Directory
	now func() time.Time
}

func NewLocal(dir Directory) *Local {
	return &Local{dir: dir, now: time.Now}
}

func (l *Local) MonthAvailability(ctx context.Context, q MonthQuery) (MonthAvailability, error) {
	engine, err := l.engineFor(ctx, q.BusinessID, q.ServiceID)
	if err != nil {
		return MonthAvailability{}, err
	}
	dates := availability.FilterByMonth(engine.AvailableDays(l.now(), localHorizonDays), q.Year, q.Month)
	if dates == nil {
		dates = []string{}
	}
	return MonthAvailability{AvailableDates: dates}, nil
}

func (l *Local) DayAvailability(ctx context.Context, q DayQuery) (DayAvailability, error) {
	engine, err := l.engineFor(ctx, q.BusinessID, q.ServiceID)
	if err != nil {
		return DayAvailability{}, err
	}
	slots, err := engine.SlotsForDay(q.Date, l.now())
	if err != nil {
		return DayAvailability{}, err
	}
	out := DayAvailability{Date: q.Date, Slots: make([]TimeSlot, 0, len(slots))}
	for _, s := range slots {
		out.Slots = append(out.Slots, TimeSlot{
			StartTime: s.Start.Format("15:04"),
			EndTime:   s.End.Format("15:04"),
		})
	}
	return out, nil
}

func (l *Local) engineFor(ctx context.Context, businessID, serviceID string) (*availability.Engine, error) {
	params, err := l.dir.AvailabilityParams(ctx, businessID, serviceID)
	if err != nil {
		return nil, err
	}
	return availability.New(params)
}
