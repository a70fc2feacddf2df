package bookingclient

import "context"

// Fallback tries the primary client and silently recomputes via the
// secondary when the primary fails for any reason, transport or HTTP. When
// the secondary fails too, the primary's error wins; it names the real
// outage rather than a directory gap.
type Fallback struct {
	primary   Client
	secondary Client
}

func NewFallback(primary, secondary Client) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) MonthAvailability(ctx context.Context, q MonthQuery) (MonthAvailability, error) {
	out, err := f.primary.MonthAvailability(ctx, q)
	if err == nil {
		return out, nil
	}
	fallback, ferr := f.secondary.MonthAvailability(ctx, q)
	if ferr != nil {
		return MonthAvailability{}, err
	}
	return fallback, nil
}

func (f *Fallback) DayAvailability(ctx context.Context, q DayQuery) (DayAvailability, error) {
	out, err := f.primary.DayAvailability(ctx, q)
	if err == nil {
		return out, nil
	}
	fallback, ferr := f.secondary.DayAvailability(ctx, q)
	if ferr != nil {
		return DayAvailability{}, err
	}
	return fallback, nil
}
