package availability

import (
	"fmt"
	"sort"
	"time"
)

// WeekdayHours is one recurring open interval for a weekday.
// Weekday follows ISO numbering: 1=Monday .. 7=Sunday. A weekday may appear
// more than once to model split shifts; intervals on the same day must not
// overlap.
type WeekdayHours struct {
	Weekday int    `json:"weekday"`
	Start   string `json:"start"` // "HH:mm", 24h
	End     string `json:"end"`   // "HH:mm"; "24:00" means close at midnight
}

// minutes since midnight
type clockTime int

// parseClock accepts zero-padded 24h "HH:mm" only; time.Parse is too lenient
// (it takes "9:30" for layout "15:04").
func parseClock(s string) (clockTime, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time %q: want HH:mm", s)
	}
	for i, c := range s {
		if i == 2 {
			continue
		}
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid time %q: want HH:mm", s)
		}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	// "24:00" is a valid close time (a stored end_minute of 1440). It can
	// never be a start: NewSchedule requires start < end and nothing exceeds
	// 1440.
	if h == 24 && m == 0 {
		return clockTime(24 * 60), nil
	}
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: want HH:mm", s)
	}
	return clockTime(h*60 + m), nil
}

type window struct {
	start clockTime
	end   clockTime
}

// Schedule is the validated weekly recurring schedule. Windows per weekday
// are sorted and pairwise disjoint.
type Schedule struct {
	days [8][]window // index 1..7
}

func NewSchedule(hours []WeekdayHours) (*Schedule, error) {
	s := &Schedule{}
	for _, h := range hours {
		if h.Weekday < 1 || h.Weekday > 7 {
			return nil, fmt.Errorf("weekday %d out of range 1..7", h.Weekday)
		}
		start, err := parseClock(h.Start)
		if err != nil {
			return nil, err
		}
		end, err := parseClock(h.End)
		if err != nil {
			return nil, err
		}
		if start >= end {
			return nil, fmt.Errorf("weekday %d: start %s must be before end %s", h.Weekday, h.Start, h.End)
		}
		s.days[h.Weekday] = append(s.days[h.Weekday], window{start: start, end: end})
	}

	for wd := 1; wd <= 7; wd++ {
		ws := s.days[wd]
		sort.Slice(ws, func(i, j int) bool { return ws[i].start < ws[j].start })
		for i := 1; i < len(ws); i++ {
			if ws[i].start < ws[i-1].end {
				return nil, fmt.Errorf("weekday %d: overlapping working hours", wd)
			}
		}
	}
	return s, nil
}

func (s *Schedule) windowsOn(weekday int) []window {
	if weekday < 1 || weekday > 7 {
		return nil
	}
	return s.days[weekday]
}

// isoWeekday maps Go's Sunday-based weekday to 1=Monday .. 7=Sunday.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
