package persistence

import "time"

// DayEntry is the stored form of one day. Times use HH:mm.
type DayEntry struct {
	Working   bool    `json:"working"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
}

// AvailabilitySchedule is the stored availability aggregate of one user.
// Weekly is keyed by MONDAY..SUNDAY, Overrides by YYYY-MM-DD.
type AvailabilitySchedule struct {
	ID        string
	UserID    string
	Weekly    map[string]DayEntry
	Overrides map[string]DayEntry
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so stores never share maps with callers.
func (s AvailabilitySchedule) Clone() AvailabilitySchedule {
	out := s
	out.Weekly = cloneEntries(s.Weekly)
	out.Overrides = cloneEntries(s.Overrides)
	return out
}

func cloneEntries(in map[string]DayEntry) map[string]DayEntry {
	out := make(map[string]DayEntry, len(in))
	for key, entry := range in {
		out[key] = entry.Clone()
	}
	return out
}

// Clone copies the optional times.
func (e DayEntry) Clone() DayEntry {
	out := DayEntry{Working: e.Working}
	if e.StartTime != nil {
		v := *e.StartTime
		out.StartTime = &v
	}
	if e.EndTime != nil {
		v := *e.EndTime
		out.EndTime = &v
	}
	return out
}
