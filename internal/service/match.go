package service

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"campusride/internal/domain"
)

// Default timetable lead window: arrive between 15 and 60 minutes early.
const (
	DefaultCampus  = "IIT Campus"
	DefaultMinLead = 15 * time.Minute
	DefaultMaxLead = 60 * time.Minute
)

// MatchEngine answers read-only queries over a snapshot of rides. It never
// mutates what it is given.
type MatchEngine struct {
	campus  string
	minLead time.Duration
	maxLead time.Duration
	now     func() time.Time
}

// NewMatchEngine creates a MatchEngine for the given campus and lead window.
func NewMatchEngine(campus string, minLead, maxLead time.Duration) *MatchEngine {
	if campus == "" {
		campus = DefaultCampus
	}
	if maxLead <= 0 {
		minLead, maxLead = DefaultMinLead, DefaultMaxLead
	}
	return &MatchEngine{
		campus:  campus,
		minLead: minLead,
		maxLead: maxLead,
		now:     time.Now,
	}
}

// SearchFilters narrows a search. Zero values do not filter.
type SearchFilters struct {
	Query       string // matches start or destination
	Start       string
	Destination string
	FemaleOnly  bool // only rides restricted to female riders
	Vibe        domain.Vibe
	Status      domain.RideStatus
}

// ParseVibeFilter accepts a vibe name, or "all"/"" for no filter.
func ParseVibeFilter(s string) (domain.Vibe, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "all" {
		return "", nil
	}
	v := domain.Vibe(s)
	if !v.Valid() {
		return "", validationError("search rides", "ride", fmt.Sprintf("unknown vibe %q", s))
	}
	return v, nil
}

func (f SearchFilters) matches(r *domain.Ride) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.FemaleOnly && !r.FemaleOnly {
		return false
	}
	if f.Vibe != "" && r.Vibe != f.Vibe {
		return false
	}
	if f.Start != "" && !containsFold(r.Location.Start, f.Start) {
		return false
	}
	if f.Destination != "" && !containsFold(r.Location.Destination, f.Destination) {
		return false
	}
	if f.Query != "" && !containsFold(r.Location.Start, f.Query) && !containsFold(r.Location.Destination, f.Query) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(substr)))
}

// Search returns the rides matching f ordered by departure, earlier first,
// with ties going to the more trusted driver. Nothing is evaluated until the
// sequence is ranged over, and every range starts from the beginning.
func (m *MatchEngine) Search(rides []*domain.Ride, f SearchFilters, trust map[string]float64) iter.Seq[*domain.Ride] {
	snapshot := slices.Clone(rides)
	return func(yield func(*domain.Ride) bool) {
		matched := make([]*domain.Ride, 0, len(snapshot))
		for _, r := range snapshot {
			if f.matches(r) {
				matched = append(matched, r)
			}
		}
		slices.SortStableFunc(matched, func(a, b *domain.Ride) int {
			if c := a.DateTime.Compare(b.DateTime); c != 0 {
				return c
			}
			return cmp.Compare(trust[b.DriverID], trust[a.DriverID])
		})
		for _, r := range matched {
			if !yield(r) {
				return
			}
		}
	}
}

// Suggestion pairs a class with the ride that gets the rider there in time.
type Suggestion struct {
	Entry       domain.TimetableEntry
	ClassStart  time.Time
	Ride        *domain.Ride
	DriverTrust float64
}

// SuggestForTimetable picks at most one ride per class: a scheduled ride to
// campus with a free seat that departs inside the lead window before the
// class's next occurrence. The most trusted driver wins, then the earliest
// departure. Classes with no candidate are left out.
func (m *MatchEngine) SuggestForTimetable(timetable []domain.TimetableEntry, rides []*domain.Ride, trust map[string]float64) ([]Suggestion, error) {
	now := m.now()

	starts := make([]time.Time, len(timetable))
	for i, entry := range timetable {
		start, err := NextClassStart(entry, now)
		if err != nil {
			return nil, err
		}
		starts[i] = start
	}

	var suggestions []Suggestion
	for i, entry := range timetable {
		earliest := starts[i].Add(-m.maxLead)
		latest := starts[i].Add(-m.minLead)

		var best *domain.Ride
		for _, r := range rides {
			if r.Status != domain.RideStatusScheduled || r.SeatsAvailable < 1 {
				continue
			}
			if !containsFold(r.Location.Destination, m.campus) {
				continue
			}
			if r.DateTime.Before(now) || r.DateTime.Before(earliest) || r.DateTime.After(latest) {
				continue
			}
			if best == nil || betterSuggestion(r, best, trust) {
				best = r
			}
		}
		if best == nil {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Entry:       entry,
			ClassStart:  starts[i],
			Ride:        best,
			DriverTrust: trust[best.DriverID],
		})
	}
	return suggestions, nil
}

func betterSuggestion(a, b *domain.Ride, trust map[string]float64) bool {
	ta, tb := trust[a.DriverID], trust[b.DriverID]
	if ta != tb {
		return ta > tb
	}
	if !a.DateTime.Equal(b.DateTime) {
		return a.DateTime.Before(b.DateTime)
	}
	return a.ID < b.ID
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

var classTimeLayouts = []string{"3:04 PM", "3:04PM", "15:04"}

// NextClassStart resolves a weekly entry to its first occurrence strictly
// after now, in now's location.
func NextClassStart(entry domain.TimetableEntry, now time.Time) (time.Time, error) {
	const op = "suggest rides"

	day, ok := weekdays[strings.ToLower(strings.TrimSpace(entry.Day))]
	if !ok {
		return time.Time{}, validationError(op, "timetable", fmt.Sprintf("unknown day %q", entry.Day))
	}

	var clock time.Time
	var err error
	raw := strings.ToUpper(strings.TrimSpace(entry.Time))
	for _, layout := range classTimeLayouts {
		if clock, err = time.Parse(layout, raw); err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, validationError(op, "timetable", fmt.Sprintf("unreadable time %q", entry.Time))
	}

	start := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, now.Location())
	offset := (int(day) - int(now.Weekday()) + 7) % 7
	start = start.AddDate(0, 0, offset)
	if !start.After(now) {
		start = start.AddDate(0, 0, 7)
	}
	return start, nil
}
