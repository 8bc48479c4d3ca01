package habits

import (
	"sort"

	"github.com/thebtf/cadence/pkg/models"
)

// MinPatternFrequency is the occurrence floor for emitting a recurrence pattern.
const MinPatternFrequency = 3

// ExtractPatterns groups actions by exact title and reports, per title, the
// distinct weekdays (0=Sunday) and hours of day of the event start, plus the
// number of occurrences. Titles seen fewer than MinPatternFrequency times are
// dropped. Results follow the order in which titles first appear.
//
// Weekday and hour are read in the host process's local zone, not the user's.
func ExtractPatterns(actions []models.ActionRecord) []models.RecurrencePattern {
	type group struct {
		days  map[int]bool
		hours map[int]bool
		count int
	}

	groups := make(map[string]*group)
	order := make([]string, 0)

	for _, a := range actions {
		g, ok := groups[a.EventTitle]
		if !ok {
			g = &group{days: make(map[int]bool), hours: make(map[int]bool)}
			groups[a.EventTitle] = g
			order = append(order, a.EventTitle)
		}
		start := a.EventStart.Local()
		g.days[int(start.Weekday())] = true
		g.hours[start.Hour()] = true
		g.count++
	}

	patterns := make([]models.RecurrencePattern, 0)
	for _, title := range order {
		g := groups[title]
		if g.count < MinPatternFrequency {
			continue
		}
		patterns = append(patterns, models.RecurrencePattern{
			Title:      title,
			DaysOfWeek: sortedKeys(g.days),
			HoursOfDay: sortedKeys(g.hours),
			Frequency:  g.count,
		})
	}
	return patterns
}

func sortedKeys(set map[int]bool) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
