package routing

import (
	"time"
	_ "time/tzdata" // scratch images ship without zoneinfo

	"github.com/edgelink/shortener/internal/model"
)

func matchTime(rules []model.TimeRule, now time.Time) (string, bool) {
	for _, rule := range rules {
		if rule.Destination == "" {
			continue
		}
		if InWindow(rule, now) {
			return rule.Destination, true
		}
	}
	return "", false
}

// InWindow reports whether now falls inside the rule, evaluated in the rule's
// timezone. A rule with an unknown timezone or out-of-range hours never
// matches.
func InWindow(rule model.TimeRule, now time.Time) bool {
	if !validHours(rule.StartHour, rule.EndHour) {
		return false
	}

	loc, err := location(rule.Timezone)
	if err != nil {
		return false
	}
	local := now.In(loc)

	if len(rule.Days) > 0 && !containsDay(rule.Days, isoWeekday(local.Weekday())) {
		return false
	}

	hour := local.Hour()
	switch {
	case rule.StartHour == rule.EndHour:
		return true
	case rule.StartHour < rule.EndHour:
		return hour >= rule.StartHour && hour < rule.EndHour
	default:
		return hour >= rule.StartHour || hour < rule.EndHour
	}
}

func validHours(start, end int) bool {
	return start >= 0 && start <= 23 && end >= 0 && end <= 24
}

func location(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// isoWeekday maps Sunday=0 to 7 so that Monday is 1.
func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
