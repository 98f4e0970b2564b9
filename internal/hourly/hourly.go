// Package hourly selects and groups the hourly forecast window shown to the user.
package hourly

import (
	"strings"
	"time"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/i18n"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/models"
)

// Range is the display window mode.
type Range int

const (
	// Range24 shows the rest of today and all of tomorrow.
	Range24 Range = 24
	// Range48 shows the first 48 entries of the series.
	Range48 Range = 48
)

const (
	dateLayout = "2006-01-02"
	hourLayout = "15:04"
)

// ParseRange maps "24"/"48" to a Range. Anything else is Range24.
func ParseRange(s string) Range {
	if strings.TrimSpace(s) == "48" {
		return Range48
	}
	return Range24
}

// Hour is one hourly entry with its local wall-clock label.
type Hour struct {
	models.HourlyEntry
	Time string `json:"time"`
}

// DayGroup is the run of hours that fall on one local calendar day.
type DayGroup struct {
	Date  string `json:"date"`
	Label string `json:"label"`
	Hours []Hour `json:"hours"`
}

// Select filters series per mode and groups the result by local calendar day,
// in order of first appearance. series must be ascending; it is not modified.
func Select(series []models.HourlyEntry, mode Range, now time.Time, loc *time.Location, table *i18n.Table) []DayGroup {
	if loc == nil {
		loc = time.UTC
	}
	window := filter(series, mode, now.In(loc))
	return group(window, now.In(loc), loc, table)
}

func filter(series []models.HourlyEntry, mode Range, now time.Time) []models.HourlyEntry {
	if mode != Range24 {
		n := len(series)
		if n > int(Range48) {
			n = int(Range48)
		}
		return series[:n]
	}
	y, m, d := now.Date()
	end := time.Date(y, m, d+1, 23, 59, 59, 0, now.Location())
	var out []models.HourlyEntry
	for _, e := range series {
		t := time.Unix(e.Dt, 0)
		if t.After(now) && !t.After(end) {
			out = append(out, e)
		}
	}
	return out
}

func group(entries []models.HourlyEntry, now time.Time, loc *time.Location, table *i18n.Table) []DayGroup {
	y, m, d := now.Date()
	today := now.Format(dateLayout)
	tomorrow := time.Date(y, m, d+1, 12, 0, 0, 0, loc).Format(dateLayout)

	var groups []DayGroup
	index := make(map[string]int)
	for _, e := range entries {
		t := time.Unix(e.Dt, 0).In(loc)
		date := t.Format(dateLayout)
		i, ok := index[date]
		if !ok {
			i = len(groups)
			index[date] = i
			groups = append(groups, DayGroup{Date: date, Label: dayLabel(date, today, tomorrow, t.Weekday(), table)})
		}
		groups[i].Hours = append(groups[i].Hours, Hour{HourlyEntry: e, Time: t.Format(hourLayout)})
	}
	return groups
}

func dayLabel(date, today, tomorrow string, wd time.Weekday, table *i18n.Table) string {
	switch date {
	case today:
		return table.Phrase(i18n.PhraseToday)
	case tomorrow:
		return table.Phrase(i18n.PhraseTomorrow)
	default:
		return table.Weekday(wd)
	}
}
