package alerts

import (
	"time"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/i18n"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/models"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/observability"
)

// WindowLayout formats an alert's validity bounds, e.g. "02.01 15:04".
const WindowLayout = "02.01 15:04"

// Label maps a provider alert event ("Yellow Thunderstorm warning") to its
// localized label. The table is exact-match; unknown events pass through.
func Label(event string, table *i18n.Table) string {
	if l, ok := table.AlertLabel(event); ok {
		return l
	}
	if event != "" {
		observability.RecordTranslationMiss(table.Language(), "alert")
	}
	return event
}

// Localize labels each alert and formats its window in loc, keeping provider order.
func Localize(alerts []models.Alert, table *i18n.Table, loc *time.Location) []models.LocalizedAlert {
	if len(alerts) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	out := make([]models.LocalizedAlert, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, models.LocalizedAlert{
			Alert:     a,
			Label:     Label(a.Event, table),
			StartText: formatEpoch(a.Start, loc),
			EndText:   formatEpoch(a.End, loc),
		})
	}
	return out
}

func formatEpoch(sec int64, loc *time.Location) string {
	if sec == 0 {
		return ""
	}
	return time.Unix(sec, 0).In(loc).Format(WindowLayout)
}
