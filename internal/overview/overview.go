// Package overview turns a provider condition description into a localized
// one-sentence day overview.
package overview

import (
	"strings"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/i18n"
	"github.com/FoerchByte/foerch-weather-station-sub000/internal/observability"
)

// Generate renders "{Expect} {genitive} {throughout the day}." for descriptions
// the table knows, and the capitalized description verbatim otherwise.
// The result is non-empty for every non-empty description.
func Generate(description string, table *i18n.Table) string {
	entry, ok := table.Entry(description)
	if !ok {
		observability.RecordTranslationMiss(table.Language(), "condition")
		return table.Capitalize(description)
	}
	if entry.Genitive == "" {
		return table.Capitalize(entry.Nominative)
	}
	sentence := strings.Join([]string{
		table.Phrase(i18n.PhraseExpect),
		entry.Genitive,
		table.Phrase(i18n.PhraseThroughoutTheDay),
	}, " ")
	return table.Capitalize(sentence) + "."
}
