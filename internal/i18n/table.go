package i18n

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Phrase names every table must define.
const (
	PhraseExpect           = "expect"
	PhraseThroughoutTheDay = "throughout_the_day"
	PhraseToday            = "today"
	PhraseTomorrow         = "tomorrow"
)

// Label groups.
const (
	GroupRoad       = "road"
	GroupUV         = "uv"
	GroupAirQuality = "air_quality"
)

// Entry is the display form of one condition. Genitive equals Nominative for
// languages without grammatical case.
type Entry struct {
	Nominative string `yaml:"nominative"`
	Genitive   string `yaml:"genitive"`
}

// Table is the static translation data for one language. It is immutable after
// ParseTable and safe for concurrent use.
type Table struct {
	lang       string
	tag        language.Tag
	phrases    map[string]string
	weekdays   [7]string
	labels     map[string]map[string]string
	conditions map[string]Entry
	alerts     map[string]string
}

type tableFile struct {
	Language   string                       `yaml:"language"`
	Phrases    map[string]string            `yaml:"phrases"`
	Weekdays   []string                     `yaml:"weekdays"`
	Labels     map[string]map[string]string `yaml:"labels"`
	Conditions map[string]Entry             `yaml:"conditions"`
	Alerts     map[string]string            `yaml:"alerts"`
}

// ParseTable decodes a YAML translation table. Condition keys are case-folded;
// alert keys are kept verbatim because alert matching is exact.
func ParseTable(data []byte) (*Table, error) {
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse translation table: %w", err)
	}
	tag, err := language.Parse(tf.Language)
	if err != nil {
		return nil, fmt.Errorf("translation table language %q: %w", tf.Language, err)
	}
	if len(tf.Weekdays) != 7 {
		return nil, fmt.Errorf("translation table %s: want 7 weekdays, got %d", tf.Language, len(tf.Weekdays))
	}
	for _, p := range []string{PhraseExpect, PhraseThroughoutTheDay, PhraseToday, PhraseTomorrow} {
		if strings.TrimSpace(tf.Phrases[p]) == "" {
			return nil, fmt.Errorf("translation table %s: missing phrase %q", tf.Language, p)
		}
	}

	t := &Table{
		lang:       tag.String(),
		tag:        tag,
		phrases:    tf.Phrases,
		labels:     tf.Labels,
		conditions: make(map[string]Entry, len(tf.Conditions)),
		alerts:     tf.Alerts,
	}
	copy(t.weekdays[:], tf.Weekdays)
	for k, e := range tf.Conditions {
		if e.Genitive == "" {
			e.Genitive = e.Nominative
		}
		t.conditions[fold(k)] = e
	}
	if t.alerts == nil {
		t.alerts = map[string]string{}
	}
	return t, nil
}

// Language returns the BCP-47 tag of the table, e.g. "pl".
func (t *Table) Language() string { return t.lang }

// Tag returns the parsed language tag.
func (t *Table) Tag() language.Tag { return t.tag }

// Entry looks up a condition key case-insensitively.
func (t *Table) Entry(key string) (Entry, bool) {
	e, ok := t.conditions[fold(key)]
	return e, ok
}

// Lookup returns the nominative display string for key, or key itself when the
// table has no entry. It never returns an empty string for a non-empty key.
func (t *Table) Lookup(key string) string {
	if e, ok := t.Entry(key); ok && e.Nominative != "" {
		return e.Nominative
	}
	return key
}

// Phrase returns a named template phrase, or the name when undefined.
func (t *Table) Phrase(name string) string {
	if p, ok := t.phrases[name]; ok && p != "" {
		return p
	}
	return name
}

// Weekday returns the localized name of d.
func (t *Table) Weekday(d time.Weekday) string {
	return t.weekdays[int(d)%7]
}

// Label returns the localized label for key within group (road, uv, air_quality),
// or key when missing.
func (t *Table) Label(group, key string) string {
	if l, ok := t.labels[group][key]; ok && l != "" {
		return l
	}
	return key
}

// AlertLabel returns the exact-match alert label.
func (t *Table) AlertLabel(event string) (string, bool) {
	l, ok := t.alerts[event]
	return l, ok
}

// Capitalize upper-cases the first letter of s using the table's casing rules.
func (t *Table) Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return cases.Upper(t.tag).String(string(r)) + s[size:]
}

// fold builds a fresh Caser per call: Casers carry state and must not be shared.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
