package i18n

import (
	"embed"
	"fmt"
	"path"
	"sort"

	"golang.org/x/text/language"
)

//go:embed tables/*.yaml
var tableFS embed.FS

// Catalog selects a Table for a requested language tag.
type Catalog struct {
	tables  []*Table // tables[0] is the default
	matcher language.Matcher
}

// LoadCatalog parses the embedded tables. defaultLang names the table used when
// a request matches nothing; it must be one of the embedded languages.
func LoadCatalog(defaultLang string) (*Catalog, error) {
	entries, err := tableFS.ReadDir("tables")
	if err != nil {
		return nil, fmt.Errorf("read translation tables: %w", err)
	}
	var tables []*Table
	for _, e := range entries {
		data, err := tableFS.ReadFile(path.Join("tables", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		t, err := ParseTable(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		tables = append(tables, t)
	}
	return NewCatalog(defaultLang, tables...)
}

// NewCatalog builds a catalog from already parsed tables.
func NewCatalog(defaultLang string, tables ...*Table) (*Catalog, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("catalog: no translation tables")
	}
	def, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("catalog: default language %q: %w", defaultLang, err)
	}
	ordered := make([]*Table, 0, len(tables))
	for _, t := range tables {
		if t.Tag() == def {
			ordered = append(ordered, t)
		}
	}
	if len(ordered) == 0 {
		return nil, fmt.Errorf("catalog: no table for default language %q", defaultLang)
	}
	for _, t := range tables {
		if t.Tag() != def {
			ordered = append(ordered, t)
		}
	}
	tags := make([]language.Tag, len(ordered))
	for i, t := range ordered {
		tags[i] = t.Tag()
	}
	return &Catalog{tables: ordered, matcher: language.NewMatcher(tags)}, nil
}

// Table returns the best table for tag ("pl-PL", "en_GB", "PL"). Empty,
// unparseable or unsupported tags get the default table.
func (c *Catalog) Table(tag string) *Table {
	if tag == "" {
		return c.tables[0]
	}
	t, err := language.Parse(tag)
	if err != nil {
		return c.tables[0]
	}
	_, idx, conf := c.matcher.Match(t)
	if conf == language.No {
		return c.tables[0]
	}
	return c.tables[idx]
}

// Default returns the default table.
func (c *Catalog) Default() *Table { return c.tables[0] }

// Languages lists the supported language tags, sorted.
func (c *Catalog) Languages() []string {
	out := make([]string, len(c.tables))
	for i, t := range c.tables {
		out[i] = t.Language()
	}
	sort.Strings(out)
	return out
}
