// Package persist writes price statistics into a destination table whose
// layout is discovered at run time.
package persist

import (
	"errors"
	"slices"
	"strings"
)

// ErrSchemaMismatch marks a destination table the persister cannot write to.
var ErrSchemaMismatch = errors.New("persist: schema mismatch")

// Candidate column names, in preference order.
var (
	IDCandidates       = []string{"id", "card_id", "cardid", "cardId"}
	CategoryCandidates = []string{"game", "category"}
	SegmentCandidates  = []string{"segment", "condition"}
	TouchCandidates    = []string{"updated_at", "last_run"}
)

// Column describes one destination column.
type Column struct {
	Name     string `json:"name" yaml:"name"`
	DataType string `json:"data_type" yaml:"data_type"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
}

// UniqueSet is a primary key or unique index, as an ordered column list.
type UniqueSet struct {
	Name    string   `json:"name" yaml:"name"`
	Primary bool     `json:"primary" yaml:"primary"`
	Columns []string `json:"columns" yaml:"columns"`
}

// TableProfile is everything the persister needs to know about a
// destination table.
type TableProfile struct {
	Table          string      `json:"table" yaml:"table"`
	Columns        []Column    `json:"columns" yaml:"columns"`
	UniqueSets     []UniqueSet `json:"unique_sets,omitempty" yaml:"unique_sets,omitempty"`
	IDColumn       string      `json:"id_column" yaml:"id_column"`
	CategoryColumn string      `json:"category_column,omitempty" yaml:"category_column,omitempty"`
	SegmentColumn  string      `json:"segment_column,omitempty" yaml:"segment_column,omitempty"`
	KeyColumns     []string    `json:"key_columns" yaml:"key_columns"`
	HasUnique      bool        `json:"has_unique" yaml:"has_unique"`
	ValueColumns   []string    `json:"value_columns" yaml:"value_columns"`
	TouchColumns   []string    `json:"touch_columns,omitempty" yaml:"touch_columns,omitempty"`
}

// Column returns the named column.
func (p *TableProfile) Column(name string) (Column, bool) {
	for _, c := range p.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Has reports whether the table has the named column.
func (p *TableProfile) Has(name string) bool {
	_, ok := p.Column(name)
	return ok
}

// Options tune profile resolution.
type Options struct {
	// IDColumn overrides the id candidate search.
	IDColumn string
}

// resolve fills the derived fields of a profile from its columns and
// unique sets. Without a usable unique set the key is the id column plus
// the category and segment columns when the table has them, not the id
// column alone, so each segment keeps its own row.
func (p *TableProfile) resolve(opts Options) error {
	if len(p.Columns) == 0 {
		return wrapMismatch("table %s not found or has no columns", p.Table)
	}

	if opts.IDColumn != "" {
		if !p.Has(opts.IDColumn) {
			return wrapMismatch("table %s has no configured id column %q", p.Table, opts.IDColumn)
		}
		p.IDColumn = opts.IDColumn
	} else {
		p.IDColumn = p.firstPresent(IDCandidates)
		if p.IDColumn == "" {
			return wrapMismatch("table %s has none of the id columns %s", p.Table, strings.Join(IDCandidates, ", "))
		}
	}
	p.CategoryColumn = p.firstPresent(CategoryCandidates)
	p.SegmentColumn = p.firstPresent(SegmentCandidates)

	p.KeyColumns, p.HasUnique = p.chooseKeys()
	if !p.HasUnique {
		p.KeyColumns = []string{p.IDColumn}
		if p.CategoryColumn != "" {
			p.KeyColumns = append(p.KeyColumns, p.CategoryColumn)
		}
		if p.SegmentColumn != "" {
			p.KeyColumns = append(p.KeyColumns, p.SegmentColumn)
		}
	}

	p.ValueColumns = nil
	for _, name := range valueColumnOrder {
		if p.Has(name) && !slices.Contains(p.KeyColumns, name) {
			p.ValueColumns = append(p.ValueColumns, name)
		}
	}
	p.TouchColumns = nil
	for _, name := range TouchCandidates {
		if p.Has(name) && !slices.Contains(p.KeyColumns, name) {
			p.TouchColumns = append(p.TouchColumns, name)
		}
	}
	if len(p.ValueColumns) == 0 {
		return wrapMismatch("table %s has no writable value columns", p.Table)
	}
	return nil
}

func (p *TableProfile) firstPresent(candidates []string) string {
	for _, name := range candidates {
		if p.Has(name) {
			return name
		}
	}
	return ""
}

// chooseKeys picks the first unique set that contains the id column and
// that the persister can fill entirely, preferring one that also contains
// the category column.
func (p *TableProfile) chooseKeys() ([]string, bool) {
	fillable := func(cols []string) bool {
		for _, c := range cols {
			if c != p.IDColumn && c != p.CategoryColumn && c != p.SegmentColumn {
				return false
			}
		}
		return slices.Contains(cols, p.IDColumn)
	}

	var first []string
	for _, set := range p.UniqueSets {
		if len(set.Columns) == 0 || !fillable(set.Columns) {
			continue
		}
		if p.CategoryColumn == "" || slices.Contains(set.Columns, p.CategoryColumn) {
			return slices.Clone(set.Columns), true
		}
		if first == nil {
			first = slices.Clone(set.Columns)
		}
	}
	if first != nil {
		return first, true
	}
	return nil, false
}

// isIntegerType reports whether a declared column type holds integers.
func isIntegerType(dataType string) bool {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "integer", "int", "bigint", "smallint", "tinyint", "mediumint",
		"int2", "int4", "int8", "unsigned big int", "serial", "bigserial", "smallserial":
		return true
	}
	return false
}
