package match

import (
	"strings"

	"github.com/sells-group/comps-cli/internal/model"
)

// Template is an ordered list of attribute keys (see model.Attr*). A key with
// a leading "#" renders as "#"+value.
type Template []string

// DefaultTemplates maps categories to their built-in query templates.
var DefaultTemplates = map[string]Template{
	"pokemon":    {model.AttrCategory, model.AttrSetName, model.AttrName, "#" + model.AttrNumber},
	"magic":      {model.AttrName, model.AttrSetName, "#" + model.AttrNumber},
	"yugioh":     {model.AttrName, model.AttrSetName, model.AttrNumber},
	"baseball":   sportsTemplate,
	"basketball": sportsTemplate,
	"football":   sportsTemplate,
	"hockey":     sportsTemplate,
	"soccer":     sportsTemplate,
	"sports":     sportsTemplate,
}

var sportsTemplate = Template{
	model.AttrYear, model.AttrSetName, model.AttrPlayer, "#" + model.AttrNumber, model.AttrTeam, model.AttrSport,
}

// FallbackTemplate is used for categories without a template.
var FallbackTemplate = Template{model.AttrYear, model.AttrSetName, model.AttrName, "#" + model.AttrNumber}

// QueryBuilder renders catalog items into marketplace search strings.
type QueryBuilder struct {
	templates map[string]Template
}

// NewQueryBuilder creates a builder using DefaultTemplates, with overrides
// taking precedence per category. Category keys are case-insensitive.
func NewQueryBuilder(overrides map[string][]string) *QueryBuilder {
	templates := make(map[string]Template, len(DefaultTemplates)+len(overrides))
	for k, v := range DefaultTemplates {
		templates[k] = v
	}
	for k, v := range overrides {
		if len(v) > 0 {
			templates[strings.ToLower(k)] = Template(v)
		}
	}
	return &QueryBuilder{templates: templates}
}

// TemplateFor returns the template used for category.
func (qb *QueryBuilder) TemplateFor(category string) Template {
	if t, ok := qb.templates[strings.ToLower(category)]; ok {
		return t
	}
	return FallbackTemplate
}

// Build returns the search string for item. It is a pure function of the
// item: attributes are emitted in template order, each key at most once,
// values repeated under another key are dropped, and missing attributes are
// omitted.
func (qb *QueryBuilder) Build(item model.CatalogItem) string {
	seenKeys := make(map[string]bool)
	seenValues := make(map[string]bool)
	parts := make([]string, 0, 8)

	for _, key := range qb.TemplateFor(item.Category) {
		prefix := ""
		if strings.HasPrefix(key, "#") {
			prefix = "#"
			key = key[1:]
		}
		if seenKeys[key] {
			continue
		}
		seenKeys[key] = true

		value := strings.Join(strings.Fields(item.Attr(key)), " ")
		if key == model.AttrNumber {
			value = strings.TrimPrefix(value, "#")
		}
		if value == "" {
			continue
		}
		norm := strings.ToLower(value)
		if seenValues[norm] {
			continue
		}
		seenValues[norm] = true
		parts = append(parts, prefix+value)
	}

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
