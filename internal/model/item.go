package model

import "strconv"

// ItemState tracks a catalog item through one pipeline run.
type ItemState string

const (
	StatePending     ItemState = "pending"
	StateFetching    ItemState = "fetching"
	StateScoring     ItemState = "scoring"
	StateAggregating ItemState = "aggregating"
	StatePersisted   ItemState = "persisted"
	StateSkipped     ItemState = "skipped" // no samples survived segmentation
	StateFailed      ItemState = "failed"
)

// Terminal reports whether the state ends an item's run.
func (s ItemState) Terminal() bool {
	switch s {
	case StatePersisted, StateSkipped, StateFailed:
		return true
	default:
		return false
	}
}

// CatalogItem is a canonical catalog entry. It is owned by the catalog and
// treated as read-only by the sync pipeline.
type CatalogItem struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Name     string `json:"name,omitempty"`
	SetName  string `json:"set_name,omitempty"`
	Number   string `json:"number,omitempty"`
	Year     int    `json:"year,omitempty"`
	Player   string `json:"player,omitempty"`
	Team     string `json:"team,omitempty"`
	Sport    string `json:"sport,omitempty"`
}

// Attribute keys accepted by Attr and by query templates.
const (
	AttrCategory = "category"
	AttrName     = "name"
	AttrSetName  = "set_name"
	AttrNumber   = "number"
	AttrYear     = "year"
	AttrPlayer   = "player"
	AttrTeam     = "team"
	AttrSport    = "sport"
)

// Attr returns the display attribute named by key, or "" when the item has
// no value for it.
func (c CatalogItem) Attr(key string) string {
	switch key {
	case AttrCategory:
		return c.Category
	case AttrName:
		return c.Name
	case AttrSetName:
		return c.SetName
	case AttrNumber:
		return c.Number
	case AttrYear:
		if c.Year <= 0 {
			return ""
		}
		return strconv.Itoa(c.Year)
	case AttrPlayer:
		return c.Player
	case AttrTeam:
		return c.Team
	case AttrSport:
		return c.Sport
	default:
		return ""
	}
}
