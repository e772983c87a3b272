package schedule

import "strings"

// Category tags an item template. The core copies templates into items
// without interpreting them further; the tag exists so read-path
// visibility filters and normalization have one field to key on.
type Category string

const (
	CategorySupplement Category = "supplement"
	CategoryMeal       Category = "meal"
	CategoryHabit      Category = "habit"
	CategoryTask       Category = "task"
	CategoryCustom     Category = "custom"
)

// Template is the caller-owned item payload stamped into materialized
// items. Meta is an opaque bag for fields the core does not model.
type Template struct {
	Name     string            `json:"name"`
	Category Category          `json:"category,omitempty"`
	Notes    string            `json:"notes,omitempty"`
	Enabled  bool              `json:"enabled"`
	Meta     map[string]string `json:"meta,omitempty"`
}

var categoryAliases = map[string]Category{
	"supplement":  CategorySupplement,
	"supplements": CategorySupplement,
	"vitamin":     CategorySupplement,
	"meal":        CategoryMeal,
	"meals":       CategoryMeal,
	"food":        CategoryMeal,
	"habit":       CategoryHabit,
	"habits":      CategoryHabit,
	"task":        CategoryTask,
	"tasks":       CategoryTask,
	"todo":        CategoryTask,
	"custom":      CategoryCustom,
}

// nameHints maps lowercase name substrings to a category for payloads
// that arrive untagged. Checked in order; first hit wins.
var nameHints = []struct {
	substr string
	cat    Category
}{
	{"vitamin", CategorySupplement},
	{"omega", CategorySupplement},
	{"magnesium", CategorySupplement},
	{"zinc", CategorySupplement},
	{"creatine", CategorySupplement},
	{"protein powder", CategorySupplement},
	{"breakfast", CategoryMeal},
	{"lunch", CategoryMeal},
	{"dinner", CategoryMeal},
	{"snack", CategoryMeal},
}

// Normalized returns the template with a canonical category.
//
// This is the single normalization pass: backends run it once at load
// time so read sites never re-derive the category heuristically.
func (t Template) Normalized() Template {
	raw := strings.ToLower(strings.TrimSpace(string(t.Category)))
	if cat, ok := categoryAliases[raw]; ok {
		t.Category = cat
		return t
	}
	name := strings.ToLower(t.Name)
	for _, h := range nameHints {
		if strings.Contains(name, h.substr) {
			t.Category = h.cat
			return t
		}
	}
	t.Category = CategoryCustom
	return t
}

// NormalizeSchedule canonicalizes every item template in place.
func NormalizeSchedule(s Schedule) {
	for k, d := range s {
		for i := range d {
			d[i].Template = d[i].Template.Normalized()
			if d[i].Type == "" {
				if d[i].PatternID != "" {
					d[i].Type = ItemPattern
				} else {
					d[i].Type = ItemManual
				}
			}
		}
		sortDay(d)
		s[k] = d
	}
}
