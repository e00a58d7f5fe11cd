// Package settings defines the café settings document and its fixed vocabularies.
package settings

import (
	"slices"
	"sort"
)

// Collection and Key address the single settings document.
const (
	Collection = "admin"
	Key        = "settings"
)

// Services offered by the café. The vocabulary is closed.
const (
	ServiceDineIn   = "Dine-in"
	ServiceTakeaway = "Takeaway"
)

// Menu categories in display order.
const (
	CategoryHotDrinks     = "Hot Drinks"
	CategoryColdDrinks    = "Cold Drinks"
	CategorySweetTreats   = "Sweet Treats"
	CategorySavouryTreats = "Savoury Treats"
)

// Categories lists the fixed menu categories in display order.
var Categories = []string{
	CategoryHotDrinks,
	CategoryColdDrinks,
	CategorySweetTreats,
	CategorySavouryTreats,
}

// ServiceOptions lists the closed service vocabulary in the order services are stored.
var ServiceOptions = []string{ServiceDineIn, ServiceTakeaway}

// Settings is the homepage content and menu document.
type Settings struct {
	CustomMessage string       `json:"customMessage"`
	OpeningHours  OpeningHours `json:"openingHours"`
	Services      []string     `json:"services"`
	Menu          Menu         `json:"menu"`
}

// OpeningHours holds free-text display strings for the three opening periods.
type OpeningHours struct {
	MondayToFriday string `json:"mondayToFriday"`
	Saturday       string `json:"saturday"`
	Sunday         string `json:"sunday"`
}

// MenuItem is a single menu entry. Price is a display string.
type MenuItem struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

// Menu maps a category name to its ordered items.
type Menu map[string][]MenuItem

// IsCategory reports whether name is one of the fixed categories.
func IsCategory(name string) bool {
	return slices.Contains(Categories, name)
}

// Items returns the items of a category; a missing category is empty.
func (m Menu) Items(category string) []MenuItem {
	items := m[category]
	if items == nil {
		return []MenuItem{}
	}
	return items
}

// Categories returns the categories present in the menu: fixed ones first in
// display order, then any other keys sorted by name.
func (m Menu) Categories() []string {
	out := make([]string, 0, len(m))
	for _, category := range Categories {
		if _, ok := m[category]; ok {
			out = append(out, category)
		}
	}
	extras := make([]string, 0)
	for category := range m {
		if !IsCategory(category) {
			extras = append(extras, category)
		}
	}
	sort.Strings(extras)
	return append(out, extras...)
}

// Clone returns a deep copy of the menu.
func (m Menu) Clone() Menu {
	if m == nil {
		return Menu{}
	}
	out := make(Menu, len(m))
	for category, items := range m {
		out[category] = slices.Clone(items)
		if out[category] == nil {
			out[category] = []MenuItem{}
		}
	}
	return out
}

// Clone returns a deep copy of the settings.
func (s Settings) Clone() Settings {
	out := s
	out.Services = slices.Clone(s.Services)
	if out.Services == nil {
		out.Services = []string{}
	}
	out.Menu = s.Menu.Clone()
	return out
}

// Normalized fills nil collections so a stored document missing keys is
// still a complete value.
func (s Settings) Normalized() Settings {
	if s.Services == nil {
		s.Services = []string{}
	}
	if s.Menu == nil {
		s.Menu = Menu{}
	}
	return s
}

// HasService reports whether the named service is enabled.
func (s Settings) HasService(name string) bool {
	return slices.Contains(s.Services, name)
}

// ServicesFromToggles derives the enabled services from the two toggles.
func ServicesFromToggles(dineIn, takeaway bool) []string {
	services := make([]string, 0, len(ServiceOptions))
	if dineIn {
		services = append(services, ServiceDineIn)
	}
	if takeaway {
		services = append(services, ServiceTakeaway)
	}
	return services
}
