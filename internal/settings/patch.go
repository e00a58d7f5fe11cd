package settings

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Patch is a partial settings write. A nil field is absent and leaves the
// stored value untouched; a present field replaces the stored value in full.
type Patch struct {
	CustomMessage *string       `json:"customMessage,omitempty"`
	OpeningHours  *OpeningHours `json:"openingHours,omitempty"`
	Services      *[]string     `json:"services,omitempty"`
	Menu          *Menu         `json:"menu,omitempty"`
}

// FullPatch returns a patch carrying every top-level field of s.
func FullPatch(s Settings) Patch {
	s = s.Clone()
	return Patch{
		CustomMessage: &s.CustomMessage,
		OpeningHours:  &s.OpeningHours,
		Services:      &s.Services,
		Menu:          &s.Menu,
	}
}

// Empty reports whether the patch carries no field.
func (p Patch) Empty() bool {
	return p.CustomMessage == nil && p.OpeningHours == nil && p.Services == nil && p.Menu == nil
}

// Keys returns the top-level keys present in the patch.
func (p Patch) Keys() []string {
	keys := make([]string, 0, 4)
	if p.CustomMessage != nil {
		keys = append(keys, "customMessage")
	}
	if p.OpeningHours != nil {
		keys = append(keys, "openingHours")
	}
	if p.Services != nil {
		keys = append(keys, "services")
	}
	if p.Menu != nil {
		keys = append(keys, "menu")
	}
	return keys
}

// Fields encodes each present field separately, keyed by its JSON name.
func (p Patch) Fields() (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage, 4)
	add := func(key string, value any) error {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		fields[key] = raw
		return nil
	}
	if p.CustomMessage != nil {
		if err := add("customMessage", *p.CustomMessage); err != nil {
			return nil, err
		}
	}
	if p.OpeningHours != nil {
		if err := add("openingHours", *p.OpeningHours); err != nil {
			return nil, err
		}
	}
	if p.Services != nil {
		services := *p.Services
		if services == nil {
			services = []string{}
		}
		if err := add("services", services); err != nil {
			return nil, err
		}
	}
	if p.Menu != nil {
		menu := *p.Menu
		if menu == nil {
			menu = Menu{}
		}
		if err := add("menu", menu); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// Apply returns s with every present field of p replacing the one in s.
func (p Patch) Apply(s Settings) Settings {
	out := s.Clone()
	if p.CustomMessage != nil {
		out.CustomMessage = *p.CustomMessage
	}
	if p.OpeningHours != nil {
		out.OpeningHours = *p.OpeningHours
	}
	if p.Services != nil {
		out.Services = slices.Clone(*p.Services)
		if out.Services == nil {
			out.Services = []string{}
		}
	}
	if p.Menu != nil {
		out.Menu = p.Menu.Clone()
	}
	return out
}
