package settings

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestDefaultHasLiteralShape(t *testing.T) {
	def := Default()
	if def.CustomMessage != DefaultMessage {
		t.Fatalf("unexpected message %q", def.CustomMessage)
	}
	want := map[string]int{
		CategoryHotDrinks:     8,
		CategoryColdDrinks:    7,
		CategorySweetTreats:   7,
		CategorySavouryTreats: 7,
	}
	for category, count := range want {
		if got := len(def.Menu[category]); got != count {
			t.Fatalf("%s: expected %d items, got %d", category, count, got)
		}
	}
	if !reflect.DeepEqual(def.Services, []string{"Dine-in", "Takeaway"}) {
		t.Fatalf("unexpected services %v", def.Services)
	}
	if def.OpeningHours.Sunday != "Closed" {
		t.Fatalf("unexpected sunday hours %q", def.OpeningHours.Sunday)
	}
}

func TestDefaultJSONFieldNames(t *testing.T) {
	raw, err := json.Marshal(Default())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"customMessage", "openingHours", "services", "menu"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("missing key %s in %s", key, raw)
		}
	}
}

func TestMenuCategoriesOrdersFixedFirst(t *testing.T) {
	menu := Menu{
		"Brunch":            {},
		CategorySweetTreats: {},
		CategoryHotDrinks:   {},
		"Alcohol":           {},
	}
	got := menu.Categories()
	want := []string{CategoryHotDrinks, CategorySweetTreats, "Alcohol", "Brunch"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Categories() = %v, want %v", got, want)
	}
}

func TestMenuItemsMissingCategoryIsEmpty(t *testing.T) {
	items := Menu{}.Items(CategoryColdDrinks)
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", items)
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := Default()
	clone := original.Clone()
	clone.Menu[CategoryHotDrinks][0].Name = "Changed"
	clone.Services[0] = "Changed"
	if original.Menu[CategoryHotDrinks][0].Name != "Espresso" {
		t.Fatal("menu items shared between clone and original")
	}
	if original.Services[0] != ServiceDineIn {
		t.Fatal("services shared between clone and original")
	}
}

func TestPatchApplyReplacesPresentFieldsOnly(t *testing.T) {
	base := Default()
	services := []string{}
	menu := Menu{CategoryHotDrinks: {{Name: "Flat White", Price: "£3.60"}}}
	patch := Patch{Services: &services, Menu: &menu}

	got := patch.Apply(base)

	if got.CustomMessage != base.CustomMessage {
		t.Fatalf("message changed: %q", got.CustomMessage)
	}
	if got.OpeningHours != base.OpeningHours {
		t.Fatalf("hours changed: %+v", got.OpeningHours)
	}
	if len(got.Services) != 0 {
		t.Fatalf("expected services replaced by empty list, got %v", got.Services)
	}
	if len(got.Menu) != 1 || len(got.Menu[CategoryHotDrinks]) != 1 {
		t.Fatalf("expected menu replaced wholesale, got %v", got.Menu)
	}
}

func TestPatchFieldsEncodesEmptyServices(t *testing.T) {
	services := []string(nil)
	fields, err := Patch{Services: &services}.Fields()
	if err != nil {
		t.Fatalf("Fields() error = %v", err)
	}
	if string(fields["services"]) != "[]" {
		t.Fatalf("expected [] for empty services, got %s", fields["services"])
	}
	if len(fields) != 1 {
		t.Fatalf("expected one field, got %v", fields)
	}
}

func TestServicesFromToggles(t *testing.T) {
	cases := []struct {
		name     string
		dineIn   bool
		takeaway bool
		want     []string
	}{
		{name: "both", dineIn: true, takeaway: true, want: []string{ServiceDineIn, ServiceTakeaway}},
		{name: "dine-in only", dineIn: true, want: []string{ServiceDineIn}},
		{name: "takeaway only", takeaway: true, want: []string{ServiceTakeaway}},
		{name: "none", want: []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ServicesFromToggles(tc.dineIn, tc.takeaway); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ServicesFromToggles() = %v, want %v", got, tc.want)
			}
		})
	}
}
