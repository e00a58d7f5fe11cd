package store

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"kisscoffee/site/internal/settings"
)

func TestMemoryFetchCreatesDefaultOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !reflect.DeepEqual(first, settings.Default()) {
		t.Fatalf("first fetch = %+v, want default document", first)
	}

	second, err := s.Fetch(ctx)
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second fetch differs from first: %+v vs %+v", second, first)
	}
}

func TestMemoryFetchConcurrentFirstReadsAgree(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]settings.Settings, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc, err := s.Fetch(ctx)
			if err != nil {
				t.Errorf("Fetch() error = %v", err)
				return
			}
			results[i] = doc
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if !reflect.DeepEqual(results[0], results[i]) {
			t.Fatalf("fetch %d diverged", i)
		}
	}
}

func TestMemorySaveMergesTopLevelFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, err := s.Fetch(ctx); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	message := "Closed for refurbishment\nBack on Monday"
	if err := s.Save(ctx, settings.Patch{CustomMessage: &message}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	want := settings.Default()
	want.CustomMessage = message
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("after merge = %+v, want %+v", got, want)
	}
}

func TestMemorySaveReplacesMenuWholesale(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	menu := settings.Menu{settings.CategoryColdDrinks: {{Name: "Lemonade", Price: "£2.00"}}}
	if err := s.Save(ctx, settings.Patch{Menu: &menu}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !reflect.DeepEqual(got.Menu, menu) {
		t.Fatalf("menu = %+v, want %+v", got.Menu, menu)
	}
	if got.Services == nil {
		t.Fatal("missing services must normalise to an empty list")
	}
}

func TestMemorySaveEmptyServicesIsStored(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	services := []string{}
	if err := s.Save(ctx, settings.Patch{Services: &services}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got.Services) != 0 {
		t.Fatalf("services = %v, want empty", got.Services)
	}
}

func TestMemoryUsersLookupIsCaseInsensitive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.UpsertUser(ctx, User{ID: "usr_1", Email: "Owner@KissCoffee.example", Role: "owner"}); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	user, err := s.GetUserByEmail(ctx, " owner@kisscoffee.example ")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if user.ID != "usr_1" {
		t.Fatalf("unexpected user %+v", user)
	}

	updated, err := s.UpsertUser(ctx, User{ID: "usr_2", Email: "owner@kisscoffee.example", Role: "editor"})
	if err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	if updated.ID != "usr_1" || updated.Role != "editor" {
		t.Fatalf("upsert should keep id and replace role, got %+v", updated)
	}

	if _, err := s.GetUserByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := opError("save", cause)
	var storeErr *Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if storeErr.Op != "save" || !errors.Is(err, cause) {
		t.Fatalf("unexpected error %v", err)
	}
	if opError("fetch", err) != err {
		t.Fatal("wrapping an *Error twice should return it unchanged")
	}
}
