// Package reconcile owns the admin editing state: the snapshot of the settings
// document being edited, the selected menu category and whether there are
// unsaved edits.
package reconcile

import (
	"context"
	"errors"
	"slices"
	"strings"

	"kisscoffee/site/internal/settings"
)

// ErrNotLoaded is returned by Commit before any snapshot was adopted.
var ErrNotLoaded = errors.New("no settings snapshot loaded")

// State is the lifecycle of an editing session's snapshot.
type State int

const (
	Unloaded State = iota
	Loaded
	Dirty
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Dirty:
		return "dirty"
	default:
		return "unloaded"
	}
}

// Section names the part of the document a save button writes.
type Section string

const (
	SectionMessage  Section = "message"
	SectionHours    Section = "hours"
	SectionServices Section = "services"
	SectionMenu     Section = "menu"
	SectionAll      Section = "all"
)

// Store is the settings document backend.
type Store interface {
	Fetch(ctx context.Context) (settings.Settings, error)
	Save(ctx context.Context, patch settings.Patch) error
}

// FormValues is the submitted admin editor. Rows are the item rows of
// Category as rendered; RowsPresent is false when no editor rows were part
// of the submission.
type FormValues struct {
	Message     string
	Hours       settings.OpeningHours
	DineIn      bool
	Takeaway    bool
	Category    string
	Rows        []settings.MenuItem
	RowsPresent bool
}

// Reconciler is not safe for concurrent use. Callers serialise access per
// editing session.
type Reconciler struct {
	store    Store
	state    State
	snapshot settings.Settings
	category string
}

func New(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Load fetches the document and adopts it. On failure the reconciler is left
// as it was.
func (r *Reconciler) Load(ctx context.Context) error {
	remote, err := r.store.Fetch(ctx)
	if err != nil {
		return err
	}
	r.Adopt(remote)
	return nil
}

// Adopt replaces the snapshot wholesale with remote. The selected category is
// kept, or set to the first fixed category when none is selected.
func (r *Reconciler) Adopt(remote settings.Settings) {
	r.snapshot = remote.Clone().Normalized()
	if r.category == "" {
		r.category = settings.Categories[0]
	}
	r.state = Loaded
}

func (r *Reconciler) State() State {
	return r.state
}

// Snapshot returns a copy of the current snapshot including unsaved edits.
func (r *Reconciler) Snapshot() settings.Settings {
	return r.snapshot.Clone()
}

func (r *Reconciler) CurrentCategory() string {
	return r.category
}

// SelectCategory switches the editor to name. Names outside the fixed
// categories leave the selection unchanged.
func (r *Reconciler) SelectCategory(name string) {
	if settings.IsCategory(name) {
		r.category = name
	}
}

// Items returns a copy of the items of category; unknown categories are empty.
func (r *Reconciler) Items(category string) []settings.MenuItem {
	return slices.Clone(r.snapshot.Menu.Items(category))
}

// UpsertMenuItem appends item to category, creating the category if absent.
func (r *Reconciler) UpsertMenuItem(category string, item settings.MenuItem) {
	if r.snapshot.Menu == nil {
		r.snapshot.Menu = settings.Menu{}
	}
	r.snapshot.Menu[category] = append(slices.Clone(r.snapshot.Menu[category]), item)
	r.markDirty()
}

// DeleteMenuItem removes the item at index from category. An index out of
// range or an unknown category does nothing and reports false.
func (r *Reconciler) DeleteMenuItem(category string, index int) bool {
	items := r.snapshot.Menu[category]
	if index < 0 || index >= len(items) {
		return false
	}
	r.snapshot.Menu[category] = slices.Delete(slices.Clone(items), index, index+1)
	r.markDirty()
	return true
}

// StageRows replaces the retained items of category with the rows as they
// were edited in the rendered editor. Rows whose trimmed name or price is
// empty are dropped. Rows for a category the snapshot does not know are
// ignored, and unchanged rows leave the state alone.
func (r *Reconciler) StageRows(category string, rows []settings.MenuItem) {
	if _, known := r.snapshot.Menu[category]; !known && !settings.IsCategory(category) {
		return
	}
	staged := make([]settings.MenuItem, 0, len(rows))
	for _, row := range rows {
		item := settings.MenuItem{
			Name:  strings.TrimSpace(row.Name),
			Price: strings.TrimSpace(row.Price),
		}
		if item.Name == "" || item.Price == "" {
			continue
		}
		staged = append(staged, item)
	}

	if slices.Equal(staged, r.snapshot.Menu.Items(category)) {
		return
	}
	if r.snapshot.Menu == nil {
		r.snapshot.Menu = settings.Menu{}
	}
	r.snapshot.Menu[category] = staged
	r.markDirty()
}

// ReconcileFromForm stages the submitted rows and builds a complete settings
// value from the form fields and the retained menu of every category.
func (r *Reconciler) ReconcileFromForm(form FormValues) settings.Settings {
	form = r.Stage(form)
	out := r.snapshot.Clone()
	out.CustomMessage = strings.TrimSpace(form.Message)
	out.OpeningHours = trimHours(form.Hours)
	out.Services = settings.ServicesFromToggles(form.DineIn, form.Takeaway)
	return out
}

// SectionWrite builds the full value a section save commits: the snapshot
// with only that section taken from the form.
func (r *Reconciler) SectionWrite(section Section, form FormValues) settings.Settings {
	if section == SectionAll {
		return r.ReconcileFromForm(form)
	}
	form = r.Stage(form)
	out := r.snapshot.Clone()
	switch section {
	case SectionMessage:
		out.CustomMessage = strings.TrimSpace(form.Message)
	case SectionHours:
		out.OpeningHours = trimHours(form.Hours)
	case SectionServices:
		out.Services = settings.ServicesFromToggles(form.DineIn, form.Takeaway)
	}
	return out
}

// Commit writes the full value and adopts it on success, keeping the selected
// category. A failed write leaves the snapshot as it was and the state Dirty.
func (r *Reconciler) Commit(ctx context.Context, write settings.Settings) error {
	if r.state == Unloaded {
		return ErrNotLoaded
	}
	write = write.Clone().Normalized()
	if err := r.store.Save(ctx, settings.FullPatch(write)); err != nil {
		r.state = Dirty
		return err
	}
	r.Adopt(write)
	return nil
}

// Reset forgets the snapshot and the selected category.
func (r *Reconciler) Reset() {
	r.state = Unloaded
	r.snapshot = settings.Settings{}
	r.category = ""
}

// Stage stages the rows of form and returns form without them, so building
// a write from the result after further mutations of the same category
// keeps those mutations.
func (r *Reconciler) Stage(form FormValues) FormValues {
	if !form.RowsPresent {
		return form
	}
	category := form.Category
	if category == "" {
		category = r.category
	}
	r.StageRows(category, form.Rows)
	form.Rows = nil
	form.RowsPresent = false
	return form
}

func (r *Reconciler) markDirty() {
	if r.state != Unloaded {
		r.state = Dirty
	}
}

func trimHours(h settings.OpeningHours) settings.OpeningHours {
	return settings.OpeningHours{
		MondayToFriday: strings.TrimSpace(h.MondayToFriday),
		Saturday:       strings.TrimSpace(h.Saturday),
		Sunday:         strings.TrimSpace(h.Sunday),
	}
}
