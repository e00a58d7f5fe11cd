// Package web renders the public homepage and the admin panel from view
// models. Rendering never mutates editing state.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"kisscoffee/site/internal/gate"
	"kisscoffee/site/internal/settings"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// FallbackMessage replaces the homepage message when the settings document
// could not be fetched.
const FallbackMessage = "Sorry, we're experiencing technical difficulties. Please check back soon!"

// EmptyCategoryMessage is shown in the editor for a category without items.
const EmptyCategoryMessage = "No items in this category yet. Add some below!"

// LoginErrorMessage is the only sign-in failure text shown to users.
const LoginErrorMessage = "Invalid email or password. Please try again."

// FlashKind styles a one-shot notification.
type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
)

// Flash is a notification shown once after an admin action.
type Flash struct {
	Kind FlashKind
	Text string
}

// HomeView is everything the homepage shows.
type HomeView struct {
	Settings settings.Settings
	Failed   bool
}

// AdminView is everything the admin page shows. Settings carries the values
// of the editor fields, which after a failed save are the submitted ones.
type AdminView struct {
	State           gate.State
	UserName        string
	Settings        settings.Settings
	Category        string
	Items           []settings.MenuItem
	Flash           *Flash
	LoginError      string
	LoginEmail      string
	NewItem         settings.MenuItem
	NewItemCategory string
}

type Renderer struct {
	templates *template.Template
}

func New() (*Renderer, error) {
	tmpl, err := template.New("site").Funcs(template.FuncMap{
		"messageHTML": MessageHTML,
		"join":        strings.Join,
		"categories":  func(m settings.Menu) []string { return m.Categories() },
		"items":       func(m settings.Menu, category string) []settings.MenuItem { return m.Items(category) },
		"fixedCategories": func() []string {
			return settings.Categories
		},
		"hasService": func(s settings.Settings, name string) bool { return s.HasService(name) },
		"loggedIn":   func(s gate.State) bool { return s == gate.LoggedIn },
	}).ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// MessageHTML escapes the message and turns its line breaks into <br>.
func MessageHTML(message string) template.HTML {
	escaped := template.HTMLEscapeString(strings.ReplaceAll(message, "\r\n", "\n"))
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
}

func (r *Renderer) Home(w io.Writer, view HomeView) error {
	return r.execute(w, "home.gohtml", struct {
		HomeView
		Fallback string
	}{HomeView: view, Fallback: FallbackMessage})
}

func (r *Renderer) Admin(w io.Writer, view AdminView) error {
	if view.Category == "" {
		view.Category = settings.Categories[0]
	}
	if view.NewItemCategory == "" {
		view.NewItemCategory = view.Category
	}
	return r.execute(w, "admin.gohtml", struct {
		AdminView
		Empty string
	}{AdminView: view, Empty: EmptyCategoryMessage})
}

// execute writes the page only once the whole template rendered.
func (r *Renderer) execute(w io.Writer, name string, data any) error {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded stylesheet and assets under the stripped prefix.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
