package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"kisscoffee/site/internal/settings"
)

//go:embed templates/*.html
var templateFS embed.FS

var menuTemplate = template.Must(template.New("menu.html").Funcs(template.FuncMap{
	"lines": func(s string) []string {
		return strings.Split(s, "\n")
	},
	"join": strings.Join,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).ParseFS(templateFS, "templates/menu.html"))

// TemplateData holds data for the printable menu
type TemplateData struct {
	Title       string
	Message     string
	Hours       settings.OpeningHours
	Services    []string
	Categories  []TemplateCategory
	GeneratedAt time.Time
}

// TemplateCategory is one menu section in display order.
type TemplateCategory struct {
	Name  string
	Items []settings.MenuItem
}

func newTemplateData(title string, doc settings.Settings, now time.Time) TemplateData {
	data := TemplateData{
		Title:       title,
		Message:     doc.CustomMessage,
		Hours:       doc.OpeningHours,
		Services:    doc.Services,
		GeneratedAt: now,
	}
	for _, name := range doc.Menu.Categories() {
		items := doc.Menu.Items(name)
		if len(items) == 0 {
			continue
		}
		data.Categories = append(data.Categories, TemplateCategory{Name: name, Items: items})
	}
	return data
}

// RenderMenuHTML renders the printable menu page.
func RenderMenuHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := menuTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
