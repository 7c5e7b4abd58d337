package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/upb/role-dashboard/internal/auth"
	"github.com/upb/role-dashboard/internal/gate"
	"github.com/upb/role-dashboard/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// Views holds the parsed page templates
type Views struct {
	templates *template.Template
}

// NewViews parses the embedded templates
func NewViews() (*Views, error) {
	t, err := template.New("views").Funcs(template.FuncMap{
		"badgeVariant": auth.BadgeVariant,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Views{templates: t}, nil
}

// Block returns a gate block backed by the named template
func (v *Views) Block(name string) gate.Block {
	return gate.TemplateBlock{Templates: v.templates, Name: name}
}

// Render executes the named page into a buffer and writes it with status.
// Nothing is written when the template fails.
func (v *Views) Render(w http.ResponseWriter, status int, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := v.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// pageData is shared by every signed-in page
type pageData struct {
	Title string
	Check auth.Check
}

func newPageData(title string, user *models.User) pageData {
	return pageData{Title: title, Check: auth.For(user)}
}

// DashboardLayout declares the gated sections of the dashboard
func DashboardLayout(v *Views) gate.Layout {
	return gate.Layout{
		{Key: "admin", Gate: gate.Gate{
			Requirement: auth.AnyOf(models.RoleAdmin),
			Granted:     v.Block("admin_panel"),
		}},
		{Key: "manager", Gate: gate.Gate{
			Requirement: auth.AnyOf(models.RoleManager),
			Granted:     v.Block("manager_panel"),
		}},
		{Key: "user", Gate: gate.Gate{
			Requirement: auth.AnyOf(models.RoleUser),
			Granted:     v.Block("user_panel"),
		}},
		{Key: "overview", Gate: gate.Gate{
			Requirement: auth.AnyOf(models.RoleAdmin, models.RoleManager, models.RoleUser),
			Granted:     v.Block("overview"),
			Fallback:    v.Block("limited_access"),
		}},
	}
}
