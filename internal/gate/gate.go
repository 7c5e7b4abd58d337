// Package gate renders content conditionally on role membership.
//
// A Gate pairs a role requirement with two blocks of content: Granted is
// rendered when the current user satisfies the requirement, Fallback (which
// may be nil) otherwise. Gates hold no state; every render re-evaluates the
// requirement against the user snapshot it is given. A missing user never
// errors, it simply fails the role checks.
//
// Pages declare their gated regions as a Layout, an ordered list of Sections,
// so every region goes through the same evaluation path.
package gate

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/upb/role-dashboard/internal/auth"
	"github.com/upb/role-dashboard/models"
)

// Block is a piece of renderable content
type Block interface {
	Render(w io.Writer, data any) error
}

// TemplateBlock renders a named template
type TemplateBlock struct {
	Templates *template.Template
	Name      string
}

// Render executes the named template with data
func (b TemplateBlock) Render(w io.Writer, data any) error {
	return b.Templates.ExecuteTemplate(w, b.Name, data)
}

// HTML is a fixed block of trusted markup
type HTML template.HTML

// Render writes the markup verbatim
func (h HTML) Render(w io.Writer, _ any) error {
	_, err := io.WriteString(w, string(h))
	return err
}

// Empty renders nothing
var Empty Block = HTML("")

// Gate chooses between Granted and Fallback for a role requirement
type Gate struct {
	Requirement auth.Requirement
	Granted     Block
	Fallback    Block
}

// Allows reports whether u satisfies the gate's requirement
func (g Gate) Allows(u *models.User) bool {
	return auth.Evaluate(u, g.Requirement)
}

// Render writes Granted when u satisfies the requirement, Fallback otherwise.
// It returns the decision alongside any render error.
func (g Gate) Render(w io.Writer, u *models.User, data any) (bool, error) {
	granted := g.Allows(u)

	block := g.Fallback
	if granted {
		block = g.Granted
	}
	if block == nil {
		return granted, nil
	}
	return granted, block.Render(w, data)
}

// Section is a named gated region of a page
type Section struct {
	Key  string
	Gate Gate
}

// Rendered is the output of one section
type Rendered struct {
	Key     string
	Granted bool
	HTML    template.HTML
}

// Observer is told about every section decision
type Observer func(key string, mode auth.Mode, granted bool)

// Layout is an ordered list of sections evaluated uniformly
type Layout []Section

// Render evaluates every section against u in declaration order.
// A block that fails to render stops the walk and the error names its section.
func (l Layout) Render(u *models.User, data any, observe Observer) ([]Rendered, error) {
	out := make([]Rendered, 0, len(l))
	for _, s := range l {
		var buf bytes.Buffer
		granted, err := s.Gate.Render(&buf, u, data)
		if observe != nil {
			observe(s.Key, s.Gate.Requirement.Mode, granted)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to render section %q: %w", s.Key, err)
		}
		out = append(out, Rendered{
			Key:     s.Key,
			Granted: granted,
			HTML:    template.HTML(buf.String()),
		})
	}
	return out, nil
}
