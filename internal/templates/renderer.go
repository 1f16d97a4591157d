package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed views/*.html
var viewFS embed.FS

// Renderer executes the embedded chat views. Fragments are returned as
// strings because most of them get framed into server-sent events instead of
// being written straight to a response.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses every embedded view. It fails only when a view is
// malformed, which is a build problem rather than a runtime one.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("").ParseFS(viewFS, "views/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse views: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render executes the named view with data.
func (r *Renderer) Render(view string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, view, data); err != nil {
		return "", fmt.Errorf("render %s: %w", view, err)
	}
	return buf.String(), nil
}
