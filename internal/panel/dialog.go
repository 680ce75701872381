package panel

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"

	"github.com/rendis/flowchart/internal/diagram"
	"github.com/rendis/flowchart/internal/render"
)

// DialogData is what the flowchart dialog shows.
type DialogData struct {
	ChartID     string
	Title       string
	Mermaid     string
	ContainerID string
	ExportName  string
}

// Dialog is the modal that displays a rendered flowchart. It is parsed once
// and passed around explicitly; nothing looks it up by element id.
type Dialog struct {
	tmpl *template.Template
}

// NewDialog parses the dialog template from fsys.
func NewDialog(fsys fs.FS) (*Dialog, error) {
	tmpl, err := template.ParseFS(fsys, "templates/partials/dialog.html")
	if err != nil {
		return nil, fmt.Errorf("parse dialog template: %w", err)
	}
	if tmpl.Lookup("dialog") == nil {
		return nil, fmt.Errorf("dialog template does not define %q", "dialog")
	}
	return &Dialog{tmpl: tmpl}, nil
}

// Render writes the dialog markup. Rendering the same data twice produces the
// same bytes. Empty container and export names fall back to the defaults.
func (d *Dialog) Render(w io.Writer, data DialogData) error {
	if data.ContainerID == "" {
		data.ContainerID = render.ContainerID
	}
	if data.ExportName == "" {
		data.ExportName = diagram.ExportFileName
	}
	return d.tmpl.ExecuteTemplate(w, "dialog", data)
}

// HTML renders the dialog for embedding in a page template.
func (d *Dialog) HTML(data DialogData) (template.HTML, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf, data); err != nil {
		return "", err
	}
	// Output of an html/template execution is already escaped.
	return template.HTML(buf.String()), nil
}
