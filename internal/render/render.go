// Package render turns a chart source (a step list or a graph document) into
// one of the output formats served by the panel, the MCP tools and the CLI.
package render

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rendis/flowchart/internal/diagram"
	"github.com/rendis/flowchart/internal/graph"
	"github.com/rendis/flowchart/internal/validation"
	"github.com/rendis/flowchart/pkg/schema"
)

// Format is an output format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatSVG     Format = "svg"
	FormatPNG     Format = "png"
	FormatASCII   Format = "ascii"
	FormatDOT     Format = "dot"
)

// Formats lists every supported format.
var Formats = []Format{FormatMermaid, FormatSVG, FormatPNG, FormatASCII, FormatDOT}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", schema.NewErrorf(schema.ErrCodeValidation, "unknown format %q (want mermaid, svg, png, ascii or dot)", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatSVG:
		return "image/svg+xml"
	case FormatPNG:
		return "image/png"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Extension returns the file extension used when writing f to disk.
func (f Format) Extension() string {
	switch f {
	case FormatMermaid:
		return ".mmd"
	case FormatASCII:
		return ".txt"
	default:
		return "." + string(f)
	}
}

// Kind tells which document shape a source holds.
type Kind string

const (
	KindSteps Kind = "steps"
	KindGraph Kind = "graph"
)

// Source is raw chart input.
type Source struct {
	Kind     Kind
	Document []byte
}

// Settings controls layout and the dangling, unknown-type and escaping policies.
type Settings struct {
	Dangling diagram.DanglingPolicy
	Unknown  diagram.UnknownTypePolicy
	Escape   bool
	BinDir   string // where mermaid-ascii is looked up; empty disables it

	StartX, StartY, Spacing float64
}

// DefaultSettings mirrors the graph package defaults.
func DefaultSettings() Settings {
	return Settings{
		StartX:  graph.DefaultStartX,
		StartY:  graph.DefaultStartY,
		Spacing: graph.DefaultSpacing,
	}
}

// Output is a rendered chart.
type Output struct {
	Format   Format                   `json:"format"`
	Body     []byte                   `json:"-"`
	Warnings []schema.ValidationIssue `json:"warnings,omitempty"`
}

// ContainerID is the surface container every SVG is drawn into.
const ContainerID = "flowchart"

// Renderer validates sources and renders them. Safe for concurrent use.
type Renderer struct {
	validator *validation.FlowValidator
	settings  Settings
	logger    *slog.Logger
}

// New creates a Renderer.
func New(settings Settings, logger *slog.Logger) (*Renderer, error) {
	v, err := validation.NewFlowValidator()
	if err != nil {
		return nil, fmt.Errorf("create validator: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{validator: v, settings: settings, logger: logger}, nil
}

// Settings returns the renderer's settings.
func (r *Renderer) Settings() Settings { return r.settings }

// Steps validates a raw step list.
func (r *Renderer) Steps(raw []byte) (*schema.StepList, []schema.ValidationIssue, error) {
	list, result := r.validator.ValidateSteps(raw)
	if err := result.ToError(); err != nil {
		return nil, result.Warnings, err
	}
	return list, result.Warnings, nil
}

// Model validates src and converts it into a laid-out graph model.
// Step lists are always auto-laid out; graph documents only when every node
// sits at the origin.
func (r *Renderer) Model(src Source) (*graph.Model, []schema.ValidationIssue, error) {
	switch src.Kind {
	case KindSteps:
		list, warnings, err := r.Steps(src.Document)
		if err != nil {
			return nil, warnings, err
		}
		if r.settings.Unknown == diagram.UnknownReport {
			for i, step := range list.Steps {
				if !step.Type.Known() {
					return nil, warnings, schema.NewErrorf(schema.ErrCodeUnknownType,
						"unknown step type %q", step.Type).WithNode(diagram.StepID(i))
				}
			}
		}
		m := diagram.BuildModel(list.Steps)
		m.AutoLayout(r.settings.StartX, r.settings.StartY, r.settings.Spacing)
		return m, warnings, nil

	case KindGraph:
		doc, result := r.validator.ValidateDocument(src.Document)
		if err := result.ToError(); err != nil {
			return nil, result.Warnings, err
		}
		m := graph.FromDocument(doc)
		if unplaced(m) {
			m.AutoLayout(r.settings.StartX, r.settings.StartY, r.settings.Spacing)
		}
		return m, result.Warnings, nil

	default:
		return nil, nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown chart kind %q", src.Kind)
	}
}

// Translate renders a step list as Mermaid, marking the highlighted steps.
func (r *Renderer) Translate(raw []byte, highlight []int) (*Output, error) {
	list, warnings, err := r.Steps(raw)
	if err != nil {
		return nil, err
	}
	text, err := diagram.Translate(list.Steps, r.translateOptions(highlight)...)
	if err != nil {
		return nil, err
	}
	return &Output{Format: FormatMermaid, Body: []byte(text), Warnings: warnings}, nil
}

// Render produces src in the requested format.
func (r *Renderer) Render(ctx context.Context, src Source, format Format) (*Output, error) {
	if format == FormatMermaid && src.Kind == KindSteps {
		return r.Translate(src.Document, nil)
	}
	if format == FormatASCII && src.Kind == KindSteps && r.settings.BinDir != "" {
		list, warnings, err := r.Steps(src.Document)
		if err != nil {
			return nil, err
		}
		text := diagram.RenderASCIIAuto(ctx, list.Steps, r.settings.BinDir)
		return &Output{Format: format, Body: []byte(text), Warnings: warnings}, nil
	}

	m, warnings, err := r.Model(src)
	if err != nil {
		return nil, err
	}
	out := &Output{Format: format, Warnings: warnings}

	switch format {
	case FormatMermaid:
		out.Body = []byte(diagram.RenderMermaid(m))
		return out, nil
	case FormatASCII:
		out.Body = []byte(diagram.RenderASCII(m))
		return out, nil
	}

	d, err := diagram.ComputeDrawables(m,
		diagram.WithDanglingPolicy(r.settings.Dangling),
		diagram.WithUnknownTypePolicy(r.settings.Unknown),
	)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatSVG:
		surface := diagram.NewBufferSurface(ContainerID)
		if err := diagram.Draw(ctx, surface, ContainerID, d, r.logger); err != nil {
			return nil, err
		}
		out.Body = surface[ContainerID].Bytes()
	case FormatPNG:
		png, err := diagram.RenderImage(ctx, d)
		if err != nil {
			return nil, err
		}
		out.Body = png
	case FormatDOT:
		out.Body = []byte(diagram.ToDOT(d))
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown format %q", format)
	}
	return out, nil
}

func (r *Renderer) translateOptions(highlight []int) []diagram.TranslateOption {
	opts := []diagram.TranslateOption{diagram.WithStepTypePolicy(r.settings.Unknown)}
	if r.settings.Escape {
		opts = append(opts, diagram.WithEscaping())
	}
	if len(highlight) > 0 {
		opts = append(opts, diagram.WithHighlight(highlight))
	}
	return opts
}

func unplaced(m *graph.Model) bool {
	for _, n := range m.Nodes() {
		if n.X != 0 || n.Y != 0 {
			return false
		}
	}
	return true
}
