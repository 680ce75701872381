// gen-diagrams generates sample diagram outputs for README documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rendis/flowchart/internal/expressions"
	"github.com/rendis/flowchart/internal/render"
	"github.com/rendis/flowchart/internal/trace"
	"github.com/rendis/flowchart/pkg/schema"
)

func main() {
	// Sum loop: read n → condition(n > 0?) → add and decrement → loop back → print.
	list := schema.StepList{
		Title: "sum",
		Steps: []schema.Step{
			{Type: schema.StepTypeInput, Text: "Read n"},
			{Type: schema.StepTypeCondition, Text: "n > 0?", Expr: "vars.n > 0", NoPath: "step4"},
			{Type: schema.StepTypeProcess, Text: "sum = sum + n", Expr: ".sum += .n"},
			{Type: schema.StepTypeProcess, Text: "n = n - 1", Expr: ".n -= 1"},
			{Type: schema.StepTypeCondition, Text: "n > 0?", Expr: "vars.n > 0", YesPath: "step2"},
			{Type: schema.StepTypeOutput, Text: "Print sum"},
		},
	}
	raw, err := json.Marshal(list)
	if err != nil {
		fail("marshal", err)
	}

	home, _ := os.UserHomeDir()
	settings := render.DefaultSettings()
	settings.BinDir = filepath.Join(home, ".flowchart", "bin")
	r, err := render.New(settings, nil)
	if err != nil {
		fail("renderer", err)
	}

	ctx := context.Background()
	src := render.Source{Kind: render.KindSteps, Document: raw}
	outDir := filepath.Join("docs", "assets")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fail("mkdir", err)
	}

	// ASCII (mermaid-ascii with built-in fallback)
	ascii := mustRender(ctx, r, src, render.FormatASCII)
	write(filepath.Join(outDir, "diagram-ascii.txt"), ascii)
	fmt.Println("=== ASCII ===")
	fmt.Println(string(ascii))

	// Mermaid with a traced path highlighted
	res, err := trace.NewWalker(expressions.NewExprEngine()).Walk(ctx, list.Steps, map[string]any{"n": 2, "sum": 0})
	if err != nil {
		fail("trace", err)
	}
	out, err := r.Translate(raw, res.Visited())
	if err != nil {
		fail("translate", err)
	}
	write(filepath.Join(outDir, "diagram-mermaid.md"), []byte("```mermaid\n"+string(out.Body)+"\n```\n"))
	fmt.Println("=== Mermaid ===")
	fmt.Println(string(out.Body))

	// SVG and PNG
	write(filepath.Join(outDir, "diagram-sample.svg"), mustRender(ctx, r, src, render.FormatSVG))
	png, err := r.Render(ctx, src, render.FormatPNG)
	if err != nil {
		fmt.Fprintf(os.Stderr, "image error: %v\n", err)
		return
	}
	pngPath := filepath.Join(outDir, "diagram-sample.png")
	write(pngPath, png.Body)
	fmt.Printf("=== Image (PNG) ===\nWritten: %s (%d bytes)\n", pngPath, len(png.Body))
}

func mustRender(ctx context.Context, r *render.Renderer, src render.Source, f render.Format) []byte {
	out, err := r.Render(ctx, src, f)
	if err != nil {
		fail(string(f), err)
	}
	return out.Body
}

func write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fail("write "+path, err)
	}
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
