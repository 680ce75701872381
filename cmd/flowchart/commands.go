package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/flowchart/internal/expressions"
	"github.com/rendis/flowchart/internal/render"
	"github.com/rendis/flowchart/internal/trace"
	"github.com/rendis/flowchart/pkg/schema"
)

// inputOpts are shared by every command that reads a chart document.
type inputOpts struct {
	query string // jq program selecting the document inside a larger JSON file
}

func (o *inputOpts) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.query, "query", "q", "", "jq program that extracts the document from the input")
}

func (a *app) translateCommand() *cobra.Command {
	var (
		in        inputOpts
		highlight string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "translate [file]",
		Short: "Translate a step list into Mermaid flowchart syntax",
		Long:  "Translate reads a step list from file (or stdin when omitted or \"-\") and prints a Mermaid graph TD definition.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			indexes, err := parseIndexes(highlight)
			if err != nil {
				return err
			}
			raw, err := a.readDocument(cmd, args, in)
			if err != nil {
				return err
			}
			out, err := a.renderer.Translate(raw, indexes)
			if err != nil {
				return err
			}
			a.logWarnings(cmd.Context(), out.Warnings)
			return a.writeOutput(output, out.Body)
		},
	}

	in.bind(cmd)
	cmd.Flags().StringVar(&highlight, "highlight", "", "comma-separated step indexes to mark as visited")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func (a *app) renderCommand() *cobra.Command {
	var (
		in     inputOpts
		format string
		kind   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Render a step list or graph document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := render.ParseFormat(format)
			if err != nil {
				return err
			}
			if f == render.FormatPNG && output == "" {
				return fmt.Errorf("png output needs --output")
			}
			k := render.Kind(kind)
			if k != render.KindSteps && k != render.KindGraph {
				return fmt.Errorf("unknown kind %q (want steps or graph)", kind)
			}
			raw, err := a.readDocument(cmd, args, in)
			if err != nil {
				return err
			}

			out, err := a.renderer.Render(cmd.Context(), render.Source{Kind: k, Document: raw}, f)
			if err != nil {
				return err
			}
			a.logWarnings(cmd.Context(), out.Warnings)
			return a.writeOutput(output, out.Body)
		},
	}

	in.bind(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", string(render.FormatSVG), "output format: mermaid, svg, png, ascii, dot")
	cmd.Flags().StringVarP(&kind, "kind", "k", string(render.KindSteps), "document kind: steps or graph")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func (a *app) traceCommand() *cobra.Command {
	var (
		in        inputOpts
		varsJSON  string
		engine    string
		maxVisits int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "trace [file]",
		Short: "Follow a step list from Start to End and print the visited steps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vars := map[string]any{}
			if varsJSON != "" {
				if err := json.Unmarshal([]byte(varsJSON), &vars); err != nil {
					return fmt.Errorf("--vars: %w", err)
				}
			}
			if engine == "" {
				engine = a.cfg.Engine
			}
			cond, err := expressions.NewConditionEngine(engine)
			if err != nil {
				return err
			}

			raw, err := a.readDocument(cmd, args, in)
			if err != nil {
				return err
			}
			list, warnings, err := a.renderer.Steps(raw)
			if err != nil {
				return err
			}
			a.logWarnings(cmd.Context(), warnings)

			walker := trace.NewWalker(cond, trace.WithMaxVisits(maxVisits), trace.WithLogger(a.logger))
			res, err := walker.Walk(cmd.Context(), list.Steps, vars)
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				return a.writeOutput("", append(data, '\n'))
			}

			out, err := a.renderer.Translate(raw, res.Visited())
			if err != nil {
				return err
			}
			var b strings.Builder
			for _, v := range res.Path {
				fmt.Fprintf(&b, "%-8s %-10s %s", v.ID, v.Type, v.Text)
				if v.Branch != "" {
					fmt.Fprintf(&b, " -> %s", v.Branch)
				}
				b.WriteByte('\n')
			}
			b.WriteByte('\n')
			b.Write(out.Body)
			return a.writeOutput("", []byte(b.String()))
		},
	}

	in.bind(cmd)
	cmd.Flags().StringVar(&varsJSON, "vars", "", `initial variables as a JSON object, e.g. '{"n":3}'`)
	cmd.Flags().StringVarP(&engine, "engine", "e", "", "condition language: expr or cel (default from config)")
	cmd.Flags().IntVar(&maxVisits, "max-visits", trace.DefaultMaxVisits, "times a single step may be entered")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the path and final vars as JSON")
	return cmd
}

// readDocument reads args[0] (or stdin) and applies the --query program.
func (a *app) readDocument(cmd *cobra.Command, args []string, in inputOpts) ([]byte, error) {
	var (
		raw []byte
		err error
	)
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if in.query == "" {
		return raw, nil
	}
	return extract(cmd.Context(), raw, in.query)
}

// extract runs a jq program over raw JSON; it must yield exactly one value.
func extract(ctx context.Context, raw []byte, program string) ([]byte, error) {
	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "input is not JSON: %s", err).WithCause(err)
	}
	results, err := expressions.NewGoJQEngine().Query(ctx, program, input)
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"--query %q produced %d values, want 1", program, len(results))
	}
	return json.Marshal(results[0])
}

func (a *app) writeOutput(path string, body []byte) error {
	if path == "" {
		_, err := a.stdout.Write(body)
		return err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return err
	}
	a.logger.Info("wrote output", "path", path, "bytes", len(body))
	return nil
}

func (a *app) logWarnings(ctx context.Context, warnings []schema.ValidationIssue) {
	for _, w := range warnings {
		a.logger.WarnContext(ctx, w.Message, "path", w.Path, "code", w.Code)
	}
}

// parseIndexes parses a comma-separated list of step indexes.
func parseIndexes(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid step index %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}
