package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/flowchart/internal/render"
)

func (a *app) batchCommand() *cobra.Command {
	var (
		in      inputOpts
		format  string
		kind    string
		outDir  string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "batch <file>...",
		Short: "Render many chart documents concurrently",
		Long: `Batch renders every file into --out-dir, naming each output after its
input with the format's extension. A failing file is reported and the rest
still render; the command fails if any file failed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := render.ParseFormat(format)
			if err != nil {
				return err
			}
			k := render.Kind(kind)
			if k != render.KindSteps && k != render.KindGraph {
				return fmt.Errorf("unknown kind %q (want steps or graph)", kind)
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", outDir, err)
			}

			ctx := cmd.Context()
			jobs := make([]render.Job, 0, len(args))
			var failed []error
			for _, path := range args {
				raw, err := a.readDocument(cmd, []string{path}, in)
				if err != nil {
					failed = append(failed, fmt.Errorf("%s: %w", path, err))
					continue
				}
				jobs = append(jobs, render.Job{
					Name:   path,
					Source: render.Source{Kind: k, Document: raw},
					Format: f,
				})
			}

			results, metrics := a.renderer.RenderAll(ctx, jobs, workers)
			for _, res := range results {
				if res.Err != nil {
					failed = append(failed, fmt.Errorf("%s: %w", res.Name, res.Err))
					continue
				}
				a.logWarnings(ctx, res.Output.Warnings)
				dest := filepath.Join(outDir, outputName(res.Name, f))
				if err := a.writeOutput(dest, res.Output.Body); err != nil {
					failed = append(failed, err)
					continue
				}
				fmt.Fprintln(a.stdout, dest)
			}

			a.logger.Info("batch finished",
				"rendered", metrics.Completed, "failed", len(failed), "workers", workers)
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d files failed: %w", len(failed), len(args), errors.Join(failed...))
			}
			return nil
		},
	}

	in.bind(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", string(render.FormatSVG), "output format: mermaid, svg, png, ascii, dot")
	cmd.Flags().StringVarP(&kind, "kind", "k", string(render.KindSteps), "document kind: steps or graph")
	cmd.Flags().StringVarP(&outDir, "out-dir", "d", ".", "directory for rendered files")
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "renders to run at once")
	return cmd
}

// outputName maps charts/login.json to login.svg.
func outputName(input string, f render.Format) string {
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base)) + f.Extension()
}
