package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/flowchart/internal/logging"
	"github.com/rendis/flowchart/internal/render"
	"github.com/rendis/flowchart/internal/store"
)

// chartsCommand groups the chart database maintenance commands.
func (a *app) chartsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "charts",
		Short: "Manage charts in the local database",
	}
	cmd.AddCommand(
		a.chartsSaveCommand(),
		a.chartsListCommand(),
		a.chartsGetCommand(),
		a.chartsHistoryCommand(),
		a.chartsRestoreCommand(),
		a.chartsDeleteCommand(),
		a.chartsVacuumCommand(),
	)
	return cmd
}

func (a *app) chartsSaveCommand() *cobra.Command {
	var (
		in   inputOpts
		id   string
		name string
		kind string
	)

	cmd := &cobra.Command{
		Use:   "save [file]",
		Short: "Validate a document and store it as a chart",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			k := store.ChartKind(kind)
			if !k.Valid() {
				return fmt.Errorf("unknown kind %q (want steps or graph)", kind)
			}
			raw, err := a.readDocument(cmd, args, in)
			if err != nil {
				return err
			}
			_, warnings, err := a.renderer.Model(render.Source{Kind: render.Kind(k), Document: raw})
			if err != nil {
				return err
			}
			a.logWarnings(ctx, warnings)

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			chart := &store.Chart{ID: id, Name: name, Kind: k, Document: json.RawMessage(raw)}
			if err := st.SaveChart(ctx, chart); err != nil {
				return err
			}
			a.logger.InfoContext(logging.WithChartID(ctx, chart.ID), "chart saved", "name", chart.Name)
			fmt.Fprintln(a.stdout, chart.ID)
			return nil
		},
	}

	in.bind(cmd)
	cmd.Flags().StringVar(&id, "id", "", "chart id to overwrite (default: new id)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "chart name")
	cmd.Flags().StringVarP(&kind, "kind", "k", string(store.ChartKindSteps), "document kind: steps or graph")
	return cmd
}

func (a *app) chartsListCommand() *cobra.Command {
	var (
		filter store.ChartFilter
		kind   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored charts, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			filter.Kind = store.ChartKind(kind)
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			charts, err := st.ListCharts(ctx, filter)
			if err != nil {
				return err
			}
			if asJSON {
				return a.printJSON(charts)
			}
			for _, c := range charts {
				fmt.Fprintf(a.stdout, "%-36s  %-5s  %s  %s\n", c.ID, c.Kind, c.UpdatedAt.Format(time.DateTime), c.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "only charts of this kind")
	cmd.Flags().StringVar(&filter.Name, "name", "", "only charts whose name contains this text")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum number of charts")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "charts to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print charts as JSON")
	return cmd
}

func (a *app) chartsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a stored chart's document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			chart, err := st.GetChart(logging.WithChartID(ctx, args[0]), args[0])
			if err != nil {
				return err
			}
			return a.writeOutput("", append(chart.Document, '\n'))
		},
	}
}

func (a *app) chartsHistoryCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "List the saved revisions of a chart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			revs, err := store.NewRevisionLog(st).Revisions(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return a.printJSON(revs)
			}
			for _, r := range revs {
				fmt.Fprintf(a.stdout, "%4d  %s  %d bytes\n", r.Sequence, r.CreatedAt.Format(time.DateTime), len(r.Document))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print revisions as JSON")
	return cmd
}

func (a *app) chartsRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id> <revision>",
		Short: "Make an earlier revision the chart's current document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || seq < 1 {
				return fmt.Errorf("invalid revision %q", args[1])
			}
			ctx := logging.WithChartID(cmd.Context(), args[0])
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			chart, err := store.NewRevisionLog(st).Restore(ctx, args[0], seq)
			if err != nil {
				return err
			}
			a.logger.InfoContext(ctx, "chart restored", "revision", seq)
			fmt.Fprintf(a.stdout, "Restored %s to revision %d\n", chart.ID, seq)
			return nil
		},
	}
}

func (a *app) chartsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a chart and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logging.WithChartID(cmd.Context(), args[0])
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteChart(ctx, args[0]); err != nil {
				return err
			}
			a.logger.InfoContext(ctx, "chart deleted")
			return nil
		},
	}
}

func (a *app) chartsVacuumCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Compact the chart database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Vacuum(ctx); err != nil {
				return fmt.Errorf("vacuum: %w", err)
			}
			a.logger.Info("database compacted", "path", a.cfg.DBPath)
			return nil
		},
	}
}

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return a.writeOutput("", append(data, '\n'))
}
