package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/TheLazyLemur/benpdf/internal/core"
	"github.com/spf13/cobra"
)

const healthTimeout = 5 * time.Second

// ToolsCmd lists the catalog, grouped by category.
func ToolsCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CATEGORY\tTOOL\tINPUT\tDESCRIPTION")
			for _, c := range deps.Catalog.Categories() {
				for _, t := range c.Tools {
					modes := make([]string, 0, len(t.Inputs))
					for _, m := range t.Inputs {
						modes = append(modes, m.String())
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, t.Name, strings.Join(modes, ","), t.Description)
				}
			}
			return w.Flush()
		},
	}
}

// HealthCmd prints the backend's feature flags.
func HealthCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show backend feature availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
			defer cancel()

			features, err := deps.Health.Health(ctx)
			if err != nil {
				return err
			}

			names := make([]string, 0, len(features))
			for name := range features {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FEATURE\tAVAILABLE")
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%t\n", name, features[name])
			}
			if err := w.Flush(); err != nil {
				return err
			}

			var gated []string
			for _, t := range deps.Catalog.All() {
				if !features.Enabled(t.Feature) {
					gated = append(gated, t.Name)
				}
			}
			if len(gated) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\nunavailable: %s\n", strings.Join(gated, ", "))
			}
			return nil
		},
	}
}

// HistoryCmd lists and deletes journal entries.
func HistoryCmd(deps *Deps) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if deps.Journal == nil {
				return errNotConfigured("history")
			}
			entries, err := deps.Journal.List(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no submissions")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), e.Summary())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show (0 for all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete a history entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.Journal == nil {
				return errNotConfigured("history")
			}
			if err := deps.Journal.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})

	return cmd
}

// LogObserver logs every submission transition at debug level.
type LogObserver struct{}

func (LogObserver) Transition(ev core.Event) {
	attrs := []any{"id", ev.ID, "tool", ev.Tool, "from", ev.From, "to", ev.To}
	if ev.Err != nil {
		attrs = append(attrs, "error", ev.Err.Error())
	}
	slog.Debug("submission transition", attrs...)
}
