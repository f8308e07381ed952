package cli

import (
	"context"

	"github.com/TheLazyLemur/benpdf/internal/config"
	"github.com/TheLazyLemur/benpdf/internal/core"
	"github.com/TheLazyLemur/benpdf/internal/history"
	"github.com/TheLazyLemur/benpdf/internal/permission"
	"github.com/TheLazyLemur/benpdf/internal/tools"
	"github.com/spf13/cobra"
)

// Submitter runs one conversion round-trip. *core.Controller implements it.
type Submitter interface {
	Submit(ctx context.Context, req core.ToolRequest, dl core.Downloader) (*core.Outcome, error)
}

// Journal is the part of the history store the CLI uses.
type Journal interface {
	List(limit int) ([]*history.Entry, error)
	Delete(id string) error
}

// Deps are the collaborators shared by all commands. Journal and Serve may be
// nil when history or the dashboard are not configured.
type Deps struct {
	Config    *config.Config
	Catalog   *tools.Catalog
	Submitter Submitter
	Health    core.HealthChecker
	Checker   *permission.SourceChecker
	Journal   Journal
	Serve     func(ctx context.Context) error
}

// RootCmd builds the benpdf command tree. Every catalog tool becomes a
// subcommand.
func RootCmd(deps *Deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "benpdf",
		Short:         "File conversion and math utilities front-end",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	for _, tool := range deps.Catalog.All() {
		root.AddCommand(ToolCmd(deps, tool))
	}

	root.AddCommand(
		ToolsCmd(deps),
		HealthCmd(deps),
		HistoryCmd(deps),
		ServeCmd(deps),
	)

	return root
}

// ServeCmd starts the web dashboard.
func ServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if deps.Serve == nil {
				return errNotConfigured("dashboard")
			}
			return deps.Serve(cmd.Context())
		},
	}
}
