package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/toolmesh"
	"github.com/hupe1980/toolmesh/config"
	"github.com/hupe1980/toolmesh/tool"
)

type cliOptions struct {
	configPath string
	catalog    string
	noBuiltin  bool
	compact    bool
}

func newRootCommand() *cobra.Command {
	opts := cliOptions{}

	root := &cobra.Command{
		Use:           "toolmesh",
		Short:         "Tool selection and multi-step orchestration",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `toolmesh picks the tools relevant to a natural-language query, breaks
complex queries into dependency-ordered sub-questions and executes them
against a catalog of tools.

Settings come from --config (YAML, TOML or JSON) and TOOLMESH_* environment
variables. Tools come from the catalog named by --catalog or the config file.`,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./toolmesh.yaml or $XDG_CONFIG_HOME/toolmesh)")
	root.PersistentFlags().StringVar(&opts.catalog, "catalog", "", "YAML tool catalog (overrides the config file)")
	root.PersistentFlags().BoolVar(&opts.noBuiltin, "no-builtin", false, "do not register the built-in clock tool")
	root.PersistentFlags().BoolVar(&opts.compact, "compact", false, "print single-line JSON")

	root.AddCommand(
		newSelectCmd(&opts),
		newDecomposeCmd(&opts),
		newExecuteCmd(&opts),
		newAskCmd(&opts),
		newToolsCmd(&opts),
	)

	return root
}

// newMesh loads the configuration and builds a ToolMesh with the catalog
// registered.
func newMesh(ctx context.Context, opts *cliOptions) (*toolmesh.ToolMesh, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	mesh := toolmesh.New(func(o *toolmesh.Options) {
		o.Model = cfg.NewModel()
		o.Embedder = cfg.NewEmbedder()
		o.Logger = cfg.NewLogger()
		o.EngineOptions = append(o.EngineOptions, cfg.EngineOptions())
	})

	catalog := cfg.Catalog
	if opts.catalog != "" {
		catalog = opts.catalog
	}
	if catalog != "" {
		if err := mesh.LoadCatalog(ctx, catalog); err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
	}

	if !opts.noBuiltin {
		if _, ok := mesh.Engine().Registry().Metadata("clock"); !ok {
			if err := mesh.RegisterTool(ctx, tool.NewClockTool()); err != nil {
				return nil, err
			}
		}
	}

	return mesh, nil
}
