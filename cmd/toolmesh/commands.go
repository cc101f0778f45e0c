package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/toolmesh/core"
)

func newSelectCmd(opts *cliOptions) *cobra.Command {
	var maxTools int
	cmd := &cobra.Command{
		Use:   "select <query>",
		Short: "Select the tools relevant to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mesh, err := newMesh(cmd.Context(), opts)
			if err != nil {
				return err
			}
			sel, err := mesh.SelectTools(cmd.Context(), strings.Join(args, " "), maxTools)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sel, opts.compact)
		},
	}
	cmd.Flags().IntVar(&maxTools, "max-tools", 0, "maximum number of tools (0 uses the configured default)")
	return cmd
}

func newDecomposeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decompose <query>",
		Short: "Break a query into dependency-ordered sub-questions",
		Long: `Decompose prints the plan as JSON. The output can be edited and passed
to "toolmesh execute --plan".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mesh, err := newMesh(cmd.Context(), opts)
			if err != nil {
				return err
			}
			dec, err := mesh.DecomposeQuery(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), dec, opts.compact)
		},
	}
}

func newExecuteCmd(opts *cliOptions) *cobra.Command {
	var plan string
	cmd := &cobra.Command{
		Use:   "execute [query]",
		Short: "Execute a decomposition and synthesize the answer",
		Long: `Execute runs the plan read from --plan ("-" for stdin). With a query
argument instead, the query is decomposed first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (plan == "") == (len(args) == 0) {
				return fmt.Errorf("execute needs either --plan or a query")
			}
			mesh, err := newMesh(cmd.Context(), opts)
			if err != nil {
				return err
			}

			var dec *core.QueryDecomposition
			if plan != "" {
				dec, err = readPlan(cmd.InOrStdin(), plan)
			} else {
				dec, err = mesh.DecomposeQuery(cmd.Context(), strings.Join(args, " "))
			}
			if err != nil {
				return err
			}

			res, err := mesh.ExecuteQuery(cmd.Context(), dec)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res, opts.compact)
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", `decomposition JSON file, "-" for stdin`)
	return cmd
}

func newAskCmd(opts *cliOptions) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer a query end to end",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mesh, err := newMesh(cmd.Context(), opts)
			if err != nil {
				return err
			}
			ans, err := mesh.Answer(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if full {
				return writeJSON(cmd.OutOrStdout(), ans, opts.compact)
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"route":      ans.Route,
				"response":   ans.Result.FinalResponse,
				"confidence": ans.Result.OverallConfidence,
				"sources":    ans.Result.Sources,
				"method":     ans.Result.Synthesis,
			}, opts.compact)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print the selection, plan and every step")
	return cmd
}

func newToolsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mesh, err := newMesh(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), mesh.Tools(), opts.compact)
		},
	}
}

func readPlan(stdin io.Reader, path string) (*core.QueryDecomposition, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var dec core.QueryDecomposition
	if err := json.Unmarshal(data, &dec); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return &dec, nil
}

func writeJSON(w io.Writer, value any, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(value)
}
