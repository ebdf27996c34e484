package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/promptpack/internal/config"
	"github.com/hpungsan/promptpack/internal/errors"
	"github.com/hpungsan/promptpack/internal/pipeline"
	"github.com/hpungsan/promptpack/internal/usage"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, logger *slog.Logger) *cli.App {
	app := &cli.App{
		Name:    "promptpack",
		Usage:   "Token-budgeted context generation for codebases",
		Version: Version,
		Commands: []*cli.Command{
			generateCmd(db, cfg, logger),
			rankCmd(db, cfg, logger),
			treeCmd(db, cfg, logger),
			runsCmd(db),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// targetRoot resolves the positional project root, defaulting to the
// current directory.
func targetRoot(c *cli.Context) string {
	if c.NArg() > 0 {
		return c.Args().First()
	}
	return "."
}

// overrideConfig applies per-invocation flag overrides and revalidates.
func overrideConfig(cfg *config.Config, c *cli.Context) (*config.Config, error) {
	out := *cfg
	if mode := c.String("mode"); mode != "" {
		out.SelectionMode = strings.ToLower(mode)
	}
	if c.IsSet("token-limit") {
		out.TokenLimit = c.Int("token-limit")
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// generateCmd creates the generate command.
func generateCmd(db *sql.DB, cfg *config.Config, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Run the full pipeline and write PROJECT_PROMPT.md into the project root",
		ArgsUsage: "[root]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "Selection mode: vector|ai|auto"},
			&cli.IntFlag{Name: "token-limit", Aliases: []string{"l"}, Usage: "Token budget for the assembled context (0 = unlimited)"},
		},
		Action: func(c *cli.Context) error {
			runCfg, err := overrideConfig(cfg, c)
			if err != nil {
				return outputError(err)
			}

			result, err := pipeline.New(runCfg, db, logger).Run(c.Context, targetRoot(c))
			if err != nil {
				return outputError(err)
			}

			return outputJSON(result)
		},
	}
}

// rankCmd creates the rank command.
func rankCmd(db *sql.DB, cfg *config.Config, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "rank",
		Usage:     "Rank a project's files by relevance without writing a document",
		ArgsUsage: "[root]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "Selection mode: vector|ai|auto"},
		},
		Action: func(c *cli.Context) error {
			runCfg, err := overrideConfig(cfg, c)
			if err != nil {
				return outputError(err)
			}

			ranking, strategy, err := pipeline.New(runCfg, db, logger).Rank(c.Context, targetRoot(c))
			if err != nil {
				return outputError(err)
			}

			return outputJSON(map[string]any{
				"strategy": strategy,
				"ranking":  ranking,
			})
		},
	}
}

// treeCmd creates the tree command.
func treeCmd(db *sql.DB, cfg *config.Config, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "tree",
		Usage:     "Print the ignore-filtered file tree of a project root",
		ArgsUsage: "[root]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Emit the file list as JSON instead of the rendered tree"},
		},
		Action: func(c *cli.Context) error {
			snap, err := pipeline.New(cfg, db, logger).Scan(targetRoot(c))
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(map[string]any{
					"root":  snap.Root,
					"files": snap.Files,
				})
			}
			fmt.Print(snap.TreeString())
			return nil
		},
	}
}

// runsCmd creates the runs command.
func runsCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "runs",
		Usage:     "List persisted runs, or show one run's usage records",
		ArgsUsage: "[run-id]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum runs to return"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				runID := c.Args().First()
				records, err := usage.RunRecords(db, runID)
				if err != nil {
					return outputError(err)
				}
				if len(records) == 0 {
					return outputError(errors.NewNotFound(runID))
				}
				return outputJSON(map[string]any{
					"run_id":  runID,
					"records": records,
				})
			}

			runs, err := usage.ListRuns(db, c.Int("limit"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"runs": runs})
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if packErr, ok := err.(*errors.PackError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", packErr.Code, packErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
