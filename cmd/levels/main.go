// Command levels checks level files before they go into the configs
// directory.
//
//	levels validate [files...]   fail if any level is invalid
//	levels analyze [files...]    per-car approach cells, reachability and exit lanes
//
// Without file arguments every .json, .yaml and .yml file in --dir is used.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/mcp-training/carpark/game/engine"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "levels",
		Usage: "Validate and analyze parking puzzle levels",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Value: "configs", Usage: "Directory scanned when no files are given", Sources: cli.EnvVars("CONFIG_DIR")},
		},
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Check that level files load and are winnable on paper",
				ArgsUsage: "[files...]",
				Action:    validateAction,
			},
			{
				Name:      "analyze",
				Usage:     "Print per-car heuristics for level files",
				ArgsUsage: "[files...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print reports as JSON"},
				},
				Action: analyzeAction,
			},
		},
	}
}

// levelFiles returns the file arguments, or the level files of --dir
func levelFiles(cmd *cli.Command) ([]string, error) {
	if cmd.Args().Len() > 0 {
		return cmd.Args().Slice(), nil
	}

	dir := cmd.String("dir")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no level files in %s", dir)
	}
	return files, nil
}

func validateAction(ctx context.Context, cmd *cli.Command) error {
	files, err := levelFiles(cmd)
	if err != nil {
		return err
	}
	out := cmd.Root().Writer

	failed := 0
	for _, file := range files {
		if _, err := engine.LoadLevelConfig(file); err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", file, err)
			continue
		}
		fmt.Fprintf(out, "ok   %s\n", file)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d level file(s) invalid", failed, len(files))
	}
	return nil
}

func analyzeAction(ctx context.Context, cmd *cli.Command) error {
	files, err := levelFiles(cmd)
	if err != nil {
		return err
	}
	out := cmd.Root().Writer
	asJSON := cmd.Bool("json")

	reports := map[string]*engine.LevelReport{}
	failed := 0
	for _, file := range files {
		report, err := analyzeFile(file)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", file, err)
			continue
		}
		if asJSON {
			reports[file] = report
			continue
		}
		fmt.Fprintf(out, "\n=== Analyzing %s ===\n", file)
		printReport(out, report)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d level file(s) could not be analyzed", failed, len(files))
	}
	return nil
}

func analyzeFile(path string) (*engine.LevelReport, error) {
	config, err := engine.LoadLevelConfig(path)
	if err != nil {
		return nil, err
	}
	return engine.AnalyzeLevel(config)
}

func printReport(w io.Writer, report *engine.LevelReport) {
	fmt.Fprintf(w, "Name: %s\n", report.Name)
	fmt.Fprintf(w, "Lot: %dx%d, %d car(s), %d stickmen, %d obstacle(s), %d free cell(s)\n",
		report.Width, report.Height, report.Cars, report.Stickmen, report.Obstacles, report.FreeCells)

	for _, car := range report.CarInfo {
		exit := "both lanes blocked"
		if car.Lane.Clear {
			if car.Lane.Forward {
				exit = "exits forward"
			} else {
				exit = "exits reversing"
			}
		}
		fmt.Fprintf(w, "- %s %s at %v facing %s: %d approach cell(s), reachable by %d stickman/stickmen, %s\n",
			car.Color, car.Kind, car.Cells[0], car.Direction, len(car.Approach), car.ReachableBy, exit)
	}

	if len(report.Warnings) == 0 {
		fmt.Fprintf(w, "✅ Every car can be boarded and driven out from the start\n")
		return
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "⚠️  %s\n", warning)
	}
}
