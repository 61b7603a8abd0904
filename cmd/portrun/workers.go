package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/mattjoyce/portrun/internal/app"
)

type workerSummary struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Modes       []string `json:"modes"`
	Description string   `json:"description,omitempty"`
	Path        string   `json:"path"`
}

func runWorkers(ctx context.Context, args []string, s app.Streams) int {
	fs := newFlagSet("workers", s)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	return app.Execute(ctx, s, func(ctx context.Context, env *app.Env) int {
		plugins := env.Registry.Sorted()
		summaries := make([]workerSummary, 0, len(plugins))
		for _, p := range plugins {
			summaries = append(summaries, workerSummary{
				Name:        p.Name,
				Version:     p.Version,
				Modes:       p.Modes.Names(),
				Description: p.Description,
				Path:        p.Path,
			})
		}

		if *jsonOut {
			enc := json.NewEncoder(s.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(summaries); err != nil {
				fmt.Fprintf(s.Stderr, "workers: %v\n", err)
				return 1
			}
			return 0
		}

		if len(summaries) == 0 {
			fmt.Fprintf(s.Stdout, "No workers found in %s\n", env.Config.PluginsDir)
			return 0
		}
		tw := tabwriter.NewWriter(s.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tVERSION\tMODES\tDESCRIPTION")
		for _, w := range summaries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", w.Name, w.Version, strings.Join(w.Modes, ","), w.Description)
		}
		_ = tw.Flush()
		return 0
	})
}
