package main

import (
	"fmt"

	"github.com/mattjoyce/portrun/internal/app"
	"github.com/mattjoyce/portrun/internal/doctor"
)

func runDoctor(args []string, s app.Streams) int {
	fs := newFlagSet("doctor", s)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := app.LoadConfig(s.Stderr)
	if err != nil {
		fmt.Fprintf(s.Stderr, "config: %v\n", err)
		return 1
	}
	registry, err := app.DiscoverWorkers(cfg)
	if err != nil {
		fmt.Fprintf(s.Stderr, "%v\n", err)
		return 1
	}

	result := doctor.New(cfg, registry).Validate()
	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(s.Stderr, "doctor: %v\n", err)
			return 1
		}
		fmt.Fprintln(s.Stdout, out)
	} else {
		fmt.Fprint(s.Stdout, doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}
