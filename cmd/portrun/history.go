package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mattjoyce/portrun/internal/app"
	"github.com/mattjoyce/portrun/internal/storage"
)

func runHistory(ctx context.Context, args []string, s app.Streams) int {
	if len(args) > 0 && args[0] == "show" {
		return runHistoryShow(ctx, args[1:], s)
	}

	fs := newFlagSet("history", s)
	limit := fs.Int("limit", 20, "Maximum number of runs to list")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *limit <= 0 {
		fmt.Fprintln(s.Stderr, "history: --limit must be positive")
		return 1
	}

	return app.Execute(ctx, s, func(ctx context.Context, env *app.Env) int {
		if env.History == nil {
			fmt.Fprintln(s.Stderr, "history: disabled (set history.enabled: true in the config)")
			return 1
		}
		runs, err := env.History.ListRuns(ctx, *limit)
		if err != nil {
			fmt.Fprintf(s.Stderr, "history: %v\n", err)
			return 1
		}

		if *jsonOut {
			if runs == nil {
				runs = []storage.RunRecord{}
			}
			return writeJSON(s, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(s.Stdout, "No runs recorded")
			return 0
		}
		printRuns(s.Stdout, runs, time.Now())
		return 0
	})
}

func runHistoryShow(ctx context.Context, args []string, s app.Streams) int {
	fs := newFlagSet("history show", s)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(s.Stderr, "Usage: portrun history show RUN_ID [--json]")
		return 1
	}
	runID := fs.Arg(0)

	return app.Execute(ctx, s, func(ctx context.Context, env *app.Env) int {
		if env.History == nil {
			fmt.Fprintln(s.Stderr, "history: disabled (set history.enabled: true in the config)")
			return 1
		}
		run, msgs, err := env.History.GetRun(ctx, runID)
		if errors.Is(err, storage.ErrRunNotFound) {
			fmt.Fprintf(s.Stderr, "history: run %s not found\n", runID)
			return 1
		}
		if err != nil {
			fmt.Fprintf(s.Stderr, "history: %v\n", err)
			return 1
		}

		if *jsonOut {
			if msgs == nil {
				msgs = []storage.MessageRecord{}
			}
			return writeJSON(s, struct {
				Run      *storage.RunRecord      `json:"run"`
				Messages []storage.MessageRecord `json:"messages"`
			}{run, msgs})
		}
		printRun(s.Stdout, run, msgs, time.Now())
		return 0
	})
}

func printRuns(w io.Writer, runs []storage.RunRecord, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKER\tMODE\tSTATUS\tMESSAGES\tINPUT\tSTARTED")
	for _, r := range runs {
		input := "-"
		if r.InputSize > 0 {
			input = humanize.Bytes(uint64(r.InputSize))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Worker, r.Mode, r.Status, humanize.Comma(int64(r.Messages)), input,
			humanize.RelTime(r.StartedAt, now, "ago", "from now"))
	}
	_ = tw.Flush()
}

func printRun(w io.Writer, run *storage.RunRecord, msgs []storage.MessageRecord, now time.Time) {
	fmt.Fprintf(w, "Run:      %s\n", run.ID)
	fmt.Fprintf(w, "Worker:   %s (%s)\n", run.Worker, run.Mode)
	fmt.Fprintf(w, "Status:   %s\n", run.Status)
	fmt.Fprintf(w, "Started:  %s (%s)\n", run.StartedAt.Format(time.RFC3339), humanize.RelTime(run.StartedAt, now, "ago", "from now"))
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.InputDigest != "" {
		fmt.Fprintf(w, "Input:    %s, blake3:%s\n", humanize.Bytes(uint64(run.InputSize)), run.InputDigest)
	}
	if run.LastError != "" {
		fmt.Fprintf(w, "Error:    %s\n", run.LastError)
	}

	fmt.Fprintf(w, "\nMessages (%d):\n", len(msgs))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, m := range msgs {
		fmt.Fprintf(tw, "  %d\t%s\t%s\n", m.Seq, m.Message.Type, m.Message.Text())
	}
	_ = tw.Flush()
}

func writeJSON(s app.Streams, v any) int {
	enc := json.NewEncoder(s.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(s.Stderr, "encode JSON: %v\n", err)
		return 1
	}
	return 0
}
