package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"finadvisor/internal/domain"
	"finadvisor/internal/infra/config"
)

const defaultRecentLimit = 20

// runRecent prints the most recent run journal entries.
func runRecent(w io.Writer, args []string) error {
	limit, err := limitFrom(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPathFrom(args, os.Getenv("FINADVISOR_CONFIG")))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !cfg.Journal.Enabled {
		return fmt.Errorf("run journal is disabled (set journal.enabled or FINADVISOR_JOURNAL_ENABLED=true)")
	}

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer j.Close()

	recs, err := j.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	printRecords(w, recs)
	return nil
}

func limitFrom(args []string) (int, error) {
	for i, arg := range args {
		var v string
		switch {
		case arg == "--limit" && i+1 < len(args):
			v = args[i+1]
		case strings.HasPrefix(arg, "--limit="):
			v = strings.TrimPrefix(arg, "--limit=")
		default:
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid --limit %q", v)
		}
		return n, nil
	}
	return defaultRecentLimit, nil
}

func printRecords(w io.Writer, recs []domain.RunRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tREQUEST\tRUN\tSTATUS\tERROR\tDURATION")
	for _, r := range recs {
		status := string(r.Status)
		if status == "" {
			status = "-"
		}
		code := string(r.ErrorCode)
		if code == "" {
			code = "-"
		}
		run := r.RunID
		if run == "" {
			run = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.RequestID, run, status, code,
			r.Duration().Round(time.Millisecond))
	}
	tw.Flush()
}
