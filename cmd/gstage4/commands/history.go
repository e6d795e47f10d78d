package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fpemud-os/gstage4/internal/journal"
)

// HistoryCmd lists recorded runs, or the stage events of one run.
type HistoryCmd struct {
	Limit int    `help:"Maximum number of runs to list." default:"20"`
	RunID string `arg:"" optional:"" help:"Show the stage events of this run instead of the run list."`
}

func (c *HistoryCmd) Run(g *Global) error {
	js, err := journal.Open(g.journalPath())
	if err != nil {
		return err
	}
	defer js.Close()

	if c.RunID != "" {
		return c.printEvents(js)
	}
	return c.printRuns(js)
}

func (c *HistoryCmd) printRuns(js *journal.Store) error {
	runs, err := js.Runs(context.Background(), c.Limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTARGET\tVERSION\tSTARTED\tDURATION\tSTATUS")
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).String()
		}
		fmt.Fprintf(w, "%s\t%s/%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Target, r.SubArch, r.Version,
			r.StartedAt.Format("2006-01-02 15:04:05"), duration, r.Status)
	}
	return w.Flush()
}

func (c *HistoryCmd) printEvents(js *journal.Store) error {
	events, err := js.Events(context.Background(), c.RunID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no events recorded for run %s", c.RunID)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSTAGE\tEVENT\tDETAIL")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.At.Format("15:04:05"), e.Stage, e.Event, e.Detail)
	}
	return w.Flush()
}
