package cli

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
)

type activityCmd struct {
	app   *App
	limit int
}

func (*activityCmd) Name() string     { return "activity" }
func (*activityCmd) Synopsis() string { return "show recent ledger events" }
func (*activityCmd) Usage() string {
	return `envelopectl activity [-limit n]

  Lists the most recent journal entries, newest first. Requires the server
  to run with a journal database.
`
}

func (c *activityCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "limit", 20, "Maximum number of events to show.")
}

func (c *activityCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		return c.app.usage(f, "activity takes no arguments")
	}
	if c.limit <= 0 {
		return c.app.usage(f, "-limit must be positive")
	}

	ctx, cancel := c.app.context(ctx)
	defer cancel()

	evts, err := c.app.api().Activity(ctx, c.limit)
	if err != nil {
		return c.app.fail(err)
	}
	if c.app.printJSON(evts) {
		return subcommands.ExitSuccess
	}
	if len(evts) == 0 {
		fmt.Fprintln(c.app.Out, "No activity recorded.")
		return subcommands.ExitSuccess
	}

	tw := tabwriter.NewWriter(c.app.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tEVENT\tENVELOPES\tAMOUNT\tTOTAL")
	for _, evt := range evts {
		ids := make([]string, len(evt.EnvelopeIDs))
		for i, id := range evt.EnvelopeIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			evt.OccurredAt.Local().Format(time.DateTime),
			evt.Type,
			strings.Join(ids, ","),
			c.app.money(evt.Amount),
			c.app.money(evt.TotalBudget),
		)
	}
	_ = tw.Flush()
	return subcommands.ExitSuccess
}
