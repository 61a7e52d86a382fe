package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"envelopes/internal/core"
)

type spendCmd struct{ app *App }

func (*spendCmd) Name() string     { return "spend" }
func (*spendCmd) Synopsis() string { return "subtract a spend from an envelope" }
func (*spendCmd) Usage() string {
	return `envelopectl spend <id> <amount>

  Fails without changing anything when the envelope holds less than amount.
`
}
func (*spendCmd) SetFlags(*flag.FlagSet) {}

func (c *spendCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		return c.app.usage(f, "spend takes an envelope id and an amount")
	}
	id, err := parseID(f.Arg(0))
	if err != nil {
		return c.app.usage(f, err.Error())
	}
	amount, err := parseAmount(f.Arg(1))
	if err != nil {
		return c.app.usage(f, err.Error())
	}

	ctx, cancel := c.app.context(ctx)
	defer cancel()

	env, err := c.app.api().Spend(ctx, id, amount)
	if err != nil {
		return c.app.fail(err)
	}
	c.app.printEnvelope(env)
	return subcommands.ExitSuccess
}

type transferCmd struct{ app *App }

func (*transferCmd) Name() string     { return "transfer" }
func (*transferCmd) Synopsis() string { return "move funds between two envelopes" }
func (*transferCmd) Usage() string {
	return `envelopectl transfer <from-id> <to-id> <amount>
`
}
func (*transferCmd) SetFlags(*flag.FlagSet) {}

func (c *transferCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 3 {
		return c.app.usage(f, "transfer takes two envelope ids and an amount")
	}
	from, err := parseID(f.Arg(0))
	if err != nil {
		return c.app.usage(f, err.Error())
	}
	to, err := parseID(f.Arg(1))
	if err != nil {
		return c.app.usage(f, err.Error())
	}
	amount, err := parseAmount(f.Arg(2))
	if err != nil {
		return c.app.usage(f, err.Error())
	}

	ctx, cancel := c.app.context(ctx)
	defer cancel()

	res, err := c.app.api().Transfer(ctx, from, to, amount)
	if err != nil {
		return c.app.fail(err)
	}
	if c.app.printJSON(res) {
		return subcommands.ExitSuccess
	}
	fmt.Fprintf(c.app.Out, "Moved %s from %s to %s\n", c.app.money(amount), res.From.Title, res.To.Title)
	c.app.printEnvelope(res.From)
	c.app.printEnvelope(res.To)
	return subcommands.ExitSuccess
}

type distributeCmd struct{ app *App }

func (*distributeCmd) Name() string     { return "distribute" }
func (*distributeCmd) Synopsis() string { return "split a lump sum across envelopes by percentage" }
func (*distributeCmd) Usage() string {
	return `envelopectl distribute <amount> <id>:<percentage>...

  Example: envelopectl distribute 1000 1:50 2:30 3:20
  Percentages must add up to 100.
`
}
func (*distributeCmd) SetFlags(*flag.FlagSet) {}

func (c *distributeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		return c.app.usage(f, "distribute takes an amount and at least one id:percentage pair")
	}
	amount, err := parseAmount(f.Arg(0))
	if err != nil {
		return c.app.usage(f, err.Error())
	}
	shares, err := parseShares(f.Args()[1:])
	if err != nil {
		return c.app.usage(f, err.Error())
	}

	ctx, cancel := c.app.context(ctx)
	defer cancel()

	res, err := c.app.api().Distribute(ctx, amount, shares)
	if err != nil {
		return c.app.fail(err)
	}
	if c.app.printJSON(res) {
		return subcommands.ExitSuccess
	}

	fmt.Fprintf(c.app.Out, "Distributed %s\n", c.app.money(res.TotalDistributed))
	tw := tabwriter.NewWriter(c.app.Out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ID\tTITLE\tADDED\tBUDGET\t")
	for _, d := range res.Distributions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", d.ID, d.Title, c.app.money(d.AddedAmount), c.app.money(d.NewBudget))
	}
	_ = tw.Flush()
	return subcommands.ExitSuccess
}

// parseShares reads "id:percentage" arguments.
func parseShares(args []string) ([]core.Distribution, error) {
	out := make([]core.Distribution, 0, len(args))
	for _, arg := range args {
		idPart, pctPart, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("invalid share %q, want id:percentage", arg)
		}
		id, err := parseID(idPart)
		if err != nil {
			return nil, err
		}
		pct, err := parseAmount(pctPart)
		if err != nil {
			return nil, fmt.Errorf("invalid percentage in %q", arg)
		}
		out = append(out, core.Distribution{ID: id, Percentage: pct})
	}
	return out, nil
}
