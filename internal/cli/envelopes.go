package cli

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/google/subcommands"

	"envelopes/internal/core"
)

type listCmd struct{ app *App }

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list all envelopes and the total budget" }
func (*listCmd) Usage() string {
	return `envelopectl list

  Prints every envelope with its balance, followed by the total across all
  envelopes.
`
}
func (*listCmd) SetFlags(*flag.FlagSet) {}

func (c *listCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, cancel := c.app.context(ctx)
	defer cancel()

	snap, err := c.app.api().List(ctx)
	if err != nil {
		return c.app.fail(err)
	}
	if c.app.printJSON(snap) {
		return subcommands.ExitSuccess
	}

	tw := tabwriter.NewWriter(c.app.Out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ID\tTITLE\tBUDGET\t")
	for _, env := range snap.Envelopes {
		fmt.Fprintf(tw, "%d\t%s\t%s\t\n", env.ID, env.Title, c.app.money(env.Budget))
	}
	fmt.Fprintf(tw, "\tTOTAL\t%s\t\n", c.app.money(snap.TotalBudget))
	_ = tw.Flush()
	return subcommands.ExitSuccess
}

type getCmd struct{ app *App }

func (*getCmd) Name() string     { return "get" }
func (*getCmd) Synopsis() string { return "show one envelope" }
func (*getCmd) Usage() string {
	return `envelopectl get <id>
`
}
func (*getCmd) SetFlags(*flag.FlagSet) {}

func (c *getCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return c.app.usage(f, "get takes exactly one envelope id")
	}
	id, err := parseID(f.Arg(0))
	if err != nil {
		return c.app.usage(f, err.Error())
	}

	ctx, cancel := c.app.context(ctx)
	defer cancel()

	env, err := c.app.api().Get(ctx, id)
	if err != nil {
		return c.app.fail(err)
	}
	c.app.printEnvelope(env)
	return subcommands.ExitSuccess
}

type createCmd struct{ app *App }

func (*createCmd) Name() string     { return "create" }
func (*createCmd) Synopsis() string { return "create an envelope with an initial budget" }
func (*createCmd) Usage() string {
	return `envelopectl create <title> <budget>
`
}
func (*createCmd) SetFlags(*flag.FlagSet) {}

func (c *createCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		return c.app.usage(f, "create takes a title and a budget")
	}
	budget, err := parseAmount(f.Arg(1))
	if err != nil {
		return c.app.usage(f, err.Error())
	}

	ctx, cancel := c.app.context(ctx)
	defer cancel()

	env, err := c.app.api().Create(ctx, f.Arg(0), budget)
	if err != nil {
		return c.app.fail(err)
	}
	c.app.printEnvelope(env)
	return subcommands.ExitSuccess
}

type updateCmd struct {
	app    *App
	title  string
	budget string
}

func (*updateCmd) Name() string     { return "update" }
func (*updateCmd) Synopsis() string { return "rename an envelope or replace its budget" }
func (*updateCmd) Usage() string {
	return `envelopectl update [-title <title>] [-budget <amount>] <id>

  At least one of -title or -budget is required. Setting -budget replaces
  the balance; the total budget moves by the difference.
`
}

func (c *updateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.title, "title", "", "New title for the envelope.")
	f.StringVar(&c.budget, "budget", "", "New budget for the envelope.")
}

func (c *updateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return c.app.usage(f, "update takes exactly one envelope id")
	}
	id, err := parseID(f.Arg(0))
	if err != nil {
		return c.app.usage(f, err.Error())
	}

	var (
		title  *string
		budget *float64
	)
	f.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "title":
			title = &c.title
		case "budget":
			if v, perr := parseAmount(c.budget); perr == nil {
				budget = &v
			} else {
				err = perr
			}
		}
	})
	if err != nil {
		return c.app.usage(f, err.Error())
	}

	ctx, cancel := c.app.context(ctx)
	defer cancel()

	env, err := c.app.api().Update(ctx, id, title, budget)
	if err != nil {
		return c.app.fail(err)
	}
	c.app.printEnvelope(env)
	return subcommands.ExitSuccess
}

type deleteCmd struct{ app *App }

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete an envelope" }
func (*deleteCmd) Usage() string {
	return `envelopectl delete <id>

  Removes the envelope; its balance leaves the total budget.
`
}
func (*deleteCmd) SetFlags(*flag.FlagSet) {}

func (c *deleteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return c.app.usage(f, "delete takes exactly one envelope id")
	}
	id, err := parseID(f.Arg(0))
	if err != nil {
		return c.app.usage(f, err.Error())
	}

	ctx, cancel := c.app.context(ctx)
	defer cancel()

	env, err := c.app.api().Delete(ctx, id)
	if err != nil {
		return c.app.fail(err)
	}
	if c.app.printJSON(env) {
		return subcommands.ExitSuccess
	}
	fmt.Fprintf(c.app.Out, "Deleted envelope %d (%s, %s)\n", env.ID, env.Title, c.app.money(env.Budget))
	return subcommands.ExitSuccess
}

func (a *App) printEnvelope(env core.Envelope) {
	if a.printJSON(env) {
		return
	}
	fmt.Fprintf(a.Out, "#%d %s: %s\n", env.ID, env.Title, a.money(env.Budget))
}
