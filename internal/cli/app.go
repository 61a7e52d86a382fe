// Package cli implements the envelopectl subcommands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/subcommands"

	"envelopes/internal/client"
	"envelopes/internal/format"
)

// App is the state shared by every command. Fields are read when a command
// executes, so they may be filled in after flag parsing.
type App struct {
	ServerURL string
	Currency  string
	Timeout   time.Duration
	Retries   int
	JSON      bool

	Out io.Writer
	Err io.Writer

	client *client.Client
}

// Register adds the envelope commands to c.
func Register(c *subcommands.Commander, app *App) {
	c.Register(&listCmd{app: app}, "envelopes")
	c.Register(&getCmd{app: app}, "envelopes")
	c.Register(&createCmd{app: app}, "envelopes")
	c.Register(&updateCmd{app: app}, "envelopes")
	c.Register(&deleteCmd{app: app}, "envelopes")

	c.Register(&spendCmd{app: app}, "money")
	c.Register(&transferCmd{app: app}, "money")
	c.Register(&distributeCmd{app: app}, "money")

	c.Register(&activityCmd{app: app}, "journal")
}

func (a *App) api() *client.Client {
	if a.client == nil {
		a.client = client.New(a.ServerURL, client.WithRetries(a.Retries))
	}
	return a.client
}

func (a *App) context(parent context.Context) (context.Context, context.CancelFunc) {
	if a.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, a.Timeout)
}

func (a *App) money(v float64) string {
	return format.Money(v, a.Currency)
}

// printJSON writes v as indented JSON when -json is set.
func (a *App) printJSON(v any) bool {
	if !a.JSON {
		return false
	}
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(a.Err, err)
	}
	return true
}

// fail reports err and maps it to an exit status.
func (a *App) fail(err error) subcommands.ExitStatus {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(a.Err, "Error: %s\n", apiErr.Message)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(a.Err, "Error: %v\n", err)
	return subcommands.ExitFailure
}

func (a *App) usage(f *flag.FlagSet, msg string) subcommands.ExitStatus {
	fmt.Fprintln(a.Err, msg)
	f.Usage()
	return subcommands.ExitUsageError
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid envelope id %q", s)
	}
	return id, nil
}

func parseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
