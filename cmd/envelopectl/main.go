// Command envelopectl manages envelopes through the HTTP API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"envelopes/internal/cli"
)

func main() {
	app := &cli.App{Out: os.Stdout, Err: os.Stderr}

	server := os.Getenv("ENVELOPES_URL")
	if server == "" {
		server = "http://localhost:3000"
	}
	flag.StringVar(&app.ServerURL, "server", server, "Base URL of the envelopes API (env ENVELOPES_URL).")
	flag.StringVar(&app.Currency, "currency", "USD", "ISO 4217 code used to format amounts.")
	flag.DurationVar(&app.Timeout, "timeout", 15*time.Second, "Deadline for each command.")
	flag.IntVar(&app.Retries, "retries", 2, "Retries for failed requests. Mutations reuse their Idempotency-Key.")
	flag.BoolVar(&app.JSON, "json", false, "Print raw JSON instead of tables.")

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cli.Register(commander, app)

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
