// Command bilancio-admin runs one ledger operation against the configured
// database and prints the outcome as JSON. Run `bilancio-admin help` for the
// list of subcommands.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"

	"bilancio/internal/cli"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.BootstrapLogger())
	logger := cli.SetupLogger(cfg).WithComponent(applog.ComponentAdmin)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	notifier, closeNotifier := cli.InitNotifier(logger, cfg)
	engine := cli.NewEngine(logger, cfg, repo, notifier)

	status, err := run(context.Background(), engine, os.Args[1:], os.Stdout, os.Stderr, time.Now)

	closeNotifier()
	repo.Close()

	if err != nil {
		logger.Error("Command failed", "args", os.Args[1:], "error", err)
	}
	os.Exit(int(status))
}

// run dispatches args to the registered subcommands. The returned error is the
// one that made the command fail, if any.
func run(ctx context.Context, engine *services.Engine, args []string, out, errOut io.Writer, now func() time.Time) (subcommands.ExitStatus, error) {
	top := flag.NewFlagSet("bilancio-admin", flag.ContinueOnError)
	top.SetOutput(errOut)
	if err := top.Parse(args); err != nil {
		return subcommands.ExitUsageError, err
	}

	commander := subcommands.NewCommander(top, "bilancio-admin")
	commander.Output = out
	commander.Error = errOut
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	env := &adminEnv{engine: engine, out: out, now: now}
	for _, c := range env.commands() {
		commander.Register(c, "ledger")
	}

	status := commander.Execute(ctx)
	return status, env.err
}
