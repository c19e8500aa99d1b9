package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"coincap-trade-sim/internal/ledger"
	"github.com/google/subcommands"
)

type accountCmd struct {
	user   string
	cached bool
}

func (*accountCmd) Name() string     { return "account" }
func (*accountCmd) Synopsis() string { return "show an account's balances, holdings and profit" }
func (*accountCmd) Usage() string {
	return `simulator account -user <username> [-cached]

  Holdings are valued at live CoinCap prices, or at the Redis mirror's
  prices with -cached.
`
}

func (c *accountCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "account to show")
	f.BoolVar(&c.cached, "cached", false, "value holdings from the Redis mirror")
}

func (c *accountCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		return subcommands.ExitUsageError
	}
	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	engine := ledger.NewEngine(a.log.Named("ledger"), a.store, a.store, a.livePrices(ctx, c.cached), a.catalog)
	sum, err := engine.Summary(ctx, c.user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	renderSummary(os.Stdout, sum)
	return subcommands.ExitSuccess
}

type historyCmd struct {
	user string
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "list an account's transactions, newest first" }
func (*historyCmd) Usage() string {
	return `simulator history -user <username>
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "account to list")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		return subcommands.ExitUsageError
	}
	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	engine := ledger.NewEngine(a.log.Named("ledger"), a.store, a.store, quoteFunc(nil), a.catalog)
	txs, err := engine.History(ctx, c.user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	renderHistory(os.Stdout, txs)
	return subcommands.ExitSuccess
}
