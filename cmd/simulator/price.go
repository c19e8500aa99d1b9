package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"coincap-trade-sim/internal/market"
	"coincap-trade-sim/internal/pricecache"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type priceCmd struct {
	cached bool
	follow bool
}

func (*priceCmd) Name() string     { return "price" }
func (*priceCmd) Synopsis() string { return "print the current price of an asset" }
func (*priceCmd) Usage() string {
	return `simulator price [-cached] <asset>
simulator price -follow [asset]

  Fetches one quote from CoinCap, or with -cached reads the last price
  mirrored to Redis by a running simulator. With -follow, prints every
  update the running simulator publishes until interrupted.
`
}

func (c *priceCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.cached, "cached", false, "read the Redis mirror instead of calling the provider")
	f.BoolVar(&c.follow, "follow", false, "stream price updates published to Redis")
}

func (c *priceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.follow {
		return c.executeFollow(ctx, f)
	}
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: expected exactly one asset")
		return subcommands.ExitUsageError
	}

	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	asset, err := a.catalog.Parse(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	if c.cached {
		if a.mirror == nil {
			fmt.Fprintln(os.Stderr, "Error: -cached needs a reachable redis.url")
			return subcommands.ExitFailure
		}
		v, ok, err := a.mirror.Latest(ctx, asset)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "No cached price for %s\n", asset)
			return subcommands.ExitFailure
		}
		sample, err := market.NewSample(asset, v, nowFunc())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Printf("%s\t%s\n", asset, sample.Format(market.Neutral))
		return subcommands.ExitSuccess
	}

	sample, err := a.quoteClient().Fetch(ctx, asset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%s\t%s\n", asset, sample.Format(market.Neutral))
	return subcommands.ExitSuccess
}

func (c *priceCmd) executeFollow(ctx context.Context, f *flag.FlagSet) subcommands.ExitStatus {
	if f.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Error: -follow takes at most one asset")
		return subcommands.ExitUsageError
	}

	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	var filter market.Asset
	if f.NArg() == 1 {
		if filter, err = a.catalog.Parse(f.Arg(0)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
	}
	if a.mirror == nil {
		fmt.Fprintln(os.Stderr, "Error: -follow needs a reachable redis.url")
		return subcommands.ExitFailure
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	updates, err := a.mirror.Subscribe(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	followPrices(updates, filter, os.Stdout)
	return subcommands.ExitSuccess
}

// followPrices prints updates until the channel closes, marking each price with
// its direction against the previous update for the same asset. An empty filter
// prints every asset. It returns the number of lines written.
func followPrices(updates <-chan pricecache.Update, filter market.Asset, out io.Writer) int {
	last := make(map[market.Asset]market.Sample)
	printed := 0
	for u := range updates {
		asset := market.Asset(u.Asset)
		if filter != "" && asset != filter {
			continue
		}
		v, err := decimal.NewFromString(u.Price)
		if err != nil {
			continue
		}
		sample, err := market.NewSample(asset, v, u.ObservedAt)
		if err != nil {
			continue
		}
		prev, hasPrev := last[asset]
		last[asset] = sample
		fmt.Fprintf(out, "%s\t%s\n", asset, sample.Format(sample.DirectionFrom(prev, hasPrev)))
		printed++
	}
	return printed
}
