package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coincap-trade-sim/internal/board"
	"coincap-trade-sim/internal/config"
	"coincap-trade-sim/internal/feed"
	"coincap-trade-sim/internal/ledger"
	"coincap-trade-sim/internal/market"
	"coincap-trade-sim/internal/queue"
	"coincap-trade-sim/internal/scheduler"
	"github.com/google/subcommands"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

type runCmd struct {
	user      string
	showBoard bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "start the price feed and trade interactively" }
func (*runCmd) Usage() string {
	return `simulator run -user <username> [-board=false]

  Polls prices for every catalog asset, refreshes the price board and reads
  trading commands from stdin. Type 'help' once running.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "account to trade as")
	f.BoolVar(&c.showBoard, "board", true, "print the price board on every view refresh")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		return subcommands.ExitUsageError
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	if _, err := a.store.GetAccount(ctx, c.user); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	if err := c.run(ctx, a, os.Stdin, os.Stdout); err != nil {
		a.log.Error("Simulator stopped with error", zap.Error(err))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *runCmd) run(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := queue.New[feed.Event](a.catalog.Len() * 4)
	opts := []feed.Option{
		feed.WithErrorSink(a.store),
		feed.WithOwner(c.user),
		feed.WithHistorySize(a.cfg.Feed.HistorySize),
	}
	if a.mirror != nil {
		opts = append(opts, feed.WithObserver(a.mirror))
	}
	prices := feed.New(a.quoteClient(), a.catalog, events, a.log.Named("feed"), opts...)
	view := board.New(a.catalog, a.log.Named("board"))
	engine := ledger.NewEngine(a.log.Named("ledger"), a.store, a.store, prices, a.catalog)

	sched := scheduler.New(ctx, a.log.Named("scheduler"))
	prices.Schedule(sched, a.cfg.Feed.Interval)
	view.Schedule(sched, events, a.cfg.Feed.DrainInterval)
	if c.showBoard {
		sched.Every("view-refresh", a.cfg.Feed.ViewInterval, func(context.Context) {
			renderBoard(out, view.Rows())
		})
	}
	a.log.Info("Simulator started",
		zap.String("user", c.user),
		zap.Int("assets", a.catalog.Len()),
		zap.Duration("interval", a.cfg.Feed.Interval))

	s := &session{user: c.user, engine: engine, feed: prices, board: view, cfg: a.cfg.Feed, out: out}

	g, gctx := errgroup.WithContext(ctx)
	lines := readLines(gctx, in)
	g.Go(func() error {
		defer cancel()
		fmt.Fprintln(out, "Type 'help' for commands.")
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok || s.handle(gctx, line) {
					return nil
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("Shutting down")
		sched.Shutdown()
		waitCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		err := sched.Wait(waitCtx)
		if dropped := events.Close(); dropped > 0 {
			a.log.Info("Discarded pending events", zap.Int("count", dropped))
		}
		return err
	})
	return g.Wait()
}

func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// session executes interactive commands for one account.
type session struct {
	user   string
	engine *ledger.Engine
	feed   *feed.Feed
	board  *board.Board
	cfg    config.Feed
	out    io.Writer
}

const helpText = `Commands:
  buy <asset> <cash>      spend cash on asset at the current price
  sell <asset> <qty>      sell qty units of asset at the current price
  account                 show balances, holdings and profit
  history                 list transactions, newest first
  board                   print the price board
  chart <asset>           print recent candles for asset
  help                    show this text
  quit                    stop the simulator`

// handle runs one command line and reports whether the session should end.
func (s *session) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(s.out, helpText)
	case "buy", "sell":
		if len(args) != 2 {
			renderError(s.out, fmt.Errorf("usage: %s <asset> <amount>", cmd))
			return false
		}
		trade := s.engine.Buy
		if cmd == "sell" {
			trade = s.engine.Sell
		}
		receipt, err := trade(ctx, s.user, args[0], args[1])
		if err != nil {
			renderError(s.out, err)
			return false
		}
		renderReceipt(s.out, receipt)
	case "account":
		sum, err := s.engine.Summary(ctx, s.user)
		if err != nil {
			renderError(s.out, err)
			return false
		}
		renderSummary(s.out, sum)
	case "history":
		txs, err := s.engine.History(ctx, s.user)
		if err != nil {
			renderError(s.out, err)
			return false
		}
		renderHistory(s.out, txs)
	case "board":
		renderBoard(s.out, s.board.Rows())
	case "chart":
		if len(args) != 1 {
			renderError(s.out, fmt.Errorf("usage: chart <asset>"))
			return false
		}
		asset := market.Asset(strings.ToLower(args[0]))
		renderCandles(s.out, asset, s.feed.Candles(asset, s.cfg.ChartWindow, s.cfg.CandleChunk))
	default:
		renderError(s.out, fmt.Errorf("unknown command %q, type 'help'", cmd))
	}
	return false
}
