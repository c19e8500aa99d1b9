package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"coincap-trade-sim/internal/board"
	"coincap-trade-sim/internal/ledger"
	"coincap-trade-sim/internal/market"
	"github.com/Rhymond/go-money"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

var nowFunc = time.Now

var (
	colorUp    = color.New(color.FgGreen)
	colorDown  = color.New(color.FgRed)
	colorAlert = color.New(color.FgYellow)
	colorTitle = color.New(color.FgCyan, color.Bold)
	colorError = color.New(color.FgRed, color.Bold)
)

// formatUSD renders d as a dollar amount rounded to cents.
func formatUSD(d decimal.Decimal) string {
	cents := d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}

func renderBoard(w io.Writer, rows []board.Row) {
	colorTitle.Fprintf(w, "Prices at %s\n", nowFunc().Format("15:04:05"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range rows {
		text := r.Text
		switch {
		case r.Failed:
			text = colorAlert.Sprint(text)
		case r.Direction == market.Up:
			text = colorUp.Sprint(text)
		case r.Direction == market.Down:
			text = colorDown.Sprint(text)
		}
		fmt.Fprintf(tw, "%s\t%s\n", r.Asset, text)
	}
	tw.Flush()
}

func renderCandles(w io.Writer, asset market.Asset, candles []market.Candle) {
	if len(candles) == 0 {
		fmt.Fprintf(w, "Not enough samples for %s yet\n", asset)
		return
	}
	colorTitle.Fprintf(w, "%s candles\n", asset)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\topen\thigh\tlow\tclose\t")
	for _, c := range candles {
		line := fmt.Sprintf("%d\t%s\t%s\t%s\t%s\t", c.Index, c.Open.StringFixed(4), c.High.StringFixed(4), c.Low.StringFixed(4), c.Close.StringFixed(4))
		switch {
		case c.Close.GreaterThan(c.Open):
			line = colorUp.Sprint(line)
		case c.Close.LessThan(c.Open):
			line = colorDown.Sprint(line)
		}
		fmt.Fprintln(tw, line)
	}
	tw.Flush()
}

func renderSummary(w io.Writer, s *ledger.Summary) {
	colorTitle.Fprintf(w, "Account %s\n", s.Username)
	fmt.Fprintf(w, "  Starting balance: %s\n", formatUSD(s.StartingBalance))
	fmt.Fprintf(w, "  Cash balance:     %s\n", formatUSD(s.CashBalance))

	profit := fmt.Sprintf("%s%%", s.ProfitPercent.StringFixed(1))
	switch {
	case s.ProfitPercent.IsPositive():
		profit = colorUp.Sprint(profit)
	case s.ProfitPercent.IsNegative():
		profit = colorDown.Sprint(profit)
	}
	fmt.Fprintf(w, "  Profit:           %s\n", profit)
	if !s.CreatedAt.IsZero() {
		fmt.Fprintf(w, "  Member since:     %s\n", s.CreatedAt.Format("2006-01-02"))
	}

	if len(s.Holdings) == 0 {
		fmt.Fprintln(w, "  No holdings")
		return
	}
	fmt.Fprintln(w, "  Holdings:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, h := range s.Holdings {
		value := "price unavailable"
		if h.Priced {
			value = formatUSD(h.Value)
		}
		fmt.Fprintf(tw, "    %s\t%s\t%s\n", h.Asset, h.Quantity.String(), value)
	}
	tw.Flush()
	fmt.Fprintf(w, "  Holdings value:   %s\n", formatUSD(s.HoldingsValue))
}

func renderHistory(w io.Writer, txs []ledger.Transaction) {
	if len(txs) == 0 {
		fmt.Fprintln(w, "No transactions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "time\tkind\tasset\tprice\tcash\tquantity")
	for _, t := range txs {
		kind := strings.ToUpper(string(t.Kind))
		if t.Kind == ledger.Buy {
			kind = colorUp.Sprint(kind)
		} else {
			kind = colorDown.Sprint(kind)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Timestamp.Local().Format("2006-01-02 15:04:05"), kind, t.Asset,
			t.UnitPrice.StringFixed(4), formatUSD(t.CashAmount), t.Quantity.String())
	}
	tw.Flush()
}

func renderReceipt(w io.Writer, r *ledger.Receipt) {
	t := r.Transaction
	if t.Kind == ledger.Buy {
		colorUp.Fprintf(w, "Bought %s %s for %s at %s\n", t.Quantity, t.Asset, formatUSD(t.CashAmount), t.UnitPrice.StringFixed(4))
	} else {
		colorDown.Fprintf(w, "Sold %s %s for %s at %s\n", t.Quantity, t.Asset, formatUSD(t.CashAmount), t.UnitPrice.StringFixed(4))
	}
	fmt.Fprintf(w, "Balance: %s, %s held: %s\n", formatUSD(r.Balance), t.Asset, r.Holding)
}

func renderError(w io.Writer, err error) {
	colorError.Fprintf(w, "Error: %v\n", err)
}
