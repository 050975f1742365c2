// cmd/backtest runs the crossover backtest offline against the SQLite bar
// store and prints indicator tails, signals and a trade summary.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=NVDA --fetch --sma-short=5 --sma-long=20
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"quant-dashboard/internal/backtest"
	"quant-dashboard/internal/collector"
	"quant-dashboard/internal/indicator"
	"quant-dashboard/internal/logger"
	"quant-dashboard/internal/model"
	"quant-dashboard/internal/service"
	sqlitestore "quant-dashboard/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	def := backtest.DefaultParams()
	symbol := flag.String("symbol", "AAPL", "Ticker to backtest")
	dbPath := flag.String("db", "data/market.db", "Path to SQLite database")
	fetch := flag.Bool("fetch", false, "Download history from Yahoo Finance before running")
	rng := flag.String("range", "max", "Yahoo history range used with --fetch (1y, 5y, max, ...)")
	proxy := flag.String("proxy", "", "HTTP proxy for Yahoo requests")
	tail := flag.Int("tail", 5, "Indicator rows to print")
	verbose := flag.Bool("v", false, "Debug logging")

	p := def
	flag.IntVar(&p.SMAShort, "sma-short", def.SMAShort, "Short SMA window")
	flag.IntVar(&p.SMALong, "sma-long", def.SMALong, "Long SMA window")
	flag.IntVar(&p.RSIPeriod, "rsi", def.RSIPeriod, "RSI period")
	flag.Float64Var(&p.RSIBuyK, "rsi-buy-k", def.RSIBuyK, "Enter only while RSI is below this")
	flag.BoolVar(&p.UseRSI, "use-rsi", def.UseRSI, "Apply the RSI entry filter")
	flag.Parse()

	level := logger.ParseLevel("warn")
	if *verbose {
		level = logger.ParseLevel("debug")
	}
	logger.Init("backtest", level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	store, err := sqlitestore.Open(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer store.Close()

	opts := service.Options{Store: store, HistoryRange: *rng}
	if *fetch {
		opts.Fetcher = collector.NewYahooFetcher(*proxy)
	}
	svc, err := service.New(opts)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	if *fetch {
		res, err := svc.Refresh(ctx, *symbol)
		if err != nil {
			log.Fatalf("[backtest] fetch failed: %v", err)
		}
		fmt.Printf("Fetched %d bars for %s (%s → %s)\n\n", res.Bars, res.Symbol, res.First, res.Last)
	}

	d, err := svc.Dashboard(ctx, *symbol, p.Dashboard())
	if err != nil {
		log.Fatalf("[backtest] dashboard failed: %v", err)
	}
	res, err := svc.Backtest(ctx, *symbol, p)
	if err != nil {
		log.Fatalf("[backtest] run failed: %v", err)
	}

	printTail(d, *tail)
	printSignals(d.Markers)
	printSummary(res)
}

func printTail(d *indicator.Dashboard, n int) {
	fmt.Printf("%s: %d bars\n", d.Symbol, d.Bars)
	show := func(name string, pts []model.IndicatorPoint) {
		if pts == nil {
			return
		}
		start := len(pts) - n
		if start < 0 {
			start = 0
		}
		fmt.Printf("  %-10s", name)
		if len(pts) == 0 {
			fmt.Print(" (not enough history)")
		}
		for _, pt := range pts[start:] {
			fmt.Printf(" %s=%.2f", pt.Time, pt.Value)
		}
		fmt.Println()
	}
	show("SMA short", d.SMAShort)
	show("SMA long", d.SMALong)
	show("RSI", d.RSI)
	if d.MACD != nil {
		show("MACD", d.MACD.MACD)
		show("Signal", d.MACD.Signal)
	}
	fmt.Println()
}

func printSignals(markers []model.SignalMarker) {
	fmt.Printf("Signals: %d\n", len(markers))
	start := len(markers) - 10
	if start < 0 {
		start = 0
	}
	for _, m := range markers[start:] {
		fmt.Printf("  %s %-4s %s\n", m.Time, m.Direction, m.Reason)
	}
	fmt.Println()
}

func printSummary(res *backtest.Result) {
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Ticker:            %-16s ║\n", res.Ticker)
	fmt.Printf("║  Days simulated:    %-16d ║\n", len(res.Results))
	fmt.Printf("║  Final return %%:    %-16.2f ║\n", res.FinalReturn)
	fmt.Printf("║  Trades:            %-16d ║\n", res.TotalTrades)
	fmt.Printf("║  Win rate %%:        %-16.2f ║\n", res.WinRate)
	fmt.Println("╚══════════════════════════════════════╝")
}
