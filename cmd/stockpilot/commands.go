package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"stockpilot/internal/config"
	"stockpilot/internal/engine"
	"stockpilot/internal/logger"
	"stockpilot/internal/market/alpaca"
	"stockpilot/internal/orders"
	"stockpilot/internal/pricing"
	"stockpilot/internal/report"
	"stockpilot/internal/storage"

	"github.com/google/subcommands"
)

// app bundles everything a command needs after bootstrap.
type app struct {
	cfg      *config.Config
	provider *alpaca.Provider
	store    *storage.Store
}

// bootstrap loads the environment and config, wires the rotating logger and
// builds the shared components. Every command starts here.
func bootstrap(configPath string) (*app, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logDir := filepath.Join(cfg.DataDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}
	logger.Setup(filepath.Join(logDir, "stockpilot.log"), cfg.MaxLogSizeMB, cfg.MaxLogBackups)

	return &app{
		cfg:      cfg,
		provider: alpaca.NewProvider(),
		store:    storage.NewStore(cfg.DataDir),
	}, nil
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return subcommands.ExitFailure
}

// --- update ---

type updateCmd struct {
	configPath string
}

func (*updateCmd) Name() string     { return "update" }
func (*updateCmd) Synopsis() string { return "run the daily pricing pass and refresh the position book" }
func (*updateCmd) Usage() string {
	return `stockpilot update [-config <file>]

  Fetches current prices for the watch-list and benchmarks, rebuilds
  docs/latest.json and appends the day's row to the history CSV.
`
}

func (c *updateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "config.json", "portfolio configuration file")
}

func (c *updateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap(c.configPath)
	if err != nil {
		return fail(err)
	}
	if err := pricing.New(a.cfg, a.provider, a.store).Run(); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// --- sync ---

type syncCmd struct {
	configPath string
}

func (*syncCmd) Name() string { return "sync" }
func (*syncCmd) Synopsis() string {
	return "detect stop executions, reconcile positions and refresh protective stops"
}
func (*syncCmd) Usage() string {
	return `stockpilot sync [-config <file>]

  Runs the full engine pipeline: executed-stop detection and backfill,
  position reconciliation, trailing-stop update and stop-order sync.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "config.json", "portfolio configuration file")
}

func (c *syncCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap(c.configPath)
	if err != nil {
		return fail(err)
	}
	if err := engine.New(a.cfg, a.provider, a.store).Run(); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// --- orders ---

type ordersCmd struct {
	configPath string
	kind       string
}

func (*ordersCmd) Name() string     { return "orders" }
func (*ordersCmd) Synopsis() string { return "place initial buys, static stops, or check order status" }
func (*ordersCmd) Usage() string {
	return `stockpilot orders -kind initial|stops|status [-config <file>]

  initial  market BUY of floor(allocation/price) shares per configured symbol
  stops    one GTC sell-stop per book position at its configured stop loss
  status   list recent venue orders for configured symbols
`
}

func (c *ordersCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "config.json", "portfolio configuration file")
	f.StringVar(&c.kind, "kind", "status", "operation: initial, stops or status")
}

func (c *ordersCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap(c.configPath)
	if err != nil {
		return fail(err)
	}
	mgr := orders.New(a.cfg, a.provider, a.store)

	switch c.kind {
	case "initial":
		err = mgr.PlaceInitialOrders()
	case "stops":
		err = mgr.PlaceStopLossOrders()
	case "status":
		_, err = mgr.CheckOrderStatus()
	default:
		fmt.Fprintf(os.Stderr, "Unknown -kind %q\n%s", c.kind, c.Usage())
		return subcommands.ExitUsageError
	}
	if err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// --- liquidate ---

type liquidateCmd struct {
	configPath string
}

func (*liquidateCmd) Name() string     { return "liquidate" }
func (*liquidateCmd) Synopsis() string { return "emergency liquidation of one position" }
func (*liquidateCmd) Usage() string {
	return `stockpilot liquidate [-config <file>] <symbol>

  Cancels all open orders for the symbol and market-sells the full venue
  position.
`
}

func (c *liquidateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "config.json", "portfolio configuration file")
}

func (c *liquidateCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	symbol := f.Arg(0)

	a, err := bootstrap(c.configPath)
	if err != nil {
		return fail(err)
	}
	if err := orders.New(a.cfg, a.provider, a.store).EmergencyLiquidate(symbol); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// --- report ---

type reportCmd struct {
	configPath string
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "write the stop-loss status report" }
func (*reportCmd) Usage() string {
	return `stockpilot report [-config <file>]

  Renders the per-symbol stop status report to stdout and the day's
  report file under logs/.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "config.json", "portfolio configuration file")
}

func (c *reportCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap(c.configPath)
	if err != nil {
		return fail(err)
	}
	path, err := report.New(a.cfg, a.store).Write()
	if err != nil {
		return fail(err)
	}
	log.Printf("Report written to %s", path)
	return subcommands.ExitSuccess
}
