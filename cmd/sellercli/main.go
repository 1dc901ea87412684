package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/chanmarket/autoseller"
	"github.com/chanmarket/autoseller/sellerd"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/signal"
	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[sellercli] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()

	app.Version = autoseller.Version()
	app.Name = "sellercli"
	app.Usage = "inspect the state sellerd works with"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "configfile",
			EnvVar: "CONFIG_PATH",
			Usage:  "path to the sellerd configuration file",
		},
		cli.StringFlag{
			Name:  "debuglevel",
			Value: "warn",
			Usage: "log level of the seller's subsystems",
		},
	}
	app.Commands = []cli.Command{
		loginCommand, ordersCommand, feeRateCommand, fundingPlanCommand,
	}

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

// getServices loads the sellerd configuration and connects to lnd.
func getServices(ctx *cli.Context) (*sellerd.Services, func(), error) {
	// The cli only logs to stdout, there is no log file and no shutdown
	// to request on critical errors.
	logMgr := sellerd.NewLogManager(
		build.DefaultLogConfig(), build.NewRotatingLogWriter(),
	)
	sellerd.SetupLoggers(logMgr, signal.Interceptor{})

	err := build.ParseAndSetDebugLevels(
		ctx.GlobalString("debuglevel"), logMgr,
	)
	if err != nil {
		return nil, nil, err
	}

	var args []string
	if configFile := ctx.GlobalString("configfile"); configFile != "" {
		args = append(args, "--configfile="+configFile)
	}

	cfg, err := sellerd.LoadConfig(args)
	if err != nil {
		return nil, nil, err
	}
	if err := sellerd.Validate(cfg); err != nil {
		return nil, nil, err
	}

	services, err := sellerd.NewServices(
		context.Background(), cfg, "sellercli",
	)
	if err != nil {
		return nil, nil, err
	}

	return services, services.Close, nil
}

func parseAmt(text string) (btcutil.Amount, error) {
	amtInt64, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amt value")
	}
	return btcutil.Amount(amtInt64), nil
}
