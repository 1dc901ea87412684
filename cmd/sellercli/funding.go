package main

import (
	"context"
	"fmt"

	"github.com/chanmarket/autoseller/funding"
	"github.com/chanmarket/autoseller/node"
	"github.com/urfave/cli"
)

var feeRateCommand = cli.Command{
	Name:   "feerate",
	Usage:  "show the fee rate channels are funded with",
	Action: feeRate,
}

func feeRate(ctx *cli.Context) error {
	services, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	rate, err := services.FeeOracle.FeeRate(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Fee rate: %v\n", rate)

	return nil
}

var fundingPlanCommand = cli.Command{
	Name:      "fundingplan",
	Usage:     "show the outputs a channel would be funded from",
	ArgsUsage: "amt",
	Description: "Selects the wallet outputs for a channel of the given " +
		"size at the current fee rate, without opening it.",
	Flags: []cli.Flag{
		cli.IntFlag{
			Name:  "minconfs",
			Value: node.DefaultMinConfs,
			Usage: "the number of confirmations an output needs",
		},
	},
	Action: fundingPlan,
}

func fundingPlan(ctx *cli.Context) error {
	// Show command help if the incorrect number arguments was provided.
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "fundingplan")
	}

	amt, err := parseAmt(ctx.Args().First())
	if err != nil {
		return err
	}

	services, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	ctxb := context.Background()
	rate, err := services.FeeOracle.FeeRate(ctxb)
	if err != nil {
		return err
	}

	utxos, err := services.Node.ListSpendableOutputs(
		ctxb, int32(ctx.Int("minconfs")),
	)
	if err != nil {
		return err
	}

	plan, err := funding.Select(amt, rate, utxos)
	if err != nil {
		return err
	}

	fmt.Printf("Fee rate:     %v\n", rate)
	fmt.Printf("Inputs:       %d of %d\n", len(plan.Outpoints), len(utxos))
	for _, op := range plan.Outpoints {
		fmt.Printf("              %v\n", op)
	}
	fmt.Printf("Input total:  %v\n", plan.Total)
	fmt.Printf("Funding fee:  %.1f sat\n", plan.Fee)

	return nil
}
