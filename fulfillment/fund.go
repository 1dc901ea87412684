package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btclog/v2"
	"github.com/chanmarket/autoseller/funding"
	"github.com/chanmarket/autoseller/marketplace"
	"github.com/lightningnetwork/lnd/routing/route"
)

// fund opens the channel of a paid order:
//  1. Get the current fee rate.
//  2. Select the outputs that pay for capacity and fee.
//  3. Make sure the fee doesn't exceed the order's revenue.
//  4. Open the channel from exactly the selected outputs.
//  5. Report the funding transaction to the marketplace.
func (o *Orchestrator) fund(ctx context.Context, order *marketplace.Order,
	olog btclog.Logger) (Outcome, error) {

	if order.Size <= 0 {
		return OutcomeFailed, invalidOrder("channel size %v",
			order.Size)
	}
	revenue, err := invoiceAmount(order)
	if err != nil {
		return OutcomeFailed, err
	}
	peer, err := buyerNode(order)
	if err != nil {
		return OutcomeFailed, err
	}

	feeRate, err := o.cfg.FeeOracle.FeeRate(ctx)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("fee rate: %w", err)
	}
	olog.Infof("Current fee rate: %v", feeRate)

	utxos, err := o.cfg.Node.ListSpendableOutputs(ctx, o.cfg.MinConfs)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("list spendable outputs: %w",
			err)
	}

	plan, err := funding.Select(order.Size, feeRate, utxos)
	if err != nil {
		return OutcomeFailed, err
	}
	olog.Infof("Using %d of %d UTXOs (%v) for %v, fee %.1f sat",
		len(plan.Outpoints), len(utxos), plan.Total, order.Size,
		plan.Fee)

	if plan.Fee > float64(revenue) {
		return OutcomeFailed, &UnprofitableError{
			Fee:     plan.Fee,
			Revenue: revenue,
		}
	}
	olog.Infof("Expected profit: %.1f sats", float64(revenue)-plan.Fee)

	fundingPoint, err := o.cfg.Node.OpenChannel(
		ctx, peer, feeRate, order.Size, plan.Outpoints,
	)
	if err != nil {
		return o.handleOpenFailure(ctx, order, peer, olog, err)
	}

	txPoint := fundingPoint.String()
	olog.Infof("Channel opened: %s/tx/%s", o.cfg.ExplorerURL,
		fundingPoint.Hash)

	err = o.cfg.Marketplace.RecordFundingTransaction(ctx, order.ID, txPoint)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("record funding transaction "+
			"%v: %w", txPoint, err)
	}

	return OutcomeFunded, nil
}

// handleOpenFailure checks whether the buyer's node is the reason the channel
// couldn't be opened and cancels the order if it is. The open error is always
// returned.
func (o *Orchestrator) handleOpenFailure(ctx context.Context,
	order *marketplace.Order, peer route.Vertex, olog btclog.Logger,
	openErr error) (Outcome, error) {

	openErr = fmt.Errorf("open channel: %w", openErr)

	probeErr := o.probeBuyer(ctx, peer, order.Account, olog)
	switch {
	case probeErr == nil:
		return OutcomeFailed, openErr

	case isUnreachable(probeErr):
		olog.Warnf("Can't connect to buyer's node, cancelling order: "+
			"%v", probeErr)

		err := o.cfg.Marketplace.CancelOrder(
			ctx, order.ID, marketplace.CancelUnableToConnect,
		)
		if err != nil {
			return OutcomeFailed, errors.Join(
				openErr, fmt.Errorf("cancel order: %w", err),
			)
		}

		return OutcomeCancelled, openErr

	default:
		return OutcomeFailed, errors.Join(
			openErr, fmt.Errorf("probe buyer: %w", probeErr),
		)
	}
}
