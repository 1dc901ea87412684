package fulfillment

import (
	"context"
	"fmt"

	"github.com/btcsuite/btclog/v2"
	"github.com/chanmarket/autoseller/marketplace"
)

// approve accepts a new order with a fresh invoice. If configured, orders of
// buyers whose node can't be reached are rejected instead.
func (o *Orchestrator) approve(ctx context.Context, order *marketplace.Order,
	olog btclog.Logger) (Outcome, error) {

	amt, err := invoiceAmount(order)
	if err != nil {
		return OutcomeFailed, err
	}

	if o.cfg.RejectIfBuyerOffline {
		peer, err := buyerNode(order)
		if err != nil {
			return OutcomeFailed, err
		}

		err = o.probeBuyer(ctx, peer, order.Account, olog)
		switch {
		case isUnreachable(err):
			olog.Warnf("Can't connect to buyer's node, rejecting "+
				"order: %v", err)

			err := o.cfg.Marketplace.RejectOrder(ctx, order.ID)
			if err != nil {
				return OutcomeFailed, fmt.Errorf("reject "+
					"order: %w", err)
			}

			return OutcomeRejected, nil

		case err != nil:
			return OutcomeFailed, err
		}
	} else {
		olog.Infof("Skipping buyer's node check")
	}

	invoice, err := o.cfg.Node.CreateInvoice(
		ctx, amt, o.cfg.InvoiceExpiry, "Magma order "+order.ID,
	)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("create invoice: %w", err)
	}
	olog.Debugf("Invoice created: %v", invoice)

	err = o.cfg.Marketplace.AcceptOrder(ctx, order.ID, invoice)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("accept order: %w", err)
	}

	olog.Infof("Accepted with invoice over %v", amt)

	return OutcomeAccepted, nil
}
