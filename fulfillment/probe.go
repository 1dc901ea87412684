package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btclog/v2"
	"github.com/chanmarket/autoseller/marketplace"
	"github.com/lightningnetwork/lnd/routing/route"
)

// buyerNode parses the buyer's node public key of an order.
func buyerNode(order *marketplace.Order) (route.Vertex, error) {
	peer, err := route.NewVertexFromStr(order.Account)
	if err != nil {
		return route.Vertex{}, invalidOrder("buyer account %q: %v",
			order.Account, err)
	}

	return peer, nil
}

// invoiceAmount returns the seller invoice amount of an order.
func invoiceAmount(order *marketplace.Order) (btcutil.Amount, error) {
	if order.SellerInvoiceAmount == nil {
		return 0, invalidOrder("missing seller invoice amount")
	}

	amt := *order.SellerInvoiceAmount
	if amt <= 0 {
		return 0, invalidOrder("seller invoice amount %v", amt)
	}

	return amt, nil
}

// probeBuyer checks that the buyer's node can be reached by connecting to its
// first advertised address. Being connected already counts as reachable. An
// *UnreachableError is returned if the node has no address or the connection
// fails. Marketplace errors while resolving the addresses are returned as
// they are, the buyer is not at fault for those.
func (o *Orchestrator) probeBuyer(ctx context.Context, peer route.Vertex,
	pubkey string, olog btclog.Logger) error {

	addrs, err := o.cfg.Marketplace.NodeAddresses(ctx, pubkey)
	switch {
	case errors.Is(err, marketplace.ErrNotFound):
		return &UnreachableError{Pubkey: pubkey, Err: err}

	case err != nil:
		return fmt.Errorf("resolve buyer addresses: %w", err)
	}

	if len(addrs) == 0 {
		return &UnreachableError{
			Pubkey: pubkey, Err: marketplace.ErrNotFound,
		}
	}

	addr := addrs[0]
	result, err := o.cfg.Node.ConnectPeer(ctx, peer, addr)
	if err != nil {
		// A shutdown is not the buyer's fault.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return &UnreachableError{Pubkey: pubkey, Addr: addr, Err: err}
	}

	olog.Debugf("Buyer node %v reachable (%v)", addr, result)

	return nil
}
