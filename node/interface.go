// Package node is the seller's view on its lightning node.
package node

import (
	"context"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lnwallet"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/lightningnetwork/lnd/routing/route"
)

// DefaultMinConfs is the number of confirmations an output needs to be used
// for channel funding.
const DefaultMinConfs = 3

// ErrNoFundingTxid is returned when the node opened a channel but didn't
// report its funding transaction.
var ErrNoFundingTxid = errors.New("no funding txid")

// ConnectResult is the outcome of a successful connection attempt.
type ConnectResult uint8

const (
	// ConnectedFresh means a new connection was established.
	ConnectedFresh ConnectResult = iota

	// AlreadyConnected means the node was already connected to the peer.
	AlreadyConnected
)

// String returns a human readable description of the result.
func (c ConnectResult) String() string {
	switch c {
	case ConnectedFresh:
		return "connected"
	case AlreadyConnected:
		return "already connected"
	default:
		return "unknown"
	}
}

// Gateway is the set of node operations channel selling needs.
type Gateway interface {
	// SignMessage signs a message with the node's identity key.
	SignMessage(ctx context.Context, msg string) (string, error)

	// ListSpendableOutputs returns the wallet's outputs with at least
	// minConfs confirmations, in wallet order.
	ListSpendableOutputs(ctx context.Context,
		minConfs int32) ([]*lnwallet.Utxo, error)

	// ConnectPeer connects to a peer at the given host:port. Being
	// connected already is not an error.
	ConnectPeer(ctx context.Context, peer route.Vertex,
		addr string) (ConnectResult, error)

	// CreateInvoice creates an invoice and returns its payment request.
	CreateInvoice(ctx context.Context, amt btcutil.Amount,
		expiry time.Duration, memo string) (string, error)

	// OpenChannel opens a channel to a connected peer, funded by exactly
	// the given outpoints, and returns the funding outpoint.
	OpenChannel(ctx context.Context, peer route.Vertex,
		feeRate chainfee.SatPerVByte, capacity btcutil.Amount,
		outpoints []wire.OutPoint) (*wire.OutPoint, error)
}
