// Package marketplace talks to the Magma channel marketplace.
package marketplace

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

// OrderStatus is the lifecycle state of an order as reported by the
// marketplace. Values the client doesn't know are kept verbatim.
type OrderStatus string

const (
	// StatusWaitingForSellerApproval is set on new orders that need to be
	// accepted or rejected by the seller.
	StatusWaitingForSellerApproval OrderStatus = "WAITING_FOR_SELLER_APPROVAL"

	// StatusWaitingForBuyerPayment is set after the seller accepted the
	// order and until the buyer paid the seller's invoice.
	StatusWaitingForBuyerPayment OrderStatus = "WAITING_FOR_BUYER_PAYMENT"

	// StatusWaitingForChannelOpen is set once the buyer paid. The seller
	// must now fund the channel.
	StatusWaitingForChannelOpen OrderStatus = "WAITING_FOR_CHANNEL_OPEN"

	// StatusChannelOpening is set while the funding transaction confirms.
	StatusChannelOpening OrderStatus = "CHANNEL_OPENING"

	// StatusChannelOpen is set once the channel is confirmed.
	StatusChannelOpen OrderStatus = "CHANNEL_OPEN"

	// StatusChannelMonitoringFinished is set when the marketplace stopped
	// watching the channel.
	StatusChannelMonitoringFinished OrderStatus = "CHANNEL_MONITORING_FINISHED"

	// StatusCancelled is set on cancelled orders.
	StatusCancelled OrderStatus = "CANCELLED"

	// StatusRejected is set on orders the seller rejected.
	StatusRejected OrderStatus = "REJECTED"

	// StatusExpired is set on orders that timed out.
	StatusExpired OrderStatus = "EXPIRED"
)

// String returns the status as sent by the marketplace.
func (s OrderStatus) String() string {
	return string(s)
}

// CancelReason is the reason given when the seller cancels an order.
type CancelReason string

const (
	// CancelUnableToConnect is used when the buyer's node can't be
	// reached.
	CancelUnableToConnect CancelReason = "UNABLE_TO_CONNECT_TO_NODE"

	// CancelChannelOpenFailed is used when the channel could not be
	// opened for another reason.
	CancelChannelOpenFailed CancelReason = "CHANNEL_OPEN_FAILED"
)

// Order is a buyer's request to purchase a channel from one of the seller's
// offers.
type Order struct {
	// ID is the marketplace assigned order id.
	ID string

	// Status is the current status of the order.
	Status OrderStatus

	// Size is the capacity of the channel that was bought. It is zero if
	// the marketplace sent a value that could not be parsed.
	Size btcutil.Amount

	// Account is the buyer's node public key in hex.
	Account string

	// SellerInvoiceAmount is the amount the seller invoices the buyer. It
	// is nil if the marketplace didn't send one or it could not be
	// parsed.
	SellerInvoiceAmount *btcutil.Amount
}

// SignChallenge is the message the node must sign to log in.
type SignChallenge struct {
	// Identifier identifies the challenge towards the login call.
	Identifier string

	// Message is the message to sign.
	Message string
}

// Client is the set of marketplace calls the order fulfillment needs.
type Client interface {
	// FetchOpenOrders returns the orders placed against the seller's
	// offers.
	FetchOpenOrders(ctx context.Context) ([]*Order, error)

	// NodeAddresses returns the advertised network addresses of a node.
	// An empty list is reported as ErrNotFound.
	NodeAddresses(ctx context.Context, pubkey string) ([]string, error)

	// AcceptOrder accepts an order with the given invoice.
	AcceptOrder(ctx context.Context, orderID, invoice string) error

	// RejectOrder rejects an order.
	RejectOrder(ctx context.Context, orderID string) error

	// CancelOrder cancels an already accepted order.
	CancelOrder(ctx context.Context, orderID string,
		reason CancelReason) error

	// RecordFundingTransaction reports the funding outpoint, formatted as
	// txid:index, of the channel that was opened for an order.
	RecordFundingTransaction(ctx context.Context, orderID,
		txPoint string) error
}

// Authenticator is the set of calls that make up the login handshake.
type Authenticator interface {
	// SignChallenge requests a new challenge to sign. This call doesn't
	// need a credential.
	SignChallenge(ctx context.Context) (*SignChallenge, error)

	// Login exchanges a signed challenge for a session token.
	Login(ctx context.Context, identifier, signature string) (string,
		error)

	// CreateAPIKey creates an API key that is valid for the given
	// duration using a session token.
	CreateAPIKey(ctx context.Context, sessionToken string,
		ttl time.Duration) (string, error)
}

// TokenSource provides the bearer token that is sent with each
// authenticated request.
type TokenSource interface {
	// Token returns the current bearer token.
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token returns the static token.
func (s StaticToken) Token(_ context.Context) (string, error) {
	if s == "" {
		return "", ErrAuthRejected
	}

	return string(s), nil
}
