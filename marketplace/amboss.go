package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/lnutils"
)

const (
	getSignInfoQuery = `query GetSignInfo {
  getSignInfo {
    identifier
    message
  }
}`

	loginMutation = `mutation Login($identifier: String!, $signature: String!, $token: Boolean) {
  login(identifier: $identifier, signature: $signature, token: $token)
}`

	createAPIKeyMutation = `mutation CreateApiKey($seconds: Float, $details: String) {
  createApiKey(seconds: $seconds, details: $details)
}`

	ordersQuery = `query Orders {
  getUser {
    market {
      offer_orders {
        list {
          id
          size
          status
          account
          seller_invoice_amount
        }
      }
    }
  }
}`

	nodeAddressesQuery = `query GetNodeAddresses($pubkey: String!) {
  getNode(pubkey: $pubkey) {
    graph_info {
      node {
        addresses {
          addr
        }
      }
    }
  }
}`

	acceptOrderMutation = `mutation AcceptOrder($id: String!, $request: String!) {
  sellerAcceptOrder(id: $id, request: $request)
}`

	rejectOrderMutation = `mutation RejectOrder($id: String!) {
  sellerRejectOrder(id: $id)
}`

	cancelOrderMutation = `mutation CancelOrder($id: String!, $reason: OrderCancellationReason!) {
  sellerCancelOrder(id: $id, reason: $reason)
}`

	addTransactionMutation = `mutation AddTransaction($id: String!, $txid: String!) {
  sellerAddTransaction(id: $id, transaction: $txid)
}`

	// apiKeyDetails is the description attached to created API keys.
	apiKeyDetails = "autoseller"
)

// decimalString is an amount the marketplace sends either as a JSON string or
// a JSON number.
type decimalString string

// UnmarshalJSON accepts strings, numbers and null.
func (d *decimalString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = decimalString(s)

		return nil
	}

	*d = decimalString(b)

	return nil
}

// parseAmount parses a satoshi amount.
func parseAmount(s decimalString) (btcutil.Amount, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(string(s)), 10, 64)
	if err != nil {
		return 0, err
	}

	return btcutil.Amount(value), nil
}

// rawOrder is an order as returned by the orders query.
type rawOrder struct {
	ID                  string         `json:"id"`
	Size                decimalString  `json:"size"`
	Status              string         `json:"status"`
	Account             string         `json:"account"`
	SellerInvoiceAmount *decimalString `json:"seller_invoice_amount"`
}

// toOrder converts the raw order. Amounts that can't be parsed are left
// unset so the order itself fails validation instead of the whole list.
func (r *rawOrder) toOrder() *Order {
	order := &Order{
		ID:      r.ID,
		Status:  OrderStatus(r.Status),
		Account: r.Account,
	}

	size, err := parseAmount(r.Size)
	if err != nil {
		log.Warnf("Order %v: invalid size %q: %v", r.ID, r.Size, err)
	} else {
		order.Size = size
	}

	if r.SellerInvoiceAmount != nil && *r.SellerInvoiceAmount != "" {
		amt, err := parseAmount(*r.SellerInvoiceAmount)
		if err != nil {
			log.Warnf("Order %v: invalid seller invoice amount "+
				"%q: %v", r.ID, *r.SellerInvoiceAmount, err)
		} else {
			order.SellerInvoiceAmount = &amt
		}
	}

	return order
}

// SignChallenge requests a challenge to sign for login.
//
// NOTE: This is part of the Authenticator interface.
func (c *GraphQLClient) SignChallenge(ctx context.Context) (*SignChallenge,
	error) {

	var resp struct {
		GetSignInfo struct {
			Identifier string `json:"identifier"`
			Message    string `json:"message"`
		} `json:"getSignInfo"`
	}
	err := c.do(ctx, "GetSignInfo", getSignInfoQuery, nil, "", &resp)
	if err != nil {
		return nil, err
	}

	if resp.GetSignInfo.Message == "" {
		return nil, fmt.Errorf("GetSignInfo: empty challenge: %w",
			ErrNotFound)
	}

	return &SignChallenge{
		Identifier: resp.GetSignInfo.Identifier,
		Message:    resp.GetSignInfo.Message,
	}, nil
}

// Login exchanges a signed challenge for a session token. The signature is
// the credential of this call, no bearer is sent.
//
// NOTE: This is part of the Authenticator interface.
func (c *GraphQLClient) Login(ctx context.Context, identifier,
	signature string) (string, error) {

	var resp struct {
		Login string `json:"login"`
	}
	err := c.do(ctx, "Login", loginMutation, map[string]any{
		"identifier": identifier,
		"signature":  signature,
		"token":      true,
	}, "", &resp)
	if err != nil {
		return "", err
	}

	if resp.Login == "" {
		return "", fmt.Errorf("Login: %w: empty token", ErrAuthRejected)
	}

	return resp.Login, nil
}

// CreateAPIKey creates an API key that is valid for the given duration. A
// zero duration creates a key without expiration.
//
// NOTE: This is part of the Authenticator interface.
func (c *GraphQLClient) CreateAPIKey(ctx context.Context, sessionToken string,
	ttl time.Duration) (string, error) {

	if sessionToken == "" {
		return "", fmt.Errorf("CreateApiKey: %w: no session token",
			ErrAuthRejected)
	}

	vars := map[string]any{
		"details": apiKeyDetails,
	}
	switch {
	case ttl < 0:
		return "", fmt.Errorf("CreateApiKey: negative ttl %v", ttl)

	case ttl > 0:
		vars["seconds"] = ttl.Truncate(time.Second).Seconds()
	}

	var resp struct {
		CreateAPIKey string `json:"createApiKey"`
	}
	err := c.do(
		ctx, "CreateApiKey", createAPIKeyMutation, vars, sessionToken,
		&resp,
	)
	if err != nil {
		return "", err
	}

	if resp.CreateAPIKey == "" {
		return "", fmt.Errorf("CreateApiKey: empty key: %w",
			ErrNotFound)
	}

	return resp.CreateAPIKey, nil
}

// FetchOpenOrders returns the orders of the seller's offers. A user without a
// market profile has no orders.
//
// NOTE: This is part of the Client interface.
func (c *GraphQLClient) FetchOpenOrders(ctx context.Context) ([]*Order,
	error) {

	var resp struct {
		GetUser struct {
			Market *struct {
				OfferOrders struct {
					List []rawOrder `json:"list"`
				} `json:"offer_orders"`
			} `json:"market"`
		} `json:"getUser"`
	}
	if err := c.authQuery(ctx, "GetOrders", ordersQuery, nil, &resp); err != nil {
		return nil, err
	}

	if resp.GetUser.Market == nil {
		return nil, nil
	}

	list := resp.GetUser.Market.OfferOrders.List
	log.Tracef("Orders: %v", lnutils.SpewLogClosure(list))

	orders := make([]*Order, 0, len(list))
	for i := range list {
		orders = append(orders, list[i].toOrder())
	}

	return orders, nil
}

// NodeAddresses returns the addresses the node with the given public key
// advertises.
//
// NOTE: This is part of the Client interface.
func (c *GraphQLClient) NodeAddresses(ctx context.Context,
	pubkey string) ([]string, error) {

	var resp struct {
		GetNode *struct {
			GraphInfo *struct {
				Node *struct {
					Addresses []struct {
						Addr string `json:"addr"`
					} `json:"addresses"`
				} `json:"node"`
			} `json:"graph_info"`
		} `json:"getNode"`
	}
	err := c.authQuery(ctx, "GetNodeAddresses", nodeAddressesQuery,
		map[string]any{"pubkey": pubkey}, &resp)
	if err != nil {
		return nil, err
	}

	var addrs []string
	if resp.GetNode != nil && resp.GetNode.GraphInfo != nil &&
		resp.GetNode.GraphInfo.Node != nil {

		for _, a := range resp.GetNode.GraphInfo.Node.Addresses {
			if a.Addr != "" {
				addrs = append(addrs, a.Addr)
			}
		}
	}

	if len(addrs) == 0 {
		return nil, fmt.Errorf("addresses of node %v: %w", pubkey,
			ErrNotFound)
	}

	return addrs, nil
}

// AcceptOrder accepts an order with the given invoice.
//
// NOTE: This is part of the Client interface.
func (c *GraphQLClient) AcceptOrder(ctx context.Context, orderID,
	invoice string) error {

	return c.authQuery(ctx, "AcceptOrder", acceptOrderMutation,
		map[string]any{"id": orderID, "request": invoice}, nil)
}

// RejectOrder rejects an order.
//
// NOTE: This is part of the Client interface.
func (c *GraphQLClient) RejectOrder(ctx context.Context, orderID string) error {
	return c.authQuery(ctx, "RejectOrder", rejectOrderMutation,
		map[string]any{"id": orderID}, nil)
}

// CancelOrder cancels an order.
//
// NOTE: This is part of the Client interface.
func (c *GraphQLClient) CancelOrder(ctx context.Context, orderID string,
	reason CancelReason) error {

	return c.authQuery(ctx, "CancelOrder", cancelOrderMutation,
		map[string]any{"id": orderID, "reason": string(reason)}, nil)
}

// RecordFundingTransaction reports the funding outpoint of an order's
// channel.
//
// NOTE: This is part of the Client interface.
func (c *GraphQLClient) RecordFundingTransaction(ctx context.Context, orderID,
	txPoint string) error {

	return c.authQuery(ctx, "AddTransaction", addTransactionMutation,
		map[string]any{"id": orderID, "txid": txPoint}, nil)
}
