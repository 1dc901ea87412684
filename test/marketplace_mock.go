package test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chanmarket/autoseller/marketplace"
)

// MockMarketplace is a marketplace.Client and marketplace.Authenticator that
// serves orders from memory and records all mutations.
type MockMarketplace struct {
	sync.Mutex

	// Orders is returned by FetchOpenOrders.
	Orders []*marketplace.Order

	// FetchErrs are returned by consecutive FetchOpenOrders calls before
	// it starts returning Orders.
	FetchErrs []error

	// Addresses maps node pubkeys to their advertised addresses.
	Addresses map[string][]string

	// AddressErr fails NodeAddresses.
	AddressErr error

	// OrderErrs fails every mutation of the given order id.
	OrderErrs map[string]error

	// RecordErr fails RecordFundingTransaction.
	RecordErr error

	// CancelErr fails CancelOrder.
	CancelErr error

	// LoginErr fails Login.
	LoginErr error

	// Tokens is consulted before each authenticated call if set.
	Tokens marketplace.TokenSource

	// Mutations lists all mutation calls in order, e.g. "accept o1".
	Mutations []string

	Accepted  map[string]string
	Rejected  []string
	Cancelled map[string]marketplace.CancelReason
	Recorded  map[string]string
	Fetches   int

	keyNr int
}

// A compile time check to ensure MockMarketplace implements both interfaces.
var (
	_ marketplace.Client        = (*MockMarketplace)(nil)
	_ marketplace.Authenticator = (*MockMarketplace)(nil)
)

// NewMockMarketplace returns an empty mock marketplace.
func NewMockMarketplace() *MockMarketplace {
	return &MockMarketplace{
		Addresses: make(map[string][]string),
		OrderErrs: make(map[string]error),
		Accepted:  make(map[string]string),
		Cancelled: make(map[string]marketplace.CancelReason),
		Recorded:  make(map[string]string),
	}
}

// checkAuth fails with ErrAuthRejected if the token source has no usable
// token. Must be called with the lock held.
func (m *MockMarketplace) checkAuth(ctx context.Context) error {
	if m.Tokens == nil {
		return nil
	}

	if _, err := m.Tokens.Token(ctx); err != nil {
		return fmt.Errorf("%w: %v", marketplace.ErrAuthRejected, err)
	}

	return nil
}

// mutate records a mutation and returns the configured error of the order.
func (m *MockMarketplace) mutate(ctx context.Context, orderID,
	call string) error {

	if err := m.checkAuth(ctx); err != nil {
		return err
	}

	m.Mutations = append(m.Mutations, call+" "+orderID)
	logger.Debugf("Marketplace mutation: %v %v", call, orderID)

	return m.OrderErrs[orderID]
}

// FetchOpenOrders returns the queued errors first and then the orders.
func (m *MockMarketplace) FetchOpenOrders(ctx context.Context) (
	[]*marketplace.Order, error) {

	m.Lock()
	defer m.Unlock()

	m.Fetches++

	if len(m.FetchErrs) > 0 {
		err := m.FetchErrs[0]
		m.FetchErrs = m.FetchErrs[1:]

		if err != nil {
			return nil, err
		}
	}

	if err := m.checkAuth(ctx); err != nil {
		return nil, err
	}

	return m.Orders, nil
}

// NodeAddresses returns the configured addresses of the node.
func (m *MockMarketplace) NodeAddresses(ctx context.Context,
	pubkey string) ([]string, error) {

	m.Lock()
	defer m.Unlock()

	if err := m.checkAuth(ctx); err != nil {
		return nil, err
	}
	if m.AddressErr != nil {
		return nil, m.AddressErr
	}

	addrs := m.Addresses[pubkey]
	if len(addrs) == 0 {
		return nil, fmt.Errorf("node %v: %w", pubkey,
			marketplace.ErrNotFound)
	}

	return addrs, nil
}

// AcceptOrder records the acceptance.
func (m *MockMarketplace) AcceptOrder(ctx context.Context, orderID,
	invoice string) error {

	m.Lock()
	defer m.Unlock()

	if err := m.mutate(ctx, orderID, "accept"); err != nil {
		return err
	}
	m.Accepted[orderID] = invoice

	return nil
}

// RejectOrder records the rejection.
func (m *MockMarketplace) RejectOrder(ctx context.Context,
	orderID string) error {

	m.Lock()
	defer m.Unlock()

	if err := m.mutate(ctx, orderID, "reject"); err != nil {
		return err
	}
	m.Rejected = append(m.Rejected, orderID)

	return nil
}

// CancelOrder records the cancellation.
func (m *MockMarketplace) CancelOrder(ctx context.Context, orderID string,
	reason marketplace.CancelReason) error {

	m.Lock()
	defer m.Unlock()

	if err := m.mutate(ctx, orderID, "cancel"); err != nil {
		return err
	}
	if m.CancelErr != nil {
		return m.CancelErr
	}
	m.Cancelled[orderID] = reason

	return nil
}

// RecordFundingTransaction records the funding outpoint.
func (m *MockMarketplace) RecordFundingTransaction(ctx context.Context,
	orderID, txPoint string) error {

	m.Lock()
	defer m.Unlock()

	if err := m.mutate(ctx, orderID, "record"); err != nil {
		return err
	}
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.Recorded[orderID] = txPoint

	return nil
}

// SignChallenge returns a fixed challenge.
func (m *MockMarketplace) SignChallenge(_ context.Context) (
	*marketplace.SignChallenge, error) {

	return &marketplace.SignChallenge{
		Identifier: "challenge-id",
		Message:    "challenge",
	}, nil
}

// Login returns a session token.
func (m *MockMarketplace) Login(_ context.Context, identifier,
	signature string) (string, error) {

	m.Lock()
	defer m.Unlock()

	if m.LoginErr != nil {
		return "", m.LoginErr
	}

	return "session:" + identifier + ":" + signature, nil
}

// CreateAPIKey returns a new API key on every call.
func (m *MockMarketplace) CreateAPIKey(_ context.Context, _ string,
	_ time.Duration) (string, error) {

	m.Lock()
	defer m.Unlock()

	m.keyNr++

	return fmt.Sprintf("api-key-%d", m.keyNr), nil
}
