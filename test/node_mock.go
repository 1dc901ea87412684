package test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/chanmarket/autoseller/node"
	"github.com/lightningnetwork/lnd/lnwallet"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/lightningnetwork/lnd/routing/route"
)

// ConnectRequest is a recorded ConnectPeer call.
type ConnectRequest struct {
	Peer route.Vertex
	Addr string
}

// InvoiceRequest is a recorded CreateInvoice call.
type InvoiceRequest struct {
	Amount btcutil.Amount
	Expiry time.Duration
	Memo   string
}

// OpenChannelRequest is a recorded OpenChannel call.
type OpenChannelRequest struct {
	Peer      route.Vertex
	FeeRate   chainfee.SatPerVByte
	Capacity  btcutil.Amount
	Outpoints []wire.OutPoint
}

// MockNode is a node.Gateway that records all calls and returns configurable
// results.
type MockNode struct {
	sync.Mutex

	// Utxos is returned by ListSpendableOutputs.
	Utxos []*lnwallet.Utxo

	// ListErr fails ListSpendableOutputs.
	ListErr error

	// SignErr fails SignMessage.
	SignErr error

	// ConnectErrs fails ConnectPeer for the given addresses.
	ConnectErrs map[string]error

	// Connected lists addresses ConnectPeer reports as already
	// connected.
	Connected map[string]bool

	// InvoiceErr fails CreateInvoice.
	InvoiceErr error

	// OpenErr fails OpenChannel.
	OpenErr error

	// FundingOutpoint is returned by a successful OpenChannel.
	FundingOutpoint wire.OutPoint

	// MinConfs is the argument of the last ListSpendableOutputs call.
	MinConfs int32

	Signed   []string
	Connects []ConnectRequest
	Invoices []InvoiceRequest
	Opens    []OpenChannelRequest
}

// A compile time check to ensure MockNode implements node.Gateway.
var _ node.Gateway = (*MockNode)(nil)

// NewMockNode returns a mock node with a default funding outpoint.
func NewMockNode() *MockNode {
	return &MockNode{
		ConnectErrs: make(map[string]error),
		Connected:   make(map[string]bool),
		FundingOutpoint: wire.OutPoint{
			Hash:  chainhash.Hash{0xfe},
			Index: 1,
		},
	}
}

// SignMessage returns a fake signature over the message.
func (m *MockNode) SignMessage(_ context.Context, msg string) (string,
	error) {

	m.Lock()
	defer m.Unlock()

	m.Signed = append(m.Signed, msg)
	if m.SignErr != nil {
		return "", m.SignErr
	}

	return "sig:" + msg, nil
}

// ListSpendableOutputs returns the configured outputs.
func (m *MockNode) ListSpendableOutputs(_ context.Context,
	minConfs int32) ([]*lnwallet.Utxo, error) {

	m.Lock()
	defer m.Unlock()

	m.MinConfs = minConfs
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	return m.Utxos, nil
}

// ConnectPeer records the connection attempt.
func (m *MockNode) ConnectPeer(_ context.Context, peer route.Vertex,
	addr string) (node.ConnectResult, error) {

	m.Lock()
	defer m.Unlock()

	m.Connects = append(m.Connects, ConnectRequest{
		Peer: peer,
		Addr: addr,
	})
	logger.Debugf("Connecting to %v@%v", peer, addr)

	if err := m.ConnectErrs[addr]; err != nil {
		return 0, err
	}
	if m.Connected[addr] {
		return node.AlreadyConnected, nil
	}
	m.Connected[addr] = true

	return node.ConnectedFresh, nil
}

// CreateInvoice records the invoice and returns a fake payment request.
func (m *MockNode) CreateInvoice(_ context.Context, amt btcutil.Amount,
	expiry time.Duration, memo string) (string, error) {

	m.Lock()
	defer m.Unlock()

	m.Invoices = append(m.Invoices, InvoiceRequest{
		Amount: amt,
		Expiry: expiry,
		Memo:   memo,
	})
	if m.InvoiceErr != nil {
		return "", m.InvoiceErr
	}

	return fmt.Sprintf("lnbcmock%d", int64(amt)), nil
}

// OpenChannel records the channel open.
func (m *MockNode) OpenChannel(_ context.Context, peer route.Vertex,
	feeRate chainfee.SatPerVByte, capacity btcutil.Amount,
	outpoints []wire.OutPoint) (*wire.OutPoint, error) {

	m.Lock()
	defer m.Unlock()

	m.Opens = append(m.Opens, OpenChannelRequest{
		Peer:      peer,
		FeeRate:   feeRate,
		Capacity:  capacity,
		Outpoints: outpoints,
	})
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}

	op := m.FundingOutpoint

	return &op, nil
}
