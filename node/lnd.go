package node

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/lnwallet"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
	"google.golang.org/grpc/status"
)

// alreadyConnectedMsg is the prefix of the error lnd returns when asked to
// connect to a peer it is connected to.
const alreadyConnectedMsg = "already connected to peer"

// LndGateway is a Gateway backed by an lnd node.
type LndGateway struct {
	client   lndclient.LightningClient
	wallet   lndclient.WalletKitClient
	minConfs int32
}

// A compile time check to ensure LndGateway implements Gateway.
var _ Gateway = (*LndGateway)(nil)

// NewLndGateway creates a gateway that uses the given lnd connection.
func NewLndGateway(lnd *lndclient.LndServices) *LndGateway {
	return newLndGateway(lnd.Client, lnd.WalletKit)
}

func newLndGateway(client lndclient.LightningClient,
	wallet lndclient.WalletKitClient) *LndGateway {

	return &LndGateway{
		client:   client,
		wallet:   wallet,
		minConfs: DefaultMinConfs,
	}
}

// SignMessage signs the message with the node key and returns lnd's zbase32
// encoded signature.
//
// NOTE: This is part of the Gateway interface.
func (l *LndGateway) SignMessage(ctx context.Context, msg string) (string,
	error) {

	rawCtx, timeout, rawClient := l.client.RawClientWithMacAuth(ctx)
	rawCtx, cancel := context.WithTimeout(rawCtx, timeout)
	defer cancel()

	resp, err := rawClient.SignMessage(rawCtx, &lnrpc.SignMessageRequest{
		Msg: []byte(msg),
	})
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	return resp.Signature, nil
}

// ListSpendableOutputs lists the confirmed wallet outputs.
//
// NOTE: This is part of the Gateway interface.
func (l *LndGateway) ListSpendableOutputs(ctx context.Context,
	minConfs int32) ([]*lnwallet.Utxo, error) {

	utxos, err := l.wallet.ListUnspent(ctx, minConfs, math.MaxInt32)
	if err != nil {
		return nil, fmt.Errorf("list unspent: %w", err)
	}

	return utxos, nil
}

// ConnectPeer connects to the peer. lnd's already connected error is reported
// as AlreadyConnected.
//
// NOTE: This is part of the Gateway interface.
func (l *LndGateway) ConnectPeer(ctx context.Context, peer route.Vertex,
	addr string) (ConnectResult, error) {

	err := l.client.Connect(ctx, peer, addr, false)
	if err == nil {
		return ConnectedFresh, nil
	}

	if isAlreadyConnected(err) {
		return AlreadyConnected, nil
	}

	return 0, fmt.Errorf("connect to %v@%v: %w", peer, addr, err)
}

// isAlreadyConnected returns true if the error is lnd's response to a connect
// request for a peer that is already connected.
func isAlreadyConnected(err error) bool {
	if st, ok := status.FromError(err); ok {
		return strings.HasPrefix(st.Message(), alreadyConnectedMsg)
	}

	return false
}

// CreateInvoice creates an invoice over the given amount.
//
// NOTE: This is part of the Gateway interface.
func (l *LndGateway) CreateInvoice(ctx context.Context, amt btcutil.Amount,
	expiry time.Duration, memo string) (string, error) {

	_, payReq, err := l.client.AddInvoice(ctx, &invoicesrpc.AddInvoiceData{
		Memo:   memo,
		Value:  lnwire.NewMSatFromSatoshis(amt),
		Expiry: int64(expiry.Seconds()),
	})
	if err != nil {
		return "", fmt.Errorf("add invoice: %w", err)
	}

	return payReq, nil
}

// OpenChannel opens a channel funded by the given outpoints and waits until
// lnd published the funding transaction.
//
// NOTE: This is part of the Gateway interface.
func (l *LndGateway) OpenChannel(ctx context.Context, peer route.Vertex,
	feeRate chainfee.SatPerVByte, capacity btcutil.Amount,
	outpoints []wire.OutPoint) (*wire.OutPoint, error) {

	rpcOutpoints := make([]*lnrpc.OutPoint, 0, len(outpoints))
	for _, op := range outpoints {
		rpcOutpoints = append(rpcOutpoints, &lnrpc.OutPoint{
			TxidBytes:   op.Hash[:],
			TxidStr:     op.Hash.String(),
			OutputIndex: op.Index,
		})
	}

	req := &lnrpc.OpenChannelRequest{
		NodePubkey:         peer[:],
		LocalFundingAmount: int64(capacity),
		SatPerVbyte:        uint64(feeRate),
		Outpoints:          rpcOutpoints,
		MinConfs:           l.minConfs,
	}

	rawCtx, timeout, rawClient := l.client.RawClientWithMacAuth(ctx)
	rawCtx, cancel := context.WithTimeout(rawCtx, timeout)
	defer cancel()

	chanPoint, err := rawClient.OpenChannelSync(rawCtx, req)
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	return fundingOutpoint(chanPoint)
}

// fundingOutpoint converts a channel point to an outpoint. lnd reports the
// txid either as raw bytes in internal byte order or as a string.
func fundingOutpoint(chanPoint *lnrpc.ChannelPoint) (*wire.OutPoint, error) {
	var (
		hash *chainhash.Hash
		err  error
	)
	switch txid := chanPoint.GetFundingTxid().(type) {
	case *lnrpc.ChannelPoint_FundingTxidBytes:
		hash, err = chainhash.NewHash(txid.FundingTxidBytes)

	case *lnrpc.ChannelPoint_FundingTxidStr:
		hash, err = chainhash.NewHashFromStr(txid.FundingTxidStr)

	default:
		err = ErrNoFundingTxid
	}
	if err != nil {
		return nil, fmt.Errorf("funding txid: %w", err)
	}

	return wire.NewOutPoint(hash, chanPoint.OutputIndex), nil
}

