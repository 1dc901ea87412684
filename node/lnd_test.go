package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwallet"
	"github.com/lightningnetwork/lnd/routing/route"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const testTxid = "a1b2c3d4e5f60718293a4b5c6d7e8f90112233445566778899aabbccddeeff00"

// mockRPCClient is the raw lnrpc client returned by RawClientWithMacAuth.
type mockRPCClient struct {
	lnrpc.LightningClient

	openReq   *lnrpc.OpenChannelRequest
	chanPoint *lnrpc.ChannelPoint
	openErr   error
}

func (m *mockRPCClient) SignMessage(_ context.Context,
	in *lnrpc.SignMessageRequest,
	_ ...grpc.CallOption) (*lnrpc.SignMessageResponse, error) {

	return &lnrpc.SignMessageResponse{
		Signature: "zbase32(" + string(in.Msg) + ")",
	}, nil
}

func (m *mockRPCClient) OpenChannelSync(_ context.Context,
	in *lnrpc.OpenChannelRequest,
	_ ...grpc.CallOption) (*lnrpc.ChannelPoint, error) {

	m.openReq = in

	return m.chanPoint, m.openErr
}

// mockLightningClient overrides the lndclient calls the gateway uses.
type mockLightningClient struct {
	lndclient.LightningClient

	rpc        *mockRPCClient
	connectErr error
	connected  []string
	invoice    *invoicesrpc.AddInvoiceData
}

func (m *mockLightningClient) RawClientWithMacAuth(
	ctx context.Context) (context.Context, time.Duration,
	lnrpc.LightningClient) {

	return ctx, time.Minute, m.rpc
}

func (m *mockLightningClient) Connect(_ context.Context, peer route.Vertex,
	host string, _ bool) error {

	m.connected = append(m.connected, peer.String()+"@"+host)

	return m.connectErr
}

func (m *mockLightningClient) AddInvoice(_ context.Context,
	in *invoicesrpc.AddInvoiceData) (lntypes.Hash, string, error) {

	m.invoice = in

	return lntypes.Hash{}, "lnbc1test", nil
}

type mockWalletKit struct {
	lndclient.WalletKitClient

	minConfs, maxConfs int32
	utxos              []*lnwallet.Utxo
}

func (m *mockWalletKit) ListUnspent(_ context.Context, minConfs,
	maxConfs int32, _ ...lndclient.ListUnspentOption) ([]*lnwallet.Utxo,
	error) {

	m.minConfs, m.maxConfs = minConfs, maxConfs

	return m.utxos, nil
}

func newTestGateway() (*LndGateway, *mockLightningClient, *mockWalletKit) {
	client := &mockLightningClient{rpc: &mockRPCClient{}}
	wallet := &mockWalletKit{}

	return newLndGateway(client, wallet), client, wallet
}

// TestConnectPeer tests the mapping of lnd's connect responses.
func TestConnectPeer(t *testing.T) {
	gateway, client, _ := newTestGateway()
	ctx := context.Background()
	peer := route.Vertex{2, 1}

	result, err := gateway.ConnectPeer(ctx, peer, "1.2.3.4:9735")
	require.NoError(t, err)
	require.Equal(t, ConnectedFresh, result)
	require.Equal(t, []string{peer.String() + "@1.2.3.4:9735"},
		client.connected)

	client.connectErr = status.Error(
		codes.Unknown, "already connected to peer: "+peer.String(),
	)
	result, err = gateway.ConnectPeer(ctx, peer, "1.2.3.4:9735")
	require.NoError(t, err)
	require.Equal(t, AlreadyConnected, result)

	client.connectErr = status.Error(
		codes.Unknown, "dial tcp 1.2.3.4:9735: i/o timeout",
	)
	_, err = gateway.ConnectPeer(ctx, peer, "1.2.3.4:9735")
	require.ErrorIs(t, err, client.connectErr)

	// Only gRPC status errors are inspected.
	client.connectErr = errors.New("already connected to peer")
	_, err = gateway.ConnectPeer(ctx, peer, "1.2.3.4:9735")
	require.Error(t, err)
}

// TestOpenChannel tests the channel open request and the conversion of the
// returned channel point.
func TestOpenChannel(t *testing.T) {
	gateway, client, _ := newTestGateway()
	ctx := context.Background()
	peer := route.Vertex{3, 9}

	txid, err := chainhash.NewHashFromStr(testTxid)
	require.NoError(t, err)

	outpoints := []wire.OutPoint{
		{Hash: chainhash.Hash{1}, Index: 0},
		{Hash: chainhash.Hash{2}, Index: 3},
	}

	// lnd reports the txid bytes in internal order, the outpoint must
	// come out as the usual reversed hex.
	client.rpc.chanPoint = &lnrpc.ChannelPoint{
		FundingTxid: &lnrpc.ChannelPoint_FundingTxidBytes{
			FundingTxidBytes: txid[:],
		},
		OutputIndex: 1,
	}

	op, err := gateway.OpenChannel(ctx, peer, 12, 1_000_000, outpoints)
	require.NoError(t, err)
	require.Equal(t, testTxid+":1", op.String())

	req := client.rpc.openReq
	require.Equal(t, peer[:], req.NodePubkey)
	require.EqualValues(t, 1_000_000, req.LocalFundingAmount)
	require.EqualValues(t, 12, req.SatPerVbyte)
	require.EqualValues(t, DefaultMinConfs, req.MinConfs)
	require.Len(t, req.Outpoints, 2)
	require.Equal(t, outpoints[1].Hash.String(), req.Outpoints[1].TxidStr)
	require.EqualValues(t, 3, req.Outpoints[1].OutputIndex)

	// The string form is parsed as is.
	client.rpc.chanPoint = &lnrpc.ChannelPoint{
		FundingTxid: &lnrpc.ChannelPoint_FundingTxidStr{
			FundingTxidStr: testTxid,
		},
	}
	op, err = gateway.OpenChannel(ctx, peer, 12, 1_000_000, outpoints)
	require.NoError(t, err)
	require.Equal(t, testTxid+":0", op.String())

	client.rpc.chanPoint = &lnrpc.ChannelPoint{}
	_, err = gateway.OpenChannel(ctx, peer, 12, 1_000_000, outpoints)
	require.ErrorIs(t, err, ErrNoFundingTxid)

	client.rpc.openErr = errors.New("not enough witness outputs")
	_, err = gateway.OpenChannel(ctx, peer, 12, 1_000_000, outpoints)
	require.ErrorIs(t, err, client.rpc.openErr)
}

// TestWalletCalls tests the calls that are passed through to lnd.
func TestWalletCalls(t *testing.T) {
	gateway, client, wallet := newTestGateway()
	ctx := context.Background()

	sig, err := gateway.SignMessage(ctx, "challenge")
	require.NoError(t, err)
	require.Equal(t, "zbase32(challenge)", sig)

	payReq, err := gateway.CreateInvoice(ctx, 15_000, 48*time.Hour, "memo")
	require.NoError(t, err)
	require.Equal(t, "lnbc1test", payReq)
	require.EqualValues(t, 15_000_000, client.invoice.Value)
	require.EqualValues(t, 172800, client.invoice.Expiry)
	require.Equal(t, "memo", client.invoice.Memo)

	wallet.utxos = []*lnwallet.Utxo{{Value: 1000}}
	utxos, err := gateway.ListSpendableOutputs(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, wallet.utxos, utxos)
	require.EqualValues(t, 3, wallet.minConfs)
	require.Greater(t, wallet.maxConfs, int32(1_000_000))
}
