package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btclog/v2"
	"github.com/stretchr/testify/require"
)

// recordedRequest is a request received by the test server.
type recordedRequest struct {
	auth      string
	userAgent string
	query     string
	variables map[string]any
}

// testServer is a GraphQL endpoint that answers every request with a fixed
// status and body and records what it received.
type testServer struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	body     string
	requests []recordedRequest
}

func newTestServer(t *testing.T, status int, body string) *testServer {
	t.Helper()

	s := &testServer{
		status: status,
		body:   body,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)

	return s
}

func (s *testServer) handle(w http.ResponseWriter, r *http.Request) {
	var req graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, recordedRequest{
		auth:      r.Header.Get("Authorization"),
		userAgent: r.Header.Get("User-Agent"),
		query:     req.Query,
		variables: req.Variables,
	})
	status, body := s.status, s.body
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func (s *testServer) lastRequest(t *testing.T) recordedRequest {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	require.NotEmpty(t, s.requests)

	return s.requests[len(s.requests)-1]
}

func (s *testServer) numRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.requests)
}

func newTestClient(s *testServer, tokens TokenSource) *GraphQLClient {
	return NewGraphQLClient(&Config{
		URL:        s.URL,
		Tokens:     tokens,
		UserAgent:  "sellerd/test",
		HTTPClient: s.Client(),
	})
}

// TestFetchOpenOrders tests decoding of the order list.
func TestFetchOpenOrders(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"data":{"getUser":{
		"market":{"offer_orders":{"list":[
			{"id":"o1","size":"1000000","status":"WAITING_FOR_CHANNEL_OPEN",
			 "account":"02aa","seller_invoice_amount":"15000"},
			{"id":"o2","size":2000000,"status":"SOMETHING_NEW",
			 "account":"03bb","seller_invoice_amount":null},
			{"id":"o3","size":"lots","status":"WAITING_FOR_SELLER_APPROVAL",
			 "account":"02cc","seller_invoice_amount":"1.5"}
		]}}}},
		"extensions":{"cost":{"requestedQueryCost":12,
		"throttleStatus":{"maximumAvailable":1000,
		"currentlyAvailable":988,"restoreRate":50}}}}`)

	client := newTestClient(server, StaticToken("key"))
	orders, err := client.FetchOpenOrders(context.Background())
	require.NoError(t, err)

	invoiceAmt := btcutil.Amount(15000)
	require.Equal(t, []*Order{
		{
			ID:                  "o1",
			Status:              StatusWaitingForChannelOpen,
			Size:                1_000_000,
			Account:             "02aa",
			SellerInvoiceAmount: &invoiceAmt,
		},
		{
			ID:      "o2",
			Status:  OrderStatus("SOMETHING_NEW"),
			Size:    2_000_000,
			Account: "03bb",
		},
		{
			ID:      "o3",
			Status:  StatusWaitingForSellerApproval,
			Account: "02cc",
		},
	}, orders)

	req := server.lastRequest(t)
	require.Equal(t, "Bearer key", req.auth)
	require.Equal(t, "sellerd/test", req.userAgent)
	require.Equal(t, ordersQuery, req.query)
}

// TestFetchOpenOrdersTraceLog asserts that the order list is only dumped to
// the log on trace level.
func TestFetchOpenOrdersTraceLog(t *testing.T) {
	var buf bytes.Buffer
	logger := btclog.NewSLogger(
		btclog.NewDefaultHandler(&buf).SubSystem(Subsystem),
	)
	UseLogger(logger)
	defer DisableLog()

	server := newTestServer(t, http.StatusOK, `{"data":{"getUser":{
		"market":{"offer_orders":{"list":[
			{"id":"order-7f3a","size":"1000000",
			 "status":"WAITING_FOR_CHANNEL_OPEN","account":"02aa",
			 "seller_invoice_amount":"15000"}
		]}}}}}`)
	client := newTestClient(server, StaticToken("key"))

	logger.SetLevel(btclog.LevelDebug)
	_, err := client.FetchOpenOrders(context.Background())
	require.NoError(t, err)
	require.NotContains(t, buf.String(), "order-7f3a")

	logger.SetLevel(btclog.LevelTrace)
	_, err = client.FetchOpenOrders(context.Background())
	require.NoError(t, err)
	require.Contains(t, buf.String(), "Orders:")
	require.Contains(t, buf.String(), "order-7f3a")
}

// TestFetchOpenOrdersNoMarket asserts that a user without a market profile
// has no orders.
func TestFetchOpenOrdersNoMarket(t *testing.T) {
	server := newTestServer(
		t, http.StatusOK, `{"data":{"getUser":{"market":null}}}`,
	)

	orders, err := newTestClient(server, StaticToken("key")).
		FetchOpenOrders(context.Background())
	require.NoError(t, err)
	require.Empty(t, orders)
}

// TestErrorClassification tests the mapping of failed responses onto the
// error classes.
func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		auth      bool
		transient bool
	}{
		{
			name:   "http unauthorized",
			status: http.StatusUnauthorized,
			body:   `{}`,
			auth:   true,
		},
		{
			name:   "http forbidden",
			status: http.StatusForbidden,
			body:   "forbidden",
			auth:   true,
		},
		{
			name:   "graphql forbidden code",
			status: http.StatusOK,
			body: `{"data":null,"errors":[{"message":"nope",` +
				`"extensions":{"code":"FORBIDDEN"}}]}`,
			auth: true,
		},
		{
			name:   "graphql forbidden message",
			status: http.StatusOK,
			body:   `{"errors":[{"message":"Forbidden"}]}`,
			auth:   true,
		},
		{
			name:   "graphql other error",
			status: http.StatusOK,
			body: `{"errors":[{"message":"order not in state",` +
				`"extensions":{"code":"BAD_USER_INPUT"}}]}`,
			transient: true,
		},
		{
			name:      "server error",
			status:    http.StatusBadGateway,
			body:      "<html>bad gateway</html>",
			transient: true,
		},
		{
			name:      "malformed body",
			status:    http.StatusOK,
			body:      `{"data":`,
			transient: true,
		},
	}

	for _, test := range tests {
		test := test

		t.Run(test.name, func(t *testing.T) {
			server := newTestServer(t, test.status, test.body)
			client := newTestClient(server, StaticToken("key"))

			err := client.RejectOrder(context.Background(), "o1")
			require.Error(t, err)
			require.Equal(t, test.auth, errors.Is(err, ErrAuthRejected))
			require.Equal(t, test.transient, IsTransient(err))
		})
	}
}

// TestUnusableToken asserts that no request is sent when the token source
// fails.
func TestUnusableToken(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"data":{}}`)

	tokenErr := errors.New("credential expired")
	client := newTestClient(server, tokenFunc(
		func(context.Context) (string, error) {
			return "", tokenErr
		},
	))

	err := client.AcceptOrder(context.Background(), "o1", "lnbc1")
	require.ErrorIs(t, err, ErrAuthRejected)
	require.Zero(t, server.numRequests())

	// A client without token source is rejected the same way.
	client = newTestClient(server, nil)
	_, err = client.FetchOpenOrders(context.Background())
	require.ErrorIs(t, err, ErrAuthRejected)
	require.Zero(t, server.numRequests())
}

type tokenFunc func(context.Context) (string, error)

func (f tokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// TestNodeAddresses tests resolving a node's addresses.
func TestNodeAddresses(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"data":{"getNode":{
		"graph_info":{"node":{"addresses":[
			{"addr":"1.2.3.4:9735"},{"addr":""},{"addr":"abc.onion:9735"}
		]}}}}}`)
	client := newTestClient(server, StaticToken("key"))

	addrs, err := client.NodeAddresses(context.Background(), "02aa")
	require.NoError(t, err)
	require.Equal(t, []string{"1.2.3.4:9735", "abc.onion:9735"}, addrs)
	require.Equal(
		t, map[string]any{"pubkey": "02aa"},
		server.lastRequest(t).variables,
	)

	// A node without addresses is not found.
	server = newTestServer(t, http.StatusOK,
		`{"data":{"getNode":{"graph_info":{"node":null}}}}`)
	client = newTestClient(server, StaticToken("key"))

	_, err = client.NodeAddresses(context.Background(), "02aa")
	require.ErrorIs(t, err, ErrNotFound)
}

// TestMutations tests the variables and bearer of the order mutations.
func TestMutations(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"data":{"ok":true}}`)
	client := newTestClient(server, StaticToken("key"))
	ctx := context.Background()

	require.NoError(t, client.AcceptOrder(ctx, "o1", "lnbc1"))
	req := server.lastRequest(t)
	require.Equal(t, acceptOrderMutation, req.query)
	require.Equal(
		t, map[string]any{"id": "o1", "request": "lnbc1"}, req.variables,
	)

	require.NoError(t, client.CancelOrder(ctx, "o2", CancelUnableToConnect))
	req = server.lastRequest(t)
	require.Equal(t, cancelOrderMutation, req.query)
	require.Equal(t, map[string]any{
		"id": "o2", "reason": "UNABLE_TO_CONNECT_TO_NODE",
	}, req.variables)

	require.NoError(t, client.RecordFundingTransaction(ctx, "o3", "ab:1"))
	req = server.lastRequest(t)
	require.Equal(t, addTransactionMutation, req.query)
	require.Equal(
		t, map[string]any{"id": "o3", "txid": "ab:1"}, req.variables,
	)
	require.Equal(t, "Bearer key", req.auth)
}

// TestLoginHandshake tests the three calls of the login handshake and the
// credentials each one is sent with.
func TestLoginHandshake(t *testing.T) {
	ctx := context.Background()

	server := newTestServer(t, http.StatusOK, `{"data":{"getSignInfo":{
		"identifier":"id-1","message":"sign me"}}}`)
	client := newTestClient(server, StaticToken("stale"))

	challenge, err := client.SignChallenge(ctx)
	require.NoError(t, err)
	require.Equal(t, &SignChallenge{
		Identifier: "id-1",
		Message:    "sign me",
	}, challenge)
	require.Empty(t, server.lastRequest(t).auth)

	server = newTestServer(t, http.StatusOK, `{"data":{"login":"session"}}`)
	client = newTestClient(server, StaticToken("stale"))

	session, err := client.Login(ctx, "id-1", "sig")
	require.NoError(t, err)
	require.Equal(t, "session", session)

	req := server.lastRequest(t)
	require.Empty(t, req.auth)
	require.Equal(t, map[string]any{
		"identifier": "id-1", "signature": "sig", "token": true,
	}, req.variables)

	server = newTestServer(
		t, http.StatusOK, `{"data":{"createApiKey":"api-key"}}`,
	)
	client = newTestClient(server, StaticToken("stale"))

	key, err := client.CreateAPIKey(ctx, session, 30*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, "api-key", key)

	req = server.lastRequest(t)
	require.Equal(t, "Bearer session", req.auth)
	require.Equal(t, float64(30*24*60*60), req.variables["seconds"])

	_, err = client.CreateAPIKey(ctx, "", time.Hour)
	require.ErrorIs(t, err, ErrAuthRejected)
}
