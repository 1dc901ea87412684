package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chanmarket/autoseller/marketplace"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// mockAuth is a marketplace.Authenticator that records the handshake.
type mockAuth struct {
	challengeErr error
	loginErr     error
	createErr    error

	signature string
	session   string
	ttl       time.Duration
	calls     []string
}

func (m *mockAuth) SignChallenge(context.Context) (*marketplace.SignChallenge,
	error) {

	m.calls = append(m.calls, "challenge")
	if m.challengeErr != nil {
		return nil, m.challengeErr
	}

	return &marketplace.SignChallenge{
		Identifier: "id-1",
		Message:    "sign me",
	}, nil
}

func (m *mockAuth) Login(_ context.Context, identifier,
	signature string) (string, error) {

	m.calls = append(m.calls, "login")
	m.signature = signature
	if m.loginErr != nil {
		return "", m.loginErr
	}

	return "session-" + identifier, nil
}

func (m *mockAuth) CreateAPIKey(_ context.Context, session string,
	ttl time.Duration) (string, error) {

	m.calls = append(m.calls, "create")
	m.session = session
	m.ttl = ttl
	if m.createErr != nil {
		return "", m.createErr
	}

	return "api-key", nil
}

type mockSigner struct {
	err error
}

func (m *mockSigner) SignMessage(_ context.Context, msg string) (string,
	error) {

	if m.err != nil {
		return "", m.err
	}

	return "sig(" + msg + ")", nil
}

// memStore is an in memory Store.
type memStore struct {
	cred *Credential
	err  error
}

func (m *memStore) Credential() (*Credential, error) {
	if m.cred == nil {
		return nil, ErrNoCredential
	}

	return m.cred, nil
}

func (m *memStore) StoreCredential(c *Credential) error {
	if m.err != nil {
		return m.err
	}
	m.cred = c

	return nil
}

type managerContext struct {
	manager *Manager
	auth    *mockAuth
	signer  *mockSigner
	store   *memStore
	clock   *clock.TestClock
}

func newManagerContext(staticKey string) *managerContext {
	c := &managerContext{
		auth:   &mockAuth{},
		signer: &mockSigner{},
		store:  &memStore{},
		clock:  clock.NewTestClock(testTime),
	}
	c.manager = NewManager(&ManagerConfig{
		Store:     c.store,
		Signer:    c.signer,
		Auth:      c.auth,
		Clock:     c.clock,
		StaticKey: staticKey,
	})

	return c
}

// TestRenew tests the login handshake of a renewal.
func TestRenew(t *testing.T) {
	c := newManagerContext("")
	ctx := context.Background()

	require.Equal(t, StateAbsent, c.manager.State())
	_, err := c.manager.Token(ctx)
	require.ErrorIs(t, err, ErrNoCredential)

	cred, err := c.manager.Renew(ctx)
	require.NoError(t, err)
	require.Equal(t, &Credential{
		Token:      "api-key",
		Expiration: testTime.Add(DefaultAPIKeyTTL),
	}, cred)

	require.Equal(t, []string{"challenge", "login", "create"}, c.auth.calls)
	require.Equal(t, "sig(sign me)", c.auth.signature)
	require.Equal(t, "session-id-1", c.auth.session)
	require.Equal(t, DefaultAPIKeyTTL, c.auth.ttl)

	// The new key is persisted and handed out.
	require.Equal(t, cred, c.store.cred)
	require.Equal(t, StateActive, c.manager.State())

	token, err := c.manager.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "api-key", token)
}

// TestRenewFailure asserts that a failed renewal reports the failed step and
// keeps the previous credential state.
func TestRenewFailure(t *testing.T) {
	testErr := errors.New("boom")

	tests := []struct {
		name   string
		setup  func(c *managerContext)
		step   RenewalStep
		called []string
	}{
		{
			name: "challenge",
			setup: func(c *managerContext) {
				c.auth.challengeErr = testErr
			},
			step:   StepChallenge,
			called: []string{"challenge"},
		},
		{
			name: "sign",
			setup: func(c *managerContext) {
				c.signer.err = testErr
			},
			step:   StepSign,
			called: []string{"challenge"},
		},
		{
			name: "login",
			setup: func(c *managerContext) {
				c.auth.loginErr = testErr
			},
			step:   StepLogin,
			called: []string{"challenge", "login"},
		},
		{
			name: "create key",
			setup: func(c *managerContext) {
				c.auth.createErr = testErr
			},
			step:   StepCreateKey,
			called: []string{"challenge", "login", "create"},
		},
		{
			name: "persist",
			setup: func(c *managerContext) {
				c.store.err = testErr
			},
			step:   StepPersist,
			called: []string{"challenge", "login", "create"},
		},
	}

	for _, test := range tests {
		test := test

		t.Run(test.name, func(t *testing.T) {
			c := newManagerContext("")
			ctx := context.Background()

			// Start with a stored credential that got rejected.
			c.store.cred = &Credential{Token: "old"}
			_, err := c.manager.LoadCached()
			require.NoError(t, err)
			c.manager.MarkRejected()

			test.setup(c)

			_, err = c.manager.Renew(ctx)
			require.ErrorIs(t, err, ErrRenewalFailed)
			require.ErrorIs(t, err, testErr)

			var renewalErr *RenewalError
			require.ErrorAs(t, err, &renewalErr)
			require.Equal(t, test.step, renewalErr.Step)
			require.Equal(t, test.called, c.auth.calls)

			// The rejected credential stays rejected.
			require.Equal(t, StateRejected, c.manager.State())
			_, err = c.manager.Token(ctx)
			require.ErrorIs(t, err, ErrCredentialRejected)
		})
	}
}

// TestTokenExpiry asserts that an expired credential is never handed out.
func TestTokenExpiry(t *testing.T) {
	c := newManagerContext("")
	ctx := context.Background()

	c.store.cred = &Credential{
		Token:      "cached",
		Expiration: testTime.Add(time.Hour),
	}
	_, err := c.manager.LoadCached()
	require.NoError(t, err)
	require.Equal(t, StateCached, c.manager.State())

	token, err := c.manager.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "cached", token)
	require.Equal(t, StateActive, c.manager.State())

	c.clock.SetTime(testTime.Add(time.Hour))

	_, err = c.manager.Token(ctx)
	require.ErrorIs(t, err, ErrCredentialExpired)
	require.Equal(t, StateExpired, c.manager.State())

	// Renewal makes a token available again.
	_, err = c.manager.Renew(ctx)
	require.NoError(t, err)

	token, err = c.manager.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "api-key", token)
}

// TestBootstrap tests the startup paths of the manager.
func TestBootstrap(t *testing.T) {
	ctx := context.Background()

	// A static key is used without touching store or marketplace.
	c := newManagerContext("static")
	c.store.cred = &Credential{Token: "cached"}
	require.NoError(t, c.manager.Bootstrap(ctx))
	require.Empty(t, c.auth.calls)

	token, err := c.manager.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "static", token)

	// A valid cached key is used without logging in.
	c = newManagerContext("")
	c.store.cred = &Credential{Token: "cached"}
	require.NoError(t, c.manager.Bootstrap(ctx))
	require.Empty(t, c.auth.calls)
	require.Equal(t, StateCached, c.manager.State())

	// An expired cached key is renewed.
	c = newManagerContext("")
	c.store.cred = &Credential{
		Token:      "cached",
		Expiration: testTime.Add(-time.Minute),
	}
	require.NoError(t, c.manager.Bootstrap(ctx))
	require.Len(t, c.auth.calls, 3)

	token, err = c.manager.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "api-key", token)

	// Without a cached key a failed renewal fails the bootstrap.
	c = newManagerContext("")
	c.auth.challengeErr = marketplace.ErrAuthRejected
	err = c.manager.Bootstrap(ctx)
	require.ErrorIs(t, err, ErrRenewalFailed)
	require.Equal(t, StateAbsent, c.manager.State())
}
