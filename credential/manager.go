package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chanmarket/autoseller/marketplace"
	"github.com/lightningnetwork/lnd/clock"
)

// DefaultAPIKeyTTL is how long API keys created by the manager are valid.
const DefaultAPIKeyTTL = 30 * 24 * time.Hour

var (
	// ErrCredentialExpired is returned by Token when the held credential
	// is past its expiration.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrCredentialRejected is returned by Token when the marketplace
	// rejected the held credential.
	ErrCredentialRejected = errors.New("credential rejected")

	// ErrRenewalFailed is the sentinel all RenewalError values match with
	// errors.Is.
	ErrRenewalFailed = errors.New("credential renewal failed")
)

// State is the lifecycle state of the credential held by the manager.
type State uint8

const (
	// StateAbsent means there is no credential.
	StateAbsent State = iota

	// StateCached means a credential was loaded from the store and has
	// not been used yet.
	StateCached

	// StateActive means the credential is in use.
	StateActive

	// StateExpired means the credential passed its expiration.
	StateExpired

	// StateRejected means the marketplace rejected the credential.
	StateRejected
)

// String returns a human readable name of the state.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "Absent"
	case StateCached:
		return "Cached"
	case StateActive:
		return "Active"
	case StateExpired:
		return "Expired"
	case StateRejected:
		return "Rejected"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// RenewalStep names a step of the login handshake.
type RenewalStep string

const (
	// StepChallenge requests the challenge to sign.
	StepChallenge RenewalStep = "challenge"

	// StepSign signs the challenge with the node key.
	StepSign RenewalStep = "sign"

	// StepLogin exchanges the signature for a session token.
	StepLogin RenewalStep = "login"

	// StepCreateKey creates the API key.
	StepCreateKey RenewalStep = "create api key"

	// StepPersist writes the API key to the store.
	StepPersist RenewalStep = "persist"
)

// RenewalError is returned when a step of the renewal handshake failed.
type RenewalError struct {
	// Step is the failed step.
	Step RenewalStep

	// Err is the error the step failed with.
	Err error
}

// Error returns the failed step and its error.
func (e *RenewalError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrRenewalFailed, e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *RenewalError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match any RenewalError against ErrRenewalFailed.
func (e *RenewalError) Is(target error) bool {
	return target == ErrRenewalFailed
}

// Signer signs a message with the node's identity key.
type Signer interface {
	// SignMessage returns the signature of msg.
	SignMessage(ctx context.Context, msg string) (string, error)
}

// ManagerConfig holds the dependencies of a Manager.
type ManagerConfig struct {
	// Store persists renewed credentials.
	Store Store

	// Signer signs login challenges.
	Signer Signer

	// Auth is the marketplace side of the login handshake.
	Auth marketplace.Authenticator

	// Clock is used for expiration checks.
	Clock clock.Clock

	// APIKeyTTL is the validity of API keys created on renewal. Zero
	// selects DefaultAPIKeyTTL.
	APIKeyTTL time.Duration

	// StaticKey is an API key from the configuration. If set it is used
	// instead of the stored credential.
	StaticKey string
}

// Manager owns the marketplace credential. It is safe for concurrent use.
type Manager struct {
	cfg *ManagerConfig

	mu      sync.Mutex
	current *Credential
	state   State
}

// A compile time check to ensure Manager can serve the marketplace client.
var _ marketplace.TokenSource = (*Manager)(nil)

// NewManager creates a new credential manager.
func NewManager(cfg *ManagerConfig) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.APIKeyTTL == 0 {
		cfg.APIKeyTTL = DefaultAPIKeyTTL
	}

	return &Manager{
		cfg:   cfg,
		state: StateAbsent,
	}
}

// State returns the current state of the credential.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// LoadCached loads the stored credential without checking it with the
// marketplace.
func (m *Manager) LoadCached() (*Credential, error) {
	cred, err := m.cfg.Store.Credential()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = cred
	m.state = StateCached
	m.mu.Unlock()

	log.Debugf("Loaded %v", cred)

	return cred, nil
}

// Token returns the bearer token for the next marketplace call. An expired or
// rejected credential is never returned.
//
// NOTE: This is part of the marketplace.TokenSource interface.
func (m *Manager) Token(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateAbsent:
		return "", ErrNoCredential

	case StateRejected:
		return "", ErrCredentialRejected

	case StateExpired:
		return "", ErrCredentialExpired
	}

	if m.current.Expired(m.cfg.Clock.Now()) {
		log.Infof("Marketplace %v has expired", m.current)
		m.state = StateExpired

		return "", ErrCredentialExpired
	}

	m.state = StateActive

	return m.current.Token, nil
}

// MarkRejected records that the marketplace rejected the current credential.
// It won't be handed out again until it is renewed.
func (m *Manager) MarkRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAbsent {
		return
	}

	log.Warnf("Marketplace rejected %v", m.current)
	m.state = StateRejected
}

// Renew obtains a new API key by logging in with a signature of the node and
// persists it. On failure the previous credential and state are kept.
func (m *Manager) Renew(ctx context.Context) (*Credential, error) {
	log.Infof("Renewing marketplace credential")

	challenge, err := m.cfg.Auth.SignChallenge(ctx)
	if err != nil {
		return nil, &RenewalError{Step: StepChallenge, Err: err}
	}

	signature, err := m.cfg.Signer.SignMessage(ctx, challenge.Message)
	if err != nil {
		return nil, &RenewalError{Step: StepSign, Err: err}
	}

	session, err := m.cfg.Auth.Login(ctx, challenge.Identifier, signature)
	if err != nil {
		return nil, &RenewalError{Step: StepLogin, Err: err}
	}

	key, err := m.cfg.Auth.CreateAPIKey(ctx, session, m.cfg.APIKeyTTL)
	if err != nil {
		return nil, &RenewalError{Step: StepCreateKey, Err: err}
	}

	cred := &Credential{
		Token:      key,
		Expiration: m.cfg.Clock.Now().Add(m.cfg.APIKeyTTL),
	}
	if err := m.cfg.Store.StoreCredential(cred); err != nil {
		return nil, &RenewalError{Step: StepPersist, Err: err}
	}

	m.mu.Lock()
	m.current = cred
	m.state = StateActive
	m.mu.Unlock()

	log.Infof("Marketplace API key acquired, %v", cred)

	return cred, nil
}

// Bootstrap makes a credential available at startup. A configured static key
// is used as is. Otherwise the stored credential is used if it hasn't
// expired, and a new one is obtained if it has or there is none.
func (m *Manager) Bootstrap(ctx context.Context) error {
	if m.cfg.StaticKey != "" {
		m.mu.Lock()
		m.current = &Credential{Token: m.cfg.StaticKey}
		m.state = StateActive
		m.mu.Unlock()

		log.Infof("Using configured marketplace API key")

		return nil
	}

	cred, err := m.LoadCached()
	switch {
	case err == nil && !cred.Expired(m.cfg.Clock.Now()):
		return nil

	case err == nil:
		log.Infof("Stored %v has expired", cred)

	case errors.Is(err, ErrNoCredential):
		log.Infof("No stored marketplace credential")

	default:
		log.Warnf("Unable to load stored marketplace credential: %v",
			err)
	}

	if _, err := m.Renew(ctx); err != nil {
		return fmt.Errorf("unable to obtain marketplace credential: %w",
			err)
	}

	return nil
}
