package sellerd

import (
	"context"
	"fmt"

	"github.com/chanmarket/autoseller"
	"github.com/chanmarket/autoseller/credential"
	"github.com/chanmarket/autoseller/feeoracle"
	"github.com/chanmarket/autoseller/fulfillment"
	"github.com/chanmarket/autoseller/marketplace"
	"github.com/chanmarket/autoseller/node"
	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/lnrpc/verrpc"
)

// MinRequiredLndVersion is the minimum lnd version the seller works with.
// Funding a channel from explicit outpoints needs 0.17.
var MinRequiredLndVersion = &verrpc.Version{
	AppMajor: 0,
	AppMinor: 17,
	AppPatch: 0,
	BuildTags: []string{
		"walletrpc",
	},
}

// Services holds the connected components the seller works with.
type Services struct {
	// Lnd is the connection to the seller's node.
	Lnd *lndclient.GrpcLndServices

	// Node is the seller's node.
	Node *node.LndGateway

	// Credentials owns the marketplace credential.
	Credentials *credential.Manager

	// Marketplace is the authenticated marketplace client.
	Marketplace *marketplace.GraphQLClient

	// FeeOracle prices funding transactions.
	FeeOracle feeoracle.Oracle
}

// NewServices connects to lnd and creates the marketplace clients. The
// credential isn't loaded yet. component is added to the user agent.
func NewServices(ctx context.Context, cfg *Config,
	component string) (*Services, error) {

	lnd, err := connectLnd(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log.Infof("Connected to lnd node %v (%x)", lnd.NodeAlias,
		lnd.NodePubkey[:])

	gateway := node.NewLndGateway(&lnd.LndServices)

	userAgent := autoseller.UserAgent(component)

	// The login handshake runs without a bearer, so the authenticator
	// doesn't need a token source.
	authClient := marketplace.NewGraphQLClient(&marketplace.Config{
		URL:       cfg.Magma.URL,
		UserAgent: userAgent,
	})

	store, err := credential.NewFileStore(cfg.Magma.CredentialFile)
	if err != nil {
		lnd.Close()
		return nil, err
	}

	credentials := credential.NewManager(&credential.ManagerConfig{
		Store:     store,
		Signer:    gateway,
		Auth:      authClient,
		APIKeyTTL: cfg.Magma.APIKeyTTL,
		StaticKey: cfg.Magma.APIKey,
	})

	market := marketplace.NewGraphQLClient(&marketplace.Config{
		URL:       cfg.Magma.URL,
		Tokens:    credentials,
		UserAgent: userAgent,
	})

	oracle, err := newFeeOracle(cfg, lnd.WalletKit)
	if err != nil {
		lnd.Close()
		return nil, err
	}

	return &Services{
		Lnd:         lnd,
		Node:        gateway,
		Credentials: credentials,
		Marketplace: market,
		FeeOracle:   oracle,
	}, nil
}

// Close closes the lnd connection.
func (s *Services) Close() {
	s.Lnd.Close()
}

// Daemon runs the fulfillment loop on top of the services.
type Daemon struct {
	cfg *Config
}

// New creates a new daemon from a validated config.
func New(cfg *Config) *Daemon {
	return &Daemon{
		cfg: cfg,
	}
}

// Run connects to lnd, makes sure a marketplace credential is available and
// polls orders until the context is canceled. Errors during setup wrap
// fulfillment.ErrConfiguration.
func (d *Daemon) Run(ctx context.Context) error {
	services, err := NewServices(ctx, d.cfg, "sellerd")
	if err != nil {
		return fmt.Errorf("%w: %v", fulfillment.ErrConfiguration, err)
	}
	defer services.Close()

	if err := services.Credentials.Bootstrap(ctx); err != nil {
		return fmt.Errorf("%w: %v", fulfillment.ErrConfiguration, err)
	}

	orchestrator := fulfillment.NewOrchestrator(&fulfillment.Config{
		Marketplace:          services.Marketplace,
		Node:                 services.Node,
		FeeOracle:            services.FeeOracle,
		RejectIfBuyerOffline: d.cfg.RejectIfBuyerOffline,
		InvoiceExpiry:        d.cfg.InvoiceExpiry,
		MinConfs:             d.cfg.MinConfs,
		ExplorerURL:          d.cfg.Mempool.URL,
	})

	scheduler := fulfillment.NewScheduler(&fulfillment.SchedulerConfig{
		Cycler:      orchestrator,
		Credentials: services.Credentials,
		Interval:    d.cfg.PollInterval,
	})

	log.Infof("Seller started")
	defer log.Infof("Seller stopped")

	return scheduler.Run(ctx)
}

// connectLnd connects to lnd and blocks until it is synced to chain.
func connectLnd(ctx context.Context, cfg *Config) (*lndclient.GrpcLndServices,
	error) {

	return lndclient.NewLndServices(&lndclient.LndServicesConfig{
		LndAddress:            cfg.Lnd.Host,
		Network:               lndclient.Network(cfg.Network),
		CustomMacaroonPath:    cfg.Lnd.MacaroonPath,
		CustomMacaroonHex:     cfg.Lnd.MacaroonHex,
		TLSPath:               cfg.Lnd.TLSPath,
		TLSData:               cfg.Lnd.TLSData,
		CheckVersion:          MinRequiredLndVersion,
		BlockUntilChainSynced: true,
		CallerCtx:             ctx,
	})
}

// newFeeOracle creates the configured fee oracle.
func newFeeOracle(cfg *Config,
	wallet feeoracle.WalletFeeEstimator) (feeoracle.Oracle, error) {

	switch cfg.FeeSource {
	case FeeSourceMempool:
		priority, err := feeoracle.ParsePriority(cfg.Mempool.Priority)
		if err != nil {
			return nil, err
		}

		log.Infof("Using %v fee rate of %v", priority, cfg.Mempool.URL)

		return feeoracle.NewMempoolSpace(
			cfg.Mempool.URL, priority, nil,
		), nil

	case FeeSourceLnd:
		log.Infof("Using lnd fee estimate with confirmation target %v",
			cfg.FeeConfTarget)

		return feeoracle.NewLndEstimator(wallet, cfg.FeeConfTarget), nil

	default:
		return nil, fmt.Errorf("unknown fee source %q", cfg.FeeSource)
	}
}
