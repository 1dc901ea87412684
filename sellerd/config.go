package sellerd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/chanmarket/autoseller/credential"
	"github.com/chanmarket/autoseller/feeoracle"
	"github.com/chanmarket/autoseller/fulfillment"
	"github.com/chanmarket/autoseller/marketplace"
	"github.com/chanmarket/autoseller/node"
	"github.com/lightningnetwork/lnd/lncfg"
	"gopkg.in/macaroon.v2"
)

const (
	defaultConfigFilename = "sellerd.conf"

	// FeeSourceMempool selects the mempool.space fee oracle.
	FeeSourceMempool = "mempool"

	// FeeSourceLnd selects the fee estimate of the connected lnd node.
	FeeSourceLnd = "lnd"
)

var (
	// DefaultBaseDir is the default directory of the seller's config,
	// credential and logs.
	DefaultBaseDir = btcutil.AppDataDir("autoseller", false)

	defaultNetwork     = "mainnet"
	defaultLogLevel    = "info"
	defaultLogDirname  = "logs"
	defaultLogFilename = "sellerd.log"
	defaultLogDir      = filepath.Join(DefaultBaseDir, defaultLogDirname)
	defaultConfigFile  = filepath.Join(DefaultBaseDir, defaultConfigFilename)

	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10
)

type lndConfig struct {
	Host string `long:"host" description:"lnd instance rpc address"`

	MacaroonPath string `long:"macaroonpath" description:"Path to the lnd admin macaroon"`
	MacaroonHex  string `long:"macaroonhex" env:"LND_MACAROON_HEX" description:"Hex encoded lnd admin macaroon, instead of macaroonpath"`

	TLSPath string `long:"tlspath" description:"Path to lnd tls certificate"`
	TLSData string `long:"tlsdata" env:"LND_TLS_DATA" description:"PEM encoded lnd tls certificate, instead of tlspath"`
}

type magmaConfig struct {
	URL            string        `long:"url" description:"Marketplace GraphQL endpoint"`
	APIKey         string        `long:"apikey" env:"MAGMA_API_KEY" description:"Static marketplace API key, disables the node signature login"`
	CredentialFile string        `long:"credentialfile" description:"File the marketplace API key obtained by login is stored in. Defaults to magma.token in the data directory"`
	APIKeyTTL      time.Duration `long:"apikeyttl" description:"Validity of API keys created by login"`
}

type mempoolConfig struct {
	URL      string `long:"url" description:"mempool.space instance used for fee rates"`
	Priority string `long:"priority" description:"Recommended fee rate to use" choice:"fastestFee" choice:"halfHourFee" choice:"hourFee" choice:"economyFee" choice:"minimumFee"`
}

// Config is the configuration of the seller daemon.
type Config struct {
	ShowVersion bool   `long:"version" description:"Display version information and exit"`
	Network     string `long:"network" description:"network to run on" choice:"regtest" choice:"testnet" choice:"mainnet" choice:"simnet" choice:"signet"`

	ConfigFile     string `long:"configfile" env:"CONFIG_PATH" description:"Path to configuration file."`
	DataDir        string `long:"datadir" description:"Directory for the stored marketplace credential."`
	LogDir         string `long:"logdir" description:"Directory to log output."`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`

	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	PollInterval         time.Duration `long:"pollinterval" env:"POLL_INTERVAL" description:"Interval between two order checks, at least 10s"`
	RejectIfBuyerOffline bool          `long:"rejectifbuyeroffline" env:"REJECT_IF_BUYER_OFFLINE" description:"Reject new orders of buyers whose node can't be reached"`
	InvoiceExpiry        time.Duration `long:"invoiceexpiry" description:"Expiry of the invoices sent with accepted orders"`
	MinConfs             int32         `long:"minconfs" description:"Confirmations a wallet output needs to fund a channel"`

	FeeSource     string `long:"feesource" description:"Source of the funding fee rate" choice:"mempool" choice:"lnd"`
	FeeConfTarget int32  `long:"feeconftarget" description:"Confirmation target of the lnd fee estimate"`

	Lnd *lndConfig `group:"lnd" namespace:"lnd"`

	Magma *magmaConfig `group:"magma" namespace:"magma"`

	Mempool *mempoolConfig `group:"mempool" namespace:"mempool"`
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		Network:              defaultNetwork,
		ConfigFile:           defaultConfigFile,
		DataDir:              DefaultBaseDir,
		LogDir:               defaultLogDir,
		MaxLogFiles:          defaultMaxLogFiles,
		MaxLogFileSize:       defaultMaxLogFileSize,
		DebugLevel:           defaultLogLevel,
		PollInterval:         fulfillment.DefaultPollInterval,
		RejectIfBuyerOffline: true,
		InvoiceExpiry:        fulfillment.DefaultInvoiceExpiry,
		MinConfs:             node.DefaultMinConfs,
		FeeSource:            FeeSourceMempool,
		FeeConfTarget:        feeoracle.DefaultConfTarget,
		Lnd: &lndConfig{
			Host: "localhost:10009",
		},
		Magma: &magmaConfig{
			URL:       marketplace.DefaultURL,
			APIKeyTTL: credential.DefaultAPIKeyTTL,
		},
		Mempool: &mempoolConfig{
			URL:      feeoracle.DefaultMempoolURL,
			Priority: string(feeoracle.PriorityFastest),
		},
	}
}

// Validate cleans up paths in the config provided and validates it. Every
// error returned wraps fulfillment.ErrConfiguration.
func Validate(cfg *Config) error {
	if err := validate(cfg); err != nil {
		return fmt.Errorf("%w: %v", fulfillment.ErrConfiguration, err)
	}

	return nil
}

func validate(cfg *Config) error {
	// Cleanup any paths before we use them.
	cfg.DataDir = lncfg.CleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = lncfg.CleanAndExpandPath(cfg.LogDir)
	cfg.Lnd.MacaroonPath = lncfg.CleanAndExpandPath(cfg.Lnd.MacaroonPath)
	cfg.Lnd.TLSPath = lncfg.CleanAndExpandPath(cfg.Lnd.TLSPath)

	if cfg.Magma.CredentialFile == "" {
		cfg.Magma.CredentialFile = filepath.Join(
			cfg.DataDir, credential.DefaultFileName,
		)
	}
	cfg.Magma.CredentialFile = lncfg.CleanAndExpandPath(
		cfg.Magma.CredentialFile,
	)

	// The log directory is namespaced per network, the credential is
	// bound to the node and not to the network.
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.Network)

	if cfg.PollInterval < fulfillment.MinPollInterval {
		log.Warnf("Poll interval %v raised to %v", cfg.PollInterval,
			fulfillment.MinPollInterval)

		cfg.PollInterval = fulfillment.MinPollInterval
	}

	if cfg.InvoiceExpiry <= 0 {
		return fmt.Errorf("invalid invoice expiry %v", cfg.InvoiceExpiry)
	}
	if cfg.MinConfs < 1 {
		return fmt.Errorf("minconfs must be at least 1, got %v",
			cfg.MinConfs)
	}
	if cfg.Magma.APIKeyTTL <= 0 {
		return fmt.Errorf("invalid api key ttl %v", cfg.Magma.APIKeyTTL)
	}

	switch cfg.FeeSource {
	case FeeSourceMempool:
		_, err := feeoracle.ParsePriority(cfg.Mempool.Priority)
		if err != nil {
			return err
		}

	case FeeSourceLnd:
		if cfg.FeeConfTarget < 1 {
			return fmt.Errorf("feeconftarget must be at least 1, "+
				"got %v", cfg.FeeConfTarget)
		}

	default:
		return fmt.Errorf("unknown fee source %q", cfg.FeeSource)
	}

	if err := cfg.Lnd.validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.LogDir, os.ModePerm); err != nil {
		return err
	}

	return nil
}

// validate checks that exactly one source is set for the macaroon and the tls
// certificate and that the macaroon can be decoded.
func (l *lndConfig) validate() error {
	if l.Host == "" {
		return errors.New("lnd host missing")
	}

	switch {
	case l.MacaroonPath == "" && l.MacaroonHex == "":
		return errors.New("either lnd macaroonpath or macaroonhex " +
			"must be set")

	case l.MacaroonPath != "" && l.MacaroonHex != "":
		return errors.New("only one of lnd macaroonpath and " +
			"macaroonhex can be set")
	}

	switch {
	case l.TLSPath == "" && l.TLSData == "":
		return errors.New("either lnd tlspath or tlsdata must be set")

	case l.TLSPath != "" && l.TLSData != "":
		return errors.New("only one of lnd tlspath and tlsdata can " +
			"be set")
	}

	macBytes, err := l.macaroonBytes()
	if err != nil {
		return err
	}

	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return fmt.Errorf("unable to decode lnd macaroon: %w", err)
	}

	return nil
}

// macaroonBytes returns the raw macaroon from the configured source.
func (l *lndConfig) macaroonBytes() ([]byte, error) {
	if l.MacaroonHex != "" {
		macBytes, err := hex.DecodeString(l.MacaroonHex)
		if err != nil {
			return nil, fmt.Errorf("invalid macaroon hex: %w", err)
		}

		return macBytes, nil
	}

	macBytes, err := os.ReadFile(l.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read macaroon: %w", err)
	}

	return macBytes, nil
}
