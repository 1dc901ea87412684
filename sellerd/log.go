package sellerd

import (
	"github.com/btcsuite/btclog/v2"
	"github.com/chanmarket/autoseller/credential"
	"github.com/chanmarket/autoseller/feeoracle"
	"github.com/chanmarket/autoseller/fulfillment"
	"github.com/chanmarket/autoseller/funding"
	"github.com/chanmarket/autoseller/marketplace"
	"github.com/chanmarket/autoseller/node"
	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/signal"
)

const Subsystem = "SLRD"

var log = btclog.Disabled

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(root *build.SubLoggerManager, intercept signal.Interceptor) {
	lnd.AddSubLogger(root, Subsystem, intercept, func(l btclog.Logger) {
		log = l
	})
	lnd.AddSubLogger(root, "LNDC", intercept, lndclient.UseLogger)
	lnd.AddSubLogger(root, feeoracle.Subsystem, intercept, feeoracle.UseLogger)
	lnd.AddSubLogger(root, funding.Subsystem, intercept, funding.UseLogger)
	lnd.AddSubLogger(root, node.Subsystem, intercept, node.UseLogger)
	lnd.AddSubLogger(
		root, marketplace.Subsystem, intercept, marketplace.UseLogger,
	)
	lnd.AddSubLogger(
		root, credential.Subsystem, intercept, credential.UseLogger,
	)
	lnd.AddSubLogger(
		root, fulfillment.Subsystem, intercept, fulfillment.UseLogger,
	)
}

// NewLogManager creates the sub logger manager for the given log config. The
// log lines go to stdout and, once its rotator is initialized, to writer.
func NewLogManager(cfg *build.LogConfig,
	writer *build.RotatingLogWriter) *build.SubLoggerManager {

	return build.NewSubLoggerManager(
		build.NewDefaultLogHandlers(cfg, writer)...,
	)
}

// logConfig returns the log config with the file limits of cfg.
func logConfig(cfg *Config) *build.LogConfig {
	logCfg := build.DefaultLogConfig()
	logCfg.File.MaxLogFiles = cfg.MaxLogFiles
	logCfg.File.MaxLogFileSize = cfg.MaxLogFileSize

	return logCfg
}
