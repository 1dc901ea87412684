package fulfillment

import (
	"fmt"

	"github.com/btcsuite/btclog/v2"
)

// Subsystem defines the sub system name of this package.
const Subsystem = "FULF"

// log is a logger that is initialized with no output filters.  This means the
// package will not perform any logging by default until the caller requests
// it.
var log = btclog.Disabled

// DisableLog disables all library log output.  Logging output is disabled by
// default until UseLogger is called.
func DisableLog() {
	UseLogger(btclog.Disabled)
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// orderLogger returns a logger that prefixes all lines with the cycle id and
// the order id.
func orderLogger(cycle, orderID string) btclog.Logger {
	return log.WithPrefix(fmt.Sprintf("[%s] Order %s:", cycle, orderID))
}
