package test

import (
	"os"

	"github.com/btcsuite/btclog/v2"
)

// logger is used by the mocks to trace the calls they receive. It writes to
// standard output so the lines show up next to the test output.
var logger = btclog.NewSLogger(
	btclog.NewDefaultHandler(os.Stdout).SubSystem("TEST"),
)

func init() {
	logger.SetLevel(btclog.LevelDebug)
}
