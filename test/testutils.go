package test

import (
	"errors"
	"os"
	"runtime/pprof"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lnwallet"
)

var (
	// Timeout is the default timeout when tests wait for something to
	// happen.
	Timeout = time.Second * 5

	// ErrTimeout is returned on timeout.
	ErrTimeout = errors.New("test timeout")
)

// NewUtxo returns a wallet output with a deterministic outpoint derived from
// nr.
func NewUtxo(nr byte, value btcutil.Amount) *lnwallet.Utxo {
	return &lnwallet.Utxo{
		AddressType:   lnwallet.WitnessPubKey,
		Value:         value,
		Confirmations: 6,
		OutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{nr},
			Index: uint32(nr),
		},
	}
}

// DumpGoroutines dumps all currently running goroutines.
func DumpGoroutines() {
	pprof.Lookup("goroutine").WriteTo(os.Stdout, 1)
}
