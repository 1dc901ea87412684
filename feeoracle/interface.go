// Package feeoracle provides the current on-chain fee rate used to price
// channel funding transactions.
package feeoracle

import (
	"context"
	"errors"

	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

// ErrOracleUnavailable is returned when no fee rate could be obtained. The
// underlying cause is wrapped alongside it.
var ErrOracleUnavailable = errors.New("fee oracle unavailable")

// Oracle returns the fee rate a funding transaction should pay to confirm
// quickly.
type Oracle interface {
	// FeeRate returns the current fee rate in sat/vbyte.
	FeeRate(ctx context.Context) (chainfee.SatPerVByte, error)
}
