package feeoracle

import (
	"context"
	"fmt"

	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

// DefaultConfTarget is the confirmation target used when none is configured.
const DefaultConfTarget = 2

// WalletFeeEstimator is the subset of lnd's wallet kit the estimator needs.
type WalletFeeEstimator interface {
	// EstimateFeeRate returns the fee rate for the given confirmation
	// target.
	EstimateFeeRate(ctx context.Context,
		confTarget int32) (chainfee.SatPerKWeight, error)
}

// LndEstimator is an Oracle that asks the connected lnd node for a fee
// estimate.
type LndEstimator struct {
	wallet     WalletFeeEstimator
	confTarget int32
}

// A compile time check to ensure LndEstimator implements Oracle.
var _ Oracle = (*LndEstimator)(nil)

// NewLndEstimator creates a fee oracle on top of lnd's fee estimator.
func NewLndEstimator(wallet WalletFeeEstimator,
	confTarget int32) *LndEstimator {

	if confTarget < 1 {
		confTarget = DefaultConfTarget
	}

	return &LndEstimator{
		wallet:     wallet,
		confTarget: confTarget,
	}
}

// FeeRate returns lnd's estimate converted to sat/vbyte, rounded up and never
// below 1 sat/vbyte.
//
// NOTE: This is part of the Oracle interface.
func (l *LndEstimator) FeeRate(ctx context.Context) (chainfee.SatPerVByte,
	error) {

	feeRate, err := l.wallet.EstimateFeeRate(ctx, l.confTarget)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	satPerVByte := satPerKWToVByte(feeRate)

	log.Debugf("lnd estimate for %d blocks: %v (%d sat/vB)",
		l.confTarget, feeRate, satPerVByte)

	return satPerVByte, nil
}

// satPerKWToVByte converts sat/kw to sat/vbyte, rounding up.
func satPerKWToVByte(feeRate chainfee.SatPerKWeight) chainfee.SatPerVByte {
	// One vbyte is four weight units, so 1 sat/vB is 250 sat/kw.
	satPerVByte := (feeRate + 249) / 250
	if satPerVByte < 1 {
		return 1
	}

	return chainfee.SatPerVByte(satPerVByte)
}
