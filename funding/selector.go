// Package funding selects the wallet outputs that fund a channel open.
//
// The selection is a greedy walk over the outputs in the order the wallet
// returned them. It is deliberately not value sorted: the first prefix of the
// wallet's outputs that covers the channel capacity plus the estimated
// transaction fee is used, and nothing beyond it.
package funding

import (
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lnwallet"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

const (
	// InputVSize is the estimated virtual size of a single wallet input.
	InputVSize = 57.5

	// OutputVSize is the estimated virtual size of a single output.
	OutputVSize = 43.0

	// NumOutputs is the number of outputs of a funding transaction, the
	// channel output and the change output.
	NumOutputs = 2

	// OverheadVSize is the fixed transaction overhead in vbytes.
	OverheadVSize = 10.5
)

var (
	// ErrInsufficientFunds is the sentinel all InsufficientFundsError
	// values match with errors.Is.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidTarget is returned when the requested channel capacity is
	// not positive.
	ErrInvalidTarget = errors.New("funding target must be positive")
)

// InsufficientFundsError is returned when the available outputs can't cover
// the requested amount.
type InsufficientFundsError struct {
	// Target is the requested channel capacity.
	Target btcutil.Amount

	// Available is the total value of all outputs that were considered.
	Available btcutil.Amount

	// Shortfall is the amount that is missing to fund the channel. If the
	// outputs don't even cover the target, this is the difference between
	// target and available funds. Otherwise it includes the fee for
	// spending all outputs.
	Shortfall btcutil.Amount
}

// Error returns a human readable description of the shortfall.
func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds to open a channel of %v: "+
		"%v available, %v short", e.Target, e.Available, e.Shortfall)
}

// Is lets errors.Is match any InsufficientFundsError against
// ErrInsufficientFunds.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// Plan is the result of a successful selection.
type Plan struct {
	// Outpoints are the selected outputs, in wallet order.
	Outpoints []wire.OutPoint

	// Total is the sum of the selected outputs.
	Total btcutil.Amount

	// FeeRate is the fee rate the fee was estimated with.
	FeeRate chainfee.SatPerVByte

	// Fee is the estimated fee of the funding transaction in satoshis.
	// The vsize estimate is fractional, so is the fee.
	Fee float64
}

// FeeAmount returns the fee rounded up to whole satoshis.
func (p *Plan) FeeAmount() btcutil.Amount {
	return btcutil.Amount(math.Ceil(p.Fee))
}

// TxVSize returns the estimated virtual size of a funding transaction that
// spends the given number of inputs.
func TxVSize(numInputs int) float64 {
	return float64(numInputs)*InputVSize + NumOutputs*OutputVSize +
		OverheadVSize
}

// FeeCost returns the estimated fee in satoshis of a funding transaction with
// the given number of inputs at the given fee rate.
func FeeCost(numInputs int, feeRate chainfee.SatPerVByte) float64 {
	return TxVSize(numInputs) * float64(feeRate)
}

// Select walks the given outputs in order and returns the shortest prefix
// whose value covers the target plus the fee of spending that prefix. If no
// such prefix exists an *InsufficientFundsError is returned and no partial
// plan.
func Select(target btcutil.Amount, feeRate chainfee.SatPerVByte,
	utxos []*lnwallet.Utxo) (*Plan, error) {

	if target <= 0 {
		return nil, ErrInvalidTarget
	}

	var total btcutil.Amount
	for _, utxo := range utxos {
		total += utxo.Value
	}

	// Quick check: if the outputs can't even cover the target ignoring
	// fees, there is no point in walking them.
	if total < target {
		return nil, &InsufficientFundsError{
			Target:    target,
			Available: total,
			Shortfall: target - total,
		}
	}

	plan := &Plan{
		FeeRate: feeRate,
	}
	for _, utxo := range utxos {
		plan.Outpoints = append(plan.Outpoints, utxo.OutPoint)
		plan.Total += utxo.Value
		plan.Fee = FeeCost(len(plan.Outpoints), feeRate)

		required := float64(target) + plan.Fee
		if float64(plan.Total) >= required {
			log.Debugf("Selected %d of %d outputs (%v) for target "+
				"%v at %v, fee %.1f sat", len(plan.Outpoints),
				len(utxos), plan.Total, target, feeRate,
				plan.Fee)

			return plan, nil
		}
	}

	// Every output is consumed and the fee for spending all of them still
	// isn't covered.
	shortfall := float64(target) + FeeCost(len(utxos), feeRate) -
		float64(total)

	return nil, &InsufficientFundsError{
		Target:    target,
		Available: total,
		Shortfall: btcutil.Amount(math.Ceil(shortfall)),
	}
}
