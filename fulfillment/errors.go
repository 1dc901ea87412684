package fulfillment

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/chanmarket/autoseller/funding"
	"github.com/chanmarket/autoseller/marketplace"
)

var (
	// ErrInvalidOrder is returned for orders that lack data a workflow
	// needs or carry invalid values.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrConfiguration marks errors that prevent the seller from
	// starting.
	ErrConfiguration = errors.New("configuration error")
)

// Kind classifies the errors of an order workflow by how they are handled.
type Kind uint8

const (
	// KindNone is the kind of a nil error.
	KindNone Kind = iota

	// Transient errors are network or remote errors that are retried in
	// the next cycle.
	Transient

	// AuthRejected means the marketplace rejected the credential. The
	// cycle is aborted and the credential renewed.
	AuthRejected

	// InsufficientFunds means the wallet can't fund the channel.
	InsufficientFunds

	// Unprofitable means funding the channel costs more than the order
	// pays.
	Unprofitable

	// CounterpartyUnreachable means the buyer's node can't be reached.
	CounterpartyUnreachable

	// InvalidOrder means the order itself is malformed.
	InvalidOrder

	// ConfigurationFatal means the seller can't start.
	ConfigurationFatal
)

// String returns a human readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case Transient:
		return "Transient"
	case AuthRejected:
		return "AuthRejected"
	case InsufficientFunds:
		return "InsufficientFunds"
	case Unprofitable:
		return "Unprofitable"
	case CounterpartyUnreachable:
		return "CounterpartyUnreachable"
	case InvalidOrder:
		return "InvalidOrder"
	case ConfigurationFatal:
		return "ConfigurationFatal"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// UnprofitableError is returned when the estimated funding fee exceeds what
// the seller earns with the order.
type UnprofitableError struct {
	// Fee is the estimated fee of the funding transaction.
	Fee float64

	// Revenue is the seller invoice amount of the order.
	Revenue btcutil.Amount
}

// Error returns the fee and the revenue.
func (e *UnprofitableError) Error() string {
	return fmt.Sprintf("fee is higher than order revenue: fee %.1f sat, "+
		"revenue %v", e.Fee, e.Revenue)
}

// UnreachableError is returned when the buyer's node can't be reached.
type UnreachableError struct {
	// Pubkey is the buyer's node.
	Pubkey string

	// Addr is the address that was tried, empty if none is known.
	Addr string

	// Err is the underlying error.
	Err error
}

// Error returns the node and why it couldn't be reached.
func (e *UnreachableError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("buyer node %s unreachable: %v", e.Pubkey,
			e.Err)
	}

	return fmt.Sprintf("buyer node %s@%s unreachable: %v", e.Pubkey,
		e.Addr, e.Err)
}

// Unwrap returns the underlying error.
func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// Classify returns the kind of an error. Authentication rejection takes
// precedence over everything else, errors without a known kind are
// transient.
func Classify(err error) Kind {
	var (
		unprofitableErr *UnprofitableError
		unreachableErr  *UnreachableError
	)

	switch {
	case err == nil:
		return KindNone

	case errors.Is(err, marketplace.ErrAuthRejected):
		return AuthRejected

	case errors.Is(err, ErrConfiguration):
		return ConfigurationFatal

	case errors.Is(err, ErrInvalidOrder):
		return InvalidOrder

	case errors.Is(err, funding.ErrInsufficientFunds):
		return InsufficientFunds

	case errors.As(err, &unprofitableErr):
		return Unprofitable

	case errors.As(err, &unreachableErr):
		return CounterpartyUnreachable

	default:
		return Transient
	}
}

// invalidOrder returns an ErrInvalidOrder with a reason.
func invalidOrder(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidOrder, fmt.Sprintf(format, args...))
}
