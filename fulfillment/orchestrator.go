// Package fulfillment drives the seller's marketplace orders from approval to
// a funded channel.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chanmarket/autoseller/feeoracle"
	"github.com/chanmarket/autoseller/marketplace"
	"github.com/chanmarket/autoseller/node"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	// DefaultInvoiceExpiry is the expiry of the invoices sent with an
	// order acceptance.
	DefaultInvoiceExpiry = 48 * time.Hour

	// DefaultExplorerURL is the block explorer funding transactions are
	// linked to in the logs.
	DefaultExplorerURL = "https://mempool.space"
)

// Outcome is what happened to an order in a cycle.
type Outcome string

const (
	// OutcomeAccepted means the order was accepted with an invoice.
	OutcomeAccepted Outcome = "accepted"

	// OutcomeRejected means the order was rejected.
	OutcomeRejected Outcome = "rejected"

	// OutcomeFunded means the channel was opened and recorded.
	OutcomeFunded Outcome = "funded"

	// OutcomeCancelled means the order was cancelled.
	OutcomeCancelled Outcome = "cancelled"

	// OutcomeSkipped means the order's status needs no action.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeFailed means the workflow failed and will be retried when
	// the order is seen again.
	OutcomeFailed Outcome = "failed"
)

// OrderResult is the result of processing a single order.
type OrderResult struct {
	// OrderID is the id of the order.
	OrderID string

	// Status is the status the order had when it was processed.
	Status marketplace.OrderStatus

	// Outcome is what happened to the order.
	Outcome Outcome

	// Err is the error of the workflow, if any. A cancelled order
	// carries the error that led to its cancellation.
	Err error

	// Kind is the classification of Err.
	Kind Kind
}

// CycleReport summarizes one poll cycle.
type CycleReport struct {
	// CycleID is a random id that identifies the cycle in the logs.
	CycleID string

	// Started is when the cycle started.
	Started time.Time

	// Results holds the results of the processed orders in marketplace
	// order.
	Results []OrderResult

	// Aborted is true if the cycle stopped before processing all orders.
	Aborted bool
}

// Count returns the number of orders with the given outcome.
func (r *CycleReport) Count(outcome Outcome) int {
	var n int
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}

	return n
}

// shortID returns the prefix of the cycle id used in log lines.
func (r *CycleReport) shortID() string {
	if len(r.CycleID) > 8 {
		return r.CycleID[:8]
	}

	return r.CycleID
}

// Config holds the collaborators and settings of the orchestrator.
type Config struct {
	// Marketplace is used to read and update orders.
	Marketplace marketplace.Client

	// Node is the seller's lightning node.
	Node node.Gateway

	// FeeOracle prices funding transactions.
	FeeOracle feeoracle.Oracle

	// RejectIfBuyerOffline rejects new orders of buyers whose node can't
	// be reached.
	RejectIfBuyerOffline bool

	// InvoiceExpiry is the expiry of the seller invoice. Zero selects
	// DefaultInvoiceExpiry.
	InvoiceExpiry time.Duration

	// MinConfs is the number of confirmations funding outputs need. Zero
	// selects node.DefaultMinConfs.
	MinConfs int32

	// ExplorerURL is used to link funding transactions in the logs. Empty
	// selects DefaultExplorerURL.
	ExplorerURL string

	// Clock is used to timestamp cycles.
	Clock clock.Clock
}

// Orchestrator processes the seller's open orders.
type Orchestrator struct {
	cfg *Config
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(cfg *Config) *Orchestrator {
	if cfg.InvoiceExpiry == 0 {
		cfg.InvoiceExpiry = DefaultInvoiceExpiry
	}
	if cfg.MinConfs == 0 {
		cfg.MinConfs = node.DefaultMinConfs
	}
	if cfg.ExplorerURL == "" {
		cfg.ExplorerURL = DefaultExplorerURL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Orchestrator{
		cfg: cfg,
	}
}

// RunCycle fetches the open orders and processes them one by one. An order
// that fails is logged and doesn't affect the others, except if the
// marketplace rejected the credential: the cycle then stops and an error
// matching marketplace.ErrAuthRejected is returned.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{
		CycleID: uuid.NewString(),
		Started: o.cfg.Clock.Now(),
	}
	cycle := report.shortID()

	log.Debugf("[%s] Checking orders...", cycle)

	orders, err := o.cfg.Marketplace.FetchOpenOrders(ctx)
	if err != nil {
		report.Aborted = true
		return report, fmt.Errorf("fetch orders: %w", err)
	}

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			return report, err
		}

		result := o.processOrder(ctx, cycle, order)
		report.Results = append(report.Results, result)

		if result.Kind == AuthRejected {
			report.Aborted = true
			return report, fmt.Errorf("order %v: %w", order.ID,
				result.Err)
		}
	}

	log.Debugf("[%s] Processed %d orders: %d accepted, %d rejected, "+
		"%d funded, %d cancelled, %d failed", cycle, len(orders),
		report.Count(OutcomeAccepted), report.Count(OutcomeRejected),
		report.Count(OutcomeFunded), report.Count(OutcomeCancelled),
		report.Count(OutcomeFailed))

	return report, nil
}

// processOrder runs the workflow for the order's status.
func (o *Orchestrator) processOrder(ctx context.Context, cycle string,
	order *marketplace.Order) OrderResult {

	olog := orderLogger(cycle, order.ID)

	result := OrderResult{
		OrderID: order.ID,
		Status:  order.Status,
	}

	var err error
	switch order.Status {
	case marketplace.StatusWaitingForSellerApproval:
		olog.Infof("Approving order")
		result.Outcome, err = o.approve(ctx, order, olog)

	case marketplace.StatusWaitingForChannelOpen:
		olog.Infof("Opening channel")
		result.Outcome, err = o.fund(ctx, order, olog)

	default:
		olog.Debugf("Skipping order (%v)", order.Status)
		result.Outcome = OutcomeSkipped
	}

	if err != nil {
		result.Err = err
		result.Kind = Classify(err)

		olog.Errorf("Error processing order (%v, %v): %v",
			result.Outcome, result.Kind, err)

		return result
	}

	olog.Debugf("Outcome: %v", result.Outcome)

	return result
}

// isUnreachable returns true if the error says the buyer can't be reached.
func isUnreachable(err error) bool {
	var unreachableErr *UnreachableError
	return errors.As(err, &unreachableErr)
}
