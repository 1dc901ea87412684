package feeoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

const (
	// DefaultMempoolURL is the public mempool.space instance.
	DefaultMempoolURL = "https://mempool.space"

	// recommendedPath is the endpoint that returns the recommended fee
	// rates for the different confirmation priorities.
	recommendedPath = "/api/v1/fees/recommended"

	// defaultHTTPTimeout is the transport timeout of the default client.
	defaultHTTPTimeout = 30 * time.Second
)

// Priority selects one of the fee rates mempool.space recommends.
type Priority string

const (
	// PriorityFastest targets the next block.
	PriorityFastest Priority = "fastestFee"

	// PriorityHalfHour targets confirmation within three blocks.
	PriorityHalfHour Priority = "halfHourFee"

	// PriorityHour targets confirmation within six blocks.
	PriorityHour Priority = "hourFee"

	// PriorityEconomy is a low rate without a confirmation target.
	PriorityEconomy Priority = "economyFee"

	// PriorityMinimum is the minimum relay fee rate.
	PriorityMinimum Priority = "minimumFee"
)

// ParsePriority parses a priority name. An empty name selects
// PriorityFastest.
func ParsePriority(name string) (Priority, error) {
	switch p := Priority(strings.TrimSpace(name)); p {
	case "":
		return PriorityFastest, nil

	case PriorityFastest, PriorityHalfHour, PriorityHour,
		PriorityEconomy, PriorityMinimum:

		return p, nil

	default:
		return "", fmt.Errorf("unknown fee priority %q", name)
	}
}

// recommendedFees is the response of the recommended fees endpoint.
type recommendedFees struct {
	FastestFee  uint64 `json:"fastestFee"`
	HalfHourFee uint64 `json:"halfHourFee"`
	HourFee     uint64 `json:"hourFee"`
	EconomyFee  uint64 `json:"economyFee"`
	MinimumFee  uint64 `json:"minimumFee"`
}

// rate returns the fee rate for the given priority.
func (r *recommendedFees) rate(p Priority) uint64 {
	switch p {
	case PriorityHalfHour:
		return r.HalfHourFee
	case PriorityHour:
		return r.HourFee
	case PriorityEconomy:
		return r.EconomyFee
	case PriorityMinimum:
		return r.MinimumFee
	default:
		return r.FastestFee
	}
}

// MempoolSpace is an Oracle backed by the mempool.space REST API.
type MempoolSpace struct {
	baseURL    string
	priority   Priority
	httpClient *http.Client
}

// A compile time check to ensure MempoolSpace implements Oracle.
var _ Oracle = (*MempoolSpace)(nil)

// NewMempoolSpace creates a new mempool.space fee oracle. An empty base URL
// selects the public instance, a nil client a client with a 30 second
// timeout.
func NewMempoolSpace(baseURL string, priority Priority,
	httpClient *http.Client) *MempoolSpace {

	if baseURL == "" {
		baseURL = DefaultMempoolURL
	}
	if priority == "" {
		priority = PriorityFastest
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &MempoolSpace{
		baseURL:    strings.TrimRight(baseURL, "/"),
		priority:   priority,
		httpClient: httpClient,
	}
}

// FeeRate queries the recommended fees and returns the rate of the configured
// priority.
//
// NOTE: This is part of the Oracle interface.
func (m *MempoolSpace) FeeRate(ctx context.Context) (chainfee.SatPerVByte,
	error) {

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, m.baseURL+recommendedPath, nil,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("%w: status %d: %s", ErrOracleUnavailable,
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var fees recommendedFees
	if err := json.NewDecoder(resp.Body).Decode(&fees); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v",
			ErrOracleUnavailable, err)
	}

	rate := fees.rate(m.priority)
	if rate == 0 {
		return 0, fmt.Errorf("%w: zero %v", ErrOracleUnavailable,
			m.priority)
	}

	log.Debugf("mempool.space %v: %d sat/vB", m.priority, rate)

	return chainfee.SatPerVByte(rate), nil
}
