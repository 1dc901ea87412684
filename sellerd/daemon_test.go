package sellerd

import (
	"context"
	"testing"

	"github.com/chanmarket/autoseller/feeoracle"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/stretchr/testify/require"
)

type mockEstimator struct {
	confTarget int32
}

func (m *mockEstimator) EstimateFeeRate(_ context.Context,
	confTarget int32) (chainfee.SatPerKWeight, error) {

	m.confTarget = confTarget

	return chainfee.SatPerKWeight(2500), nil
}

// TestNewFeeOracle tests that the configured fee source is used.
func TestNewFeeOracle(t *testing.T) {
	cfg := DefaultConfig()

	oracle, err := newFeeOracle(&cfg, nil)
	require.NoError(t, err)
	require.IsType(t, &feeoracle.MempoolSpace{}, oracle)

	estimator := &mockEstimator{}
	cfg.FeeSource = FeeSourceLnd
	cfg.FeeConfTarget = 6

	oracle, err = newFeeOracle(&cfg, estimator)
	require.NoError(t, err)

	rate, err := oracle.FeeRate(context.Background())
	require.NoError(t, err)
	require.Equal(t, chainfee.SatPerVByte(10), rate)
	require.EqualValues(t, 6, estimator.confTarget)

	cfg.FeeSource = "oracle"
	_, err = newFeeOracle(&cfg, estimator)
	require.Error(t, err)
}
