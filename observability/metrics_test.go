package observability

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"floorbank/core/events"
)

func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func TestWholeUnits(t *testing.T) {
	require.Equal(t, 0.0, WholeUnits(nil))
	require.Equal(t, 3.0, WholeUnits(units(3)))
	half := uint256.NewInt(500_000_000_000_000_000)
	require.InDelta(t, 0.5, WholeUnits(half), 1e-12)
}

func TestMetricsEmitterUpdatesGauges(t *testing.T) {
	var emitter MetricsEmitter
	emitter.Emit(events.PriceUpdated{
		Operation:       "buy",
		Price:           new(uint256.Int).Add(units(1), uint256.NewInt(250_000_000_000_000_000)),
		Backing:         units(1_025),
		Supply:          units(1_000),
		TotalCollateral: units(10),
		TotalBorrowed:   units(9),
	})
	require.InDelta(t, 1.25, testutil.ToFloat64(Vault().price), 1e-12)
	require.Equal(t, 1_025.0, testutil.ToFloat64(Vault().backing))
	require.Equal(t, 9.0, testutil.ToFloat64(Vault().borrowed))

	before := testutil.ToFloat64(Vault().swept.WithLabelValues("borrowed"))
	emitter.Emit(events.Liquidation{Day: 1, Collateral: units(2), Borrowed: units(1)})
	require.Equal(t, before+1, testutil.ToFloat64(Vault().swept.WithLabelValues("borrowed")))
	require.GreaterOrEqual(t, testutil.ToFloat64(Events().emitted.WithLabelValues(events.TypeLiquidation)), 1.0)
}

func TestRecordOperationOutcomes(t *testing.T) {
	m := Vault()
	okBefore := testutil.ToFloat64(m.operations.WithLabelValues("sell", "success"))
	errBefore := testutil.ToFloat64(m.operations.WithLabelValues("sell", "error"))
	m.RecordOperation("sell", nil)
	m.RecordOperation("sell", errors.New("boom"))
	require.Equal(t, okBefore+1, testutil.ToFloat64(m.operations.WithLabelValues("sell", "success")))
	require.Equal(t, errBefore+1, testutil.ToFloat64(m.operations.WithLabelValues("sell", "error")))

	var nilMetrics *vaultMetrics
	nilMetrics.RecordOperation("sell", nil)
}
