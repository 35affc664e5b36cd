package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordOperation(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordOperation("donate", "", 0.4)
	c.RecordOperation("donate", "PoolInactive", 0.2)
	c.RecordOperation("withdraw", "InsufficientBalance", 0.2)

	require.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("donate", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("donate", "rejected")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.RejectionsTotal.WithLabelValues("withdraw", "InsufficientBalance")))
}

func TestLedgerGauges(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordDonation(1000)
	c.RecordWithdrawal(300)
	c.UpdateLedger(2, 700, 9)

	require.Equal(t, 1000.0, testutil.ToFloat64(c.DonationVolume))
	require.Equal(t, 300.0, testutil.ToFloat64(c.WithdrawalVolume))
	require.Equal(t, 2.0, testutil.ToFloat64(c.PoolsActive))
	require.Equal(t, 700.0, testutil.ToFloat64(c.CustodyBalance))
	require.Equal(t, 9.0, testutil.ToFloat64(c.EventSequence))
}

func TestRecordIndexed(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordIndexed("donation_made", 4, false)
	c.RecordIndexed("donation_made", 4, true)

	require.Equal(t, 1.0, testutil.ToFloat64(c.IndexerEventsApplied.WithLabelValues("donation_made")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.IndexerEventsDuplicate))
	require.Equal(t, 4.0, testutil.ToFloat64(c.IndexerLastSequence))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	require.Panics(t, func() { NewCollector(reg) })
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(2 * time.Millisecond)
	require.GreaterOrEqual(t, timer.ElapsedMs(), 1.0)
}
