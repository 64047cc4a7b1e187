package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"usbnic-failover/internal/domain/entities"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(StateTransitions.WithLabelValues("install", "swap_to_failover"))
	RecordTransition("install", entities.StateSwapToFailover)
	assert.Equal(t, before+1, testutil.ToFloat64(StateTransitions.WithLabelValues("install", "swap_to_failover")))

	before = testutil.ToFloat64(ResolveAttempts.WithLabelValues("error"))
	RecordResolveAttempt(false, errors.New("sysfs"))
	assert.Equal(t, before+1, testutil.ToFloat64(ResolveAttempts.WithLabelValues("error")))

	before = testutil.ToFloat64(ErrorsTotal.WithLabelValues("precondition"))
	RecordError("PRECONDITION")
	assert.Equal(t, before+1, testutil.ToFloat64(ErrorsTotal.WithLabelValues("precondition")))
}

func TestRecordRun(t *testing.T) {
	start := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	first := entities.NewRunContext("install", entities.DeviceIdentity{VendorID: "0bda", ProductID: "8157"}, "vmbr0", start)
	first.Transition(entities.StateAbortedNoSwap, start.Add(time.Second), "")
	RecordRun(first)

	second := entities.NewRunContext("install", entities.DeviceIdentity{VendorID: "0bda", ProductID: "8157"}, "vmbr0", start)
	second.Transition(entities.StateDone, start.Add(42*time.Second), "")
	RecordRun(second)

	// only the latest outcome remains
	assert.Equal(t, 1, testutil.CollectAndCount(LastRunOutcome))
	assert.Equal(t, float64(1), testutil.ToFloat64(LastRunOutcome.WithLabelValues("install", "done")))
	assert.Equal(t, float64(42), testutil.ToFloat64(LastRunDuration.WithLabelValues("install")))
	assert.Equal(t, float64(start.Add(42*time.Second).Unix()), testutil.ToFloat64(LastRunTimestamp.WithLabelValues("install")))
}

func TestWriteTextfile(t *testing.T) {
	RecordSwap("to_failover")
	RecordGateCheck(true)

	path := filepath.Join(t.TempDir(), "usbnic.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `usbnic_bridge_swaps_total{direction="to_failover"}`)
	assert.Contains(t, string(data), `usbnic_gate_checks_total{result="ready"}`)
	assert.NotContains(t, string(data), "go_goroutines")
}
