package services

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"usbnic-failover/internal/domain/entities"
	domainerrors "usbnic-failover/internal/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testGateConfig = GateConfig{
	AdminTimeout:   5 * time.Second,
	GatewayTimeout: 5 * time.Second,
	PollInterval:   time.Second,
	ProbeTimeout:   time.Second,
}

func TestConnectivityGate_BridgeUpAfterTwoPolls(t *testing.T) {
	inspector := new(MockSystemInspector)
	pinger := new(MockPinger)
	clock := newFakeClock()
	gw := net.ParseIP("192.168.1.1")

	inspector.On("AdminStateOf", mock.Anything, "vmbr0").Return(entities.AdminDown, nil).Twice()
	inspector.On("AdminStateOf", mock.Anything, "vmbr0").Return(entities.AdminUp, nil)
	inspector.On("DefaultGateway", mock.Anything).Return(gw, true, nil)
	pinger.On("Ping", mock.Anything, gw, time.Second).Return(nil)

	gate := NewConnectivityGate(inspector, pinger, clock, testLogger(), testGateConfig)
	err := gate.AwaitReady(context.Background(), "vmbr0")

	require.NoError(t, err)
	inspector.AssertNumberOfCalls(t, "AdminStateOf", 3)
	pinger.AssertNumberOfCalls(t, "Ping", 1)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.sleeps)
}

func TestConnectivityGate_BridgeNeverUp(t *testing.T) {
	inspector := new(MockSystemInspector)
	pinger := new(MockPinger)
	clock := newFakeClock()

	inspector.On("AdminStateOf", mock.Anything, "vmbr0").Return(entities.AdminState(""), errors.New("link not found"))

	gate := NewConnectivityGate(inspector, pinger, clock, testLogger(), testGateConfig)
	err := gate.AwaitReady(context.Background(), "vmbr0")

	assert.True(t, domainerrors.IsTimeoutError(err))
	inspector.AssertNumberOfCalls(t, "AdminStateOf", 5)
	inspector.AssertNotCalled(t, "DefaultGateway", mock.Anything)
	pinger.AssertNotCalled(t, "Ping", mock.Anything, mock.Anything, mock.Anything)
}

func TestConnectivityGate_NoDefaultRouteSkipsProbe(t *testing.T) {
	inspector := new(MockSystemInspector)
	pinger := new(MockPinger)

	inspector.On("AdminStateOf", mock.Anything, "vmbr0").Return(entities.AdminUp, nil)
	inspector.On("DefaultGateway", mock.Anything).Return(nil, false, nil)

	gate := NewConnectivityGate(inspector, pinger, newFakeClock(), testLogger(), testGateConfig)

	require.NoError(t, gate.AwaitReady(context.Background(), "vmbr0"))
	pinger.AssertNotCalled(t, "Ping", mock.Anything, mock.Anything, mock.Anything)
}

func TestConnectivityGate_GatewayUnreachable(t *testing.T) {
	inspector := new(MockSystemInspector)
	pinger := new(MockPinger)
	clock := newFakeClock()
	gw := net.ParseIP("10.0.0.1")

	inspector.On("AdminStateOf", mock.Anything, "vmbr0").Return(entities.AdminUp, nil)
	inspector.On("DefaultGateway", mock.Anything).Return(gw, true, nil)
	pinger.On("Ping", mock.Anything, gw, time.Second).Return(errors.New("i/o timeout"))

	gate := NewConnectivityGate(inspector, pinger, clock, testLogger(), testGateConfig)
	err := gate.AwaitReady(context.Background(), "vmbr0")

	assert.True(t, domainerrors.IsTimeoutError(err))
	pinger.AssertNumberOfCalls(t, "Ping", 5)
	assert.Len(t, clock.sleeps, 4)
}

func TestConnectivityGate_SlowPingsStayWithinGatewayTimeout(t *testing.T) {
	inspector := new(MockSystemInspector)
	pinger := new(MockPinger)
	clock := newFakeClock()
	gw := net.ParseIP("10.0.0.1")
	cfg := testGateConfig
	cfg.ProbeTimeout = 3 * time.Second

	inspector.On("AdminStateOf", mock.Anything, "vmbr0").Return(entities.AdminUp, nil)
	inspector.On("DefaultGateway", mock.Anything).Return(gw, true, nil)
	pinger.On("Ping", mock.Anything, gw, mock.Anything).
		Run(func(args mock.Arguments) {
			clock.now = clock.now.Add(args.Get(2).(time.Duration))
		}).
		Return(errors.New("i/o timeout"))

	start := clock.now
	gate := NewConnectivityGate(inspector, pinger, clock, testLogger(), cfg)
	err := gate.AwaitReady(context.Background(), "vmbr0")

	require.Error(t, err)
	assert.True(t, domainerrors.IsTimeoutError(err))
	assert.Contains(t, err.Error(), "after 2 probes")
	pinger.AssertNumberOfCalls(t, "Ping", 2)
	pinger.AssertCalled(t, "Ping", mock.Anything, gw, 3*time.Second)
	pinger.AssertCalled(t, "Ping", mock.Anything, gw, time.Second)
	assert.LessOrEqual(t, clock.now.Sub(start), cfg.GatewayTimeout+cfg.PollInterval)
}

func TestConnectivityGate_CancelledContext(t *testing.T) {
	inspector := new(MockSystemInspector)
	inspector.On("AdminStateOf", mock.Anything, "vmbr0").Return(entities.AdminDown, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gate := NewConnectivityGate(inspector, new(MockPinger), newFakeClock(), testLogger(), testGateConfig)
	err := gate.AwaitReady(ctx, "vmbr0")

	assert.ErrorIs(t, err, context.Canceled)
}
