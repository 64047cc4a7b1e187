package services

import (
	"context"
	"net"
	"time"

	"usbnic-failover/internal/domain/entities"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

// MockSystemInspector is a testify mock of interfaces.SystemInspector
type MockSystemInspector struct {
	mock.Mock
}

func (m *MockSystemInspector) ListInterfaces(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockSystemInspector) DevicePath(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *MockSystemInspector) ReadDeviceAttribute(ctx context.Context, devicePath, attribute string) (string, bool, error) {
	args := m.Called(ctx, devicePath, attribute)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockSystemInspector) CurrentDriverOf(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *MockSystemInspector) CarrierOf(ctx context.Context, name string) (entities.LinkState, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(entities.LinkState), args.Error(1)
}

func (m *MockSystemInspector) AdminStateOf(ctx context.Context, name string) (entities.AdminState, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(entities.AdminState), args.Error(1)
}

func (m *MockSystemInspector) SetAdminState(ctx context.Context, name string, state entities.AdminState) error {
	args := m.Called(ctx, name, state)
	return args.Error(0)
}

func (m *MockSystemInspector) HardwareAddressOf(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *MockSystemInspector) DefaultGateway(ctx context.Context) (net.IP, bool, error) {
	args := m.Called(ctx)
	var ip net.IP
	if v := args.Get(0); v != nil {
		ip = v.(net.IP)
	}
	return ip, args.Bool(1), args.Error(2)
}

// MockPinger is a testify mock of interfaces.Pinger
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context, addr net.IP, timeout time.Duration) error {
	args := m.Called(ctx, addr, timeout)
	return args.Error(0)
}

// fakeClock advances virtual time on Sleep
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logger
}
