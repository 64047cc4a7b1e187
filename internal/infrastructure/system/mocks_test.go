package system

import (
	"context"
	"net"
	"time"

	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

// MockCommandExecutor records command lines as individual arguments
type MockCommandExecutor struct {
	mock.Mock
}

func (m *MockCommandExecutor) Execute(ctx context.Context, command string, args ...string) ([]byte, error) {
	callArgs := append([]interface{}{ctx, command}, toInterfaces(args)...)
	ret := m.Called(callArgs...)
	return ret.Get(0).([]byte), ret.Error(1)
}

func (m *MockCommandExecutor) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, command string, args ...string) ([]byte, error) {
	callArgs := append([]interface{}{ctx, timeout, command}, toInterfaces(args)...)
	ret := m.Called(callArgs...)
	return ret.Get(0).([]byte), ret.Error(1)
}

func (m *MockCommandExecutor) LookPath(command string) (string, error) {
	ret := m.Called(command)
	return ret.String(0), ret.Error(1)
}

func toInterfaces(args []string) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}

type MockOSDetector struct {
	mock.Mock
}

func (m *MockOSDetector) DetectOS() (interfaces.OSType, error) {
	ret := m.Called()
	return ret.Get(0).(interfaces.OSType), ret.Error(1)
}

// listOnlyInspector answers ListInterfaces and nothing else
type listOnlyInspector struct {
	interfaces.SystemInspector
	names []string
	err   error
}

func (i *listOnlyInspector) ListInterfaces(ctx context.Context) ([]string, error) {
	return i.names, i.err
}

func (i *listOnlyInspector) DefaultGateway(ctx context.Context) (net.IP, bool, error) {
	return nil, false, nil
}

func (i *listOnlyInspector) CarrierOf(ctx context.Context, name string) (entities.LinkState, error) {
	return entities.LinkUnknown, nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time                                   { return c.now }
func (c fixedClock) Sleep(ctx context.Context, d time.Duration) error { return nil }

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logger
}
