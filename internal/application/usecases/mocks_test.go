package usecases

import (
	"context"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"usbnic-failover/internal/domain/entities"
	domainerrors "usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"
	"usbnic-failover/internal/domain/services"
	"usbnic-failover/internal/infrastructure/adapters"
	"usbnic-failover/internal/infrastructure/network"
	"usbnic-failover/pkg/utils"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testInterfacesPath = "/etc/network/interfaces"
	testBridge         = "vmbr0"
	testFailover       = "enp3s0"
	testBridgeMAC      = "02:11:22:33:44:55"
	usbDevicePath      = "/sys/devices/pci0000:00/0000:00:14.0/usb2/2-1"
	onboardDevicePath  = "/sys/devices/pci0000:00/0000:00:1c.0/0000:03:00.0"
)

var rtl8157 = entities.DeviceIdentity{VendorID: "0bda", ProductID: "8157"}

const proxmoxInterfaces = `auto lo
iface lo inet loopback

iface enp3s0 inet manual

auto vmbr0
iface vmbr0 inet static
	address 192.168.1.10/24
	gateway 192.168.1.1
	bridge-ports enxUSB1
	bridge-stp off
	bridge-fd 0
`

type fakeNic struct {
	devicePath string
	vendor     string
	product    string
	driver     string
	carrier    entities.LinkState
	admin      entities.AdminState
	mac        string
}

// fakeHost is a stateful SystemInspector and Pinger. The gateway answers only when the
// applied uplink exists, has carrier and is not marked dead.
type fakeHost struct {
	mu      sync.Mutex
	nics    map[string]*fakeNic
	uplink  string
	dead    map[string]bool
	gateway net.IP
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		nics: map[string]*fakeNic{
			testBridge: {
				devicePath: "/sys/devices/virtual/net/vmbr0",
				carrier:    entities.LinkUp,
				admin:      entities.AdminUp,
				mac:        testBridgeMAC,
			},
			testFailover: {
				devicePath: onboardDevicePath,
				driver:     "r8169",
				carrier:    entities.LinkUp,
				admin:      entities.AdminDown,
				mac:        "b4:2e:99:00:00:01",
			},
		},
		uplink:  "enxUSB1",
		dead:    map[string]bool{},
		gateway: net.ParseIP("192.168.1.1"),
	}
}

// plugUSB attaches the RTL8157 under name bound to driver
func (h *fakeHost) plugUSB(name, driver string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nics[name] = &fakeNic{
		devicePath: usbDevicePath + "/2-1:1.0",
		vendor:     rtl8157.VendorID,
		product:    rtl8157.ProductID,
		driver:     driver,
		carrier:    entities.LinkUp,
		admin:      entities.AdminUp,
		mac:        "00:e0:4c:68:00:01",
	}
}

func (h *fakeHost) unplug(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.nics, name)
}

func (h *fakeHost) markDead(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dead[name] = true
}

func (h *fakeHost) setCarrier(name string, state entities.LinkState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nics[name].carrier = state
}

func (h *fakeHost) applyUplink(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.uplink = name
}

func (h *fakeHost) appliedUplink() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.uplink
}

func (h *fakeHost) nic(name string) (*fakeNic, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nics[name]
	if !ok {
		return nil, domainerrors.NewNotFoundError(fmt.Sprintf("interface %s not found", name))
	}
	return n, nil
}

func (h *fakeHost) ListInterfaces(ctx context.Context) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.nics))
	for name := range h.nics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (h *fakeHost) DevicePath(ctx context.Context, name string) (string, error) {
	n, err := h.nic(name)
	if err != nil {
		return "", err
	}
	return n.devicePath, nil
}

func (h *fakeHost) ReadDeviceAttribute(ctx context.Context, devicePath, attribute string) (string, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, n := range h.nics {
		if n.vendor == "" || filepath.Dir(n.devicePath) != devicePath {
			continue
		}
		switch attribute {
		case "idVendor":
			return n.vendor + "\n", true, nil
		case "idProduct":
			return n.product + "\n", true, nil
		}
	}
	return "", false, nil
}

func (h *fakeHost) CurrentDriverOf(ctx context.Context, name string) (string, error) {
	n, err := h.nic(name)
	if err != nil {
		return "", err
	}
	return n.driver, nil
}

func (h *fakeHost) CarrierOf(ctx context.Context, name string) (entities.LinkState, error) {
	n, err := h.nic(name)
	if err != nil {
		return entities.LinkUnknown, err
	}
	return n.carrier, nil
}

func (h *fakeHost) AdminStateOf(ctx context.Context, name string) (entities.AdminState, error) {
	n, err := h.nic(name)
	if err != nil {
		return "", err
	}
	return n.admin, nil
}

func (h *fakeHost) SetAdminState(ctx context.Context, name string, state entities.AdminState) error {
	n, err := h.nic(name)
	if err != nil {
		return err
	}
	h.mu.Lock()
	n.admin = state
	h.mu.Unlock()
	return nil
}

func (h *fakeHost) HardwareAddressOf(ctx context.Context, name string) (string, error) {
	n, err := h.nic(name)
	if err != nil {
		return "", err
	}
	return n.mac, nil
}

func (h *fakeHost) DefaultGateway(ctx context.Context) (net.IP, bool, error) {
	return h.gateway, h.gateway != nil, nil
}

func (h *fakeHost) Ping(ctx context.Context, addr net.IP, timeout time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nics[h.uplink]
	if !ok || h.dead[h.uplink] || n.carrier != entities.LinkUp {
		return fmt.Errorf("no reply from %s via %q", addr, h.uplink)
	}
	return nil
}

// fakeReloader applies whatever uplink the interfaces file names
type fakeReloader struct {
	host    *fakeHost
	editor  interfaces.BridgeConfigEditor
	reloads int
	err     error

	// honorCancel fails the reload on a cancelled context, as an exec'd ifreload does
	honorCancel bool
	// afterApply runs after every applied reload with the reload count
	afterApply func(n int)
}

func (r *fakeReloader) Reload(ctx context.Context) error {
	r.reloads++
	if r.honorCancel && ctx.Err() != nil {
		return ctx.Err()
	}
	if r.err != nil {
		return r.err
	}
	uplink, err := r.editor.UplinkPort()
	if err != nil {
		return err
	}
	r.host.applyUplink(uplink)
	if r.afterApply != nil {
		r.afterApply(r.reloads)
	}
	return nil
}

type fakeDiagnostics struct {
	calls  int
	ctxErr error
}

func (d *fakeDiagnostics) Snapshot(ctx context.Context, identity entities.DeviceIdentity) entities.DiagnosticSnapshot {
	d.calls++
	d.ctxErr = ctx.Err()
	return entities.DiagnosticSnapshot{
		USBDevice:  "Bus 002 Device 003: ID " + identity.String(),
		Interfaces: []string{testBridge, testFailover},
	}
}

// recordingBackup remembers which files were backed up without copying them
type recordingBackup struct {
	taken map[string]string
}

func newRecordingBackup() *recordingBackup {
	return &recordingBackup{taken: make(map[string]string)}
}

func (b *recordingBackup) EnsureBackup(path string) (string, error) {
	if _, ok := b.taken[path]; !ok {
		b.taken[path] = path + ".bak"
	}
	return b.taken[path], nil
}

func (b *recordingBackup) BackupOf(path string) (string, bool) {
	backupPath, ok := b.taken[path]
	return backupPath, ok
}

func (b *recordingBackup) LatestBackup(path string) (string, bool, error) {
	backupPath, ok := b.taken[path]
	return backupPath, ok, nil
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var testResolveRetry = utils.RetryConfig{
	MaxAttempts:  4,
	InitialDelay: time.Second,
	MaxDelay:     4 * time.Second,
	Multiplier:   2,
}

// harness wires the orchestrator against the fake host and a real editor on an in-memory file
type harness struct {
	host        *fakeHost
	fs          interfaces.FileSystem
	editor      *network.FileBridgeEditor
	reloader    *fakeReloader
	diagnostics *fakeDiagnostics
	clock       *fakeClock
	resolver    *services.IdentityResolver
	prober      *services.LinkProber
	gate        *services.ConnectivityGate
	orch        *FailoverOrchestrator
}

func newHarness(t *testing.T, content string) *harness {
	t.Helper()

	fs := adapters.NewAferoFileSystem(afero.NewMemMapFs())
	require.NoError(t, fs.WriteFile(testInterfacesPath, []byte(content), 0644))

	logger := testLogger()
	host := newFakeHost()
	host.plugUSB("enxUSB1", "cdc_ncm")
	clock := newFakeClock()
	editor := network.NewFileBridgeEditor(fs, newRecordingBackup(), logger, testInterfacesPath, testBridge)
	reloader := &fakeReloader{host: host, editor: editor}
	diagnostics := &fakeDiagnostics{}

	resolver := services.NewIdentityResolver(host, logger)
	prober := services.NewLinkProber(host, clock, logger, time.Second)
	gate := services.NewConnectivityGate(host, host, clock, logger, services.GateConfig{
		AdminTimeout:   3 * time.Second,
		GatewayTimeout: 3 * time.Second,
		PollInterval:   time.Second,
		ProbeTimeout:   time.Second,
	})

	return &harness{
		host:        host,
		fs:          fs,
		editor:      editor,
		reloader:    reloader,
		diagnostics: diagnostics,
		clock:       clock,
		resolver:    resolver,
		prober:      prober,
		gate:        gate,
		orch:        NewFailoverOrchestrator(resolver, prober, gate, editor, reloader, host, diagnostics, clock, logger),
	}
}

func (h *harness) interfacesFile(t *testing.T) string {
	t.Helper()
	data, err := h.fs.ReadFile(testInterfacesPath)
	require.NoError(t, err)
	return string(data)
}

func (h *harness) uplink(t *testing.T) string {
	t.Helper()
	port, err := h.editor.UplinkPort()
	require.NoError(t, err)
	return port
}

// MockPackageManager is a testify mock of interfaces.PackageManager
type MockPackageManager struct {
	mock.Mock
}

func (m *MockPackageManager) InstallLocal(ctx context.Context, debPath string) error {
	return m.Called(ctx, debPath).Error(0)
}

func (m *MockPackageManager) Remove(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *MockPackageManager) IsInstalled(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

// MockDriverManager is a testify mock of interfaces.DriverManager
type MockDriverManager struct {
	mock.Mock
}

func (m *MockDriverManager) VerifyDKMS(ctx context.Context, module string) error {
	return m.Called(ctx, module).Error(0)
}

func (m *MockDriverManager) RegenerateInitramfs(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDriverManager) ReloadUdevRules(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDriverManager) TriggerUSB(ctx context.Context, identity entities.DeviceIdentity) error {
	return m.Called(ctx, identity).Error(0)
}

func (m *MockDriverManager) SwapModules(ctx context.Context, unload []string, load string) error {
	return m.Called(ctx, unload, load).Error(0)
}

func (m *MockDriverManager) IsModuleLoaded(module string) bool {
	return m.Called(module).Bool(0)
}

// MockSecureBoot is a testify mock of interfaces.SecureBootInspector
type MockSecureBoot struct {
	mock.Mock
}

func (m *MockSecureBoot) Report(ctx context.Context) entities.SecureBootReport {
	return m.Called(ctx).Get(0).(entities.SecureBootReport)
}

// MockPreflight is a testify mock of interfaces.PreflightChecker
type MockPreflight struct {
	mock.Mock
}

func (m *MockPreflight) Check(ctx context.Context, tools []string) (interfaces.PreflightResult, error) {
	args := m.Called(ctx, tools)
	return args.Get(0).(interfaces.PreflightResult), args.Error(1)
}
