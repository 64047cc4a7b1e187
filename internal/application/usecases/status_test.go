package usecases

import (
	"context"
	"testing"

	"usbnic-failover/internal/domain/entities"
	domainerrors "usbnic-failover/internal/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newStatusUseCase(h *harness, packages *MockPackageManager, drivers *MockDriverManager, secureBoot *MockSecureBoot) *StatusUseCase {
	return NewStatusUseCase(h.resolver, h.host, h.editor, packages, drivers, secureBoot, testSettings(), testLogger())
}

func TestStatusUseCase_Execute(t *testing.T) {
	h := newHarness(t, pinnedInterfaces)
	packages := new(MockPackageManager)
	packages.On("IsInstalled", mock.Anything, "realtek-r8152-dkms").Return(true, nil)
	drivers := new(MockDriverManager)
	drivers.On("IsModuleLoaded", "r8152").Return(false)
	drivers.On("IsModuleLoaded", "cdc_ncm").Return(true)
	secureBoot := new(MockSecureBoot)
	secureBoot.On("Report", mock.Anything).Return(entities.SecureBootReport{State: entities.SecureBootDisabled})

	output, err := newStatusUseCase(h, packages, drivers, secureBoot).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "enxUSB1", output.Uplink)
	assert.Equal(t, testBridgeMAC, output.PinnedAddress)
	assert.Empty(t, output.LatestBackup)
	require.Len(t, output.Devices, 1)
	assert.Equal(t, "cdc_ncm", output.Devices[0].Driver)
	assert.True(t, output.UplinkIsDevice)
	assert.Equal(t, "manual", output.FailoverMethod)
	assert.Equal(t, entities.LinkUp, output.FailoverLink)
	assert.True(t, output.PackageInstalled)
	assert.False(t, output.VendorLoaded)
	assert.True(t, output.GenericLoaded)
	assert.Empty(t, output.Warnings)

	// read only
	assert.Equal(t, pinnedInterfaces, h.interfacesFile(t))
	assert.Zero(t, h.reloader.reloads)
	admin, err := h.host.AdminStateOf(context.Background(), testFailover)
	require.NoError(t, err)
	assert.Equal(t, entities.AdminDown, admin)
}

func TestStatusUseCase_ProbeFailuresBecomeWarnings(t *testing.T) {
	h := newHarness(t, proxmoxInterfaces)
	h.host.unplug(testFailover)
	h.host.unplug("enxUSB1")

	packages := new(MockPackageManager)
	packages.On("IsInstalled", mock.Anything, "realtek-r8152-dkms").Return(false, nil)
	drivers := new(MockDriverManager)
	drivers.On("IsModuleLoaded", mock.Anything).Return(false)
	secureBoot := new(MockSecureBoot)
	secureBoot.On("Report", mock.Anything).Return(entities.SecureBootReport{State: entities.SecureBootUnknown})

	output, err := newStatusUseCase(h, packages, drivers, secureBoot).Execute(context.Background())
	require.NoError(t, err)

	assert.Empty(t, output.Devices)
	assert.False(t, output.UplinkIsDevice)
	assert.Equal(t, entities.LinkUnknown, output.FailoverLink)
	require.Len(t, output.Warnings, 1)
	assert.Contains(t, output.Warnings[0], "failover carrier")
}

func TestStatusUseCase_UnreadableInterfacesFile(t *testing.T) {
	h := newHarness(t, proxmoxInterfaces)
	require.NoError(t, h.fs.Remove(testInterfacesPath))

	_, err := newStatusUseCase(h, new(MockPackageManager), new(MockDriverManager), new(MockSecureBoot)).Execute(context.Background())
	require.Error(t, err)
	assert.True(t, domainerrors.IsPreconditionError(err))
}

func TestStatusUseCase_ReportsLatestBackup(t *testing.T) {
	h := newHarness(t, proxmoxInterfaces)
	// an earlier run moved the bridge and left a backup behind
	require.NoError(t, h.editor.SetUplinkPort(testFailover))

	packages := new(MockPackageManager)
	packages.On("IsInstalled", mock.Anything, "realtek-r8152-dkms").Return(true, nil)
	drivers := new(MockDriverManager)
	drivers.On("IsModuleLoaded", mock.Anything).Return(true)
	secureBoot := new(MockSecureBoot)
	secureBoot.On("Report", mock.Anything).Return(entities.SecureBootReport{State: entities.SecureBootDisabled})

	output, err := newStatusUseCase(h, packages, drivers, secureBoot).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, testInterfacesPath+".bak", output.LatestBackup)
	assert.Equal(t, testFailover, output.Uplink)
	assert.False(t, output.UplinkIsDevice)
}
