package services

import (
	"context"
	"errors"
	"testing"

	"usbnic-failover/internal/domain/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	usbPort1 = "/sys/devices/pci0000:00/0000:00:14.0/usb2/2-1"
	usbPort2 = "/sys/devices/pci0000:00/0000:00:14.0/usb2/2-2"
	pciNic   = "/sys/devices/pci0000:00/0000:00:1c.0/0000:03:00.0"
)

var rtl8157 = entities.DeviceIdentity{VendorID: "0bda", ProductID: "8157"}

// withUSBNic registers a NIC whose identity sits on the parent of its device node
func withUSBNic(m *MockSystemInspector, name, usbDevice, vendor, product, driver string) {
	intf := usbDevice + "/" + usbDevice[len(usbDevice)-3:] + ":1.0"
	m.On("DevicePath", mock.Anything, name).Return(intf, nil)
	m.On("ReadDeviceAttribute", mock.Anything, intf, mock.Anything).Return("", false, nil)
	m.On("ReadDeviceAttribute", mock.Anything, usbDevice, "idVendor").Return(vendor, true, nil)
	m.On("ReadDeviceAttribute", mock.Anything, usbDevice, "idProduct").Return(product, true, nil)
	m.On("CurrentDriverOf", mock.Anything, name).Return(driver, nil)
}

func TestIdentityResolver_Resolve(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(m *MockSystemInspector)
		requireDriver string
		wantFound     bool
		wantName      string
		wantErr       bool
	}{
		{
			name: "device bound to the required driver",
			setup: func(m *MockSystemInspector) {
				m.On("ListInterfaces", mock.Anything).Return([]string{"enp3s0", "enx00e04c680001", "vmbr0"}, nil)
				m.On("DevicePath", mock.Anything, "enp3s0").Return(pciNic, nil)
				m.On("DevicePath", mock.Anything, "vmbr0").Return("", nil)
				withUSBNic(m, "enx00e04c680001", usbPort1, "0bda", "8157", "r8152")
			},
			requireDriver: "r8152",
			wantFound:     true,
			wantName:      "enx00e04c680001",
		},
		{
			name: "device present but bound to another driver",
			setup: func(m *MockSystemInspector) {
				m.On("ListInterfaces", mock.Anything).Return([]string{"enx00e04c680001"}, nil)
				withUSBNic(m, "enx00e04c680001", usbPort1, "0bda", "8157", "cdc_ncm")
			},
			requireDriver: "r8152",
			wantFound:     false,
		},
		{
			name: "any driver accepted",
			setup: func(m *MockSystemInspector) {
				m.On("ListInterfaces", mock.Anything).Return([]string{"enx00e04c680001"}, nil)
				withUSBNic(m, "enx00e04c680001", usbPort1, "0bda", "8157", "cdc_ncm")
			},
			wantFound: true,
			wantName:  "enx00e04c680001",
		},
		{
			name: "other USB identity ignored",
			setup: func(m *MockSystemInspector) {
				m.On("ListInterfaces", mock.Anything).Return([]string{"enx00e04c360002"}, nil)
				withUSBNic(m, "enx00e04c360002", usbPort2, "0bda", "8153", "r8152")
			},
			wantFound: false,
		},
		{
			name: "identical devices resolve to the first name",
			setup: func(m *MockSystemInspector) {
				m.On("ListInterfaces", mock.Anything).Return([]string{"enx2", "enx1"}, nil)
				withUSBNic(m, "enx2", usbPort2, "0bda", "8157", "r8152")
				withUSBNic(m, "enx1", usbPort1, "0bda", "8157", "r8152")
			},
			wantFound: true,
			wantName:  "enx1",
		},
		{
			name: "vanishing interface is skipped",
			setup: func(m *MockSystemInspector) {
				m.On("ListInterfaces", mock.Anything).Return([]string{"enx0", "enx00e04c680001"}, nil)
				m.On("DevicePath", mock.Anything, "enx0").Return("", errors.New("no such device"))
				withUSBNic(m, "enx00e04c680001", usbPort1, "0bda", "8157", "r8152")
			},
			wantFound: true,
			wantName:  "enx00e04c680001",
		},
		{
			name: "enumeration failure is an error",
			setup: func(m *MockSystemInspector) {
				m.On("ListInterfaces", mock.Anything).Return([]string(nil), errors.New("sysfs unavailable"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inspector := new(MockSystemInspector)
			tt.setup(inspector)

			resolver := NewIdentityResolver(inspector, testLogger())
			iface, found, err := resolver.Resolve(context.Background(), rtl8157, tt.requireDriver)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, tt.wantName, iface.Name)
				assert.Equal(t, rtl8157, iface.Identity)
			}
		})
	}
}

func TestIdentityResolver_WalkDepthIsBounded(t *testing.T) {
	inspector := new(MockSystemInspector)
	deep := usbPort1 + "/a/b/c/d"
	inspector.On("ListInterfaces", mock.Anything).Return([]string{"enxdeep"}, nil)
	inspector.On("DevicePath", mock.Anything, "enxdeep").Return(deep, nil)
	inspector.On("ReadDeviceAttribute", mock.Anything, mock.Anything, mock.Anything).Return("", false, nil)

	resolver := NewIdentityResolver(inspector, testLogger())
	_, found, err := resolver.Resolve(context.Background(), rtl8157, "")

	require.NoError(t, err)
	assert.False(t, found)
	// leaf plus three parents, two attributes each
	inspector.AssertNumberOfCalls(t, "ReadDeviceAttribute", 8)
	inspector.AssertNotCalled(t, "ReadDeviceAttribute", mock.Anything, usbPort1, mock.Anything)
}
