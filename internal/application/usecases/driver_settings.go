package usecases

import (
	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/pkg/utils"
)

// DriverSettings are the device and bridge parameters shared by the driver use cases
type DriverSettings struct {
	Identity          entities.DeviceIdentity
	Bridge            string
	FailoverInterface string
	VendorDriver      string
	GenericDriver     string
	PackageName       string
	DKMSModule        string
	PinAddress        bool
	ResolveRetry      utils.RetryConfig
}

// failoverFor returns override when set, otherwise the configured failover interface
func (s DriverSettings) failoverFor(override string) (string, error) {
	name := s.FailoverInterface
	if override != "" {
		name = override
	}
	if err := entities.ValidateInterfaceName(name); err != nil {
		return "", err
	}
	return name, nil
}
