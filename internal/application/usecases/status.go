package usecases

import (
	"context"
	"fmt"

	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"
	"usbnic-failover/internal/domain/services"

	"github.com/sirupsen/logrus"
)

// StatusUseCase reports the current uplink, device and driver state without changing anything
type StatusUseCase struct {
	resolver   *services.IdentityResolver
	inspector  interfaces.SystemInspector
	editor     interfaces.BridgeConfigEditor
	packages   interfaces.PackageManager
	drivers    interfaces.DriverManager
	secureBoot interfaces.SecureBootInspector
	settings   DriverSettings
	logger     *logrus.Logger
}

// NewStatusUseCase creates a new StatusUseCase
func NewStatusUseCase(
	resolver *services.IdentityResolver,
	inspector interfaces.SystemInspector,
	editor interfaces.BridgeConfigEditor,
	packages interfaces.PackageManager,
	drivers interfaces.DriverManager,
	secureBoot interfaces.SecureBootInspector,
	settings DriverSettings,
	logger *logrus.Logger,
) *StatusUseCase {
	return &StatusUseCase{
		resolver:   resolver,
		inspector:  inspector,
		editor:     editor,
		packages:   packages,
		drivers:    drivers,
		secureBoot: secureBoot,
		settings:   settings,
		logger:     logger,
	}
}

// StatusOutput is the status report
type StatusOutput struct {
	Bridge        string
	Uplink        string
	PinnedAddress string
	LatestBackup  string

	Identity       entities.DeviceIdentity
	Devices        []entities.NetworkInterface
	UplinkIsDevice bool

	FailoverInterface string
	FailoverMethod    string
	FailoverLink      entities.LinkState

	PackageName      string
	PackageInstalled bool
	VendorDriver     string
	VendorLoaded     bool
	GenericDriver    string
	GenericLoaded    bool

	SecureBoot entities.SecureBootReport
	Warnings   []string
}

// Execute builds the report. Only an unreadable interfaces file is fatal; every other probe
// failure becomes a warning.
func (uc *StatusUseCase) Execute(ctx context.Context) (*StatusOutput, error) {
	output := &StatusOutput{
		Bridge:            uc.settings.Bridge,
		Identity:          uc.settings.Identity,
		FailoverInterface: uc.settings.FailoverInterface,
		PackageName:       uc.settings.PackageName,
		VendorDriver:      uc.settings.VendorDriver,
		GenericDriver:     uc.settings.GenericDriver,
		FailoverLink:      entities.LinkUnknown,
	}

	uplink, err := uc.editor.UplinkPort()
	if err != nil {
		return output, errors.NewPreconditionError("cannot read bridge configuration", err)
	}
	output.Uplink = uplink

	if output.PinnedAddress, err = uc.editor.PinnedAddress(); err != nil {
		output.warn("pinned address", err)
	}
	if output.LatestBackup, err = uc.editor.LatestBackup(); err != nil {
		output.warn("backups", err)
	}
	if output.FailoverMethod, err = uc.editor.AddressingMethod(uc.settings.FailoverInterface); err != nil {
		output.warn("failover addressing method", err)
	}

	if output.Devices, err = uc.resolver.ResolveAll(ctx, uc.settings.Identity); err != nil {
		output.warn("device enumeration", err)
	}
	for _, device := range output.Devices {
		if device.Name == uplink {
			output.UplinkIsDevice = true
		}
	}
	if len(output.Devices) > 1 {
		output.Warnings = append(output.Warnings, fmt.Sprintf("%d interfaces share identity %s", len(output.Devices), uc.settings.Identity))
	}

	if output.FailoverLink, err = uc.inspector.CarrierOf(ctx, uc.settings.FailoverInterface); err != nil {
		output.FailoverLink = entities.LinkUnknown
		output.warn("failover carrier", err)
	}

	if output.PackageInstalled, err = uc.packages.IsInstalled(ctx, uc.settings.PackageName); err != nil {
		output.warn("package state", err)
	}
	output.VendorLoaded = uc.drivers.IsModuleLoaded(uc.settings.VendorDriver)
	output.GenericLoaded = uc.drivers.IsModuleLoaded(uc.settings.GenericDriver)
	output.SecureBoot = uc.secureBoot.Report(ctx)

	uc.logger.WithFields(logrus.Fields{
		"bridge":  output.Bridge,
		"uplink":  output.Uplink,
		"devices": len(output.Devices),
	}).Debug("Status collected")
	return output, nil
}

func (o *StatusOutput) warn(what string, err error) {
	o.Warnings = append(o.Warnings, fmt.Sprintf("%s: %v", what, err))
}
