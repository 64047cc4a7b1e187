package usecases

import (
	"context"
	"fmt"

	"usbnic-failover/internal/domain/constants"
	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"
	"usbnic-failover/pkg/utils"

	"github.com/sirupsen/logrus"
)

// InstallDriverUseCase installs the vendor driver package while the bridge rides on the
// failover interface
type InstallDriverUseCase struct {
	orchestrator *FailoverOrchestrator
	preflight    interfaces.PreflightChecker
	secureBoot   interfaces.SecureBootInspector
	packages     interfaces.PackageManager
	drivers      interfaces.DriverManager
	settings     DriverSettings
	logger       *logrus.Logger
}

// NewInstallDriverUseCase creates a new InstallDriverUseCase
func NewInstallDriverUseCase(
	orchestrator *FailoverOrchestrator,
	preflight interfaces.PreflightChecker,
	secureBoot interfaces.SecureBootInspector,
	packages interfaces.PackageManager,
	drivers interfaces.DriverManager,
	settings DriverSettings,
	logger *logrus.Logger,
) *InstallDriverUseCase {
	return &InstallDriverUseCase{
		orchestrator: orchestrator,
		preflight:    preflight,
		secureBoot:   secureBoot,
		packages:     packages,
		drivers:      drivers,
		settings:     settings,
		logger:       logger,
	}
}

// InstallDriverInput is the input of the install use case
type InstallDriverInput struct {
	// PackagePath is a local .deb. Empty means the package must already be installed;
	// the run then only rebinds the device.
	PackagePath       string
	FailoverInterface string
	NoPin             bool
}

// InstallDriverOutput is the result of the install use case
type InstallDriverOutput struct {
	Run        *entities.RunContext
	Preflight  interfaces.PreflightResult
	SecureBoot entities.SecureBootReport
}

// Execute runs the install
func (uc *InstallDriverUseCase) Execute(ctx context.Context, input InstallDriverInput) (*InstallDriverOutput, error) {
	output := &InstallDriverOutput{}

	failover, err := uc.settings.failoverFor(input.FailoverInterface)
	if err != nil {
		return output, errors.NewValidationError("invalid failover interface", err)
	}
	if input.PackagePath != "" {
		if err := utils.ValidateDebPackagePath(input.PackagePath); err != nil {
			return output, errors.NewValidationError("invalid package path", err)
		}
	}

	output.Preflight, err = uc.preflight.Check(ctx, constants.InstallTools)
	if err != nil {
		return output, err
	}

	output.SecureBoot = uc.secureBoot.Report(ctx)
	if output.SecureBoot.NeedsEnrollment() {
		uc.logger.WithField("key", output.SecureBoot.KeyPath).
			Warn("Secure Boot is enabled and the DKMS signing key is not enrolled, the module may be rejected")
	}

	if input.PackagePath == "" {
		installed, err := uc.packages.IsInstalled(ctx, uc.settings.PackageName)
		if err != nil {
			return output, errors.NewSystemError("failed to query package state", err)
		}
		if !installed {
			return output, errors.NewValidationError(
				fmt.Sprintf("no package path given and %s is not installed", uc.settings.PackageName), nil)
		}
	}

	uc.logger.WithFields(logrus.Fields{
		"package":  uc.settings.PackageName,
		"path":     input.PackagePath,
		"failover": failover,
		"driver":   uc.settings.VendorDriver,
	}).Info("Installing USB NIC driver")

	request := FailoverRequest{
		Operation:         "install",
		Identity:          uc.settings.Identity,
		Bridge:            uc.settings.Bridge,
		FailoverInterface: failover,
		DesiredDriver:     uc.settings.VendorDriver,
		SwitchBack:        true,
		PinAddress:        uc.settings.PinAddress && !input.NoPin,
		AlreadyApplied: func(ctx context.Context) (bool, error) {
			return uc.packages.IsInstalled(ctx, uc.settings.PackageName)
		},
		Risky: func(ctx context.Context) error {
			return uc.installAndRebind(ctx, input.PackagePath)
		},
		ResolveRetry: uc.settings.ResolveRetry,
	}

	output.Run, err = uc.orchestrator.Run(ctx, request)
	for _, warning := range output.Preflight.Warnings {
		output.Run.Warn(warning)
	}
	if output.SecureBoot.NeedsEnrollment() {
		output.Run.Warn(fmt.Sprintf("Secure Boot enabled and %s not enrolled: run 'mokutil --import %s' and reboot",
			output.SecureBoot.KeyPath, output.SecureBoot.KeyPath))
	}
	return output, err
}

// installAndRebind installs the package and moves the device from the generic to the vendor driver
func (uc *InstallDriverUseCase) installAndRebind(ctx context.Context, packagePath string) error {
	if packagePath != "" {
		if err := uc.packages.InstallLocal(ctx, packagePath); err != nil {
			return err
		}
	}

	steps := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{"verify dkms", func(ctx context.Context) error { return uc.drivers.VerifyDKMS(ctx, uc.settings.DKMSModule) }},
		{"regenerate initramfs", uc.drivers.RegenerateInitramfs},
		{"reload udev rules", uc.drivers.ReloadUdevRules},
		{"swap modules", func(ctx context.Context) error {
			return uc.drivers.SwapModules(ctx, []string{uc.settings.GenericDriver, uc.settings.VendorDriver}, uc.settings.VendorDriver)
		}},
		{"trigger usb", func(ctx context.Context) error { return uc.drivers.TriggerUSB(ctx, uc.settings.Identity) }},
	}

	for _, step := range steps {
		uc.logger.WithField("step", step.name).Debug("Running install step")
		if err := step.run(ctx); err != nil {
			return err
		}
	}
	return nil
}
