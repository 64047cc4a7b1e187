package usecases

import (
	"context"
	"fmt"

	"usbnic-failover/internal/domain/constants"
	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"
	"usbnic-failover/internal/domain/services"

	"github.com/sirupsen/logrus"
)

// UninstallDriverUseCase removes the vendor driver package and hands the device back to the
// generic driver
type UninstallDriverUseCase struct {
	orchestrator *FailoverOrchestrator
	preflight    interfaces.PreflightChecker
	packages     interfaces.PackageManager
	drivers      interfaces.DriverManager
	editor       interfaces.BridgeConfigEditor
	reloader     interfaces.NetworkReloader
	gate         *services.ConnectivityGate
	settings     DriverSettings
	logger       *logrus.Logger
}

// NewUninstallDriverUseCase creates a new UninstallDriverUseCase
func NewUninstallDriverUseCase(
	orchestrator *FailoverOrchestrator,
	preflight interfaces.PreflightChecker,
	packages interfaces.PackageManager,
	drivers interfaces.DriverManager,
	editor interfaces.BridgeConfigEditor,
	reloader interfaces.NetworkReloader,
	gate *services.ConnectivityGate,
	settings DriverSettings,
	logger *logrus.Logger,
) *UninstallDriverUseCase {
	return &UninstallDriverUseCase{
		orchestrator: orchestrator,
		preflight:    preflight,
		packages:     packages,
		drivers:      drivers,
		editor:       editor,
		reloader:     reloader,
		gate:         gate,
		settings:     settings,
		logger:       logger,
	}
}

// UninstallDriverInput is the input of the uninstall use case
type UninstallDriverInput struct {
	// SwitchBack moves the bridge back onto the USB NIC once it runs the generic driver
	SwitchBack       bool
	OnboardInterface string
	// Unpin removes the pinned bridge address after a successful switch back
	Unpin bool
}

// UninstallDriverOutput is the result of the uninstall use case
type UninstallDriverOutput struct {
	Run       *entities.RunContext
	Preflight interfaces.PreflightResult
	Unpinned  string
}

// Execute runs the uninstall
func (uc *UninstallDriverUseCase) Execute(ctx context.Context, input UninstallDriverInput) (*UninstallDriverOutput, error) {
	output := &UninstallDriverOutput{}

	failover, err := uc.settings.failoverFor(input.OnboardInterface)
	if err != nil {
		return output, errors.NewValidationError("invalid onboard interface", err)
	}

	output.Preflight, err = uc.preflight.Check(ctx, constants.UninstallTools)
	if err != nil {
		return output, err
	}

	uc.logger.WithFields(logrus.Fields{
		"package":     uc.settings.PackageName,
		"failover":    failover,
		"switch_back": input.SwitchBack,
		"driver":      uc.settings.GenericDriver,
	}).Info("Uninstalling USB NIC driver")

	request := FailoverRequest{
		Operation:         "uninstall",
		Identity:          uc.settings.Identity,
		Bridge:            uc.settings.Bridge,
		FailoverInterface: failover,
		DesiredDriver:     uc.settings.GenericDriver,
		SwitchBack:        input.SwitchBack,
		PinAddress:        uc.settings.PinAddress,
		AlreadyApplied: func(ctx context.Context) (bool, error) {
			installed, err := uc.packages.IsInstalled(ctx, uc.settings.PackageName)
			return !installed, err
		},
		Risky:        uc.removeAndRebind,
		ResolveRetry: uc.settings.ResolveRetry,
	}

	output.Run, err = uc.orchestrator.Run(ctx, request)
	for _, warning := range output.Preflight.Warnings {
		output.Run.Warn(warning)
	}
	if err != nil {
		return output, err
	}

	if input.Unpin {
		output.Unpinned = uc.unpin(ctx, output.Run)
	}
	return output, nil
}

// removeAndRebind removes the package and moves the device from the vendor to the generic driver
func (uc *UninstallDriverUseCase) removeAndRebind(ctx context.Context) error {
	installed, err := uc.packages.IsInstalled(ctx, uc.settings.PackageName)
	if err != nil {
		return errors.NewSystemError("failed to query package state", err)
	}
	if installed {
		if err := uc.packages.Remove(ctx, uc.settings.PackageName); err != nil {
			return err
		}
	} else {
		uc.logger.WithField("package", uc.settings.PackageName).Info("Package not installed, only rebinding the device")
	}

	if err := uc.drivers.SwapModules(ctx, []string{uc.settings.VendorDriver}, uc.settings.GenericDriver); err != nil {
		return err
	}
	if err := uc.drivers.RegenerateInitramfs(ctx); err != nil {
		return err
	}
	if err := uc.drivers.ReloadUdevRules(ctx); err != nil {
		return err
	}
	return uc.drivers.TriggerUSB(ctx, uc.settings.Identity)
}

// unpin drops the pinned bridge address and applies the change. It only runs when the bridge
// is back on the device; a bridge left on the failover path keeps its pin. The pin is put back
// when the bridge does not come back up without it.
func (uc *UninstallDriverUseCase) unpin(ctx context.Context, rc *entities.RunContext) string {
	if !rc.Plan.SwitchBack {
		rc.Warn("bridge address kept pinned while the bridge stays on the failover interface")
		return ""
	}

	mac, err := uc.editor.PinnedAddress()
	if err != nil {
		rc.Warn(fmt.Sprintf("failed to read pinned bridge address: %v", err))
		return ""
	}
	if mac == "" {
		return ""
	}

	if err := uc.editor.UnpinAddress(mac); err != nil {
		rc.Warn(fmt.Sprintf("failed to unpin bridge address %s: %v", mac, err))
		return ""
	}

	err = uc.reloader.Reload(ctx)
	if err == nil {
		err = uc.gate.AwaitReady(ctx, uc.settings.Bridge)
	}
	if err == nil {
		uc.logger.WithField("address", mac).Info("Bridge address unpinned")
		return mac
	}

	uc.logger.WithError(err).WithField("address", mac).Error("Bridge unreachable after unpinning, pinning again")
	rc.Warn(fmt.Sprintf("bridge unreachable after unpinning %s, address pinned again: %v", mac, err))

	undoCtx, cancel := undoContext(ctx)
	defer cancel()
	if err := uc.editor.PinAddress(mac); err != nil {
		rc.Warn(fmt.Sprintf("failed to pin bridge address %s again: %v", mac, err))
		return ""
	}
	if err := uc.reloader.Reload(undoCtx); err != nil {
		rc.Warn(fmt.Sprintf("network reload after pinning %s again failed: %v", mac, err))
	}
	return ""
}
