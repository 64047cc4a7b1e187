package usecases

import (
	"context"
	"fmt"
	"time"

	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"
	"usbnic-failover/internal/domain/services"
	"usbnic-failover/internal/infrastructure/metrics"
	"usbnic-failover/pkg/utils"

	"github.com/sirupsen/logrus"
)

// swap directions as recorded in metrics
const (
	swapToFailover = "to_failover"
	swapToTarget   = "to_target"
	swapRestore    = "restore"
	swapRevert     = "revert"
)

// DefaultUndoTimeout bounds the steps that put the bridge back after a failure
const DefaultUndoTimeout = 2 * time.Minute

// FailoverRequest describes one protected run
type FailoverRequest struct {
	// Operation names the run in logs, metrics and the summary ("install", "uninstall")
	Operation string

	Identity          entities.DeviceIdentity
	Bridge            string
	FailoverInterface string

	// DesiredDriver is the driver the device must be bound to once the risky step is done
	DesiredDriver string

	// SwitchBack moves the bridge back to the device after the risky step.
	// When false the run ends with the bridge on the failover interface.
	SwitchBack bool

	// PinAddress pins the bridge MAC before the first swap so the host keeps its address identity
	PinAddress bool

	// AlreadyApplied reports whether the risky step has nothing left to do. Nil means never.
	AlreadyApplied func(ctx context.Context) (bool, error)

	// Risky is the step that may take the device away (install, uninstall, rebind)
	Risky func(ctx context.Context) error

	// ResolveRetry bounds the wait for the device to re-enumerate
	ResolveRetry utils.RetryConfig
}

// FailoverOrchestrator keeps the host reachable through a failover interface while the
// uplink device's driver changes
type FailoverOrchestrator struct {
	resolver    *services.IdentityResolver
	prober      *services.LinkProber
	gate        *services.ConnectivityGate
	editor      interfaces.BridgeConfigEditor
	reloader    interfaces.NetworkReloader
	inspector   interfaces.SystemInspector
	diagnostics interfaces.DiagnosticsCollector
	clock       interfaces.Clock
	logger      *logrus.Logger
}

// NewFailoverOrchestrator creates a new FailoverOrchestrator
func NewFailoverOrchestrator(
	resolver *services.IdentityResolver,
	prober *services.LinkProber,
	gate *services.ConnectivityGate,
	editor interfaces.BridgeConfigEditor,
	reloader interfaces.NetworkReloader,
	inspector interfaces.SystemInspector,
	diagnostics interfaces.DiagnosticsCollector,
	clock interfaces.Clock,
	logger *logrus.Logger,
) *FailoverOrchestrator {
	return &FailoverOrchestrator{
		resolver:    resolver,
		prober:      prober,
		gate:        gate,
		editor:      editor,
		reloader:    reloader,
		inspector:   inspector,
		diagnostics: diagnostics,
		clock:       clock,
		logger:      logger,
	}
}

// Run executes the failover protocol. The returned RunContext is never nil and always ends
// in a terminal state. A non-nil error accompanies every aborted state.
func (o *FailoverOrchestrator) Run(ctx context.Context, req FailoverRequest) (*entities.RunContext, error) {
	rc := entities.NewRunContext(req.Operation, req.Identity, req.Bridge, o.clock.Now())
	rc.Plan.FailoverInterface = req.FailoverInterface
	rc.Plan.SwitchBack = req.SwitchBack
	metrics.RecordTransition(rc.Operation, entities.StateStart)

	log := o.logger.WithFields(logrus.Fields{
		"operation": req.Operation,
		"identity":  req.Identity.String(),
		"bridge":    req.Bridge,
		"failover":  req.FailoverInterface,
	})
	log.Info("Starting protected run")

	original, err := o.editor.UplinkPort()
	if err != nil {
		return o.abort(ctx, rc, entities.StateAbortedNoSwap, errors.NewPreconditionError("cannot read bridge uplink", err))
	}
	if original == "" {
		return o.abort(ctx, rc, entities.StateAbortedNoSwap,
			errors.NewPreconditionError(fmt.Sprintf("bridge %s has no uplink port", req.Bridge), nil))
	}
	rc.Plan.OriginalUplink = original

	converged, err := o.converged(ctx, req, original)
	if err != nil {
		return o.abort(ctx, rc, entities.StateAbortedNoSwap, errors.NewPreconditionError("cannot determine current state", err))
	}
	if converged {
		rc.Plan.Skipped = true
		log.Info("Already in the desired state, nothing to do")
		return o.finish(rc, entities.StateDone, "already applied")
	}

	// VerifyFailoverPath
	o.transition(rc, entities.StateVerifyFailoverPath, req.FailoverInterface)
	if err := o.verifyFailoverPath(ctx, rc, req.FailoverInterface); err != nil {
		return o.abort(ctx, rc, entities.StateAbortedNoSwap, err)
	}

	if req.PinAddress {
		if err := o.pinBridgeAddress(ctx, rc); err != nil {
			return o.abort(ctx, rc, entities.StateAbortedNoSwap, err)
		}
	}

	// SwapToFailover
	o.transition(rc, entities.StateSwapToFailover, fmt.Sprintf("%s -> %s", original, req.FailoverInterface))
	if original != req.FailoverInterface {
		// a half-applied swap still has to be undone
		rc.Plan.Swapped = true
		if err := o.repoint(ctx, req.FailoverInterface, swapToFailover); err != nil {
			o.restoreOriginal(ctx, rc)
			return o.abort(ctx, rc, entities.StateAbortedRestored,
				errors.NewSystemError(fmt.Sprintf("failed to move bridge to %s", req.FailoverInterface), err))
		}
	} else {
		log.Info("Bridge already uses the failover interface")
	}

	// VerifyFailoverConnectivity
	o.transition(rc, entities.StateVerifyFailoverConnectivity, req.Bridge)
	if err := o.awaitConnectivity(ctx, req.Bridge); err != nil {
		o.restoreOriginal(ctx, rc)
		return o.abort(ctx, rc, entities.StateAbortedRestored,
			errors.NewPreconditionError(fmt.Sprintf("no connectivity through failover interface %s", req.FailoverInterface), err))
	}

	// RunRiskyOperation
	o.transition(rc, entities.StateRunRiskyOperation, req.Operation)
	if req.Risky != nil {
		if err := req.Risky(ctx); err != nil {
			log.WithError(err).Error("Risky operation failed")
			return o.recoverFromRiskyFailure(ctx, rc, req, err)
		}
	}

	if !req.SwitchBack {
		rc.Warn(fmt.Sprintf("bridge %s left on failover interface %s", req.Bridge, req.FailoverInterface))
		log.Warn("Switch back disabled, bridge stays on the failover interface")
		return o.finish(rc, entities.StateDone, "left on failover")
	}

	// ReResolveTarget
	o.transition(rc, entities.StateReResolveTarget, req.Identity.String())
	target, err := o.reResolve(ctx, req)
	if err != nil {
		// the bridge is still on the failover path
		return o.abort(ctx, rc, entities.StateAbortedReverted, err)
	}
	rc.Plan.TargetInterface = target.Name
	if target.Name != original {
		log.WithFields(logrus.Fields{
			"original": original,
			"target":   target.Name,
		}).Info("Device re-enumerated under a new name")
	}

	// SwapToTarget
	o.transition(rc, entities.StateSwapToTarget, fmt.Sprintf("%s -> %s", req.FailoverInterface, target.Name))
	if err := o.repoint(ctx, target.Name, swapToTarget); err != nil {
		o.revertToFailover(ctx, rc)
		return o.abort(ctx, rc, entities.StateAbortedReverted,
			errors.NewVerificationError(fmt.Sprintf("failed to move bridge to %s", target.Name), err))
	}

	// VerifyConnectivity
	o.transition(rc, entities.StateVerifyConnectivity, req.Bridge)
	if err := o.awaitConnectivity(ctx, req.Bridge); err != nil {
		o.revertToFailover(ctx, rc)
		return o.abort(ctx, rc, entities.StateAbortedReverted,
			errors.NewVerificationError(fmt.Sprintf("no connectivity through %s", target.Name), err))
	}

	log.WithField("uplink", target.Name).Info("Protected run completed")
	return o.finish(rc, entities.StateDone, target.Name)
}

// converged reports whether the run can be skipped without touching the bridge
func (o *FailoverOrchestrator) converged(ctx context.Context, req FailoverRequest, uplink string) (bool, error) {
	if req.AlreadyApplied == nil {
		return false, nil
	}
	applied, err := req.AlreadyApplied(ctx)
	if err != nil || !applied {
		return false, err
	}

	if !req.SwitchBack {
		return uplink == req.FailoverInterface, nil
	}

	iface, found, err := o.resolver.Resolve(ctx, req.Identity, req.DesiredDriver)
	if err != nil {
		return false, err
	}
	return found && iface.Name == uplink, nil
}

func (o *FailoverOrchestrator) verifyFailoverPath(ctx context.Context, rc *entities.RunContext, name string) error {
	method, err := o.editor.AddressingMethod(name)
	if err != nil {
		return errors.NewPreconditionError("cannot read failover interface configuration", err)
	}

	readiness, err := o.prober.EnsureFailoverReady(ctx, name, method)
	if err != nil {
		return errors.NewPreconditionError(fmt.Sprintf("cannot prepare failover interface %s", name), err)
	}
	if readiness.Ready {
		return nil
	}

	if readiness.Reason != services.ReasonManualVerification {
		return errors.NewPreconditionError(fmt.Sprintf("failover interface %s not usable: %s", name, readiness.Reason), nil)
	}

	// configured interfaces are not toggled; carrier must already be present
	rc.Warn(fmt.Sprintf("failover interface %s uses method %q, verify it manually", name, method))
	hasLink, err := o.prober.HasLink(ctx, name)
	if err != nil {
		return errors.NewPreconditionError(fmt.Sprintf("cannot read carrier of %s", name), err)
	}
	if !hasLink {
		return errors.NewPreconditionError(fmt.Sprintf("failover interface %s not usable: %s", name, services.ReasonNoCarrier), nil)
	}
	return nil
}

func (o *FailoverOrchestrator) pinBridgeAddress(ctx context.Context, rc *entities.RunContext) error {
	pinned, err := o.editor.HasPinnedAddress()
	if err != nil {
		return errors.NewPreconditionError("cannot read bridge configuration", err)
	}
	if pinned {
		return nil
	}

	mac, err := o.inspector.HardwareAddressOf(ctx, rc.Plan.Bridge)
	if err != nil {
		return errors.NewPreconditionError(fmt.Sprintf("cannot read hardware address of %s", rc.Plan.Bridge), err)
	}
	if err := o.editor.PinAddress(mac); err != nil {
		return errors.NewSystemError("failed to pin bridge address", err)
	}
	rc.Plan.PinnedAddress = mac

	o.logger.WithFields(logrus.Fields{
		"bridge":  rc.Plan.Bridge,
		"address": mac,
	}).Info("Bridge address pinned before swapping uplink")
	return nil
}

// repoint rewrites the uplink and applies it
func (o *FailoverOrchestrator) repoint(ctx context.Context, port, direction string) error {
	if err := o.editor.SetUplinkPort(port); err != nil {
		return err
	}
	metrics.RecordSwap(direction)
	return o.reloader.Reload(ctx)
}

func (o *FailoverOrchestrator) awaitConnectivity(ctx context.Context, bridge string) error {
	err := o.gate.AwaitReady(ctx, bridge)
	metrics.RecordGateCheck(err == nil)
	return err
}

// restoreOriginal puts the pre-run uplink back. It reports whether the bridge is on it.
func (o *FailoverOrchestrator) restoreOriginal(ctx context.Context, rc *entities.RunContext) bool {
	o.transition(rc, entities.StateRestoreOriginal, rc.Plan.OriginalUplink)
	if !rc.Plan.Swapped {
		return true
	}
	undoCtx, cancel := undoContext(ctx)
	defer cancel()
	if err := o.repoint(undoCtx, rc.Plan.OriginalUplink, swapRestore); err != nil {
		o.logger.WithError(err).WithField("uplink", rc.Plan.OriginalUplink).Error("Failed to restore original uplink")
		rc.Warn(fmt.Sprintf("restoring uplink %s failed: %v", rc.Plan.OriginalUplink, err))
		return false
	}
	rc.Plan.Swapped = false
	return true
}

// revertToFailover points the bridge back at the failover interface, the safe place to stop
func (o *FailoverOrchestrator) revertToFailover(ctx context.Context, rc *entities.RunContext) {
	o.transition(rc, entities.StateRevertToFailover, rc.Plan.FailoverInterface)
	undoCtx, cancel := undoContext(ctx)
	defer cancel()
	if err := o.repoint(undoCtx, rc.Plan.FailoverInterface, swapRevert); err != nil {
		o.logger.WithError(err).WithField("failover", rc.Plan.FailoverInterface).Error("Failed to revert to failover interface")
		rc.Warn(fmt.Sprintf("reverting to %s failed, manual intervention required: %v", rc.Plan.FailoverInterface, err))
		return
	}
	rc.Plan.Swapped = true
}

func (o *FailoverOrchestrator) recoverFromRiskyFailure(ctx context.Context, rc *entities.RunContext, req FailoverRequest, cause error) (*entities.RunContext, error) {
	restored := o.restoreOriginal(ctx, rc)

	o.transition(rc, entities.StateVerifyConnectivity, req.Bridge)
	if restored {
		undoCtx, cancel := undoContext(ctx)
		err := o.awaitConnectivity(undoCtx, req.Bridge)
		cancel()
		if err == nil {
			return o.abort(ctx, rc, entities.StateAbortedRestored,
				errors.NewExternalError(fmt.Sprintf("%s failed, original uplink restored", req.Operation), cause))
		}
	}

	o.revertToFailover(ctx, rc)
	return o.abort(ctx, rc, entities.StateAbortedReverted,
		errors.NewExternalError(fmt.Sprintf("%s failed and %s did not recover, bridge left on %s", req.Operation, rc.Plan.OriginalUplink, req.FailoverInterface), cause))
}

func (o *FailoverOrchestrator) reResolve(ctx context.Context, req FailoverRequest) (entities.NetworkInterface, error) {
	var target entities.NetworkInterface
	attempt := 0

	err := utils.RetryWithBackoff(ctx, o.clock, req.ResolveRetry, func(ctx context.Context) error {
		attempt++
		iface, found, err := o.resolver.Resolve(ctx, req.Identity, req.DesiredDriver)
		metrics.RecordResolveAttempt(found, err)

		o.logger.WithFields(logrus.Fields{
			"attempt":  attempt,
			"identity": req.Identity.String(),
			"driver":   req.DesiredDriver,
			"found":    found,
		}).Debug("Resolving device")

		if err != nil {
			return err
		}
		if !found {
			return errors.NewNotFoundError(fmt.Sprintf("no interface with identity %s bound to %s", req.Identity, req.DesiredDriver))
		}
		target = iface
		return nil
	})
	if err != nil {
		return entities.NetworkInterface{}, errors.NewVerificationError(
			fmt.Sprintf("device %s did not come back with driver %s", req.Identity, req.DesiredDriver), err)
	}
	return target, nil
}

func (o *FailoverOrchestrator) transition(rc *entities.RunContext, state entities.FailoverState, detail string) {
	rc.Transition(state, o.clock.Now(), detail)
	metrics.RecordTransition(rc.Operation, state)

	o.logger.WithFields(logrus.Fields{
		"operation": rc.Operation,
		"state":     state,
		"detail":    detail,
	}).Info("State transition")
}

func (o *FailoverOrchestrator) finish(rc *entities.RunContext, state entities.FailoverState, detail string) (*entities.RunContext, error) {
	rc.Plan.BackupPath = o.editor.BackupPath()
	o.transition(rc, state, detail)
	metrics.RecordRun(rc)
	return rc, nil
}

// undoContext survives the cancellation of the run so that an interrupted run still
// leaves the bridge on a reachable uplink
func undoContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), DefaultUndoTimeout)
}

// abort collects diagnostics and ends the run in state
func (o *FailoverOrchestrator) abort(ctx context.Context, rc *entities.RunContext, state entities.FailoverState, err error) (*entities.RunContext, error) {
	undoCtx, cancel := undoContext(ctx)
	snapshot := o.diagnostics.Snapshot(undoCtx, rc.Identity)
	cancel()
	rc.Diagnostics = &snapshot
	rc.Plan.BackupPath = o.editor.BackupPath()

	o.transition(rc, state, err.Error())
	metrics.RecordError(string(errors.TypeOf(err)))
	metrics.RecordRun(rc)

	o.logger.WithError(err).WithFields(logrus.Fields{
		"operation": rc.Operation,
		"state":     state,
		"uplink":    o.currentUplink(),
	}).Error("Protected run aborted")
	return rc, err
}

func (o *FailoverOrchestrator) currentUplink() string {
	uplink, err := o.editor.UplinkPort()
	if err != nil {
		return "unknown"
	}
	return uplink
}
