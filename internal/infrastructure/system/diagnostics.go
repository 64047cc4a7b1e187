package system

import (
	"context"
	"strings"
	"time"

	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// Diagnostics gathers the device and link state an operator needs after a failed run.
// Collection is best effort: failures are recorded in the snapshot, never returned.
type Diagnostics struct {
	commandExecutor interfaces.CommandExecutor
	inspector       interfaces.SystemInspector
	clock           interfaces.Clock
	logger          *logrus.Logger
	timeout         time.Duration
}

// NewDiagnostics creates a new Diagnostics collector
func NewDiagnostics(
	executor interfaces.CommandExecutor,
	inspector interfaces.SystemInspector,
	clock interfaces.Clock,
	logger *logrus.Logger,
	timeout time.Duration,
) *Diagnostics {
	return &Diagnostics{
		commandExecutor: executor,
		inspector:       inspector,
		clock:           clock,
		logger:          logger,
		timeout:         timeout,
	}
}

// Snapshot collects the USB topology, the device entry for identity, a link summary
// and the interface list
func (d *Diagnostics) Snapshot(ctx context.Context, identity entities.DeviceIdentity) entities.DiagnosticSnapshot {
	snapshot := entities.DiagnosticSnapshot{CollectedAt: d.clock.Now()}

	snapshot.USBTopology = d.run(ctx, &snapshot, "lsusb", "-t")
	snapshot.USBDevice = d.run(ctx, &snapshot, "lsusb", "-d", identity.String())
	snapshot.LinkSummary = d.run(ctx, &snapshot, "ip", "-br", "link")

	names, err := d.inspector.ListInterfaces(ctx)
	if err != nil {
		snapshot.Errors = append(snapshot.Errors, "list interfaces: "+err.Error())
	} else {
		snapshot.Interfaces = names
	}

	d.logger.WithFields(logrus.Fields{
		"identity":   identity.String(),
		"interfaces": snapshot.Interfaces,
		"errors":     len(snapshot.Errors),
	}).Debug("Diagnostics collected")
	return snapshot
}

func (d *Diagnostics) run(ctx context.Context, snapshot *entities.DiagnosticSnapshot, command string, args ...string) string {
	output, err := d.commandExecutor.ExecuteWithTimeout(ctx, d.timeout, command, args...)
	if err != nil {
		snapshot.Errors = append(snapshot.Errors, command+" "+strings.Join(args, " ")+": "+err.Error())
	}
	return strings.TrimRight(string(output), "\n")
}
