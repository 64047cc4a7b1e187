package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"usbnic-failover/internal/application/usecases"
	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Status is the overall outcome as the operator should read it
type Status string

const (
	// StatusOK: the bridge is where the operation intended it to be
	StatusOK Status = "ok"
	// StatusDegraded: network access is intact but the operation did not finish cleanly
	StatusDegraded Status = "degraded"
	// StatusAttention: the bridge was parked on the failover interface after a failure
	StatusAttention Status = "attention"
)

// Format is an output format of the reporter
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an --output value
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(value)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	}
	return "", errors.NewValidationError(fmt.Sprintf("unknown output format %q (text, json, yaml)", value), nil)
}

// RunSummary is printed at the end of install and uninstall
type RunSummary struct {
	Status      Status              `json:"status" yaml:"status"`
	Operation   string              `json:"operation" yaml:"operation"`
	State       string              `json:"state" yaml:"state"`
	Timestamp   string              `json:"timestamp" yaml:"timestamp"`
	Duration    string              `json:"duration" yaml:"duration"`
	Plan        PlanSummary         `json:"plan" yaml:"plan"`
	Transitions []TransitionSummary `json:"transitions" yaml:"transitions"`
	Warnings    []string            `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error       string              `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorType   string              `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	Diagnostics *DiagnosticsSummary `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// PlanSummary mirrors the failover plan
type PlanSummary struct {
	Bridge            string `json:"bridge" yaml:"bridge"`
	OriginalUplink    string `json:"original_uplink" yaml:"original_uplink"`
	FailoverInterface string `json:"failover_interface" yaml:"failover_interface"`
	TargetInterface   string `json:"target_interface,omitempty" yaml:"target_interface,omitempty"`
	PinnedAddress     string `json:"pinned_address,omitempty" yaml:"pinned_address,omitempty"`
	BackupPath        string `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
	SwitchBack        bool   `json:"switch_back" yaml:"switch_back"`
	Skipped           bool   `json:"skipped" yaml:"skipped"`
}

// TransitionSummary is one line of the run history
type TransitionSummary struct {
	State  string `json:"state" yaml:"state"`
	At     string `json:"at" yaml:"at"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// DiagnosticsSummary is the failure snapshot
type DiagnosticsSummary struct {
	CollectedAt string   `json:"collected_at" yaml:"collected_at"`
	USBTopology string   `json:"usb_topology,omitempty" yaml:"usb_topology,omitempty"`
	USBDevice   string   `json:"usb_device,omitempty" yaml:"usb_device,omitempty"`
	LinkSummary string   `json:"link_summary,omitempty" yaml:"link_summary,omitempty"`
	Interfaces  []string `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	Errors      []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Reporter renders run summaries and status reports
type Reporter struct {
	clock  interfaces.Clock
	logger *logrus.Logger
	format Format
}

// NewReporter creates a new Reporter
func NewReporter(clock interfaces.Clock, logger *logrus.Logger, format Format) *Reporter {
	return &Reporter{
		clock:  clock,
		logger: logger,
		format: format,
	}
}

// BuildRunSummary turns a finished run into its summary. rc may be nil when the run was
// rejected before the state machine started.
func (r *Reporter) BuildRunSummary(operation string, rc *entities.RunContext, runErr error) RunSummary {
	now := r.clock.Now()
	summary := RunSummary{
		Operation: operation,
		Timestamp: now.Format(time.RFC3339),
	}
	if runErr != nil {
		summary.Error = runErr.Error()
		summary.ErrorType = string(errors.TypeOf(runErr))
	}

	if rc == nil {
		summary.Status = StatusDegraded
		summary.State = "not_started"
		summary.Duration = "0s"
		return summary
	}

	summary.State = string(rc.State)
	summary.Status = determineStatus(rc)
	summary.Duration = rc.Duration().Round(time.Millisecond).String()
	summary.Warnings = rc.Warnings
	summary.Plan = PlanSummary{
		Bridge:            rc.Plan.Bridge,
		OriginalUplink:    rc.Plan.OriginalUplink,
		FailoverInterface: rc.Plan.FailoverInterface,
		TargetInterface:   rc.Plan.TargetInterface,
		PinnedAddress:     rc.Plan.PinnedAddress,
		BackupPath:        rc.Plan.BackupPath,
		SwitchBack:        rc.Plan.SwitchBack,
		Skipped:           rc.Plan.Skipped,
	}

	for _, t := range rc.History {
		summary.Transitions = append(summary.Transitions, TransitionSummary{
			State:  string(t.State),
			At:     t.At.Format(time.RFC3339),
			Detail: t.Detail,
		})
	}

	if d := rc.Diagnostics; d != nil {
		summary.Diagnostics = &DiagnosticsSummary{
			CollectedAt: d.CollectedAt.Format(time.RFC3339),
			USBTopology: d.USBTopology,
			USBDevice:   d.USBDevice,
			LinkSummary: d.LinkSummary,
			Interfaces:  d.Interfaces,
			Errors:      d.Errors,
		}
	}
	return summary
}

// determineStatus maps the terminal state onto what the operator has to do next
func determineStatus(rc *entities.RunContext) Status {
	switch rc.State {
	case entities.StateDone:
		if len(rc.Warnings) > 0 {
			return StatusDegraded
		}
		return StatusOK
	case entities.StateAbortedReverted:
		return StatusAttention
	default:
		return StatusDegraded
	}
}

// WriteRunSummary renders summary in the reporter's format
func (r *Reporter) WriteRunSummary(w io.Writer, summary RunSummary) error {
	switch r.format {
	case FormatJSON:
		return writeJSON(w, summary)
	case FormatYAML:
		return writeYAML(w, summary)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Operation:\t%s\n", summary.Operation)
	fmt.Fprintf(tw, "Status:\t%s (%s)\n", summary.Status, summary.State)
	fmt.Fprintf(tw, "Duration:\t%s\n", summary.Duration)
	if summary.Plan.Bridge != "" {
		fmt.Fprintf(tw, "Bridge:\t%s\n", summary.Plan.Bridge)
		fmt.Fprintf(tw, "Original uplink:\t%s\n", orNone(summary.Plan.OriginalUplink))
		fmt.Fprintf(tw, "Failover interface:\t%s\n", summary.Plan.FailoverInterface)
		fmt.Fprintf(tw, "Target interface:\t%s\n", orNone(summary.Plan.TargetInterface))
		if summary.Plan.PinnedAddress != "" {
			fmt.Fprintf(tw, "Pinned address:\t%s\n", summary.Plan.PinnedAddress)
		}
		if summary.Plan.BackupPath != "" {
			fmt.Fprintf(tw, "Backup:\t%s\n", summary.Plan.BackupPath)
		}
		if summary.Plan.Skipped {
			fmt.Fprintf(tw, "Skipped:\talready applied\n")
		}
	}
	if summary.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", summary.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(summary.Transitions) > 0 {
		fmt.Fprintln(w, "\nTransitions:")
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, t := range summary.Transitions {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", t.At, t.State, t.Detail)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(summary.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, warning := range summary.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}

	if d := summary.Diagnostics; d != nil {
		fmt.Fprintf(w, "\nDiagnostics (%s):\n", d.CollectedAt)
		writeBlock(w, "USB topology", d.USBTopology)
		writeBlock(w, "USB device", d.USBDevice)
		writeBlock(w, "Links", d.LinkSummary)
		if len(d.Interfaces) > 0 {
			fmt.Fprintf(w, "  Interfaces: %s\n", strings.Join(d.Interfaces, " "))
		}
		for _, e := range d.Errors {
			fmt.Fprintf(w, "  ! %s\n", e)
		}
	}

	if summary.Status == StatusAttention {
		fmt.Fprintf(w, "\nThe bridge is running on %s. Fix the device, then re-run to move it back.\n", summary.Plan.FailoverInterface)
	}
	return nil
}

// StatusReport is the serialized form of the status command
type StatusReport struct {
	Bridge            string   `json:"bridge" yaml:"bridge"`
	Uplink            string   `json:"uplink" yaml:"uplink"`
	PinnedAddress     string   `json:"pinned_address,omitempty" yaml:"pinned_address,omitempty"`
	LatestBackup      string   `json:"latest_backup,omitempty" yaml:"latest_backup,omitempty"`
	Identity          string   `json:"identity" yaml:"identity"`
	Devices           []Device `json:"devices" yaml:"devices"`
	UplinkIsDevice    bool     `json:"uplink_is_device" yaml:"uplink_is_device"`
	FailoverInterface string   `json:"failover_interface" yaml:"failover_interface"`
	FailoverMethod    string   `json:"failover_method" yaml:"failover_method"`
	FailoverLink      string   `json:"failover_link" yaml:"failover_link"`
	Package           string   `json:"package" yaml:"package"`
	PackageInstalled  bool     `json:"package_installed" yaml:"package_installed"`
	VendorDriver      string   `json:"vendor_driver" yaml:"vendor_driver"`
	VendorLoaded      bool     `json:"vendor_driver_loaded" yaml:"vendor_driver_loaded"`
	GenericDriver     string   `json:"generic_driver" yaml:"generic_driver"`
	GenericLoaded     bool     `json:"generic_driver_loaded" yaml:"generic_driver_loaded"`
	SecureBoot        string   `json:"secure_boot" yaml:"secure_boot"`
	KeyEnrolled       bool     `json:"dkms_key_enrolled" yaml:"dkms_key_enrolled"`
	Warnings          []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Device is one interface carrying the configured identity
type Device struct {
	Name   string `json:"name" yaml:"name"`
	Driver string `json:"driver" yaml:"driver"`
}

// BuildStatusReport converts the status use case output
func (r *Reporter) BuildStatusReport(out *usecases.StatusOutput) StatusReport {
	report := StatusReport{
		Bridge:            out.Bridge,
		Uplink:            out.Uplink,
		PinnedAddress:     out.PinnedAddress,
		LatestBackup:      out.LatestBackup,
		Identity:          out.Identity.String(),
		Devices:           []Device{},
		UplinkIsDevice:    out.UplinkIsDevice,
		FailoverInterface: out.FailoverInterface,
		FailoverMethod:    out.FailoverMethod,
		FailoverLink:      string(out.FailoverLink),
		Package:           out.PackageName,
		PackageInstalled:  out.PackageInstalled,
		VendorDriver:      out.VendorDriver,
		VendorLoaded:      out.VendorLoaded,
		GenericDriver:     out.GenericDriver,
		GenericLoaded:     out.GenericLoaded,
		SecureBoot:        string(out.SecureBoot.State),
		KeyEnrolled:       out.SecureBoot.KeyEnrolled,
		Warnings:          out.Warnings,
	}
	for _, d := range out.Devices {
		report.Devices = append(report.Devices, Device{Name: d.Name, Driver: d.Driver})
	}
	return report
}

// WriteStatus renders a status report in the reporter's format
func (r *Reporter) WriteStatus(w io.Writer, report StatusReport) error {
	switch r.format {
	case FormatJSON:
		return writeJSON(w, report)
	case FormatYAML:
		return writeYAML(w, report)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Bridge:\t%s\n", report.Bridge)
	fmt.Fprintf(tw, "Uplink:\t%s%s\n", orNone(report.Uplink), onDevice(report.UplinkIsDevice))
	fmt.Fprintf(tw, "Pinned address:\t%s\n", orNone(report.PinnedAddress))
	fmt.Fprintf(tw, "Latest backup:\t%s\n", orNone(report.LatestBackup))
	fmt.Fprintf(tw, "Device %s:\t%s\n", report.Identity, devicesLine(report.Devices))
	fmt.Fprintf(tw, "Failover %s:\tlink %s, method %s\n", report.FailoverInterface, report.FailoverLink, orNone(report.FailoverMethod))
	fmt.Fprintf(tw, "Package %s:\t%s\n", report.Package, installedWord(report.PackageInstalled))
	fmt.Fprintf(tw, "Module %s:\t%s\n", report.VendorDriver, loadedWord(report.VendorLoaded))
	fmt.Fprintf(tw, "Module %s:\t%s\n", report.GenericDriver, loadedWord(report.GenericLoaded))
	fmt.Fprintf(tw, "Secure Boot:\t%s\n", report.SecureBoot)
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeYAML(w io.Writer, v interface{}) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}

func writeBlock(w io.Writer, title, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	fmt.Fprintf(w, "  %s:\n", title)
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "    %s\n", line)
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func onDevice(yes bool) string {
	if yes {
		return " (USB NIC)"
	}
	return ""
}

func devicesLine(devices []Device) string {
	if len(devices) == 0 {
		return "not present"
	}
	parts := make([]string, 0, len(devices))
	for _, d := range devices {
		parts = append(parts, fmt.Sprintf("%s (%s)", d.Name, orNone(d.Driver)))
	}
	return strings.Join(parts, ", ")
}

func installedWord(yes bool) string {
	if yes {
		return "installed"
	}
	return "not installed"
}

func loadedWord(yes bool) string {
	if yes {
		return "loaded"
	}
	return "not loaded"
}
