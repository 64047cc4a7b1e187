package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"usbnic-failover/internal/application/usecases"
	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/infrastructure/adapters"
	"usbnic-failover/internal/infrastructure/config"
	"usbnic-failover/internal/infrastructure/container"
	"usbnic-failover/internal/infrastructure/metrics"
	"usbnic-failover/internal/infrastructure/report"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// globalOptions are shared by every subcommand
type globalOptions struct {
	configPath string
	logLevel   string
	output     string
}

// application holds what a subcommand needs once the configuration is loaded
type application struct {
	container *container.Container
	reporter  *report.Reporter
	logger    *logrus.Logger
	stdout    io.Writer
}

// execute runs the CLI and returns the process exit code
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	logger := newLogger(stderr)
	opts := &globalOptions{}
	code := exitOK

	root := &cobra.Command{
		Use:           "usbnic-failover",
		Short:         "Install or remove a USB Ethernet driver without losing the management bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultConfigPath, "configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", string(report.FormatText), "output format: text, json or yaml")

	setup := func() (*application, error) {
		return newApplication(opts, logger, stdout)
	}

	root.AddCommand(
		newInstallCommand(ctx, setup, &code),
		newUninstallCommand(ctx, setup, &code),
		newStatusCommand(ctx, setup, &code),
		newVersionCommand(stdout),
	)

	if err := root.Execute(); err != nil {
		logger.WithError(err).Error("Command failed")
		if code == exitOK {
			code = exitCodeFor(nil, err)
		}
	}
	return code
}

// newLogger returns a text logger on a terminal and a JSON logger otherwise
func newLogger(out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// applyLogLevel falls back to Info on an unknown level
func applyLogLevel(logger *logrus.Logger, level string) {
	if level == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithError(err).Warnf("Unknown log level %q. Using Info.", level)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	logger.SetLevel(parsed)
}

func newApplication(opts *globalOptions, logger *logrus.Logger, stdout io.Writer) (*application, error) {
	format, err := report.ParseFormat(opts.output)
	if err != nil {
		return nil, err
	}

	cfg, err := config.NewFileConfigLoader(adapters.NewRealFileSystem(), opts.configPath).Load()
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Agent.LogLevel = opts.logLevel
	}
	applyLogLevel(logger, cfg.Agent.LogLevel)

	appContainer, err := container.NewContainer(cfg, logger)
	if err != nil {
		return nil, err
	}

	osType, err := appContainer.GetOSDetector().DetectOS()
	if err != nil {
		logger.WithError(err).Debug("OS detection failed")
	}
	metrics.SetAgentInfo(version, string(osType))

	return &application{
		container: appContainer,
		reporter:  report.NewReporter(appContainer.GetClock(), logger, format),
		logger:    logger,
		stdout:    stdout,
	}, nil
}

// finishRun prints the summary, flushes metrics and records the exit code
func (a *application) finishRun(operation string, rc *entities.RunContext, runErr error, code *int) error {
	summary := a.reporter.BuildRunSummary(operation, rc, runErr)
	if err := a.reporter.WriteRunSummary(a.stdout, summary); err != nil {
		a.logger.WithError(err).Warn("Failed to write run summary")
	}

	if path := a.container.GetConfig().Agent.MetricsTextfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			a.logger.WithError(err).WithField("path", path).Warn("Failed to write metrics textfile")
		}
	}

	*code = exitCodeFor(rc, runErr)
	return runErr
}

func newInstallCommand(ctx context.Context, setup func() (*application, error), code *int) *cobra.Command {
	input := usecases.InstallDriverInput{}

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the vendor driver and move the bridge back onto the USB NIC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup()
			if err != nil {
				return err
			}
			output, runErr := app.container.GetInstallUseCase().Execute(ctx, input)
			var rc *entities.RunContext
			if output != nil {
				rc = output.Run
			}
			return app.finishRun("install", rc, runErr, code)
		},
	}
	cmd.Flags().StringVar(&input.PackagePath, "package-path", "", "local .deb to install (default: use the already installed package)")
	cmd.Flags().StringVar(&input.FailoverInterface, "failover-interface", "", "onboard interface that carries the bridge meanwhile")
	cmd.Flags().BoolVar(&input.NoPin, "no-pin", false, "do not pin the bridge MAC address")
	return cmd
}

func newUninstallCommand(ctx context.Context, setup func() (*application, error), code *int) *cobra.Command {
	input := usecases.UninstallDriverInput{}

	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the vendor driver, leaving the bridge on the onboard interface unless --switch-back",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup()
			if err != nil {
				return err
			}
			output, runErr := app.container.GetUninstallUseCase().Execute(ctx, input)
			var rc *entities.RunContext
			if output != nil {
				rc = output.Run
			}
			return app.finishRun("uninstall", rc, runErr, code)
		},
	}
	cmd.Flags().BoolVar(&input.SwitchBack, "switch-back", false, "move the bridge back to the USB NIC on the generic driver")
	cmd.Flags().StringVar(&input.OnboardInterface, "onboard-interface", "", "onboard interface that carries the bridge")
	cmd.Flags().BoolVar(&input.Unpin, "unpin", false, "remove the pinned bridge MAC address after switching back")
	return cmd
}

func newStatusCommand(ctx context.Context, setup func() (*application, error), code *int) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the bridge uplink, the device and the driver state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup()
			if err != nil {
				return err
			}
			output, err := app.container.GetStatusUseCase().Execute(ctx)
			if err != nil {
				*code = exitCodeFor(nil, err)
				return err
			}
			return app.reporter.WriteStatus(app.stdout, app.reporter.BuildStatusReport(output))
		},
	}
}

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "usbnic-failover %s\n", version)
		},
	}
}
