package container

import (
	"usbnic-failover/internal/application/usecases"
	"usbnic-failover/internal/domain/interfaces"
	"usbnic-failover/internal/domain/services"
	"usbnic-failover/internal/infrastructure/adapters"
	"usbnic-failover/internal/infrastructure/config"
	"usbnic-failover/internal/infrastructure/network"
	infraservices "usbnic-failover/internal/infrastructure/services"
	"usbnic-failover/internal/infrastructure/system"

	"github.com/sirupsen/logrus"
)

// Container wires the tool's components
type Container struct {
	config *config.Config
	logger *logrus.Logger

	// infrastructure adapters
	fileSystem      interfaces.FileSystem
	commandExecutor interfaces.CommandExecutor
	clock           interfaces.Clock
	osDetector      interfaces.OSDetector
	inspector       interfaces.SystemInspector
	pinger          interfaces.Pinger

	// domain services
	resolver *services.IdentityResolver
	prober   *services.LinkProber
	gate     *services.ConnectivityGate

	// infrastructure services
	backupService  *infraservices.BackupService
	networkFactory *network.NetworkManagerFactory
	editor         *network.FileBridgeEditor
	reloader       interfaces.NetworkReloader
	diagnostics    *system.Diagnostics
	packages       *system.PackageManager
	drivers        *system.DriverManager
	secureBoot     *system.SecureBoot
	preflight      *system.Preflight

	// use cases
	orchestrator     *usecases.FailoverOrchestrator
	installUseCase   *usecases.InstallDriverUseCase
	uninstallUseCase *usecases.UninstallDriverUseCase
	statusUseCase    *usecases.StatusUseCase
}

// NewContainer creates a new Container. Nothing touches the host until a use case runs.
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	container := &Container{
		config: cfg,
		logger: logger,
	}

	container.initializeInfrastructure()
	container.initializeServices()
	container.initializeUseCases()

	return container, nil
}

// initializeInfrastructure sets up the host adapters
func (c *Container) initializeInfrastructure() {
	c.fileSystem = adapters.NewRealFileSystem()
	c.commandExecutor = adapters.NewRealCommandExecutor(c.logger)
	c.clock = adapters.NewRealClock()
	c.osDetector = adapters.NewRealOSDetector(c.fileSystem, "/")
	c.inspector = adapters.NewHostInspector(c.config.Agent.SysRoot, c.logger)
	c.pinger = adapters.NewICMPPinger()
}

// initializeServices sets up domain and infrastructure services
func (c *Container) initializeServices() {
	cfg := c.config

	c.resolver = services.NewIdentityResolver(c.inspector, c.logger)
	c.prober = services.NewLinkProber(c.inspector, c.clock, c.logger, cfg.Failover.SettleInterval)
	c.gate = services.NewConnectivityGate(c.inspector, c.pinger, c.clock, c.logger, cfg.GatePolicy())

	c.backupService = infraservices.NewBackupService(c.fileSystem, c.clock, c.logger, cfg.Bridge.BackupDirectory)
	c.networkFactory = network.NewNetworkManagerFactory(
		c.osDetector,
		c.commandExecutor,
		c.fileSystem,
		c.logger,
	)
	c.editor = c.networkFactory.CreateBridgeEditor(c.backupService, cfg.Bridge.InterfacesFile, cfg.Bridge.Name)
	c.reloader = c.networkFactory.CreateReloader(network.DefaultReloadTimeout, cfg.Bridge.Name)

	c.diagnostics = system.NewDiagnostics(c.commandExecutor, c.inspector, c.clock, c.logger, cfg.Agent.CommandTimeout)
	c.packages = system.NewPackageManager(c.commandExecutor, c.logger, cfg.Agent.InstallTimeout, cfg.Agent.CommandTimeout)
	c.drivers = system.NewDriverManager(
		c.commandExecutor,
		c.fileSystem,
		c.logger,
		cfg.Agent.CommandTimeout,
		cfg.Agent.InstallTimeout,
		cfg.Agent.SysRoot,
	)
	c.secureBoot = system.NewSecureBoot(c.commandExecutor, c.fileSystem, c.logger, cfg.Agent.CommandTimeout, "")
	c.preflight = system.NewPreflight(c.commandExecutor, c.osDetector, c.logger)
}

// initializeUseCases sets up the orchestrator and the CLI use cases
func (c *Container) initializeUseCases() {
	settings := c.driverSettings()

	c.orchestrator = usecases.NewFailoverOrchestrator(
		c.resolver,
		c.prober,
		c.gate,
		c.editor,
		c.reloader,
		c.inspector,
		c.diagnostics,
		c.clock,
		c.logger,
	)

	c.installUseCase = usecases.NewInstallDriverUseCase(
		c.orchestrator,
		c.preflight,
		c.secureBoot,
		c.packages,
		c.drivers,
		settings,
		c.logger,
	)

	c.uninstallUseCase = usecases.NewUninstallDriverUseCase(
		c.orchestrator,
		c.preflight,
		c.packages,
		c.drivers,
		c.editor,
		c.reloader,
		c.gate,
		settings,
		c.logger,
	)

	c.statusUseCase = usecases.NewStatusUseCase(
		c.resolver,
		c.inspector,
		c.editor,
		c.packages,
		c.drivers,
		c.secureBoot,
		settings,
		c.logger,
	)
}

func (c *Container) driverSettings() usecases.DriverSettings {
	cfg := c.config
	return usecases.DriverSettings{
		Identity:          cfg.Identity(),
		Bridge:            cfg.Bridge.Name,
		FailoverInterface: cfg.Failover.Interface,
		VendorDriver:      cfg.Device.VendorDriver,
		GenericDriver:     cfg.Device.GenericDriver,
		PackageName:       cfg.Device.PackageName,
		DKMSModule:        cfg.Device.DKMSModule,
		PinAddress:        cfg.Bridge.PinAddress,
		ResolveRetry:      cfg.ResolveRetry(),
	}
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetClock returns the clock
func (c *Container) GetClock() interfaces.Clock {
	return c.clock
}

// GetOSDetector returns the OS detector
func (c *Container) GetOSDetector() interfaces.OSDetector {
	return c.osDetector
}

// GetInstallUseCase returns the install use case
func (c *Container) GetInstallUseCase() *usecases.InstallDriverUseCase {
	return c.installUseCase
}

// GetUninstallUseCase returns the uninstall use case
func (c *Container) GetUninstallUseCase() *usecases.UninstallDriverUseCase {
	return c.uninstallUseCase
}

// GetStatusUseCase returns the status use case
func (c *Container) GetStatusUseCase() *usecases.StatusUseCase {
	return c.statusUseCase
}
