package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"usbnic-failover/internal/domain/constants"
	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"
	"usbnic-failover/internal/domain/services"
	"usbnic-failover/pkg/utils"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is read when no --config flag is given. A missing file is not an error.
const DefaultConfigPath = constants.DefaultConfigFile

// Config is a struct that holds application configuration
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Failover FailoverConfig `yaml:"failover"`
	Gate     GateConfig     `yaml:"gate"`
	Agent    AgentConfig    `yaml:"agent"`
}

// DeviceConfig identifies the USB NIC and its driver package
type DeviceConfig struct {
	VendorID      string `yaml:"vendor_id"`
	ProductID     string `yaml:"product_id"`
	VendorDriver  string `yaml:"vendor_driver"`
	GenericDriver string `yaml:"generic_driver"`
	PackageName   string `yaml:"package_name"`
	DKMSModule    string `yaml:"dkms_module"`
}

// BridgeConfig locates the management bridge
type BridgeConfig struct {
	Name            string `yaml:"name"`
	InterfacesFile  string `yaml:"interfaces_file"`
	BackupDirectory string `yaml:"backup_dir"`
	PinAddress      bool   `yaml:"pin_address"`
}

// FailoverConfig holds the failover path and re-resolution policy
type FailoverConfig struct {
	Interface           string        `yaml:"interface"`
	SettleInterval      time.Duration `yaml:"settle_interval"`
	ResolveAttempts     int           `yaml:"resolve_attempts"`
	ResolveInitialDelay time.Duration `yaml:"resolve_initial_delay"`
	ResolveMaxDelay     time.Duration `yaml:"resolve_max_delay"`
	ResolveMultiplier   float64       `yaml:"resolve_multiplier"`
}

// GateConfig holds the connectivity gate timeouts
type GateConfig struct {
	AdminTimeout   time.Duration `yaml:"admin_timeout"`
	GatewayTimeout time.Duration `yaml:"gateway_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
}

// AgentConfig is a struct that holds process level settings
type AgentConfig struct {
	CommandTimeout  time.Duration `yaml:"command_timeout"`
	InstallTimeout  time.Duration `yaml:"install_timeout"`
	SysRoot         string        `yaml:"sys_root"`
	MetricsTextfile string        `yaml:"metrics_textfile"`
	LogLevel        string        `yaml:"log_level"`
}

// Identity returns the normalized device identity. Validate has already rejected bad ids.
func (c *Config) Identity() entities.DeviceIdentity {
	id, err := entities.NewDeviceIdentity(c.Device.VendorID, c.Device.ProductID)
	if err != nil {
		return entities.DeviceIdentity{VendorID: c.Device.VendorID, ProductID: c.Device.ProductID}
	}
	return id
}

// ResolveRetry returns the re-resolution backoff policy
func (c *Config) ResolveRetry() utils.RetryConfig {
	return utils.RetryConfig{
		MaxAttempts:  c.Failover.ResolveAttempts,
		InitialDelay: c.Failover.ResolveInitialDelay,
		MaxDelay:     c.Failover.ResolveMaxDelay,
		Multiplier:   c.Failover.ResolveMultiplier,
	}
}

// GatePolicy returns the connectivity gate policy
func (c *Config) GatePolicy() services.GateConfig {
	return services.GateConfig{
		AdminTimeout:   c.Gate.AdminTimeout,
		GatewayTimeout: c.Gate.GatewayTimeout,
		PollInterval:   c.Gate.PollInterval,
		ProbeTimeout:   c.Gate.ProbeTimeout,
	}
}

// ConfigLoader is an interface for loading configuration
type ConfigLoader interface {
	Load() (*Config, error)
}

// FileConfigLoader loads defaults, then the YAML file, then environment overrides
type FileConfigLoader struct {
	fileSystem interfaces.FileSystem
	path       string
}

// NewFileConfigLoader creates a new FileConfigLoader
func NewFileConfigLoader(fs interfaces.FileSystem, path string) ConfigLoader {
	return &FileConfigLoader{fileSystem: fs, path: path}
}

// Defaults returns the built-in configuration for a Realtek RTL8157 on Proxmox VE
func Defaults() *Config {
	return &Config{
		Device: DeviceConfig{
			VendorID:      constants.DefaultVendorID,
			ProductID:     constants.DefaultProductID,
			VendorDriver:  constants.DefaultVendorDriver,
			GenericDriver: constants.DefaultGenericDriver,
			PackageName:   constants.DefaultPackageName,
			DKMSModule:    constants.DefaultDKMSModule,
		},
		Bridge: BridgeConfig{
			Name:           constants.DefaultBridge,
			InterfacesFile: constants.DefaultInterfacesFile,
			PinAddress:     true,
		},
		Failover: FailoverConfig{
			Interface:           constants.DefaultFailoverInterface,
			SettleInterval:      services.DefaultSettleInterval,
			ResolveAttempts:     6,
			ResolveInitialDelay: 2 * time.Second,
			ResolveMaxDelay:     15 * time.Second,
			ResolveMultiplier:   2.0,
		},
		Gate: GateConfig{
			AdminTimeout:   services.DefaultGateConfig.AdminTimeout,
			GatewayTimeout: services.DefaultGateConfig.GatewayTimeout,
			PollInterval:   services.DefaultGateConfig.PollInterval,
			ProbeTimeout:   services.DefaultGateConfig.ProbeTimeout,
		},
		Agent: AgentConfig{
			CommandTimeout: 30 * time.Second,
			InstallTimeout: 15 * time.Minute,
			SysRoot:        constants.DefaultSysRoot,
			LogLevel:       "info",
		},
	}
}

// Load builds the configuration
func (l *FileConfigLoader) Load() (*Config, error) {
	config := Defaults()

	if l.path != "" && l.fileSystem.Exists(l.path) {
		data, err := l.fileSystem.ReadFile(l.path)
		if err != nil {
			return nil, errors.NewSystemError("failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("failed to parse %s", l.path), err)
		}
	}

	applyEnvironment(config)

	// Validate configuration
	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func applyEnvironment(c *Config) {
	c.Device.VendorID = getEnvOrDefault("USB_VENDOR_ID", c.Device.VendorID)
	c.Device.ProductID = getEnvOrDefault("USB_PRODUCT_ID", c.Device.ProductID)
	c.Device.VendorDriver = getEnvOrDefault("VENDOR_DRIVER", c.Device.VendorDriver)
	c.Device.GenericDriver = getEnvOrDefault("GENERIC_DRIVER", c.Device.GenericDriver)
	c.Device.PackageName = getEnvOrDefault("DRIVER_PACKAGE", c.Device.PackageName)

	c.Bridge.Name = getEnvOrDefault("BRIDGE_NAME", c.Bridge.Name)
	c.Bridge.InterfacesFile = getEnvOrDefault("INTERFACES_FILE", c.Bridge.InterfacesFile)
	c.Bridge.BackupDirectory = getEnvOrDefault("BACKUP_DIR", c.Bridge.BackupDirectory)
	c.Bridge.PinAddress = getEnvBoolOrDefault("PIN_BRIDGE_ADDRESS", c.Bridge.PinAddress)

	c.Failover.Interface = getEnvOrDefault("FAILOVER_INTERFACE", c.Failover.Interface)
	c.Failover.SettleInterval = getEnvDurationOrDefault("SETTLE_INTERVAL", c.Failover.SettleInterval)
	c.Failover.ResolveAttempts = getEnvIntOrDefault("RESOLVE_ATTEMPTS", c.Failover.ResolveAttempts)

	c.Gate.AdminTimeout = getEnvDurationOrDefault("GATE_ADMIN_TIMEOUT", c.Gate.AdminTimeout)
	c.Gate.GatewayTimeout = getEnvDurationOrDefault("GATE_GATEWAY_TIMEOUT", c.Gate.GatewayTimeout)

	c.Agent.CommandTimeout = getEnvDurationOrDefault("COMMAND_TIMEOUT", c.Agent.CommandTimeout)
	c.Agent.InstallTimeout = getEnvDurationOrDefault("INSTALL_TIMEOUT", c.Agent.InstallTimeout)
	c.Agent.MetricsTextfile = getEnvOrDefault("METRICS_TEXTFILE", c.Agent.MetricsTextfile)
	c.Agent.LogLevel = getEnvOrDefault("LOG_LEVEL", c.Agent.LogLevel)
}

// Validate checks a configuration. Flags applied after Load are validated again by the caller.
func Validate(config *Config) error {
	if _, err := entities.NewDeviceIdentity(config.Device.VendorID, config.Device.ProductID); err != nil {
		return errors.NewValidationError("invalid device identity", err)
	}
	if err := utils.ValidateModuleName(config.Device.VendorDriver); err != nil {
		return errors.NewValidationError("invalid vendor driver", err)
	}
	if err := utils.ValidateModuleName(config.Device.GenericDriver); err != nil {
		return errors.NewValidationError("invalid generic driver", err)
	}
	if err := utils.ValidatePackageName(config.Device.PackageName); err != nil {
		return errors.NewValidationError("invalid driver package", err)
	}
	if config.Device.DKMSModule != "" {
		if err := utils.ValidateModuleName(config.Device.DKMSModule); err != nil {
			return errors.NewValidationError("invalid DKMS module", err)
		}
	}

	if err := entities.ValidateInterfaceName(config.Bridge.Name); err != nil {
		return errors.NewValidationError("invalid bridge name", err)
	}
	if !strings.HasPrefix(config.Bridge.InterfacesFile, "/") {
		return errors.NewValidationError("interfaces file must be an absolute path", nil)
	}
	if err := entities.ValidateInterfaceName(config.Failover.Interface); err != nil {
		return errors.NewValidationError("invalid failover interface", err)
	}
	if config.Failover.Interface == config.Bridge.Name {
		return errors.NewValidationError("failover interface cannot be the bridge itself", nil)
	}

	if config.Failover.ResolveAttempts < 1 {
		return errors.NewValidationError("resolve attempts must be at least 1", nil)
	}
	if config.Failover.ResolveInitialDelay <= 0 || config.Failover.ResolveMaxDelay < config.Failover.ResolveInitialDelay {
		return errors.NewValidationError("invalid resolve backoff delays", nil)
	}
	if config.Failover.ResolveMultiplier < 1 {
		return errors.NewValidationError("resolve multiplier must be at least 1", nil)
	}
	if config.Failover.SettleInterval < 0 {
		return errors.NewValidationError("invalid settle interval", nil)
	}

	if config.Gate.AdminTimeout <= 0 || config.Gate.GatewayTimeout <= 0 {
		return errors.NewValidationError("invalid connectivity gate timeout", nil)
	}
	if config.Gate.PollInterval <= 0 || config.Gate.ProbeTimeout <= 0 {
		return errors.NewValidationError("invalid connectivity gate interval", nil)
	}

	if config.Agent.CommandTimeout <= 0 || config.Agent.InstallTimeout <= 0 {
		return errors.NewValidationError("invalid command timeout", nil)
	}

	return nil
}

// Environment variable helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
