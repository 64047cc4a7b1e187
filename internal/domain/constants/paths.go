package constants

// system paths
const (
	// ifupdown configuration holding the management bridge
	DefaultInterfacesFile = "/etc/network/interfaces"

	// tool configuration
	DefaultConfigFile = "/etc/usbnic-failover/config.yaml"

	// OS detection
	OSReleaseFile = "/etc/os-release"
	ProxmoxDir    = "/etc/pve"

	DefaultSysRoot = "/sys"
	SysClassNet    = "/sys/class/net"

	// DKMS signing key checked against the MOK list
	DefaultDKMSSigningKey = "/var/lib/dkms/mok.pub"
)

// device defaults: Realtek RTL8157 5GbE
const (
	DefaultVendorID      = "0bda"
	DefaultProductID     = "8157"
	DefaultVendorDriver  = "r8152"
	DefaultGenericDriver = "cdc_ncm"
	DefaultPackageName   = "realtek-r8152-dkms"
	DefaultDKMSModule    = "realtek-r8152"
)

// network defaults
const (
	DefaultBridge            = "vmbr0"
	DefaultFailoverInterface = "enp3s0"

	// file permissions
	ConfigFilePermission = 0644
	BackupDirPermission  = 0755
)

// InstallTools are the commands an install run shells out to
var InstallTools = []string{"apt-get", "dpkg-query", "dkms", "update-initramfs", "udevadm", "modprobe"}

// UninstallTools are the commands an uninstall run shells out to
var UninstallTools = []string{"apt-get", "dpkg-query", "update-initramfs", "udevadm", "modprobe"}

// ReloadTools apply the interfaces file; one of them must exist
var ReloadTools = []string{"ifreload", "ifup"}
