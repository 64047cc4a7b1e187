package interfaces

import (
	"context"

	"usbnic-failover/internal/domain/entities"
)

// PackageManager installs and removes the driver package
type PackageManager interface {
	InstallLocal(ctx context.Context, debPath string) error
	Remove(ctx context.Context, name string) error
	IsInstalled(ctx context.Context, name string) (bool, error)
}

// DriverManager drives DKMS, initramfs, udev and kernel modules
type DriverManager interface {
	VerifyDKMS(ctx context.Context, module string) error
	RegenerateInitramfs(ctx context.Context) error
	ReloadUdevRules(ctx context.Context) error
	TriggerUSB(ctx context.Context, identity entities.DeviceIdentity) error
	SwapModules(ctx context.Context, unload []string, load string) error
	IsModuleLoaded(module string) bool
}

// SecureBootInspector reports Secure Boot state without changing it
type SecureBootInspector interface {
	Report(ctx context.Context) entities.SecureBootReport
}

// PreflightResult is what the host checks found
type PreflightResult struct {
	OSType   OSType
	Warnings []string
}

// PreflightChecker verifies privileges, tools and distribution
type PreflightChecker interface {
	Check(ctx context.Context, tools []string) (PreflightResult, error)
}
