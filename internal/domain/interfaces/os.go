package interfaces

import (
	"context"
	"os"
	"time"
)

// CommandExecutor runs system commands
type CommandExecutor interface {
	// Execute runs a command and returns its stdout
	Execute(ctx context.Context, command string, args ...string) ([]byte, error)

	// ExecuteWithTimeout runs a command bounded by timeout
	ExecuteWithTimeout(ctx context.Context, timeout time.Duration, command string, args ...string) ([]byte, error)

	// LookPath reports whether command is available on PATH
	LookPath(command string) (string, error)
}

// FileSystem abstracts file system access
type FileSystem interface {
	// ReadFile reads a file
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to a file, creating parent directories
	WriteFile(path string, data []byte, perm os.FileMode) error

	// Exists reports whether a file or directory exists
	Exists(path string) bool

	// MkdirAll creates a directory tree
	MkdirAll(path string, perm os.FileMode) error

	// Remove deletes a file or empty directory
	Remove(path string) error

	// Rename atomically replaces newpath with oldpath
	Rename(oldpath, newpath string) error

	// ListFiles returns the regular files of a directory
	ListFiles(path string) ([]string, error)
}

// Clock abstracts time so that poll loops can be tested without sleeping
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// Sleep blocks for d or until ctx is done
	Sleep(ctx context.Context, d time.Duration) error
}

// OSDetector detects the host distribution
type OSDetector interface {
	// DetectOS returns the current operating system type
	DetectOS() (OSType, error)
}

// OSType is the host distribution
type OSType string

const (
	OSTypeProxmox OSType = "proxmox"
	OSTypeDebian  OSType = "debian"
)
