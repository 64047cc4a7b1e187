package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Debian package names: lowercase alphanumerics, '+', '-', '.'; at least two characters
	packageNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9+.\-]+$`)

	// kernel module names as reported by lsmod and sysfs
	moduleNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
)

// ValidatePackageName checks a Debian package name
func ValidatePackageName(name string) error {
	if name == "" {
		return fmt.Errorf("package name is empty")
	}

	if !packageNamePattern.MatchString(name) {
		return fmt.Errorf("invalid package name: %s", name)
	}

	return nil
}

// ValidateModuleName checks a kernel module / driver name
func ValidateModuleName(name string) error {
	if name == "" {
		return fmt.Errorf("module name is empty")
	}

	if !moduleNamePattern.MatchString(name) {
		return fmt.Errorf("invalid module name: %s", name)
	}

	return nil
}

// ValidateDebPackagePath checks that path names a local .deb archive.
// apt-get only treats arguments as files when they contain a slash, so relative
// paths must be prefixed with "./".
func ValidateDebPackagePath(path string) error {
	if path == "" {
		return fmt.Errorf("package path is empty")
	}

	if !strings.HasSuffix(path, ".deb") {
		return fmt.Errorf("package path must point to a .deb file: %s", path)
	}

	if !strings.Contains(path, "/") {
		return fmt.Errorf("package path must be absolute or start with ./: %s", path)
	}

	return nil
}

// AptPackageArgument returns the form of path apt-get accepts as a local archive
func AptPackageArgument(path string) string {
	if filepath.IsAbs(path) || strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") {
		return path
	}
	return "./" + path
}
