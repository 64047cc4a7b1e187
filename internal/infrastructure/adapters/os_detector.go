package adapters

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	"usbnic-failover/internal/domain/constants"
	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"
)

// RealOSDetector is an OSDetector implementation that detects the actual OS
type RealOSDetector struct {
	fileSystem interfaces.FileSystem
	rootDir    string
}

// NewRealOSDetector creates a new RealOSDetector. rootDir is "/" on a real host.
func NewRealOSDetector(fs interfaces.FileSystem, rootDir string) interfaces.OSDetector {
	if rootDir == "" {
		rootDir = "/"
	}
	return &RealOSDetector{
		fileSystem: fs,
		rootDir:    rootDir,
	}
}

// DetectOS returns the current operating system type
func (d *RealOSDetector) DetectOS() (interfaces.OSType, error) {
	releaseInfo, err := d.parseOSRelease()
	if err != nil {
		return "", errors.NewSystemError("OS detection failed: cannot read /etc/os-release file", err)
	}

	id, ok := releaseInfo["ID"]
	if !ok {
		return "", errors.NewSystemError("OS detection failed: no ID field in /etc/os-release file", nil)
	}

	idLike := releaseInfo["ID_LIKE"]

	if id != "debian" && !strings.Contains(idLike, "debian") {
		return "", errors.NewPreconditionError(fmt.Sprintf("unsupported OS type. ID: '%s', ID_LIKE: '%s'", id, idLike), nil)
	}

	// Proxmox VE ships Debian's os-release; the cluster filesystem mount and pveversion give it away
	if d.fileSystem.Exists(d.path(constants.ProxmoxDir)) || d.fileSystem.Exists(d.path("usr/bin/pveversion")) {
		return interfaces.OSTypeProxmox, nil
	}

	return interfaces.OSTypeDebian, nil
}

func (d *RealOSDetector) path(rel string) string {
	return filepath.Join(d.rootDir, rel)
}

// parseOSRelease parses /etc/os-release file and returns it as a map.
func (d *RealOSDetector) parseOSRelease() (map[string]string, error) {
	content, err := d.fileSystem.ReadFile(d.path(constants.OSReleaseFile))
	if err != nil {
		return nil, err
	}

	releaseInfo := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			key := strings.TrimSpace(parts[0])
			value := strings.Trim(strings.TrimSpace(parts[1]), "\"")
			releaseInfo[key] = value
		}
	}

	return releaseInfo, nil
}
