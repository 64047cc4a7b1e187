package services

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"usbnic-failover/internal/domain/constants"
	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// BackupTimestampFormat is the timestamp suffix of backup files
const BackupTimestampFormat = "20060102_150405"

// BackupService takes timestamped copies of configuration files before they are edited
type BackupService struct {
	fileSystem interfaces.FileSystem
	clock      interfaces.Clock
	logger     *logrus.Logger
	backupDir  string

	mu    sync.Mutex
	taken map[string]string
}

// NewBackupService creates a new BackupService. An empty backupDir stores backups
// next to the original file.
func NewBackupService(
	fs interfaces.FileSystem,
	clock interfaces.Clock,
	logger *logrus.Logger,
	backupDir string,
) *BackupService {
	return &BackupService{
		fileSystem: fs,
		clock:      clock,
		logger:     logger,
		backupDir:  backupDir,
		taken:      make(map[string]string),
	}
}

// EnsureBackup copies configPath to a timestamped backup the first time it is called for
// that path. Later calls return the same backup path without copying again.
func (s *BackupService) EnsureBackup(configPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if backupPath, ok := s.taken[configPath]; ok {
		return backupPath, nil
	}

	content, err := s.fileSystem.ReadFile(configPath)
	if err != nil {
		return "", errors.NewSystemError(fmt.Sprintf("failed to read %s for backup", configPath), err)
	}

	dir := s.dirFor(configPath)
	if err := s.fileSystem.MkdirAll(dir, constants.BackupDirPermission); err != nil {
		return "", errors.NewSystemError("failed to create backup directory", err)
	}

	// e.g. interfaces.bak.20261015_150405
	timestamp := s.clock.Now().Format(BackupTimestampFormat)
	backupPath := filepath.Join(dir, fmt.Sprintf("%s.bak.%s", filepath.Base(configPath), timestamp))

	if err := s.fileSystem.WriteFile(backupPath, content, constants.ConfigFilePermission); err != nil {
		return "", errors.NewSystemError("failed to write backup file", err)
	}

	s.taken[configPath] = backupPath
	s.logger.WithFields(logrus.Fields{
		"path":        configPath,
		"backup_path": backupPath,
	}).Info("Configuration backup created")

	return backupPath, nil
}

// BackupOf returns the backup taken during this run, if any
func (s *BackupService) BackupOf(configPath string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	backupPath, ok := s.taken[configPath]
	return backupPath, ok
}

// LatestBackup returns the newest backup of configPath on disk, from any run
func (s *BackupService) LatestBackup(configPath string) (string, bool, error) {
	backups, err := s.findBackupFiles(configPath)
	if err != nil {
		return "", false, err
	}
	if len(backups) == 0 {
		return "", false, nil
	}
	return filepath.Join(s.dirFor(configPath), backups[len(backups)-1]), true, nil
}

func (s *BackupService) dirFor(configPath string) string {
	if s.backupDir != "" {
		return s.backupDir
	}
	return filepath.Dir(configPath)
}

// findBackupFiles returns the backup file names of configPath sorted oldest first
func (s *BackupService) findBackupFiles(configPath string) ([]string, error) {
	dir := s.dirFor(configPath)
	if !s.fileSystem.Exists(dir) {
		return []string{}, nil
	}

	files, err := s.fileSystem.ListFiles(dir)
	if err != nil {
		return nil, errors.NewSystemError("failed to read backup directory", err)
	}

	var backups []string
	prefix := filepath.Base(configPath) + ".bak."
	for _, file := range files {
		if strings.HasPrefix(file, prefix) {
			backups = append(backups, file)
		}
	}

	// the timestamp suffix sorts chronologically
	sort.Strings(backups)
	return backups, nil
}
