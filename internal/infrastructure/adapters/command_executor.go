package adapters

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// RealCommandExecutor is a CommandExecutor implementation that executes actual system commands
type RealCommandExecutor struct {
	logger *logrus.Logger
}

// NewRealCommandExecutor creates a new RealCommandExecutor
func NewRealCommandExecutor(logger *logrus.Logger) interfaces.CommandExecutor {
	return &RealCommandExecutor{logger: logger}
}

// Execute executes a command and returns its stdout
func (e *RealCommandExecutor) Execute(ctx context.Context, command string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	// apt-get and friends must never prompt
	cmd.Env = append(cmd.Environ(), "DEBIAN_FRONTEND=noninteractive", "LC_ALL=C")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.WithFields(logrus.Fields{
		"command": command,
		"args":    strings.Join(args, " "),
	}).Debug("Executing command")

	err := cmd.Run()
	if err != nil {
		return stdout.Bytes(), errors.NewSystemError(
			fmt.Sprintf("command execution failed: %s %v", command, args),
			fmt.Errorf("%w, stderr: %s", err, strings.TrimSpace(stderr.String())),
		)
	}

	return stdout.Bytes(), nil
}

// ExecuteWithTimeout executes a command with timeout
func (e *RealCommandExecutor) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, command string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := e.Execute(ctx, command, args...)
	if err != nil {
		// Convert to timeout error when context deadline exceeded
		if ctx.Err() == context.DeadlineExceeded {
			return output, errors.NewTimeoutError(
				fmt.Sprintf("command execution timeout: %s %v (timeout: %v)", command, args, timeout),
			)
		}
		return output, err
	}

	return output, nil
}

// LookPath resolves command on PATH
func (e *RealCommandExecutor) LookPath(command string) (string, error) {
	path, err := exec.LookPath(command)
	if err != nil {
		return "", errors.NewNotFoundError(fmt.Sprintf("command not found: %s", command))
	}
	return path, nil
}
