package main

import (
	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/errors"
)

const (
	exitOK           = 0
	exitGeneric      = 1
	exitPrecondition = 2
	exitExternal     = 3
	exitVerification = 4
)

// exitCodeFor maps a run outcome to the process exit code.
// A run parked on the failover interface is always reported as a verification failure.
func exitCodeFor(rc *entities.RunContext, err error) int {
	if rc != nil && rc.State == entities.StateAbortedReverted {
		return exitVerification
	}
	if err == nil {
		return exitOK
	}

	switch errors.TypeOf(err) {
	case errors.ErrorTypeValidation, errors.ErrorTypePrecondition, errors.ErrorTypeNotFound:
		return exitPrecondition
	case errors.ErrorTypeExternal, errors.ErrorTypeSystem, errors.ErrorTypeNetwork:
		return exitExternal
	case errors.ErrorTypeVerification, errors.ErrorTypeTimeout:
		return exitVerification
	default:
		return exitGeneric
	}
}
