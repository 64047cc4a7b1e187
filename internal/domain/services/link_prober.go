package services

import (
	"context"
	"fmt"
	"time"

	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// DefaultSettleInterval is how long a freshly raised link gets to negotiate before carrier is read
const DefaultSettleInterval = 3 * time.Second

// NotReadyReason explains why a failover path cannot be relied upon
type NotReadyReason string

const (
	ReasonManualVerification NotReadyReason = "manual verification required"
	ReasonNoCarrier          NotReadyReason = "no carrier"
	ReasonInterfaceAbsent    NotReadyReason = "interface absent"
)

// Readiness is the outcome of EnsureFailoverReady
type Readiness struct {
	Ready  bool
	Reason NotReadyReason
}

// LinkProber checks physical link on candidate failover interfaces
type LinkProber struct {
	inspector interfaces.SystemInspector
	clock     interfaces.Clock
	logger    *logrus.Logger
	settle    time.Duration
}

// NewLinkProber creates a new LinkProber
func NewLinkProber(inspector interfaces.SystemInspector, clock interfaces.Clock, logger *logrus.Logger, settle time.Duration) *LinkProber {
	return &LinkProber{
		inspector: inspector,
		clock:     clock,
		logger:    logger,
		settle:    settle,
	}
}

// IsUnmanagedMethod reports whether an ifupdown addressing method leaves the interface without
// an IP role. Interfaces missing from the interfaces file are not managed at all.
func IsUnmanagedMethod(method string) bool {
	return method == "" || method == "manual"
}

// HasLink reports whether name currently has carrier
func (p *LinkProber) HasLink(ctx context.Context, name string) (bool, error) {
	state, err := p.inspector.CarrierOf(ctx, name)
	if err != nil {
		return false, err
	}
	return state == entities.LinkUp, nil
}

// EnsureFailoverReady verifies that name can carry the bridge. Only unmanaged interfaces are
// raised automatically; anything with an IP role is left alone and reported for manual check.
func (p *LinkProber) EnsureFailoverReady(ctx context.Context, name string, configuredMethod string) (Readiness, error) {
	log := p.logger.WithFields(logrus.Fields{
		"interface": name,
		"method":    configuredMethod,
	})

	if !IsUnmanagedMethod(configuredMethod) {
		log.Warn("Failover interface carries an IP configuration, not toggling it automatically")
		return Readiness{Reason: ReasonManualVerification}, nil
	}

	admin, err := p.inspector.AdminStateOf(ctx, name)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return Readiness{Reason: ReasonInterfaceAbsent}, nil
		}
		return Readiness{}, err
	}

	if admin != entities.AdminUp {
		log.Info("Bringing failover interface administratively up")
		if err := p.inspector.SetAdminState(ctx, name, entities.AdminUp); err != nil {
			return Readiness{}, errors.NewNetworkError(fmt.Sprintf("failed to bring up %s", name), err)
		}
		if err := p.clock.Sleep(ctx, p.settle); err != nil {
			return Readiness{}, err
		}
	}

	hasLink, err := p.HasLink(ctx, name)
	if err != nil {
		return Readiness{}, err
	}
	if !hasLink {
		log.Warn("Failover interface has no carrier")
		return Readiness{Reason: ReasonNoCarrier}, nil
	}

	log.Info("Failover interface has carrier")
	return Readiness{Ready: true}, nil
}
