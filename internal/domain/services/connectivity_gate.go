package services

import (
	"context"
	"fmt"
	"time"

	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"
	"usbnic-failover/pkg/utils"

	"github.com/sirupsen/logrus"
)

// GateConfig holds the polling policy of the connectivity gate.
// Both phases use fixed intervals; expected settle times are short.
type GateConfig struct {
	AdminTimeout   time.Duration
	GatewayTimeout time.Duration
	PollInterval   time.Duration
	ProbeTimeout   time.Duration
}

// DefaultGateConfig is the default gate policy
var DefaultGateConfig = GateConfig{
	AdminTimeout:   30 * time.Second,
	GatewayTimeout: 30 * time.Second,
	PollInterval:   time.Second,
	ProbeTimeout:   time.Second,
}

// ConnectivityGate waits until the bridge is up and the default gateway answers
type ConnectivityGate struct {
	inspector interfaces.SystemInspector
	pinger    interfaces.Pinger
	clock     interfaces.Clock
	logger    *logrus.Logger
	config    GateConfig
}

// NewConnectivityGate creates a new ConnectivityGate
func NewConnectivityGate(
	inspector interfaces.SystemInspector,
	pinger interfaces.Pinger,
	clock interfaces.Clock,
	logger *logrus.Logger,
	config GateConfig,
) *ConnectivityGate {
	return &ConnectivityGate{
		inspector: inspector,
		pinger:    pinger,
		clock:     clock,
		logger:    logger,
		config:    config,
	}
}

// errPhaseDeadline ends a poll phase whose time budget is spent
var errPhaseDeadline = errors.NewTimeoutError("poll phase deadline reached")

// AwaitReady returns nil once bridge is administratively up and, if a default route exists,
// its gateway answers a probe. Each phase has its own timeout, measured on the clock, so slow
// probes count against it.
func (g *ConnectivityGate) AwaitReady(ctx context.Context, bridge string) error {
	log := g.logger.WithField("bridge", bridge)

	polls, err := g.pollPhase(ctx, g.config.AdminTimeout, func(ctx context.Context, _ time.Duration) bool {
		state, err := g.inspector.AdminStateOf(ctx, bridge)
		if err != nil {
			log.WithError(err).Debug("Bridge state not readable yet")
			return false
		}
		return state == entities.AdminUp
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.NewTimeoutError(fmt.Sprintf("bridge %s not administratively up after %d polls (%v)", bridge, polls, g.config.AdminTimeout))
	}
	log.WithField("polls", polls).Debug("Bridge is administratively up")

	gateway, ok, err := g.inspector.DefaultGateway(ctx)
	if err != nil {
		return errors.NewNetworkError("failed to look up default gateway", err)
	}
	if !ok {
		log.Warn("No default route, skipping gateway reachability check")
		return nil
	}

	log = log.WithField("gateway", gateway.String())
	probes, err := g.pollPhase(ctx, g.config.GatewayTimeout, func(ctx context.Context, remaining time.Duration) bool {
		timeout := g.config.ProbeTimeout
		if remaining < timeout {
			timeout = remaining
		}
		if err := g.pinger.Ping(ctx, gateway, timeout); err != nil {
			log.WithError(err).Debug("Gateway not answering yet")
			return false
		}
		return true
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.NewTimeoutError(fmt.Sprintf("gateway %s unreachable after %d probes (%v)", gateway, probes, g.config.GatewayTimeout))
	}

	log.WithField("probes", probes).Info("Connectivity verified")
	return nil
}

// pollPhase runs check every PollInterval until it holds. It stops after timeout/PollInterval
// checks or once timeout has elapsed on the clock, whichever comes first. check receives the
// time left in the phase.
func (g *ConnectivityGate) pollPhase(ctx context.Context, timeout time.Duration, check func(ctx context.Context, remaining time.Duration) bool) (int, error) {
	deadline := g.clock.Now().Add(timeout)
	checks := 0
	_, err := utils.PollUntil(ctx, g.clock, utils.FixedInterval(g.config.PollInterval, timeout),
		func(ctx context.Context) (bool, error) {
			remaining := deadline.Sub(g.clock.Now())
			if remaining <= 0 {
				return false, errPhaseDeadline
			}
			checks++
			return check(ctx, remaining), nil
		})
	return checks, err
}
