package adapters

import (
	"context"
	stderrors "errors"
	"net"

	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"

	"github.com/safchain/ethtool"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// HostInspector is the production SystemInspector: topology from sysfs,
// link state and routes from netlink, driver binding from ethtool.
type HostInspector struct {
	*SysfsInspector
	logger *logrus.Logger
}

// NewHostInspector creates a HostInspector reading sysfs below sysRoot
func NewHostInspector(sysRoot string, logger *logrus.Logger) interfaces.SystemInspector {
	return &HostInspector{
		SysfsInspector: NewSysfsInspector(sysRoot),
		logger:         logger,
	}
}

// CurrentDriverOf asks ethtool for the bound driver and falls back to sysfs
func (h *HostInspector) CurrentDriverOf(ctx context.Context, name string) (string, error) {
	e, err := ethtool.NewEthtool()
	if err == nil {
		defer e.Close()
		driver, err := e.DriverName(name)
		if err == nil && driver != "" {
			return driver, nil
		}
		h.logger.WithError(err).WithField("interface", name).Debug("ethtool driver query failed, falling back to sysfs")
	}
	return h.SysfsInspector.CurrentDriverOf(ctx, name)
}

// CarrierOf reports IFF_LOWER_UP. Carrier is only meaningful while the link is administratively up.
func (h *HostInspector) CarrierOf(ctx context.Context, name string) (entities.LinkState, error) {
	link, err := h.link(name)
	if err != nil {
		return entities.LinkUnknown, err
	}

	flags := link.Attrs().RawFlags
	if flags&unix.IFF_UP == 0 {
		return entities.LinkUnknown, nil
	}
	if flags&unix.IFF_LOWER_UP != 0 {
		return entities.LinkUp, nil
	}
	return entities.LinkDown, nil
}

// AdminStateOf returns the administrative state
func (h *HostInspector) AdminStateOf(ctx context.Context, name string) (entities.AdminState, error) {
	link, err := h.link(name)
	if err != nil {
		return entities.AdminDown, err
	}

	if link.Attrs().Flags&net.FlagUp != 0 {
		return entities.AdminUp, nil
	}
	return entities.AdminDown, nil
}

// SetAdminState brings a link up or down. Addresses are never touched.
func (h *HostInspector) SetAdminState(ctx context.Context, name string, state entities.AdminState) error {
	link, err := h.link(name)
	if err != nil {
		return err
	}

	if state == entities.AdminUp {
		err = netlink.LinkSetUp(link)
	} else {
		err = netlink.LinkSetDown(link)
	}
	if err != nil {
		return errors.NewNetworkError("failed to set "+name+" "+string(state), err)
	}
	return nil
}

// HardwareAddressOf returns the link MAC address
func (h *HostInspector) HardwareAddressOf(ctx context.Context, name string) (string, error) {
	link, err := h.link(name)
	if err != nil {
		return "", err
	}
	return link.Attrs().HardwareAddr.String(), nil
}

// DefaultGateway returns the gateway of the lowest metric IPv4 default route
func (h *HostInspector) DefaultGateway(ctx context.Context) (net.IP, bool, error) {
	routes, err := netlink.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return nil, false, errors.NewNetworkError("failed to list routes", err)
	}

	var best *netlink.Route
	for i := range routes {
		route := &routes[i]
		if !isDefaultDestination(route.Dst) || route.Gw == nil {
			continue
		}
		if best == nil || route.Priority < best.Priority {
			best = route
		}
	}
	if best == nil {
		return nil, false, nil
	}
	return best.Gw, true, nil
}

func (h *HostInspector) link(name string) (netlink.Link, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if stderrors.As(err, &notFound) {
			return nil, errors.NewNotFoundError("network interface not found: " + name)
		}
		return nil, errors.NewNetworkError("failed to query link "+name, err)
	}
	return link, nil
}

// isDefaultDestination accepts both a nil destination and 0.0.0.0/0; netlink versions differ
func isDefaultDestination(dst *net.IPNet) bool {
	if dst == nil {
		return true
	}
	ones, _ := dst.Mask.Size()
	return ones == 0 && dst.IP.IsUnspecified()
}
