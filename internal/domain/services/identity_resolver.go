package services

import (
	"context"
	"path/filepath"
	"sort"

	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// DefaultIdentityWalkDepth is how many parent device nodes are searched for idVendor/idProduct.
// The attributes live on the USB device node, which is the parent of the USB interface node
// the net device hangs off.
const DefaultIdentityWalkDepth = 3

// IdentityResolver maps a USB vendor/product identity to the current interface name
type IdentityResolver struct {
	inspector interfaces.SystemInspector
	logger    *logrus.Logger
	maxDepth  int
}

// NewIdentityResolver creates a new IdentityResolver
func NewIdentityResolver(inspector interfaces.SystemInspector, logger *logrus.Logger) *IdentityResolver {
	return &IdentityResolver{
		inspector: inspector,
		logger:    logger,
		maxDepth:  DefaultIdentityWalkDepth,
	}
}

// Resolve returns the first USB interface with the given identity. When requireDriver is
// not empty the interface must also be bound to that driver. found is false when nothing
// matches; that is a valid outcome, not an error.
func (r *IdentityResolver) Resolve(ctx context.Context, identity entities.DeviceIdentity, requireDriver string) (entities.NetworkInterface, bool, error) {
	candidates, err := r.ResolveAll(ctx, identity)
	if err != nil {
		return entities.NetworkInterface{}, false, err
	}

	var matches []entities.NetworkInterface
	for _, candidate := range candidates {
		if requireDriver != "" && !candidate.IsBoundTo(requireDriver) {
			r.logger.WithFields(logrus.Fields{
				"interface":       candidate.Name,
				"identity":        identity.String(),
				"driver":          candidate.Driver,
				"required_driver": requireDriver,
			}).Debug("Device present but bound to a different driver")
			continue
		}
		matches = append(matches, candidate)
	}

	if len(matches) == 0 {
		return entities.NetworkInterface{}, false, nil
	}

	if len(matches) > 1 {
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.Name)
		}
		r.logger.WithFields(logrus.Fields{
			"identity":   identity.String(),
			"candidates": names,
			"selected":   matches[0].Name,
		}).Warn("Multiple interfaces share the device identity, using the first")
	}

	return matches[0], true, nil
}

// ResolveAll returns every USB interface carrying identity, sorted by name, with its driver
func (r *IdentityResolver) ResolveAll(ctx context.Context, identity entities.DeviceIdentity) ([]entities.NetworkInterface, error) {
	names, err := r.inspector.ListInterfaces(ctx)
	if err != nil {
		return nil, err
	}

	var result []entities.NetworkInterface
	for _, name := range names {
		devicePath, err := r.inspector.DevicePath(ctx, name)
		if err != nil {
			// interfaces come and go while a driver rebinds
			r.logger.WithError(err).WithField("interface", name).Debug("Skipping interface without readable device path")
			continue
		}
		if !entities.IsUSBDevicePath(devicePath) {
			continue
		}

		vendor, product, ok := r.identityOf(ctx, devicePath)
		if !ok || !identity.Matches(vendor, product) {
			continue
		}

		driver, err := r.inspector.CurrentDriverOf(ctx, name)
		if err != nil {
			r.logger.WithError(err).WithField("interface", name).Debug("Failed to read driver binding")
		}

		result = append(result, entities.NetworkInterface{
			Name:       name,
			Identity:   identity,
			Driver:     driver,
			DevicePath: devicePath,
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// identityOf walks from devicePath towards the root and returns the first idVendor/idProduct pair
func (r *IdentityResolver) identityOf(ctx context.Context, devicePath string) (string, string, bool) {
	path := devicePath
	for depth := 0; depth <= r.maxDepth; depth++ {
		vendor, okVendor, errVendor := r.inspector.ReadDeviceAttribute(ctx, path, "idVendor")
		product, okProduct, errProduct := r.inspector.ReadDeviceAttribute(ctx, path, "idProduct")
		if errVendor == nil && errProduct == nil && okVendor && okProduct {
			return vendor, product, true
		}

		parent := filepath.Dir(path)
		if parent == path {
			break
		}
		path = parent
	}
	return "", "", false
}
