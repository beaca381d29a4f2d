package devicefactory

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattcache/internal/device"
	goble "github.com/srg/gattcache/internal/device/go-ble"
	"github.com/srg/gattcache/pkg/config"
)

// TransportFactory opens the platform transport and returns it with its release function.
// This is a variable so that it can be overridden in tests.
var TransportFactory = func(logger *logrus.Logger) (device.Transport, func(), error) {
	t, err := goble.NewTransport(logger)
	if err != nil {
		return nil, nil, err
	}
	return t, t.Close, nil
}

// NewRegistry opens a transport through TransportFactory and wires a registry to it.
// The returned close function stops the registry queues first, then releases the transport.
func NewRegistry(cfg *config.Config, logger *logrus.Logger, opts ...device.Option) (*device.Registry, func(), error) {
	transport, release, err := TransportFactory(logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open BLE transport: %w", err)
	}

	opts = append([]device.Option{device.WithLogger(logger)}, opts...)
	registry := device.NewRegistry(transport, cfg, opts...)
	return registry, func() {
		registry.Close()
		if release != nil {
			release()
		}
	}, nil
}
