package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattcache/internal/device"
	"github.com/srg/gattcache/internal/devicefactory"
	"github.com/srg/gattcache/pkg/config"
)

type sessionEventKind int

const (
	sessionRecalculate sessionEventKind = iota
	sessionConnected
	sessionValueChanged
	sessionError
)

type sessionEvent struct {
	kind           sessionEventKind
	peripheral     *device.Peripheral
	characteristic device.CharacteristicNode
	err            error
}

// sessionDelegate forwards the registry callbacks a command waits on to a channel.
type sessionDelegate struct {
	device.NopDelegate
	events chan sessionEvent
	done   chan struct{}
}

func newSessionDelegate() *sessionDelegate {
	return &sessionDelegate{
		events: make(chan sessionEvent, 64),
		done:   make(chan struct{}),
	}
}

func (d *sessionDelegate) post(e sessionEvent) {
	if e.kind == sessionRecalculate {
		// Recalculations coalesce: one pending is as good as many
		select {
		case d.events <- e:
		default:
		}
		return
	}
	select {
	case d.events <- e:
	case <-d.done:
	}
}

func (d *sessionDelegate) OnError(err error) {
	d.post(sessionEvent{kind: sessionError, err: err})
}

func (d *sessionDelegate) OnRecalculate() {
	d.post(sessionEvent{kind: sessionRecalculate})
}

func (d *sessionDelegate) OnConnected(p *device.Peripheral) {
	d.post(sessionEvent{kind: sessionConnected, peripheral: p})
}

func (d *sessionDelegate) OnCharacteristicChanged(p *device.Peripheral, _ device.ServiceNode, c device.CharacteristicNode) {
	d.post(sessionEvent{kind: sessionValueChanged, peripheral: p, characteristic: c})
}

// session is one command's registry plus the delegate feeding it events.
type session struct {
	registry  *device.Registry
	delegate  *sessionDelegate
	logger    *logrus.Logger
	closeFn   func()
	closeOnce sync.Once
}

func openSession(cfg *config.Config, logger *logrus.Logger) (*session, error) {
	d := newSessionDelegate()
	registry, closeFn, err := devicefactory.NewRegistry(cfg, logger, device.WithDelegate(d))
	if err != nil {
		return nil, err
	}
	return &session{
		registry: registry,
		delegate: d,
		logger:   logger,
		closeFn:  closeFn,
	}, nil
}

// Close unblocks pending deliveries and releases the registry and transport.
func (s *session) Close() {
	s.closeOnce.Do(func() {
		close(s.delegate.done)
		s.closeFn()
	})
}

// wait feeds events to handle until it reports done or an error, or ctx ends.
func (s *session) wait(ctx context.Context, handle func(sessionEvent) (bool, error)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-s.delegate.events:
			done, err := handle(e)
			if err != nil || done {
				return err
			}
		}
	}
}

// scan runs a scan for duration, or until ctx ends when duration is zero.
// Asynchronous errors during the scan are logged, not returned.
func (s *session) scan(ctx context.Context, duration time.Duration) error {
	if err := s.registry.StartScanning(); err != nil {
		return err
	}
	defer s.stopScanning()

	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	err := s.wait(ctx, func(e sessionEvent) (bool, error) {
		if e.kind == sessionError {
			s.logger.WithError(e.err).Warn("Error while scanning")
		}
		return false, nil
	})
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *session) stopScanning() {
	if err := s.registry.StopScanning(); err != nil {
		s.logger.WithError(err).Warn("Failed to stop scanning")
	}
}

// find scans until a record with address is staged.
func (s *session) find(ctx context.Context, address string) (*device.Record, error) {
	if rec := s.lookup(address); rec != nil {
		return rec, nil
	}
	if err := s.registry.StartScanning(); err != nil {
		return nil, err
	}
	defer s.stopScanning()

	var found *device.Record
	err := s.wait(ctx, func(e sessionEvent) (bool, error) {
		switch e.kind {
		case sessionRecalculate:
			found = s.lookup(address)
			return found != nil, nil
		case sessionError:
			s.logger.WithError(e.err).Warn("Error while scanning")
		}
		return false, nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
	}
	return found, err
}

// lookup matches address against the staged records, ignoring case.
func (s *session) lookup(address string) *device.Record {
	for _, rec := range s.registry.Staged() {
		if strings.EqualFold(rec.ID(), address) {
			return rec
		}
	}
	return nil
}

// connect connects rec and waits for its discovery cascade to commit.
func (s *session) connect(ctx context.Context, rec *device.Record) (*device.Peripheral, error) {
	if err := rec.Connect(); err != nil {
		return nil, err
	}

	var connected *device.Peripheral
	err := s.wait(ctx, func(e sessionEvent) (bool, error) {
		switch e.kind {
		case sessionConnected:
			if e.peripheral.Record() == rec {
				connected = e.peripheral
				return true, nil
			}
		case sessionError:
			return false, e.err
		}
		return false, nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// Abandon the attempt so the link is not left half open
			_ = rec.Disconnect()
		}
		return nil, err
	}
	return connected, nil
}

// readAll reads every readable characteristic of p and waits for the values.
// Per-characteristic failures are logged and counted as answered; losing the
// link aborts.
func (s *session) readAll(ctx context.Context, p *device.Peripheral) error {
	pending := make(map[*device.Characteristic]bool)
	for _, svc := range p.Services() {
		for _, c := range svc.Base().Characteristics() {
			base := c.Base()
			if !base.Properties().CanRead() {
				continue
			}
			if err := base.Read(); err != nil {
				s.logger.WithFields(logrus.Fields{
					"characteristic": base.UUID(),
					"error":          err,
				}).Warn("Read request rejected")
				continue
			}
			pending[base] = true
		}
	}

	outstanding := len(pending)
	if outstanding == 0 {
		return nil
	}
	return s.wait(ctx, func(e sessionEvent) (bool, error) {
		switch e.kind {
		case sessionValueChanged:
			if base := e.characteristic.Base(); pending[base] {
				delete(pending, base)
				outstanding--
			}
		case sessionError:
			if errors.Is(e.err, device.ErrUnexpectedDisconnection) {
				return false, e.err
			}
			s.logger.WithError(e.err).Warn("Read failed")
			outstanding--
		}
		return outstanding <= 0, nil
	})
}
