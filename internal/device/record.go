package device

import (
	"sync"
	"time"
)

// Timer is a cancellable single-shot timer.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. The registry uses it for connect timeouts.
type AfterFunc func(d time.Duration, f func()) Timer

func systemAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type pendingConnect struct {
	token uint64
	timer Timer
}

// Record is a discovered endpoint. It holds the transport handle for as long as the
// registry knows the endpoint, and the live Peripheral while connected.
type Record struct {
	handle   PeripheralHandle
	registry *Registry
	id       string

	mu            sync.RWMutex
	adv           Advertisement
	rssi          int
	lastSeen      time.Time
	peripheral    *Peripheral
	pending       *pendingConnect
	disconnecting bool
}

func newRecord(r *Registry, h PeripheralHandle, adv Advertisement, rssi int, seen time.Time) *Record {
	return &Record{
		handle:   h,
		registry: r,
		id:       h.ID(),
		adv:      adv.Clone(),
		rssi:     rssi,
		lastSeen: seen,
	}
}

func (r *Record) ID() string { return r.id }
func (r *Record) Handle() PeripheralHandle { return r.handle }

// Name is the advertised local name.
func (r *Record) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adv.Name
}

// Advertisement returns a copy of the latest advertisement snapshot.
func (r *Record) Advertisement() Advertisement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adv.Clone()
}

func (r *Record) RSSI() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rssi
}

func (r *Record) LastSeen() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSeen
}

// Peripheral is the live cache while connected, nil otherwise.
func (r *Record) Peripheral() *Peripheral {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peripheral
}

func (r *Record) IsConnected() bool {
	return r.Peripheral() != nil
}

// IsConnecting reports whether a connect attempt is waiting for the transport.
func (r *Record) IsConnecting() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pending != nil
}

// Connect is a shorthand for Registry.Connect.
func (r *Record) Connect() error {
	return r.registry.Connect(r)
}

// Disconnect is a shorthand for Registry.Disconnect.
func (r *Record) Disconnect() error {
	return r.registry.Disconnect(r)
}

func (r *Record) update(adv Advertisement, rssi int, seen time.Time) {
	r.mu.Lock()
	r.adv = adv.Clone()
	r.rssi = rssi
	r.lastSeen = seen
	r.mu.Unlock()
}

func (r *Record) setRSSI(rssi int) {
	r.mu.Lock()
	r.rssi = rssi
	r.mu.Unlock()
}

func (r *Record) setPeripheral(p *Peripheral) {
	r.mu.Lock()
	r.peripheral = p
	r.mu.Unlock()
}

func (r *Record) setPending(pc *pendingConnect) {
	r.mu.Lock()
	r.pending = pc
	r.mu.Unlock()
}

// takePending clears the attempt identified by token and stops its timer.
// Returns false when that attempt is no longer current.
func (r *Record) takePending(token uint64) bool {
	r.mu.Lock()
	pc := r.pending
	if pc == nil || pc.token != token {
		r.mu.Unlock()
		return false
	}
	r.pending = nil
	r.mu.Unlock()

	pc.timer.Stop()
	return true
}

// cancelPending clears whatever attempt is current.
func (r *Record) cancelPending() bool {
	r.mu.Lock()
	pc := r.pending
	r.pending = nil
	r.mu.Unlock()

	if pc == nil {
		return false
	}
	pc.timer.Stop()
	return true
}

func (r *Record) setDisconnecting(v bool) {
	r.mu.Lock()
	r.disconnecting = v
	r.mu.Unlock()
}

func (r *Record) takeDisconnecting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.disconnecting
	r.disconnecting = false
	return v
}
