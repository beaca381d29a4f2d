package device

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattcache/internal/dispatch"
	"github.com/srg/gattcache/pkg/config"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Registry is the root of the cache: the staged and ignored endpoint lists, the
// committed peripherals, connect/disconnect control and the terminal sink of the
// upward reporting chain. All mutation runs on the owner executor; every delegate
// call is posted to the delivery executor.
type Registry struct {
	transport      Transport
	delegate       Delegate
	factories      *Factories
	owner          dispatch.Executor
	delivery       dispatch.Executor
	queues         []*dispatch.Queue
	afterFunc      AfterFunc
	now            func() time.Time
	logger         *logrus.Logger
	policy         config.ScanPolicy
	connectTimeout time.Duration

	// Written only on the owner executor; mu lets other goroutines take snapshots.
	mu        sync.RWMutex
	staged    *orderedmap.OrderedMap[string, *Record]
	ignored   *orderedmap.OrderedMap[string, *Record]
	committed *orderedmap.OrderedMap[string, *Peripheral]
	scanning  bool
	tokens    uint64

	// owed tracks, per endpoint id, transport events still due for attempts and
	// links the registry already let go of. Owner executor only.
	owed map[string]*owedEvents

	// known indexes every staged and ignored record by id for lock-free lookups.
	known *hashmap.Map[string, *Record]
}

// Option configures a Registry.
type Option func(*Registry)

// WithDelegate installs the application callback surface.
func WithDelegate(d Delegate) Option {
	return func(r *Registry) { r.delegate = d }
}

// WithExecutors replaces the owner and delivery queues, e.g. with dispatch.Inline in tests.
func WithExecutors(owner, delivery dispatch.Executor) Option {
	return func(r *Registry) {
		r.owner = owner
		r.delivery = delivery
	}
}

// WithFactories replaces the default specialization registry.
func WithFactories(f *Factories) Option {
	return func(r *Registry) { r.factories = f }
}

// WithAfterFunc replaces the connect timeout timer source.
func WithAfterFunc(f AfterFunc) Option {
	return func(r *Registry) { r.afterFunc = f }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry wires a registry to transport. A nil cfg means config.Default().
func NewRegistry(transport Transport, cfg *config.Config, opts ...Option) *Registry {
	if cfg == nil {
		cfg = config.Default()
	}
	r := &Registry{
		transport:      transport,
		delegate:       NopDelegate{},
		afterFunc:      systemAfterFunc,
		now:            time.Now,
		policy:         cfg.Scan,
		connectTimeout: cfg.ConnectTimeout,
		staged:         orderedmap.New[string, *Record](),
		ignored:        orderedmap.New[string, *Record](),
		committed:      orderedmap.New[string, *Peripheral](),
		known:          hashmap.New[string, *Record](),
		owed:           make(map[string]*owedEvents),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.delegate == nil {
		r.delegate = NopDelegate{}
	}
	if r.logger == nil {
		r.logger = cfg.NewLogger()
	}
	if r.factories == nil {
		r.factories = DefaultFactories()
	}
	if r.owner == nil {
		q := dispatch.NewQueue(context.Background(), "gattcache-owner", 0, r.logger)
		r.owner = q
		r.queues = append(r.queues, q)
	}
	if r.delivery == nil {
		q := dispatch.NewQueue(context.Background(), "gattcache-delivery", cfg.DeliveryQueueSize, r.logger)
		r.delivery = q
		r.queues = append(r.queues, q)
	}

	transport.SetDelegate(&transportEvents{r: r})
	return r
}

// Close stops the queues the registry created. Pending delegate calls still run.
func (r *Registry) Close() {
	for _, q := range r.queues {
		q.Close()
	}
}

// SetDelegate swaps the delegate; later callbacks go to d.
func (r *Registry) SetDelegate(d Delegate) error {
	if d == nil {
		d = NopDelegate{}
	}
	return dispatch.Sync(r.owner, func() { r.delegate = d })
}

// Factories returns the specialization registry used for newly discovered nodes.
func (r *Registry) Factories() *Factories {
	return r.factories
}

// Policy returns the scan policy in effect.
func (r *Registry) Policy() config.ScanPolicy {
	return r.policy
}

// ---------------------------------------------------------------------------
// Scanning
// ---------------------------------------------------------------------------

// StartScanning asks the transport to scan with the policy's service filter.
func (r *Registry) StartScanning() error {
	var err error
	if serr := dispatch.Sync(r.owner, func() { err = r.startScanning() }); serr != nil {
		return serr
	}
	return err
}

// StopScanning stops an active scan.
func (r *Registry) StopScanning() error {
	var err error
	if serr := dispatch.Sync(r.owner, func() { err = r.stopScanning() }); serr != nil {
		return serr
	}
	return err
}

// IsScanning reports whether a scan is active.
func (r *Registry) IsScanning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scanning
}

func (r *Registry) startScanning() error {
	filter := NormalizeUUIDs(r.policy.ServiceUUIDs)
	if err := r.transport.Scan(filter, !r.policy.DuplicateFiltering); err != nil {
		return fmt.Errorf("failed to start scan: %w", err)
	}
	r.setScanning(true)
	r.logger.WithFields(logrus.Fields{
		"services":            filter,
		"duplicate_filtering": r.policy.DuplicateFiltering,
	}).Info("Scanning started")
	return nil
}

func (r *Registry) stopScanning() error {
	if !r.IsScanning() {
		return nil
	}
	r.setScanning(false)
	if err := r.transport.StopScan(); err != nil {
		return fmt.Errorf("failed to stop scan: %w", err)
	}
	r.logger.Info("Scanning stopped")
	return nil
}

func (r *Registry) setScanning(v bool) {
	r.mu.Lock()
	r.scanning = v
	r.mu.Unlock()
}

func (r *Registry) didDiscover(h PeripheralHandle, adv Advertisement, rssi int) {
	id := h.ID()
	now := r.now()

	r.mu.Lock()
	if rec, ok := r.staged.Get(id); ok {
		r.mu.Unlock()
		// Rediscovery updates in place whatever the filters say now.
		rec.update(adv, rssi, now)
		r.recalculate()
		return
	}
	if rec, ok := r.ignored.Get(id); ok {
		r.mu.Unlock()
		rec.update(adv, rssi, now)
		return
	}
	if reason := r.rejectReason(id, adv, rssi); reason != "" {
		r.mu.Unlock()
		r.logger.WithFields(logrus.Fields{
			"id":     id,
			"name":   adv.Name,
			"rssi":   rssi,
			"reason": reason,
		}).Debug("Advertisement filtered")
		return
	}
	rec := newRecord(r, h, adv, rssi, now)
	r.staged.Set(id, rec)
	r.known.Set(id, rec)
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"id":   id,
		"name": adv.Name,
		"rssi": rssi,
	}).Info("Discovered new endpoint")
	r.recalculate()
}

// rejectReason applies the staging filters in order: empty name, signal floor,
// connectability, endpoint allow-list.
func (r *Registry) rejectReason(id string, adv Advertisement, rssi int) string {
	p := r.policy
	switch {
	case adv.Name == "" && !p.AllowEmptyNames:
		return "empty name"
	case rssi < p.MinimumRSSI:
		return "signal below floor"
	case p.ConnectableOnly && !adv.Connectable:
		return "not connectable"
	case len(p.EndpointAllowList) > 0 && !containsFold(p.EndpointAllowList, id):
		return "not in allow-list"
	}
	return ""
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Lists
// ---------------------------------------------------------------------------

// Staged returns the staged records in discovery order.
func (r *Registry) Staged() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return values(r.staged)
}

// Ignored returns the ignored records in the order they were ignored.
func (r *Registry) Ignored() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return values(r.ignored)
}

// Committed returns the peripherals whose discovery cascade has completed.
func (r *Registry) Committed() []*Peripheral {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return values(r.committed)
}

// Lookup finds a staged or ignored record by endpoint id. Safe from any goroutine.
func (r *Registry) Lookup(id string) (*Record, bool) {
	return r.known.Get(id)
}

func values[V any](m *orderedmap.OrderedMap[string, V]) []V {
	out := make([]V, 0, m.Len())
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Ignore moves a staged record to the ignored list. Returns false when the record is
// not staged, or is connected or connecting.
func (r *Registry) Ignore(rec *Record) bool {
	var ok bool
	_ = dispatch.Sync(r.owner, func() { ok = r.ignore(rec) })
	return ok
}

// Unignore moves an ignored record back to the staged list. Returns false when the
// record is not ignored.
func (r *Registry) Unignore(rec *Record) bool {
	var ok bool
	_ = dispatch.Sync(r.owner, func() { ok = r.unignore(rec) })
	return ok
}

func (r *Registry) ignore(rec *Record) bool {
	if rec == nil || rec.IsConnected() || rec.IsConnecting() {
		return false
	}
	r.mu.Lock()
	if cur, ok := r.staged.Get(rec.id); !ok || cur != rec {
		r.mu.Unlock()
		return false
	}
	r.staged.Delete(rec.id)
	r.ignored.Set(rec.id, rec)
	r.mu.Unlock()

	r.logger.WithField("id", rec.id).Debug("Endpoint ignored")
	r.recalculate()
	return true
}

func (r *Registry) unignore(rec *Record) bool {
	if rec == nil {
		return false
	}
	r.mu.Lock()
	if cur, ok := r.ignored.Get(rec.id); !ok || cur != rec {
		r.mu.Unlock()
		return false
	}
	r.ignored.Delete(rec.id)
	r.staged.Set(rec.id, rec)
	r.mu.Unlock()

	r.logger.WithField("id", rec.id).Debug("Endpoint unignored")
	r.recalculate()
	return true
}

// StartOver forgets every endpoint. Connected peripherals are cleared and
// disconnected, pending attempts cancelled, and scanning restarted if it was active.
func (r *Registry) StartOver() error {
	var err error
	if serr := dispatch.Sync(r.owner, func() { err = r.startOver() }); serr != nil {
		return serr
	}
	return err
}

func (r *Registry) startOver() error {
	wasScanning := r.IsScanning()
	if wasScanning {
		if err := r.stopScanning(); err != nil {
			r.logger.WithField("error", err).Warn("Failed to stop scan during start over")
		}
	}

	r.mu.Lock()
	records := append(values(r.staged), values(r.ignored)...)
	r.staged = orderedmap.New[string, *Record]()
	r.ignored = orderedmap.New[string, *Record]()
	r.committed = orderedmap.New[string, *Peripheral]()
	r.mu.Unlock()

	for _, rec := range records {
		r.known.Del(rec.id)
		pending := rec.cancelPending()
		if pending {
			r.owe(rec.id).outcomes++
		}
		p := rec.Peripheral()
		if p != nil {
			p.clear()
			rec.setPeripheral(nil)
		}
		if p != nil || pending {
			if err := r.transport.Disconnect(rec.handle); err != nil {
				r.logger.WithFields(logrus.Fields{
					"id":    rec.id,
					"error": err,
				}).Warn("Failed to disconnect during start over")
			} else if p != nil {
				r.owe(rec.id).disconnects++
			}
		}
	}

	r.logger.WithField("records", len(records)).Info("Registry reset")
	r.recalculate()

	if wasScanning {
		return r.startScanning()
	}
	return nil
}

// ---------------------------------------------------------------------------
// Connection
// ---------------------------------------------------------------------------

// Connect starts a connect attempt for a staged record. It fails fast with
// ErrAlreadyConnected, ErrConnecting or a NotFoundError. The outcome arrives later
// as OnConnected, or as OnError with a timeout or internal error.
func (r *Registry) Connect(rec *Record) error {
	var err error
	if serr := dispatch.Sync(r.owner, func() { err = r.connect(rec) }); serr != nil {
		return serr
	}
	return err
}

func (r *Registry) connect(rec *Record) error {
	if rec == nil {
		return &NotFoundError{Resource: "endpoint"}
	}
	if rec.IsConnected() {
		return ErrAlreadyConnected
	}
	r.mu.RLock()
	cur, ok := r.staged.Get(rec.id)
	r.mu.RUnlock()
	if !ok || cur != rec {
		return &NotFoundError{Resource: "endpoint", IDs: []string{rec.id}}
	}
	if rec.IsConnecting() {
		return ErrConnecting
	}

	r.tokens++
	token := r.tokens
	timer := r.afterFunc(r.connectTimeout, func() {
		r.owner.Post(func() { r.connectTimedOut(rec, token) })
	})
	rec.setPending(&pendingConnect{token: token, timer: timer})

	if err := r.transport.Connect(rec.handle); err != nil {
		rec.takePending(token)
		return fmt.Errorf("failed to connect to %s: %w", rec.id, err)
	}

	r.logger.WithFields(logrus.Fields{
		"id":      rec.id,
		"timeout": r.connectTimeout,
	}).Info("Connecting...")
	r.recalculate()
	return nil
}

func (r *Registry) connectTimedOut(rec *Record, token uint64) {
	if !rec.takePending(token) {
		return
	}
	r.owe(rec.id).outcomes++

	r.logger.WithFields(logrus.Fields{
		"id":      rec.id,
		"timeout": r.connectTimeout,
	}).Warn("Connect attempt timed out")
	if err := r.transport.Disconnect(rec.handle); err != nil {
		r.logger.WithField("error", err).Debug("Failed to cancel timed out connect")
	}
	r.reportError(NewTimeoutError(rec.id))
	r.recalculate()
}

// owedEvents counts the events the transport still delivers for one endpoint
// after the registry gave up on them: connect outcomes of timed out or cancelled
// attempts, and disconnections of links nobody owns any more. Transports answer
// the attempts of one endpoint in order, so the oldest owed event is the one
// arriving.
type owedEvents struct {
	outcomes    int
	disconnects int
}

func (r *Registry) owe(id string) *owedEvents {
	o, ok := r.owed[id]
	if !ok {
		o = &owedEvents{}
		r.owed[id] = o
	}
	return o
}

// settleOutcome consumes one owed connect outcome for id.
func (r *Registry) settleOutcome(id string) bool {
	o, ok := r.owed[id]
	if !ok || o.outcomes == 0 {
		return false
	}
	o.outcomes--
	r.forgetSettled(id, o)
	return true
}

// settleDisconnect consumes one owed disconnection for id.
func (r *Registry) settleDisconnect(id string) bool {
	o, ok := r.owed[id]
	if !ok || o.disconnects == 0 {
		return false
	}
	o.disconnects--
	r.forgetSettled(id, o)
	return true
}

func (r *Registry) forgetSettled(id string, o *owedEvents) {
	if o.outcomes == 0 && o.disconnects == 0 {
		delete(r.owed, id)
	}
}

func (r *Registry) didConnect(h PeripheralHandle) {
	if r.settleOutcome(h.ID()) {
		// The attempt was cancelled at the transport, so its link is going down too.
		r.owe(h.ID()).disconnects++
		r.logger.WithField("id", h.ID()).Debug("Dropping connect outcome of an abandoned attempt")
		return
	}
	rec, ok := r.known.Get(h.ID())
	if !ok {
		r.logger.WithField("id", h.ID()).Warn("Connect event for unknown endpoint")
		return
	}
	if !rec.cancelPending() {
		r.logger.WithField("id", rec.id).Warn("Ignoring stale connect event")
		return
	}

	p := newPeripheral(r, rec)
	rec.setPeripheral(p)
	r.logger.WithField("id", rec.id).Info("Connected, discovering attribute tree")
	r.recalculate()
	p.startOver()
}

func (r *Registry) didFailToConnect(h PeripheralHandle, err error) {
	if r.settleOutcome(h.ID()) {
		r.logger.WithFields(logrus.Fields{
			"id":    h.ID(),
			"error": err,
		}).Debug("Dropping connect outcome of an abandoned attempt")
		return
	}
	rec, ok := r.known.Get(h.ID())
	if !ok {
		return
	}
	if !rec.cancelPending() {
		r.logger.WithField("id", rec.id).Warn("Ignoring stale connect failure")
		return
	}

	r.logger.WithFields(logrus.Fields{
		"id":    rec.id,
		"error": err,
	}).Error("Failed to connect")
	r.reportError(WrapError(LevelEndpoint, rec.id, err))
	r.recalculate()
}

// Disconnect asks the transport to drop a connected record. A record with a
// pending connect attempt has the attempt cancelled instead.
func (r *Registry) Disconnect(rec *Record) error {
	var err error
	if serr := dispatch.Sync(r.owner, func() { err = r.disconnect(rec) }); serr != nil {
		return serr
	}
	return err
}

func (r *Registry) disconnect(rec *Record) error {
	if rec == nil {
		return ErrNotConnected
	}
	p := rec.Peripheral()
	if p == nil {
		if rec.cancelPending() {
			r.owe(rec.id).outcomes++
			r.logger.WithField("id", rec.id).Info("Connect attempt cancelled")
			if err := r.transport.Disconnect(rec.handle); err != nil {
				return fmt.Errorf("failed to cancel connect to %s: %w", rec.id, err)
			}
			r.recalculate()
			return nil
		}
		return ErrNotConnected
	}

	rec.setDisconnecting(true)
	r.deliver(func(d Delegate) { d.OnWillDisconnect(p) })
	if err := r.transport.Disconnect(rec.handle); err != nil {
		rec.setDisconnecting(false)
		return fmt.Errorf("failed to disconnect from %s: %w", rec.id, err)
	}
	r.logger.WithField("id", rec.id).Info("Disconnecting...")
	return nil
}

func (r *Registry) didDisconnect(h PeripheralHandle, err error) {
	if r.settleDisconnect(h.ID()) {
		r.logger.WithField("id", h.ID()).Debug("Released link of an abandoned attempt")
		return
	}
	rec, ok := r.known.Get(h.ID())
	if !ok {
		return
	}
	requested := rec.takeDisconnecting()

	p := rec.Peripheral()
	if p == nil {
		if rec.cancelPending() {
			if err == nil {
				err = ErrNotConnected
			}
			r.logger.WithFields(logrus.Fields{
				"id":    rec.id,
				"error": err,
			}).Error("Link dropped before the connect attempt completed")
			r.reportError(WrapError(LevelEndpoint, rec.id, err))
			r.recalculate()
		}
		return
	}
	if !requested {
		r.logger.WithFields(logrus.Fields{
			"id":    rec.id,
			"error": err,
		}).Warn("Peripheral disconnected unexpectedly")
		r.reportError(NewUnexpectedDisconnectionError(rec.id, err))
	}

	p.clear()
	r.mu.Lock()
	r.committed.Delete(rec.id)
	r.mu.Unlock()
	rec.setPeripheral(nil)

	r.logger.WithField("id", rec.id).Info("Disconnected")
	r.recalculate()
}

// ReadSignalStrength requests a fresh RSSI reading for a connected record.
func (r *Registry) ReadSignalStrength(rec *Record) error {
	if rec == nil || rec.Peripheral() == nil {
		return ErrNotConnected
	}
	return r.transport.ReadSignalStrength(rec.handle)
}

func (r *Registry) didReadRSSI(h PeripheralHandle, rssi int, err error) {
	rec, ok := r.known.Get(h.ID())
	if !ok {
		return
	}
	p := rec.Peripheral()
	if err != nil {
		if p != nil {
			p.reportError(err)
		} else {
			r.reportError(WrapError(LevelEndpoint, rec.id, err))
		}
		return
	}
	rec.setRSSI(rssi)
	if p != nil {
		r.reportDeviceChanged(p)
		return
	}
	r.recalculate()
}

func (r *Registry) radioStateChanged(state RadioState) {
	r.logger.WithField("state", state).Info("Radio state changed")
	if state == RadioPoweredOn {
		r.deliver(func(d Delegate) { d.OnRadioAvailable() })
		return
	}
	r.setScanning(false)
}

// register is called once per connection, when the peripheral's first cascade commits.
func (r *Registry) register(p *Peripheral) {
	r.mu.Lock()
	r.committed.Set(p.ID(), p)
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"id":       p.ID(),
		"services": len(p.Services()),
	}).Info("Peripheral ready")
	r.deliver(func(d Delegate) { d.OnConnected(p) })
	r.recalculate()
}

func (r *Registry) peripheralFor(h PeripheralHandle) *Peripheral {
	rec, ok := r.known.Get(h.ID())
	if !ok {
		return nil
	}
	return rec.Peripheral()
}

// ---------------------------------------------------------------------------
// Terminal reporting
// ---------------------------------------------------------------------------

func (r *Registry) deliver(fn func(Delegate)) {
	d := r.delegate
	r.delivery.Post(func() { fn(d) })
}

func (r *Registry) recalculate() {
	r.deliver(func(d Delegate) { d.OnRecalculate() })
}

func (r *Registry) reportError(err error) {
	r.logger.WithField("error", err).Debug("Reporting error")
	r.deliver(func(d Delegate) { d.OnError(err) })
}

func (r *Registry) reportDeviceChanged(p *Peripheral) {
	r.deliver(func(d Delegate) { d.OnDeviceChanged(p) })
}

func (r *Registry) reportServiceChanged(p *Peripheral, s ServiceNode) {
	r.deliver(func(d Delegate) { d.OnServiceChanged(p, s) })
}

func (r *Registry) reportCharacteristicChanged(p *Peripheral, s ServiceNode, c CharacteristicNode) {
	r.deliver(func(d Delegate) { d.OnCharacteristicChanged(p, s, c) })
}

func (r *Registry) reportNotifyStateChanged(p *Peripheral, s ServiceNode, c CharacteristicNode) {
	r.deliver(func(d Delegate) { d.OnCharacteristicNotifyStateChanged(p, s, c) })
}

func (r *Registry) reportWriteComplete(p *Peripheral, s ServiceNode, c CharacteristicNode) {
	r.deliver(func(d Delegate) { d.OnCharacteristicWriteComplete(p, s, c) })
}

func (r *Registry) reportDescriptorChanged(p *Peripheral, s ServiceNode, c CharacteristicNode, desc DescriptorNode) {
	r.deliver(func(d Delegate) { d.OnDescriptorChanged(p, s, c, desc) })
}
