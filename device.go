package slsi

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/soypat/slsi/fapi"
	"github.com/soypat/slsi/internal/lockorder"
)

// MaxVIFs is the number of virtual interfaces the firmware multiplexes.
// Interface numbers run from 1 to MaxVIFs, 0 addresses the device.
const MaxVIFs = 8

// Transport carries signals to the firmware. Send must not retain b after it
// returns. Signals from the firmware are handed to Device.Receive.
type Transport interface {
	Send(b []byte) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(b []byte) error

func (f TransportFunc) Send(b []byte) error { return f(b) }

type Config struct {
	// ConfirmTimeout bounds the wait for a confirmation.
	ConfirmTimeout time.Duration
	// IndicationTimeout bounds the wait for an indication following a confirmation.
	IndicationTimeout time.Duration
	// ScanDoneTimeout bounds synchronous scans waiting on MLME_SCAN_DONE_IND.
	// Coexistence with Bluetooth can delay scans considerably.
	ScanDoneTimeout time.Duration
	// ScanTimeout arms the watchdog of asynchronous scans.
	ScanTimeout time.Duration
	// PanicOnMissingConfirm declares the firmware dead when an awaited
	// confirmation or indication does not arrive.
	PanicOnMissingConfirm bool
	// MaxScanResults caps the results delivered per scan. Further results are purged.
	MaxScanResults int
	// MaxAPClients bounds the firmware assigned peer index on AP vifs.
	MaxAPClients int
	// P2PUnsyncVifLinger is how long an unsynchronised vif is kept after its
	// last off-channel action frame.
	P2PUnsyncVifLinger time.Duration
	// RXQueueLen is the initial capacity of the indication backlog.
	RXQueueLen int
	Logger     *slog.Logger
	// Registerer receives the device metrics. Nil disables registration.
	Registerer prometheus.Registerer
	// Notifier receives upper stack events. Nil discards them.
	Notifier Notifier
	// OnServiceFailure is called once when the firmware is declared dead.
	OnServiceFailure func(reason string)
}

func DefaultConfig() Config {
	return Config{
		ConfirmTimeout:        6 * time.Second,
		IndicationTimeout:     6 * time.Second,
		ScanDoneTimeout:       40 * time.Second,
		ScanTimeout:           60 * time.Second,
		PanicOnMissingConfirm: true,
		MaxScanResults:        200,
		MaxAPClients:          10,
		P2PUnsyncVifLinger:    time.Second,
		RXQueueLen:            64,
	}
}

// Device is the process wide MLME context. All methods are safe for
// concurrent use.
type Device struct {
	// netdevMu guards vif addition and removal. It is the outermost lock.
	netdevMu lockorder.Mutex
	cfg      Config
	tr       Transport
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics
	global   *sigWait
	vifs     [MaxVIFs + 1]atomic.Pointer[VIF]
	// ssidMapMu guards ssidMap and nests inside every vif lock.
	ssidMapMu lockorder.Mutex
	ssidMap   []ssidMapEntry

	failed    atomic.Bool
	closed    atomic.Bool
	hostTag   atomic.Uint32
	rxq       rxQueue
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	ethmu  sync.Mutex
	rcvEth func(vif uint16, pkt []byte) error

	_traceenabled bool
}

// New returns a Device sending over tr. Zero fields of cfg take their
// DefaultConfig value. The caller must call Close to stop the RX worker.
func New(tr Transport, cfg Config) (*Device, error) {
	if tr == nil {
		return nil, errors.New("slsi: nil transport")
	}
	def := DefaultConfig()
	setDefault(&cfg.ConfirmTimeout, def.ConfirmTimeout)
	setDefault(&cfg.IndicationTimeout, def.IndicationTimeout)
	setDefault(&cfg.ScanDoneTimeout, def.ScanDoneTimeout)
	setDefault(&cfg.ScanTimeout, def.ScanTimeout)
	setDefault(&cfg.MaxScanResults, def.MaxScanResults)
	setDefault(&cfg.MaxAPClients, def.MaxAPClients)
	setDefault(&cfg.P2PUnsyncVifLinger, def.P2PUnsyncVifLinger)
	setDefault(&cfg.RXQueueLen, def.RXQueueLen)
	if cfg.MaxAPClients > maxPeerIndex {
		return nil, errors.New("slsi: MaxAPClients too large")
	}
	d := &Device{
		cfg:      cfg,
		tr:       tr,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		metrics:  newMetrics(),
		global:   newSigWait(),
		done:     make(chan struct{}),
		ssidMap:  make([]ssidMapEntry, 0, ssidMapMax),
	}
	if d.notifier == nil {
		d.notifier = NotifierFunc(func(Event) {})
	}
	d._traceenabled = d.logger != nil && d.logger.Handler().Enabled(context.Background(), levelTrace)
	d.rxq.init(cfg.RXQueueLen)
	if cfg.Registerer != nil {
		if err := d.metrics.register(cfg.Registerer); err != nil {
			return nil, err
		}
	}
	d.wg.Add(1)
	go d.rxLoop()
	d.info("New:done", slog.Duration("cfm-timeout", cfg.ConfirmTimeout), slog.Bool("panic-on-missing", cfg.PanicOnMissingConfirm))
	return d, nil
}

func setDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}

// Close stops the RX worker and releases all cached signals. It does not
// issue requests to the firmware.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
		d.netdevMu.Lock()
		for i := range d.vifs {
			if v := d.vifs[i].Swap(nil); v != nil {
				v.mu.Lock()
				v.teardownLocal()
				v.mu.Unlock()
			}
		}
		d.netdevMu.Unlock()
		d.info("Close:done")
	})
	return nil
}

// Failed reports whether the firmware has been declared dead.
func (d *Device) Failed() bool { return d.failed.Load() }

// serviceFailure latches the fatal path. Requests fail with
// ErrServiceFailed afterwards.
func (d *Device) serviceFailure(reason string) {
	if !d.failed.CompareAndSwap(false, true) {
		return
	}
	d.metrics.serviceFailed.Set(1)
	d.logerr("service-failure", slog.String("reason", reason))
	if fn := d.cfg.OnServiceFailure; fn != nil {
		fn(reason)
	}
}

// VIF returns the interface with number ifnum or nil.
func (d *Device) VIF(ifnum uint16) *VIF {
	if ifnum == 0 || ifnum > MaxVIFs {
		return nil
	}
	return d.vifs[ifnum].Load()
}

func (d *Device) notify(ev Event) { d.notifier.Notify(ev) }

// nextHostTag returns a tag for correlating frame transmission
// indications. Never zero.
func (d *Device) nextHostTag() uint16 {
	for {
		if t := uint16(d.hostTag.Add(1)); t != 0 {
			return t
		}
	}
}

// Receive hands a signal from the firmware to the device. Receive takes
// ownership of raw. Confirmations and indications awaited by a request are
// delivered to it directly, scan indications are cached in the calling
// goroutine and all other signals are queued for the RX worker.
func (d *Device) Receive(raw []byte) error {
	if d.closed.Load() {
		return ErrClosed
	}
	sig, err := fapi.Parse(raw)
	if err != nil {
		d.warn("rx:parse", slog.String("err", err.Error()), slog.Int("len", len(raw)))
		return err
	}
	id := sig.ID()
	d.metrics.rx(id)
	if d.isTraceEnabled() {
		d.trace("rx", sigAttr("id", id), slog.Int("vif", int(sig.VIF())), slog.Int("pid", int(sig.ReceiverPID())), slog.Int("len", sig.Len()))
	}
	w := d.global
	if ifnum := sig.VIF(); ifnum != 0 {
		v := d.VIF(ifnum)
		if v == nil {
			d.warn("rx:unknown-vif", sigAttr("id", id), slog.Int("vif", int(ifnum)))
			sig.Free()
			return errUnknownVIF
		}
		w = v.wait
	}
	if id.IsCfm() || id.IsInd() {
		switch w.deliver(sig) {
		case delivered:
			return nil
		case stale:
			d.dropStale(sig)
			return nil
		}
	}
	switch {
	case id.IsCfm():
		d.dropStale(sig)
	case id == fapi.MLME_SCAN_IND:
		d.rxScanInd(sig)
	default:
		d.rxq.push(rxItem{sig: sig})
	}
	return nil
}

// dropStale frees a signal no request is waiting for. Send frame
// confirmations routinely race with data plane sends and are not reported.
func (d *Device) dropStale(sig *fapi.Signal) {
	id := sig.ID()
	if id != fapi.MLME_SEND_FRAME_CFM && id != fapi.MA_UNITDATA_CFM {
		d.metrics.stale.Inc()
		d.warn("rx:stale", sigAttr("id", id), slog.Int("vif", int(sig.VIF())), slog.Int("pid", int(sig.ReceiverPID())))
	}
	sig.Free()
}

// Sync blocks until every signal received before the call has been handled.
func (d *Device) Sync() error {
	done := make(chan struct{})
	d.rxq.push(rxItem{barrier: done})
	select {
	case <-done:
		return nil
	case <-d.done:
		return ErrClosed
	}
}

type rxItem struct {
	sig     *fapi.Signal
	barrier chan struct{}
}

// rxQueue is the unbounded backlog between Receive and the RX worker.
// Receive never blocks on a handler that may itself wait for a confirmation.
type rxQueue struct {
	mu    sync.Mutex
	items []rxItem
	ready chan struct{}
}

func (q *rxQueue) init(n int) {
	q.items = make([]rxItem, 0, n)
	q.ready = make(chan struct{}, 1)
}

func (q *rxQueue) push(it rxItem) {
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *rxQueue) pop() (it rxItem, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return it, false
	}
	it = q.items[0]
	n := copy(q.items, q.items[1:])
	q.items[n] = rxItem{}
	q.items = q.items[:n]
	return it, true
}

func (d *Device) rxLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.rxq.ready:
		case <-d.done:
			for {
				it, ok := d.rxq.pop()
				if !ok {
					return
				}
				it.sig.Free()
			}
		}
		for {
			it, ok := d.rxq.pop()
			if !ok {
				break
			}
			if it.barrier != nil {
				close(it.barrier)
				continue
			}
			d.dispatch(it.sig)
		}
	}
}
