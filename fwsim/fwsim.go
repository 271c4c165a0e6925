// Package fwsim is a scripted stand-in for the Wi-Fi SoC firmware. It
// implements the transport of an slsi.Device, records every signal the host
// sends and answers them according to per signal rules. Answers and
// injected indications are delivered from a single goroutine in order,
// the way a bus driver would deliver them.
package fwsim

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/soypat/slsi/fapi"
)

// Receiver is the host side sink of firmware signals, usually an *slsi.Device.
type Receiver interface {
	Receive(raw []byte) error
}

// Rule computes the answer to a host signal. req is only valid for the
// duration of the call. Returned signals are sent to the host in order.
type Rule func(req *fapi.Signal) []*fapi.Signal

var errClosed = errors.New("fwsim: closed")

// Firmware is the simulated SoC. The zero value is not usable, use New.
type Firmware struct {
	log *slog.Logger

	mu      sync.Mutex
	rules   map[fapi.SignalID]Rule
	reqs    []*fapi.Signal
	pending [][]byte
	busy    bool
	rx      Receiver
	closed  bool
	// kick wakes the delivery goroutine.
	kick chan struct{}
	// recorded is signaled after every recorded host signal.
	recorded chan struct{}
	done     chan struct{}
}

// New returns a firmware that confirms every request with SUCCESS until
// told otherwise. logger may be nil.
func New(logger *slog.Logger) *Firmware {
	return &Firmware{
		log:      logger,
		rules:    make(map[fapi.SignalID]Rule),
		kick:     make(chan struct{}, 1),
		recorded: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start begins delivering signals to rx.
func (f *Firmware) Start(rx Receiver) {
	f.mu.Lock()
	f.rx = rx
	f.mu.Unlock()
	go f.deliverLoop()
}

// Close stops the delivery goroutine and drops undelivered signals.
func (f *Firmware) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	started := f.rx != nil
	f.mu.Unlock()
	f.wake()
	if started {
		<-f.done
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reqs {
		r.Free()
	}
	f.reqs = nil
	f.pending = nil
	return nil
}

// Handle installs the rule answering signals with id, replacing any
// previous rule. A nil rule restores the default behaviour.
func (f *Firmware) Handle(id fapi.SignalID, rule Rule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rule == nil {
		delete(f.rules, id)
		return
	}
	f.rules[id] = rule
}

// Ignore makes the firmware swallow signals with id without answering.
func (f *Firmware) Ignore(id fapi.SignalID) {
	f.Handle(id, func(*fapi.Signal) []*fapi.Signal { return nil })
}

// Send implements the host transport. b is copied.
func (f *Firmware) Send(b []byte) error {
	req, err := fapi.FromBytes(b)
	if err != nil {
		return err
	}
	defer req.Free()
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errClosed
	}
	f.reqs = append(f.reqs, req.Clone())
	rule := f.rules[req.ID()]
	f.mu.Unlock()
	select {
	case f.recorded <- struct{}{}:
	default:
	}
	f.debug("fwsim:rx-host", slog.String("id", req.ID().String()), slog.Int("vif", int(req.VIF())), slog.Int("pid", int(req.SenderPID())))

	var out []*fapi.Signal
	if rule != nil {
		out = rule(req)
	} else {
		out = defaultAnswer(req)
	}
	f.Inject(out...)
	return nil
}

// defaultAnswer confirms requests successfully. Responses, data frames and
// requests the firmware never confirms get no answer.
func defaultAnswer(req *fapi.Signal) []*fapi.Signal {
	switch id := req.ID(); {
	case !id.IsReq():
		return nil
	case id == fapi.MA_UNITDATA_REQ, id == fapi.MLME_BLOCKACK_CONTROL_REQ:
		return nil
	case id == fapi.MLME_SEND_FRAME_REQ && req.SenderPID() == fapi.ProcessIDData:
		return nil
	}
	return []*fapi.Signal{Confirm(req, fapi.SUCCESS)}
}

// Inject queues signals for delivery to the host. Ownership of sigs moves
// to the firmware.
func (f *Firmware) Inject(sigs ...*fapi.Signal) {
	if len(sigs) == 0 {
		return
	}
	f.mu.Lock()
	for _, s := range sigs {
		if s == nil {
			continue
		}
		if !f.closed {
			f.pending = append(f.pending, bytes.Clone(s.Bytes()))
		}
		s.Free()
	}
	f.mu.Unlock()
	f.wake()
}

func (f *Firmware) wake() {
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

func (f *Firmware) deliverLoop() {
	defer close(f.done)
	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return
		}
		if len(f.pending) == 0 {
			f.mu.Unlock()
			<-f.kick
			continue
		}
		raw := f.pending[0]
		f.pending = f.pending[1:]
		f.busy = true
		rx := f.rx
		f.mu.Unlock()
		if err := rx.Receive(raw); err != nil {
			f.debug("fwsim:deliver", slog.String("err", err.Error()))
		}
		f.mu.Lock()
		f.busy = false
		f.mu.Unlock()
	}
}

// Requests returns copies of the host signals with id received so far,
// all of them when id is zero. The caller owns the returned signals.
func (f *Firmware) Requests(id fapi.SignalID) []*fapi.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fapi.Signal
	for _, r := range f.reqs {
		if id == 0 || r.ID() == id {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Count returns how many host signals with id were received.
func (f *Firmware) Count(id fapi.SignalID) (n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reqs {
		if r.ID() == id {
			n++
		}
	}
	return n
}

// WaitCount blocks until at least n signals with id were received or ctx is done.
func (f *Firmware) WaitCount(ctx context.Context, id fapi.SignalID, n int) error {
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for f.Count(id) < n {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.recorded:
		case <-tick.C:
		}
	}
	return nil
}

// Idle blocks until every queued signal was handed to the host.
func (f *Firmware) Idle(ctx context.Context) error {
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		f.mu.Lock()
		idle := len(f.pending) == 0 && !f.busy
		f.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

func (f *Firmware) debug(msg string, attrs ...slog.Attr) {
	if f.log != nil {
		f.log.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}
