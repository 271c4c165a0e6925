package slsi

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/soypat/slsi/fapi"
)

// sendRequest transmits sig without awaiting a confirmation. sendRequest
// always takes ownership of sig.
func (d *Device) sendRequest(sig *fapi.Signal) error {
	defer sig.Free()
	id := sig.ID()
	if d.closed.Load() {
		return ErrClosed
	}
	if d.failed.Load() {
		return ErrServiceFailed
	}
	d.metrics.request(id)
	if d.isTraceEnabled() {
		d.trace("tx", sigAttr("id", id), slog.Int("vif", int(sig.VIF())), slog.Int("len", sig.Len()))
	}
	if err := d.tr.Send(sig.Bytes()); err != nil {
		d.metrics.failure(id, "transport")
		d.logerr("tx:send", sigAttr("id", id), slog.String("err", err.Error()))
		return fmt.Errorf("%w: send %v: %v", ErrIO, id, err)
	}
	return nil
}

// validateFunc inspects a confirmation before an indication is awaited.
// It takes ownership of cfm. A non nil error ends the request cycle.
type validateFunc func(cfm *fapi.Signal) error

// reqCfm sends sig and waits for confirmation cfmID on w. The caller owns
// the returned confirmation.
func (d *Device) reqCfm(w *sigWait, sig *fapi.Signal, cfmID fapi.SignalID) (*fapi.Signal, error) {
	cfm, _, mibErr, err := d.txrx(w, sig, cfmID, 0, nil, 0)
	mibErr.Free()
	return cfm, err
}

// reqSet sends an MLME_SET_REQ on w. mibErr, when non nil, carries the
// entries the firmware rejected and is owned by the caller.
func (d *Device) reqSet(w *sigWait, sig *fapi.Signal) (cfm, mibErr *fapi.Signal, err error) {
	cfm, _, mibErr, err = d.txrx(w, sig, fapi.MLME_SET_CFM, 0, nil, 0)
	return cfm, mibErr, err
}

// reqCfmInd sends sig, waits for confirmation cfmID and, if validate
// accepts it, for indication indID. The caller owns the returned indication.
// A nil validate requires a successful result code.
func (d *Device) reqCfmInd(w *sigWait, sig *fapi.Signal, cfmID, indID fapi.SignalID, validate validateFunc, indTimeout time.Duration) (*fapi.Signal, error) {
	if validate == nil {
		validate = d.checkCfm
	}
	if indTimeout == 0 {
		indTimeout = d.cfg.IndicationTimeout
	}
	_, ind, _, err := d.txrx(w, sig, cfmID, indID, validate, indTimeout)
	return ind, err
}

// reqInd sends sig and waits only for indication indID.
func (d *Device) reqInd(w *sigWait, sig *fapi.Signal, indID fapi.SignalID) (*fapi.Signal, error) {
	_, ind, _, err := d.txrx(w, sig, 0, indID, nil, d.cfg.IndicationTimeout)
	return ind, err
}

// txrx runs one request cycle on w. It takes ownership of sig.
func (d *Device) txrx(w *sigWait, sig *fapi.Signal, cfmID, indID fapi.SignalID, validate validateFunc, indTimeout time.Duration) (cfm, ind, mibErr *fapi.Signal, err error) {
	id := sig.ID()
	if d.closed.Load() {
		sig.Free()
		return nil, nil, nil, ErrClosed
	}
	if d.failed.Load() {
		sig.Free()
		return nil, nil, nil, ErrServiceFailed
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	pid := w.begin(id, cfmID, indID)
	defer w.end()
	if indID == fapi.MLME_SCAN_DONE_IND {
		w.expectScanDone(sig.U16(fapi.AddScanReqScanID))
	}
	sig.SetSenderPID(pid)
	d.metrics.request(id)
	d.debug("txrx:send", sigAttr("id", id), slog.Int("vif", int(sig.VIF())), slog.Int("pid", int(pid)))
	start := time.Now()
	err = d.tr.Send(sig.Bytes())
	sig.Free()
	if err != nil {
		d.metrics.failure(id, "transport")
		d.logerr("txrx:send", sigAttr("id", id), slog.String("err", err.Error()))
		return nil, nil, nil, fmt.Errorf("%w: send %v: %v", ErrIO, id, err)
	}

	if cfmID != 0 {
		cfm = w.await(d.cfg.ConfirmTimeout, w.takeCfm)
		if cfm == nil {
			d.missingSignal(id, cfmID)
			return nil, nil, nil, fmt.Errorf("%w: %v: %w", ErrIO, cfmID, errMissingConfirm)
		}
		d.metrics.latency(start)
		d.trace("txrx:cfm", sigAttr("id", cfmID), slog.Int("result", int(cfm.Result())))
		if indID == 0 {
			if cfmID == fapi.MLME_SET_CFM {
				mibErr = w.takeMIBErr()
			}
			return cfm, nil, mibErr, nil
		}
		if err = validate(cfm); err != nil {
			w.dropInd()
			return nil, nil, nil, err
		}
		cfm = nil
	}

	ind = w.await(indTimeout, w.takeInd)
	if ind == nil {
		d.missingSignal(id, indID)
		return nil, nil, nil, fmt.Errorf("%w: %v: %w", ErrIO, indID, errMissingInd)
	}
	d.trace("txrx:ind", sigAttr("id", ind.ID()))
	return nil, ind, nil, nil
}

// missingSignal applies the missing confirmation policy. Indications that
// legitimately race with the firmware's own state changes are only logged.
func (d *Device) missingSignal(req, want fapi.SignalID) {
	d.metrics.failure(req, "timeout")
	switch want {
	case fapi.MLME_SCAN_DONE_IND, fapi.MLME_DISCONNECT_IND:
		d.warn("txrx:timeout-tolerated", sigAttr("req", req), sigAttr("want", want))
		return
	}
	d.logerr("txrx:timeout", sigAttr("req", req), sigAttr("want", want))
	if d.cfg.PanicOnMissingConfirm {
		d.serviceFailure("no " + want.String() + " for " + req.String())
	}
}

// checkCfm frees cfm and converts a failing result code to a *ResultError.
func (d *Device) checkCfm(cfm *fapi.Signal) error {
	defer cfm.Free()
	if r := cfm.Result(); !r.IsSuccess() {
		d.metrics.failure(cfm.ID(), "result")
		d.logerr("cfm:result", sigAttr("id", cfm.ID()), slog.String("result", r.String()))
		return &ResultError{Signal: cfm.ID(), Result: r}
	}
	return nil
}

// cfmResult is the common tail of builders that only care about success.
func (d *Device) cfmResult(cfm *fapi.Signal, err error) error {
	if err != nil {
		return err
	}
	return d.checkCfm(cfm)
}

// seal finishes a builder, mapping builder failures to ErrNoMemory.
func seal(b *fapi.Builder) (*fapi.Signal, error) {
	sig, err := b.Seal()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMemory, err)
	}
	return sig, nil
}
