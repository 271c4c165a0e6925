package slsi

import (
	"sync"
	"time"

	"github.com/soypat/slsi/fapi"
	"github.com/soypat/slsi/internal/lockorder"
)

// sigWait correlates one outstanding request with its confirmation and
// indication. There is one per vif and one for the device.
//
// mu is held by the requester for the whole request cycle, so at most one
// request is ever outstanding. spin guards the fields below it and is only
// held to inspect or swap them, never across a wait.
type sigWait struct {
	mu lockorder.Mutex

	spin  sync.Mutex
	pid   uint16
	reqID fapi.SignalID
	cfmID fapi.SignalID
	indID fapi.SignalID
	// scanID is the scan id an awaited MLME_SCAN_DONE_IND must carry.
	scanID uint16
	// Delivered payloads. Owned by the waiter once set.
	cfm    *fapi.Signal
	ind    *fapi.Signal
	mibErr *fapi.Signal
	// wake is signaled at least once per delivery in the current cycle.
	wake chan struct{}
}

func newSigWait() *sigWait {
	// First request wraps to ProcessIDMin.
	return &sigWait{pid: fapi.ProcessIDMax}
}

// nextPID advances the process id within [ProcessIDMin, ProcessIDMax].
// Zero is reserved for idle. Called with spin held.
func (w *sigWait) nextPID() uint16 {
	if w.pid < fapi.ProcessIDMin || w.pid >= fapi.ProcessIDMax {
		w.pid = fapi.ProcessIDMin
	} else {
		w.pid++
	}
	return w.pid
}

// begin opens a request cycle and returns the process id to tag the request with.
func (w *sigWait) begin(req, cfm, ind fapi.SignalID) uint16 {
	w.mu.AssertHeld()
	w.spin.Lock()
	defer w.spin.Unlock()
	if w.reqID != 0 {
		panic("slsi: request " + req.String() + " issued while " + w.reqID.String() + " outstanding")
	}
	w.reqID = req
	w.cfmID = cfm
	w.indID = ind
	w.wake = make(chan struct{}, 1)
	return w.nextPID()
}

// expectScanDone restricts the awaited scan done indication to scan id.
// Scans of every vif share the device context.
func (w *sigWait) expectScanDone(id uint16) {
	w.spin.Lock()
	w.scanID = id
	w.spin.Unlock()
}

// end closes the cycle. Payloads that were delivered but not taken are freed
// and any later arrival is no longer matched.
func (w *sigWait) end() {
	w.spin.Lock()
	w.reqID, w.cfmID, w.indID = 0, 0, 0
	w.scanID = 0
	cfm, ind, mibErr := w.cfm, w.ind, w.mibErr
	w.cfm, w.ind, w.mibErr = nil, nil, nil
	w.spin.Unlock()
	cfm.Free()
	ind.Free()
	mibErr.Free()
}

// deliverResult is the outcome of offering a received signal to a sigWait.
type deliverResult uint8

const (
	notMatched deliverResult = iota // Signal is not awaited, dispatch it.
	delivered                       // Ownership moved to the waiter.
	stale                           // Awaited id with foreign process id.
)

// deliver offers sig to the outstanding request. The special case of
// MLME_DISCONNECTED_IND standing in for MLME_DISCONNECT_IND is accepted.
// Scan done indications of other scans are left to the dispatcher.
func (w *sigWait) deliver(sig *fapi.Signal) deliverResult {
	id := sig.ID()
	pid := sig.ReceiverPID()
	w.spin.Lock()
	defer w.spin.Unlock()
	if w.reqID == 0 {
		return notMatched
	}
	switch {
	case w.cfmID != 0 && id == w.cfmID:
		if pid != w.pid || w.cfm != nil {
			return stale
		}
		w.cfm = sig
		if id == fapi.MLME_SET_CFM && len(sig.Data()) > 0 {
			w.mibErr = sig.Clone()
		}
	case w.indID != 0 && (id == w.indID || (w.indID == fapi.MLME_DISCONNECT_IND && id == fapi.MLME_DISCONNECTED_IND)):
		if pid != 0 && pid != w.pid {
			return stale
		}
		if id == fapi.MLME_SCAN_DONE_IND && sig.U16(fapi.ScanDoneIndScanID) != w.scanID {
			return notMatched
		}
		if w.ind != nil {
			return notMatched
		}
		w.ind = sig
	default:
		return notMatched
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return delivered
}

func (w *sigWait) takeCfm() (s *fapi.Signal) { s, w.cfm = w.cfm, nil; return s }
func (w *sigWait) takeInd() (s *fapi.Signal) { s, w.ind = w.ind, nil; return s }

// takeMIBErr returns the failing entries of the last MLME_SET_CFM, if any.
func (w *sigWait) takeMIBErr() *fapi.Signal {
	w.spin.Lock()
	defer w.spin.Unlock()
	s := w.mibErr
	w.mibErr = nil
	return s
}

// dropInd stops matching the indication of the current cycle.
func (w *sigWait) dropInd() {
	w.spin.Lock()
	w.indID = 0
	w.spin.Unlock()
}

// await blocks until take returns a payload or timeout elapses. A payload
// that lands between the timer firing and the final check is still returned.
func (w *sigWait) await(timeout time.Duration, take func() *fapi.Signal) *fapi.Signal {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		w.spin.Lock()
		s := take()
		wake := w.wake
		w.spin.Unlock()
		if s != nil {
			return s
		}
		select {
		case <-wake:
		case <-timer.C:
			w.spin.Lock()
			s = take()
			w.spin.Unlock()
			return s
		}
	}
}

// outstanding reports the request id in flight or 0.
func (w *sigWait) outstanding() fapi.SignalID {
	w.spin.Lock()
	defer w.spin.Unlock()
	return w.reqID
}
