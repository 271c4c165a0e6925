package slsi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/soypat/slsi/fapi"
	"github.com/soypat/slsi/fwsim"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	staAddr = [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	apAddr  = [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	bssidA  = [6]byte{0x02, 0x11, 0x11, 0x11, 0x11, 0x11}
	bssidB  = [6]byte{0x02, 0x22, 0x22, 0x22, 0x22, 0x22}
	bssidC  = [6]byte{0x02, 0x33, 0x33, 0x33, 0x33, 0x33}
	clientA = [6]byte{0x02, 0xaa, 0x00, 0x00, 0x00, 0x01}
	ch2412  = fapi.Channel{Freq: 2412, Width: fapi.Width20}
	rsnIE   = []byte{48, 2, 1, 0}
)

const waitEvery = 2 * time.Second

// eventLog records notifications so tests can wait on them.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Notify(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

// take removes and returns the first recorded event of type T.
func take[T Event](l *eventLog) (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, ev := range l.events {
		if got, ok := ev.(T); ok {
			l.events = append(l.events[:i], l.events[i+1:]...)
			return got, true
		}
	}
	var zero T
	return zero, false
}

// waitEvent blocks until an event of type T is recorded.
func waitEvent[T Event](t *testing.T, l *eventLog) T {
	t.Helper()
	deadline := time.Now().Add(waitEvery)
	for time.Now().Before(deadline) {
		if ev, ok := take[T](l); ok {
			return ev
		}
		time.Sleep(time.Millisecond)
	}
	var zero T
	t.Fatalf("timed out waiting for %T", zero)
	return zero
}

// all removes and returns all recorded events of type T.
func all[T Event](l *eventLog) (out []T) {
	for {
		ev, ok := take[T](l)
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

type testbed struct {
	d  *Device
	fw *fwsim.Firmware
	ev *eventLog
}

func newTestbed(t *testing.T, opts ...func(*Config)) *testbed {
	t.Helper()
	fw := fwsim.New(nil)
	ev := &eventLog{}
	cfg := DefaultConfig()
	cfg.ConfirmTimeout = 300 * time.Millisecond
	cfg.IndicationTimeout = 300 * time.Millisecond
	cfg.ScanDoneTimeout = 500 * time.Millisecond
	cfg.Notifier = ev
	for _, opt := range opts {
		opt(&cfg)
	}
	d, err := New(fw, cfg)
	require.NoError(t, err)
	fw.Start(d)
	t.Cleanup(func() {
		fw.Close()
		d.Close()
	})
	return &testbed{d: d, fw: fw, ev: ev}
}

// settle waits until the firmware queue is drained and the RX worker
// handled everything it was given.
func (tb *testbed) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitEvery)
	defer cancel()
	require.NoError(t, tb.fw.Idle(ctx))
	require.NoError(t, tb.d.Sync())
}

func (tb *testbed) inject(t *testing.T, sigs ...*fapi.Signal) {
	t.Helper()
	tb.fw.Inject(sigs...)
	tb.settle(t)
}

func (tb *testbed) addVIF(t *testing.T, typ fapi.VifType, addr [6]byte) *VIF {
	t.Helper()
	v, err := tb.d.AddVIF(typ, addr, ch2412)
	require.NoError(t, err)
	return v
}

// lastRequest returns a copy of the last host signal with id.
func (tb *testbed) lastRequest(t *testing.T, id fapi.SignalID) *fapi.Signal {
	t.Helper()
	reqs := tb.fw.Requests(id)
	require.NotEmpty(t, reqs, "no %v sent", id)
	for _, r := range reqs[:len(reqs)-1] {
		r.Free()
	}
	return reqs[len(reqs)-1]
}

// connect brings v to the connected state with bssid using the association
// exchange the firmware reports.
func (tb *testbed) connect(t *testing.T, v *VIF, bssid [6]byte, ies []byte) ConnectResult {
	t.Helper()
	require.NoError(t, v.Connect(ConnectParams{BSSID: bssid, SSID: []byte("lab"), Channel: ch2412, IEs: ies}))
	req, resp := fwsim.AssocExchange(v.Addr(), bssid, []byte("lab"), ies, nil)
	tb.inject(t,
		fwsim.ScanInd(v.Ifnum(), 0, 2412, -40, fwsim.ProbeResp(bssid, []byte("lab"), nil)),
		fwsim.ProcedureStartedInd(v.Ifnum(), fapi.ProcedureConnectionStarted, 0, req),
		fwsim.ConnectInd(v.Ifnum(), bssid, fapi.SUCCESS, resp),
	)
	return waitEvent[ConnectResult](t, tb.ev)
}
