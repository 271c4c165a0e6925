package fwsim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/soypat/slsi/fapi"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recorder struct {
	mu   sync.Mutex
	sigs []*fapi.Signal
}

func (r *recorder) Receive(raw []byte) error {
	sig, err := fapi.FromBytes(raw)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.sigs = append(r.sigs, sig)
	r.mu.Unlock()
	return nil
}

func (r *recorder) ids() (ids []fapi.SignalID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sigs {
		ids = append(ids, s.ID())
	}
	return ids
}

func (r *recorder) at(i int) *fapi.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sigs[i]
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func start(t *testing.T) (*Firmware, *recorder) {
	t.Helper()
	fw := New(nil)
	rx := &recorder{}
	fw.Start(rx)
	t.Cleanup(func() { require.NoError(t, fw.Close()) })
	return fw, rx
}

func idle(t *testing.T, fw *Firmware) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fw.Idle(ctx))
}

func request(t *testing.T, fw *Firmware, id fapi.SignalID, pid uint16) {
	t.Helper()
	req := fapi.New(id, 1)
	defer req.Free()
	req.SetSenderPID(pid)
	require.NoError(t, fw.Send(req.Bytes()))
}

func TestDefaultAnswers(t *testing.T) {
	fw, rx := start(t)
	request(t, fw, fapi.MLME_POWERMGT_REQ, 0xC003)
	request(t, fw, fapi.MA_UNITDATA_REQ, fapi.ProcessIDData)
	request(t, fw, fapi.MLME_BLOCKACK_CONTROL_REQ, fapi.ProcessIDData)
	request(t, fw, fapi.MLME_SEND_FRAME_REQ, fapi.ProcessIDData)
	request(t, fw, fapi.MLME_CONNECT_RES, 0xC004)
	request(t, fw, fapi.MLME_SEND_FRAME_REQ, 0xC005)
	idle(t, fw)

	require.Equal(t, []fapi.SignalID{fapi.MLME_POWERMGT_CFM, fapi.MLME_SEND_FRAME_CFM}, rx.ids())
	cfm := rx.at(0)
	require.Equal(t, uint16(0xC003), cfm.ReceiverPID())
	require.Equal(t, uint16(1), cfm.VIF())
	require.Equal(t, fapi.SUCCESS, cfm.Result())
	require.Equal(t, uint16(0xC005), rx.at(1).ReceiverPID())

	require.Equal(t, 2, fw.Count(fapi.MLME_SEND_FRAME_REQ))
	require.Len(t, fw.Requests(0), 6)
}

func TestRules(t *testing.T) {
	fw, rx := start(t)
	fw.Handle(fapi.MLME_DISCONNECT_REQ, Reply(func(req *fapi.Signal) *fapi.Signal {
		return DisconnectInd(fapi.MLME_DISCONNECT_IND, req.VIF(), [6]byte{2}, fapi.ReasonDeauthLeaving)
	}))
	fw.Handle(fapi.MLME_ADD_VIF_REQ, Fail(fapi.NOT_SUPPORTED))
	fw.Ignore(fapi.MLME_POWERMGT_REQ)

	request(t, fw, fapi.MLME_DISCONNECT_REQ, 0xC001)
	request(t, fw, fapi.MLME_ADD_VIF_REQ, 0xC002)
	request(t, fw, fapi.MLME_POWERMGT_REQ, 0xC003)
	idle(t, fw)
	require.Equal(t, []fapi.SignalID{fapi.MLME_DISCONNECT_CFM, fapi.MLME_DISCONNECT_IND, fapi.MLME_ADD_VIF_CFM}, rx.ids())
	require.Equal(t, fapi.NOT_SUPPORTED, rx.at(2).Result())
	require.Equal(t, uint16(fapi.ReasonDeauthLeaving), rx.at(1).U16(fapi.DisconnectIndReason))

	// Restoring the default rule.
	fw.Handle(fapi.MLME_POWERMGT_REQ, nil)
	request(t, fw, fapi.MLME_POWERMGT_REQ, 0xC004)
	idle(t, fw)
	require.Len(t, rx.ids(), 4)
}

func TestInjectOrder(t *testing.T) {
	fw, rx := start(t)
	var want []fapi.SignalID
	for i := uint16(0); i < 32; i++ {
		want = append(want, fapi.MLME_SCAN_IND)
		fw.Inject(ScanInd(1, i, 2412, -50, nil), nil)
	}
	fw.Inject(ScanDoneInd(7))
	want = append(want, fapi.MLME_SCAN_DONE_IND)
	idle(t, fw)
	require.Equal(t, want, rx.ids())
	for i := uint16(0); i < 32; i++ {
		sig := rx.at(int(i))
		require.Equal(t, i, sig.U16(fapi.ScanIndScanID))
		require.Equal(t, uint16(4824), sig.U16(fapi.ScanIndFreq))
	}
	require.Zero(t, rx.at(32).VIF())
}

func TestWaitCount(t *testing.T) {
	fw, _ := start(t)
	req := fapi.New(fapi.MLME_SET_REQ, 1)
	defer req.Free()
	sent := make(chan error, 1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		sent <- fw.Send(req.Bytes())
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fw.WaitCount(ctx, fapi.MLME_SET_REQ, 1))
	require.NoError(t, <-sent)

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	require.ErrorIs(t, fw.WaitCount(short, fapi.MLME_SET_REQ, 2), context.DeadlineExceeded)
}

func TestClose(t *testing.T) {
	fw := New(nil)
	req := fapi.New(fapi.MLME_POWERMGT_REQ, 1)
	defer req.Free()
	require.NoError(t, fw.Send(req.Bytes()))
	// Never started, nothing to wait for.
	require.NoError(t, fw.Close())
	require.NoError(t, fw.Close())
	require.ErrorIs(t, fw.Send(req.Bytes()), errClosed)
	require.Zero(t, fw.Count(fapi.MLME_POWERMGT_REQ))
}

func TestAssocExchange(t *testing.T) {
	sta := [6]byte{2, 0, 0, 0, 0, 1}
	ap := [6]byte{2, 0, 0, 0, 0, 2}
	req, resp := AssocExchange(sta, ap, []byte("lab"), []byte{48, 2, 1, 0}, nil)
	require.Equal(t, byte(0x00), req[0])
	require.Equal(t, byte(0x10), resp[0])
	require.Equal(t, sta[:], req[10:16])
	require.Equal(t, ap[:], resp[10:16])
	// Capability and listen interval precede the SSID element.
	require.Equal(t, []byte{0, 3, 'l', 'a', 'b', 48, 2, 1, 0}, req[24+4:])
}
