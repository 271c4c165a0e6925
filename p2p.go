package slsi

import (
	"log/slog"
	"time"

	"github.com/soypat/slsi/dot11"
	"github.com/soypat/slsi/fapi"
)

// P2PState is the Wi-Fi Direct state of a vif.
type P2PState uint8

const (
	P2PNoVIF P2PState = iota
	P2PIdleVIFActive
	P2PListening
	P2PActionFrameTxRx
	P2PScanning
	P2PGroupFormedCli
	P2PGroupFormedGO
)

func (s P2PState) String() string {
	switch s {
	case P2PNoVIF:
		return "no-vif"
	case P2PIdleVIFActive:
		return "idle-vif-active"
	case P2PListening:
		return "listening"
	case P2PActionFrameTxRx:
		return "action-frame-tx-rx"
	case P2PScanning:
		return "scanning"
	case P2PGroupFormedCli:
		return "group-formed-cli"
	case P2PGroupFormedGO:
		return "group-formed-go"
	}
	return "p2pstate(?)"
}

// p2pInfo is the offchannel bookkeeping of a vif. Guarded by the vif's mu.
type p2pInfo struct {
	state P2PState
	// listenCookie identifies the active RemainOnChannel, 0 when none.
	listenCookie uint64
	// actionTag is the host tag of the offchannel action frame in flight.
	actionTag         uint16
	actionExpectsResp bool
	delTimer          *time.Timer
	delGen            uint32
}

func (p *p2pInfo) stopTimers() {
	if p.delTimer != nil {
		p.delTimer.Stop()
		p.delTimer = nil
	}
	p.delGen++
}

// nanInfo tracks NAN sessions of a NAN vif. Guarded by the vif's mu.
type nanInfo struct {
	enabled   bool
	publish   map[uint16]struct{}
	subscribe map[uint16]struct{}
}

// P2PState returns the Wi-Fi Direct state of the vif.
func (v *VIF) P2PState() P2PState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.p2p.state
}

func (v *VIF) setP2PState(s P2PState) {
	v.mu.AssertHeld()
	if v.p2p.state == s {
		return
	}
	v.debug("p2p:state", slog.String("from", v.p2p.state.String()), slog.String("to", s.String()))
	v.p2p.state = s
}

// setChannel issues MLME_SET_CHANNEL_REQ. A zero duration cancels a listen.
func (v *VIF) setChannel(ch fapi.Channel, duration time.Duration) error {
	v.mu.AssertHeld()
	if err := v.requireActivated("set-channel"); err != nil {
		return err
	}
	b := fapi.NewBuilder(fapi.MLME_SET_CHANNEL_REQ, v.ifnum)
	b.PutU16(fapi.SetChannelReqDuration, millis16(duration))
	b.PutU16(fapi.SetChannelReqInterval, 0)
	b.PutU16(fapi.SetChannelReqCount, 0)
	b.PutChannel(fapi.SetChannelReqFreq, fapi.SetChannelReqChanInfo, ch)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	v.debug("set-channel", slog.Int("freq", int(ch.Freq)), slog.Duration("duration", duration))
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_SET_CHANNEL_CFM))
}

// RemainOnChannel listens on ch for duration. The returned cookie is
// reported by RemainOnChannelExpired when the firmware ends the listen.
func (v *VIF) RemainOnChannel(ch fapi.Channel, duration time.Duration) (cookie uint64, err error) {
	if duration <= 0 {
		return 0, ErrInvalidArgument
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.typ != fapi.VifUnsync {
		return 0, errWrongVifType
	}
	v.p2p.stopTimers()
	if err := v.setChannel(ch, duration); err != nil {
		return 0, err
	}
	v.nextCookie++
	v.p2p.listenCookie = v.nextCookie
	v.channel = ch
	v.setP2PState(P2PListening)
	return v.p2p.listenCookie, nil
}

// CancelRemainOnChannel ends the listen identified by cookie.
func (v *VIF) CancelRemainOnChannel(cookie uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if cookie == 0 || v.p2p.listenCookie != cookie {
		return ErrInvalidArgument
	}
	err := v.setChannel(v.channel, 0)
	v.listenEnded()
	return err
}

// listenEnded reports the end of the active listen and arms the unsync vif
// deletion unless a negotiation is still in progress.
func (v *VIF) listenEnded() {
	v.mu.AssertHeld()
	cookie := v.p2p.listenCookie
	if cookie == 0 {
		v.debug("p2p:listen-end-idle")
		return
	}
	v.p2p.listenCookie = 0
	if v.p2p.state == P2PListening {
		v.setP2PState(P2PIdleVIFActive)
		v.armUnsyncDelete()
	}
	v.d.notify(RemainOnChannelExpired{vifEvent: vifEvent{v.ifnum}, Cookie: cookie})
}

// SendMgmtFrame transmits an 802.11 management frame on ch, staying on the
// channel for wait. The cookie is reported with MgmtTxStatus.
func (v *VIF) SendMgmtFrame(frame []byte, ch fapi.Channel, wait time.Duration) (cookie uint64, err error) {
	if !dot11.IsMgmt(frame) {
		return 0, ErrInvalidArgument
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	tag := v.d.nextHostTag()
	v.nextCookie++
	cookie = v.nextCookie
	unsyncAction := v.typ == fapi.VifUnsync && dot11.IsAction(frame)
	if unsyncAction {
		v.p2p.stopTimers()
		v.p2p.actionTag = tag
		v.p2p.actionExpectsResp = dot11.P2PExpectsResponse(dot11.P2PPublicSubtype(frame))
		v.setP2PState(P2PActionFrameTxRx)
	}
	v.mgmtTx[tag] = cookie
	if err := v.sendMgmt(frame, tag, ch, wait); err != nil {
		delete(v.mgmtTx, tag)
		if unsyncAction {
			v.p2p.actionTag = 0
			v.actionFrameDone(false)
		}
		return 0, err
	}
	return cookie, nil
}

// actionFrameDone applies the offchannel action frame outcome to the unsync
// vif lifecycle.
func (v *VIF) actionFrameDone(ok bool) {
	v.mu.AssertHeld()
	switch {
	case ok && v.p2p.actionExpectsResp:
		// Stay on channel for the peer's reply.
	case !ok && v.p2p.listenCookie != 0:
		v.setP2PState(P2PListening)
	default:
		v.setP2PState(P2PIdleVIFActive)
		v.armUnsyncDelete()
	}
}

// armUnsyncDelete schedules deletion of an idle unsynchronised vif.
func (v *VIF) armUnsyncDelete() {
	v.mu.AssertHeld()
	if v.typ != fapi.VifUnsync {
		return
	}
	v.p2p.stopTimers()
	gen := v.p2p.delGen
	v.p2p.delTimer = time.AfterFunc(v.d.cfg.P2PUnsyncVifLinger, func() { v.unsyncDeleteTimeout(gen) })
	v.debug("p2p:del-armed", slog.Duration("linger", v.d.cfg.P2PUnsyncVifLinger))
}

func (v *VIF) unsyncDeleteTimeout(gen uint32) {
	d := v.d
	d.netdevMu.Lock()
	defer d.netdevMu.Unlock()
	if d.vifs[v.ifnum].Load() != v {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.p2p.delGen != gen || v.p2p.state != P2PIdleVIFActive {
		return
	}
	v.p2p.delTimer = nil
	v.info("p2p:unsync-delete")
	if err := d.delVIFLocked(v); err != nil {
		v.warn("p2p:unsync-delete", slog.String("err", err.Error()))
	}
}

// p2pActionRx advances the negotiation state on a received public action frame.
func (v *VIF) p2pActionRx(frame []byte) {
	v.mu.AssertHeld()
	subtype := dot11.P2PPublicSubtype(frame)
	if subtype < 0 {
		return
	}
	switch {
	case dot11.P2PExpectsResponse(subtype):
		v.p2p.stopTimers()
		v.setP2PState(P2PActionFrameTxRx)
	case v.p2p.state == P2PActionFrameTxRx:
		v.p2p.actionExpectsResp = false
		if v.p2p.listenCookie != 0 {
			v.setP2PState(P2PListening)
		} else {
			v.setP2PState(P2PIdleVIFActive)
			v.armUnsyncDelete()
		}
	}
	v.debug("p2p:action-rx", slog.Int("subtype", subtype), slog.String("state", v.p2p.state.String()))
}
