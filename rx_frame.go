package slsi

import (
	"bytes"
	"log/slog"

	"github.com/soypat/slsi/dot11"
	"github.com/soypat/slsi/fapi"
)

// rxFrameTransmission matches a transmission status to the frame it refers
// to by host tag.
func (v *VIF) rxFrameTransmission(sig *fapi.Signal) {
	tag := sig.U16(fapi.FrameTransmissionIndHostTag)
	status := fapi.TransmissionStatus(sig.U16(fapi.FrameTransmissionIndStatus))
	sig.Free()
	ok := status == fapi.TxSuccessful
	if cookie, found := v.mgmtTx[tag]; found {
		delete(v.mgmtTx, tag)
		if tag == v.p2p.actionTag {
			v.p2p.actionTag = 0
			v.actionFrameDone(ok)
		}
		v.d.notify(MgmtTxStatus{vifEvent: vifEvent{v.ifnum}, Cookie: cookie, Ack: ok})
		return
	}
	switch uint32(tag) {
	case v.m4Tag.Load():
		v.m4Tag.Store(0)
		if !ok {
			v.warn("tx-status:m4", slog.Int("status", int(status)))
			return
		}
		if p := v.staPeer(); p != nil && p.state == PeerDoingKeyConfig {
			v.setPeerState(p, PeerConnected)
			v.sendPendingResponse()
		}
	case v.eapTag.Load():
		v.eapTag.Store(0)
		if ok || v.sta.isWPS || v.sta.state == StaDisconnected {
			return
		}
		// The authenticator never saw our last EAP message.
		v.warn("tx-status:eap", slog.Int("status", int(status)))
		bssid := v.sta.bssid
		if err := v.disconnect(bssid, fapi.ReasonUnspecified, false); err != nil {
			v.warn("tx-status:disconnect", slog.String("err", err.Error()))
		}
		v.handleDisconnect(bssid, fapi.ReasonUnspecified, true)
	default:
		if !ok {
			v.debug("tx-status", slog.Int("tag", int(tag)), slog.Int("status", int(status)))
		}
	}
}

// rxReceivedFrame handles frames the firmware passes up outside of
// MA_UNITDATA_IND: management frames and EAPOL or WAI frames.
func (v *VIF) rxReceivedFrame(sig *fapi.Signal) {
	defer sig.Free()
	frame := sig.Data()
	switch fapi.DataUnitDescriptor(sig.U16(fapi.ReceivedFrameIndDescriptor)) {
	case fapi.DescriptorIEEE80211:
		if !dot11.IsMgmt(frame) {
			v.warn("rx-frame:not-mgmt")
			return
		}
		if dot11.IsAction(frame) {
			switch dot11.ActionCategory(frame) {
			case dot11.CategoryPublic:
				if v.typ == fapi.VifUnsync {
					v.p2pActionRx(frame)
				}
			case dot11.CategoryWMM:
				v.debug("rx-frame:wmm-action", slog.Int("len", len(frame)))
			}
		}
		v.d.notify(MgmtRx{
			vifEvent: vifEvent{v.ifnum},
			Freq:     sig.U16(fapi.ReceivedFrameIndFreq) / 2,
			RSSI:     sig.I16(fapi.ReceivedFrameIndRSSI),
			Frame:    bytes.Clone(frame),
		})
	case fapi.DescriptorIEEE8023:
		if v.d.logenabled(slog.LevelDebug) {
			v.debug("rx-frame:eth", slog.String("kind", dot11.Classify(frame).String()), slog.Int("len", len(frame)))
		}
		v.d.deliverEth(v.ifnum, frame)
	default:
		v.warn("rx-frame:descriptor", slog.Int("descriptor", int(sig.U16(fapi.ReceivedFrameIndDescriptor))))
	}
}

func (v *VIF) rxMICFailure(sig *fapi.Signal) {
	ev := MICFailure{
		vifEvent: vifEvent{v.ifnum},
		Peer:     sig.Addr(fapi.MICFailureIndPeer),
		KeyType:  fapi.KeyType(sig.U16(fapi.MICFailureIndKeyType)),
		KeyID:    sig.U16(fapi.MICFailureIndKeyID),
	}
	sig.Free()
	v.warn("mic-failure", macAttr("peer", ev.Peer), slog.Int("key-id", int(ev.KeyID)))
	v.d.notify(ev)
}

func (v *VIF) rxChannelSwitched(sig *fapi.Signal) {
	ch := fapi.ChannelFromFirmware(sig.U16(fapi.ChannelSwitchedIndFreq), sig.U16(fapi.ChannelSwitchedIndChanInfo))
	sig.Free()
	v.info("channel-switched", slog.String("from", v.channel.String()), slog.String("to", ch.String()))
	v.channel = ch
	v.d.notify(ChannelSwitched{vifEvent: vifEvent{v.ifnum}, Channel: ch})
}

// rxBlockackError tears down a session the firmware could not keep up.
func (v *VIF) rxBlockackError(sig *fapi.Signal) {
	addr := sig.Addr(fapi.BlockackErrorIndPeer)
	tid := sig.U16(fapi.BlockackErrorIndPriority)
	sig.Free()
	if p := v.peerByAddr(addr); p != nil && tid < 8 {
		p.ba &^= 1 << tid
	}
	v.warn("blockack:error", macAttr("peer", addr), slog.Int("tid", int(tid)))
	if err := v.blockackControl(addr, tid, fapi.BlockackDelete); err != nil {
		v.warn("blockack:error-del", slog.String("err", err.Error()))
	}
}

// rxBlockack tracks the block ack sessions the firmware set up or removed.
func (v *VIF) rxBlockack(sig *fapi.Signal) {
	addr := sig.Addr(fapi.BlockackIndPeer)
	tid := sig.U16(fapi.BlockackIndPriority)
	reason := sig.U16(fapi.BlockackIndReason)
	sig.Free()
	p := v.peerByAddr(addr)
	if p == nil || tid >= 8 {
		v.debug("blockack:unknown", macAttr("peer", addr), slog.Int("tid", int(tid)))
		return
	}
	if reason == fapi.BlockackSetup {
		p.ba |= 1 << tid
	} else {
		p.ba &^= 1 << tid
	}
}

func (v *VIF) rxNAN(sig *fapi.Signal) {
	defer sig.Free()
	ev := NANEvent{vifEvent: vifEvent{v.ifnum}, Signal: sig.ID(), Data: bytes.Clone(sig.Data())}
	switch sig.ID() {
	case fapi.MLME_NAN_EVENT_IND:
		ev.Kind = sig.U16(fapi.NANEventIndEvent)
		ev.Identifier = sig.U16(fapi.NANEventIndIdentifier)
		switch ev.Kind {
		case fapi.NANEventPublishTerminated:
			delete(v.nan.publish, ev.Identifier)
		case fapi.NANEventSubscribeTerminated:
			delete(v.nan.subscribe, ev.Identifier)
		}
	case fapi.MLME_NAN_SERVICE_IND:
		ev.Identifier = sig.U16(fapi.NANServiceIndID)
		ev.MatchID = sig.U16(fapi.NANServiceIndMatchID)
		ev.Peer = sig.Addr(fapi.NANServiceIndPeer)
	case fapi.MLME_NAN_FOLLOWUP_IND:
		ev.Identifier = sig.U16(fapi.NANFollowupIndSession)
		ev.MatchID = sig.U16(fapi.NANFollowupIndMatchID)
		ev.Peer = sig.Addr(fapi.NANFollowupIndPeer)
	}
	if v.typ != fapi.VifNAN {
		v.warn("nan:vif-type", sigAttr("id", sig.ID()), slog.String("type", v.typ.String()))
		return
	}
	v.d.notify(ev)
}

func (v *VIF) rxRange(sig *fapi.Signal) {
	defer sig.Free()
	ev := RangeResult{vifEvent: vifEvent{v.ifnum}}
	if sig.ID() == fapi.MLME_RANGE_DONE_IND {
		ev.RTTID = sig.U16(fapi.RangeDoneIndRTTID)
		ev.Done = true
	} else {
		ev.RTTID = sig.U16(fapi.RangeIndRTTID)
		ev.Data = bytes.Clone(sig.Data())
	}
	v.d.notify(ev)
}

// rxTDLSPeer tracks direct links. Every indication is acknowledged, even
// those that cannot be applied.
func (v *VIF) rxTDLSPeer(sig *fapi.Signal) {
	addr := sig.Addr(fapi.TDLSPeerIndPeer)
	event := fapi.TDLSEvent(sig.U16(fapi.TDLSPeerIndEvent))
	idx := sig.U16(fapi.TDLSPeerIndPeerIndex)
	sig.Free()
	defer func() {
		if err := v.tdlsPeerResponse(idx); err != nil {
			v.warn("tdls:response", slog.String("err", err.Error()))
		}
	}()
	v.debug("tdls:peer-ind", macAttr("peer", addr), slog.String("event", event.String()), slog.Int("index", int(idx)))
	if v.typ != fapi.VifStation || v.sta.state != StaConnected {
		v.warn("tdls:state", slog.String("state", v.sta.state.String()))
		return
	}
	switch event {
	case fapi.TDLSEventDiscovered:
	case fapi.TDLSEventConnected:
		if idx == staPeerIndex || int(idx) >= len(v.peers) {
			v.warn("tdls:peer-index", slog.Int("index", int(idx)))
			return
		}
		p, err := v.addPeer(addr, idx)
		if err != nil {
			return
		}
		p.tdls = true
		v.setPeerState(p, PeerConnected)
	case fapi.TDLSEventDisconnected:
		p := v.peerByAddr(addr)
		if p == nil || !p.tdls {
			v.debug("tdls:no-peer", macAttr("peer", addr))
			return
		}
		v.removePeer(p)
	default:
		v.warn("tdls:event", slog.Int("event", int(event)))
		return
	}
	v.d.notify(TDLSPeer{vifEvent: vifEvent{v.ifnum}, Peer: addr, Event: event})
}
