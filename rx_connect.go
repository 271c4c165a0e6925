package slsi

import (
	"bytes"
	"log/slog"

	"github.com/google/gopacket/layers"
	"github.com/soypat/slsi/dot11"
	"github.com/soypat/slsi/fapi"
)

// rxProcedureStarted records the association request that opens a
// connection. The firmware sends it before MLME_CONNECT_IND on stations and
// when a station starts associating on AP vifs.
func (v *VIF) rxProcedureStarted(sig *fapi.Signal) {
	typ := fapi.ProcedureType(sig.U16(fapi.ProcedureStartedIndType))
	switch {
	case typ == fapi.ProcedureDeviceDiscovered:
		v.forwardProbeReq(sig)

	case v.typ.IsAPLike() && typ == fapi.ProcedureConnectionStarted:
		idx := sig.U16(fapi.ProcedureStartedIndPeerIndex)
		if idx == 0 || int(idx) > v.d.cfg.MaxAPClients {
			v.warn("procedure-started:peer-index", slog.Int("index", int(idx)), slog.Int("max", v.d.cfg.MaxAPClients))
			sig.Free()
			return
		}
		addr := dot11.Addr2(sig.Data())
		p, err := v.addPeer(addr, idx)
		if err != nil {
			sig.Free()
			return
		}
		p.setAssocReq(sig)

	case v.typ.IsStationLike() && (typ == fapi.ProcedureConnectionStarted || typ == fapi.ProcedureRoamingStarted):
		p := v.staPeer()
		switch {
		case v.sta.state == StaConnecting && p != nil:
			p.setAssocReq(sig)
		case v.sta.state == StaConnected:
			// Roam or reassociation in progress, kept until it completes.
			v.sta.roamAssocReq.Free()
			v.sta.roamAssocReq = sig
		default:
			v.warn("procedure-started:state", slog.String("state", v.sta.state.String()))
			sig.Free()
		}

	default:
		v.warn("procedure-started:unexpected", slog.Int("procedure", int(typ)), slog.String("type", v.typ.String()))
		sig.Free()
	}
}

// forwardProbeReq hands a probe request to the management stack. It is
// only forwarded while listening so negotiations in progress are not
// disturbed.
func (v *VIF) forwardProbeReq(sig *fapi.Signal) {
	defer sig.Free()
	if v.typ != fapi.VifUnsync && v.typ != fapi.VifP2PGO {
		v.warn("probe-req:vif-type", slog.String("type", v.typ.String()))
		return
	}
	if v.typ == fapi.VifUnsync && v.p2p.state != P2PListening {
		v.debug("probe-req:not-listening", slog.String("state", v.p2p.state.String()))
		return
	}
	frame := sig.Data()
	if !dot11.IsProbeReq(frame) {
		v.warn("probe-req:frame")
		return
	}
	v.d.notify(MgmtRx{vifEvent: vifEvent{v.ifnum}, Freq: v.channel.Freq, Frame: bytes.Clone(frame)})
}

// resultStatus maps a failing firmware result to an 802.11 status code.
func resultStatus(r fapi.ResultCode, assocResp []byte) (status layers.Dot11Status, timedOut bool) {
	switch r {
	case fapi.PROBE_TIMEOUT, fapi.AUTH_TIMEOUT, fapi.ASSOC_TIMEOUT:
		return layers.Dot11StatusTimeout, true
	}
	if s, ok := dot11.ResponseStatus(assocResp); ok && s != layers.Dot11StatusSuccess {
		return s, false
	}
	return layers.Dot11StatusFailure, false
}

// rxConnectInd completes a connection attempt. A firmware success is only
// reported upstream when the association frames could be recorded. If they
// could not, the firmware is told to disconnect.
func (v *VIF) rxConnectInd(sig *fapi.Signal) {
	bssid := sig.Addr(fapi.ConnectIndBSSID)
	result := fapi.ResultCode(sig.U16(fapi.ConnectIndResultCode))
	if !v.typ.IsStationLike() || v.sta.state != StaConnecting {
		v.warn("connect-ind:state", macAttr("bssid", bssid), slog.String("state", v.sta.state.String()))
		sig.Free()
		return
	}
	ev := ConnectResult{vifEvent: vifEvent{v.ifnum}, BSSID: bssid}
	if !result.IsSuccess() {
		ev.Status, ev.TimedOut = resultStatus(result, sig.Data())
		v.info("connect-ind:failed", macAttr("bssid", bssid), slog.String("result", result.String()))
		sig.Free()
		v.connectFailed(ev, false)
		return
	}

	ev.Status = layers.Dot11StatusFailure
	p := v.staPeer()
	if p == nil || p.addr != bssid || p.assocReq == nil {
		v.warn("connect-ind:no-assoc-req", macAttr("bssid", bssid))
		sig.Free()
		v.connectFailed(ev, true)
		return
	}
	if !v.flushConnectScan(bssid) {
		if _, ok := v.bss[bssid]; !ok {
			v.warn("connect-ind:no-scan-ind", macAttr("bssid", bssid))
		}
	}
	reqIEs, err := dot11.RequestIEs(p.assocReq.Data())
	if err != nil {
		v.warn("connect-ind:assoc-req", slog.String("err", err.Error()))
		sig.Free()
		v.connectFailed(ev, true)
		return
	}
	respIEs, err := dot11.ResponseIEs(sig.Data())
	if err != nil {
		v.warn("connect-ind:assoc-resp", slog.String("err", err.Error()))
		sig.Free()
		v.connectFailed(ev, true)
		return
	}
	ev.Status = layers.Dot11StatusSuccess
	ev.ReqIEs = bytes.Clone(reqIEs)
	ev.RespIEs = bytes.Clone(respIEs)
	p.setAssocResp(sig)
	v.updateQoS(reqIEs, respIEs)

	v.setStaState(StaConnected)
	if v.typ == fapi.VifP2PClient {
		v.setP2PState(P2PGroupFormedCli)
	}
	if v.sta.secured {
		v.setPeerState(p, PeerDoingKeyConfig)
		v.sta.pending = fapi.MLME_CONNECT_RES
	} else {
		v.setPeerState(p, PeerConnected)
		if err := v.connectResponse(staPeerIndex); err != nil {
			v.logerr("connect-ind:response", slog.String("err", err.Error()))
		}
	}
	v.info("connect-ind:connected", macAttr("bssid", bssid), slog.Bool("secured", v.sta.secured))
	v.d.notify(ev)
}

// connectFailed reports ev and resets the station. With disconnectFw set
// the firmware is asked to tear down the association it believes exists.
func (v *VIF) connectFailed(ev ConnectResult, disconnectFw bool) {
	v.mu.AssertHeld()
	if disconnectFw {
		if err := v.disconnect(ev.BSSID, fapi.ReasonUnspecified, false); err != nil {
			v.warn("connect-fail:disconnect", slog.String("err", err.Error()))
		}
	}
	for _, p := range v.peers {
		if p != nil {
			v.removePeer(p)
		}
	}
	v.resetSta()
	v.d.notify(ev)
}

// updateQoS refreshes the admission control and U-APSD masks.
func (v *VIF) updateQoS(reqIEs, respIEs []byte) {
	if acm, ok := dot11.ACMMask(respIEs); ok {
		v.sta.acm = acm
	}
	if qos, ok := dot11.WMMQoSInfo(reqIEs); ok {
		v.sta.uapsd = dot11.UAPSDMask(qos)
	}
}

// ACMMask returns the access categories requiring admission control.
func (v *VIF) ACMMask() uint8 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sta.acm
}

// rxConnectedInd authorises a station on AP vifs and ends key configuration
// on stations.
func (v *VIF) rxConnectedInd(sig *fapi.Signal) {
	idx := sig.U16(fapi.ConnectedIndPeerIndex)
	sig.Free()
	if int(idx) >= len(v.peers) || v.peers[idx] == nil {
		v.warn("connected-ind:no-peer", slog.Int("index", int(idx)))
		return
	}
	p := v.peers[idx]
	if v.typ.IsAPLike() {
		v.setPeerState(p, PeerConnected)
		var ies []byte
		if p.assocReq != nil {
			ies, _ = dot11.RequestIEs(p.assocReq.Data())
		}
		v.info("connected-ind:station", macAttr("peer", p.addr), slog.Int("index", int(idx)))
		v.d.notify(NewStation{vifEvent: vifEvent{v.ifnum}, Peer: p.addr, PeerIndex: idx, AssocIEs: bytes.Clone(ies)})
		return
	}
	if p.state == PeerDoingKeyConfig {
		v.setPeerState(p, PeerConnected)
		v.sendPendingResponse()
	}
}

// rxRoamedInd moves the station to the BSS it roamed to. As with connect,
// a roam whose bookkeeping is inconsistent is failed.
func (v *VIF) rxRoamedInd(sig *fapi.Signal) {
	bssid := sig.Addr(fapi.RoamedIndBSSID)
	tkReqd := sig.U16(fapi.RoamedIndTKReqd) != 0
	p := v.staPeer()
	if v.sta.state != StaConnected || p == nil {
		v.warn("roamed-ind:state", macAttr("bssid", bssid), slog.String("state", v.sta.state.String()))
		sig.Free()
		return
	}
	v.stopBlockacks(p)
	v.flushConnectScan(bssid)
	bss, haveBSS := v.bss[bssid]
	req := v.sta.roamAssocReq
	v.sta.roamAssocReq = nil
	if !haveBSS || req == nil {
		v.warn("roamed-ind:inconsistent", macAttr("bssid", bssid), slog.Bool("bss", haveBSS), slog.Bool("assoc-req", req != nil))
		req.Free()
		sig.Free()
		v.roamFailed()
		return
	}
	reqIEs, err := dot11.RequestIEs(req.Data())
	var respIEs []byte
	if err == nil {
		respIEs, err = dot11.ResponseIEs(sig.Data())
	}
	if err != nil {
		v.warn("roamed-ind:frames", slog.String("err", err.Error()))
		req.Free()
		sig.Free()
		v.roamFailed()
		return
	}
	ev := Roamed{
		vifEvent: vifEvent{v.ifnum},
		BSSID:    bssid,
		Freq:     bss.Freq,
		ReqIEs:   bytes.Clone(reqIEs),
		RespIEs:  bytes.Clone(respIEs),
	}
	v.peersMu.Lock()
	p.addr = bssid
	v.peersMu.Unlock()
	p.setAssocReq(req)
	p.setAssocResp(sig)
	v.sta.bssid = bssid
	if len(bss.SSID) > 0 {
		v.sta.ssid = bytes.Clone(bss.SSID)
	}
	v.updateQoS(reqIEs, respIEs)
	v.finishReassoc(p, tkReqd, fapi.MLME_ROAMED_RES)
	v.info("roamed-ind", macAttr("bssid", bssid), slog.Int("freq", int(bss.Freq)))
	v.d.notify(ev)
}

// rxReassociateInd completes a host requested reassociation.
func (v *VIF) rxReassociateInd(sig *fapi.Signal) {
	result := fapi.ResultCode(sig.U16(fapi.ReassociateIndResultCode))
	p := v.staPeer()
	if v.sta.state != StaConnected || p == nil {
		v.warn("reassoc-ind:state", slog.String("state", v.sta.state.String()))
		sig.Free()
		return
	}
	req := v.sta.roamAssocReq
	v.sta.roamAssocReq = nil
	if !result.IsSuccess() {
		v.warn("reassoc-ind:failed", slog.String("result", result.String()))
		req.Free()
		sig.Free()
		v.roamFailed()
		return
	}
	var reqIEs, respIEs []byte
	if req != nil {
		reqIEs, _ = dot11.RequestIEs(req.Data())
		p.setAssocReq(req)
	}
	respIEs, _ = dot11.ResponseIEs(sig.Data())
	ev := Roamed{
		vifEvent: vifEvent{v.ifnum},
		BSSID:    v.sta.bssid,
		Freq:     v.channel.Freq,
		ReqIEs:   bytes.Clone(reqIEs),
		RespIEs:  bytes.Clone(respIEs),
	}
	p.setAssocResp(sig)
	v.updateQoS(reqIEs, respIEs)
	v.finishReassoc(p, v.sta.secured, fapi.MLME_REASSOCIATE_RES)
	v.d.notify(ev)
}

// finishReassoc sends res now or defers it behind the 4-way handshake.
func (v *VIF) finishReassoc(p *peer, rekey bool, res fapi.SignalID) {
	if rekey && v.sta.secured {
		v.setPeerState(p, PeerDoingKeyConfig)
		v.sta.pending = res
		return
	}
	v.sta.pending = res
	v.sendPendingResponse()
}

func (v *VIF) roamFailed() {
	bssid := v.sta.bssid
	if err := v.disconnect(bssid, fapi.ReasonUnspecified, false); err != nil {
		v.warn("roam-fail:disconnect", slog.String("err", err.Error()))
	}
	v.handleDisconnect(bssid, fapi.ReasonUnspecified, true)
}

// stopBlockacks tears down every block ack session with p.
func (v *VIF) stopBlockacks(p *peer) {
	for tid := uint16(0); tid < 8; tid++ {
		if p.ba&(1<<tid) == 0 {
			continue
		}
		if err := v.blockackControl(p.addr, tid, fapi.BlockackDelete); err != nil {
			v.warn("blockack:stop", slog.Int("tid", int(tid)), slog.String("err", err.Error()))
		}
	}
	p.ba = 0
}

func (v *VIF) rxDisconnectInd(sig *fapi.Signal) {
	addr := sig.Addr(fapi.DisconnectIndPeer)
	reason := sig.U16(fapi.DisconnectIndReason)
	id := sig.ID()
	sig.Free()
	v.debug("disconnect-ind", sigAttr("id", id), macAttr("peer", addr), slog.Int("reason", int(reason)))
	if v.typ.IsAPLike() && reason == fapi.ReasonMaxClientReached {
		if p := v.peerByAddr(addr); p != nil {
			v.removePeer(p)
		}
		v.info("disconnect-ind:rejected", macAttr("peer", addr))
		v.d.notify(ConnectionRejected{vifEvent: vifEvent{v.ifnum}, Peer: addr, Reason: reason})
		return
	}
	v.handleDisconnect(addr, reason, false)
}

// handleDisconnect tears down the peer addr and reports it upstream.
// Repeated calls for an already disconnected station are no-ops.
func (v *VIF) handleDisconnect(addr [6]byte, reason uint16, local bool) {
	v.mu.AssertHeld()
	if v.typ.IsAPLike() {
		p := v.peerByAddr(addr)
		if p == nil {
			v.debug("disconnect:no-peer", macAttr("peer", addr))
			return
		}
		v.removePeer(p)
		v.d.notify(DelStation{vifEvent: vifEvent{v.ifnum}, Peer: addr, Reason: reason})
		return
	}
	if v.sta.state == StaDisconnected {
		v.debug("disconnect:already", macAttr("peer", addr))
		return
	}
	if p := v.peerByAddr(addr); p != nil && p.tdls {
		v.removePeer(p)
		v.d.notify(TDLSPeer{vifEvent: vifEvent{v.ifnum}, Peer: addr, Event: fapi.TDLSEventDisconnected})
		return
	}
	bssid := v.sta.bssid
	connecting := v.sta.state == StaConnecting
	if p := v.staPeer(); p != nil {
		v.setPeerState(p, PeerDisconnected)
	}
	for _, p := range v.peers {
		if p != nil {
			v.removePeer(p)
		}
	}
	v.resetSta()
	if v.typ == fapi.VifP2PClient {
		v.setP2PState(P2PNoVIF)
	}
	if connecting {
		v.d.notify(ConnectResult{vifEvent: vifEvent{v.ifnum}, BSSID: bssid, Status: layers.Dot11StatusFailure})
		return
	}
	v.info("disconnect:done", macAttr("bssid", bssid), slog.Int("reason", int(reason)), slog.Bool("local", local))
	v.d.notify(Disconnected{vifEvent: vifEvent{v.ifnum}, BSSID: bssid, Reason: reason, LocallyGenerated: local})
}
