package slsi

import (
	"log/slog"

	"github.com/soypat/slsi/fapi"
)

// dispatch runs the handler of a signal no request was waiting for. It runs
// on the RX worker and takes ownership of sig. Handlers of vif scoped
// indications run with the vif's mu held.
func (d *Device) dispatch(sig *fapi.Signal) {
	id := sig.ID()
	switch id {
	case fapi.MA_UNITDATA_IND:
		d.rxUnitdata(sig)
		return
	case fapi.DEBUG_FAULT_IND:
		d.rxDebugFault(sig)
		return
	case fapi.MLME_SCAN_DONE_IND:
		// Routed by scan id, the header vif is 0.
		d.rxScanDoneInd(sig)
		return
	}
	v := d.VIF(sig.VIF())
	if v == nil {
		d.warn("rx:no-vif", sigAttr("id", id), slog.Int("vif", int(sig.VIF())))
		sig.Free()
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	switch id {
	case fapi.MLME_PROCEDURE_STARTED_IND:
		v.rxProcedureStarted(sig)
	case fapi.MLME_CONNECT_IND:
		v.rxConnectInd(sig)
	case fapi.MLME_CONNECTED_IND:
		v.rxConnectedInd(sig)
	case fapi.MLME_ROAMED_IND:
		v.rxRoamedInd(sig)
	case fapi.MLME_REASSOCIATE_IND:
		v.rxReassociateInd(sig)
	case fapi.MLME_DISCONNECT_IND, fapi.MLME_DISCONNECTED_IND:
		v.rxDisconnectInd(sig)
	case fapi.MLME_FRAME_TRANSMISSION_IND:
		v.rxFrameTransmission(sig)
	case fapi.MLME_RECEIVED_FRAME_IND:
		v.rxReceivedFrame(sig)
	case fapi.MLME_TDLS_PEER_IND:
		v.rxTDLSPeer(sig)
	case fapi.MLME_MIC_FAILURE_IND:
		v.rxMICFailure(sig)
	case fapi.MLME_CHANNEL_SWITCHED_IND:
		v.rxChannelSwitched(sig)
	case fapi.MLME_LISTEN_END_IND:
		sig.Free()
		v.listenEnded()
	case fapi.MLME_BLOCKACK_ERROR_IND:
		v.rxBlockackError(sig)
	case fapi.MA_BLOCKACK_IND:
		v.rxBlockack(sig)
	case fapi.MLME_NAN_EVENT_IND, fapi.MLME_NAN_SERVICE_IND, fapi.MLME_NAN_FOLLOWUP_IND:
		v.rxNAN(sig)
	case fapi.MLME_RANGE_IND, fapi.MLME_RANGE_DONE_IND:
		v.rxRange(sig)
	default:
		v.debug("rx:unhandled", sigAttr("id", id))
		sig.Free()
	}
}

func (d *Device) rxDebugFault(sig *fapi.Signal) {
	defer sig.Free()
	fault := sig.U16(fapi.DebugFaultIndFault)
	cpu := sig.U16(fapi.DebugFaultIndProcessor)
	if sig.U16(fapi.DebugFaultIndFatal) == 0 {
		d.warn("debug-fault", slog.Int("fault", int(fault)), slog.Int("cpu", int(cpu)))
		return
	}
	d.logerr("debug-fault:fatal", slog.Int("fault", int(fault)), slog.Int("cpu", int(cpu)))
	d.serviceFailure("firmware fault")
}
