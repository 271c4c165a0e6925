package fwsim

import (
	"github.com/google/gopacket/layers"
	"github.com/soypat/slsi/dot11"
	"github.com/soypat/slsi/fapi"
)

// Confirm returns the confirmation of req carrying result, addressed to the
// process that sent req.
func Confirm(req *fapi.Signal, result fapi.ResultCode) *fapi.Signal {
	cfm := fapi.New(req.ID().Cfm(), req.VIF())
	cfm.SetReceiverPID(req.SenderPID())
	b := cfm.Fields()
	b[0], b[1] = byte(result), byte(result>>8)
	return cfm
}

// ConfirmAux is Confirm with the signal specific second field set.
func ConfirmAux(req *fapi.Signal, result fapi.ResultCode, aux uint16) *fapi.Signal {
	cfm := Confirm(req, result)
	b := cfm.Fields()
	b[2], b[3] = byte(aux), byte(aux>>8)
	return cfm
}

// ConfirmData is Confirm with a payload, used by GET and SET confirmations.
func ConfirmData(req *fapi.Signal, result fapi.ResultCode, data []byte) *fapi.Signal {
	cfm := Confirm(req, result)
	defer cfm.Free()
	return cfm.WithData(data)
}

// Reply answers every request with a successful confirmation followed by
// the indications built by inds.
func Reply(inds ...func(req *fapi.Signal) *fapi.Signal) Rule {
	return func(req *fapi.Signal) []*fapi.Signal {
		out := []*fapi.Signal{Confirm(req, fapi.SUCCESS)}
		for _, ind := range inds {
			out = append(out, ind(req))
		}
		return out
	}
}

// Fail answers every request with a confirmation carrying result.
func Fail(result fapi.ResultCode) Rule {
	return func(req *fapi.Signal) []*fapi.Signal {
		return []*fapi.Signal{Confirm(req, result)}
	}
}

func mustSeal(b *fapi.Builder) *fapi.Signal {
	sig, err := b.Seal()
	if err != nil {
		panic("fwsim: " + err.Error())
	}
	return sig
}

// ScanInd reports a beacon or probe response received on freq MHz.
func ScanInd(vif, scanID, freq uint16, rssi int16, frame []byte) *fapi.Signal {
	b := fapi.NewBuilder(fapi.MLME_SCAN_IND, vif)
	b.PutU16(fapi.ScanIndScanID, scanID)
	b.PutU16(fapi.ScanIndRSSI, uint16(rssi))
	b.PutU16(fapi.ScanIndFreq, freq*2)
	b.Append(frame)
	return mustSeal(b)
}

// ScanDoneInd ends scan scanID. Scan done indications carry vif 0.
func ScanDoneInd(scanID uint16) *fapi.Signal {
	b := fapi.NewBuilder(fapi.MLME_SCAN_DONE_IND, 0)
	b.PutU16(fapi.ScanDoneIndScanID, scanID)
	return mustSeal(b)
}

// Beacon returns a beacon from bssid advertising ssid followed by extra IEs.
func Beacon(bssid [6]byte, ssid []byte, extra []byte) []byte {
	ies := appendIE(nil, byte(layers.Dot11InformationElementIDSSID), ssid)
	ies = append(ies, extra...)
	return dot11.NewBeacon(false, bssid, 100, ies)
}

// ProbeResp is Beacon for probe responses.
func ProbeResp(bssid [6]byte, ssid []byte, extra []byte) []byte {
	ies := appendIE(nil, byte(layers.Dot11InformationElementIDSSID), ssid)
	ies = append(ies, extra...)
	return dot11.NewBeacon(true, bssid, 100, ies)
}

func appendIE(dst []byte, id byte, info []byte) []byte {
	dst = append(dst, id, byte(len(info)))
	return append(dst, info...)
}

// ProcedureStartedInd reports the start of a connection with the
// association request frame.
func ProcedureStartedInd(vif uint16, typ fapi.ProcedureType, peerIndex uint16, frame []byte) *fapi.Signal {
	b := fapi.NewBuilder(fapi.MLME_PROCEDURE_STARTED_IND, vif)
	b.PutU16(fapi.ProcedureStartedIndType, uint16(typ))
	b.PutU16(fapi.ProcedureStartedIndPeerIndex, peerIndex)
	b.Append(frame)
	return mustSeal(b)
}

// ConnectInd ends a connection attempt with the association response frame.
func ConnectInd(vif uint16, bssid [6]byte, result fapi.ResultCode, frame []byte) *fapi.Signal {
	b := fapi.NewBuilder(fapi.MLME_CONNECT_IND, vif)
	b.PutAddr(fapi.ConnectIndBSSID, bssid)
	b.PutU16(fapi.ConnectIndResultCode, uint16(result))
	b.Append(frame)
	return mustSeal(b)
}

// ConnectedInd authorises the peer at peerIndex.
func ConnectedInd(vif, peerIndex uint16) *fapi.Signal {
	b := fapi.NewBuilder(fapi.MLME_CONNECTED_IND, vif)
	b.PutU16(fapi.ConnectedIndPeerIndex, peerIndex)
	return mustSeal(b)
}

// RoamedInd reports a roam to bssid with the reassociation response frame.
func RoamedInd(vif uint16, bssid [6]byte, tkReqd bool, frame []byte) *fapi.Signal {
	b := fapi.NewBuilder(fapi.MLME_ROAMED_IND, vif)
	b.PutAddr(fapi.RoamedIndBSSID, bssid)
	if tkReqd {
		b.PutU16(fapi.RoamedIndTKReqd, 1)
	}
	b.Append(frame)
	return mustSeal(b)
}

// DisconnectInd reports that peer left. id is MLME_DISCONNECT_IND or
// MLME_DISCONNECTED_IND.
func DisconnectInd(id fapi.SignalID, vif uint16, peer [6]byte, reason uint16) *fapi.Signal {
	b := fapi.NewBuilder(id, vif)
	b.PutAddr(fapi.DisconnectIndPeer, peer)
	b.PutU16(fapi.DisconnectIndReason, reason)
	return mustSeal(b)
}

// FrameTransmissionInd reports the transmission status of host tag.
func FrameTransmissionInd(vif, tag uint16, status fapi.TransmissionStatus) *fapi.Signal {
	b := fapi.NewBuilder(fapi.MLME_FRAME_TRANSMISSION_IND, vif)
	b.PutU16(fapi.FrameTransmissionIndHostTag, tag)
	b.PutU16(fapi.FrameTransmissionIndStatus, uint16(status))
	return mustSeal(b)
}

// UnitdataInd delivers an 802.3 frame from the peer at peerIndex.
func UnitdataInd(vif, peerIndex uint16, frame []byte) *fapi.Signal {
	b := fapi.NewBuilder(fapi.MA_UNITDATA_IND, vif)
	b.PutU16(fapi.UnitdataIndPeerIndex, peerIndex)
	b.Append(frame)
	return mustSeal(b)
}

// TDLSPeerInd reports a TDLS event for peer.
func TDLSPeerInd(vif uint16, peer [6]byte, ev fapi.TDLSEvent, peerIndex uint16) *fapi.Signal {
	b := fapi.NewBuilder(fapi.MLME_TDLS_PEER_IND, vif)
	b.PutAddr(fapi.TDLSPeerIndPeer, peer)
	b.PutU16(fapi.TDLSPeerIndEvent, uint16(ev))
	b.PutU16(fapi.TDLSPeerIndPeerIndex, peerIndex)
	return mustSeal(b)
}

// DebugFaultInd reports a firmware fault.
func DebugFaultInd(fault uint16, fatal bool) *fapi.Signal {
	b := fapi.NewBuilder(fapi.DEBUG_FAULT_IND, 0)
	b.PutU16(fapi.DebugFaultIndFault, fault)
	if fatal {
		b.PutU16(fapi.DebugFaultIndFatal, 1)
	}
	return mustSeal(b)
}

// AssocExchange returns matching association request and response frames
// between sta and bssid, the request carrying reqIEs.
func AssocExchange(sta, bssid [6]byte, ssid, reqIEs, respIEs []byte) (req, resp []byte) {
	ies := appendIE(nil, byte(layers.Dot11InformationElementIDSSID), ssid)
	ies = append(ies, reqIEs...)
	req = dot11.NewAssocReq(sta, bssid, ies)
	resp = dot11.NewAssocResp(bssid, sta, layers.Dot11StatusSuccess, 1, respIEs)
	return req, resp
}

// ReceivedFrameInd passes a frame outside of the data path: an 802.11
// management frame or an 802.3 frame depending on desc.
func ReceivedFrameInd(vif uint16, desc fapi.DataUnitDescriptor, freq uint16, rssi int16, frame []byte) *fapi.Signal {
	b := fapi.NewBuilder(fapi.MLME_RECEIVED_FRAME_IND, vif)
	b.PutU16(fapi.ReceivedFrameIndFreq, freq*2)
	b.PutU16(fapi.ReceivedFrameIndRSSI, uint16(rssi))
	b.PutU16(fapi.ReceivedFrameIndDescriptor, uint16(desc))
	b.Append(frame)
	return mustSeal(b)
}

// ListenEndInd ends the remain on channel period of vif.
func ListenEndInd(vif uint16) *fapi.Signal {
	return mustSeal(fapi.NewBuilder(fapi.MLME_LISTEN_END_IND, vif))
}

// Indication builds any firmware signal. fill sets its fields and payload.
func Indication(id fapi.SignalID, vif uint16, fill func(b *fapi.Builder)) *fapi.Signal {
	b := fapi.NewBuilder(id, vif)
	if fill != nil {
		fill(b)
	}
	return mustSeal(b)
}

// MIBData encodes entries the way MLME_GET_CFM and MLME_SET_REQ carry them.
func MIBData(entries ...fapi.MIBEntry) []byte {
	b := fapi.NewBuilder(fapi.MLME_SET_REQ, 0)
	for _, e := range entries {
		b.AppendMIB(e)
	}
	sig := mustSeal(b)
	defer sig.Free()
	return append([]byte(nil), sig.Data()...)
}

// MIBValues answers MLME_GET_REQ with entries, whatever was asked for.
func MIBValues(entries ...fapi.MIBEntry) Rule {
	data := MIBData(entries...)
	return func(req *fapi.Signal) []*fapi.Signal {
		return []*fapi.Signal{ConfirmData(req, fapi.SUCCESS, data)}
	}
}
