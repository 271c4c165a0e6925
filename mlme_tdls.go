package slsi

import (
	"log/slog"

	"github.com/soypat/slsi/fapi"
)

// TDLSAction asks the firmware to run a TDLS procedure with peer. Peer
// state changes follow through MLME_TDLS_PEER_IND.
func (v *VIF) TDLSAction(peer [6]byte, action fapi.TDLSAction) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if action == fapi.TDLSActionChannelSwitch {
		return ErrInvalidArgument
	}
	return v.tdlsAction(peer, action, fapi.Channel{})
}

// SetTDLSChannelSwitch moves the direct link with peer to ch. A zero
// channel cancels the switch and returns to the base channel.
func (v *VIF) SetTDLSChannelSwitch(peer [6]byte, ch fapi.Channel) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if p := v.peerByAddr(peer); p == nil || !p.tdls {
		return errNoPeer
	}
	return v.tdlsAction(peer, fapi.TDLSActionChannelSwitch, ch)
}

func (v *VIF) tdlsAction(peer [6]byte, action fapi.TDLSAction, ch fapi.Channel) error {
	v.mu.AssertHeld()
	if v.typ != fapi.VifStation {
		return errWrongVifType
	}
	if err := v.requireActivated("tdls-action"); err != nil {
		return err
	}
	if v.sta.state != StaConnected {
		return ErrInvalidArgument
	}
	b := fapi.NewBuilder(fapi.MLME_TDLS_ACTION_REQ, v.ifnum)
	b.PutAddr(fapi.TDLSActionReqPeer, peer)
	b.PutU16(fapi.TDLSActionReqAction, uint16(action))
	b.PutChannel(fapi.TDLSActionReqFreq, fapi.TDLSActionReqChanInfo, ch)
	if action == fapi.TDLSActionChannelSwitch {
		b.BeginVendor(fapi.OUISamsung, fapi.VendorTypeFAPI, fapi.SubtypeTDLSChannel)
		b.AppendU16(ch.FirmwareFreq())
		b.AppendU16(ch.Info())
		b.EndElement()
	}
	sig, err := seal(b)
	if err != nil {
		return err
	}
	v.debug("tdls-action", macAttr("peer", peer), slog.Int("action", int(action)))
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_TDLS_ACTION_CFM))
}

// tdlsPeerResponse acknowledges a TDLS peer indication.
func (v *VIF) tdlsPeerResponse(peerIndex uint16) error {
	v.mu.AssertHeld()
	b := fapi.NewBuilder(fapi.MLME_TDLS_PEER_RES, v.ifnum)
	b.PutU16(fapi.TDLSPeerResPeerIndex, peerIndex)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.sendRequest(sig)
}
