package slsi

import (
	"log/slog"

	"github.com/soypat/slsi/dot11"
	"github.com/soypat/slsi/fapi"
)

const (
	// MTU is the largest payload of a frame passed to SendData.
	MTU          = 1500
	ethHeaderLen = 14
)

// MTU (maximum transmission unit) returns the maximum amount
// of bytes that can be sent in a single ethernet frame in a call to SendData.
func (d *Device) MTU() int { return MTU }

// RecvEthHandle sets handler for receiving Ethernet pkt on a vif.
// If set to nil then incoming packets are ignored. pkt is only valid
// for the duration of the call.
func (d *Device) RecvEthHandle(handler func(vif uint16, pkt []byte) error) {
	d.ethmu.Lock()
	defer d.ethmu.Unlock()
	d.rcvEth = handler
}

func (d *Device) deliverEth(ifnum uint16, pkt []byte) {
	d.ethmu.Lock()
	handler := d.rcvEth
	d.ethmu.Unlock()
	if handler == nil {
		d.debug("RecvEthHandle handler not set, dropping Rx packet")
		return
	}
	if err := handler(ifnum, pkt); err != nil {
		d.debug("rx:eth-handler", slog.Int("vif", int(ifnum)), slog.String("err", err.Error()))
	}
}

// SendData transmits an Ethernet II frame on vif ifnum without waiting
// for a confirmation. Frames other than EAPOL are refused with
// ErrPortClosed until the destination peer is connected.
func (d *Device) SendData(ifnum uint16, frame []byte) error {
	if len(frame) < ethHeaderLen || len(frame) > MTU+ethHeaderLen {
		return ErrInvalidArgument
	}
	v := d.VIF(ifnum)
	if v == nil {
		return errUnknownVIF
	}
	if et := dot11.EtherType(frame); et == dot11.EtherTypeEAPOL || et == dot11.EtherTypeWAI {
		return v.sendEAPOL(frame)
	}
	var dst [6]byte
	copy(dst[:], frame[:6])
	var (
		p     *peer
		state PeerState
		group = dst[0]&1 != 0
	)
	switch {
	case !v.portOpen.Load():
		return ErrPortClosed
	case v.typ.IsAPLike() && group:
		// Group addressed traffic goes out on peer index 0.
	case v.typ.IsAPLike():
		if p, state = v.dataPeerByAddr(dst); p == nil {
			return errNoPeer
		}
	default:
		// Direct link peers take precedence over the access point.
		if p, state = v.dataPeerByAddr(dst); p == nil || !p.tdls {
			p, state = v.dataPeer(staPeerIndex)
		}
	}
	if p != nil && state != PeerConnected {
		return ErrPortClosed
	}
	var idx uint16
	if p != nil {
		idx = p.index
	}
	b := fapi.NewBuilder(fapi.MA_UNITDATA_REQ, ifnum)
	b.PutU16(fapi.UnitdataReqHostTag, d.nextHostTag())
	b.PutU16(fapi.UnitdataReqPriority, 0)
	b.PutU16(fapi.UnitdataReqPeerIndex, idx)
	b.Append(frame)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	err = d.sendRequest(sig)
	if p != nil {
		p.txFrames.Add(1)
		if err != nil {
			p.txFailed.Add(1)
		}
	}
	return err
}

// sendEAPOL sends a handshake frame with MLME_SEND_FRAME_REQ. M4 and EAP
// frames are tagged so their transmission status can be acted on.
func (v *VIF) sendEAPOL(frame []byte) error {
	c := dot11.Classify(frame)
	tag := v.d.nextHostTag()
	typ := fapi.MessageTypeOther
	switch {
	case c.Kind == dot11.KindEAPOLKeyM4:
		typ = fapi.MessageTypeEAPOLKeyM4
		v.m4Tag.Store(uint32(tag))
	case c.Kind == dot11.KindEAP:
		typ = fapi.MessageTypeEAP
		v.eapTag.Store(uint32(tag))
	case c.Kind.IsEAPOLKey():
		typ = fapi.MessageTypeEAPOLKeyM123
	}
	b := fapi.NewBuilder(fapi.MLME_SEND_FRAME_REQ, v.ifnum)
	b.PutU16(fapi.SendFrameReqHostTag, tag)
	b.PutU16(fapi.SendFrameReqDescriptor, uint16(fapi.DescriptorIEEE8023))
	b.PutU16(fapi.SendFrameReqMessageType, uint16(typ))
	b.Append(frame)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	v.debug("tx:eapol", slog.String("kind", c.String()), slog.Int("tag", int(tag)))
	return v.d.sendRequest(sig)
}

// rxUnitdata passes a received data frame to the network stack.
func (d *Device) rxUnitdata(sig *fapi.Signal) {
	defer sig.Free()
	v := d.VIF(sig.VIF())
	if v == nil {
		d.debug("rx:unitdata-no-vif", slog.Int("vif", int(sig.VIF())))
		return
	}
	frame := sig.Data()
	idx := sig.U16(fapi.UnitdataIndPeerIndex)
	p, state := v.dataPeer(idx)
	if p == nil {
		v.debug("rx:unitdata-no-peer", slog.Int("index", int(idx)))
		return
	}
	p.rxFrames.Add(1)
	if state != PeerConnected && dot11.EtherType(frame) != dot11.EtherTypeEAPOL {
		v.debug("rx:unitdata-port-closed", slog.Int("index", int(idx)))
		return
	}
	if d.isTraceEnabled() {
		d.trace("rx:unitdata", slog.Int("vif", int(v.ifnum)), slog.String("kind", dot11.Classify(frame).String()), slog.Int("len", len(frame)))
	}
	d.deliverEth(v.ifnum, frame)
}
