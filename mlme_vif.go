package slsi

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/soypat/slsi/dot11"
	"github.com/soypat/slsi/fapi"
	"go.uber.org/multierr"
)

// AddVIF creates a virtual interface of type typ with MAC address addr and
// registers it with the firmware. The vif is visible to Receive before the
// request is sent so early indications are not lost.
func (d *Device) AddVIF(typ fapi.VifType, addr [6]byte, ch fapi.Channel) (*VIF, error) {
	d.netdevMu.Lock()
	defer d.netdevMu.Unlock()
	var ifnum uint16
	for i := uint16(1); i <= MaxVIFs; i++ {
		if d.vifs[i].Load() == nil {
			ifnum = i
			break
		}
	}
	if ifnum == 0 {
		return nil, fmt.Errorf("%w: %w", ErrBusy, errNoVIF)
	}
	v := newVIF(d, ifnum, typ, addr)
	d.vifs[ifnum].Store(v)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.addVif(ch); err != nil {
		d.vifs[ifnum].Store(nil)
		return nil, err
	}
	v.activated = true
	v.channel = ch
	if typ == fapi.VifUnsync {
		v.p2p.state = P2PIdleVIFActive
	}
	if typ == fapi.VifNAN {
		v.nan.publish = make(map[uint16]struct{})
		v.nan.subscribe = make(map[uint16]struct{})
	}
	v.info("AddVIF:done", slog.String("type", typ.String()), macAttr("addr", addr))
	return v, nil
}

// DelVIF disconnects, aborts scans and removes v from the firmware. Local
// state is always released, errors of the individual steps are combined.
func (d *Device) DelVIF(v *VIF) error {
	d.netdevMu.Lock()
	defer d.netdevMu.Unlock()
	if v == nil || d.vifs[v.ifnum].Load() != v {
		return ErrInvalidArgument
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return d.delVIFLocked(v)
}

func (d *Device) delVIFLocked(v *VIF) (err error) {
	d.netdevMu.AssertHeld()
	v.mu.AssertHeld()
	if v.activated && v.typ.IsStationLike() && v.sta.state != StaDisconnected {
		bssid := v.sta.bssid
		err = multierr.Append(err, v.disconnect(bssid, fapi.ReasonDeauthLeaving, false))
		v.handleDisconnect(bssid, fapi.ReasonDeauthLeaving, true)
	}
	v.scanMu.Lock()
	for i := range v.scan {
		s := &v.scan[i]
		if !s.active {
			continue
		}
		if v.activated {
			err = multierr.Append(err, v.delScan(s.slot))
		}
		v.scanComplete(s, true)
	}
	v.scanMu.Unlock()
	if v.typ.IsAPLike() {
		for _, p := range v.peers {
			if p != nil {
				d.notify(DelStation{vifEvent: vifEvent{v.ifnum}, Peer: p.addr, Reason: fapi.ReasonDeauthLeaving})
			}
		}
	}
	if v.activated {
		err = multierr.Append(err, v.delVif())
	}
	v.teardownLocal()
	v.p2p.state = P2PNoVIF
	d.vifs[v.ifnum].Store(nil)
	d.metrics.setPeers(v.ifnum, 0)
	v.info("DelVIF:done", slog.Bool("clean", err == nil))
	return err
}

func (v *VIF) addVif(ch fapi.Channel) error {
	v.mu.AssertHeld()
	b := fapi.NewBuilder(fapi.MLME_ADD_VIF_REQ, v.ifnum)
	b.PutAddr(fapi.AddVifReqAddress, v.addr)
	b.PutU16(fapi.AddVifReqType, uint16(v.typ))
	b.PutU16(fapi.AddVifReqFreq, ch.FirmwareFreq())
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_ADD_VIF_CFM))
}

func (v *VIF) delVif() error {
	v.mu.AssertHeld()
	sig, err := seal(fapi.NewBuilder(fapi.MLME_DEL_VIF_REQ, v.ifnum))
	if err != nil {
		return err
	}
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_DEL_VIF_CFM))
}

// sendMgmt issues MLME_SEND_FRAME_REQ for an 802.11 frame and checks the
// confirmation. The outcome of the transmission is reported later by
// MLME_FRAME_TRANSMISSION_IND with the same host tag.
func (v *VIF) sendMgmt(frame []byte, tag uint16, ch fapi.Channel, dwell time.Duration) error {
	v.mu.AssertHeld()
	if err := v.requireActivated("send-mgmt"); err != nil {
		return err
	}
	b := fapi.NewBuilder(fapi.MLME_SEND_FRAME_REQ, v.ifnum)
	b.PutU16(fapi.SendFrameReqHostTag, tag)
	b.PutU16(fapi.SendFrameReqDescriptor, uint16(fapi.DescriptorIEEE80211))
	b.PutU16(fapi.SendFrameReqMessageType, uint16(fapi.MessageTypeMgmt))
	b.PutU16(fapi.SendFrameReqFreq, ch.FirmwareFreq())
	b.PutU32(fapi.SendFrameReqDwellTime, uint32(dwell/time.Microsecond))
	b.Append(frame)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	v.debug("send-mgmt", slog.Int("tag", int(tag)), slog.Int("freq", int(ch.Freq)), slog.Int("subtype", int(dot11.Type(frame))))
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_SEND_FRAME_CFM))
}

// RegisterActionFrames selects the action frame categories reported while
// awake and while suspended, one bit per category.
func (v *VIF) RegisterActionFrames(active, suspended uint32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registerActionFrame(active, suspended)
}

func (v *VIF) registerActionFrame(active, suspended uint32) error {
	v.mu.AssertHeld()
	if err := v.requireActivated("register-action-frame"); err != nil {
		return err
	}
	b := fapi.NewBuilder(fapi.MLME_REGISTER_ACTION_FRAME_REQ, v.ifnum)
	b.PutU32(fapi.RegisterActionFrameReqActive, active)
	b.PutU32(fapi.RegisterActionFrameReqSuspended, suspended)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_REGISTER_ACTION_FRAME_CFM))
}

// ChannelSwitch moves an AP vif to ch. The new channel takes effect with
// MLME_CHANNEL_SWITCHED_IND.
func (v *VIF) ChannelSwitch(ch fapi.Channel) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.typ.IsAPLike() {
		return errWrongVifType
	}
	if err := v.requireActivated("channel-switch"); err != nil {
		return err
	}
	b := fapi.NewBuilder(fapi.MLME_CHANNEL_SWITCH_REQ, v.ifnum)
	b.PutChannel(fapi.ChannelSwitchReqFreq, fapi.ChannelSwitchReqChanInfo, ch)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	v.info("channel-switch", slog.String("channel", ch.String()))
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_CHANNEL_SWITCH_CFM))
}

// Packet filter modes.
const (
	FilterDropMatching  = 0
	FilterPassMatching  = 1
	FilterFlagSuspended = 1 << 7
)

// PacketFilter discards or passes frames whose payload at Offset matches
// Pattern under Mask.
type PacketFilter struct {
	ID      uint8
	Mode    uint8
	Offset  uint16
	Pattern []byte
	Mask    []byte
}

// SetPacketFilters installs filters, replacing any previous set. An empty
// list removes all filters.
func (v *VIF) SetPacketFilters(filters []PacketFilter) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.setPacketFilter(filters)
}

func (v *VIF) setPacketFilter(filters []PacketFilter) error {
	v.mu.AssertHeld()
	if err := v.requireActivated("packet-filter"); err != nil {
		return err
	}
	b := fapi.NewBuilder(fapi.MLME_SET_PACKET_FILTER_REQ, v.ifnum)
	b.PutU16(fapi.SetPacketFilterReqCount, uint16(len(filters)))
	for _, f := range filters {
		if len(f.Mask) != 0 && len(f.Mask) != len(f.Pattern) {
			b.Discard()
			return fmt.Errorf("%w: filter %d mask length", ErrInvalidArgument, f.ID)
		}
		b.BeginVendor(fapi.OUISamsung, fapi.VendorTypeFAPI, fapi.SubtypePacketFilter)
		b.AppendU8(f.ID)
		b.AppendU8(f.Mode)
		b.AppendU16(f.Offset)
		b.AppendU8(uint8(len(f.Pattern)))
		b.Append(f.Pattern)
		b.Append(f.Mask)
		b.EndElement()
	}
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_SET_PACKET_FILTER_CFM))
}

// SetPowerMode selects active or power save operation.
func (v *VIF) SetPowerMode(mode fapi.PowerMode) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireActivated("powermgt"); err != nil {
		return err
	}
	b := fapi.NewBuilder(fapi.MLME_POWERMGT_REQ, v.ifnum)
	b.PutU16(fapi.PowerMgtReqMode, uint16(mode))
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_POWERMGT_CFM))
}

// SetTxPower sets the transmit power level in dBm.
func (v *VIF) SetTxPower(dbm int16) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireActivated("tx-power"); err != nil {
		return err
	}
	b := fapi.NewBuilder(fapi.MLME_SET_TX_POWER_REQ, v.ifnum)
	b.PutU16(fapi.SetTxPowerReqLevel, uint16(dbm))
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_SET_TX_POWER_CFM))
}
