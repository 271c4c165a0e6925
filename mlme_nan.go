package slsi

import (
	"fmt"
	"log/slog"

	"github.com/soypat/slsi/fapi"
)

// NANConfig holds the cluster parameters of NAN enable and config requests.
type NANConfig struct {
	MasterPreference uint8
	ClusterLow       uint16
	ClusterHigh      uint16
	// Flags are passed to the firmware unchanged.
	Flags uint16
}

func appendNANConfig(b *fapi.Builder, c NANConfig) {
	b.BeginVendor(fapi.OUISamsung, fapi.VendorTypeFAPI, fapi.SubtypeNANConfig)
	b.AppendU8(c.MasterPreference)
	b.AppendU16(c.ClusterLow)
	b.AppendU16(c.ClusterHigh)
	b.EndElement()
}

// NANService describes a publish or subscribe session.
type NANService struct {
	// ID of an existing session to update, 0 to create one.
	ID    uint16
	Flags uint16
	Name  []byte
	Info  []byte
}

func appendNANService(b *fapi.Builder, s NANService) {
	b.BeginVendor(fapi.OUISamsung, fapi.VendorTypeFAPI, fapi.SubtypeNANService)
	b.AppendU8(uint8(len(s.Name)))
	b.Append(s.Name)
	b.Append(s.Info)
	b.EndElement()
}

func (v *VIF) requireNAN(op string) error {
	v.mu.AssertHeld()
	if v.typ != fapi.VifNAN {
		return errWrongVifType
	}
	return v.requireActivated(op)
}

// NANEnable joins or starts a NAN cluster.
func (v *VIF) NANEnable(c NANConfig) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireNAN("nan-start"); err != nil {
		return err
	}
	b := fapi.NewBuilder(fapi.MLME_NAN_START_REQ, v.ifnum)
	b.PutU16(fapi.NANStartReqFlags, c.Flags)
	appendNANConfig(b, c)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	if err := v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_NAN_START_CFM)); err != nil {
		return err
	}
	v.nan.enabled = true
	return nil
}

// NANConfigure updates the cluster parameters of an enabled NAN vif.
func (v *VIF) NANConfigure(c NANConfig) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireNAN("nan-config"); err != nil {
		return err
	}
	if !v.nan.enabled {
		return ErrInvalidArgument
	}
	b := fapi.NewBuilder(fapi.MLME_NAN_CONFIG_REQ, v.ifnum)
	b.PutU16(fapi.NANConfigReqFlags, c.Flags)
	appendNANConfig(b, c)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_NAN_CONFIG_CFM))
}

// NANDisable leaves the cluster. Sessions are dropped locally.
func (v *VIF) NANDisable() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireNAN("nan-disable"); err != nil {
		return err
	}
	if !v.nan.enabled {
		return nil
	}
	// A start request without cluster parameters stops NAN.
	sig, err := seal(fapi.NewBuilder(fapi.MLME_NAN_START_REQ, v.ifnum))
	if err != nil {
		return err
	}
	err = v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_NAN_START_CFM))
	v.nan.enabled = false
	clear(v.nan.publish)
	clear(v.nan.subscribe)
	return err
}

// NANPublish creates or updates a publish session and returns its id.
func (v *VIF) NANPublish(s NANService) (uint16, error) {
	return v.nanService(fapi.MLME_NAN_PUBLISH_REQ, s)
}

// NANSubscribe creates or updates a subscribe session and returns its id.
func (v *VIF) NANSubscribe(s NANService) (uint16, error) {
	return v.nanService(fapi.MLME_NAN_SUBSCRIBE_REQ, s)
}

func (v *VIF) nanService(id fapi.SignalID, s NANService) (uint16, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireNAN("nan-service"); err != nil {
		return 0, err
	}
	if !v.nan.enabled {
		return 0, fmt.Errorf("%w: nan not enabled", ErrInvalidArgument)
	}
	idField, flagsField, sessions := fapi.NANPublishReqID, fapi.NANPublishReqFlags, v.nan.publish
	if id == fapi.MLME_NAN_SUBSCRIBE_REQ {
		idField, flagsField, sessions = fapi.NANSubscribeReqID, fapi.NANSubscribeReqFlags, v.nan.subscribe
	}
	b := fapi.NewBuilder(id, v.ifnum)
	b.PutU16(idField, s.ID)
	b.PutU16(flagsField, s.Flags)
	appendNANService(b, s)
	sig, err := seal(b)
	if err != nil {
		return 0, err
	}
	cfm, err := v.d.reqCfm(v.wait, sig, id.Cfm())
	if err != nil {
		return 0, err
	}
	sid := cfm.U16(fapi.CfmAux)
	if err := v.d.checkCfm(cfm); err != nil {
		return 0, err
	}
	sessions[sid] = struct{}{}
	v.debug("nan-service", sigAttr("req", id), slog.Int("session", int(sid)))
	return sid, nil
}

// NANFollowup sends a follow up message to the peer matched by matchID.
func (v *VIF) NANFollowup(session, matchID uint16, msg []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireNAN("nan-followup"); err != nil {
		return err
	}
	_, pub := v.nan.publish[session]
	_, sub := v.nan.subscribe[session]
	if !pub && !sub {
		return fmt.Errorf("%w: unknown nan session %d", ErrInvalidArgument, session)
	}
	b := fapi.NewBuilder(fapi.MLME_NAN_FOLLOWUP_REQ, v.ifnum)
	b.PutU16(fapi.NANFollowupReqSession, session)
	b.PutU16(fapi.NANFollowupReqMatchID, matchID)
	b.Append(msg)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_NAN_FOLLOWUP_CFM))
}

// RangePeer is one responder of an RTT measurement.
type RangePeer struct {
	Addr    [6]byte
	Channel fapi.Channel
	Burst   uint8
}

// AddRange starts RTT measurements and returns the id reported with the results.
func (v *VIF) AddRange(requestID uint16, peers []RangePeer) (uint16, error) {
	if len(peers) == 0 {
		return 0, ErrInvalidArgument
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireActivated("add-range"); err != nil {
		return 0, err
	}
	b := fapi.NewBuilder(fapi.MLME_ADD_RANGE_REQ, v.ifnum)
	b.PutU16(fapi.AddRangeReqRequestID, requestID)
	b.PutU16(fapi.AddRangeReqEntries, uint16(len(peers)))
	for _, p := range peers {
		b.BeginVendor(fapi.OUISamsung, fapi.VendorTypeFAPI, fapi.SubtypeRTTPeer)
		b.AppendAddr(p.Addr)
		b.AppendU16(p.Channel.FirmwareFreq())
		b.AppendU16(p.Channel.Info())
		b.AppendU8(p.Burst)
		b.EndElement()
	}
	sig, err := seal(b)
	if err != nil {
		return 0, err
	}
	cfm, err := v.d.reqCfm(v.wait, sig, fapi.MLME_ADD_RANGE_CFM)
	if err != nil {
		return 0, err
	}
	rtt := cfm.U16(fapi.AddRangeCfmRTTID)
	if err := v.d.checkCfm(cfm); err != nil {
		return 0, err
	}
	return rtt, nil
}

// DelRange cancels measurements towards peers of range rttID, all of them
// when peers is empty.
func (v *VIF) DelRange(rttID uint16, peers [][6]byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireActivated("del-range"); err != nil {
		return err
	}
	b := fapi.NewBuilder(fapi.MLME_DEL_RANGE_REQ, v.ifnum)
	b.PutU16(fapi.DelRangeReqRTTID, rttID)
	b.PutU16(fapi.DelRangeReqEntries, uint16(len(peers)))
	for _, p := range peers {
		b.AppendAddr(p)
	}
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_DEL_RANGE_CFM))
}
