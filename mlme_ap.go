package slsi

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/soypat/slsi/fapi"
)

// APParams configures an AP or P2P group owner vif.
type APParams struct {
	SSID         []byte
	Channel      fapi.Channel
	BeaconPeriod uint16
	DTIMPeriod   uint16
	HiddenSSID   bool
	// Elements appended to beacons, probe responses and association responses.
	BeaconIEs    []byte
	ProbeRespIEs []byte
	AssocRespIEs []byte
}

// StartAP starts beaconing.
func (v *VIF) StartAP(p APParams) error {
	if len(p.SSID) == 0 || len(p.SSID) > 32 {
		return fmt.Errorf("%w: ssid length %d", ErrInvalidArgument, len(p.SSID))
	}
	if p.BeaconPeriod == 0 {
		p.BeaconPeriod = 100
	}
	if p.DTIMPeriod == 0 {
		p.DTIMPeriod = 1
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.typ.IsAPLike() {
		return errWrongVifType
	}
	if err := v.requireActivated("start-ap"); err != nil {
		return err
	}
	if len(p.ProbeRespIEs) > 0 {
		if err := v.addInfoElements(fapi.PurposeProbeResponse, p.ProbeRespIEs); err != nil {
			return err
		}
	}
	if len(p.AssocRespIEs) > 0 {
		if err := v.addInfoElements(fapi.PurposeAssociationResponse, p.AssocRespIEs); err != nil {
			return err
		}
	}
	if err := v.start(p); err != nil {
		return err
	}
	v.ap.ssid = bytes.Clone(p.SSID)
	v.ap.beaconPeriod = p.BeaconPeriod
	v.channel = p.Channel
	if v.typ == fapi.VifP2PGO {
		v.setP2PState(P2PGroupFormedGO)
	}
	v.info("StartAP:done", slog.String("ssid", string(p.SSID)), slog.String("channel", p.Channel.String()))
	return nil
}

func (v *VIF) start(p APParams) error {
	v.mu.AssertHeld()
	b := fapi.NewBuilder(fapi.MLME_START_REQ, v.ifnum)
	b.PutU16(fapi.StartReqBeaconPeriod, p.BeaconPeriod)
	b.PutU16(fapi.StartReqDTIMPeriod, p.DTIMPeriod)
	b.PutChannel(fapi.StartReqFreq, fapi.StartReqChanInfo, p.Channel)
	b.PutU16(fapi.StartReqHiddenSSID, b2u16(p.HiddenSSID))
	b.AppendIE(fapi.ElemSSID, p.SSID)
	b.Append(p.BeaconIEs)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_START_CFM))
}

// SetACL restricts which stations may associate. With ACLPolicyAllow only
// addrs may join, with ACLPolicyDeny addrs are refused.
func (v *VIF) SetACL(policy uint16, addrs [][6]byte) error {
	if policy != fapi.ACLPolicyAllow && policy != fapi.ACLPolicyDeny {
		return ErrInvalidArgument
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.typ.IsAPLike() {
		return errWrongVifType
	}
	if err := v.setACL(policy, addrs); err != nil {
		return err
	}
	v.ap.aclPolicy = policy
	v.ap.acl = append(v.ap.acl[:0], addrs...)
	return nil
}

func (v *VIF) setACL(policy uint16, addrs [][6]byte) error {
	v.mu.AssertHeld()
	if err := v.requireActivated("set-acl"); err != nil {
		return err
	}
	b := fapi.NewBuilder(fapi.MLME_SET_ACL_REQ, v.ifnum)
	b.PutU16(fapi.SetACLReqEntries, uint16(len(addrs)))
	b.PutU16(fapi.SetACLReqPolicy, policy)
	for _, a := range addrs {
		b.AppendAddr(a)
	}
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_SET_ACL_CFM))
}
