package slsi

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/soypat/slsi/dot11"
	"github.com/soypat/slsi/fapi"
)

// ConnectParams describes a station connection attempt.
type ConnectParams struct {
	BSSID   [6]byte
	SSID    []byte
	Channel fapi.Channel
	Auth    fapi.AuthType
	// IEs are the supplicant's association elements. The RSN element, or the
	// WAPI element when WAPI is set, is sent with the connect request.
	IEs  []byte
	WAPI bool
	// PreAssocIEs are installed with MLME_ADD_INFO_ELEMENTS_REQ before
	// connecting, such as interworking and QoS info elements.
	PreAssocIEs []byte
	// WEPKey is provisioned before connecting, for open system and shared
	// key authentication alike.
	WEPKey   []byte
	WEPKeyID uint16
	// WPS connections are not disconnected on EAP transmission failures.
	WPS bool
}

// Connect starts associating to p.BSSID. The outcome is reported by a
// ConnectResult event once the firmware indicates completion.
func (v *VIF) Connect(p ConnectParams) error {
	if p.BSSID == ([6]byte{}) || len(p.SSID) == 0 {
		return fmt.Errorf("%w: connect needs bssid and ssid", ErrInvalidArgument)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.typ.IsStationLike() {
		return errWrongVifType
	}
	if err := v.requireActivated("connect"); err != nil {
		return err
	}
	if v.sta.state != StaDisconnected {
		return ErrBusy
	}
	pr, err := v.addPeer(p.BSSID, staPeerIndex)
	if err != nil {
		return err
	}
	_, secured := dot11.SecurityIE(p.IEs, p.WAPI)
	v.sta.bssid = p.BSSID
	v.sta.ssid = bytes.Clone(p.SSID)
	// WEP has no key handshake, only RSN, WPA and WAPI wait for one.
	v.sta.secured = secured
	v.sta.isWPS = p.WPS
	v.channel = p.Channel
	v.setStaState(StaConnecting)
	if err := v.connect(p); err != nil {
		v.removePeer(pr)
		v.resetSta()
		return err
	}
	return nil
}

// connect builds and sends MLME_CONNECT_REQ after the WEP and additional
// element sub steps. It does not move the station state.
func (v *VIF) connect(p ConnectParams) error {
	v.mu.AssertHeld()
	if p.BSSID == ([6]byte{}) || len(p.SSID) == 0 {
		panic("slsi: connect without bssid or ssid")
	}
	if len(p.WEPKey) > 0 {
		err := v.setKey(Key{Type: fapi.KeyWEP, ID: p.WEPKeyID, Addr: p.BSSID, Material: p.WEPKey})
		if err != nil {
			return err
		}
	}
	if len(p.PreAssocIEs) > 0 {
		if err := v.addInfoElements(fapi.PurposeAssociationRequest, p.PreAssocIEs); err != nil {
			return err
		}
	}
	b := fapi.NewBuilder(fapi.MLME_CONNECT_REQ, v.ifnum)
	b.PutAddr(fapi.ConnectReqBSSID, p.BSSID)
	b.PutU16(fapi.ConnectReqAuthType, uint16(p.Auth))
	b.PutChannel(fapi.ConnectReqFreq, fapi.ConnectReqChanInfo, p.Channel)
	b.AppendIE(fapi.ElemSSID, p.SSID)
	if sec, ok := dot11.SecurityIE(p.IEs, p.WAPI); ok {
		b.Append(sec)
	}
	sig, err := seal(b)
	if err != nil {
		return err
	}
	v.info("connect", macAttr("bssid", p.BSSID), slog.String("ssid", string(p.SSID)), slog.Int("freq", int(p.Channel.Freq)))
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_CONNECT_CFM))
}

// Disconnect leaves the current BSS. Disconnecting an idle station is not
// an error.
func (v *VIF) Disconnect(reason uint16) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sta.state == StaDisconnected {
		v.debug("disconnect:idle")
		return nil
	}
	bssid := v.sta.bssid
	err := v.disconnect(bssid, reason, true)
	v.handleDisconnect(bssid, reason, true)
	return err
}

// DisconnectPeer deauthenticates a station associated to an AP vif.
func (v *VIF) DisconnectPeer(addr [6]byte, reason uint16) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.typ.IsAPLike() {
		return errWrongVifType
	}
	if v.peerByAddr(addr) == nil {
		return errNoPeer
	}
	err := v.disconnect(addr, reason, true)
	v.handleDisconnect(addr, reason, true)
	return err
}

// disconnect issues MLME_DISCONNECT_REQ. With wait set it also blocks for
// the disconnect indication.
func (v *VIF) disconnect(addr [6]byte, reason uint16, wait bool) error {
	v.mu.AssertHeld()
	b := fapi.NewBuilder(fapi.MLME_DISCONNECT_REQ, v.ifnum)
	b.PutAddr(fapi.DisconnectReqPeer, addr)
	b.PutU16(fapi.DisconnectReqReason, reason)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	v.info("disconnect", macAttr("peer", addr), slog.Int("reason", int(reason)), slog.Bool("wait", wait))
	if !wait {
		return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_DISCONNECT_CFM))
	}
	ind, err := v.d.reqCfmInd(v.wait, sig, fapi.MLME_DISCONNECT_CFM, fapi.MLME_DISCONNECT_IND, nil, 0)
	ind.Free()
	return err
}

// Key is a cipher key installed with MLME_SETKEYS_REQ.
type Key struct {
	Type fapi.KeyType
	ID   uint16
	// Addr is the peer of pairwise keys. Group keys use the broadcast address.
	Addr   [6]byte
	Seq    []byte
	Cipher uint32
	// Material is the key itself.
	Material []byte
}

// SetKey installs k. It does not change the port state.
func (v *VIF) SetKey(k Key) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.setKey(k)
}

func (v *VIF) setKey(k Key) error {
	v.mu.AssertHeld()
	if err := v.requireActivated("setkey"); err != nil {
		return err
	}
	if len(k.Seq) > int(fapi.SetKeysReqSequence.Len) {
		return fmt.Errorf("%w: key sequence length %d", ErrInvalidArgument, len(k.Seq))
	}
	b := fapi.NewBuilder(fapi.MLME_SETKEYS_REQ, v.ifnum)
	b.PutU16(fapi.SetKeysReqLength, uint16(len(k.Material)*8))
	b.PutU16(fapi.SetKeysReqKeyID, k.ID)
	b.PutU16(fapi.SetKeysReqKeyType, uint16(k.Type))
	b.PutAddr(fapi.SetKeysReqAddress, k.Addr)
	b.PutOctets(fapi.SetKeysReqSequence, k.Seq)
	b.PutU32(fapi.SetKeysReqCipher, k.Cipher)
	b.Append(k.Material)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	v.debug("setkey", slog.Int("type", int(k.Type)), slog.Int("id", int(k.ID)), macAttr("addr", k.Addr))
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_SETKEYS_CFM))
}

// KeySequence returns the transmit sequence counter of a key.
func (v *VIF) KeySequence(typ fapi.KeyType, id uint16, addr [6]byte) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.getKeySequence(typ, id, addr)
}

func (v *VIF) getKeySequence(typ fapi.KeyType, id uint16, addr [6]byte) ([]byte, error) {
	v.mu.AssertHeld()
	if err := v.requireActivated("get-key-sequence"); err != nil {
		return nil, err
	}
	b := fapi.NewBuilder(fapi.MLME_GET_KEY_SEQUENCE_REQ, v.ifnum)
	b.PutU16(fapi.GetKeySequenceReqKeyID, id)
	b.PutU16(fapi.GetKeySequenceReqKeyType, uint16(typ))
	b.PutAddr(fapi.GetKeySequenceReqAddress, addr)
	sig, err := seal(b)
	if err != nil {
		return nil, err
	}
	cfm, err := v.d.reqCfm(v.wait, sig, fapi.MLME_GET_KEY_SEQUENCE_CFM)
	if err != nil {
		return nil, err
	}
	defer cfm.Free()
	if r := cfm.Result(); !r.IsSuccess() {
		return nil, &ResultError{Signal: cfm.ID(), Result: r}
	}
	seq := cfm.Data()
	if n := int(cfm.U16(fapi.GetKeySequenceCfmKeyLen)); n < len(seq) {
		seq = seq[:n]
	}
	return bytes.Clone(seq), nil
}

// Roam requests a firmware roam to bssid on ch. Completion is reported as
// Roamed once MLME_ROAMED_IND arrives.
func (v *VIF) Roam(bssid [6]byte, ch fapi.Channel) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sta.state != StaConnected {
		return fmt.Errorf("%w: roam while %v", ErrInvalidArgument, v.sta.state)
	}
	b := fapi.NewBuilder(fapi.MLME_ROAM_REQ, v.ifnum)
	b.PutAddr(fapi.RoamReqBSSID, bssid)
	b.PutU16(fapi.RoamReqFreq, ch.FirmwareFreq())
	sig, err := seal(b)
	if err != nil {
		return err
	}
	v.info("roam", macAttr("bssid", bssid), slog.Int("freq", int(ch.Freq)))
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_ROAM_CFM))
}

// Reassociate reassociates to bssid, the current BSS when zero.
func (v *VIF) Reassociate(bssid [6]byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sta.state != StaConnected {
		return fmt.Errorf("%w: reassociate while %v", ErrInvalidArgument, v.sta.state)
	}
	if bssid == ([6]byte{}) {
		bssid = v.sta.bssid
	}
	b := fapi.NewBuilder(fapi.MLME_REASSOCIATE_REQ, v.ifnum)
	b.PutAddr(fapi.ReassociateReqBSSID, bssid)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	v.info("reassociate", macAttr("bssid", bssid))
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_REASSOCIATE_CFM))
}

// SetPMK installs the pairwise master key used by firmware roaming.
func (v *VIF) SetPMK(pmk []byte) error {
	if len(pmk) != 32 && len(pmk) != 48 {
		return fmt.Errorf("%w: pmk length %d", ErrInvalidArgument, len(pmk))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireActivated("set-pmk"); err != nil {
		return err
	}
	b := fapi.NewBuilder(fapi.MLME_SET_PMK_REQ, v.ifnum)
	b.Append(pmk)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_SET_PMK_CFM))
}

// AddInfoElements installs elements the firmware adds to frames of purpose.
func (v *VIF) AddInfoElements(purpose fapi.Purpose, ies []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.addInfoElements(purpose, ies)
}

func (v *VIF) addInfoElements(purpose fapi.Purpose, ies []byte) error {
	v.mu.AssertHeld()
	if err := v.requireActivated("add-info-elements"); err != nil {
		return err
	}
	if err := dot11.Validate(ies); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	b := fapi.NewBuilder(fapi.MLME_ADD_INFO_ELEMENTS_REQ, v.ifnum)
	b.PutU16(fapi.AddInfoElementsReqPurpose, uint16(purpose))
	b.Append(ies)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_ADD_INFO_ELEMENTS_CFM))
}

// connectResponse acknowledges a connect indication. Responses are never
// confirmed.
func (v *VIF) connectResponse(peerIndex uint16) error {
	v.mu.AssertHeld()
	b := fapi.NewBuilder(fapi.MLME_CONNECT_RES, v.ifnum)
	b.PutU16(fapi.ConnectResPeerIndex, peerIndex)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.sendRequest(sig)
}

func (v *VIF) roamedResponse() error {
	v.mu.AssertHeld()
	sig, err := seal(fapi.NewBuilder(fapi.MLME_ROAMED_RES, v.ifnum))
	if err != nil {
		return err
	}
	return v.d.sendRequest(sig)
}

func (v *VIF) reassociateResponse() error {
	v.mu.AssertHeld()
	sig, err := seal(fapi.NewBuilder(fapi.MLME_REASSOCIATE_RES, v.ifnum))
	if err != nil {
		return err
	}
	return v.d.sendRequest(sig)
}

// sendPendingResponse sends the response deferred until the 4-way handshake
// completed.
func (v *VIF) sendPendingResponse() {
	v.mu.AssertHeld()
	id := v.sta.pending
	v.sta.pending = 0
	var err error
	switch id {
	case 0:
		return
	case fapi.MLME_CONNECT_RES:
		err = v.connectResponse(staPeerIndex)
	case fapi.MLME_ROAMED_RES:
		err = v.roamedResponse()
	case fapi.MLME_REASSOCIATE_RES:
		err = v.reassociateResponse()
	}
	if err != nil {
		v.logerr("pending-response", sigAttr("id", id), slog.String("err", err.Error()))
		return
	}
	v.debug("pending-response", sigAttr("id", id))
}

// blockackControl tears down or sets up the block ack session of a TID.
// The firmware does not confirm the request.
func (v *VIF) blockackControl(addr [6]byte, tid, action uint16) error {
	v.mu.AssertHeld()
	b := fapi.NewBuilder(fapi.MLME_BLOCKACK_CONTROL_REQ, v.ifnum)
	b.PutAddr(fapi.BlockackControlReqPeer, addr)
	b.PutU16(fapi.BlockackControlReqPriority, tid)
	b.PutU16(fapi.BlockackControlReqAction, action)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.sendRequest(sig)
}
