package dot11

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket/layers"
)

// Management frame layout.
const (
	MgmtHeaderLen        = 24
	beaconFixedLen       = 12 // Timestamp, beacon interval, capability.
	assocReqFixedLen     = 4  // Capability, listen interval.
	reassocReqFixedLen   = 10 // Capability, listen interval, current AP.
	assocRespFixedLen    = 6  // Capability, status, association id.
	actionCategoryOffset = MgmtHeaderLen
)

// Action frame categories.
const (
	CategoryPublic         = 4
	CategoryWMM            = 17
	CategoryVendorSpecific = 127
)

// Type returns the gopacket type and subtype of the frame, as computed by
// layers.Dot11 from the frame control field.
func Type(frame []byte) layers.Dot11Type {
	if len(frame) < 2 {
		return 0
	}
	return layers.Dot11Type(frame[0]&0xFC) >> 2
}

func IsMgmt(frame []byte) bool {
	return len(frame) >= MgmtHeaderLen && Type(frame).MainType() == layers.Dot11TypeMgmt
}

func IsBeacon(frame []byte) bool    { return Type(frame) == layers.Dot11TypeMgmtBeacon }
func IsProbeResp(frame []byte) bool { return Type(frame) == layers.Dot11TypeMgmtProbeResp }
func IsProbeReq(frame []byte) bool  { return Type(frame) == layers.Dot11TypeMgmtProbeReq }
func IsAction(frame []byte) bool    { return Type(frame) == layers.Dot11TypeMgmtAction }

func addr(frame []byte, off int) (a [6]byte) {
	if len(frame) >= off+6 {
		copy(a[:], frame[off:])
	}
	return a
}

// Addr1 is the receiver address, Addr2 the transmitter address and Addr3
// the BSSID of a management frame.
func Addr1(frame []byte) [6]byte { return addr(frame, 4) }
func Addr2(frame []byte) [6]byte { return addr(frame, 10) }
func Addr3(frame []byte) [6]byte { return addr(frame, 16) }

// BSSID returns the BSSID of a management frame.
func BSSID(frame []byte) [6]byte { return Addr3(frame) }

// MACString formats addr as colon separated lower case hex.
func MACString(addr [6]byte) string { return net.HardwareAddr(addr[:]).String() }

// BeaconIEs returns the element section of a beacon or probe response.
func BeaconIEs(frame []byte) ([]byte, error) {
	if !IsMgmt(frame) {
		return nil, errNotMgmtFrame
	}
	if len(frame) < MgmtHeaderLen+beaconFixedLen {
		return nil, errShortFrame
	}
	return frame[MgmtHeaderLen+beaconFixedLen:], nil
}

// BeaconInterval returns the beacon interval in time units.
func BeaconInterval(frame []byte) uint16 {
	if len(frame) < MgmtHeaderLen+beaconFixedLen {
		return 0
	}
	return binary.LittleEndian.Uint16(frame[MgmtHeaderLen+8:])
}

// ProbeReqIEs returns the element section of a probe request.
func ProbeReqIEs(frame []byte) ([]byte, error) {
	if !IsMgmt(frame) {
		return nil, errNotMgmtFrame
	}
	return frame[MgmtHeaderLen:], nil
}

// AssocReqIEs returns the elements of an (re)association request body,
// the frame without its MAC header.
func AssocReqIEs(body []byte, reassoc bool) ([]byte, error) {
	fixed := assocReqFixedLen
	if reassoc {
		fixed = reassocReqFixedLen
	}
	if len(body) < fixed {
		return nil, errShortFrame
	}
	return body[fixed:], nil
}

// AssocRespIEs returns the elements of an (re)association response body.
func AssocRespIEs(body []byte) ([]byte, error) {
	if len(body) < assocRespFixedLen {
		return nil, errShortFrame
	}
	return body[assocRespFixedLen:], nil
}

// AssocRespStatus returns the status code and association id of an
// (re)association response body.
func AssocRespStatus(body []byte) (status layers.Dot11Status, aid uint16) {
	if len(body) < assocRespFixedLen {
		return 0, 0
	}
	status = layers.Dot11Status(binary.LittleEndian.Uint16(body[2:]))
	aid = binary.LittleEndian.Uint16(body[4:]) & 0x3FFF
	return status, aid
}

// WithIEs returns a copy of a beacon or probe response with its element
// section replaced by ies.
func WithIEs(frame, ies []byte) []byte {
	head := MgmtHeaderLen + beaconFixedLen
	out := make([]byte, head+len(ies))
	copy(out, frame[:head])
	copy(out[head:], ies)
	return out
}

// ActionCategory returns the category of an action frame or -1.
func ActionCategory(frame []byte) int {
	if !IsAction(frame) || len(frame) <= actionCategoryOffset {
		return -1
	}
	return int(frame[actionCategoryOffset])
}

// P2P public action frame layout: category, action, OUI, type, subtype.
var p2pPublicOUI = []byte{0x50, 0x6f, 0x9a, 0x09}

// P2P public action subtypes.
const (
	P2PGONegReq = iota
	P2PGONegResp
	P2PGONegConf
	P2PInvitationReq
	P2PInvitationResp
	P2PDevDiscReq
	P2PDevDiscResp
	P2PProvDiscReq
	P2PProvDiscResp
)

// P2PPublicSubtype returns the subtype of a Wi-Fi Direct public action frame or -1.
func P2PPublicSubtype(frame []byte) int {
	const off = actionCategoryOffset
	if ActionCategory(frame) != CategoryPublic || len(frame) < off+7 {
		return -1
	}
	if frame[off+1] != 9 || string(frame[off+2:off+6]) != string(p2pPublicOUI) {
		return -1
	}
	return int(frame[off+6])
}

// P2PExpectsResponse reports whether a P2P public action subtype is the
// first leg of an exchange, so the peer's reply must be listened for.
func P2PExpectsResponse(subtype int) bool {
	switch subtype {
	case P2PGONegReq, P2PGONegResp, P2PInvitationReq, P2PDevDiscReq, P2PProvDiscReq:
		return true
	}
	return false
}

// NewMgmtHeader returns a 24 byte management header of type t.
func NewMgmtHeader(t layers.Dot11Type, da, sa, bssid [6]byte) []byte {
	h := make([]byte, MgmtHeaderLen)
	h[0] = byte(t) << 2
	copy(h[4:], da[:])
	copy(h[10:], sa[:])
	copy(h[16:], bssid[:])
	return h
}

// NewBeacon builds a beacon or probe response frame with the given elements.
func NewBeacon(probeResp bool, bssid [6]byte, interval uint16, ies []byte) []byte {
	t := layers.Dot11TypeMgmtBeacon
	if probeResp {
		t = layers.Dot11TypeMgmtProbeResp
	}
	frame := NewMgmtHeader(t, [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, bssid, bssid)
	var fixed [beaconFixedLen]byte
	binary.LittleEndian.PutUint16(fixed[8:], interval)
	frame = append(frame, fixed[:]...)
	return append(frame, ies...)
}

// RequestIEs returns the elements of an association or reassociation
// request frame, header included in frame.
func RequestIEs(frame []byte) ([]byte, error) {
	if !IsMgmt(frame) {
		return nil, errNotMgmtFrame
	}
	return AssocReqIEs(frame[MgmtHeaderLen:], Type(frame) == layers.Dot11TypeMgmtReassociationReq)
}

// ResponseIEs returns the elements of an association or reassociation
// response frame.
func ResponseIEs(frame []byte) ([]byte, error) {
	if !IsMgmt(frame) {
		return nil, errNotMgmtFrame
	}
	return AssocRespIEs(frame[MgmtHeaderLen:])
}

// ResponseStatus returns the status code of an association or
// reassociation response frame.
func ResponseStatus(frame []byte) (layers.Dot11Status, bool) {
	if !IsMgmt(frame) || len(frame) < MgmtHeaderLen+assocRespFixedLen {
		return 0, false
	}
	status, _ := AssocRespStatus(frame[MgmtHeaderLen:])
	return status, true
}

// NewAssocReq builds an association request frame from sa to bssid.
func NewAssocReq(sa, bssid [6]byte, ies []byte) []byte {
	frame := NewMgmtHeader(layers.Dot11TypeMgmtAssociationReq, bssid, sa, bssid)
	frame = append(frame, make([]byte, assocReqFixedLen)...)
	return append(frame, ies...)
}

// NewAssocResp builds an association response frame from bssid to da.
func NewAssocResp(bssid, da [6]byte, status layers.Dot11Status, aid uint16, ies []byte) []byte {
	frame := NewMgmtHeader(layers.Dot11TypeMgmtAssociationResp, da, bssid, bssid)
	var fixed [assocRespFixedLen]byte
	binary.LittleEndian.PutUint16(fixed[2:], uint16(status))
	binary.LittleEndian.PutUint16(fixed[4:], aid|0xC000)
	frame = append(frame, fixed[:]...)
	return append(frame, ies...)
}
