package dot11

import (
	"encoding/binary"
	"strconv"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// EtherTypes the data path treats specially.
const (
	EtherTypeEAPOL = 0x888E
	EtherTypeWAI   = 0x88B4
)

// FrameKind is a diagnostic classification of an 802.3 frame.
type FrameKind uint8

const (
	KindOther FrameKind = iota
	KindEAPOLKeyM1
	KindEAPOLKeyM2
	KindEAPOLKeyM3
	KindEAPOLKeyM4
	KindEAPOLKeyGroup
	KindEAP
	KindDHCP
	KindARP
)

func (k FrameKind) String() string {
	switch k {
	case KindEAPOLKeyM1:
		return "eapol-key-m1"
	case KindEAPOLKeyM2:
		return "eapol-key-m2"
	case KindEAPOLKeyM3:
		return "eapol-key-m3"
	case KindEAPOLKeyM4:
		return "eapol-key-m4"
	case KindEAPOLKeyGroup:
		return "eapol-key-group"
	case KindEAP:
		return "eap"
	case KindDHCP:
		return "dhcp"
	case KindARP:
		return "arp"
	}
	return "other"
}

// IsEAPOLKey reports whether k is any EAPOL-Key message.
func (k FrameKind) IsEAPOLKey() bool { return k >= KindEAPOLKeyM1 && k <= KindEAPOLKeyGroup }

// Classification is the result of Classify.
type Classification struct {
	Kind FrameKind
	// DHCP message type, valid when Kind is KindDHCP.
	DHCP layers.DHCPMsgType
	// DHCP transaction id, valid when Kind is KindDHCP.
	XID uint32
}

func (c Classification) String() string {
	if c.Kind == KindDHCP {
		return "dhcp-" + c.DHCP.String() + " xid=0x" + strconv.FormatUint(uint64(c.XID), 16)
	}
	return c.Kind.String()
}

// EtherType returns the EtherType of an Ethernet II frame or 0.
func EtherType(frame []byte) uint16 {
	if len(frame) < 14 {
		return 0
	}
	return binary.BigEndian.Uint16(frame[12:])
}

// EAPOL-Key key information bits.
const (
	keyInfoPairwise = 1 << 3
	keyInfoInstall  = 1 << 6
	keyInfoAck      = 1 << 7
	keyInfoMIC      = 1 << 8
	keyInfoSecure   = 1 << 9
)

// Classify decodes an 802.3 frame far enough to tell EAPOL handshake
// messages, EAP and DHCP apart. It never fails; undecodable frames are
// KindOther.
func Classify(frame []byte) Classification {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	if l := pkt.Layer(layers.LayerTypeEAPOL); l != nil {
		eapol := l.(*layers.EAPOL)
		switch eapol.Type {
		case layers.EAPOLTypeEAP:
			return Classification{Kind: KindEAP}
		case layers.EAPOLTypeKey:
			return Classification{Kind: eapolKeyKind(eapol.LayerPayload())}
		}
		return Classification{Kind: KindOther}
	}
	if pkt.Layer(layers.LayerTypeARP) != nil {
		return Classification{Kind: KindARP}
	}
	if l := pkt.Layer(layers.LayerTypeDHCPv4); l != nil {
		dhcp := l.(*layers.DHCPv4)
		c := Classification{Kind: KindDHCP, XID: dhcp.Xid}
		for _, opt := range dhcp.Options {
			if opt.Type == layers.DHCPOptMessageType && len(opt.Data) == 1 {
				c.DHCP = layers.DHCPMsgType(opt.Data[0])
			}
		}
		return c
	}
	return Classification{Kind: KindOther}
}

// eapolKeyKind decodes the key information field of an EAPOL-Key body.
func eapolKeyKind(body []byte) FrameKind {
	// Descriptor type (1), key information (2).
	if len(body) < 3 {
		return KindOther
	}
	info := binary.BigEndian.Uint16(body[1:])
	if info&keyInfoPairwise == 0 {
		return KindEAPOLKeyGroup
	}
	ack := info&keyInfoAck != 0
	mic := info&keyInfoMIC != 0
	switch {
	case ack && !mic:
		return KindEAPOLKeyM1
	case ack && mic && info&keyInfoInstall != 0:
		return KindEAPOLKeyM3
	case !ack && mic && info&keyInfoSecure != 0:
		return KindEAPOLKeyM4
	case !ack && mic:
		return KindEAPOLKeyM2
	}
	return KindOther
}
