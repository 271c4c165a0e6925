package fapi

import (
	"errors"
	"strconv"
)

var errMIBTruncated = errors.New("fapi: truncated mib entry")

// PSID identifies a firmware managed information base entry.
type PSID uint16

// MIB entries touched by the host.
const (
	PSIDCountryCode         PSID = 0x0100
	PSIDBand                PSID = 0x0101
	PSIDRSSIRoamTrigger     PSID = 0x0110
	PSIDRoamDelta           PSID = 0x0111
	PSIDRoamScanPeriod      PSID = 0x0112
	PSIDFullRoamScanPeriod  PSID = 0x0113
	PSIDScanChannelTime     PSID = 0x0114
	PSIDScanHomeTime        PSID = 0x0115
	PSIDScanHomeAwayTime    PSID = 0x0116
	PSIDScanNProbes         PSID = 0x0117
	PSIDRoamMode            PSID = 0x0118
	PSIDRoamIntraBand       PSID = 0x0119
	PSIDRoamBand            PSID = 0x011A
	PSIDRoamScanControl     PSID = 0x011B
	PSIDOKCMode             PSID = 0x011C
	PSIDWESMode             PSID = 0x011D
	PSIDRoamScanChannels    PSID = 0x011E
	PSIDTxPowerCalling      PSID = 0x0120
	PSIDSuspendMode         PSID = 0x0121
	PSIDP2PPowerSave        PSID = 0x0122
	PSIDP2PNoA              PSID = 0x0123
	PSIDRegulatory          PSID = 0x0124
	PSIDCountryRevision     PSID = 0x0125
	PSIDStationRSSI         PSID = 0x0130
	PSIDStationTxRate       PSID = 0x0131
	PSIDDebugDump           PSID = 0x01F0
	PSIDSupportedChannels   PSID = 0x0140
	PSIDLinkSpeed           PSID = 0x0141
	PSIDActiveBandsBitmap   PSID = 0x0142
	PSIDDefaultScanDwell    PSID = 0x0143
	PSIDMaxClientsSupported PSID = 0x0144
)

func (p PSID) String() string { return "psid(0x" + strconv.FormatUint(uint64(p), 16) + ")" }

// MIBValueKind tags the value encoding of a MIB entry.
type MIBValueKind uint8

const (
	MIBNone MIBValueKind = iota
	MIBUint
	MIBInt
	MIBBool
	MIBOctets
)

// MIBEntry is a single PSID/value pair. Index holds up to two table indices.
type MIBEntry struct {
	PSID   PSID
	Index  []uint16
	Kind   MIBValueKind
	Uint   uint32
	Int    int32
	Bool   bool
	Octets []byte
}

func MIBUintEntry(p PSID, v uint32) MIBEntry { return MIBEntry{PSID: p, Kind: MIBUint, Uint: v} }
func MIBIntEntry(p PSID, v int32) MIBEntry   { return MIBEntry{PSID: p, Kind: MIBInt, Int: v} }
func MIBBoolEntry(p PSID, v bool) MIBEntry   { return MIBEntry{PSID: p, Kind: MIBBool, Bool: v} }
func MIBOctetEntry(p PSID, v []byte) MIBEntry {
	return MIBEntry{PSID: p, Kind: MIBOctets, Octets: v}
}

// MIBGetEntry is an entry with no value, as used in MLME_GET_REQ.
func MIBGetEntry(p PSID) MIBEntry { return MIBEntry{PSID: p} }

// Encoded entry layout: psid u16, length u16, index count u8,
// indices u16*n, kind u8, value. Octet values carry a u16 length prefix.
// Entries are padded to an even length.
func (e MIBEntry) encodedValueLen() int {
	switch e.Kind {
	case MIBUint, MIBInt:
		return 4
	case MIBBool:
		return 1
	case MIBOctets:
		return 2 + len(e.Octets)
	}
	return 0
}

// AppendMIB appends the encoding of e to the builder data.
func (b *Builder) AppendMIB(e MIBEntry) {
	n := 1 + 2*len(e.Index) + 1 + e.encodedValueLen()
	pad := n & 1
	b.AppendU16(uint16(e.PSID))
	b.AppendU16(uint16(n + pad))
	b.AppendU8(uint8(len(e.Index)))
	for _, idx := range e.Index {
		b.AppendU16(idx)
	}
	b.AppendU8(uint8(e.Kind))
	switch e.Kind {
	case MIBUint:
		b.AppendU32(e.Uint)
	case MIBInt:
		b.AppendU32(uint32(e.Int))
	case MIBBool:
		if e.Bool {
			b.AppendU8(1)
		} else {
			b.AppendU8(0)
		}
	case MIBOctets:
		b.AppendU16(uint16(len(e.Octets)))
		b.Append(e.Octets)
	}
	if pad != 0 {
		b.AppendU8(0)
	}
}

// DecodeMIB decodes all entries in data. Octet values alias data.
func DecodeMIB(data []byte) ([]MIBEntry, error) {
	var entries []MIBEntry
	for len(data) > 0 {
		if len(data) < 5 {
			return entries, errMIBTruncated
		}
		var e MIBEntry
		e.PSID = PSID(order.Uint16(data))
		n := int(order.Uint16(data[2:]))
		if 4+n > len(data) || n < 2 {
			return entries, errMIBTruncated
		}
		body := data[4 : 4+n]
		data = data[4+n:]
		nidx := int(body[0])
		if 1+2*nidx+1 > len(body) {
			return entries, errMIBTruncated
		}
		for i := 0; i < nidx; i++ {
			e.Index = append(e.Index, order.Uint16(body[1+2*i:]))
		}
		body = body[1+2*nidx:]
		e.Kind = MIBValueKind(body[0])
		val := body[1:]
		switch e.Kind {
		case MIBUint, MIBInt:
			if len(val) < 4 {
				return entries, errMIBTruncated
			}
			e.Uint = order.Uint32(val)
			e.Int = int32(e.Uint)
		case MIBBool:
			if len(val) < 1 {
				return entries, errMIBTruncated
			}
			e.Bool = val[0] != 0
		case MIBOctets:
			if len(val) < 2 || 2+int(order.Uint16(val)) > len(val) {
				return entries, errMIBTruncated
			}
			e.Octets = val[2 : 2+order.Uint16(val)]
		}
		entries = append(entries, e)
	}
	return entries, nil
}
