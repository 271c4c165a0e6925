package dot11

// Access categories, in the bit order used by the host's ACM and U-APSD masks.
const (
	ACBestEffort = iota
	ACBackground
	ACVideo
	ACVoice
)

const (
	wmmSubtypeInfo  = 0
	wmmSubtypeParam = 1
)

// WMMQoSInfo returns the QoS info byte of the WMM information or parameter
// element in ies.
func WMMQoSInfo(ies []byte) (qos byte, ok bool) {
	e, ok := FindVendor(ies, ouiWMM)
	// Element: id, len, OUI(3), type, subtype, version, qos info.
	if !ok || len(e) < 9 {
		return 0, false
	}
	return e[8], true
}

// ACMMask returns a bitmask of access categories for which the WMM parameter
// element in ies requires admission control.
func ACMMask(ies []byte) (mask uint8, ok bool) {
	e, ok := FindVendor(ies, ouiWMM)
	if !ok || len(e) < 10 || e[6] != wmmSubtypeParam {
		return 0, false
	}
	// Parameter records follow qos info and a reserved byte.
	recs := e[10:]
	for i := 0; i+4 <= len(recs) && i < 16; i += 4 {
		aciAifsn := recs[i]
		aci := (aciAifsn >> 5) & 0x3
		if aciAifsn&0x10 != 0 {
			mask |= 1 << aci
		}
	}
	return mask, true
}

// UAPSDMask converts a station's WMM QoS info byte into a bitmask of
// U-APSD enabled access categories.
func UAPSDMask(qosInfo byte) (mask uint8) {
	// QoS info bits: 0 AC_VO, 1 AC_VI, 2 AC_BK, 3 AC_BE.
	if qosInfo&0x01 != 0 {
		mask |= 1 << ACVoice
	}
	if qosInfo&0x02 != 0 {
		mask |= 1 << ACVideo
	}
	if qosInfo&0x04 != 0 {
		mask |= 1 << ACBackground
	}
	if qosInfo&0x08 != 0 {
		mask |= 1 << ACBestEffort
	}
	return mask
}

// WMMInfoElement returns a WMM information element with qosInfo.
func WMMInfoElement(qosInfo byte) []byte {
	return []byte{221, 7, 0x00, 0x50, 0xf2, 0x02, wmmSubtypeInfo, 1, qosInfo}
}
