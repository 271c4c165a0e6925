// Package dot11 provides the small subset of IEEE 802.11 and 802.3 frame
// handling the MLME core needs: information element lookup and rewrite,
// management frame field access and diagnostic classification of data frames.
package dot11

import (
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	errInvalidIE    = errors.New("dot11: invalid information element")
	errShortFrame   = errors.New("dot11: frame too short")
	errNotMgmtFrame = errors.New("dot11: not a management frame")
)

// Element ids not defined by gopacket's layers package.
const (
	IDWAPI layers.Dot11InformationElementID = 68
)

var ouiWMM = []byte{0x00, 0x50, 0xf2, 0x02}

// Walk decodes the information elements in ies in order and calls fn for
// each until fn returns false. Info and OUI alias ies.
func Walk(ies []byte, fn func(ie *layers.Dot11InformationElement) bool) error {
	var ie layers.Dot11InformationElement
	for len(ies) > 0 {
		if len(ies) < 2 || len(ies) < 2+int(ies[1]) {
			return errInvalidIE
		}
		if layers.Dot11InformationElementID(ies[0]) == layers.Dot11InformationElementIDVendor && ies[1] < 4 {
			// Too short to carry an OUI. Hand it over raw.
			ie = layers.Dot11InformationElement{
				ID:     layers.Dot11InformationElementIDVendor,
				Length: ies[1],
				Info:   ies[2 : 2+int(ies[1])],
			}
		} else if err := ie.DecodeFromBytes(ies, gopacket.NilDecodeFeedback); err != nil {
			return err
		}
		if !fn(&ie) {
			return nil
		}
		ies = ies[2+int(ies[1]):]
	}
	return nil
}

// Validate reports whether ies is a well formed sequence of elements.
func Validate(ies []byte) error {
	return Walk(ies, func(*layers.Dot11InformationElement) bool { return true })
}

// Find returns the whole first element with id, header included.
func Find(ies []byte, id layers.Dot11InformationElementID) ([]byte, bool) {
	for len(ies) >= 2 && len(ies) >= 2+int(ies[1]) {
		n := 2 + int(ies[1])
		if layers.Dot11InformationElementID(ies[0]) == id {
			return ies[:n], true
		}
		ies = ies[n:]
	}
	return nil, false
}

// FindVendor returns the whole first vendor element whose OUI and type
// match the 4 byte ouiType.
func FindVendor(ies []byte, ouiType []byte) ([]byte, bool) {
	var found []byte
	off := 0
	Walk(ies, func(ie *layers.Dot11InformationElement) bool {
		n := 2 + int(ie.Length)
		if ie.ID == layers.Dot11InformationElementIDVendor && len(ie.OUI) == 4 && string(ie.OUI) == string(ouiType) {
			found = ies[off : off+n]
			return false
		}
		off += n
		return true
	})
	return found, found != nil
}

// SSID returns the contents of the SSID element. ok is false if there is none.
func SSID(ies []byte) (ssid []byte, ok bool) {
	e, ok := Find(ies, layers.Dot11InformationElementIDSSID)
	if !ok {
		return nil, false
	}
	return e[2:], true
}

// IsHiddenSSID reports whether ssid is the empty or NUL padded sentinel
// that hidden access points advertise.
func IsHiddenSSID(ssid []byte) bool {
	return len(ssid) == 0 || ssid[0] == 0
}

// ReplaceSSID returns a copy of ies where the SSID element is replaced by
// one carrying ssid. The remaining elements keep their order. If ies has no
// SSID element one is prepended.
func ReplaceSSID(ies []byte, ssid []byte) ([]byte, error) {
	if len(ssid) > 32 {
		return nil, errInvalidIE
	}
	var elems []gopacket.SerializableLayer
	replaced := false
	err := Walk(ies, func(ie *layers.Dot11InformationElement) bool {
		e := *ie
		if e.ID == layers.Dot11InformationElementIDSSID && !replaced {
			e.Info = ssid
			e.Length = uint8(len(ssid))
			replaced = true
		}
		elems = append(elems, &e)
		return true
	})
	if err != nil {
		return nil, err
	}
	if !replaced {
		elems = append([]gopacket.SerializableLayer{&layers.Dot11InformationElement{
			ID:     layers.Dot11InformationElementIDSSID,
			Length: uint8(len(ssid)),
			Info:   ssid,
		}}, elems...)
	}
	buf := gopacket.NewSerializeBuffer()
	err = gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, elems...)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SecurityIE returns the RSN element, or the WAPI element when wapi is set.
func SecurityIE(ies []byte, wapi bool) ([]byte, bool) {
	if wapi {
		return Find(ies, IDWAPI)
	}
	return Find(ies, layers.Dot11InformationElementIDRSNInfo)
}
