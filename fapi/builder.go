package fapi

import "errors"

var (
	ErrNoSpace         = errors.New("fapi: signal buffer exhausted")
	ErrElementTooLong  = errors.New("fapi: element longer than 255 bytes")
	ErrUnbalancedElems = errors.New("fapi: unbalanced element begin/end")
)

// Element ids used in vendor sub-elements appended to request data.
const (
	ElemSSID   = 0
	ElemVendor = 221
)

// OUIs of vendor sub-elements.
var (
	OUISamsung   = [3]byte{0x00, 0x16, 0x32}
	OUIWFA       = [3]byte{0x50, 0x6f, 0x9a}
	OUIMicrosoft = [3]byte{0x00, 0x50, 0xf2}
)

// Vendor sub-element type and subtypes appended by request builders.
const (
	VendorTypeFAPI = 0x01

	SubtypeChannelList     = 0x01
	SubtypeScanTiming      = 0x02
	SubtypeSSIDFilter      = 0x03
	SubtypeBSSIDHotlist    = 0x04
	SubtypeChannelInfo     = 0x05
	SubtypeNANConfig       = 0x06
	SubtypeNANService      = 0x07
	SubtypeRTTPeer         = 0x08
	SubtypePacketFilter    = 0x09
	SubtypeScanPolicy      = 0x0A
	SubtypeTDLSChannel     = 0x0B
	SubtypeConnectTimeouts = 0x0C
)

// Builder assembles a signal. Fields are written at fixed offsets with the
// typed Put methods. Data is appended afterwards, optionally wrapped in
// self describing elements whose length byte is patched when the element is
// ended. Errors are sticky and reported by Seal.
type Builder struct {
	buf       []byte
	fieldsLen int
	open      []int // Offsets of open elements' length bytes.
	err       error
}

// NewBuilder starts a signal with the fields length registered for id.
func NewBuilder(id SignalID, vif uint16) *Builder {
	n := FieldsLenOf(id)
	buf := getBuf(HeaderLen + n)
	Header{ID: id, VIF: vif, FieldsLen: uint16(n)}.Put(buf)
	return &Builder{buf: buf, fieldsLen: n}
}

func (b *Builder) field(off uint16, size int) []byte {
	if int(off)+size > b.fieldsLen {
		panic("fapi: field out of range for " + SignalID(order.Uint16(b.buf)).String())
	}
	return b.buf[HeaderLen+int(off):]
}

func (b *Builder) PutU16(f U16, v uint16) { order.PutUint16(b.field(uint16(f), 2), v) }
func (b *Builder) PutU32(f U32, v uint32) { order.PutUint32(b.field(uint16(f), 4), v) }

func (b *Builder) PutAddr(f Addr, addr [6]byte) { copy(b.field(uint16(f), 6), addr[:]) }

func (b *Builder) PutOctets(f Octets, v []byte) {
	dst := b.field(f.Off, int(f.Len))[:f.Len]
	clear(dst)
	copy(dst, v)
}

// PutChannel writes ch into a frequency field, doubled to firmware units,
// and its matching channel information field.
func (b *Builder) PutChannel(freq, info U16, ch Channel) {
	b.PutU16(freq, ch.FirmwareFreq())
	b.PutU16(info, ch.Info())
}

func (b *Builder) grow(n int) []byte {
	if b.err != nil {
		return nil
	}
	if len(b.buf)+n > MaxSignalLen {
		b.err = ErrNoSpace
		return nil
	}
	l := len(b.buf)
	if cap(b.buf)-l < n {
		nb := make([]byte, l, 2*cap(b.buf)+n)
		copy(nb, b.buf)
		b.buf = nb
	}
	b.buf = b.buf[:l+n]
	return b.buf[l:]
}

func (b *Builder) Append(data []byte) {
	if dst := b.grow(len(data)); dst != nil {
		copy(dst, data)
	}
}

func (b *Builder) AppendU8(v uint8) {
	if dst := b.grow(1); dst != nil {
		dst[0] = v
	}
}

func (b *Builder) AppendU16(v uint16) {
	if dst := b.grow(2); dst != nil {
		order.PutUint16(dst, v)
	}
}

func (b *Builder) AppendU32(v uint32) {
	if dst := b.grow(4); dst != nil {
		order.PutUint32(dst, v)
	}
}

func (b *Builder) AppendAddr(addr [6]byte) { b.Append(addr[:]) }

// AppendIE appends a complete information element.
func (b *Builder) AppendIE(id byte, info []byte) {
	if len(info) > 255 {
		b.err = ErrElementTooLong
		return
	}
	if dst := b.grow(2 + len(info)); dst != nil {
		dst[0] = id
		dst[1] = byte(len(info))
		copy(dst[2:], info)
	}
}

// BeginElement opens an element with id. Its length is written by EndElement.
func (b *Builder) BeginElement(id byte) {
	dst := b.grow(2)
	if dst == nil {
		return
	}
	dst[0] = id
	b.open = append(b.open, len(b.buf)-1)
}

// BeginVendor opens a vendor element: id, length, OUI, type and subtype.
func (b *Builder) BeginVendor(oui [3]byte, typ, subtype byte) {
	b.BeginElement(ElemVendor)
	b.Append(oui[:])
	b.AppendU8(typ)
	b.AppendU8(subtype)
}

// EndElement closes the innermost open element and patches its length byte.
func (b *Builder) EndElement() {
	if b.err != nil {
		return
	}
	if len(b.open) == 0 {
		b.err = ErrUnbalancedElems
		return
	}
	off := b.open[len(b.open)-1]
	b.open = b.open[:len(b.open)-1]
	n := len(b.buf) - off - 1
	if n > 255 {
		b.err = ErrElementTooLong
		return
	}
	b.buf[off] = byte(n)
}

// Err returns the first error encountered while building.
func (b *Builder) Err() error { return b.err }

// Seal finishes the signal. On error the partially built buffer is released.
func (b *Builder) Seal() (*Signal, error) {
	if b.err == nil && len(b.open) != 0 {
		b.err = ErrUnbalancedElems
	}
	if b.err != nil {
		b.Discard()
		return nil, b.err
	}
	order.PutUint16(b.buf[8:], uint16(b.fieldsLen))
	s := &Signal{buf: b.buf}
	b.buf = nil
	return s, nil
}

// Discard releases the builder's buffer without producing a signal.
func (b *Builder) Discard() {
	if b.buf != nil {
		putBuf(b.buf)
		b.buf = nil
	}
}
