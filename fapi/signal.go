package fapi

import (
	"encoding/binary"
	"errors"
	"sync"
)

var (
	ErrShortSignal    = errors.New("fapi: signal shorter than header")
	ErrBadFieldsLen   = errors.New("fapi: fields length exceeds signal")
	ErrSignalTooLarge = errors.New("fapi: signal too large")
)

var order = binary.LittleEndian

// Header is the fixed prefix of every signal.
type Header struct {
	ID          SignalID
	ReceiverPID uint16
	SenderPID   uint16
	VIF         uint16
	FieldsLen   uint16
}

func DecodeHeader(b []byte) (hdr Header) {
	_ = b[HeaderLen-1]
	hdr.ID = SignalID(order.Uint16(b))
	hdr.ReceiverPID = order.Uint16(b[2:])
	hdr.SenderPID = order.Uint16(b[4:])
	hdr.VIF = order.Uint16(b[6:])
	hdr.FieldsLen = order.Uint16(b[8:])
	return hdr
}

// Put puts all 10 bytes of the header in dst. Panics if dst is shorter than 10 bytes in length.
func (h Header) Put(dst []byte) {
	_ = dst[HeaderLen-1]
	order.PutUint16(dst, uint16(h.ID))
	order.PutUint16(dst[2:], h.ReceiverPID)
	order.PutUint16(dst[4:], h.SenderPID)
	order.PutUint16(dst[6:], h.VIF)
	order.PutUint16(dst[8:], h.FieldsLen)
}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 512)
		return &b
	},
}

func getBuf(n int) []byte {
	bp := bufPool.Get().(*[]byte)
	b := *bp
	if cap(b) < n {
		b = make([]byte, n)
	}
	b = b[:n]
	clear(b)
	return b
}

func putBuf(b []byte) {
	if cap(b) > MaxSignalLen {
		return
	}
	b = b[:0]
	bufPool.Put(&b)
}

// Signal is an owning handle over one signal buffer. Whoever holds a Signal
// is its sole owner and must either pass it on or call Free. Any use after
// Free panics.
type Signal struct {
	buf []byte
}

// Parse validates raw and wraps it in a Signal. Parse takes ownership of raw.
func Parse(raw []byte) (*Signal, error) {
	if len(raw) < HeaderLen {
		return nil, ErrShortSignal
	}
	if len(raw) > MaxSignalLen {
		return nil, ErrSignalTooLarge
	}
	hdr := DecodeHeader(raw)
	if HeaderLen+int(hdr.FieldsLen) > len(raw) {
		return nil, ErrBadFieldsLen
	}
	return &Signal{buf: raw}, nil
}

func (s *Signal) live() []byte {
	if s == nil || s.buf == nil {
		panic("fapi: use of freed signal")
	}
	return s.buf
}

// Free releases the signal's buffer. Freeing a nil signal is a no-op.
func (s *Signal) Free() {
	if s == nil || s.buf == nil {
		return
	}
	putBuf(s.buf)
	s.buf = nil
}

// Freed reports whether Free was called on s.
func (s *Signal) Freed() bool { return s == nil || s.buf == nil }

// Clone returns a deep copy of s owned by the caller.
func (s *Signal) Clone() *Signal {
	b := s.live()
	c := getBuf(len(b))
	copy(c, b)
	return &Signal{buf: c}
}

func (s *Signal) Header() Header      { return DecodeHeader(s.live()) }
func (s *Signal) ID() SignalID        { return SignalID(order.Uint16(s.live())) }
func (s *Signal) ReceiverPID() uint16 { return order.Uint16(s.live()[2:]) }
func (s *Signal) SenderPID() uint16   { return order.Uint16(s.live()[4:]) }
func (s *Signal) VIF() uint16         { return order.Uint16(s.live()[6:]) }
func (s *Signal) FieldsLen() int      { return int(order.Uint16(s.live()[8:])) }

func (s *Signal) SetReceiverPID(pid uint16) { order.PutUint16(s.live()[2:], pid) }
func (s *Signal) SetSenderPID(pid uint16)   { order.PutUint16(s.live()[4:], pid) }
func (s *Signal) SetVIF(vif uint16)         { order.PutUint16(s.live()[6:], vif) }

// Len returns the total length of the signal in bytes.
func (s *Signal) Len() int { return len(s.live()) }

// Bytes returns the wire representation of s. The slice aliases
// the signal buffer and is invalid after Free.
func (s *Signal) Bytes() []byte { return s.live() }

// Fields returns the fixed operation-specific fields.
func (s *Signal) Fields() []byte {
	b := s.live()
	return b[HeaderLen : HeaderLen+s.FieldsLen()]
}

// Data returns the variable length payload following the fields.
func (s *Signal) Data() []byte {
	b := s.live()
	return b[HeaderLen+s.FieldsLen():]
}

// U16 returns the value of a 16 bit field. Fields beyond the signal's
// fields length read as zero.
func (s *Signal) U16(f U16) uint16 {
	fields := s.Fields()
	if int(f)+2 > len(fields) {
		return 0
	}
	return order.Uint16(fields[f:])
}

// I16 returns a 16 bit field interpreted as a signed value.
func (s *Signal) I16(f U16) int16 { return int16(s.U16(f)) }

func (s *Signal) U32(f U32) uint32 {
	fields := s.Fields()
	if int(f)+4 > len(fields) {
		return 0
	}
	return order.Uint32(fields[f:])
}

func (s *Signal) Addr(f Addr) (addr [6]byte) {
	fields := s.Fields()
	if int(f)+6 > len(fields) {
		return addr
	}
	copy(addr[:], fields[f:])
	return addr
}

func (s *Signal) Octets(f Octets) []byte {
	fields := s.Fields()
	if int(f.Off)+int(f.Len) > len(fields) {
		return nil
	}
	return fields[f.Off : f.Off+f.Len]
}

// Result returns the result code of a confirmation. All confirmations carry
// their result code in the first field.
func (s *Signal) Result() ResultCode { return ResultCode(s.U16(CfmResultCode)) }

// WithData returns a new signal with the same header and fields as s but
// with data as payload. s is left untouched.
func (s *Signal) WithData(data []byte) *Signal {
	b := s.live()
	fl := HeaderLen + s.FieldsLen()
	c := getBuf(fl + len(data))
	copy(c, b[:fl])
	copy(c[fl:], data)
	return &Signal{buf: c}
}

// New returns a signal with id, vif and zeroed fields of the length
// registered for id. Use a Builder to assemble requests with payload.
func New(id SignalID, vif uint16) *Signal {
	n := FieldsLenOf(id)
	b := getBuf(HeaderLen + n)
	Header{ID: id, VIF: vif, FieldsLen: uint16(n)}.Put(b)
	return &Signal{buf: b}
}

// FromBytes allocates a signal holding a copy of b. Used by transports whose
// receive buffers are reused.
func FromBytes(b []byte) (*Signal, error) {
	if len(b) > MaxSignalLen {
		return nil, ErrSignalTooLarge
	}
	c := getBuf(len(b))
	copy(c, b)
	s, err := Parse(c)
	if err != nil {
		putBuf(c)
	}
	return s, err
}
