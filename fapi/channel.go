package fapi

import "strconv"

// Width is a channel bandwidth in MHz.
type Width uint16

const (
	Width20  Width = 20
	Width40  Width = 40
	Width80  Width = 80
	Width160 Width = 160
)

// Channel describes an operating channel on the host side.
// Frequencies are in MHz.
type Channel struct {
	Freq       uint16 // Primary channel center frequency.
	CenterFreq uint16 // Center frequency of the whole bandwidth, 0 means Freq.
	Width      Width
}

// FirmwareFreq converts Freq to the firmware's unit of half MHz.
func (c Channel) FirmwareFreq() uint16 { return c.Freq * 2 }

// Info encodes width and primary channel position for the
// channel_information field.
func (c Channel) Info() uint16 {
	w := c.Width
	if w == 0 {
		w = Width20
	}
	var primary uint16
	if c.CenterFreq != 0 && c.Width > Width20 {
		lowest := int(c.CenterFreq) - int(w)/2 + 10
		if idx := (int(c.Freq) - lowest) / 20; idx > 0 {
			primary = uint16(idx)
		}
	}
	return uint16(w) | primary<<8
}

func (c Channel) String() string {
	return strconv.Itoa(int(c.Freq)) + "MHz/" + strconv.Itoa(int(c.Width))
}

// ChannelFromFirmware reverses FirmwareFreq and Info.
func ChannelFromFirmware(fwFreq, info uint16) Channel {
	return Channel{Freq: fwFreq / 2, Width: Width(info & 0xFF)}
}

// ChannelNumber returns the IEEE channel number for freq in MHz or 0.
func ChannelNumber(freq uint16) int {
	switch {
	case freq == 2484:
		return 14
	case freq >= 2412 && freq < 2484:
		return int(freq-2407) / 5
	case freq >= 5000 && freq <= 5900:
		return int(freq-5000) / 5
	case freq >= 5955 && freq <= 7115:
		return int(freq-5950) / 5
	}
	return 0
}

// FreqOf returns the center frequency in MHz of channel number ch in the
// 2.4 GHz or 5 GHz band or 0 if ch is not a valid channel number.
func FreqOf(ch int) uint16 {
	switch {
	case ch == 14:
		return 2484
	case ch >= 1 && ch <= 13:
		return uint16(2407 + ch*5)
	case ch >= 32 && ch <= 177:
		return uint16(5000 + ch*5)
	}
	return 0
}
