package ioctl

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/soypat/slsi"
	"github.com/soypat/slsi/dot11"
	"github.com/soypat/slsi/fapi"
	"golang.org/x/exp/constraints"
)

// Commands the framework issues unconditionally. They succeed without
// touching the firmware.
var noops = []string{
	"BTCOEXMODE",
	"BTCOEXSCAN-START",
	"BTCOEXSCAN-STOP",
	"RXFILTERSTART",
	"RXFILTERSTOP",
	"RXFILTER-ADD",
	"RXFILTER-REMOVE",
	"SETSUSPENDOPT",
	"MIRACAST",
}

// mibParam is a roam or scan tunable backed by one MIB entry, exposed as a
// SET<name> <value> / GET<name> command pair.
type mibParam struct {
	name     string
	psid     fapi.PSID
	min, max int32
}

var mibParams = []mibParam{
	{name: "ROAMTRIGGER", psid: fapi.PSIDRSSIRoamTrigger, min: -100, max: -50},
	{name: "ROAMDELTA", psid: fapi.PSIDRoamDelta, min: 0, max: 100},
	{name: "ROAMSCANPERIOD", psid: fapi.PSIDRoamScanPeriod, min: 0, max: 60},
	{name: "FULLROAMSCANPERIOD", psid: fapi.PSIDFullRoamScanPeriod, min: 0, max: 600},
	{name: "SCANCHANNELTIME", psid: fapi.PSIDScanChannelTime, min: 10, max: 300},
	{name: "SCANHOMETIME", psid: fapi.PSIDScanHomeTime, min: 10, max: 300},
	{name: "SCANHOMEAWAYTIME", psid: fapi.PSIDScanHomeAwayTime, min: 10, max: 300},
	{name: "SCANNPROBES", psid: fapi.PSIDScanNProbes, min: 1, max: 10},
	{name: "ROAMMODE", psid: fapi.PSIDRoamMode, min: 0, max: 1},
	{name: "ROAMINTRABAND", psid: fapi.PSIDRoamIntraBand, min: 0, max: 1},
	{name: "ROAMBAND", psid: fapi.PSIDRoamBand, min: 0, max: 2},
	{name: "ROAMSCANCONTROL", psid: fapi.PSIDRoamScanControl, min: 0, max: 1},
	{name: "OKCMODE", psid: fapi.PSIDOKCMode, min: 0, max: 1},
	{name: "WESMODE", psid: fapi.PSIDWESMode, min: 0, max: 1},
}

const maxChannelList = 20

func commandTable() []command {
	var t []command
	for _, p := range mibParams {
		p := p
		t = append(t,
			command{name: "SET" + p.name, run: func(d *Dispatcher, _ *slsi.VIF, args []string) (string, error) {
				return "", d.setParam(p, args)
			}},
			command{name: "GET" + p.name, run: func(d *Dispatcher, _ *slsi.VIF, _ []string) (string, error) {
				return d.getParam(p)
			}},
		)
	}
	t = append(t,
		command{name: "ADDROAMSCANCHANNELS", run: addRoamScanChannels},
		command{name: "GETROAMSCANCHANNELS", run: getRoamScanChannels},
		command{name: "SETBAND", run: setBand},
		command{name: "GETBAND", run: getBand},
		command{name: "COUNTRY", run: setCountry},
		command{name: "SETCOUNTRYREV", run: setCountryRev},
		command{name: "GETCOUNTRYREV", run: getCountryRev},
		command{name: "GETREGULATORY", run: getRegulatory},
		command{name: "SET_PMK", run: setPMK},
		command{name: "REASSOC", run: reassoc},
		command{name: "HAPD_GET_CHANNEL", run: hapdGetChannel},
		command{name: "SET_SAP_CHANNEL_LIST", run: setSAPChannelList},
		command{name: "TDLS_CHANNEL_SWITCH", run: tdlsChannelSwitch},
		command{name: "TDLS_CHANNEL_SWITCH_CANCEL", run: tdlsChannelSwitchCancel},
		command{name: "P2P_SET_PS", run: p2pSetPS},
		command{name: "P2P_SET_NOA", run: p2pSetNoA},
		command{name: "SETSUSPENDMODE", run: boolMIB(fapi.PSIDSuspendMode)},
		command{name: "SET_TX_POWER_CALLING", run: boolMIB(fapi.PSIDTxPowerCalling)},
		command{name: "GETBSSRSSI", run: getBSSRSSI},
		command{name: "GETSTAINFO", run: getStaInfo},
		command{name: "DRIVERDEBUGDUMP", run: driverDebugDump},
	)
	for _, name := range noops {
		t = append(t, command{name: name, run: noop})
	}
	return t
}

func argErr(format string, a ...any) error {
	return fmt.Errorf("%w: %w: %s", slsi.ErrInvalidArgument, errArgs, fmt.Sprintf(format, a...))
}

// intArg parses args[i] as an integer in [lo, hi]. Hexadecimal values with
// a 0x prefix are accepted.
func intArg[T constraints.Integer](args []string, i int, lo, hi T) (T, error) {
	if i >= len(args) {
		return 0, argErr("missing argument %d", i+1)
	}
	n, err := strconv.ParseInt(args[i], 0, 64)
	if err != nil || n < int64(lo) || n > int64(hi) {
		return 0, argErr("argument %q not in [%d, %d]", args[i], lo, hi)
	}
	return T(n), nil
}

func macArg(args []string, i int) (addr [6]byte, err error) {
	if i >= len(args) {
		return addr, argErr("missing address")
	}
	hw, err := net.ParseMAC(args[i])
	if err != nil || len(hw) != 6 {
		return addr, argErr("bad address %q", args[i])
	}
	copy(addr[:], hw)
	return addr, nil
}

// channelListArg parses "<count> <ch1> ... <chN>".
func channelListArg(args []string) ([]fapi.Channel, error) {
	n, err := intArg(args, 0, 0, maxChannelList)
	if err != nil {
		return nil, err
	}
	if len(args) != 1+n {
		return nil, argErr("want %d channels, got %d", n, len(args)-1)
	}
	chans := make([]fapi.Channel, 0, n)
	for i := 1; i <= n; i++ {
		num, err := intArg(args, i, 1, 196)
		if err != nil {
			return nil, err
		}
		freq := fapi.FreqOf(num)
		if freq == 0 {
			return nil, argErr("bad channel %d", num)
		}
		chans = append(chans, fapi.Channel{Freq: freq, Width: fapi.Width20})
	}
	return chans, nil
}

func needVIF(v *slsi.VIF, ok func(fapi.VifType) bool) error {
	if v == nil {
		return fmt.Errorf("%w: %w", slsi.ErrInvalidArgument, errNeedVIF)
	}
	if !ok(v.Type()) {
		return fmt.Errorf("%w: %w: %v", slsi.ErrInvalidArgument, errVIFType, v.Type())
	}
	return nil
}

func isStation(t fapi.VifType) bool { return t == fapi.VifStation }
func isP2P(t fapi.VifType) bool     { return t == fapi.VifP2PGO || t == fapi.VifP2PClient }

// readMIB returns the single entry psid.
func (d *Dispatcher) readMIB(psid fapi.PSID) (fapi.MIBEntry, error) {
	entries, err := d.dev.GetMIB(psid)
	if err != nil {
		return fapi.MIBEntry{}, err
	}
	for _, e := range entries {
		if e.PSID == psid && e.Kind != fapi.MIBNone {
			return e, nil
		}
	}
	return fapi.MIBEntry{}, fmt.Errorf("%w: %v not returned", slsi.ErrIO, psid)
}

func (d *Dispatcher) setParam(p mibParam, args []string) error {
	val, err := intArg(args, 0, p.min, p.max)
	if err != nil {
		return err
	}
	if p.min < 0 {
		return d.dev.SetMIB(fapi.MIBIntEntry(p.psid, val))
	}
	return d.dev.SetMIB(fapi.MIBUintEntry(p.psid, uint32(val)))
}

func (d *Dispatcher) getParam(p mibParam) (string, error) {
	e, err := d.readMIB(p.psid)
	if err != nil {
		return "", err
	}
	val := int64(e.Uint)
	if e.Kind == fapi.MIBInt {
		val = int64(e.Int)
	}
	return "GET" + p.name + " " + strconv.FormatInt(val, 10), nil
}

func addRoamScanChannels(d *Dispatcher, _ *slsi.VIF, args []string) (string, error) {
	chans, err := channelListArg(args)
	if err != nil {
		return "", err
	}
	nums := make([]byte, len(chans))
	for i, ch := range chans {
		nums[i] = byte(fapi.ChannelNumber(ch.Freq))
	}
	if err := d.dev.SetMIB(fapi.MIBOctetEntry(fapi.PSIDRoamScanChannels, nums)); err != nil {
		return "", err
	}
	return "", d.dev.SetCachedChannels(chans)
}

func getRoamScanChannels(d *Dispatcher, _ *slsi.VIF, _ []string) (string, error) {
	e, err := d.readMIB(fapi.PSIDRoamScanChannels)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("GETROAMSCANCHANNELS ")
	sb.WriteString(strconv.Itoa(len(e.Octets)))
	for _, ch := range e.Octets {
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(int(ch)))
	}
	return sb.String(), nil
}

func setBand(d *Dispatcher, _ *slsi.VIF, args []string) (string, error) {
	band, err := intArg(args, 0, slsi.BandAuto, slsi.Band2GHz)
	if err != nil {
		return "", err
	}
	return "", d.dev.SetBand(band)
}

func getBand(d *Dispatcher, _ *slsi.VIF, _ []string) (string, error) {
	band, err := d.dev.GetMIBUint(fapi.PSIDBand)
	if err != nil {
		return "", err
	}
	return "GETBAND " + strconv.FormatUint(uint64(band), 10), nil
}

func setCountry(d *Dispatcher, _ *slsi.VIF, args []string) (string, error) {
	if len(args) != 1 {
		return "", argErr("want country code")
	}
	return "", d.dev.SetCountry(args[0])
}

func setCountryRev(d *Dispatcher, _ *slsi.VIF, args []string) (string, error) {
	if len(args) != 1 || len(args[0]) > 32 {
		return "", argErr("want country revision")
	}
	return "", d.dev.SetMIB(fapi.MIBOctetEntry(fapi.PSIDCountryRevision, []byte(args[0])))
}

func getCountryRev(d *Dispatcher, _ *slsi.VIF, _ []string) (string, error) {
	entries, err := d.dev.GetMIB(fapi.PSIDCountryCode, fapi.PSIDCountryRevision)
	if err != nil {
		return "", err
	}
	var cc, rev string
	for _, e := range entries {
		switch e.PSID {
		case fapi.PSIDCountryCode:
			cc = strings.TrimSpace(string(e.Octets))
		case fapi.PSIDCountryRevision:
			rev = string(e.Octets)
		}
	}
	if cc == "" {
		return "", fmt.Errorf("%w: country code not returned", slsi.ErrIO)
	}
	return "GETCOUNTRYREV " + cc + " " + rev, nil
}

func getRegulatory(d *Dispatcher, _ *slsi.VIF, _ []string) (string, error) {
	e, err := d.readMIB(fapi.PSIDRegulatory)
	if err != nil {
		return "", err
	}
	return "GETREGULATORY " + hex.EncodeToString(e.Octets), nil
}

// setPMK takes the key hex encoded.
func setPMK(_ *Dispatcher, v *slsi.VIF, args []string) (string, error) {
	if err := needVIF(v, fapi.VifType.IsStationLike); err != nil {
		return "", err
	}
	if len(args) != 1 {
		return "", argErr("want pmk")
	}
	pmk, err := hex.DecodeString(args[0])
	if err != nil {
		return "", argErr("pmk not hex: %v", err)
	}
	return "", v.SetPMK(pmk)
}

// reassoc takes a BSSID and optionally the channel number to find it on. With
// a channel the firmware roams, otherwise it reassociates in place.
func reassoc(_ *Dispatcher, v *slsi.VIF, args []string) (string, error) {
	if err := needVIF(v, fapi.VifType.IsStationLike); err != nil {
		return "", err
	}
	bssid, err := macArg(args, 0)
	if err != nil {
		return "", err
	}
	if len(args) < 2 {
		return "", v.Reassociate(bssid)
	}
	num, err := intArg(args, 1, 1, 196)
	if err != nil {
		return "", err
	}
	freq := fapi.FreqOf(num)
	if freq == 0 {
		return "", argErr("bad channel %d", num)
	}
	return "", v.Roam(bssid, fapi.Channel{Freq: freq, Width: fapi.Width20})
}

func hapdGetChannel(_ *Dispatcher, v *slsi.VIF, _ []string) (string, error) {
	if err := needVIF(v, fapi.VifType.IsAPLike); err != nil {
		return "", err
	}
	ch := v.Channel()
	if ch.Freq == 0 {
		return "", fmt.Errorf("%w: ap not started", slsi.ErrInvalidArgument)
	}
	return "HAPD_GET_CHANNEL " + strconv.Itoa(fapi.ChannelNumber(ch.Freq)), nil
}

func setSAPChannelList(d *Dispatcher, _ *slsi.VIF, args []string) (string, error) {
	chans, err := channelListArg(args)
	if err != nil {
		return "", err
	}
	d.sapChannels = chans
	return "", nil
}

// tdlsChannelSwitch takes the peer, a channel number and optionally the
// bandwidth in MHz.
func tdlsChannelSwitch(_ *Dispatcher, v *slsi.VIF, args []string) (string, error) {
	if err := needVIF(v, isStation); err != nil {
		return "", err
	}
	peer, err := macArg(args, 0)
	if err != nil {
		return "", err
	}
	num, err := intArg(args, 1, 1, 196)
	if err != nil {
		return "", err
	}
	ch := fapi.Channel{Freq: fapi.FreqOf(num), Width: fapi.Width20}
	if ch.Freq == 0 {
		return "", argErr("bad channel %d", num)
	}
	if len(args) > 2 {
		w, err := intArg(args, 2, 20, 80)
		if err != nil {
			return "", err
		}
		switch fapi.Width(w) {
		case fapi.Width20, fapi.Width40, fapi.Width80:
			ch.Width = fapi.Width(w)
		default:
			return "", argErr("bad bandwidth %d", w)
		}
	}
	return "", v.SetTDLSChannelSwitch(peer, ch)
}

func tdlsChannelSwitchCancel(_ *Dispatcher, v *slsi.VIF, args []string) (string, error) {
	if err := needVIF(v, isStation); err != nil {
		return "", err
	}
	peer, err := macArg(args, 0)
	if err != nil {
		return "", err
	}
	return "", v.SetTDLSChannelSwitch(peer, fapi.Channel{})
}

// p2pSetPS takes legacy power save, opportunistic power save and the client
// traffic window. -1 leaves a setting unchanged.
func p2pSetPS(d *Dispatcher, v *slsi.VIF, args []string) (string, error) {
	if err := needVIF(v, isP2P); err != nil {
		return "", err
	}
	if len(args) != 3 {
		return "", argErr("want legacy_ps opp_ps ctwindow")
	}
	var val [3]byte
	for i, hi := range [3]int{1, 1, 127} {
		n, err := intArg(args, i, -1, hi)
		if err != nil {
			return "", err
		}
		val[i] = byte(n) // -1 becomes 0xff.
	}
	e := fapi.MIBOctetEntry(fapi.PSIDP2PPowerSave, val[:])
	e.Index = []uint16{v.Ifnum()}
	return "", d.dev.SetMIB(e)
}

// p2pSetNoA takes the count, start offset and duration in milliseconds of
// the notice of absence schedule.
func p2pSetNoA(d *Dispatcher, v *slsi.VIF, args []string) (string, error) {
	if err := needVIF(v, func(t fapi.VifType) bool { return t == fapi.VifP2PGO }); err != nil {
		return "", err
	}
	if len(args) != 3 {
		return "", argErr("want count start duration")
	}
	count, err := intArg(args, 0, 0, 255)
	if err != nil {
		return "", err
	}
	start, err := intArg[uint32](args, 1, 0, 1<<31-1)
	if err != nil {
		return "", err
	}
	duration, err := intArg[uint32](args, 2, 0, 1<<31-1)
	if err != nil {
		return "", err
	}
	val := make([]byte, 9)
	val[0] = byte(count)
	binary.LittleEndian.PutUint32(val[1:], start)
	binary.LittleEndian.PutUint32(val[5:], duration)
	e := fapi.MIBOctetEntry(fapi.PSIDP2PNoA, val)
	e.Index = []uint16{v.Ifnum()}
	return "", d.dev.SetMIB(e)
}

func boolMIB(psid fapi.PSID) handler {
	return func(d *Dispatcher, _ *slsi.VIF, args []string) (string, error) {
		on, err := intArg(args, 0, 0, 1)
		if err != nil {
			return "", err
		}
		return "", d.dev.SetMIB(fapi.MIBBoolEntry(psid, on == 1))
	}
}

// getBSSRSSI replies with the SSID and signal strength of the connected BSS.
func getBSSRSSI(_ *Dispatcher, v *slsi.VIF, _ []string) (string, error) {
	if err := needVIF(v, fapi.VifType.IsStationLike); err != nil {
		return "", err
	}
	if v.State() != slsi.StaConnected {
		return "", fmt.Errorf("%w: not connected", slsi.ErrInvalidArgument)
	}
	bssid, ssid := v.BSSID()
	bss, ok := v.LookupBSS(bssid)
	if !ok {
		return "", fmt.Errorf("%w: bss not cached", slsi.ErrIO)
	}
	return string(ssid) + " rssi " + strconv.Itoa(int(bss.RSSI)), nil
}

func getStaInfo(_ *Dispatcher, v *slsi.VIF, args []string) (string, error) {
	if err := needVIF(v, fapi.VifType.IsAPLike); err != nil {
		return "", err
	}
	addr, err := macArg(args, 0)
	if err != nil {
		return "", err
	}
	p, ok := v.Peer(addr)
	if !ok {
		return "", fmt.Errorf("%w: no station %v", slsi.ErrInvalidArgument, dot11.MACString(addr))
	}
	return fmt.Sprintf("GETSTAINFO %v state=%v tx_frames=%d tx_failed=%d rx_frames=%d",
		dot11.MACString(addr), p.State, p.Stats.TxFrames, p.Stats.TxFailed, p.Stats.RxFrames), nil
}

func driverDebugDump(d *Dispatcher, _ *slsi.VIF, _ []string) (string, error) {
	return "", d.dev.SetMIB(fapi.MIBBoolEntry(fapi.PSIDDebugDump, true))
}

func noop(*Dispatcher, *slsi.VIF, []string) (string, error) { return "", nil }
