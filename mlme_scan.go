package slsi

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soypat/slsi/fapi"
)

const maxScanSSIDs = 16

type ScanRequest struct {
	Type fapi.ScanType
	// SSIDs to probe for. A zero length SSID requests a wildcard probe.
	SSIDs    [][]byte
	Channels []fapi.Channel
	// IEs are appended to probe requests.
	IEs        []byte
	ReportMode uint16
	// DwellTime is the active dwell time per channel, 0 for the firmware default.
	DwellTime time.Duration
	// Interval is the period of scheduled scans.
	Interval time.Duration
	// Wait blocks until the firmware reports the end of the scan.
	Wait bool
}

func slotOf(t fapi.ScanType) ScanSlot {
	switch t {
	case fapi.ScanTypeSched:
		return ScanSlotSched
	case fapi.ScanTypeGScan:
		return ScanSlotGScan
	}
	return ScanSlotHW
}

// Scan starts a scan. Results are delivered as BSSFound events followed by
// ScanDone. With req.Wait set Scan returns after results have been delivered.
func (v *VIF) Scan(req ScanRequest) error {
	if req.Type == 0 {
		req.Type = fapi.ScanTypeFull
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireActivated("scan"); err != nil {
		return err
	}
	v.scanMu.Lock()
	defer v.scanMu.Unlock()
	slot := slotOf(req.Type)
	s := &v.scan[slot]
	if s.active {
		return ErrBusy
	}
	s.active = true
	s.typ = req.Type
	err := v.addScan(slot, req, req.Wait)
	switch {
	case err == nil && req.Wait:
		v.scanComplete(s, false)
	case err == nil:
		if slot == ScanSlotHW {
			v.armScanTimer(s)
		}
	case errors.Is(err, errMissingInd):
		v.scanComplete(s, true)
	default:
		s.active = false
		v.scanResultMu.Lock()
		s.purge()
		v.scanResultMu.Unlock()
	}
	return err
}

// AbortScan cancels the scan on slot. Aborting a scan that already ended is
// not an error.
func (v *VIF) AbortScan(slot ScanSlot) error {
	if slot >= numScanSlots {
		return ErrInvalidArgument
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scanMu.Lock()
	defer v.scanMu.Unlock()
	s := &v.scan[slot]
	if !s.active {
		v.debug("scan:abort-idle", slog.String("slot", slot.String()))
		return nil
	}
	err := v.delScan(slot)
	// The scan done indication may have been handled while del scan was in
	// flight. scanComplete tolerates an already completed slot.
	v.scanComplete(s, true)
	return err
}

// StartSchedScan starts a scheduled scan repeating every req.Interval.
func (v *VIF) StartSchedScan(req ScanRequest) error {
	if req.Interval <= 0 {
		return fmt.Errorf("%w: scheduled scan interval", ErrInvalidArgument)
	}
	req.Type = fapi.ScanTypeSched
	req.Wait = false
	return v.Scan(req)
}

func (v *VIF) StopSchedScan() error { return v.AbortScan(ScanSlotSched) }

// ScanActive reports whether slot has a scan in progress.
func (v *VIF) ScanActive(slot ScanSlot) bool {
	v.scanMu.Lock()
	defer v.scanMu.Unlock()
	return slot < numScanSlots && v.scan[slot].active
}

// addScan issues MLME_ADD_SCAN_REQ on the device wait context. When wait is
// set it also blocks for MLME_SCAN_DONE_IND.
func (v *VIF) addScan(slot ScanSlot, req ScanRequest, wait bool) error {
	v.mu.AssertHeld()
	if len(req.SSIDs) > maxScanSSIDs {
		return fmt.Errorf("%w: %d ssids", ErrInvalidArgument, len(req.SSIDs))
	}
	mode := req.ReportMode
	if mode == 0 {
		mode = fapi.ReportModeRealTime | fapi.ReportModeEndOfScan
	}
	b := fapi.NewBuilder(fapi.MLME_ADD_SCAN_REQ, 0)
	b.PutU16(fapi.AddScanReqScanID, scanID(v.ifnum, slot))
	b.PutU16(fapi.AddScanReqScanType, uint16(req.Type))
	b.PutAddr(fapi.AddScanReqDeviceAddr, v.addr)
	b.PutU16(fapi.AddScanReqReportMode, mode)
	for _, ssid := range req.SSIDs {
		b.AppendIE(fapi.ElemSSID, ssid)
	}
	appendScanChannels(b, req.Type, req.Channels)
	if req.DwellTime > 0 || req.Interval > 0 {
		b.BeginVendor(fapi.OUISamsung, fapi.VendorTypeFAPI, fapi.SubtypeScanTiming)
		b.AppendU16(millis16(req.DwellTime))
		b.AppendU32(millis32(req.Interval))
		b.EndElement()
	}
	b.Append(req.IEs)
	sig, err := seal(b)
	if err != nil {
		return err
	}
	v.info("add-scan", slog.String("slot", slot.String()), slog.String("type", req.Type.String()), slog.Int("channels", len(req.Channels)), slog.Bool("wait", wait))
	if !wait {
		return v.d.cfmResult(v.d.reqCfm(v.d.global, sig, fapi.MLME_ADD_SCAN_CFM))
	}
	ind, err := v.d.reqCfmInd(v.d.global, sig, fapi.MLME_ADD_SCAN_CFM, fapi.MLME_SCAN_DONE_IND, nil, v.d.cfg.ScanDoneTimeout)
	ind.Free()
	return err
}

// appendScanChannels encodes the channel list. P2P full scans use a zero
// frequency descriptor selecting the firmware's scan all policy.
func appendScanChannels(b *fapi.Builder, typ fapi.ScanType, channels []fapi.Channel) {
	if typ == fapi.ScanTypeP2PFull {
		b.BeginVendor(fapi.OUISamsung, fapi.VendorTypeFAPI, fapi.SubtypeScanPolicy)
		b.AppendU16(0)
		b.AppendU16(0)
		b.EndElement()
		return
	}
	if len(channels) == 0 {
		return
	}
	b.BeginVendor(fapi.OUISamsung, fapi.VendorTypeFAPI, fapi.SubtypeChannelList)
	for _, ch := range channels {
		b.AppendU16(ch.FirmwareFreq())
		b.AppendU16(ch.Info())
	}
	b.EndElement()
}

func (v *VIF) delScan(slot ScanSlot) error {
	v.mu.AssertHeld()
	b := fapi.NewBuilder(fapi.MLME_DEL_SCAN_REQ, 0)
	b.PutU16(fapi.DelScanReqScanID, scanID(v.ifnum, slot))
	req, err := seal(b)
	if err != nil {
		return err
	}
	v.debug("del-scan", slog.String("slot", slot.String()))
	return v.d.cfmResult(v.d.reqCfm(v.d.global, req, fapi.MLME_DEL_SCAN_CFM))
}

// HotlistEntry describes a BSSID to report when its RSSI leaves [Low, High].
type HotlistEntry struct {
	BSSID [6]byte
	Low   int16
	High  int16
}

// SetBSSIDHotlist replaces the gscan BSSID hotlist.
func (v *VIF) SetBSSIDHotlist(entries []HotlistEntry) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireActivated("hotlist"); err != nil {
		return err
	}
	b := fapi.NewBuilder(fapi.MLME_SET_BSSID_HOTLIST_REQ, v.ifnum)
	for _, e := range entries {
		b.BeginVendor(fapi.OUISamsung, fapi.VendorTypeFAPI, fapi.SubtypeBSSIDHotlist)
		b.AppendAddr(e.BSSID)
		b.AppendU16(uint16(e.Low))
		b.AppendU16(uint16(e.High))
		b.EndElement()
	}
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return v.d.cfmResult(v.d.reqCfm(v.wait, sig, fapi.MLME_SET_BSSID_HOTLIST_CFM))
}
