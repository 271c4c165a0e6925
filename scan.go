package slsi

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/soypat/slsi/dot11"
	"github.com/soypat/slsi/fapi"
)

// ScanSlot selects one of the per vif scan result lists.
type ScanSlot uint8

const (
	ScanSlotHW ScanSlot = iota
	ScanSlotSched
	ScanSlotGScan
	numScanSlots
)

func (s ScanSlot) String() string {
	switch s {
	case ScanSlotHW:
		return "hw"
	case ScanSlotSched:
		return "sched"
	case ScanSlotGScan:
		return "gscan"
	}
	return "slot(?)"
}

// scanID is the wire scan id of slot on vif ifnum. Scan id 0 is used by
// the firmware for its own connect and roam scans.
func scanID(ifnum uint16, slot ScanSlot) uint16 { return ifnum<<8 | uint16(slot) }

func splitScanID(id uint16) (ifnum uint16, slot ScanSlot) { return id >> 8, ScanSlot(id & 0xff) }

const (
	ssidMapMax       = 10
	ssidMapExpiryAge = 2
)

type scanSlot struct {
	slot ScanSlot
	// Guarded by the vif's scanMu.
	active bool
	typ    fapi.ScanType
	gen    uint32
	timer  *time.Timer
	// results is sorted by descending RSSI. Guarded by scanResultMu.
	results *scanResult
}

// scanResult owns the latest beacon and probe response of one BSSID.
type scanResult struct {
	bssid     [6]byte
	rssi      int16
	freq      uint16
	beacon    *fapi.Signal
	probeResp *fapi.Signal
	hidden    bool
	next      *scanResult
}

func (n *scanResult) free() {
	n.beacon.Free()
	n.probeResp.Free()
	n.beacon, n.probeResp = nil, nil
}

func (s *scanSlot) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// insert links n before the first node with a strictly lower RSSI so
// nodes of equal RSSI keep their arrival order.
func (s *scanSlot) insert(n *scanResult) {
	p := &s.results
	for *p != nil && (*p).rssi >= n.rssi {
		p = &(*p).next
	}
	n.next = *p
	*p = n
}

func (s *scanSlot) purge() (n int) {
	for r := s.results; r != nil; r = r.next {
		r.free()
		n++
	}
	s.results = nil
	return n
}

func (s *scanSlot) len() (n int) {
	for r := s.results; r != nil; r = r.next {
		n++
	}
	return n
}

func isHiddenBeacon(frame []byte) bool {
	ies, err := dot11.BeaconIEs(frame)
	if err != nil {
		return false
	}
	ssid, _ := dot11.SSID(ies)
	return dot11.IsHiddenSSID(ssid)
}

// addToScanList stores the beacon or probe response carried by sig in s,
// taking ownership of sig.
func (v *VIF) addToScanList(s *scanSlot, sig *fapi.Signal) {
	v.scanResultMu.AssertHeld()
	frame := sig.Data()
	bssid := dot11.BSSID(frame)
	rssi := sig.I16(fapi.ScanIndRSSI)
	beacon := dot11.IsBeacon(frame)

	var prev *scanResult
	for n := s.results; n != nil; prev, n = n, n.next {
		if n.bssid != bssid {
			continue
		}
		switch {
		case beacon && n.beacon == nil:
			n.beacon = sig
		case !beacon && n.probeResp == nil:
			n.probeResp = sig
		case rssi < n.rssi:
			// Cached record dominates.
			sig.Free()
			return
		case beacon:
			n.beacon.Free()
			n.beacon = sig
		default:
			n.probeResp.Free()
			n.probeResp = sig
		}
		if beacon {
			n.hidden = isHiddenBeacon(frame)
		}
		n.rssi = max(n.rssi, rssi)
		n.freq = sig.U16(fapi.ScanIndFreq) / 2
		if prev == nil {
			s.results = n.next
		} else {
			prev.next = n.next
		}
		n.next = nil
		s.insert(n)
		return
	}

	n := &scanResult{bssid: bssid, rssi: rssi, freq: sig.U16(fapi.ScanIndFreq) / 2}
	if beacon {
		n.beacon = sig
		n.hidden = isHiddenBeacon(frame)
	} else {
		n.probeResp = sig
	}
	s.insert(n)
}

type ssidMapEntry struct {
	bssid [6]byte
	ssid  []byte
	age   int
}

// updateSSIDMap ages the hidden SSID map and refreshes the entries of hidden
// results in s that can be resolved. Entries not refreshed for more than
// ssidMapExpiryAge updates are evicted.
func (d *Device) updateSSIDMap(v *VIF, s *scanSlot) {
	v.mu.AssertHeld()
	v.scanResultMu.AssertHeld()
	d.ssidMapMu.Lock()
	defer d.ssidMapMu.Unlock()
	for i := range d.ssidMap {
		d.ssidMap[i].age++
	}
	for n := s.results; n != nil; n = n.next {
		if !n.hidden {
			continue
		}
		var ssid []byte
		switch {
		case v.sta.state == StaConnected && v.sta.bssid == n.bssid && len(v.sta.ssid) > 0:
			ssid = v.sta.ssid
		case n.probeResp != nil:
			ies, err := dot11.BeaconIEs(n.probeResp.Data())
			if err == nil {
				if got, ok := dot11.SSID(ies); ok && !dot11.IsHiddenSSID(got) {
					ssid = got
				}
			}
		}
		d.ssidMapPut(n.bssid, ssid)
	}
	live := d.ssidMap[:0]
	for _, e := range d.ssidMap {
		if e.age <= ssidMapExpiryAge {
			live = append(live, e)
		} else {
			d.debug("ssid-map:expire", macAttr("bssid", e.bssid))
		}
	}
	clear(d.ssidMap[len(live):])
	d.ssidMap = live
}

// ssidMapPut refreshes the entry for bssid. A nil ssid only refreshes an
// existing entry. When the map is full the oldest entry is replaced.
func (d *Device) ssidMapPut(bssid [6]byte, ssid []byte) {
	d.ssidMapMu.AssertHeld()
	for i := range d.ssidMap {
		e := &d.ssidMap[i]
		if e.bssid != bssid {
			continue
		}
		if ssid != nil && !bytes.Equal(e.ssid, ssid) {
			e.ssid = bytes.Clone(ssid)
		}
		e.age = 0
		return
	}
	if ssid == nil {
		return
	}
	e := ssidMapEntry{bssid: bssid, ssid: bytes.Clone(ssid)}
	if len(d.ssidMap) < ssidMapMax {
		d.ssidMap = append(d.ssidMap, e)
		return
	}
	oldest := 0
	for i := range d.ssidMap {
		if d.ssidMap[i].age > d.ssidMap[oldest].age {
			oldest = i
		}
	}
	d.ssidMap[oldest] = e
}

func (d *Device) ssidMapLookup(bssid [6]byte) ([]byte, bool) {
	d.ssidMapMu.Lock()
	defer d.ssidMapMu.Unlock()
	for _, e := range d.ssidMap {
		if e.bssid == bssid {
			return e.ssid, true
		}
	}
	return nil, false
}

// resolveHidden replaces a hidden beacon owned by n with a copy carrying
// ssid. The captured beacon is freed.
func (v *VIF) resolveHidden(n *scanResult, ssid []byte) {
	frame := n.beacon.Data()
	ies, err := dot11.BeaconIEs(frame)
	if err == nil {
		ies, err = dot11.ReplaceSSID(ies, ssid)
	}
	if err != nil {
		v.warn("scan:ssid-rewrite", macAttr("bssid", n.bssid), slog.String("err", err.Error()))
		return
	}
	rewritten := n.beacon.WithData(dot11.WithIEs(frame, ies))
	n.beacon.Free()
	n.beacon = rewritten
	n.hidden = false
}

func (v *VIF) bssFound(sig *fapi.Signal, probeResp bool) BSSFound {
	frame := sig.Data()
	return BSSFound{
		vifEvent:  vifEvent{v.ifnum},
		BSSID:     dot11.BSSID(frame),
		Freq:      sig.U16(fapi.ScanIndFreq) / 2,
		RSSI:      sig.I16(fapi.ScanIndRSSI),
		ProbeResp: probeResp,
		Frame:     bytes.Clone(frame),
	}
}

// updateBSS mirrors a delivered result into the vif's BSS table.
func (v *VIF) updateBSS(ev BSSFound) {
	v.mu.AssertHeld()
	ies, err := dot11.BeaconIEs(ev.Frame)
	if err != nil {
		return
	}
	b := v.bss[ev.BSSID]
	if b == nil {
		b = &BSS{BSSID: ev.BSSID}
		v.bss[ev.BSSID] = b
	}
	if ssid, ok := dot11.SSID(ies); ok && !dot11.IsHiddenSSID(ssid) {
		b.SSID = bytes.Clone(ssid)
	}
	b.Freq = ev.Freq
	b.RSSI = ev.RSSI
	b.IEs = bytes.Clone(ies)
	b.Seen = time.Now()
}

// scanComplete delivers the results of s upstream, at most MaxScanResults
// of them, purges the rest and reports the end of the scan. Scheduled and
// gscan slots keep running in firmware after each cycle and only go idle
// when aborted.
func (v *VIF) scanComplete(s *scanSlot, aborted bool) {
	v.mu.AssertHeld()
	v.scanMu.AssertHeld()
	s.stopTimer()
	wasActive := s.active
	if s.slot == ScanSlotHW || aborted {
		s.active = false
	}

	v.scanResultMu.Lock()
	if !wasActive && s.results == nil {
		v.scanResultMu.Unlock()
		v.debug("scan:complete-idle", slog.String("slot", s.slot.String()))
		return
	}
	v.d.updateSSIDMap(v, s)
	var found []BSSFound
	delivered, dropped := 0, 0
	for n := s.results; n != nil; n = n.next {
		if delivered >= v.d.cfg.MaxScanResults {
			dropped++
			n.free()
			continue
		}
		if n.hidden && n.beacon != nil {
			if ssid, ok := v.d.ssidMapLookup(n.bssid); ok {
				v.resolveHidden(n, ssid)
			}
		}
		if n.beacon != nil {
			found = append(found, v.bssFound(n.beacon, false))
		}
		if n.probeResp != nil {
			found = append(found, v.bssFound(n.probeResp, true))
		}
		delivered++
		n.free()
	}
	s.results = nil
	v.scanResultMu.Unlock()

	v.d.metrics.scanResults.Add(float64(delivered))
	if dropped > 0 {
		v.d.metrics.scanDropped.Add(float64(dropped))
		v.warn("scan:results-capped", slog.Int("delivered", delivered), slog.Int("dropped", dropped))
	}
	for _, ev := range found {
		v.updateBSS(ev)
		v.d.notify(ev)
	}
	v.info("scan:complete", slog.String("slot", s.slot.String()), slog.Int("results", delivered), slog.Bool("aborted", aborted))
	v.d.notify(ScanDone{vifEvent: vifEvent{v.ifnum}, Slot: s.slot, Aborted: aborted})
	if s.slot == ScanSlotSched && !aborted && delivered > 0 {
		v.d.notify(SchedScanResults{vifEvent{v.ifnum}})
	}
}

// takeConnectScanInd removes the buffered connect scan indication if it
// describes bssid.
func (v *VIF) takeConnectScanInd(bssid [6]byte) *fapi.Signal {
	v.scanResultMu.Lock()
	defer v.scanResultMu.Unlock()
	sig := v.connectScanInd
	if sig == nil || dot11.BSSID(sig.Data()) != bssid {
		return nil
	}
	v.connectScanInd = nil
	return sig
}

// flushConnectScan delivers the buffered connect scan indication for bssid.
// It reports whether one was found.
func (v *VIF) flushConnectScan(bssid [6]byte) bool {
	v.mu.AssertHeld()
	sig := v.takeConnectScanInd(bssid)
	if sig == nil {
		return false
	}
	ev := v.bssFound(sig, dot11.IsProbeResp(sig.Data()))
	sig.Free()
	v.updateBSS(ev)
	v.d.notify(ev)
	return true
}

func (v *VIF) armScanTimer(s *scanSlot) {
	v.scanMu.AssertHeld()
	s.stopTimer()
	s.gen++
	gen, slot := s.gen, s.slot
	s.timer = time.AfterFunc(v.d.cfg.ScanTimeout, func() { v.scanTimeout(slot, gen) })
}

// scanTimeout is the watchdog of asynchronous scans.
func (v *VIF) scanTimeout(slot ScanSlot, gen uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scanMu.Lock()
	defer v.scanMu.Unlock()
	s := &v.scan[slot]
	if !s.active || s.gen != gen {
		return
	}
	v.warn("scan:timeout", slog.String("slot", slot.String()))
	if err := v.delScan(slot); err != nil {
		v.debug("scan:timeout-del", slog.String("err", err.Error()))
	}
	v.scanComplete(s, true)
}

// rxScanInd caches a scan result. Runs in the Receive goroutine and only
// takes the scan result lock so results are always stored before the scan
// done indication that follows them is handled.
func (d *Device) rxScanInd(sig *fapi.Signal) {
	frame := sig.Data()
	if !dot11.IsBeacon(frame) && !dot11.IsProbeResp(frame) {
		d.warn("scan-ind:frame", slog.Int("len", len(frame)))
		sig.Free()
		return
	}
	id := sig.U16(fapi.ScanIndScanID)
	if id == 0 {
		v := d.VIF(sig.VIF())
		if v == nil {
			d.warn("scan-ind:connect-no-vif", slog.Int("vif", int(sig.VIF())))
			sig.Free()
			return
		}
		v.scanResultMu.Lock()
		v.connectScanInd.Free()
		v.connectScanInd = sig
		v.scanResultMu.Unlock()
		return
	}
	ifnum, slot := splitScanID(id)
	v := d.VIF(ifnum)
	if v == nil || slot >= numScanSlots {
		d.warn("scan-ind:scan-id", slog.Int("scan-id", int(id)))
		sig.Free()
		return
	}
	if d.isTraceEnabled() {
		d.trace("scan-ind", slog.Int("vif", int(ifnum)), slog.String("slot", slot.String()), macAttr("bssid", dot11.BSSID(frame)), slog.Int("rssi", int(sig.I16(fapi.ScanIndRSSI))))
	}
	v.scanResultMu.Lock()
	v.addToScanList(&v.scan[slot], sig)
	v.scanResultMu.Unlock()
}

func (d *Device) rxScanDoneInd(sig *fapi.Signal) {
	defer sig.Free()
	id := sig.U16(fapi.ScanDoneIndScanID)
	ifnum, slot := splitScanID(id)
	v := d.VIF(ifnum)
	if v == nil || slot >= numScanSlots {
		d.warn("scan-done:scan-id", slog.Int("scan-id", int(id)))
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scanMu.Lock()
	defer v.scanMu.Unlock()
	s := &v.scan[slot]
	if !s.active {
		v.debug("scan-done:not-active", slog.String("slot", slot.String()))
	}
	v.scanComplete(s, false)
}
