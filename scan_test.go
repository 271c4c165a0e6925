package slsi

import (
	"bytes"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/soypat/slsi/dot11"
	"github.com/soypat/slsi/fapi"
	"github.com/soypat/slsi/fwsim"
	"github.com/stretchr/testify/require"
)

// scanRule confirms MLME_ADD_SCAN_REQ and reports frames followed by the
// scan done indication.
func scanRule(results ...func(scanID uint16) *fapi.Signal) fwsim.Rule {
	return func(req *fapi.Signal) []*fapi.Signal {
		id := req.U16(fapi.AddScanReqScanID)
		out := []*fapi.Signal{fwsim.Confirm(req, fapi.SUCCESS)}
		for _, r := range results {
			out = append(out, r(id))
		}
		return append(out, fwsim.ScanDoneInd(id))
	}
}

func beaconFrom(bssid [6]byte, ssid string, rssi int16) func(uint16) *fapi.Signal {
	return func(id uint16) *fapi.Signal {
		return fwsim.ScanInd(0, id, 2412, rssi, fwsim.Beacon(bssid, []byte(ssid), nil))
	}
}

func probeRespFrom(bssid [6]byte, ssid string, rssi int16) func(uint16) *fapi.Signal {
	return func(id uint16) *fapi.Signal {
		return fwsim.ScanInd(0, id, 2412, rssi, fwsim.ProbeResp(bssid, []byte(ssid), nil))
	}
}

func frameSSID(t *testing.T, frame []byte) string {
	t.Helper()
	ies, err := dot11.BeaconIEs(frame)
	require.NoError(t, err)
	ssid, ok := dot11.SSID(ies)
	require.True(t, ok)
	return string(ssid)
}

func TestScanResultsSortedByRSSI(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	tb.fw.Handle(fapi.MLME_ADD_SCAN_REQ, scanRule(
		beaconFrom(bssidA, "a", -70),
		beaconFrom(bssidB, "b", -40),
		beaconFrom(bssidC, "c", -55),
		// A weaker duplicate never displaces the cached record.
		beaconFrom(bssidB, "b", -90),
	))
	require.NoError(t, v.Scan(ScanRequest{Wait: true, Channels: []fapi.Channel{ch2412}}))

	found := all[BSSFound](tb.ev)
	require.Len(t, found, 3)
	var got [][6]byte
	for _, f := range found {
		got = append(got, f.BSSID)
		require.Equal(t, uint16(2412), f.Freq)
	}
	require.Equal(t, [][6]byte{bssidB, bssidC, bssidA}, got)
	require.Equal(t, int16(-40), found[0].RSSI)
	done := waitEvent[ScanDone](t, tb.ev)
	require.False(t, done.Aborted)
	require.Equal(t, ScanSlotHW, done.Slot)
	require.False(t, v.ScanActive(ScanSlotHW))

	bss, ok := v.LookupBSS(bssidC)
	require.True(t, ok)
	require.Equal(t, "c", string(bss.SSID))
}

func TestScanInsertStable(t *testing.T) {
	var s scanSlot
	for i, rssi := range []int16{-50, -60, -50, -40, -60} {
		s.insert(&scanResult{bssid: [6]byte{byte(i)}, rssi: rssi})
	}
	var order []byte
	for n := s.results; n != nil; n = n.next {
		order = append(order, n.bssid[0])
	}
	require.Equal(t, []byte{3, 0, 2, 1, 4}, order)
	require.Equal(t, 5, s.len())
}

// checkScanList verifies s is sorted by descending RSSI, holds one node per
// BSSID and that each node carries the best RSSI reported for it.
func checkScanList(t *testing.T, s *scanSlot, best map[[6]byte]int16) {
	t.Helper()
	seen := make(map[[6]byte]bool)
	for n := s.results; n != nil; n = n.next {
		require.False(t, seen[n.bssid], "duplicate %x", n.bssid)
		seen[n.bssid] = true
		require.Equal(t, best[n.bssid], n.rssi, "bssid %x", n.bssid)
		if n.next != nil {
			require.GreaterOrEqual(t, n.rssi, n.next.rssi)
		}
	}
	require.Len(t, seen, len(best))
}

func TestAddToScanList(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	type result struct {
		bssid [6]byte
		rssi  int16
		probe bool
	}
	var tests = []struct {
		name string
		in   []result
	}{
		{name: "ascending", in: []result{{bssidA, -80, false}, {bssidB, -60, false}, {bssidC, -40, false}}},
		{name: "descending", in: []result{{bssidC, -40, false}, {bssidB, -60, false}, {bssidA, -80, false}}},
		{name: "stronger duplicate", in: []result{{bssidA, -70, false}, {bssidB, -50, false}, {bssidA, -30, false}}},
		{name: "weaker duplicate", in: []result{{bssidA, -30, false}, {bssidB, -50, false}, {bssidA, -70, false}}},
		{name: "probe after beacon", in: []result{{bssidA, -60, false}, {bssidB, -50, false}, {bssidA, -65, true}, {bssidA, -40, true}}},
		{name: "equal rssi", in: []result{{bssidA, -50, true}, {bssidB, -50, false}, {bssidA, -50, false}, {bssidC, -50, true}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &scanSlot{}
			best := make(map[[6]byte]int16)
			v.scanResultMu.Lock()
			defer v.scanResultMu.Unlock()
			defer s.purge()
			for _, r := range tc.in {
				frame := fwsim.Beacon(r.bssid, []byte("x"), nil)
				if r.probe {
					frame = fwsim.ProbeResp(r.bssid, []byte("x"), nil)
				}
				v.addToScanList(s, fwsim.ScanInd(0, 0x100, 2412, r.rssi, frame))
				if b, ok := best[r.bssid]; !ok || r.rssi > b {
					best[r.bssid] = r.rssi
				}
				checkScanList(t, s, best)
			}
		})
	}
}

func TestAddToScanListRandom(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	rng := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 20; round++ {
		s := &scanSlot{}
		best := make(map[[6]byte]int16)
		v.scanResultMu.Lock()
		for i := 0; i < 64; i++ {
			bssid := [6]byte{0x02, 0, 0, 0, 0, byte(rng.IntN(8))}
			rssi := int16(-20 - rng.IntN(70))
			frame := fwsim.Beacon(bssid, []byte("lab"), nil)
			if rng.IntN(2) == 0 {
				frame = fwsim.ProbeResp(bssid, []byte("lab"), nil)
			}
			v.addToScanList(s, fwsim.ScanInd(0, 0x100, 2412, rssi, frame))
			if b, ok := best[bssid]; !ok || rssi > b {
				best[bssid] = rssi
			}
		}
		checkScanList(t, s, best)
		s.purge()
		v.scanResultMu.Unlock()
	}
}

func TestAddScanRequest(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	err := v.Scan(ScanRequest{
		SSIDs:    [][]byte{[]byte("lab")},
		Channels: []fapi.Channel{ch2412},
	})
	require.NoError(t, err)
	require.True(t, v.ScanActive(ScanSlotHW))
	require.ErrorIs(t, v.Scan(ScanRequest{}), ErrBusy)

	req := tb.lastRequest(t, fapi.MLME_ADD_SCAN_REQ)
	defer req.Free()
	require.Zero(t, req.VIF(), "scans run on the device context")
	require.Equal(t, scanID(v.Ifnum(), ScanSlotHW), req.U16(fapi.AddScanReqScanID))
	require.Equal(t, uint16(fapi.ScanTypeFull), req.U16(fapi.AddScanReqScanType))
	require.Equal(t, staAddr, req.Addr(fapi.AddScanReqDeviceAddr))
	// 2412 MHz travels as 4824 half MHz units followed by the 20 MHz channel info.
	require.True(t, bytes.Contains(req.Data(), []byte{0xd8, 0x12, 0x14, 0x00}), "% x", req.Data())
	require.True(t, bytes.Contains(req.Data(), []byte{fapi.ElemSSID, 3, 'l', 'a', 'b'}))

	tb.inject(t,
		fwsim.ScanInd(0, scanID(v.Ifnum(), ScanSlotHW), 2412, -30, fwsim.Beacon(bssidA, []byte("lab"), nil)),
		fwsim.ScanDoneInd(scanID(v.Ifnum(), ScanSlotHW)),
	)
	require.Len(t, all[BSSFound](tb.ev), 1)
	waitEvent[ScanDone](t, tb.ev)
	require.False(t, v.ScanActive(ScanSlotHW))
}

func TestAddScanFailure(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	tb.fw.Handle(fapi.MLME_ADD_SCAN_REQ, fwsim.Fail(fapi.NOT_SUPPORTED))
	var re *ResultError
	require.ErrorAs(t, v.Scan(ScanRequest{Wait: true}), &re)
	require.Equal(t, fapi.NOT_SUPPORTED, re.Result)
	require.False(t, v.ScanActive(ScanSlotHW))
	_, ok := take[ScanDone](tb.ev)
	require.False(t, ok, "failed scans are not reported done")

	tb.fw.Handle(fapi.MLME_ADD_SCAN_REQ, scanRule(beaconFrom(bssidA, "lab", -50)))
	require.NoError(t, v.Scan(ScanRequest{Wait: true}))
	require.Len(t, all[BSSFound](tb.ev), 1)
}

func TestAbortScan(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	require.NoError(t, v.AbortScan(ScanSlotHW), "aborting an idle slot")
	require.Zero(t, tb.fw.Count(fapi.MLME_DEL_SCAN_REQ))

	require.NoError(t, v.Scan(ScanRequest{}))
	tb.inject(t, fwsim.ScanInd(0, scanID(v.Ifnum(), ScanSlotHW), 2412, -30, fwsim.Beacon(bssidA, []byte("lab"), nil)))
	require.NoError(t, v.AbortScan(ScanSlotHW))
	require.Equal(t, 1, tb.fw.Count(fapi.MLME_DEL_SCAN_REQ))
	done := waitEvent[ScanDone](t, tb.ev)
	require.True(t, done.Aborted)
	require.Len(t, all[BSSFound](tb.ev), 1, "results cached before the abort are delivered")

	// A late scan done after the abort is harmless.
	tb.inject(t, fwsim.ScanDoneInd(scanID(v.Ifnum(), ScanSlotHW)))
	_, ok := take[ScanDone](tb.ev)
	require.False(t, ok)
}

func TestSchedScanStop(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	require.ErrorIs(t, v.StartSchedScan(ScanRequest{}), ErrInvalidArgument)
	require.NoError(t, v.StartSchedScan(ScanRequest{Interval: time.Second}))
	id := scanID(v.Ifnum(), ScanSlotSched)
	tb.inject(t,
		fwsim.ScanInd(0, id, 2412, -30, fwsim.Beacon(bssidA, []byte("lab"), nil)),
		fwsim.ScanDoneInd(id),
	)
	done := waitEvent[ScanDone](t, tb.ev)
	require.Equal(t, ScanSlotSched, done.Slot)
	require.False(t, done.Aborted)
	waitEvent[SchedScanResults](t, tb.ev)
	require.True(t, v.ScanActive(ScanSlotSched), "scheduled scans outlive a cycle")

	require.NoError(t, v.StopSchedScan())
	require.Equal(t, 1, tb.fw.Count(fapi.MLME_DEL_SCAN_REQ))
	req := tb.lastRequest(t, fapi.MLME_DEL_SCAN_REQ)
	require.Equal(t, id, req.U16(fapi.DelScanReqScanID))
	req.Free()
	require.False(t, v.ScanActive(ScanSlotSched))
	require.True(t, waitEvent[ScanDone](t, tb.ev).Aborted)
}

func TestScanDoneRoutedByScanID(t *testing.T) {
	tb := newTestbed(t)
	v1 := tb.addVIF(t, fapi.VifStation, staAddr)
	v2 := tb.addVIF(t, fapi.VifStation, apAddr)
	require.NoError(t, v1.Scan(ScanRequest{}))

	scanErr := make(chan error, 1)
	go func() { scanErr <- v2.Scan(ScanRequest{Wait: true}) }()
	require.Eventually(t, func() bool {
		return tb.fw.Count(fapi.MLME_ADD_SCAN_REQ) == 2
	}, waitEvery, time.Millisecond)

	tb.inject(t, fwsim.ScanDoneInd(scanID(v1.Ifnum(), ScanSlotHW)))
	require.False(t, v1.ScanActive(ScanSlotHW))
	done := waitEvent[ScanDone](t, tb.ev)
	require.Equal(t, v1.Ifnum(), done.VIF())
	select {
	case err := <-scanErr:
		t.Fatalf("scan done of another vif ended the scan: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	tb.inject(t, fwsim.ScanDoneInd(scanID(v2.Ifnum(), ScanSlotHW)))
	select {
	case err := <-scanErr:
		require.NoError(t, err)
	case <-time.After(waitEvery):
		t.Fatal("synchronous scan never returned")
	}
	require.False(t, v2.ScanActive(ScanSlotHW))
	done = waitEvent[ScanDone](t, tb.ev)
	require.Equal(t, v2.Ifnum(), done.VIF())
}

func TestScanResultCap(t *testing.T) {
	tb := newTestbed(t, func(c *Config) { c.MaxScanResults = 2 })
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	tb.fw.Handle(fapi.MLME_ADD_SCAN_REQ, scanRule(
		beaconFrom(bssidA, "a", -70),
		beaconFrom(bssidB, "b", -40),
		beaconFrom(bssidC, "c", -55),
	))
	require.NoError(t, v.Scan(ScanRequest{Wait: true}))
	found := all[BSSFound](tb.ev)
	require.Len(t, found, 2)
	require.Equal(t, bssidB, found[0].BSSID)
	require.Equal(t, bssidC, found[1].BSSID)
	require.Equal(t, 1.0, testutil.ToFloat64(tb.d.metrics.scanDropped))
	require.Equal(t, 2.0, testutil.ToFloat64(tb.d.metrics.scanResults))
}

func TestHiddenSSIDResolved(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	hidden := string(make([]byte, 6))
	tb.fw.Handle(fapi.MLME_ADD_SCAN_REQ, scanRule(
		beaconFrom(bssidA, hidden, -50),
		probeRespFrom(bssidA, "secret", -52),
	))
	require.NoError(t, v.Scan(ScanRequest{Wait: true}))
	found := all[BSSFound](tb.ev)
	require.Len(t, found, 2)
	for _, f := range found {
		require.Equal(t, "secret", frameSSID(t, f.Frame), "probe response %v", f.ProbeResp)
	}

	// The next scan only sees the hidden beacon and is resolved from the map.
	tb.fw.Handle(fapi.MLME_ADD_SCAN_REQ, scanRule(beaconFrom(bssidA, hidden, -50)))
	require.NoError(t, v.Scan(ScanRequest{Wait: true}))
	found = all[BSSFound](tb.ev)
	require.Len(t, found, 1)
	require.False(t, found[0].ProbeResp)
	require.Equal(t, "secret", frameSSID(t, found[0].Frame))
}

func TestResolveHiddenFreesOriginal(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	orig := fwsim.ScanInd(0, 0x100, 2412, -50, fwsim.Beacon(bssidA, []byte{}, nil))
	n := &scanResult{bssid: bssidA, beacon: orig, hidden: true}
	v.resolveHidden(n, []byte("secret"))
	require.True(t, orig.Freed())
	require.NotSame(t, orig, n.beacon)
	require.False(t, n.hidden)
	require.Equal(t, "secret", frameSSID(t, n.beacon.Data()))
	require.Equal(t, uint16(0x100), n.beacon.U16(fapi.ScanIndScanID), "fields are kept")
	n.free()
}

func TestSSIDMapAgeing(t *testing.T) {
	tb := newTestbed(t)
	d := tb.d
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	update := func() {
		v.mu.Lock()
		v.scanResultMu.Lock()
		d.updateSSIDMap(v, &scanSlot{})
		v.scanResultMu.Unlock()
		v.mu.Unlock()
	}
	d.ssidMapMu.Lock()
	d.ssidMapPut(bssidA, []byte("a"))
	d.ssidMapMu.Unlock()
	for i := 0; i < ssidMapExpiryAge; i++ {
		update()
	}
	_, ok := d.ssidMapLookup(bssidA)
	require.True(t, ok, "entry survives %d updates", ssidMapExpiryAge)
	update()
	_, ok = d.ssidMapLookup(bssidA)
	require.False(t, ok, "entry expires")
}

func TestSSIDMapRefreshed(t *testing.T) {
	tb := newTestbed(t)
	d := tb.d
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	d.ssidMapMu.Lock()
	d.ssidMapPut(bssidA, []byte("a"))
	d.ssidMapPut(bssidB, []byte("b"))
	d.ssidMapMu.Unlock()
	// bssidA is seen hidden on every cycle, bssidB never again.
	s := &scanSlot{results: &scanResult{bssid: bssidA, hidden: true}}
	for i := 0; i < 4*ssidMapExpiryAge; i++ {
		v.mu.Lock()
		v.scanResultMu.Lock()
		d.updateSSIDMap(v, s)
		v.scanResultMu.Unlock()
		v.mu.Unlock()
		ssid, ok := d.ssidMapLookup(bssidA)
		require.True(t, ok, "cycle %d", i)
		require.Equal(t, "a", string(ssid))
	}
	_, ok := d.ssidMapLookup(bssidB)
	require.False(t, ok)
}

func TestSSIDMapCapped(t *testing.T) {
	tb := newTestbed(t)
	d := tb.d
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	rng := rand.New(rand.NewPCG(3, 4))
	d.ssidMapMu.Lock()
	for i := 0; i < 4*ssidMapMax; i++ {
		d.ssidMapPut([6]byte{0x02, byte(rng.IntN(3 * ssidMapMax))}, []byte{'a' + byte(i%26)})
		require.LessOrEqual(t, len(d.ssidMap), ssidMapMax)
		d.ssidMap[rng.IntN(len(d.ssidMap))].age = rng.IntN(ssidMapExpiryAge + 1)
	}
	d.ssidMapMu.Unlock()

	// A single scan resolving more hidden networks than fit.
	s := &scanSlot{}
	for i := 0; i < ssidMapMax+5; i++ {
		bssid := [6]byte{0x06, byte(i)}
		sig := fwsim.ScanInd(0, 0x100, 2412, -50, fwsim.ProbeResp(bssid, []byte{'n', byte('a' + i)}, nil))
		s.insert(&scanResult{bssid: bssid, rssi: -50, hidden: true, probeResp: sig})
	}
	v.mu.Lock()
	v.scanResultMu.Lock()
	d.updateSSIDMap(v, s)
	s.purge()
	v.scanResultMu.Unlock()
	v.mu.Unlock()
	d.ssidMapMu.Lock()
	require.Len(t, d.ssidMap, ssidMapMax)
	d.ssidMapMu.Unlock()
}

func TestSpuriousScanDoneKeepsSSIDMap(t *testing.T) {
	tb := newTestbed(t)
	d := tb.d
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	d.ssidMapMu.Lock()
	d.ssidMapPut(bssidA, []byte("a"))
	d.ssidMap[0].age = ssidMapExpiryAge
	d.ssidMapMu.Unlock()

	tb.inject(t, fwsim.ScanDoneInd(scanID(v.Ifnum(), ScanSlotHW)))
	_, ok := take[ScanDone](tb.ev)
	require.False(t, ok)
	_, ok = d.ssidMapLookup(bssidA)
	require.True(t, ok, "idle slots do not age the map")
	d.ssidMapMu.Lock()
	require.Equal(t, ssidMapExpiryAge, d.ssidMap[0].age)
	d.ssidMapMu.Unlock()
}

func TestSSIDMapEvictsOldest(t *testing.T) {
	tb := newTestbed(t)
	d := tb.d
	d.ssidMapMu.Lock()
	defer d.ssidMapMu.Unlock()
	for i := 0; i < ssidMapMax; i++ {
		d.ssidMapPut([6]byte{0x02, byte(i)}, []byte{'a' + byte(i)})
	}
	d.ssidMap[3].age = 2
	d.ssidMap[7].age = 1
	d.ssidMapPut(bssidA, []byte("new"))
	require.Len(t, d.ssidMap, ssidMapMax)
	require.Equal(t, bssidA, d.ssidMap[3].bssid)

	// Refreshing an existing entry without an ssid keeps its value.
	d.ssidMapPut([6]byte{0x02, 7}, nil)
	require.Zero(t, d.ssidMap[7].age)
	require.Equal(t, []byte{'h'}, d.ssidMap[7].ssid)
	// Unknown BSSIDs without an ssid are not added.
	d.ssidMapPut(bssidB, nil)
	for _, e := range d.ssidMap {
		require.NotEqual(t, bssidB, e.bssid)
	}
}

func TestConnectScanIndBuffered(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	tb.inject(t,
		fwsim.ScanInd(v.Ifnum(), 0, 2412, -40, fwsim.ProbeResp(bssidB, []byte("old"), nil)),
		fwsim.ScanInd(v.Ifnum(), 0, 2412, -45, fwsim.ProbeResp(bssidA, []byte("lab"), nil)),
	)
	_, ok := take[BSSFound](tb.ev)
	require.False(t, ok, "connect scan results are held back")

	v.mu.Lock()
	require.False(t, v.flushConnectScan(bssidB), "only the latest indication is kept")
	require.True(t, v.flushConnectScan(bssidA))
	v.mu.Unlock()
	ev := waitEvent[BSSFound](t, tb.ev)
	require.Equal(t, bssidA, ev.BSSID)
	require.True(t, ev.ProbeResp)
}
